package cmd

type RunBootstrap interface {
	Run() error
}

type ShutdownBootstrap interface {
	Shutdown() error
}

// Bootstrap is a foreground handler that owns the process until it returns.
type Bootstrap interface {
	RunBootstrap
	ShutdownBootstrap
}
