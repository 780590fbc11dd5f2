package main

import (
	"log"
	"os"

	_ "go.uber.org/automaxprocs"

	"github.com/poyaz/bytebeats/config"
	"github.com/poyaz/bytebeats/internal/cmd"
)

func main() {
	cfg := config.NewClientConfig()
	if err := cfg.ParseFlags(os.Args[1:]); err != nil {
		log.Fatalf("flag parsing error: %v", err)
	}

	if err := cmd.RunClient(cfg); err != nil {
		log.Fatal(err)
	}
}
