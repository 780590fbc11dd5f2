package adapter

import (
	"io"
)

type CatalogAdapter interface {
	ListSongs() ([]string, error)
	Open(name string) (io.ReadCloser, int64, error)
}

type CredentialAdapter interface {
	Verify(username, password string) bool
}
