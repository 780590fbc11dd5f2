package catalog

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/poyaz/bytebeats/internal/app/stream/usecase/adapter"
	"github.com/poyaz/bytebeats/internal/domain"
)

type Config struct {
	Dir        string
	Extensions []string
}

var _ adapter.CatalogAdapter = (*catalog)(nil)

type catalog struct {
	dir  string
	exts map[string]struct{}
	log  logrus.FieldLogger
}

func NewCatalog(log logrus.FieldLogger, config ...Config) (*catalog, error) {
	var opt Config
	for _, cfg := range config {
		opt = cfg
	}
	if opt.Dir == "" {
		return nil, errors.New("catalog directory is empty")
	}
	if len(opt.Extensions) == 0 {
		opt.Extensions = []string{".mp3"}
	}

	exts := make(map[string]struct{}, len(opt.Extensions))
	for _, ext := range opt.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts[ext] = struct{}{}
	}

	return &catalog{dir: opt.Dir, exts: exts, log: log}, nil
}

func (c *catalog) playable(name string) bool {
	_, ok := c.exts[strings.ToLower(filepath.Ext(name))]
	return ok
}

// ListSongs reads the directory on every call so added or removed files show up immediately.
func (c *catalog) ListSongs() ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(c.dir, 0o755); err != nil {
			return nil, err
		}
		c.log.WithField("dir", c.dir).Warn("Created music directory, add audio files to it")
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}

	songs := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !c.playable(e.Name()) {
			continue
		}
		songs = append(songs, e.Name())
	}

	return songs, nil
}

// Open returns a read-only handle for a catalog item and its size in bytes.
func (c *catalog) Open(name string) (io.ReadCloser, int64, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return nil, 0, fmt.Errorf("%w: %q", domain.ErrCatalogMiss, name)
	}
	if !c.playable(name) {
		return nil, 0, fmt.Errorf("%w: %q", domain.ErrCatalogMiss, name)
	}

	f, err := os.Open(filepath.Join(c.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, 0, fmt.Errorf("%w: %q", domain.ErrCatalogMiss, name)
	}
	if err != nil {
		return nil, 0, err
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, err
	}
	if !info.Mode().IsRegular() {
		_ = f.Close()
		return nil, 0, fmt.Errorf("%w: %q is not a regular file", domain.ErrCatalogMiss, name)
	}

	return f, info.Size(), nil
}
