// Package ioutil wraps github.com/viant/afs so every component that reads
// an input spec or writes a generated output goes through the same
// scoped-holder idiom: open, read or write fully, never leak a handle on
// an early return.
package ioutil

import (
	"bytes"
	"context"
	"os"

	"github.com/viant/afs"
	"github.com/viant/afs/storage"

	"github.com/viant/weaver/internal/diagnostics"
)

// Store is the subset of afs.Service the weaver depends on.
type Store interface {
	DownloadWithURL(ctx context.Context, URL string) ([]byte, error)
	Upload(ctx context.Context, URL string, mode os.FileMode, reader *bytes.Reader, options ...storage.Option) error
}

type service struct {
	fs afs.Service
}

// New returns the default local/cloud-aware store backed by afs.New().
func New() Store {
	return &service{fs: afs.New()}
}

func (s *service) DownloadWithURL(ctx context.Context, URL string) ([]byte, error) {
	return s.fs.DownloadWithURL(ctx, URL)
}

func (s *service) Upload(ctx context.Context, URL string, mode os.FileMode, reader *bytes.Reader, options ...storage.Option) error {
	return s.fs.Upload(ctx, URL, mode, reader, options...)
}

// ReadFile reads path fully, wrapping any failure as an IoError.
func ReadFile(ctx context.Context, store Store, path string) ([]byte, error) {
	data, err := store.DownloadWithURL(ctx, path)
	if err != nil {
		return nil, diagnostics.NewIoError(path, err)
	}
	return data, nil
}

// WriteFile writes content to path in one shot, wrapping any failure as an
// IoError. The scoped holder here is the *bytes.Reader afs consumes; no
// descriptor is held past this call.
func WriteFile(ctx context.Context, store Store, path string, content []byte) error {
	if err := store.Upload(ctx, path, 0644, bytes.NewReader(content)); err != nil {
		return diagnostics.NewIoError(path, err)
	}
	return nil
}
