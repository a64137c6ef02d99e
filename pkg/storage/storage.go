// Package storage persists uploaded print documents on local disk or Azure Blob Storage.
package storage

import (
	"context"
	"errors"
	"io"
	"strings"
)

var (
	// ErrNotFound is returned when no object exists for a key.
	ErrNotFound = errors.New("storage: object not found")
	// ErrInvalidKey is returned for empty keys or keys escaping the store root.
	ErrInvalidKey = errors.New("storage: invalid key")
)

// Store is the document persistence contract shared by all backends.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" || strings.Contains(key, "..") || strings.HasPrefix(key, "/") {
		return ErrInvalidKey
	}
	return nil
}
