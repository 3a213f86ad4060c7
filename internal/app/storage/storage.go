// Package storage stores uploaded files behind a narrow interface so the
// backing medium can change without touching handlers.
package storage

import (
	"context"
	"io"
)

// Storage accepts a byte stream plus the client's original file name and
// returns the stored path.
type Storage interface {
	Store(ctx context.Context, name string, r io.Reader) (string, error)
}
