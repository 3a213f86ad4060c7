package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

// Filesystem stores uploads under a local directory with collision-safe
// names: <unix-ts>_<slugified-base>.<ext>.
type Filesystem struct {
	root string
	now  func() time.Time
}

// NewFilesystem creates the upload directory if needed.
func NewFilesystem(root string) (*Filesystem, error) {
	if root == "" {
		return nil, fmt.Errorf("storage: upload directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create upload directory: %w", err)
	}
	return &Filesystem{root: root, now: time.Now}, nil
}

// Store writes the stream to disk and returns the path relative to the
// upload root.
func (f *Filesystem) Store(ctx context.Context, name string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	safe := SafeName(f.now().Unix(), name)
	full := filepath.Join(f.root, safe)

	dst, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("storage: create %s: %w", safe, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, r); err != nil {
		os.Remove(full)
		return "", fmt.Errorf("storage: write %s: %w", safe, err)
	}
	return safe, nil
}

// SafeName builds a stored file name from a timestamp and the client's
// original name. The base is slugified; the extension is kept lower-case.
func SafeName(ts int64, original string) string {
	base := filepath.Base(original)
	ext := strings.ToLower(filepath.Ext(base))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return fmt.Sprintf("%d_%s%s", ts, slugify(stem), ext)
}

func slugify(s string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteRune('-')
			lastDash = true
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "file"
	}
	return out
}
