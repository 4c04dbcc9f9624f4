// Package storage persists generated artifacts and hands back opaque
// references. The local-disk implementation mirrors the hosted drive the
// service originally wrote to: callers only ever see the reference, never a
// path.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lithammer/shortuuid/v4"
)

// ErrNotFound indicates the reference does not resolve to a stored artifact.
var ErrNotFound = errors.New("artifact not found")

// Disk stores artifacts under a single directory. Files are named
// <reference>_<filename> so a reference alone is enough to locate and delete
// an artifact.
type Disk struct {
	dir string
}

// NewDisk creates the artifact directory if needed.
func NewDisk(dir string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating artifact directory: %w", err)
	}
	return &Disk{dir: dir}, nil
}

// Save writes data and returns a fresh opaque reference.
func (d *Disk) Save(ctx context.Context, data []byte, filename string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ref := shortuuid.New()
	path := filepath.Join(d.dir, ref+"_"+sanitizeFilename(filename))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("writing artifact: %w", err)
	}
	return ref, nil
}

// Delete removes the artifact a reference points to.
func (d *Disk) Delete(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	matches, err := filepath.Glob(filepath.Join(d.dir, ref+"_*"))
	if err != nil {
		return fmt.Errorf("resolving reference: %w", err)
	}
	if len(matches) == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			return fmt.Errorf("removing artifact: %w", err)
		}
	}
	return nil
}

// Open returns the stored bytes for a reference.
func (d *Disk) Open(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	matches, err := filepath.Glob(filepath.Join(d.dir, ref+"_*"))
	if err != nil {
		return nil, fmt.Errorf("resolving reference: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		return nil, fmt.Errorf("reading artifact: %w", err)
	}
	return data, nil
}

// sanitizeFilename keeps filenames shell- and path-safe.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
