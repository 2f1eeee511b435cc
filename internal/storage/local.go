package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/roach88/trawl/internal/model"
)

// Local copies content from a host path. Used for tests and offline runs.
type Local struct{}

var _ Provider = (*Local)(nil)

// Fetch copies spec.Source (file or directory) into destDir.
func (Local) Fetch(ctx context.Context, spec model.StorageSpec, destDir string) error {
	if spec.Source == "" {
		return fmt.Errorf("local fetch: source path is empty")
	}
	info, err := os.Stat(spec.Source)
	if err != nil {
		return fmt.Errorf("local fetch: %w", err)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("local fetch: %w", err)
	}

	if !info.IsDir() {
		return copyFile(spec.Source, filepath.Join(destDir, filepath.Base(spec.Source)))
	}
	return CopyDir(spec.Source, destDir)
}

// CopyDir recursively copies the contents of src into dst.
// dst must already exist.
func CopyDir(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}
