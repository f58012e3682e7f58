package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/snapetech/iptvconstructor/internal/m3u"
	"github.com/snapetech/iptvconstructor/internal/probe"
)

// WriteFile renders channels to path. Output goes to a temp file in the
// same directory which replaces path only once rendering succeeded.
func WriteFile(ctx context.Context, path string, channels []m3u.Channel, opts Options) (Stats, error) {
	return writeAtomic(path, func(f *os.File) (Stats, error) {
		return Render(ctx, f, channels, opts)
	})
}

// WriteFlatFile is WriteFile for RenderFlat.
func WriteFlatFile(ctx context.Context, path string, channels []m3u.Channel, checker probe.Reacher, concurrency int) (Stats, error) {
	return writeAtomic(path, func(f *os.File) (Stats, error) {
		return RenderFlat(ctx, f, channels, checker, concurrency)
	})
}

func writeAtomic(path string, fill func(*os.File) (Stats, error)) (Stats, error) {
	dir := filepath.Dir(filepath.Clean(path))
	tmp, err := os.CreateTemp(dir, ".playlist-*.m3u.tmp")
	if err != nil {
		return Stats{}, fmt.Errorf("create temp playlist: %w", err)
	}
	tmpName := tmp.Name()
	st, fillErr := fill(tmp)
	closeErr := tmp.Close()
	if fillErr != nil || closeErr != nil {
		os.Remove(tmpName)
		if fillErr != nil {
			return st, fillErr
		}
		return st, fmt.Errorf("close playlist: %w", closeErr)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return st, fmt.Errorf("chmod playlist: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return st, fmt.Errorf("rename playlist: %w", err)
	}
	return st, nil
}
