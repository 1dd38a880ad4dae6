package resume

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jonathan/apply-agent/internal/capability"
)

// NewDir creates a fetcher that reads documents from a local directory, keyed by relative path.
func NewDir(dir string, opts ...Option) *Fetcher {
	return newFetcher("dir", func(_ context.Context, key string) (io.ReadCloser, error) {
		p := filepath.Join(dir, filepath.FromSlash(key))
		file, err := os.Open(p) //nolint:gosec // key is validated against traversal
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, capability.NewError(capability.KindNotFound, op, key+" not found", err)
			}
			return nil, fmt.Errorf("open %s: %w", p, err)
		}
		return file, nil
	}, opts...)
}
