// Package resume retrieves candidate documents to local files so they can be attached to
// application forms.
package resume

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/jonathan/apply-agent/internal/capability"
)

const op = "fetch_resume"

// ErrInvalidID is returned for empty ids and ids that escape their container.
var ErrInvalidID = errors.New("invalid resume id")

// opener streams the document stored under key.
type opener func(ctx context.Context, key string) (io.ReadCloser, error)

// Fetcher downloads documents from a backing source into temporary files.
type Fetcher struct {
	open    opener
	source  string
	tempDir string
	logger  *slog.Logger
}

// Option configures a Fetcher
type Option func(*Fetcher)

// WithTempDir sets the directory downloads are written to. The default is os.TempDir.
func WithTempDir(dir string) Option {
	return func(f *Fetcher) { f.tempDir = dir }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

func newFetcher(source string, open opener, opts ...Option) *Fetcher {
	f := &Fetcher{open: open, source: source, logger: slog.Default()}
	for _, o := range opts {
		o(f)
	}
	f.logger = f.logger.With("system", "resume", "source", source)
	return f
}

// FetchResume downloads the document to a temp file. The caller owns the returned file and must
// call Cleanup. A missing document fails with capability.KindNotFound, anything else with
// capability.KindTransfer.
func (f *Fetcher) FetchResume(ctx context.Context, resumeID string) (*capability.LocalFile, error) {
	key, err := validateID(resumeID)
	if err != nil {
		return nil, capability.NewError(capability.KindNotFound, op, resumeID, err)
	}

	rc, err := f.open(ctx, key)
	if err != nil {
		var ce *capability.Error
		if errors.As(err, &ce) {
			return nil, err
		}
		return nil, capability.NewError(capability.KindTransfer, op, key, err)
	}
	defer func() { _ = rc.Close() }()

	tmp, err := os.CreateTemp(f.tempDir, "resume-*"+path.Ext(key))
	if err != nil {
		return nil, capability.NewError(capability.KindTransfer, op, "create temp file", err)
	}
	size, err := io.Copy(tmp, contextReader{ctx: ctx, r: rc})
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return nil, capability.NewError(capability.KindTransfer, op, key, err)
	}

	name := tmp.Name()
	f.logger.Debug("resume downloaded", "resume_id", key, "bytes", size)
	return capability.NewLocalFile(name, path.Base(key), size, func() error {
		if err := os.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", name, err)
		}
		return nil
	}), nil
}

func validateID(id string) (string, error) {
	key := strings.Trim(strings.TrimSpace(id), "/")
	if key == "" {
		return "", ErrInvalidID
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." || part == "." {
			return "", ErrInvalidID
		}
	}
	return key, nil
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
