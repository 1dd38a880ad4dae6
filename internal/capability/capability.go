// Package capability defines the ports through which workflow steps reach non-deterministic
// collaborators: a browser page, a language-model inference service and resume storage.
package capability

import (
	"context"

	"github.com/jonathan/apply-agent/internal/schemas"
)

// Navigation is the outcome of loading a URL
type Navigation struct {
	OK       bool   `json:"ok"`
	FinalURL string `json:"finalUrl"`
}

// Page is a live browser page owned by exactly one run.
//
// Extract and Inference.Classify decode an answer that already satisfies schema into out.
// Evaluate runs script in the page with args passed as its single argument and decodes the result into out.
type Page interface {
	Navigate(ctx context.Context, url string) (Navigation, error)
	Extract(ctx context.Context, instruction string, schema *schemas.Schema, out any) error
	Evaluate(ctx context.Context, script string, args any, out any) error
}

// Inference answers structured questions without page context.
type Inference interface {
	Classify(ctx context.Context, instruction string, schema *schemas.Schema, out any) error
}

// FileUploader is implemented by pages that can attach a local file to a file input.
type FileUploader interface {
	Upload(ctx context.Context, fieldName, path string) error
}

// ResumeFetcher retrieves a candidate document to a local file.
// It fails with KindNotFound when the document does not exist and KindTransfer otherwise.
type ResumeFetcher interface {
	FetchResume(ctx context.Context, resumeID string) (*LocalFile, error)
}

// LocalFile is a downloaded document. Callers must call Cleanup when done.
type LocalFile struct {
	Path    string
	Name    string
	Size    int64
	cleanup func() error
}

// NewLocalFile wraps a path with an optional cleanup function.
func NewLocalFile(path, name string, size int64, cleanup func() error) *LocalFile {
	return &LocalFile{Path: path, Name: name, Size: size, cleanup: cleanup}
}

// Cleanup releases the local copy. It is safe to call more than once.
func (f *LocalFile) Cleanup() error {
	if f == nil || f.cleanup == nil {
		return nil
	}
	fn := f.cleanup
	f.cleanup = nil
	return fn()
}
