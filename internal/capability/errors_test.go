package capability

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := NewError(KindNavigation, "navigate", "net::ERR_NAME_NOT_RESOLVED", nil)

	assert.True(t, errors.Is(err, ErrNavigation))
	assert.False(t, errors.Is(err, ErrScript))

	wrapped := fmt.Errorf("detect_load: %w", err)
	assert.True(t, errors.Is(wrapped, ErrNavigation))
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewError(KindTransfer, "fetch_resume", "download failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "fetch_resume: transfer error: download failed: connection reset", err.Error())
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"capability error", NewError(KindInference, "classify", "bad json", nil), KindInference},
		{"wrapped", fmt.Errorf("step: %w", NewError(KindScript, "", "", nil)), KindScript},
		{"deadline", fmt.Errorf("x: %w", context.DeadlineExceeded), KindTimeout},
		{"other", errors.New("boom"), ""},
		{"nil", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, IsTimeout(NewError(KindExtractionTimeout, "extract", "", nil)))
	assert.True(t, IsTimeout(context.DeadlineExceeded))
	assert.False(t, IsTimeout(ErrNavigation))
}

func TestLocalFile_CleanupOnce(t *testing.T) {
	calls := 0
	f := NewLocalFile("/tmp/x.pdf", "x.pdf", 10, func() error {
		calls++
		return nil
	})
	assert.NoError(t, f.Cleanup())
	assert.NoError(t, f.Cleanup())
	assert.Equal(t, 1, calls)

	var nilFile *LocalFile
	assert.NoError(t, nilFile.Cleanup())
}
