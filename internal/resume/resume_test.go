package resume

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/apply-agent/internal/capability"
)

func writeDoc(t *testing.T, dir, name, body string) {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
}

func TestDirFetcher_FetchAndCleanup(t *testing.T) {
	src := t.TempDir()
	tmp := t.TempDir()
	writeDoc(t, src, "candidates/jane.pdf", "%PDF-1.4 resume")

	f := NewDir(src, WithTempDir(tmp))
	file, err := f.FetchResume(context.Background(), "candidates/jane.pdf")
	require.NoError(t, err)

	assert.Equal(t, "jane.pdf", file.Name)
	assert.Equal(t, int64(len("%PDF-1.4 resume")), file.Size)
	assert.Equal(t, ".pdf", filepath.Ext(file.Path))
	assert.Equal(t, tmp, filepath.Dir(file.Path))
	data, err := os.ReadFile(file.Path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 resume", string(data))

	require.NoError(t, file.Cleanup())
	_, err = os.Stat(file.Path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.NoError(t, file.Cleanup(), "cleanup is idempotent")
}

func TestDirFetcher_NotFound(t *testing.T) {
	f := NewDir(t.TempDir())
	_, err := f.FetchResume(context.Background(), "missing.pdf")
	require.Error(t, err)
	assert.True(t, errors.Is(err, capability.ErrNotFound))
}

func TestFetchResume_InvalidIDs(t *testing.T) {
	f := NewDir(t.TempDir())
	for _, id := range []string{"", "   ", "../etc/passwd", "a/../../b", "/"} {
		t.Run(id, func(t *testing.T) {
			_, err := f.FetchResume(context.Background(), id)
			require.Error(t, err)
			assert.Equal(t, capability.KindNotFound, capability.KindOf(err))
			assert.ErrorIs(t, err, ErrInvalidID)
		})
	}
}

func TestFetchResume_CopyFailureIsTransfer(t *testing.T) {
	tmp := t.TempDir()
	f := newFetcher("test", func(context.Context, string) (io.ReadCloser, error) {
		return io.NopCloser(failingReader{}), nil
	}, WithTempDir(tmp))

	_, err := f.FetchResume(context.Background(), "cv.docx")
	require.Error(t, err)
	assert.Equal(t, capability.KindTransfer, capability.KindOf(err))

	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, entries, "partial download is removed")
}

func TestFetchResume_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := newFetcher("test", func(context.Context, string) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader("data")), nil
	}, WithTempDir(t.TempDir()))

	_, err := f.FetchResume(ctx, "cv.pdf")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

type fakeBlobs struct {
	body map[string]string
	err  error
	got  []string
}

func (f *fakeBlobs) DownloadStream(_ context.Context, container, blobName string, _ *azblob.DownloadStreamOptions) (azblob.DownloadStreamResponse, error) {
	f.got = append(f.got, container+"/"+blobName)
	var resp azblob.DownloadStreamResponse
	if f.err != nil {
		return resp, f.err
	}
	body, ok := f.body[blobName]
	if !ok {
		return resp, &azcore.ResponseError{ErrorCode: "BlobNotFound", StatusCode: 404}
	}
	resp.Body = io.NopCloser(strings.NewReader(body))
	return resp, nil
}

func TestBlobFetcher(t *testing.T) {
	blobs := &fakeBlobs{body: map[string]string{"resume-1.pdf": "pdf bytes"}}
	f := newFetcher("blob", blobOpener(blobs, "resumes"), WithTempDir(t.TempDir()))
	ctx := context.Background()

	file, err := f.FetchResume(ctx, "resume-1.pdf")
	require.NoError(t, err)
	t.Cleanup(func() { _ = file.Cleanup() })
	assert.Equal(t, "resume-1.pdf", file.Name)
	assert.Equal(t, int64(9), file.Size)
	assert.Equal(t, []string{"resumes/resume-1.pdf"}, blobs.got)

	_, err = f.FetchResume(ctx, "nope.pdf")
	require.Error(t, err)
	assert.Equal(t, capability.KindNotFound, capability.KindOf(err))

	blobs.err = &azcore.ResponseError{ErrorCode: "ServerBusy", StatusCode: 503}
	_, err = f.FetchResume(ctx, "resume-1.pdf")
	require.Error(t, err)
	assert.Equal(t, capability.KindTransfer, capability.KindOf(err))
}

func TestNewBlob_RequiresContainer(t *testing.T) {
	_, err := NewBlob("UseDevelopmentStorage=true", "")
	require.Error(t, err)
}
