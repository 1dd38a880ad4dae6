package resume

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/jonathan/apply-agent/internal/capability"
)

// NewBlob creates a fetcher that reads documents from an Azure Blob Storage container.
// The connection string is validated here; no request is made until the first fetch.
func NewBlob(connectionString, container string, opts ...Option) (*Fetcher, error) {
	if container == "" {
		return nil, fmt.Errorf("resume: container name is required")
	}
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("resume: create storage client: %w", err)
	}
	return newFetcher("blob", blobOpener(client, container), opts...), nil
}

type blobDownloader interface {
	DownloadStream(ctx context.Context, containerName, blobName string, o *azblob.DownloadStreamOptions) (azblob.DownloadStreamResponse, error)
}

func blobOpener(client blobDownloader, container string) opener {
	return func(ctx context.Context, key string) (io.ReadCloser, error) {
		resp, err := client.DownloadStream(ctx, container, key, nil)
		if err != nil {
			if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
				return nil, capability.NewError(capability.KindNotFound, op, "blob "+key+" not found", err)
			}
			return nil, fmt.Errorf("download blob %s: %w", key, err)
		}
		return resp.Body, nil
	}
}
