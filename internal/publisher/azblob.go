package publisher

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"

	"github.com/jgoulah/meterfeed/internal/config"
)

type blobUploader interface {
	UploadBuffer(ctx context.Context, containerName string, blobName string, buffer []byte, o *azblob.UploadBufferOptions) (azblob.UploadBufferResponse, error)
}

// AzureBlobStore writes block blobs. A block blob upload replaces any
// existing blob unless access conditions are set, and none are.
type AzureBlobStore struct {
	client blobUploader
}

// NewAzureBlobStore connects with a storage account connection string
func NewAzureBlobStore(connectionString string) (*AzureBlobStore, error) {
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("creating blob client: %w", err)
	}
	return &AzureBlobStore{client: client}, nil
}

func (s *AzureBlobStore) Backend() string { return config.BackendAzureBlob }

func (s *AzureBlobStore) Put(ctx context.Context, obj Object) error {
	_, err := s.client.UploadBuffer(ctx, obj.Container, obj.Name, obj.Body, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType:     to.Ptr(obj.ContentType),
			BlobContentEncoding: to.Ptr(obj.ContentEncoding),
		},
	})
	if err != nil {
		return fmt.Errorf("uploading blob: %w", err)
	}
	return nil
}
