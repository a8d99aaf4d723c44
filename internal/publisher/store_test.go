package publisher

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testObject() Object {
	return Object{
		Container:       "eon",
		Name:            "daily/w1000.json",
		Body:            []byte("compressed"),
		ContentType:     ContentTypeJSON,
		ContentEncoding: EncodingGzip,
	}
}

func TestFileStorePut(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)

	require.NoError(t, store.Put(context.Background(), testObject()))

	obj := testObject()
	obj.Body = []byte("replaced")
	require.NoError(t, store.Put(context.Background(), obj))

	data, err := os.ReadFile(filepath.Join(dir, "eon", "daily", "w1000.json"))
	require.NoError(t, err)
	assert.Equal(t, "replaced", string(data))

	entries, err := os.ReadDir(filepath.Join(dir, "eon", "daily"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")
}

func TestFileStoreCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewFileStore(t.TempDir()).Put(ctx, testObject())
	assert.ErrorIs(t, err, context.Canceled)
}

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	f.body, _ = io.ReadAll(params.Body)
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestS3StorePut(t *testing.T) {
	fake := &fakeS3{}
	store := &S3Store{client: fake}

	require.NoError(t, store.Put(context.Background(), testObject()))
	assert.Equal(t, "eon", aws.ToString(fake.input.Bucket))
	assert.Equal(t, "daily/w1000.json", aws.ToString(fake.input.Key))
	assert.Equal(t, ContentTypeJSON, aws.ToString(fake.input.ContentType))
	assert.Equal(t, EncodingGzip, aws.ToString(fake.input.ContentEncoding))
	assert.Equal(t, int64(len("compressed")), aws.ToInt64(fake.input.ContentLength))
	assert.Equal(t, "compressed", string(fake.body))

	fake.err = errors.New("access denied")
	assert.ErrorContains(t, store.Put(context.Background(), testObject()), "access denied")
}

type fakeUploader struct {
	container, blob string
	body            []byte
	opts            *azblob.UploadBufferOptions
	err             error
}

func (f *fakeUploader) UploadBuffer(ctx context.Context, containerName string, blobName string, buffer []byte, o *azblob.UploadBufferOptions) (azblob.UploadBufferResponse, error) {
	f.container = containerName
	f.blob = blobName
	f.body = buffer
	f.opts = o
	return azblob.UploadBufferResponse{}, f.err
}

func TestAzureBlobStorePut(t *testing.T) {
	fake := &fakeUploader{}
	store := &AzureBlobStore{client: fake}

	require.NoError(t, store.Put(context.Background(), testObject()))
	assert.Equal(t, "eon", fake.container)
	assert.Equal(t, "daily/w1000.json", fake.blob)
	assert.Equal(t, "compressed", string(fake.body))
	require.NotNil(t, fake.opts.HTTPHeaders)
	assert.Equal(t, ContentTypeJSON, *fake.opts.HTTPHeaders.BlobContentType)
	assert.Equal(t, EncodingGzip, *fake.opts.HTTPHeaders.BlobContentEncoding)
	assert.Nil(t, fake.opts.AccessConditions, "uploads never carry preconditions")

	fake.err = errors.New("container not found")
	assert.ErrorContains(t, store.Put(context.Background(), testObject()), "container not found")
}
