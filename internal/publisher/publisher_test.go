package publisher

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgoulah/meterfeed/internal/config"
)

type memStore struct {
	mu      sync.Mutex
	objects map[string]Object
	puts    int
	err     error
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string]Object)}
}

func (m *memStore) Backend() string { return "memory" }

func (m *memStore) Put(ctx context.Context, obj Object) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if m.err != nil {
		return m.err
	}
	m.objects[obj.Container+"/"+obj.Name] = obj
	return nil
}

func gunzip(t *testing.T, data []byte) []byte {
	t.Helper()
	zr, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	out, err := io.ReadAll(zr)
	require.NoError(t, err)
	return out
}

func TestPublish(t *testing.T) {
	store := newMemStore()
	p := New(store, "eon", "w1000.json", time.Minute)
	payload := []byte(`[{"name":"1 (1.8.0)","unit":"kWh","data":[[1678872600000,1.5,"OK"]]}]`)

	ack, err := p.Publish(context.Background(), payload)
	require.NoError(t, err)

	obj, ok := store.objects["eon/w1000.json"]
	require.True(t, ok)
	assert.Equal(t, ContentTypeJSON, obj.ContentType)
	assert.Equal(t, EncodingGzip, obj.ContentEncoding)
	assert.Equal(t, payload, gunzip(t, obj.Body))

	assert.Equal(t, "memory", ack.Backend)
	assert.Equal(t, len(payload), ack.RawBytes)
	assert.Equal(t, len(obj.Body), ack.Bytes)
	assert.Len(t, ack.SHA256, 64)
}

func TestPublishIsIdempotent(t *testing.T) {
	store := newMemStore()
	p := New(store, "eon", "w1000.json", 0)
	payload := []byte("[]")

	first, err := p.Publish(context.Background(), payload)
	require.NoError(t, err)
	second, err := p.Publish(context.Background(), payload)
	require.NoError(t, err)

	assert.Equal(t, 2, store.puts)
	assert.Len(t, store.objects, 1)
	assert.Equal(t, first.SHA256, second.SHA256)
	assert.Equal(t, []byte("[]"), gunzip(t, store.objects["eon/w1000.json"].Body))
}

func TestPublishOverwrites(t *testing.T) {
	store := newMemStore()
	p := New(store, "eon", "w1000.json", 0)

	_, err := p.Publish(context.Background(), []byte(`[{"name":"a"}]`))
	require.NoError(t, err)
	_, err = p.Publish(context.Background(), []byte("[]"))
	require.NoError(t, err)

	assert.Equal(t, []byte("[]"), gunzip(t, store.objects["eon/w1000.json"].Body))
}

func TestPublishError(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("403 forbidden")
	p := New(store, "eon", "w1000.json", 0)

	ack, err := p.Publish(context.Background(), []byte("[]"))
	assert.Nil(t, ack)
	require.Error(t, err)

	var pubErr *PublishError
	require.ErrorAs(t, err, &pubErr)
	assert.Equal(t, "memory", pubErr.Backend)
	assert.Equal(t, "w1000.json", pubErr.Blob)
	assert.ErrorIs(t, err, store.err)
	assert.Contains(t, err.Error(), "eon/w1000.json")
}

func TestCompressDeterministic(t *testing.T) {
	a, err := Compress([]byte("hello"))
	require.NoError(t, err)
	b, err := Compress([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, a, b)

	zr, err := gzip.NewReader(bytes.NewReader(a))
	require.NoError(t, err)
	assert.Empty(t, zr.Name)
	assert.True(t, zr.ModTime.IsZero())
}

type failingWriter struct{ err error }

func (w failingWriter) Write([]byte) (int, error) { return 0, w.err }

func TestCompressWrapsWriterErrors(t *testing.T) {
	errDisk := errors.New("disk full")
	err := compressTo(failingWriter{err: errDisk}, []byte(`[]`))
	require.ErrorIs(t, err, errDisk)
	assert.Contains(t, err.Error(), "gzip stream")
}

func TestNewStore(t *testing.T) {
	store, err := NewStore(context.Background(), config.StorageConfig{Backend: config.BackendFile, Dir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, config.BackendFile, store.Backend())

	_, err = NewStore(context.Background(), config.StorageConfig{Backend: "ftp"})
	assert.ErrorContains(t, err, "unknown storage backend")

	_, err = NewStore(context.Background(), config.StorageConfig{Backend: config.BackendAzureBlob, ConnectionString: "not a connection string"})
	assert.Error(t, err)
}
