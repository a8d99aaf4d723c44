package publisher

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/jgoulah/meterfeed/internal/config"
)

const (
	ContentTypeJSON = "application/json"
	EncodingGzip    = "gzip"
)

// Object is a single blob write
type Object struct {
	Container       string
	Name            string
	Body            []byte
	ContentType     string
	ContentEncoding string
}

// Store writes objects to a backend. Put always replaces whatever is at
// the destination; there are no preconditions.
type Store interface {
	Put(ctx context.Context, obj Object) error
	Backend() string
}

// NewStore builds the store selected by cfg.Backend
func NewStore(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case config.BackendAzureBlob:
		return NewAzureBlobStore(cfg.ConnectionString)
	case config.BackendS3:
		return NewS3Store(ctx, cfg.S3)
	case config.BackendFile:
		return NewFileStore(cfg.Dir), nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s (available: azblob, s3, file)", cfg.Backend)
	}
}

// Ack describes a completed publish
type Ack struct {
	Backend   string
	Container string
	Blob      string
	RawBytes  int
	Bytes     int    // compressed size
	SHA256    string // of the compressed object
}

// Publisher compresses the series JSON and overwrites the destination blob
type Publisher struct {
	store     Store
	container string
	blob      string
	timeout   time.Duration
}

// New creates a Publisher writing to container/blob through store
func New(store Store, container, blob string, timeout time.Duration) *Publisher {
	return &Publisher{
		store:     store,
		container: container,
		blob:      blob,
		timeout:   timeout,
	}
}

// Publish gzips payload and uploads it with JSON/gzip metadata
func (p *Publisher) Publish(ctx context.Context, payload []byte) (*Ack, error) {
	compressed, err := Compress(payload)
	if err != nil {
		return nil, fmt.Errorf("compressing payload: %w", err)
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	obj := Object{
		Container:       p.container,
		Name:            p.blob,
		Body:            compressed,
		ContentType:     ContentTypeJSON,
		ContentEncoding: EncodingGzip,
	}
	if err := p.store.Put(ctx, obj); err != nil {
		return nil, &PublishError{
			Backend:   p.store.Backend(),
			Container: p.container,
			Blob:      p.blob,
			Err:       err,
		}
	}

	sum := sha256.Sum256(compressed)
	return &Ack{
		Backend:   p.store.Backend(),
		Container: p.container,
		Blob:      p.blob,
		RawBytes:  len(payload),
		Bytes:     len(compressed),
		SHA256:    hex.EncodeToString(sum[:]),
	}, nil
}

// Compress gzips data. The header carries no name or mtime, so equal
// input gives equal output.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := compressTo(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func compressTo(w io.Writer, data []byte) error {
	zw, err := gzip.NewWriterLevel(w, gzip.DefaultCompression)
	if err != nil {
		return fmt.Errorf("creating gzip writer: %w", err)
	}
	if _, err := zw.Write(data); err != nil {
		return fmt.Errorf("writing gzip stream: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("closing gzip stream: %w", err)
	}
	return nil
}
