// Package objectstore reads and writes model files in a NATS JetStream
// object store bucket.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// ErrNotFound is returned when a key does not exist in the bucket.
var ErrNotFound = errors.New("object not found")

// Store is a JetStream object store bucket.
type Store struct {
	bucket string
	store  nats.ObjectStore
}

// New binds to bucket, creating it when it does not exist yet.
func New(js nats.JetStreamContext, bucket string) (*Store, error) {
	store, err := js.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucket,
		Description: fmt.Sprintf("Model files for %s.", bucket),
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil, fmt.Errorf("failed to create object store bucket '%s': %w", bucket, err)
		}
		store, err = js.ObjectStore(bucket)
		if err != nil {
			return nil, fmt.Errorf("failed to bind to object store bucket '%s': %w", bucket, err)
		}
	}
	return &Store{bucket: bucket, store: store}, nil
}

// Connect dials url and binds to bucket. Closing the returned connection
// invalidates the Store.
func Connect(url, bucket string, timeout time.Duration) (*Store, *nats.Conn, error) {
	nc, err := nats.Connect(url, nats.Timeout(timeout), nats.Name("voxkit"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to open jetstream: %w", err)
	}
	s, err := New(js, bucket)
	if err != nil {
		nc.Close()
		return nil, nil, err
	}
	return s, nc, nil
}

// Bucket returns the bucket name.
func (s *Store) Bucket() string { return s.bucket }

// Open streams the object at key. The returned size is the stored object
// size in bytes.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	obj, err := s.store.Get(key, nats.Context(ctx))
	if err != nil {
		if errors.Is(err, nats.ErrObjectNotFound) {
			return nil, 0, fmt.Errorf("%w: '%s' in bucket '%s'", ErrNotFound, key, s.bucket)
		}
		return nil, 0, fmt.Errorf("failed to get object '%s' from bucket '%s': %w", key, s.bucket, err)
	}
	info, err := obj.Info()
	if err != nil {
		_ = obj.Close()
		return nil, 0, fmt.Errorf("failed to stat object '%s': %w", key, err)
	}
	return obj, int64(info.Size), nil
}

// Download retrieves a whole object.
func (s *Store) Download(ctx context.Context, key string) ([]byte, error) {
	r, _, err := s.Open(ctx, key)
	if err != nil {
		return nil, err
	}

	data, readErr := io.ReadAll(r)
	closeErr := r.Close()
	if readErr != nil {
		return nil, fmt.Errorf("failed to read object '%s': %w", key, readErr)
	}
	if closeErr != nil {
		return data, fmt.Errorf("failed to close object '%s': %w", key, closeErr)
	}
	return data, nil
}

// Upload stores the contents of r under key.
func (s *Store) Upload(ctx context.Context, key string, r io.Reader) error {
	_, err := s.store.Put(&nats.ObjectMeta{Name: key}, r, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("failed to put object '%s' to bucket '%s': %w", key, s.bucket, err)
	}
	return nil
}

// UploadBytes stores data under key.
func (s *Store) UploadBytes(ctx context.Context, key string, data []byte) error {
	return s.Upload(ctx, key, bytes.NewReader(data))
}

// Delete removes key.
func (s *Store) Delete(key string) error {
	if err := s.store.Delete(key); err != nil {
		return fmt.Errorf("failed to delete object '%s': %w", key, err)
	}
	return nil
}
