package archive

import (
	"bytes"
	"context"
	"io"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"

	"github.com/helixa-health/scribe/pkg/utils/safe"
)

// Store persists raw dictation audio for audit before the local file is
// discarded.
type Store interface {
	Put(ctx context.Context, name string, r io.Reader) error
}

// GCS archives audio into a Cloud Storage bucket
type GCS struct {
	client *storage.Client
	bucket string
}

// NewGCS creates a Cloud Storage backed archive
func NewGCS(ctx context.Context, bucket string) (*GCS, error) {
	if bucket == "" {
		return nil, goerr.New("archive bucket name is required")
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client")
	}

	return &GCS{client: client, bucket: bucket}, nil
}

var _ Store = &GCS{}

func (s *GCS) Put(ctx context.Context, name string, r io.Reader) error {
	w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		safe.Close(ctx, w)
		return goerr.Wrap(err, "failed to write archive object",
			goerr.V("bucket", s.bucket), goerr.V("name", name))
	}
	if err := w.Close(); err != nil {
		return goerr.Wrap(err, "failed to finalize archive object",
			goerr.V("bucket", s.bucket), goerr.V("name", name))
	}
	return nil
}

// Close releases the underlying client
func (s *GCS) Close() error {
	return s.client.Close()
}

// Memory is an in-memory archive used in tests
type Memory struct {
	mu      sync.Mutex
	objects map[string][]byte
}

// NewMemory creates an in-memory archive
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

var _ Store = &Memory{}

func (s *Memory) Put(ctx context.Context, name string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return goerr.Wrap(err, "failed to read archive payload", goerr.V("name", name))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[name] = bytes.Clone(data)
	return nil
}

// Get returns an archived object, or nil when absent
func (s *Memory) Get(name string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bytes.Clone(s.objects[name])
}
