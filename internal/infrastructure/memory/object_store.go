package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"fintrack/internal/domain/receipt"
)

type object struct {
	data        []byte
	contentType string
}

// ObjectStore keeps receipt payloads in process memory. References are
// BaseURL joined with the key, so the API can serve them back in development.
type ObjectStore struct {
	baseURL string

	mu      sync.RWMutex
	objects map[string]object
}

var _ receipt.ObjectStore = (*ObjectStore)(nil)

func NewObjectStore(baseURL string) *ObjectStore {
	return &ObjectStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		objects: make(map[string]object),
	}
}

func (s *ObjectStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, body)
	if err != nil {
		return "", fmt.Errorf("failed to read receipt body: %w", err)
	}
	if n != size {
		return "", fmt.Errorf("receipt body is %d bytes, expected %d", n, size)
	}

	s.mu.Lock()
	s.objects[key] = object{data: buf.Bytes(), contentType: contentType}
	s.mu.Unlock()

	if s.baseURL == "" {
		return "memory://" + key, nil
	}
	return s.baseURL + "/" + key, nil
}

// Open returns a stored payload and its content type.
func (s *ObjectStore) Open(key string) ([]byte, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[key]
	if !ok {
		return nil, "", false
	}
	return obj.data, obj.contentType, true
}
