package gatewaytest

import (
	"context"
	"sync"
)

// Blob is an in-memory gateway.Blob.
type Blob struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	err     error
}

// NewBlob returns an empty blob store.
func NewBlob() *Blob {
	return &Blob{objects: make(map[string][]byte), types: make(map[string]string)}
}

// Fail makes every upload fail with err until cleared with nil.
func (b *Blob) Fail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.err = err
}

func (b *Blob) Upload(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return "", b.err
	}
	b.objects[bucket+"/"+key] = append([]byte(nil), data...)
	b.types[bucket+"/"+key] = contentType
	return key, nil
}

// Object returns a stored object and its content type.
func (b *Blob) Object(bucket, key string) ([]byte, string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[bucket+"/"+key]
	return data, b.types[bucket+"/"+key], ok
}

// Keys lists stored objects as bucket/key.
func (b *Blob) Keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.objects))
	for k := range b.objects {
		out = append(out, k)
	}
	return out
}
