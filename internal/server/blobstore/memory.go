package blobstore

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"
)

type memoryObject struct {
	data        []byte
	contentType string
}

type memoryBucket struct {
	createdAt time.Time
	public    bool
	objects   map[string]memoryObject
}

// MemoryStore is an in-process BlobStore for tests and local runs without S3.
// Signed URLs use the memory:// scheme and are not resolvable.
type MemoryStore struct {
	mu      sync.RWMutex
	buckets map[string]*memoryBucket
	now     func() time.Time
}

func NewMemoryStore(buckets ...string) *MemoryStore {
	m := &MemoryStore{buckets: make(map[string]*memoryBucket), now: time.Now}
	for _, b := range buckets {
		m.buckets[b] = &memoryBucket{createdAt: m.now(), objects: make(map[string]memoryObject)}
	}
	return m
}

func (m *MemoryStore) Put(ctx context.Context, bucket, path string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[bucket]
	if !ok {
		return fmt.Errorf("bucket %s: %w", bucket, ErrBlobNotFound)
	}
	if _, exists := b.objects[path]; exists {
		return fmt.Errorf("%s/%s: %w", bucket, path, ErrBlobExists)
	}
	b.objects[path] = memoryObject{data: append([]byte(nil), data...), contentType: contentType}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, bucket, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.lookup(bucket, path)
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", bucket, path, ErrBlobNotFound)
	}
	return append([]byte(nil), obj.data...), nil
}

func (m *MemoryStore) Remove(ctx context.Context, bucket, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if b, ok := m.buckets[bucket]; ok {
		delete(b.objects, path)
	}
	return nil
}

func (m *MemoryStore) SignURL(ctx context.Context, bucket, path string, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.lookup(bucket, path); !ok {
		return "", fmt.Errorf("%s/%s: %w", bucket, path, ErrBlobNotFound)
	}
	u := url.URL{
		Scheme:   "memory",
		Host:     bucket,
		Path:     "/" + path,
		RawQuery: url.Values{"expires": {m.now().Add(ttl).UTC().Format(time.RFC3339)}}.Encode(),
	}
	return u.String(), nil
}

func (m *MemoryStore) ListBuckets(ctx context.Context) ([]Bucket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Bucket, 0, len(m.buckets))
	for name, b := range m.buckets {
		result = append(result, Bucket{Name: name, CreatedAt: b.createdAt})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *MemoryStore) CreateBucket(ctx context.Context, name string, public bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if b, ok := m.buckets[name]; ok {
		b.public = b.public || public
		return nil
	}
	m.buckets[name] = &memoryBucket{createdAt: m.now(), public: public, objects: make(map[string]memoryObject)}
	return nil
}

// Exists reports whether an object is stored at bucket/path.
func (m *MemoryStore) Exists(bucket, path string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.lookup(bucket, path)
	return ok
}

func (m *MemoryStore) lookup(bucket, path string) (memoryObject, bool) {
	b, ok := m.buckets[bucket]
	if !ok {
		return memoryObject{}, false
	}
	obj, ok := b.objects[path]
	return obj, ok
}
