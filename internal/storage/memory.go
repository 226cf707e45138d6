package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStorage is an in-process ObjectStore for tests and local runs without S3.
// FailDelete makes DeleteObject fail for chosen keys.
type MemoryStorage struct {
	mu       sync.Mutex
	baseURL  string
	objects  map[string]ObjectInfo
	failures map[string]error
	deletes  []string
}

func NewMemoryStorage(baseURL string) *MemoryStorage {
	return &MemoryStorage{
		baseURL:  strings.TrimRight(baseURL, "/"),
		objects:  map[string]ObjectInfo{},
		failures: map[string]error{},
	}
}

// Put registers an object as if it had been uploaded at modTime.
func (m *MemoryStorage) Put(key string, size int64, modTime time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = ObjectInfo{Key: key, Size: size, LastModified: modTime}
}

func (m *MemoryStorage) FailDelete(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[key] = err
}

// Has reports whether key is stored.
func (m *MemoryStorage) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

// Deletes returns every key DeleteObject was called with, in call order.
func (m *MemoryStorage) Deletes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deletes...)
}

func (m *MemoryStorage) DeleteObject(_ context.Context, key string) error {
	if key == "" {
		return ErrKeyRequired
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, key)
	if err := m.failures[key]; err != nil {
		return err
	}
	delete(m.objects, key)
	return nil
}

func (m *MemoryStorage) PresignPut(_ context.Context, key string, expires time.Duration) (string, error) {
	if key == "" {
		return "", ErrKeyRequired
	}
	return fmt.Sprintf("%s/%s?X-Amz-Expires=%d&X-Amz-Method=PUT", m.baseURL, key, int(expires.Seconds())), nil
}

func (m *MemoryStorage) PresignGet(_ context.Context, key string, expires time.Duration) (string, error) {
	if key == "" {
		return "", ErrKeyRequired
	}
	return fmt.Sprintf("%s/%s?X-Amz-Expires=%d", m.baseURL, key, int(expires.Seconds())), nil
}

func (m *MemoryStorage) ListObjects(_ context.Context, prefix string, fn func(ObjectInfo) error) error {
	m.mu.Lock()
	infos := make([]ObjectInfo, 0, len(m.objects))
	for k, o := range m.objects {
		if strings.HasPrefix(k, prefix) {
			infos = append(infos, o)
		}
	}
	m.mu.Unlock()
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	for _, o := range infos {
		if err := fn(o); err != nil {
			return err
		}
	}
	return nil
}
