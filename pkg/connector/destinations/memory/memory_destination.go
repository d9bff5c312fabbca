// Package memory keeps partitions in process memory, for tests and dry runs.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/ajitpratap0/edsync/pkg/connector/core"
	"github.com/ajitpratap0/edsync/pkg/errors"
)

// Object is a stored partition.
type Object struct {
	Body []byte
	Opts core.PutOptions
	// Writes counts puts to the key, including the first
	Writes int
}

// Store is a concurrency-safe in-memory object store.
type Store struct {
	mu      sync.RWMutex
	objects map[string]*Object

	// FailOn makes Put fail for keys containing the substring
	FailOn string
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{objects: make(map[string]*Object)}
}

// Put stores a copy of body, replacing any previous object.
func (s *Store) Put(ctx context.Context, key string, body []byte, opts core.PutOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if key == "" {
		return "", errors.New(errors.ErrorTypeValidation, "object key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailOn != "" && strings.Contains(key, s.FailOn) {
		return "", errors.New(errors.ErrorTypeConnection, "injected write failure").WithDetail("key", key)
	}

	writes := 1
	if prev, ok := s.objects[key]; ok {
		writes = prev.Writes + 1
	}
	s.objects[key] = &Object{Body: append([]byte(nil), body...), Opts: opts, Writes: writes}
	return "mem://" + key, nil
}

// Get returns the object at key.
func (s *Store) Get(key string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return Object{}, false
	}
	return *obj, true
}

// Keys lists stored keys with the given prefix in lexical order.
func (s *Store) Keys(prefix string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Close is a no-op
func (s *Store) Close() error {
	return nil
}
