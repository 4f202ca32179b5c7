// Package storage keeps rendered report artifacts and stored report payloads.
package storage

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	ErrNotFound   = errors.New("artifact not found")
	ErrEmptyKey   = errors.New("artifact key is required")
	ErrInvalidKey = errors.New("artifact key is invalid")
)

type Object struct {
	Key         string
	ContentType string
	Body        []byte
	UpdatedAt   time.Time
}

// ArtifactStore persists artifacts by key. Put overwrites existing keys.
type ArtifactStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Get(ctx context.Context, key string) (Object, error)
	Delete(ctx context.Context, key string) error
}

type Memory struct {
	mu      sync.RWMutex
	objects map[string]Object
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		objects: make(map[string]Object),
		now:     time.Now,
	}
}

func (m *Memory) Put(_ context.Context, key string, body []byte, contentType string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	stored := make([]byte, len(body))
	copy(stored, body)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = Object{Key: key, ContentType: contentType, Body: stored, UpdatedAt: m.now().UTC()}
	return nil
}

func (m *Memory) Get(_ context.Context, key string) (Object, error) {
	if err := validateKey(key); err != nil {
		return Object{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	object, ok := m.objects[key]
	if !ok {
		return Object{}, ErrNotFound
	}
	body := make([]byte, len(object.Body))
	copy(body, object.Body)
	object.Body = body
	return object, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.objects[key]; !ok {
		return ErrNotFound
	}
	delete(m.objects, key)
	return nil
}

// Keys lists stored keys with the given prefix in lexical order.
func (m *Memory) Keys(prefix string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.objects))
	for key := range m.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	if strings.Contains(key, "..") || strings.HasPrefix(key, "/") {
		return ErrInvalidKey
	}
	return nil
}
