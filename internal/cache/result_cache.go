package cache

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

const (
	DefaultTTL        = 5 * time.Minute
	DefaultMaxEntries = 5000

	// keyContentRunes bounds how much of the content feeds the key.
	keyContentRunes = 500
)

type Entry struct {
	Value     json.RawMessage
	CreatedAt time.Time
}

// ResultCache stores AI results keyed by a content fingerprint.
type ResultCache interface {
	Get(ctx context.Context, key string) (Entry, bool)
	Put(ctx context.Context, key string, value json.RawMessage)
	Sweep(ctx context.Context) int
}

// BuildKey fingerprints (owner, action, leading content). Identical content
// on different messages of the same owner maps to the same key.
func BuildKey(ownerID, action, content string) string {
	normalized := strings.TrimSpace(content)
	runes := []rune(normalized)
	if len(runes) > keyContentRunes {
		normalized = string(runes[:keyContentRunes])
	}
	joined := strings.Join([]string{
		strings.TrimSpace(ownerID),
		strings.ToLower(strings.TrimSpace(action)),
		normalized,
	}, "||")
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])
}

type Config struct {
	TTL        time.Duration
	MaxEntries int
	Now        func() time.Time
}

type memoryItem struct {
	key   string
	entry Entry
}

// Memory is a process-local cache with a TTL and an LRU size bound.
type Memory struct {
	mu         sync.Mutex
	items      map[string]*list.Element
	order      *list.List
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

func NewMemory(config Config) *Memory {
	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = DefaultMaxEntries
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Memory{
		items:      make(map[string]*list.Element),
		order:      list.New(),
		ttl:        config.TTL,
		maxEntries: config.MaxEntries,
		now:        config.Now,
	}
}

func (c *Memory) Get(_ context.Context, key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, ok := c.items[key]
	if !ok {
		return Entry{}, false
	}
	item := element.Value.(*memoryItem)
	if c.expired(item.entry) {
		c.removeElement(element)
		return Entry{}, false
	}
	c.order.MoveToFront(element)
	return cloneEntry(item.entry), true
}

func (c *Memory) Put(_ context.Context, key string, value json.RawMessage) {
	entry := Entry{
		Value:     append(json.RawMessage(nil), value...),
		CreatedAt: c.now(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if element, ok := c.items[key]; ok {
		element.Value.(*memoryItem).entry = entry
		c.order.MoveToFront(element)
		return
	}

	c.items[key] = c.order.PushFront(&memoryItem{key: key, entry: entry})
	for c.order.Len() > c.maxEntries {
		c.removeElement(c.order.Back())
	}
}

// Sweep drops every expired entry and returns how many were removed.
func (c *Memory) Sweep(_ context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for element := c.order.Back(); element != nil; {
		previous := element.Prev()
		if c.expired(element.Value.(*memoryItem).entry) {
			c.removeElement(element)
			removed++
		}
		element = previous
	}
	return removed
}

func (c *Memory) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *Memory) expired(entry Entry) bool {
	return c.now().Sub(entry.CreatedAt) > c.ttl
}

func (c *Memory) removeElement(element *list.Element) {
	if element == nil {
		return
	}
	item := element.Value.(*memoryItem)
	delete(c.items, item.key)
	c.order.Remove(element)
}

func cloneEntry(entry Entry) Entry {
	clone := entry
	clone.Value = append(json.RawMessage(nil), entry.Value...)
	return clone
}
