// Package httpcache is an opt-in response cache for idempotent GET requests to
// the remote data service. Tool calls are POSTs and always bypass it.
package httpcache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

type entry struct {
	key      string
	status   int
	header   http.Header
	body     []byte
	etag     string
	storedAt time.Time
}

// Cache is a size-bounded LRU of GET responses.
type Cache struct {
	ttl        time.Duration
	maxEntries int

	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List // Front = most recent
}

func New(ttl time.Duration, maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = 64
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    map[string]*list.Element{},
		lru:        list.New(),
	}
}

func (c *Cache) get(key string) (entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return entry{}, false
	}
	c.lru.MoveToFront(el)
	return el.Value.(entry), true
}

func (c *Cache) put(key string, status int, header http.Header, body []byte, storedAt time.Time) entry {
	ent := entry{
		key:      key,
		status:   status,
		header:   header.Clone(),
		body:     append([]byte(nil), body...),
		etag:     strings.TrimSpace(header.Get("ETag")),
		storedAt: storedAt,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		el.Value = ent
		c.lru.MoveToFront(el)
		return ent
	}
	c.entries[key] = c.lru.PushFront(ent)

	for c.lru.Len() > c.maxEntries {
		back := c.lru.Back()
		delete(c.entries, back.Value.(entry).key)
		c.lru.Remove(back)
	}
	return ent
}

func (c *Cache) touch(key string, storedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		ent := el.Value.(entry)
		ent.storedAt = storedAt
		el.Value = ent
		c.lru.MoveToFront(el)
	}
}

// Len returns the number of cached responses.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func (c *Cache) fresh(ent entry, now time.Time) bool {
	return c.ttl > 0 && now.Sub(ent.storedAt) < c.ttl
}

// fingerprintHeaders hashes the named headers so that requests carrying
// different credentials never share an entry.
func fingerprintHeaders(h http.Header, keys []string) string {
	type kv struct {
		k string
		v string
	}
	pairs := make([]kv, 0, len(keys))
	for _, k := range keys {
		k = http.CanonicalHeaderKey(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		v := strings.TrimSpace(h.Get(k))
		if v == "" {
			continue
		}
		pairs = append(pairs, kv{k: k, v: v})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].k < pairs[j].k })

	sum := sha256.New()
	for _, p := range pairs {
		sum.Write([]byte(p.k))
		sum.Write([]byte{0})
		sum.Write([]byte(p.v))
		sum.Write([]byte{0})
	}
	return hex.EncodeToString(sum.Sum(nil))
}
