package node

import lru "github.com/hashicorp/golang-lru"

// Memory is the bounded dedup filter in front of the Messenger: a
// message seen twice within the window is dropped, the oldest entry
// is evicted on overflow.
type Memory struct {
	cache *lru.Cache
}

// NewMemory returns a dedup window of the given size.
func NewMemory(size int) *Memory {
	cache, err := lru.New(size)
	if err != nil {
		panic(err) // only fails on size <= 0
	}
	return &Memory{cache: cache}
}

// Seen records the canonical hash of body and reports whether it was
// already in the window.
func (m *Memory) Seen(body []byte) bool {
	key := hashBody(body)
	if m.cache.Contains(key) {
		return true
	}
	m.cache.Add(key, struct{}{})
	return false
}
