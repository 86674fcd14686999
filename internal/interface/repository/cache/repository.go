package cache

import (
	"sync"

	"forwardproxy/internal/domain"
)

// Repository is an in-memory, byte-bounded LRU cache of upstream responses.
// It is structured as a slab of entries addressed by integer index rather
// than a pointer-linked list: prev/next pointers between heap-allocated
// nodes are awkward to share safely under Go's aliasing rules, so the slab
// plus a free list of reclaimed slots stands in for the doubly linked list
// the original design used. head is the most recently used index, tail the
// least; both are -1 when the cache is empty.
type Repository struct {
	mu sync.Mutex

	slab     []entry
	index    map[string]int
	free     []int
	head     int
	tail     int
	currSize int64

	metrics domain.MetricsCollector
}

var _ domain.CacheManager = (*Repository)(nil)

// New creates an empty Repository. metrics may be nil; when set, every
// mutation reports the cache's current byte usage and entry count through
// SetCacheUsage.
func New(metrics domain.MetricsCollector) *Repository {
	return &Repository{
		index:   make(map[string]int),
		head:    -1,
		tail:    -1,
		metrics: metrics,
	}
}

// Get returns a fresh copy of the cached data for key and promotes it to
// most-recently-used. The returned slice never aliases the cache's internal
// storage, so callers are free to write it to a socket without holding any
// lock on the cache.
func (r *Repository) Get(key string) ([]byte, int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, ok := r.index[key]
	if !ok {
		return nil, 0, false
	}

	r.moveToFront(idx)

	data := make([]byte, len(r.slab[idx].data))
	copy(data, r.slab[idx].data)
	return data, r.slab[idx].size, true
}

// Insert stores a copy of data under key as the most-recently-used entry,
// evicting least-recently-used entries until the cache fits within
// domain.MaxCacheSize. A non-positive size or one above domain.MaxObjectSize
// is silently ignored; the caller is responsible for not calling Insert with
// one, but Insert enforces the invariant either way. Re-inserting an
// existing key replaces its data and refreshes its recency.
func (r *Repository) Insert(key string, data []byte, size int) {
	if size <= 0 || size > domain.MaxObjectSize || size != len(data) {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if idx, ok := r.index[key]; ok {
		r.currSize -= int64(r.slab[idx].size)
		r.removeFromList(idx)
		delete(r.index, key)
		r.releaseSlot(idx)
	}

	for r.currSize+int64(size) > domain.MaxCacheSize && r.tail != -1 {
		r.evict(r.tail)
	}
	if r.currSize+int64(size) > domain.MaxCacheSize {
		// size itself exceeds the budget even with an empty cache; nothing to do.
		r.reportUsage()
		return
	}

	stored := make([]byte, size)
	copy(stored, data)

	idx := r.allocSlot()
	r.slab[idx] = entry{key: key, data: stored, size: size, prev: -1, next: -1}
	r.index[key] = idx
	r.pushFront(idx)
	r.currSize += int64(size)

	r.reportUsage()
}

func (r *Repository) reportUsage() {
	if r.metrics != nil {
		r.metrics.SetCacheUsage(r.currSize, int64(len(r.index)))
	}
}

// allocSlot returns an index into the slab for a new entry, reusing a freed
// slot when one is available instead of growing the slab.
func (r *Repository) allocSlot() int {
	if n := len(r.free); n > 0 {
		idx := r.free[n-1]
		r.free = r.free[:n-1]
		return idx
	}
	r.slab = append(r.slab, entry{})
	return len(r.slab) - 1
}

func (r *Repository) releaseSlot(idx int) {
	r.slab[idx] = entry{}
	r.free = append(r.free, idx)
}

func (r *Repository) evict(idx int) {
	r.currSize -= int64(r.slab[idx].size)
	delete(r.index, r.slab[idx].key)
	r.removeFromList(idx)
	r.releaseSlot(idx)
}

// pushFront links idx in as the new head of the recency list.
func (r *Repository) pushFront(idx int) {
	r.slab[idx].prev = -1
	r.slab[idx].next = r.head
	if r.head != -1 {
		r.slab[r.head].prev = idx
	}
	r.head = idx
	if r.tail == -1 {
		r.tail = idx
	}
}

// removeFromList unlinks idx from the recency list without touching its
// entry data or the index map.
func (r *Repository) removeFromList(idx int) {
	prev, next := r.slab[idx].prev, r.slab[idx].next

	if prev != -1 {
		r.slab[prev].next = next
	} else {
		r.head = next
	}
	if next != -1 {
		r.slab[next].prev = prev
	} else {
		r.tail = prev
	}
}

// moveToFront promotes idx to most-recently-used in place.
func (r *Repository) moveToFront(idx int) {
	if r.head == idx {
		return
	}
	r.removeFromList(idx)
	r.pushFront(idx)
}
