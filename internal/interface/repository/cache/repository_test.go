package cache

import (
	"bytes"
	"testing"

	"forwardproxy/internal/domain"
)

func TestGetMissingKey(t *testing.T) {
	r := New(nil)

	if _, _, ok := r.Get("missing"); ok {
		t.Fatal("expected missing key to return false")
	}
}

func TestInsertThenGetRoundTrips(t *testing.T) {
	r := New(nil)
	data := []byte("hello world")

	r.Insert("a", data, len(data))

	got, size, ok := r.Get("a")
	if !ok {
		t.Fatalf("expected key 'a' to exist")
	}
	if size != len(data) {
		t.Errorf("size = %d, want %d", size, len(data))
	}
	if !bytes.Equal(got, data) {
		t.Errorf("data = %q, want %q", got, data)
	}
}

func TestGetReturnsACopyNotAnAlias(t *testing.T) {
	r := New(nil)
	data := []byte("hello world")
	r.Insert("a", data, len(data))

	got, _, _ := r.Get("a")
	got[0] = 'X'

	got2, _, _ := r.Get("a")
	if got2[0] != 'h' {
		t.Fatalf("mutating a returned copy affected the cache's stored data")
	}
}

func TestReinsertReplacesAndRefreshesRecency(t *testing.T) {
	r := New(nil)
	r.Insert("a", []byte("v1"), 2)
	r.Insert("b", []byte("xx"), 2)
	r.Insert("a", []byte("v2"), 2)

	if r.head != r.index["a"] {
		t.Fatalf("expected reinserted key 'a' to be most recently used")
	}

	got, _, ok := r.Get("a")
	if !ok || string(got) != "v2" {
		t.Fatalf("expected key 'a' to hold updated value, got %q ok=%v", got, ok)
	}

	if len(r.index) != 2 {
		t.Fatalf("expected 2 distinct keys after reinsert, got %d", len(r.index))
	}
}

func TestObjectLargerThanMaxObjectSizeIsNotCached(t *testing.T) {
	r := New(nil)
	data := make([]byte, domain.MaxObjectSize+1)

	r.Insert("huge", data, len(data))

	if _, _, ok := r.Get("huge"); ok {
		t.Fatal("expected an object over MaxObjectSize to never be cached")
	}
}

func TestNonPositiveSizeIsNotCached(t *testing.T) {
	r := New(nil)

	r.Insert("zero", []byte{}, 0)
	if _, _, ok := r.Get("zero"); ok {
		t.Fatal("expected size 0 to never be cached")
	}

	r.Insert("negative", []byte("x"), -1)
	if _, _, ok := r.Get("negative"); ok {
		t.Fatal("expected a negative size to never be cached")
	}

	if len(r.index) != 0 {
		t.Fatalf("expected no entries to have been stored, got %d", len(r.index))
	}
}

func TestEvictsLeastRecentlyUsedWhenOverBudget(t *testing.T) {
	r := New(nil)
	// MaxCacheSize holds roughly 10 objects of MaxObjectSize, so filling it
	// to capacity and then touching the oldest survivor before one more
	// insert reliably exercises eviction along the LRU order.
	objSize := domain.MaxObjectSize
	fillCount := domain.MaxCacheSize/objSize + 1

	keys := make([]string, fillCount)
	for i := 0; i < fillCount-1; i++ {
		key := "k" + string(rune('a'+i))
		keys[i] = key
		r.Insert(key, bytes.Repeat([]byte{byte(i)}, objSize), objSize)
	}

	oldest := keys[0]
	r.Get(oldest) // touch it so it isn't the least recently used anymore

	newest := "newest"
	r.Insert(newest, bytes.Repeat([]byte{'z'}, objSize), objSize)

	if _, _, ok := r.Get(oldest); !ok {
		t.Error("expected the touched entry to survive eviction")
	}
	if _, _, ok := r.Get(keys[1]); ok {
		t.Error("expected the untouched least recently used entry to be evicted")
	}
	if _, _, ok := r.Get(newest); !ok {
		t.Error("expected the newly inserted entry to be present")
	}
}

func TestTotalSizeNeverExceedsMaxCacheSize(t *testing.T) {
	r := New(nil)
	objSize := domain.MaxObjectSize / 4

	for i := 0; i < 20; i++ {
		key := string(rune('a' + i))
		r.Insert(key, bytes.Repeat([]byte{byte(i)}, objSize), objSize)
	}

	if r.currSize > domain.MaxCacheSize {
		t.Fatalf("cache size %d exceeds MaxCacheSize %d", r.currSize, domain.MaxCacheSize)
	}
}

func TestFreeSlotsAreReusedAfterEviction(t *testing.T) {
	r := New(nil)
	objSize := domain.MaxObjectSize
	fillCount := domain.MaxCacheSize/objSize + 1

	for i := 0; i < fillCount-1; i++ {
		key := "k" + string(rune('a'+i))
		r.Insert(key, bytes.Repeat([]byte{byte(i)}, objSize), objSize)
	}
	slabLenBeforeEviction := len(r.slab)

	// The cache is now full; one more insert must evict exactly one entry
	// to make room, and the freed slot should be reused rather than the
	// slab growing.
	r.Insert("newest", bytes.Repeat([]byte{'z'}, objSize), objSize)

	if got := len(r.slab); got != slabLenBeforeEviction {
		t.Fatalf("expected the freed slot to be reused instead of growing the slab, slab len went from %d to %d", slabLenBeforeEviction, got)
	}
}
