package tokenizer

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zeebo/xxh3"
)

// DefaultCacheSize bounds the number of distinct texts remembered by a CachedCounter.
const DefaultCacheSize = 4096

// CachedCounter remembers counts by the xxh3 hash of the counted text.
// It is safe for concurrent use when the wrapped Counter is.
type CachedCounter struct {
	counter Counter
	cache   *lru.Cache[uint64, int]
}

// NewCachedCounter wraps counter with an LRU cache holding up to size entries.
func NewCachedCounter(counter Counter, size int) (*CachedCounter, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[uint64, int](size)
	if err != nil {
		return nil, fmt.Errorf("create token cache: %w", err)
	}
	return &CachedCounter{counter: counter, cache: cache}, nil
}

func (cached *CachedCounter) Name() string {
	return cached.counter.Name()
}

func (cached *CachedCounter) CountString(input string) (int, error) {
	key := xxh3.HashString(input)
	if tokens, found := cached.cache.Get(key); found {
		return tokens, nil
	}
	tokens, err := cached.counter.CountString(input)
	if err != nil {
		return 0, err
	}
	cached.cache.Add(key, tokens)
	return tokens, nil
}

// Len reports how many counts are cached.
func (cached *CachedCounter) Len() int {
	return cached.cache.Len()
}
