package coupons

import (
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
)

const (
	indexCapacity = 100_000
	indexFPR      = 0.001
)

// Index is a bloom filter over normalized coupon codes. A negative answer
// only holds for the snapshot the filter was built from; the service decides
// whether that snapshot is still current (see Service.Lookup).
type Index struct {
	mu         sync.RWMutex
	filter     *bloom.BloomFilter
	generation int64
	builtAt    time.Time
}

func NewIndex() *Index {
	return &Index{filter: bloom.NewWithEstimates(indexCapacity, indexFPR)}
}

// Load adds codes to the current filter without changing its snapshot.
func (i *Index) Load(codes []string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, code := range codes {
		i.filter.AddString(NormalizeCode(code))
	}
}

// Replace rebuilds the filter from codes and records the shared generation
// and time the snapshot was taken at.
func (i *Index) Replace(codes []string, generation int64, at time.Time) {
	filter := bloom.NewWithEstimates(indexCapacity, indexFPR)
	for _, code := range codes {
		filter.AddString(NormalizeCode(code))
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.filter = filter
	i.generation = generation
	i.builtAt = at
}

func (i *Index) Add(code string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.filter.AddString(NormalizeCode(code))
}

// MayContain reports false only when code was not in the snapshot. A nil
// index admits everything.
func (i *Index) MayContain(code string) bool {
	if i == nil {
		return true
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.filter.TestString(NormalizeCode(code))
}

// Current reports whether the snapshot was built at generation and is younger
// than maxAge at now. An index that was never replaced is never current.
func (i *Index) Current(generation int64, now time.Time, maxAge time.Duration) bool {
	if i == nil {
		return false
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.builtAt.IsZero() || i.generation != generation {
		return false
	}
	return maxAge <= 0 || now.Sub(i.builtAt) < maxAge
}
