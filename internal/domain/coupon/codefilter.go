package coupon

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// CodeFilter is a bloom-filter prefilter over known coupon codes. It lets the
// validator fail bogus codes without a database round trip. False positives
// fall through to the repository lookup, so correctness never depends on it.
type CodeFilter struct {
	mu     sync.RWMutex
	filter *bloom.BloomFilter
}

// NewCodeFilter creates a filter sized for the expected number of codes at
// the given false-positive rate.
func NewCodeFilter(expected uint, fpr float64) *CodeFilter {
	return &CodeFilter{filter: bloom.NewWithEstimates(expected, fpr)}
}

// Add records a (normalized) code as known.
func (f *CodeFilter) Add(code string) {
	f.mu.Lock()
	f.filter.AddString(code)
	f.mu.Unlock()
}

// MayContain reports whether the code might be known. A false return is
// definitive; a true return must still be verified against storage.
func (f *CodeFilter) MayContain(code string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.filter.TestString(code)
}
