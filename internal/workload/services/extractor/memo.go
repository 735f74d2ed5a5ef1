package extractor

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/haukened/wlstats/internal/workload/common/log"
)

// MaxMemoKeyLen bounds the query texts that are memoized. Longer texts are
// always extracted directly so the memo never pins large statements.
const MaxMemoKeyLen = 4096

// Memo caches extraction results keyed by query text.
type Memo interface {
	Get(query string) (string, bool)
	Put(query, workload string)
	Len() int
	Stats() (hits, misses uint64)
}

// Extractor runs Extract behind an optional memo.
type Extractor struct {
	memo   Memo
	logger log.Logger
}

// New returns an Extractor whose memo holds up to size query texts.
// size <= 0 disables memoization.
func New(size int, logger log.Logger) (*Extractor, error) {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	memo, err := newMemo(size)
	if err != nil {
		return nil, err
	}
	logger.Debug(map[string]any{"memo_size": size}, "workload extractor ready")
	return &Extractor{memo: memo, logger: logger}, nil
}

// Extract returns the workload tag of query, or "" when there is none.
func (e *Extractor) Extract(query string) string {
	if len(query) > MaxMemoKeyLen {
		return Extract(query)
	}
	if w, ok := e.memo.Get(query); ok {
		return w
	}
	w := Extract(query)
	e.memo.Put(query, w)
	return w
}

// MemoStats returns the memo's entry count and cumulative hit/miss counters.
func (e *Extractor) MemoStats() (size int, hits, misses uint64) {
	hits, misses = e.memo.Stats()
	return e.memo.Len(), hits, misses
}

func newMemo(size int) (Memo, error) {
	if size <= 0 {
		return disabledMemo{}, nil
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, err
	}
	return &lruMemo{lru: cache}, nil
}

// lruMemo is a Memo backed by a fixed-size LRU.
type lruMemo struct {
	lru    *lru.Cache[string, string]
	hits   atomic.Uint64
	misses atomic.Uint64
}

func (m *lruMemo) Get(query string) (string, bool) {
	if w, ok := m.lru.Get(query); ok {
		m.hits.Add(1)
		return w, true
	}
	m.misses.Add(1)
	return "", false
}

func (m *lruMemo) Put(query, workload string) { m.lru.Add(query, workload) }

func (m *lruMemo) Len() int { return m.lru.Len() }

func (m *lruMemo) Stats() (uint64, uint64) { return m.hits.Load(), m.misses.Load() }

// disabledMemo always misses and records nothing.
type disabledMemo struct{}

func (disabledMemo) Get(string) (string, bool) { return "", false }

func (disabledMemo) Put(string, string) {}

func (disabledMemo) Len() int { return 0 }

func (disabledMemo) Stats() (uint64, uint64) { return 0, 0 }

var _ Memo = (*lruMemo)(nil)
var _ Memo = disabledMemo{}
