package registry

import (
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/wlstats/internal/workload/domain"
)

// recordingLogger captures error and warn messages for assertions.
type recordingLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *recordingLogger) Info(map[string]any, string)  {}
func (l *recordingLogger) Debug(map[string]any, string) {}
func (l *recordingLogger) Panic(map[string]any, string) {}
func (l *recordingLogger) Fatal(map[string]any, string) {}

func (l *recordingLogger) Error(_ map[string]any, msg string) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Warn(_ map[string]any, msg string) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func collect(r *Registry) []domain.WorkloadStats {
	return slices.Collect(r.Snapshot())
}

func find(t *testing.T, r *Registry, name string) domain.WorkloadStats {
	t.Helper()
	slot, ok := r.SlotOf(name)
	require.True(t, ok, "workload %q has no slot", name)
	rec, ok := r.At(slot)
	require.True(t, ok)
	return rec
}

func TestNew_ReservedSlots(t *testing.T) {
	r := New(nil)

	assert.Equal(t, 2, r.Len())
	assert.Equal(t, domain.Capacity, r.Capacity())

	got := collect(r)
	require.Len(t, got, 2)
	assert.Equal(t, domain.WorkloadStats{Name: domain.UnspecifiedWorkload}, got[0])
	assert.Equal(t, domain.WorkloadStats{Name: domain.OverflowWorkload}, got[1])

	slot, ok := r.SlotOf(domain.UnspecifiedWorkload)
	assert.True(t, ok)
	assert.Equal(t, domain.UnspecifiedSlot, slot)
	slot, ok = r.SlotOf(domain.OverflowWorkload)
	assert.True(t, ok)
	assert.Equal(t, domain.OverflowSlot, slot)
}

func TestResolveAndIncrement_EndToEnd(t *testing.T) {
	r := New(nil)

	r.ResolveAndIncrement("A", domain.QueryMetrics{RowsExamined: 2, RowsSent: 1, RowsAffected: 0, DurationMicros: 100})
	r.ResolveAndIncrement("A", domain.QueryMetrics{RowsExamined: 3, RowsSent: 1, RowsAffected: 1, DurationMicros: 200})

	var found []domain.WorkloadStats
	for rec := range r.Snapshot() {
		if rec.Name == "A" {
			found = append(found, rec)
		}
	}
	require.Len(t, found, 1)
	assert.Equal(t, domain.WorkloadStats{
		Name:           "A",
		QueryCount:     2,
		RowsExamined:   5,
		RowsSent:       2,
		RowsAffected:   1,
		DurationMicros: 300,
	}, found[0])
}

func TestResolveAndIncrement_Monotonic(t *testing.T) {
	r := New(nil)

	var want domain.WorkloadStats
	want.Name = "batch_job_1"
	prev := domain.WorkloadStats{}
	for i := uint64(0); i < 50; i++ {
		m := domain.QueryMetrics{RowsExamined: i, RowsSent: i % 3, RowsAffected: i % 2, DurationMicros: 10 * i}
		want.Apply(m)
		r.ResolveAndIncrement("batch_job_1", m)

		cur := find(t, r, "batch_job_1")
		assert.GreaterOrEqual(t, cur.QueryCount, prev.QueryCount)
		assert.GreaterOrEqual(t, cur.RowsExamined, prev.RowsExamined)
		assert.GreaterOrEqual(t, cur.RowsSent, prev.RowsSent)
		assert.GreaterOrEqual(t, cur.RowsAffected, prev.RowsAffected)
		assert.GreaterOrEqual(t, cur.DurationMicros, prev.DurationMicros)
		prev = cur
	}

	assert.Equal(t, want, find(t, r, "batch_job_1"))
	assert.Equal(t, uint64(50), want.QueryCount)
}

func TestResolveAndIncrement_Unspecified(t *testing.T) {
	r := New(nil)

	for i := 0; i < 10; i++ {
		r.ResolveAndIncrement("", domain.QueryMetrics{RowsExamined: 1})
	}

	assert.Equal(t, 2, r.Len(), "empty workload must never allocate a slot")
	rec, ok := r.At(domain.UnspecifiedSlot)
	require.True(t, ok)
	assert.Equal(t, uint64(10), rec.QueryCount)
	assert.Equal(t, uint64(10), rec.RowsExamined)

	_, ok = r.SlotOf("")
	assert.False(t, ok)
}

func TestResolveAndIncrement_ReservedNamesByTag(t *testing.T) {
	r := New(nil)

	r.ResolveAndIncrement(domain.OverflowWorkload, domain.QueryMetrics{})
	r.ResolveAndIncrement(domain.UnspecifiedWorkload, domain.QueryMetrics{})

	assert.Equal(t, 2, r.Len())
	over, _ := r.At(domain.OverflowSlot)
	unspec, _ := r.At(domain.UnspecifiedSlot)
	assert.Equal(t, uint64(1), over.QueryCount)
	assert.Equal(t, uint64(1), unspec.QueryCount)
}

func TestResolveAndIncrement_SlotStability(t *testing.T) {
	r := New(nil)

	names := []string{"api_endpoint_1", "batch_job_1", "report/daily", `svc\etl`}
	for _, n := range names {
		r.ResolveAndIncrement(n, domain.QueryMetrics{})
	}
	want := map[string]int{}
	for i, n := range names {
		slot, ok := r.SlotOf(n)
		require.True(t, ok)
		assert.Equal(t, domain.FirstUserSlot+i, slot, "slots follow first-seen order")
		want[n] = slot
	}

	for round := 0; round < 5; round++ {
		for i := len(names) - 1; i >= 0; i-- {
			r.ResolveAndIncrement(names[i], domain.QueryMetrics{})
		}
	}
	for n, slot := range want {
		got, ok := r.SlotOf(n)
		require.True(t, ok)
		assert.Equal(t, slot, got)
		rec, _ := r.At(slot)
		assert.Equal(t, n, rec.Name)
		assert.Equal(t, uint64(6), rec.QueryCount)
	}
}

func TestResolveAndIncrement_OverflowBoundary(t *testing.T) {
	logger := &recordingLogger{}
	r := New(logger)

	for i := 1; i <= domain.MaxWorkloads; i++ {
		r.ResolveAndIncrement(fmt.Sprintf("api_endpoint_%d", i), domain.QueryMetrics{RowsSent: 1})
	}
	assert.Equal(t, domain.Capacity, r.Len())
	assert.Len(t, logger.warns, 1, "table-full warning is logged once")

	seen := map[int]bool{}
	for i := 1; i <= domain.MaxWorkloads; i++ {
		slot, ok := r.SlotOf(fmt.Sprintf("api_endpoint_%d", i))
		require.True(t, ok)
		assert.False(t, seen[slot], "slot %d assigned twice", slot)
		seen[slot] = true
	}

	// Previously unseen names now fold into the overflow bucket.
	for i := domain.MaxWorkloads + 1; i <= domain.MaxWorkloads+9; i++ {
		name := fmt.Sprintf("api_endpoint_%d", i)
		r.ResolveAndIncrement(name, domain.QueryMetrics{RowsSent: 2})
		_, ok := r.SlotOf(name)
		assert.False(t, ok)
	}
	over, ok := r.At(domain.OverflowSlot)
	require.True(t, ok)
	assert.Equal(t, uint64(9), over.QueryCount)
	assert.Equal(t, uint64(18), over.RowsSent)
	assert.Equal(t, domain.Capacity, r.Len())

	// Known workloads keep accumulating in their own slots.
	r.ResolveAndIncrement("api_endpoint_1", domain.QueryMetrics{RowsSent: 5})
	r.ResolveAndIncrement(fmt.Sprintf("api_endpoint_%d", domain.MaxWorkloads), domain.QueryMetrics{RowsSent: 5})
	first := find(t, r, "api_endpoint_1")
	assert.Equal(t, uint64(2), first.QueryCount)
	assert.Equal(t, uint64(6), first.RowsSent)
	last := find(t, r, fmt.Sprintf("api_endpoint_%d", domain.MaxWorkloads))
	assert.Equal(t, uint64(2), last.QueryCount)

	// The reserved buckets never overflow.
	r.ResolveAndIncrement("", domain.QueryMetrics{})
	unspec, _ := r.At(domain.UnspecifiedSlot)
	assert.Equal(t, uint64(1), unspec.QueryCount)
	over, _ = r.At(domain.OverflowSlot)
	assert.Equal(t, uint64(9), over.QueryCount)

	assert.Len(t, collect(r), domain.Capacity)
}

func TestSnapshot_OrderAndCompleteness(t *testing.T) {
	r := New(nil)

	r.ResolveAndIncrement("c", domain.QueryMetrics{RowsExamined: 3})
	r.ResolveAndIncrement("", domain.QueryMetrics{})
	r.ResolveAndIncrement("a", domain.QueryMetrics{RowsExamined: 1})
	r.ResolveAndIncrement("b", domain.QueryMetrics{RowsExamined: 2})
	r.ResolveAndIncrement("c", domain.QueryMetrics{RowsExamined: 3})

	got := collect(r)
	names := make([]string, 0, len(got))
	for _, rec := range got {
		names = append(names, rec.Name)
	}
	assert.Equal(t, []string{domain.UnspecifiedWorkload, domain.OverflowWorkload, "c", "a", "b"}, names)
	assert.Equal(t, uint64(2), got[2].QueryCount)
	assert.Equal(t, uint64(6), got[2].RowsExamined)
	assert.Equal(t, uint64(1), got[0].QueryCount)
	assert.Zero(t, got[1].QueryCount)
}

func TestSnapshot_RestartableAndByValue(t *testing.T) {
	r := New(nil)
	r.ResolveAndIncrement("a", domain.QueryMetrics{RowsSent: 1})

	seq := r.Snapshot()
	first := slices.Collect(seq)

	r.ResolveAndIncrement("a", domain.QueryMetrics{RowsSent: 1})
	r.ResolveAndIncrement("b", domain.QueryMetrics{})

	assert.Len(t, first, 3, "earlier copies are unaffected by later writes")
	assert.Equal(t, uint64(1), first[2].QueryCount)

	second := slices.Collect(seq)
	require.Len(t, second, 4)
	assert.Equal(t, uint64(2), second[2].QueryCount)
	assert.Equal(t, "b", second[3].Name)
}

func TestSnapshot_EarlyBreak(t *testing.T) {
	r := New(nil)
	r.ResolveAndIncrement("a", domain.QueryMetrics{})

	n := 0
	for range r.Snapshot() {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestAt_OutOfRange(t *testing.T) {
	r := New(nil)

	for _, slot := range []int{-1, 2, domain.Capacity - 1, domain.Capacity, domain.Capacity + 10} {
		_, ok := r.At(slot)
		assert.False(t, ok, "slot %d", slot)
	}
}

func TestClose(t *testing.T) {
	logger := &recordingLogger{}
	r := New(logger)
	r.ResolveAndIncrement("a", domain.QueryMetrics{})

	require.NoError(t, r.Close())
	assert.ErrorIs(t, r.Close(), domain.ErrRegistryClosed)

	assert.NotPanics(t, func() {
		r.ResolveAndIncrement("a", domain.QueryMetrics{})
	})
	assert.Empty(t, collect(r))
	_, ok := r.At(0)
	assert.False(t, ok)
	_, ok = r.SlotOf("a")
	assert.False(t, ok)
	assert.Zero(t, r.Len())

	// one dropped update, one abandoned read pass, one failed positional read
	assert.Len(t, logger.errors, 3)
}

func TestResolveAndIncrement_Concurrent(t *testing.T) {
	r := New(nil)

	const (
		workers   = 16
		perWorker = 500
	)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				name := fmt.Sprintf("w%d", i%10)
				if i%7 == 0 {
					name = ""
				}
				r.ResolveAndIncrement(name, domain.QueryMetrics{RowsExamined: 1, DurationMicros: 2})
			}
		}(w)
	}

	// concurrent readers
	done := make(chan struct{})
	var readers sync.WaitGroup
	for i := 0; i < 4; i++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				for rec := range r.Snapshot() {
					assert.Equal(t, rec.QueryCount, rec.RowsExamined)
				}
			}
		}()
	}

	wg.Wait()
	close(done)
	readers.Wait()

	var total, rows, dur uint64
	for rec := range r.Snapshot() {
		total += rec.QueryCount
		rows += rec.RowsExamined
		dur += rec.DurationMicros
	}
	assert.Equal(t, uint64(workers*perWorker), total)
	assert.Equal(t, total, rows)
	assert.Equal(t, 2*total, dur)
	assert.Equal(t, 12, r.Len())
}
