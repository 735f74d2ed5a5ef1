// Package registry keeps the per-workload running counters.
//
// The registry is a fixed-capacity arena of slots addressed by stable integer
// index plus a name→slot map. Slot 0 and slot 1 are the reserved
// __UNSPECIFIED__ and __OVERFLOW__ buckets; user workloads take slots 2 and up
// in first-seen order until the arena is full, after which previously unseen
// names are folded into the overflow bucket. Slots are never removed or
// reassigned.
//
// All writes hold the registry's lock exclusively for the whole
// resolve-and-increment step. Reads take the lock in shared mode once per
// slot, so a snapshot never blocks writers for a full pass and every element
// it yields is a consistent copy of one slot.
package registry

import (
	"iter"
	"sync"

	"github.com/haukened/wlstats/internal/workload/common/log"
	"github.com/haukened/wlstats/internal/workload/domain"
)

// Registry is the bounded workload → counters table.
type Registry struct {
	mu     sync.RWMutex
	slots  []domain.WorkloadStats // len(slots) is the next free slot
	index  map[string]int
	closed bool
	logger log.Logger
}

// New builds a registry with the reserved buckets pre-populated.
func New(logger log.Logger) *Registry {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	r := &Registry{
		slots:  make([]domain.WorkloadStats, 0, domain.Capacity),
		index:  make(map[string]int, domain.Capacity),
		logger: logger,
	}
	for _, name := range domain.ReservedWorkloads {
		r.allocate(name)
	}
	return r
}

// ResolveAndIncrement attributes one query's metrics to workloadName.
//
// An empty name is counted against the unspecified bucket. A name that has
// no slot yet gets the next free one; once none are left it is counted
// against the overflow bucket instead. Names that already own a slot keep it
// for the life of the registry.
//
// Failures are logged and the update is dropped; nothing is returned to the
// caller.
func (r *Registry) ResolveAndIncrement(workloadName string, m domain.QueryMetrics) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		r.logger.Error(map[string]any{
			"workload": workloadName,
			"error":    domain.ErrRegistryClosed,
		}, "failed to store query stats, skipping this query")
		return
	}

	slot := r.resolve(workloadName)
	r.slots[slot].Apply(m)
}

// resolve maps name to its slot, allocating one when allowed.
// Callers must hold r.mu exclusively.
func (r *Registry) resolve(name string) int {
	if name == "" {
		name = domain.UnspecifiedWorkload
	}
	if slot, ok := r.index[name]; ok {
		return slot
	}
	if len(r.slots) == domain.Capacity {
		return domain.OverflowSlot
	}
	slot := r.allocate(name)
	if slot == domain.Capacity-1 {
		r.logger.Warn(map[string]any{
			"capacity": domain.Capacity,
			"workload": name,
		}, "workload table is full, new workloads will be counted as overflow")
	}
	return slot
}

// allocate appends a zeroed record for name and records its slot.
func (r *Registry) allocate(name string) int {
	slot := len(r.slots)
	r.slots = append(r.slots, domain.WorkloadStats{Name: name})
	r.index[name] = slot
	return slot
}

// Snapshot returns the populated slots in ascending slot order, reserved
// buckets first. The sequence is lazy and may be ranged over any number of
// times; each element is a copy taken at the moment it is produced.
func (r *Registry) Snapshot() iter.Seq[domain.WorkloadStats] {
	return func(yield func(domain.WorkloadStats) bool) {
		for slot := 0; slot < domain.Capacity; slot++ {
			rec, ok, err := r.read(slot)
			if err != nil {
				r.logger.Error(map[string]any{
					"slot":  slot,
					"error": err,
				}, "failed to read workload stats, abandoning read pass")
				return
			}
			if !ok {
				return
			}
			if !yield(rec) {
				return
			}
		}
	}
}

// At returns a copy of the record held in slot, if that slot is assigned.
func (r *Registry) At(slot int) (domain.WorkloadStats, bool) {
	rec, ok, err := r.read(slot)
	if err != nil {
		r.logger.Error(map[string]any{
			"slot":  slot,
			"error": err,
		}, "failed to read workload stats")
		return domain.WorkloadStats{}, false
	}
	return rec, ok
}

func (r *Registry) read(slot int) (domain.WorkloadStats, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return domain.WorkloadStats{}, false, domain.ErrRegistryClosed
	}
	if slot < 0 || slot >= len(r.slots) {
		return domain.WorkloadStats{}, false, nil
	}
	return r.slots[slot], true, nil
}

// SlotOf reports the slot currently associated with name.
func (r *Registry) SlotOf(name string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	slot, ok := r.index[name]
	return slot, ok
}

// Len returns the number of assigned slots, reserved buckets included.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.slots)
}

// Capacity returns the fixed slot count.
func (r *Registry) Capacity() int {
	return domain.Capacity
}

// Close drops all statistics. Any later call is logged and ignored.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return domain.ErrRegistryClosed
	}
	r.closed = true
	r.slots = nil
	r.index = nil
	return nil
}
