package table

import (
	"fmt"

	"github.com/haukened/wlstats/internal/workload/domain"
)

// Position is a stable row index. A workload's row never moves.
type Position int

// Handle is a cursor over the table. It is not safe for concurrent use;
// each reader opens its own.
type Handle struct {
	source Source
	pos    Position
	next   Position
	row    Row
}

// Next advances to the next populated row and loads it.
func (h *Handle) Next() error {
	h.pos = h.next
	rec, ok := h.source.At(int(h.pos))
	if !ok {
		return ErrEndOfTable
	}
	h.row = Row{stats: rec}
	h.next = h.pos + 1
	return nil
}

// SeekTo loads the row at p. An unassigned index leaves the current row as
// it was. Positional reads do not move the sequential scan.
func (h *Handle) SeekTo(p Position) {
	h.pos = p
	if rec, ok := h.source.At(int(p)); ok {
		h.row = Row{stats: rec}
	}
}

// Position returns the index of the current row.
func (h *Handle) Position() Position { return h.pos }

// Reset rewinds the scan to the first row.
func (h *Handle) Reset() {
	h.pos = 0
	h.next = 0
}

// Row returns the current row.
func (h *Handle) Row() Row { return h.row }

// Close releases the handle. It must not be used afterwards.
func (h *Handle) Close() {
	h.source = nil
	h.row = Row{}
}

// Row is a by-value copy of one workload's statistics.
type Row struct {
	stats domain.WorkloadStats
}

// Stats returns the underlying record.
func (r Row) Stats() domain.WorkloadStats { return r.stats }

// String reads a varchar column.
func (r Row) String(col int) (string, error) {
	switch col {
	case ColWorkload:
		return r.stats.Name, nil
	case ColCountQueries, ColSumRowsExamined, ColSumRowsSent, ColSumRowsAffected, ColSumDurationUS:
		return "", fmt.Errorf("%w: column %d is BIGINT UNSIGNED", ErrColumnType, col)
	default:
		return "", fmt.Errorf("%w: %d", ErrUnknownColumn, col)
	}
}

// Uint64 reads a BIGINT UNSIGNED column.
func (r Row) Uint64(col int) (uint64, error) {
	switch col {
	case ColCountQueries:
		return r.stats.QueryCount, nil
	case ColSumRowsExamined:
		return r.stats.RowsExamined, nil
	case ColSumRowsSent:
		return r.stats.RowsSent, nil
	case ColSumRowsAffected:
		return r.stats.RowsAffected, nil
	case ColSumDurationUS:
		return r.stats.DurationMicros, nil
	case ColWorkload:
		return 0, fmt.Errorf("%w: column %d is varchar", ErrColumnType, col)
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnknownColumn, col)
	}
}
