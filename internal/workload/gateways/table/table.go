// Package table exposes the workload registry as a read-only virtual table
// with the shape a database host expects: sequential scan from a reset
// position, positional reads by stable row index, and typed column reads.
package table

import (
	"errors"
	"fmt"
	"strings"

	"github.com/haukened/wlstats/internal/workload/common/log"
	"github.com/haukened/wlstats/internal/workload/domain"
)

// Name is the table name registered with the host.
const Name = "workload_instrumentation"

// WorkloadDisplayWidth is the declared width of the WORKLOAD column. Names
// are stored untruncated; the host may cut them when rendering.
const WorkloadDisplayWidth = 50

var (
	// ErrEndOfTable is returned by Handle.Next after the last populated row.
	ErrEndOfTable = errors.New("end of table")

	// ErrUnknownColumn is returned for a column index outside the schema.
	ErrUnknownColumn = errors.New("unknown column")

	// ErrColumnType is returned when a column is read with the wrong accessor.
	ErrColumnType = errors.New("column type mismatch")
)

// Column indexes, in schema order.
const (
	ColWorkload = iota
	ColCountQueries
	ColSumRowsExamined
	ColSumRowsSent
	ColSumRowsAffected
	ColSumDurationUS
	numColumns
)

type ColumnType int

const (
	TypeVarchar ColumnType = iota
	TypeUnsignedBigint
)

// Column describes one column of the table.
type Column struct {
	Name  string
	Type  ColumnType
	Width int // varchar only
}

var columns = [numColumns]Column{
	{Name: "WORKLOAD", Type: TypeVarchar, Width: WorkloadDisplayWidth},
	{Name: "COUNT_QUERIES", Type: TypeUnsignedBigint},
	{Name: "SUM_ROWS_EXAMINED", Type: TypeUnsignedBigint},
	{Name: "SUM_ROWS_SENT", Type: TypeUnsignedBigint},
	{Name: "SUM_ROWS_AFFECTED", Type: TypeUnsignedBigint},
	{Name: "SUM_DURATION_US", Type: TypeUnsignedBigint},
}

// Source is the registry read path the table is built on.
type Source interface {
	At(slot int) (domain.WorkloadStats, bool)
	Capacity() int
}

// Table is a read-only view over a Source.
type Table struct {
	source Source
	logger log.Logger
}

func New(source Source, logger log.Logger) *Table {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Table{source: source, logger: logger}
}

func (t *Table) Name() string { return Name }

// Columns returns the schema in column-index order.
func (t *Table) Columns() []Column {
	out := make([]Column, numColumns)
	copy(out, columns[:])
	return out
}

// Definition renders the schema as a column definition list.
func (t *Table) Definition() string {
	parts := make([]string, 0, numColumns)
	for _, c := range columns {
		switch c.Type {
		case TypeVarchar:
			parts = append(parts, fmt.Sprintf("`%s` varchar(%d)", c.Name, c.Width))
		default:
			parts = append(parts, fmt.Sprintf("`%s` BIGINT UNSIGNED", c.Name))
		}
	}
	return strings.Join(parts, ", ")
}

// RowCount reports the table's fixed capacity, not the number of populated
// rows. Hosts use it only as an estimate.
func (t *Table) RowCount() uint64 {
	return uint64(t.source.Capacity())
}

// DeleteAllRows is accepted and ignored; statistics are never truncated.
func (t *Table) DeleteAllRows() error {
	t.logger.Debug(map[string]any{"table": Name}, "ignoring truncate on read-only table")
	return nil
}

// Open returns a new scan handle positioned before the first row.
func (t *Table) Open() *Handle {
	return &Handle{source: t.source}
}
