package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/haukened/wlstats/internal/workload/common/clock"
	"github.com/haukened/wlstats/internal/workload/common/log"
	"github.com/haukened/wlstats/internal/workload/domain"
)

// maxEventSize bounds a single JSON line, i.e. the longest query text accepted.
const maxEventSize = 1 << 20

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var errEventTooLong = fmt.Errorf("query event exceeds %d bytes", maxEventSize)

// queryEvent is one completed query as written by the host, one JSON object per line.
type queryEvent struct {
	Query        string `json:"query"`
	RowsExamined uint64 `json:"rows_examined"`
	RowsSent     uint64 `json:"rows_sent"`
	RowsAffected uint64 `json:"rows_affected"`
	StartMicros  int64  `json:"start_us"`
}

// completion converts the event; a missing start time means "just now".
func (e queryEvent) completion(now time.Time) domain.QueryCompletion {
	start := now
	if e.StartMicros > 0 {
		start = time.UnixMicro(e.StartMicros)
	}
	return domain.QueryCompletion{
		Text:         e.Query,
		RowsExamined: e.RowsExamined,
		RowsSent:     e.RowsSent,
		RowsAffected: e.RowsAffected,
		Start:        start,
	}
}

// recorder is the part of the aggregator the feed needs.
type recorder interface {
	RecordQuery(domain.QueryCompletion)
}

// feedGate forwards events to next until it is closed. Closing waits for
// in-flight events, so nothing reaches next afterwards.
type feedGate struct {
	mu     sync.RWMutex
	closed bool
	next   recorder
}

func newFeedGate(next recorder) *feedGate {
	return &feedGate{next: next}
}

func (g *feedGate) RecordQuery(q domain.QueryCompletion) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		return
	}
	g.next.RecordQuery(q)
}

func (g *feedGate) close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}

// consume reads newline-delimited query events from r until EOF or until ctx
// is done. Malformed and oversize lines are logged and skipped. It returns the
// number of events recorded.
func consume(ctx context.Context, r io.Reader, rec recorder, clk clock.Clock, logger log.Logger) (int, error) {
	br := bufio.NewReaderSize(r, maxEventSize)

	n, line := 0, 0
	for ctx.Err() == nil {
		raw, tooLong, err := readLine(br)
		if err != nil && !errors.Is(err, io.EOF) {
			return n, fmt.Errorf("reading query events: %w", err)
		}
		eof := err != nil
		if eof && len(raw) == 0 && !tooLong {
			return n, nil
		}
		line++

		switch {
		case tooLong:
			logger.Warn(map[string]any{
				"line":  line,
				"error": errEventTooLong,
			}, "skipping malformed query event")
		case len(raw) == 0:
		default:
			var ev queryEvent
			if err := json.Unmarshal(raw, &ev); err != nil {
				logger.Warn(map[string]any{
					"line":  line,
					"error": err,
				}, "skipping malformed query event")
				break
			}
			rec.RecordQuery(ev.completion(clk.Now()))
			n++
		}

		if eof {
			return n, nil
		}
	}
	return n, nil
}

// readLine returns the next line without its terminator. A line that does not
// fit the reader's buffer is consumed in full and reported as tooLong with no
// content. The returned slice is only valid until the next read.
func readLine(br *bufio.Reader) (line []byte, tooLong bool, err error) {
	line, err = br.ReadSlice('\n')
	for errors.Is(err, bufio.ErrBufferFull) {
		tooLong = true
		_, err = br.ReadSlice('\n')
	}
	if tooLong {
		return nil, true, err
	}
	return bytes.TrimRight(line, "\r\n"), false, err
}
