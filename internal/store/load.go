package store

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/kemiz/fsgrid/internal/entity"
)

// ErrMalformedEntity is returned when an entity is nil or a field does
// not hold a value of its declared type.
var ErrMalformedEntity = errors.New("malformed entity")

// ErrStreamerClosed is returned by Add after Close or Abort.
var ErrStreamerClosed = errors.New("streamer closed")

// LoadStats reports the outcome of a completed load.
type LoadStats struct {
	Count   int           `json:"count"`
	Flushes int           `json:"flushes"`
	Elapsed time.Duration `json:"elapsed"`
}

// Streamer is the bulk write path of a Store. Entities are buffered and
// flushed in batches into a private draft; Close publishes the draft in
// one atomic step, Abort discards it.
//
// Only one Streamer per Store is open at a time: NewStreamer blocks until
// the previous one is closed or aborted.
type Streamer struct {
	s       *Store
	buf     []entity.Entity
	draft   []*partition
	cloned  []bool
	size    int
	count   int
	flushes int
	start   time.Time
	done    bool
}

// NewStreamer acquires the store's writer lock and starts a draft from
// the current snapshot. The caller must call Close or Abort.
func (s *Store) NewStreamer() *Streamer {
	s.writeMu.Lock()
	snap := s.current.Load()
	return &Streamer{
		s:      s,
		buf:    make([]entity.Entity, 0, s.opts.bufferSize),
		draft:  append([]*partition(nil), snap.parts...),
		cloned: make([]bool, len(snap.parts)),
		size:   snap.size,
		start:  time.Now(),
	}
}

// Add buffers e, flushing when the buffer is full. A malformed entity is
// rejected with ErrMalformedEntity and leaves the streamer usable; callers
// that need all-or-nothing semantics Abort on error.
func (w *Streamer) Add(e entity.Entity) error {
	if w.done {
		return ErrStreamerClosed
	}
	if e == nil {
		return fmt.Errorf("%w: nil entity", ErrMalformedEntity)
	}
	if err := w.s.schema.Check(e); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEntity, err)
	}

	w.buf = append(w.buf, e)
	w.count++
	if len(w.buf) >= w.s.opts.bufferSize {
		w.Flush()
	}
	return nil
}

// Flush moves buffered entities into the draft and updates its indexes.
// Flushed entities are not visible to readers until Close.
func (w *Streamer) Flush() {
	if w.done || len(w.buf) == 0 {
		return
	}
	n := len(w.draft)
	for _, e := range w.buf {
		i := partitionFor(e.ID(), n)
		if !w.cloned[i] {
			w.draft[i] = w.draft[i].clone()
			w.cloned[i] = true
		}
		if w.draft[i].put(e) {
			w.size++
		}
	}
	clear(w.buf)
	w.buf = w.buf[:0]
	w.flushes++
	w.s.stats.flushes.Add(1)
}

// Close flushes, publishes the draft and releases the writer lock.
func (w *Streamer) Close() (LoadStats, error) {
	if w.done {
		return LoadStats{}, ErrStreamerClosed
	}
	w.Flush()
	for i, p := range w.draft {
		if w.cloned[i] {
			p.seal()
		}
	}

	w.s.current.Store(&snapshot{parts: w.draft, size: w.size})
	w.done = true
	w.s.writeMu.Unlock()
	w.s.stats.loads.Add(1)

	stats := LoadStats{
		Count:   w.count,
		Flushes: w.flushes,
		Elapsed: time.Since(w.start),
	}
	w.s.opts.logger.Debug("load published",
		"schema", w.s.schema.Name,
		"count", stats.Count,
		"size", w.size,
		"flushes", stats.Flushes,
		"elapsed", stats.Elapsed)
	return stats, nil
}

// Abort discards the draft and releases the writer lock. Safe to call
// after Close.
func (w *Streamer) Abort() {
	if w.done {
		return
	}
	w.done = true
	w.buf = nil
	w.draft = nil
	w.s.writeMu.Unlock()
}

// Load streams every entity of seq into the store and publishes them in
// one step. Duplicate ids are last-write-wins. If any entity is malformed,
// ctx is cancelled or seq panics, nothing is published and the writer
// lock is released.
func (s *Store) Load(ctx context.Context, seq iter.Seq[entity.Entity]) (LoadStats, error) {
	w := s.NewStreamer()
	defer w.Abort()

	i := 0
	for e := range seq {
		if i%s.opts.bufferSize == 0 {
			if err := ctx.Err(); err != nil {
				return LoadStats{}, fmt.Errorf("load: %w", err)
			}
		}
		if err := w.Add(e); err != nil {
			return LoadStats{}, fmt.Errorf("load: entity %d: %w", i, err)
		}
		i++
	}
	return w.Close()
}
