package store

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/kemiz/fsgrid/internal/entity"
)

const (
	// DefaultPartitions is the partition count used when none is given.
	DefaultPartitions = 8

	// DefaultBufferSize is the number of entities a Streamer buffers
	// before flushing them into its draft.
	DefaultBufferSize = 512
)

// Store is a partitioned, queryable in-memory entity collection.
//
// Readers never block: Scan and Query run against an immutable snapshot
// loaded from an atomic pointer. Writers (Streamers) are serialised by a
// single mutex, build a private draft and publish it atomically on Close.
// A query that started before a load completes keeps seeing the snapshot
// it started with.
type Store struct {
	schema entity.Schema
	opts   options

	writeMu sync.Mutex
	current atomic.Pointer[snapshot]

	stats counters
}

// snapshot is one published, immutable state of a Store.
type snapshot struct {
	parts []*partition
	size  int
}

// counters tracks operation counts with atomic updates.
type counters struct {
	loads   atomic.Uint64
	flushes atomic.Uint64
	queries atomic.Uint64
	scans   atomic.Uint64
}

// Stats is a point-in-time view of a Store.
type Stats struct {
	Entities   int    `json:"entities"`
	Partitions []int  `json:"partitions"` // entity count per partition
	Loads      uint64 `json:"loads"`
	Flushes    uint64 `json:"flushes"`
	Queries    uint64 `json:"queries"`
	Scans      uint64 `json:"scans"`
}

type options struct {
	partitions int
	bufferSize int
	logger     *slog.Logger
}

// Option configures a Store.
type Option func(*options)

// WithPartitions sets the number of hash partitions.
func WithPartitions(n int) Option {
	return func(o *options) {
		o.partitions = n
	}
}

// WithBufferSize sets the Streamer flush threshold.
func WithBufferSize(n int) Option {
	return func(o *options) {
		o.bufferSize = n
	}
}

// WithLogger sets the logger used for load diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// New creates an empty Store for schema. Indexes are built for the
// schema's indexed fields as entities are loaded.
func New(schema entity.Schema, opts ...Option) (*Store, error) {
	if err := schema.Validate(); err != nil {
		return nil, fmt.Errorf("new store: %w", err)
	}

	o := options{
		partitions: DefaultPartitions,
		bufferSize: DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.partitions <= 0 {
		return nil, fmt.Errorf("new store: partitions must be positive, got %d", o.partitions)
	}
	if o.bufferSize <= 0 {
		return nil, fmt.Errorf("new store: buffer size must be positive, got %d", o.bufferSize)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Store{schema: schema, opts: o}
	parts := make([]*partition, o.partitions)
	for i := range parts {
		parts[i] = newPartition(schema.Indexed())
	}
	s.current.Store(&snapshot{parts: parts})
	return s, nil
}

// Schema returns the descriptor the store was created with.
func (s *Store) Schema() entity.Schema {
	return s.schema
}

// Size returns the entity count as of the last completed load.
func (s *Store) Size() int {
	return s.current.Load().size
}

// Stats returns current counters and the per-partition distribution.
func (s *Store) Stats() Stats {
	snap := s.current.Load()
	dist := make([]int, len(snap.parts))
	for i, p := range snap.parts {
		dist[i] = len(p.entities)
	}
	return Stats{
		Entities:   snap.size,
		Partitions: dist,
		Loads:      s.stats.loads.Load(),
		Flushes:    s.stats.flushes.Load(),
		Queries:    s.stats.queries.Load(),
		Scans:      s.stats.scans.Load(),
	}
}

// Get returns the entity with the given id.
func (s *Store) Get(id int64) (entity.Entity, bool) {
	snap := s.current.Load()
	e, ok := snap.parts[partitionFor(id, len(snap.parts))].entities[id]
	return e, ok
}
