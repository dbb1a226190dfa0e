// Package loader populates stores: it reads the reference data files,
// generates synthetic FSEntities and streams them into a backend with
// timing.
package loader

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"slices"

	"github.com/kemiz/fsgrid/internal/entity"
	"github.com/kemiz/fsgrid/internal/metrics"
	"github.com/kemiz/fsgrid/internal/sqlstore"
	"github.com/kemiz/fsgrid/internal/store"
)

// Store names of the default workload.
const (
	StoreEntities   = "fsentity"
	StoreSectors    = "sectors"
	StoreCurrencies = "currencies"
)

// DefaultCount is the number of entities a server loads by default.
const DefaultCount = 2000

// StoreSpec names a store and the schema it is created with.
type StoreSpec struct {
	Name   string
	Schema entity.Schema
}

// Stores returns the default store layout. With sectorLabels the entity
// store uses the v1 schema, where the sector is a label.
func Stores(sectorLabels bool) []StoreSpec {
	fs := entity.FSEntitySchema
	if sectorLabels {
		fs = entity.FSEntitySchemaV1
	}
	return []StoreSpec{
		{Name: StoreEntities, Schema: fs},
		{Name: StoreSectors, Schema: entity.SectorSchema},
		{Name: StoreCurrencies, Schema: entity.CurrencySchema},
	}
}

// SectorJoinField returns the sectors field an entity schema's sector
// column refers to: the label when sectors are stored by name, the id
// otherwise.
func SectorJoinField(s entity.Schema) string {
	if f, ok := s.Lookup("sector"); ok && f.Type == entity.TypeString {
		return "sector_name"
	}
	return entity.KeyField
}

// NewCatalog creates an in-memory store per spec. Reference stores get a
// single partition; they are small and only ever fully read.
func NewCatalog(specs []StoreSpec, opts ...store.Option) (*store.Catalog, error) {
	c := store.NewCatalog()
	for _, spec := range specs {
		o := opts
		if spec.Name != StoreEntities {
			o = append(slices.Clone(opts), store.WithPartitions(1))
		}
		s, err := store.New(spec.Schema, o...)
		if err != nil {
			return nil, fmt.Errorf("store %s: %w", spec.Name, err)
		}
		if err := c.Register(spec.Name, s); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// RegisterSQL creates a table per spec in a SQLite backend.
func RegisterSQL(ctx context.Context, db *sqlstore.Store, specs []StoreSpec) error {
	for _, spec := range specs {
		if err := db.Register(ctx, spec.Name, spec.Schema); err != nil {
			return err
		}
	}
	return nil
}

// Sink is a backend that accepts bulk loads by store name. Both
// *store.Catalog and *sqlstore.Store are sinks.
type Sink interface {
	Load(ctx context.Context, name string, seq iter.Seq[entity.Entity]) (store.LoadStats, error)
}

// Loader fills a Sink from a Generator.
type Loader struct {
	sink    Sink
	gen     *Generator
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the loader's logger.
func WithLogger(l *slog.Logger) Option {
	return func(ld *Loader) {
		if l != nil {
			ld.logger = l
		}
	}
}

// WithMetrics records load timings.
func WithMetrics(m *metrics.Metrics) Option {
	return func(ld *Loader) { ld.metrics = m }
}

// New creates a Loader.
func New(sink Sink, gen *Generator, opts ...Option) *Loader {
	ld := &Loader{
		sink:   sink,
		gen:    gen,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(ld)
	}
	return ld
}

// LoadReference fills the sectors and currencies stores.
func (ld *Loader) LoadReference(ctx context.Context) error {
	if _, err := ld.load(ctx, StoreSectors, slices.Values(ld.gen.Sectors())); err != nil {
		return err
	}
	_, err := ld.load(ctx, StoreCurrencies, slices.Values(ld.gen.Currencies()))
	return err
}

// LoadEntities streams n generated entities into the entity store.
func (ld *Loader) LoadEntities(ctx context.Context, n int) (store.LoadStats, error) {
	ld.logger.Info("loading entities", slog.Int("count", n))
	return ld.load(ctx, StoreEntities, ld.gen.Entities(n))
}

func (ld *Loader) load(ctx context.Context, name string, seq iter.Seq[entity.Entity]) (store.LoadStats, error) {
	stats, err := ld.sink.Load(ctx, name, seq)
	if err != nil {
		return store.LoadStats{}, fmt.Errorf("load %s: %w", name, err)
	}
	ld.metrics.ObserveLoad(name, stats.Count, stats.Elapsed)
	ld.logger.Info("store loaded",
		slog.String("store", name),
		slog.Int("count", stats.Count),
		slog.Int("flushes", stats.Flushes),
		slog.Duration("elapsed", stats.Elapsed))
	return stats, nil
}
