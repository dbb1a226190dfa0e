package store

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kemiz/fsgrid/internal/entity"
	"github.com/kemiz/fsgrid/internal/ir"
	"github.com/kemiz/fsgrid/internal/query"
)

func TestNewRejectsBadOptions(t *testing.T) {
	_, err := New(entity.FSEntitySchema, WithPartitions(0))
	assert.Error(t, err)

	_, err = New(entity.FSEntitySchema, WithBufferSize(-1))
	assert.Error(t, err)

	_, err = New(entity.Schema{Name: "broken"})
	assert.Error(t, err)
}

func TestLoadSizeEqualsCount(t *testing.T) {
	for _, n := range []int{0, 1, 511, 512, 513, 2000} {
		s := newTestStore(t, entity.FSEntitySchema)
		stats := loadAll(t, s, syntheticEntities(n, 1)...)

		assert.Equal(t, n, stats.Count)
		assert.Equal(t, n, s.Size())
	}
}

func TestLoadFlushesAtBufferThreshold(t *testing.T) {
	s := newTestStore(t, entity.FSEntitySchema, WithBufferSize(10))
	stats := loadAll(t, s, syntheticEntities(25, 1)...)

	assert.Equal(t, 3, stats.Flushes, "two full buffers plus the remainder on close")
	assert.Equal(t, uint64(3), s.Stats().Flushes)
	assert.Equal(t, uint64(1), s.Stats().Loads)
}

func TestLoadDuplicateIDLastWriteWins(t *testing.T) {
	s := newTestStore(t, entity.FSEntitySchema)
	loadAll(t, s,
		entity.NewFSEntity(1, "US", "USD", ir.IRInt(0)),
		entity.NewFSEntity(2, "US", "USD", ir.IRInt(0)),
		entity.NewFSEntity(1, "FR", "EUR", ir.IRInt(1)),
	)
	assert.Equal(t, 2, s.Size())

	// A later load replaces again; the old index entries must be gone.
	loadAll(t, s, entity.NewFSEntity(2, "GB", "GBP", ir.IRInt(2)))
	assert.Equal(t, 2, s.Size())

	us := collect(t)(s.Query(context.Background(), query.Request{
		Kind: query.KindFilter, Store: "fsentity",
		Filters: ir.IRObject{"issue_country": ir.IRString("US")},
	}))
	assert.Empty(t, us)

	fr := collect(t)(s.Query(context.Background(), query.Request{
		Kind: query.KindFilter, Store: "fsentity",
		Filters: ir.IRObject{"issue_country": ir.IRString("FR")},
	}))
	assert.Equal(t, []int64{1}, ids(t, fr))

	e, ok := s.Get(2)
	require.True(t, ok)
	assert.Equal(t, "GB", e.(entity.FSEntity).IssueCountry())
}

func TestLoadMalformedPublishesNothing(t *testing.T) {
	tests := []struct {
		name string
		bad  entity.Entity
	}{
		{"nil entity", nil},
		{"sector type mismatch", entity.NewFSEntity(99, "US", "USD", ir.IRInt(3))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t, entity.FSEntitySchemaV1, WithBufferSize(2))
			es := []entity.Entity{
				entity.NewFSEntity(1, "US", "USD", ir.IRString("Energy")),
				entity.NewFSEntity(2, "US", "USD", ir.IRString("Energy")),
				entity.NewFSEntity(3, "US", "USD", ir.IRString("Energy")),
				tt.bad,
			}

			_, err := s.Load(context.Background(), slices.Values(es))
			require.ErrorIs(t, err, ErrMalformedEntity)
			assert.Equal(t, 0, s.Size(), "a failed load must not publish flushed batches")

			// The writer lock was released.
			loadAll(t, s, es[:3]...)
			assert.Equal(t, 3, s.Size())
		})
	}
}

func TestLoadCancelledContext(t *testing.T) {
	s := newTestStore(t, entity.FSEntitySchema)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Load(ctx, slices.Values(syntheticEntities(10, 1)))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, s.Size())
}

func TestLoadPanickingSourceReleasesWriter(t *testing.T) {
	s := newTestStore(t, entity.FSEntitySchema, WithBufferSize(2))
	es := syntheticEntities(5, 1)
	failing := func(yield func(entity.Entity) bool) {
		for _, e := range es[:3] {
			if !yield(e) {
				return
			}
		}
		panic("source failed")
	}

	assert.PanicsWithValue(t, "source failed", func() {
		_, _ = s.Load(context.Background(), failing)
	})
	assert.Equal(t, 0, s.Size(), "nothing published")

	done := make(chan error, 1)
	go func() {
		_, err := s.Load(context.Background(), slices.Values(es))
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("writer lock still held")
	}
	assert.Equal(t, 5, s.Size())
}

func TestStreamerVisibility(t *testing.T) {
	s := newTestStore(t, entity.FSEntitySchema, WithBufferSize(1))
	w := s.NewStreamer()
	require.NoError(t, w.Add(entity.NewFSEntity(1, "US", "USD", ir.IRInt(0))))
	w.Flush()

	assert.Equal(t, 0, s.Size(), "flushed entities are not visible before Close")
	_, ok := s.Get(1)
	assert.False(t, ok)

	stats, err := w.Close()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Count)
	assert.Equal(t, 1, s.Size())

	assert.ErrorIs(t, w.Add(entity.NewFSEntity(2, "US", "USD", ir.IRInt(0))), ErrStreamerClosed)
	_, err = w.Close()
	assert.ErrorIs(t, err, ErrStreamerClosed)
	w.Abort()
}

func TestConcurrentLoadAndQuery(t *testing.T) {
	s := newTestStore(t, entity.FSEntitySchema, WithBufferSize(16))
	first := syntheticEntities(500, 1)
	loadAll(t, s, first...)

	second := make([]entity.Entity, 500)
	for i := range second {
		second[i] = entity.NewFSEntity(int64(500+i), "ZZ", "USD", ir.IRInt(0))
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := s.Load(context.Background(), slices.Values(second))
		assert.NoError(t, err)
	}()

	req := query.Request{Kind: query.KindFilter, Store: "fsentity",
		Filters: ir.IRObject{"issue_country": ir.IRString("ZZ")}}
	for range 50 {
		rows := collect(t)(s.Query(context.Background(), req))
		// A reader sees all of the second load or none of it.
		assert.Contains(t, []int{0, 500}, len(rows))

		n := 0
		for range s.Scan(64) {
			n++
		}
		assert.Contains(t, []int{500, 1000}, n)
	}
	wg.Wait()

	assert.Equal(t, 1000, s.Size())
}

func TestPartitionDistribution(t *testing.T) {
	s := newTestStore(t, entity.FSEntitySchema, WithPartitions(4))
	loadAll(t, s, syntheticEntities(1000, 3)...)

	stats := s.Stats()
	require.Len(t, stats.Partitions, 4)
	total := 0
	for _, n := range stats.Partitions {
		assert.Positive(t, n)
		total += n
	}
	assert.Equal(t, 1000, total)
	assert.Equal(t, 1000, stats.Entities)
}
