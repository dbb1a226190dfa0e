package store

import (
	"iter"

	"github.com/kemiz/fsgrid/internal/entity"
	"github.com/kemiz/fsgrid/internal/query"
)

// Scan returns every entity, partitions in order and ids ascending within
// a partition. Entities are fetched pageSize at a time from the snapshot
// current when iteration starts, so a scan never observes a half-applied
// load. Each call to the returned sequence starts from the beginning.
func (s *Store) Scan(pageSize int) iter.Seq[entity.Entity] {
	if pageSize <= 0 {
		pageSize = query.DefaultPageSize
	}
	return func(yield func(entity.Entity) bool) {
		s.stats.scans.Add(1)
		snap := s.current.Load()
		for _, p := range snap.parts {
			for off := 0; off < len(p.ids); off += pageSize {
				page := p.ids[off:min(off+pageSize, len(p.ids))]
				for _, id := range page {
					if !yield(p.entities[id]) {
						return
					}
				}
			}
		}
	}
}

// Pages groups a scan into slices of at most pageSize entities.
func (s *Store) Pages(pageSize int) iter.Seq[[]entity.Entity] {
	if pageSize <= 0 {
		pageSize = query.DefaultPageSize
	}
	return func(yield func([]entity.Entity) bool) {
		page := make([]entity.Entity, 0, pageSize)
		for e := range s.Scan(pageSize) {
			page = append(page, e)
			if len(page) == pageSize {
				if !yield(page) {
					return
				}
				page = make([]entity.Entity, 0, pageSize)
			}
		}
		if len(page) > 0 {
			yield(page)
		}
	}
}
