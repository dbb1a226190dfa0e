package store

import (
	"encoding/binary"
	"hash/fnv"
	"maps"
	"slices"

	"github.com/kemiz/fsgrid/internal/entity"
	"github.com/kemiz/fsgrid/internal/ir"
)

// postings maps a type-tagged value key to the ids holding that value.
type postings map[string]map[int64]struct{}

// partition owns the entities whose id hashes to it, plus one equality
// index per indexed field. A published partition is never mutated;
// writers clone it first.
type partition struct {
	entities map[int64]entity.Entity
	ids      []int64 // sorted ascending once published
	indexes  map[string]postings
	sorted   bool
}

func newPartition(indexed []entity.Field) *partition {
	p := &partition{
		entities: make(map[int64]entity.Entity),
		indexes:  make(map[string]postings, len(indexed)),
		sorted:   true,
	}
	for _, f := range indexed {
		p.indexes[f.Name] = make(postings)
	}
	return p
}

// partitionFor routes an id to a partition using fnv-32a, the same
// scheme a shard uses to decide key ownership.
func partitionFor(id int64, n int) int {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(id))
	h := fnv.New32a()
	h.Write(buf[:])
	return int(h.Sum32() % uint32(n))
}

// clone returns a deep copy that can be mutated without affecting readers
// of p.
func (p *partition) clone() *partition {
	c := &partition{
		entities: maps.Clone(p.entities),
		ids:      slices.Clone(p.ids),
		indexes:  make(map[string]postings, len(p.indexes)),
		sorted:   p.sorted,
	}
	if c.entities == nil {
		c.entities = make(map[int64]entity.Entity)
	}
	for field, idx := range p.indexes {
		cp := make(postings, len(idx))
		for key, ids := range idx {
			cp[key] = maps.Clone(ids)
		}
		c.indexes[field] = cp
	}
	return c
}

// put inserts or replaces e. Index entries of a replaced entity are
// removed before the new ones are added, so a re-loaded id never
// matches its old values. Returns true if the id is new.
func (p *partition) put(e entity.Entity) bool {
	id := e.ID()
	old, exists := p.entities[id]
	if exists {
		for field, idx := range p.indexes {
			idx.remove(fieldKey(old, field), id)
		}
	}

	p.entities[id] = e
	for field, idx := range p.indexes {
		idx.add(fieldKey(e, field), id)
	}

	if !exists {
		p.ids = append(p.ids, id)
		p.sorted = false
	}
	return !exists
}

// seal restores the sorted-id invariant before publication.
func (p *partition) seal() {
	if !p.sorted {
		slices.Sort(p.ids)
		p.sorted = true
	}
}

// lookup returns the ids whose field holds the value with the given key.
// The returned set must not be modified.
func (p *partition) lookup(field, key string) map[int64]struct{} {
	return p.indexes[field][key]
}

func (idx postings) add(key string, id int64) {
	ids, ok := idx[key]
	if !ok {
		ids = make(map[int64]struct{})
		idx[key] = ids
	}
	ids[id] = struct{}{}
}

func (idx postings) remove(key string, id int64) {
	ids, ok := idx[key]
	if !ok {
		return
	}
	delete(ids, id)
	if len(ids) == 0 {
		delete(idx, key)
	}
}

// fieldKey returns the index key of e's field value. Missing fields index
// as null.
func fieldKey(e entity.Entity, field string) string {
	v, ok := e.Get(field)
	if !ok {
		return ir.Key(ir.IRNull{})
	}
	return ir.Key(v)
}
