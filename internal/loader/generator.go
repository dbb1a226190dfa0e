package loader

import (
	"iter"
	"math/rand/v2"
	"time"

	"github.com/kemiz/fsgrid/internal/entity"
	"github.com/kemiz/fsgrid/internal/ir"
)

// Generator produces synthetic FSEntities. Ids come from a counter that
// starts at Start; country, currency and sector are uniform picks from
// the pools.
//
// A Generator is not safe for concurrent use.
type Generator struct {
	Pools Pools
	Start int64

	// SectorLabels stores the sector name instead of its id, for stores
	// using the v1 schema.
	SectorLabels bool

	rand *rand.Rand
	next int64
}

// NewGenerator returns a generator over p. A nil src seeds from the
// clock, so attribute values differ between runs.
func NewGenerator(p Pools, src rand.Source) *Generator {
	if src == nil {
		now := uint64(time.Now().UnixNano())
		src = rand.NewPCG(now, now>>17|now<<47)
	}
	return &Generator{Pools: p, rand: rand.New(src)}
}

// Seeded returns a deterministic source for --seed.
func Seeded(seed uint64) rand.Source {
	return rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
}

// Next returns the next entity.
func (g *Generator) Next() entity.FSEntity {
	id := g.Start + g.next
	g.next++

	country := g.Pools.Countries[g.rand.IntN(len(g.Pools.Countries))]
	currency := g.Pools.Currencies[g.rand.IntN(len(g.Pools.Currencies))]
	si := g.rand.IntN(len(g.Pools.Sectors))

	var sector ir.IRValue = ir.IRInt(si)
	if g.SectorLabels {
		sector = ir.IRString(g.Pools.Sectors[si])
	}
	return entity.NewFSEntity(id, country, currency, sector)
}

// Entities yields the next n entities.
func (g *Generator) Entities(n int) iter.Seq[entity.Entity] {
	return func(yield func(entity.Entity) bool) {
		for range n {
			if !yield(g.Next()) {
				return
			}
		}
	}
}

// Sectors returns the reference sectors; a sector's id is its position in
// the pool.
func (g *Generator) Sectors() []entity.Entity {
	out := make([]entity.Entity, len(g.Pools.Sectors))
	for i, name := range g.Pools.Sectors {
		out[i] = entity.NewSector(int64(i), name)
	}
	return out
}

// Currencies returns the reference currencies.
func (g *Generator) Currencies() []entity.Entity {
	out := make([]entity.Entity, len(g.Pools.Currencies))
	for i, code := range g.Pools.Currencies {
		out[i] = entity.NewCurrency(int64(i), code)
	}
	return out
}

// PickCountry returns a random country from the pool.
func (g *Generator) PickCountry() string {
	return g.Pools.Countries[g.rand.IntN(len(g.Pools.Countries))]
}

// PickCurrency returns a random currency from the pool.
func (g *Generator) PickCurrency() string {
	return g.Pools.Currencies[g.rand.IntN(len(g.Pools.Currencies))]
}
