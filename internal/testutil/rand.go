package testutil

import "math/rand/v2"

// Seed is the default seed of deterministic test data.
const Seed uint64 = 42

// Source returns a PCG source seeded from seed, so generated entities are
// identical across test runs.
func Source(seed uint64) rand.Source {
	return rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
}
