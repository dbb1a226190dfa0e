package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs hands out run ids "run-0001", "run-0002", ... for tests
// that compare output against golden files.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SequentialIDs struct {
	mu  sync.Mutex
	seq int
}

// NewSequentialIDs creates a generator whose first id is "run-0001".
func NewSequentialIDs() *SequentialIDs {
	return &SequentialIDs{}
}

// Next returns the next id.
func (g *SequentialIDs) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("run-%04d", g.seq)
}

// Reset restarts the sequence at "run-0001".
func (g *SequentialIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}

// FixedID returns a generator that always yields id.
// If id is empty, it yields "test-run".
func FixedID(id string) func() string {
	if id == "" {
		id = "test-run"
	}
	return func() string { return id }
}
