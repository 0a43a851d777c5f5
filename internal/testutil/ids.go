package testutil

import (
	"fmt"
	"sync/atomic"
)

// SequentialIDs generates predictable identifiers: "<prefix>-0001",
// "<prefix>-0002", and so on.
//
// The same sequence of calls produces the same identifiers, which enables
// golden trace comparison.
//
// Thread-safety: SequentialIDs is safe for concurrent use.
type SequentialIDs struct {
	prefix string
	n      atomic.Int64
}

// NewSequentialIDs creates a generator. An empty prefix means "id".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "id"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate returns the next identifier.
//
// Implements ids.Generator.
func (g *SequentialIDs) Generate() string {
	return fmt.Sprintf("%s-%04d", g.prefix, g.n.Add(1))
}

// Count returns how many identifiers have been generated.
func (g *SequentialIDs) Count() int64 {
	return g.n.Load()
}
