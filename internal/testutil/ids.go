package testutil

import (
	"fmt"
	"strings"
	"sync"
)

// SequentialIDs generates readable, ordered entity IDs for tests.
//
// IDs have the form "<entity>-<n>" with n zero-padded to four digits and
// counted per entity, so for each entity ID order equals save order:
//
//	employee-0001, employee-0002, issue-0001, ...
//
// This enables deterministic test execution and golden snapshot comparison.
// The same fixture with a fresh SequentialIDs produces identical databases.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SequentialIDs struct {
	mu   sync.Mutex
	next map[string]int
}

// NewSequentialIDs creates a generator whose first ID per entity ends in 0001.
func NewSequentialIDs() *SequentialIDs {
	return &SequentialIDs{next: map[string]int{}}
}

// NewID returns the next ID for entity.
//
// Implements store.IDGenerator and fixture.IDGenerator.
func (g *SequentialIDs) NewID(entity string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next[entity]++
	return fmt.Sprintf("%s-%04d", strings.ToLower(entity), g.next[entity])
}

// Reset restarts every counter.
func (g *SequentialIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next = map[string]int{}
}
