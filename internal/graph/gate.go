package graph

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var ErrNotReady = errors.New("dependencies not complete")

// Gate tracks which units have reported complete and refuses to release a
// unit until all of its dependencies have. Completion reports may arrive from
// concurrent provisioning callbacks.
type Gate struct {
	graph *Graph

	mu       sync.Mutex
	complete map[string]bool
}

func NewGate(g *Graph) *Gate {
	return &Gate{graph: g, complete: make(map[string]bool)}
}

// MarkComplete records that unit finished provisioning. A unit cannot be
// marked complete ahead of its own dependencies.
func (gt *Gate) MarkComplete(unit string) error {
	if err := gt.Check(unit); err != nil {
		return err
	}
	gt.mu.Lock()
	defer gt.mu.Unlock()
	gt.complete[unit] = true
	return nil
}

func (gt *Gate) IsComplete(unit string) bool {
	gt.mu.Lock()
	defer gt.mu.Unlock()
	return gt.complete[unit]
}

// Pending returns the dependencies of unit that are not complete yet.
func (gt *Gate) Pending(unit string) ([]string, error) {
	deps, err := gt.graph.Dependencies(unit)
	if err != nil {
		return nil, err
	}
	gt.mu.Lock()
	defer gt.mu.Unlock()
	var pending []string
	for _, d := range deps {
		if !gt.complete[d] {
			pending = append(pending, d)
		}
	}
	return pending, nil
}

// Check returns ErrNotReady when unit still has incomplete dependencies.
func (gt *Gate) Check(unit string) error {
	pending, err := gt.Pending(unit)
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		return fmt.Errorf("%w: %s waits on %s", ErrNotReady, unit, strings.Join(pending, ", "))
	}
	return nil
}

// Run executes fn only when unit is ready, then marks unit complete on
// success. A failed fn leaves unit incomplete so it can be re-run.
func (gt *Gate) Run(unit string, fn func() error) error {
	if err := gt.Check(unit); err != nil {
		return err
	}
	if err := fn(); err != nil {
		return err
	}
	return gt.MarkComplete(unit)
}
