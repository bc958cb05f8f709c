// Package graph models the provisioning plan as a directed acyclic graph of
// units. A unit may only depend on units declared before it, so declaration
// order is always a valid creation order.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrUnknownUnit   = errors.New("unknown unit")
	ErrDuplicateUnit = errors.New("duplicate unit")
	ErrForwardEdge   = errors.New("dependency declared after dependent")
	ErrSelfEdge      = errors.New("unit cannot depend on itself")
)

// Graph is not safe for concurrent mutation. It is built in a single pass
// during stack assembly.
type Graph struct {
	index map[string]int
	units []string
	deps  map[string]map[string]struct{}
}

func New() *Graph {
	return &Graph{
		index: make(map[string]int),
		deps:  make(map[string]map[string]struct{}),
	}
}

// AddUnit declares a unit. Units must be added leaves first.
func (g *Graph) AddUnit(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("unit name must not be empty")
	}
	if _, ok := g.index[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateUnit, name)
	}
	g.index[name] = len(g.units)
	g.units = append(g.units, name)
	g.deps[name] = make(map[string]struct{})
	return nil
}

// AddEdge records that unit must be created after dependsOn. It returns false
// when the edge already existed; repeating an edge is a no-op.
func (g *Graph) AddEdge(unit, dependsOn string) (bool, error) {
	ui, ok := g.index[unit]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownUnit, unit)
	}
	di, ok := g.index[dependsOn]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownUnit, dependsOn)
	}
	if ui == di {
		return false, fmt.Errorf("%w: %s", ErrSelfEdge, unit)
	}
	if di > ui {
		return false, fmt.Errorf("%w: %s -> %s", ErrForwardEdge, unit, dependsOn)
	}
	if _, exists := g.deps[unit][dependsOn]; exists {
		return false, nil
	}
	g.deps[unit][dependsOn] = struct{}{}
	return true, nil
}

func (g *Graph) Has(name string) bool {
	_, ok := g.index[name]
	return ok
}

// Units returns the units in declaration order.
func (g *Graph) Units() []string {
	out := make([]string, len(g.units))
	copy(out, g.units)
	return out
}

// Dependencies returns the direct dependencies of unit in declaration order.
func (g *Graph) Dependencies(unit string) ([]string, error) {
	deps, ok := g.deps[unit]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUnit, unit)
	}
	out := make([]string, 0, len(deps))
	for d := range deps {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return g.index[out[i]] < g.index[out[j]] })
	return out, nil
}

// EdgeCount is the number of distinct dependency edges.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, d := range g.deps {
		n += len(d)
	}
	return n
}

// Waves groups units into creation waves: every unit in a wave depends only on
// units of earlier waves, so each wave can be created in parallel.
func (g *Graph) Waves() [][]string {
	level := make(map[string]int, len(g.units))
	var waves [][]string
	for _, u := range g.units {
		l := 0
		for d := range g.deps[u] {
			if level[d]+1 > l {
				l = level[d] + 1
			}
		}
		level[u] = l
		for len(waves) <= l {
			waves = append(waves, nil)
		}
		waves[l] = append(waves[l], u)
	}
	return waves
}

// String renders the graph as "unit <- dep, dep" lines in declaration order.
func (g *Graph) String() string {
	var b strings.Builder
	for _, u := range g.units {
		deps, _ := g.Dependencies(u)
		b.WriteString(u)
		if len(deps) > 0 {
			b.WriteString(" <- ")
			b.WriteString(strings.Join(deps, ", "))
		}
		b.WriteByte('\n')
	}
	return b.String()
}
