// Package autoscaler sizes worker pools from the shape of a dependency graph.
package autoscaler

import (
	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"
)

// AutoScaler computes the levels of a directed acyclic graph. The level of a vertex is the
// length of the longest path reaching it from a root.
type AutoScaler[K comparable, T any] struct {
	graph graph.Graph[K, T]
}

// New creates an autoscaler for g.
func New[K comparable, T any](g graph.Graph[K, T]) *AutoScaler[K, T] {
	return &AutoScaler[K, T]{graph: g}
}

// Levels returns the vertices grouped by level, roots first.
func (a *AutoScaler[K, T]) Levels() ([][]K, error) {
	order, err := graph.TopologicalSort(a.graph)
	if err != nil {
		return nil, errors.Wrap(err, "unable to sort graph")
	}

	predecessors, err := a.graph.PredecessorMap()
	if err != nil {
		return nil, errors.Wrap(err, "unable to get predecessors")
	}

	level := make(map[K]int, len(order))
	var levels [][]K

	for _, vertex := range order {
		lvl := 0
		for pred := range predecessors[vertex] {
			lvl = max(lvl, level[pred]+1)
		}

		level[vertex] = lvl
		for len(levels) <= lvl {
			levels = append(levels, nil)
		}
		levels[lvl] = append(levels[lvl], vertex)
	}

	return levels, nil
}

// Width returns the size of the widest level.
func (a *AutoScaler[K, T]) Width() (int, error) {
	levels, err := a.Levels()
	if err != nil {
		return 0, err
	}

	width := 0
	for _, lvl := range levels {
		width = max(width, len(lvl))
	}

	return width, nil
}

// Workers returns the widest level bounded by limit, and at least one.
func (a *AutoScaler[K, T]) Workers(limit int) (int, error) {
	width, err := a.Width()
	if err != nil {
		return 0, err
	}

	if limit > 0 {
		width = min(width, limit)
	}

	return max(width, 1), nil
}
