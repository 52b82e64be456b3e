package pipeline

import (
	"sort"

	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"

	"github.com/askiada/go-loom/pkg/pipeline/model"
)

var shapes = map[model.StepKind]string{
	model.SourceStepKind:    "cylinder",
	model.TransformStepKind: "box",
	model.AggregateStepKind: "invhouse",
}

// Graph returns a fresh copy of the dependency graph. Edges go from a dependency to its dependent.
func (p *Pipeline) Graph() (graph.Graph[string, string], error) {
	return p.buildGraph(func(int) bool { return true })
}

func (p *Pipeline) buildGraph(keep func(idx int) bool) (graph.Graph[string, string], error) {
	g := graph.New(graph.StringHash, graph.Directed())

	for i, step := range p.steps {
		if !keep(i) {
			continue
		}

		err := g.AddVertex(step.Name, graph.VertexAttribute("shape", shapes[step.Kind]))
		if err != nil {
			return nil, errors.Wrapf(err, "unable to add step %s", step.Name)
		}
	}

	for i, step := range p.steps {
		if !keep(i) {
			continue
		}

		for _, dep := range p.deps[i] {
			if !keep(dep) {
				continue
			}

			err := g.AddEdge(p.steps[dep].Name, step.Name)
			if err != nil {
				return nil, errors.Wrapf(err, "unable to add edge from %s to %s", p.steps[dep].Name, step.Name)
			}
		}
	}

	return g, nil
}

// cycle returns the members of the cycle holding the first declared step Kahn's algorithm
// could not resolve, in declaration order.
func (p *Pipeline) cycle(indegree []int) ([]string, error) {
	g, err := p.buildGraph(func(idx int) bool { return indegree[idx] > 0 })
	if err != nil {
		return nil, err
	}

	components, err := graph.StronglyConnectedComponents(g)
	if err != nil {
		return nil, errors.Wrap(err, "unable to compute strongly connected components")
	}

	var members []int

	for _, component := range components {
		if len(component) < 2 {
			continue
		}

		idxs := make([]int, len(component))
		for i, name := range component {
			idxs[i] = p.index[name]
		}
		sort.Ints(idxs)

		if members == nil || idxs[0] < members[0] {
			members = idxs
		}
	}

	if members == nil {
		return nil, errors.New("no strongly connected component")
	}

	return p.names(members), nil
}
