package pipeline

import (
	"slices"
	"time"

	"github.com/pkg/errors"

	"github.com/askiada/go-loom/internal/autoscaler"
	"github.com/askiada/go-loom/pkg/pipeline/model"
)

// Pipeline is a validated, immutable pipeline. Steps are addressed by their declaration index.
type Pipeline struct {
	name     string
	settings model.Settings
	steps    []model.StepInfo
	ops      []model.Operation
	index    map[string]int

	deps       [][]int
	dependents [][]int
	// order is the topological order, position the rank of every step in it.
	order     []int
	position  []int
	terminals []int
	// width is the size of the widest level of the graph.
	width int
}

// Load validates spec and resolves the operation of every step.
//
// The first violation found in declaration order is returned as a *ValidationError.
func Load(spec model.Spec, r Resolver) (*Pipeline, error) {
	if r == nil {
		return nil, ErrResolverMustBeSet
	}

	if len(spec.Steps) == 0 {
		return nil, invalid("", ErrEmptyPipeline)
	}

	if err := validateSettings(spec.Settings); err != nil {
		return nil, err
	}

	p := &Pipeline{
		name:       spec.Name,
		settings:   spec.Settings,
		steps:      make([]model.StepInfo, len(spec.Steps)),
		index:      make(map[string]int, len(spec.Steps)),
		deps:       make([][]int, len(spec.Steps)),
		dependents: make([][]int, len(spec.Steps)),
	}

	if p.settings.Mode == "" {
		p.settings.Mode = model.SequentialMode
	}

	for i, step := range spec.Steps {
		if err := validateStep(step); err != nil {
			return nil, err
		}

		if _, ok := p.index[step.Name]; ok {
			return nil, invalid(step.Name, ErrDuplicateStep)
		}

		p.index[step.Name] = i
		p.steps[i] = cloneStep(step)
	}

	if err := p.link(); err != nil {
		return nil, err
	}

	if err := p.sort(); err != nil {
		return nil, err
	}

	for i := range p.steps {
		if len(p.dependents[i]) == 0 {
			p.terminals = append(p.terminals, i)
		}
	}

	if len(p.terminals) == 0 {
		return nil, invalid("", ErrNoTerminal)
	}

	g, err := p.Graph()
	if err != nil {
		return nil, err
	}

	p.width, err = autoscaler.New(g).Width()
	if err != nil {
		return nil, errors.Wrap(err, "unable to compute graph width")
	}

	p.ops = make([]model.Operation, len(p.steps))
	for i, step := range p.steps {
		op, err := r.Resolve(step)
		if err != nil {
			return nil, invalid(step.Name, errors.Wrap(ErrUnknownOperation, err.Error()))
		}

		p.ops[i] = op
	}

	return p, nil
}

func validateSettings(s model.Settings) error {
	switch {
	case s.Mode != "" && s.Mode != model.SequentialMode && s.Mode != model.ParallelMode:
		return invalid("", errors.Wrapf(ErrInvalidSettings, "unknown mode %q", s.Mode))
	case s.Workers < 0:
		return invalid("", errors.Wrap(ErrInvalidSettings, "workers must not be negative"))
	case s.DefaultTTL < 0:
		return invalid("", errors.Wrap(ErrInvalidSettings, "default ttl must not be negative"))
	case s.RunTimeout < 0:
		return invalid("", errors.Wrap(ErrInvalidSettings, "run timeout must not be negative"))
	}

	return nil
}

func validateStep(step model.StepInfo) error {
	switch {
	case step.Name == "":
		return invalid("", errors.Wrap(ErrInvalidStep, "name must be set"))
	case !step.Kind.Valid():
		return invalid(step.Name, errors.Wrapf(ErrInvalidStep, "unknown kind %q", step.Kind))
	case step.Operation == "":
		return invalid(step.Name, errors.Wrap(ErrInvalidStep, "operation must be set"))
	case step.Timeout < 0:
		return invalid(step.Name, errors.Wrap(ErrInvalidStep, "timeout must not be negative"))
	case step.Cache.TTL < 0:
		return invalid(step.Name, errors.Wrap(ErrInvalidStep, "cache ttl must not be negative"))
	case step.Kind != model.SourceStepKind && len(step.DependsOn) == 0:
		return invalid(step.Name, ErrMissingDependency)
	}

	return nil
}

func cloneStep(step model.StepInfo) model.StepInfo {
	step.DependsOn = slices.Clone(step.DependsOn)
	if step.Params != nil {
		params := make(map[string]any, len(step.Params))
		for k, v := range step.Params {
			params[k] = v
		}
		step.Params = params
	}

	return step
}

func (p *Pipeline) link() error {
	for i, step := range p.steps {
		seen := make(map[int]struct{}, len(step.DependsOn))

		for _, name := range step.DependsOn {
			dep, ok := p.index[name]
			if !ok {
				return invalid(step.Name, errors.Wrapf(ErrUnknownDependency, "%q", name))
			}

			if dep == i {
				return &ValidationError{Step: step.Name, Cycle: []string{step.Name}, Err: ErrCycle}
			}

			if _, ok := seen[dep]; ok {
				return invalid(step.Name, errors.Wrapf(ErrInvalidStep, "dependency %q listed twice", name))
			}
			seen[dep] = struct{}{}

			p.deps[i] = append(p.deps[i], dep)
			p.dependents[dep] = append(p.dependents[dep], i)
		}
	}

	return nil
}

// sort orders the steps with Kahn's algorithm. Ties are broken by declaration order.
func (p *Pipeline) sort() error {
	indegree := make([]int, len(p.steps))
	ready := newReadyQueue(func(a, b int) bool { return a < b })

	for i := range p.steps {
		indegree[i] = len(p.deps[i])
		if indegree[i] == 0 {
			ready.push(i)
		}
	}

	p.order = make([]int, 0, len(p.steps))
	for ready.Len() > 0 {
		idx := ready.pop()
		p.order = append(p.order, idx)

		for _, dependent := range p.dependents[idx] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				ready.push(dependent)
			}
		}
	}

	if len(p.order) < len(p.steps) {
		cycle, err := p.cycle(indegree)
		if err != nil {
			return errors.Wrap(err, "unable to find cycle members")
		}

		return &ValidationError{Step: cycle[0], Cycle: cycle, Err: ErrCycle}
	}

	p.position = make([]int, len(p.steps))
	for pos, idx := range p.order {
		p.position[idx] = pos
	}

	return nil
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string {
	return p.name
}

// Settings returns the pipeline settings.
func (p *Pipeline) Settings() model.Settings {
	return p.settings
}

// Steps returns the steps in declaration order.
func (p *Pipeline) Steps() []model.StepInfo {
	out := make([]model.StepInfo, len(p.steps))
	for i, step := range p.steps {
		out[i] = cloneStep(step)
	}

	return out
}

// Step returns the named step.
func (p *Pipeline) Step(name string) (model.StepInfo, bool) {
	idx, ok := p.index[name]
	if !ok {
		return model.StepInfo{}, false
	}

	return cloneStep(p.steps[idx]), true
}

// Order returns the step names in topological order.
func (p *Pipeline) Order() []string {
	return p.names(p.order)
}

// Terminals returns the names of the steps no other step depends on, in declaration order.
func (p *Pipeline) Terminals() []string {
	return p.names(p.terminals)
}

func (p *Pipeline) names(idxs []int) []string {
	out := make([]string, len(idxs))
	for i, idx := range idxs {
		out[i] = p.steps[idx].Name
	}

	return out
}

func (p *Pipeline) ttl(idx int) time.Duration {
	if ttl := p.steps[idx].Cache.TTL; ttl > 0 {
		return ttl
	}

	if p.settings.DefaultTTL > 0 {
		return p.settings.DefaultTTL
	}

	return DefaultCacheTTL
}
