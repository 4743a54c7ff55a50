package domain

import (
	"fmt"
	"strings"
)

const (
	StatePending  = "PENDING"
	StateComplete = "COMPLETE"
	StateErrored  = "ERRORED"
	StateAborted  = "ABORTED"
)

// TerminalStates are states a learner can never leave through normal
// processing.
var TerminalStates = []string{StateComplete, StateErrored, StateAborted}

// Step is one configured pipeline step. A learner in StartState has the
// step in flight; EndState records its completion. Service and Operation
// name a registered adapter operation.
type Step struct {
	StartState string `yaml:"start_state"`
	EndState   string `yaml:"end_state"`
	Service    string `yaml:"service"`
	Operation  string `yaml:"operation"`
}

// Pipeline is the ordered step list for an environment plus the derived
// total order over states. Execution order is list position in
// PENDING, step1.start, step1.end, ..., COMPLETE, ERRORED, ABORTED and is
// the only thing allowed to drive skip/resume decisions.
type Pipeline struct {
	steps   []Step
	all     []string
	working map[string]struct{}
	order   map[string]int
}

// NewPipeline validates the configured steps and computes state ordering.
func NewPipeline(steps []Step) (*Pipeline, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("pipeline has no steps")
	}

	p := &Pipeline{
		steps:   make([]Step, len(steps)),
		working: make(map[string]struct{}, len(steps)),
		order:   make(map[string]int),
	}
	copy(p.steps, steps)

	p.all = append(p.all, StatePending)
	for i, step := range steps {
		if strings.TrimSpace(step.StartState) == "" || strings.TrimSpace(step.EndState) == "" {
			return nil, fmt.Errorf("pipeline step %d: start and end states are required", i)
		}
		if strings.TrimSpace(step.Service) == "" || strings.TrimSpace(step.Operation) == "" {
			return nil, fmt.Errorf("pipeline step %d: service and operation are required", i)
		}
		p.all = append(p.all, step.StartState, step.EndState)
		p.working[step.StartState] = struct{}{}
	}
	p.all = append(p.all, TerminalStates...)

	for i, name := range p.all {
		if _, dup := p.order[name]; dup {
			return nil, fmt.Errorf("pipeline state %q appears more than once", name)
		}
		p.order[name] = i
	}
	return p, nil
}

func (p *Pipeline) Steps() []Step { return p.steps }

// AllStates returns every state in execution order.
func (p *Pipeline) AllStates() []string { return p.all }

// WorkingStates returns the start states. A learner found in one of these
// means a prior run crashed (or is still running) mid-step.
func (p *Pipeline) WorkingStates() []string {
	out := make([]string, 0, len(p.steps))
	for _, step := range p.steps {
		out = append(out, step.StartState)
	}
	return out
}

// ExecutionOrder returns the total-order index of a state name.
func (p *Pipeline) ExecutionOrder(state string) (int, bool) {
	i, ok := p.order[state]
	return i, ok
}

func (p *Pipeline) IsWorking(state string) bool {
	_, ok := p.working[state]
	return ok
}

func IsTerminal(state string) bool {
	switch state {
	case StateComplete, StateErrored, StateAborted:
		return true
	}
	return false
}
