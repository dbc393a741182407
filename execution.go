package asyncstep

import (
	"fmt"
	"time"

	"github.com/Azure/go-asyncstep/graph"
)

// Execution records one controller invocation.
type Execution[T any] struct {
	ID        string
	StepName  string
	StartTime time.Time
	Duration  time.Duration
	// Polls counts the termination checks performed.
	Polls   int
	Outcome Outcome[T]
}

// controller states as drawn by Visualize
const stateRunning = "running"

type stateNode struct {
	name    string
	reached bool
	failed  bool
	tooltip string
}

func (sn *stateNode) DotSpec() *graph.DotNodeSpec {
	shape := "box"
	if sn.name == stateRunning {
		shape = "triangle"
	}
	return &graph.DotNodeSpec{
		ID:        sn.name,
		Name:      sn.name,
		Shape:     shape,
		Style:     "filled",
		FillColor: sn.fillColor(),
		Tooltip:   sn.tooltip,
	}
}

func (sn *stateNode) fillColor() string {
	switch {
	case !sn.reached:
		return "white"
	case sn.name == stateRunning:
		return "yellow"
	case sn.failed:
		return "red"
	case sn.name == string(OutcomeStopped):
		return "gray"
	default:
		return "green"
	}
}

func stateConn(from, to *stateNode) *graph.DotEdgeSpec {
	edgeSpec := &graph.DotEdgeSpec{
		FromNodeID: from.name,
		ToNodeID:   to.name,
		Color:      "gray",
		Style:      "dashed",
	}

	if to.reached {
		edgeSpec.Style = "bold"
		edgeSpec.Tooltip = to.tooltip
		if to.failed {
			edgeSpec.Color = "red"
		} else {
			edgeSpec.Color = "green"
		}
	}

	return edgeSpec
}

// Visualize renders the controller state machine in graphviz dot format, with
// the transition this execution took highlighted.
func (e *Execution[T]) Visualize() (string, error) {
	g := graph.NewGraph(stateConn)

	running := &stateNode{
		name:    stateRunning,
		reached: true,
		tooltip: fmt.Sprintf("Step: %s\\nExecution: %s\\nStartAt: %s", e.StepName, e.ID, e.StartTime.Format(time.RFC3339Nano)),
	}
	if err := g.AddNode(running); err != nil {
		return "", err
	}

	for _, kind := range []OutcomeKind{OutcomeCompleted, OutcomeTimedOut, OutcomeInterrupted, OutcomeStopped} {
		node := &stateNode{name: string(kind)}
		if kind == e.Outcome.Kind {
			node.reached = true
			node.failed = e.Outcome.Failed()
			node.tooltip = fmt.Sprintf("Duration: %s\\nPolls: %d", e.Duration, e.Polls)
		}
		if err := g.AddNode(node); err != nil {
			return "", err
		}
		if err := g.Connect(running, node); err != nil {
			return "", err
		}
	}

	return g.ToDotGraph()
}
