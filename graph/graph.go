package graph

import (
	"bytes"
	"sort"
)

// NodeConstrain is what a graph node must provide.
type NodeConstrain interface {
	// DotSpec().ID is used as key in the graph, so should be unique.
	DotSpec() *DotNodeSpec
}

type DotNodeSpec struct {
	ID        string
	Name      string
	Tooltip   string
	Shape     string
	Style     string
	FillColor string
}

type DotEdgeSpec struct {
	FromNodeID string
	ToNodeID   string
	Tooltip    string
	Style      string
	Color      string
}

type Edge[NT NodeConstrain] struct {
	From NT
	To   NT
}

// Graph is a small directed graph rendered to graphviz dot format.
type Graph[NT NodeConstrain] struct {
	connectionCallback func(from, to NT) *DotEdgeSpec
	nodes              map[string]NT
	nodeOrder          []string
	nodeEdges          map[string][]*Edge[NT]
}

func NewGraph[NT NodeConstrain](edgeSpecFunc func(from, to NT) *DotEdgeSpec) *Graph[NT] {
	return &Graph[NT]{
		connectionCallback: edgeSpecFunc,
		nodes:              make(map[string]NT),
		nodeEdges:          make(map[string][]*Edge[NT]),
	}
}

func (g *Graph[NT]) AddNode(n NT) error {
	nodeKey := n.DotSpec().ID
	if _, ok := g.nodes[nodeKey]; ok {
		return &NodeError{Code: ErrDuplicateNode, NodeID: nodeKey}
	}
	g.nodes[nodeKey] = n
	g.nodeOrder = append(g.nodeOrder, nodeKey)

	return nil
}

func (g *Graph[NT]) Connect(from, to NT) error {
	fromKey := from.DotSpec().ID
	toKey := to.DotSpec().ID
	if _, ok := g.nodes[fromKey]; !ok {
		return &NodeError{Code: ErrConnectNotExistingNode, NodeID: fromKey}
	}
	if _, ok := g.nodes[toKey]; !ok {
		return &NodeError{Code: ErrConnectNotExistingNode, NodeID: toKey}
	}

	g.nodeEdges[fromKey] = append(g.nodeEdges[fromKey], &Edge[NT]{From: from, To: to})
	return nil
}

// ToDotGraph renders nodes in insertion order, edges grouped by source node.
// https://en.wikipedia.org/wiki/DOT_(graph_description_language)
func (g *Graph[NT]) ToDotGraph() (string, error) {
	nodes := make([]*DotNodeSpec, 0, len(g.nodeOrder))
	for _, key := range g.nodeOrder {
		nodes = append(nodes, g.nodes[key].DotSpec())
	}

	fromKeys := make([]string, 0, len(g.nodeEdges))
	for key := range g.nodeEdges {
		fromKeys = append(fromKeys, key)
	}
	sort.Strings(fromKeys)

	edges := make([]*DotEdgeSpec, 0)
	for _, key := range fromKeys {
		for _, edge := range g.nodeEdges[key] {
			edges = append(edges, g.connectionCallback(edge.From, edge.To))
		}
	}

	buf := new(bytes.Buffer)
	err := digraphTemplate.Execute(buf, templateRef{Nodes: nodes, Edges: edges})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

type templateRef struct {
	Nodes []*DotNodeSpec
	Edges []*DotEdgeSpec
}
