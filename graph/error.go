package graph

import "fmt"

type ErrorCode string

const (
	ErrDuplicateNode          ErrorCode = "duplicate node"
	ErrConnectNotExistingNode ErrorCode = "unknown node"
)

func (code ErrorCode) Error() string {
	return string(code)
}

// NodeError is a graph operation rejected because of the node with key NodeID.
type NodeError struct {
	Code   ErrorCode
	NodeID string
}

func (ne *NodeError) Error() string {
	return fmt.Sprintf("%s %q", ne.Code, ne.NodeID)
}

func (ne *NodeError) Unwrap() error {
	return ne.Code
}
