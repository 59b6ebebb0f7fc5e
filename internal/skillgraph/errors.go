package skillgraph

import "errors"

var (
	// ErrInvalidTree is wrapped by every load failure. A tree that fails
	// validation is never exposed.
	ErrInvalidTree = errors.New("skillgraph: invalid skill tree")
	// ErrCycleDetected marks a prerequisite cycle.
	ErrCycleDetected = errors.New("skillgraph: cycle detected")
	// ErrDanglingReference marks a connection to a node that does not exist.
	ErrDanglingReference = errors.New("skillgraph: dangling reference")
	// ErrDuplicateID marks two entities sharing an id.
	ErrDuplicateID = errors.New("skillgraph: duplicate id")
	// ErrUnknownNode is returned by queries for ids outside the graph.
	ErrUnknownNode = errors.New("skillgraph: unknown node")
)
