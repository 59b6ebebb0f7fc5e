// File: internal/controller/errors.go
package controller

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xkilldash9x/skilltree/api/schemas"
)

var (
	// ErrNodeNotFound is returned for ids absent from the loaded graph.
	ErrNodeNotFound = errors.New("node not found")
	// ErrNotUnlockable is returned when a node's prerequisites are not all unlocked.
	ErrNotUnlockable = errors.New("node is not unlockable")
	// ErrInsufficientResources is returned when the player cannot pay a node's cost.
	ErrInsufficientResources = errors.New("insufficient resources")
	// ErrUnlockInFlight is returned while another unlock awaits persistence.
	ErrUnlockInFlight = errors.New("another unlock is in flight")
	// ErrSessionReset is returned when the session was reset before a pending
	// unlock finished. The late result is discarded.
	ErrSessionReset = errors.New("session was reset")
	// ErrNoTree is returned when no valid tree is available.
	ErrNoTree = errors.New("no skill tree loaded")
)

// AvailabilityError reports the prerequisites still missing for a node.
type AvailabilityError struct {
	NodeID  string
	Missing []string
}

func (e *AvailabilityError) Error() string {
	if len(e.Missing) == 0 {
		return fmt.Sprintf("node %q is not unlockable: it has no prerequisites to satisfy", e.NodeID)
	}
	return fmt.Sprintf("node %q is not unlockable: missing prerequisites %s", e.NodeID, strings.Join(e.Missing, ", "))
}

func (e *AvailabilityError) Unwrap() error { return ErrNotUnlockable }

// InsufficientResourcesError carries the cost and what the player had.
type InsufficientResourcesError struct {
	NodeID    string
	Cost      schemas.Cost
	Available schemas.Cost
}

// Shortfall returns how much of each currency is missing.
func (e *InsufficientResourcesError) Shortfall() schemas.Cost {
	return shortfall(e.Cost, e.Available)
}

func (e *InsufficientResourcesError) Error() string {
	s := e.Shortfall()
	return fmt.Sprintf("cannot afford node %q: short by %d reputation and %d skill points", e.NodeID, s.Reputation, s.SkillPoints)
}

func (e *InsufficientResourcesError) Unwrap() error { return ErrInsufficientResources }

// PersistenceError wraps a failed save. Local state has been rolled back to
// what it was before the unlock.
type PersistenceError struct {
	NodeID string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist unlock of %q: %v", e.NodeID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func shortfall(cost, available schemas.Cost) schemas.Cost {
	var s schemas.Cost
	if d := cost.Reputation - available.Reputation; d > 0 {
		s.Reputation = d
	}
	if d := cost.SkillPoints - available.SkillPoints; d > 0 {
		s.SkillPoints = d
	}
	return s
}
