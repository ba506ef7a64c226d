package graph

import (
	"errors"

	"github.com/omnii-ai/brainmem/pkg/brain"
)

// ErrNotFound is returned when a node doesn't exist in the store.
type ErrNotFound struct {
	Kind string
	ID   string
}

func (e ErrNotFound) Error() string {
	if e.ID == "" {
		return e.Kind + " not found"
	}

	return e.Kind + " not found: " + e.ID
}

// ErrInvalidTransition is returned when a memory lifecycle transition would
// skip a state or move backward.
type ErrInvalidTransition struct {
	MemoryID string
	From     brain.ConsolidationStatus
	To       brain.ConsolidationStatus
}

func (e ErrInvalidTransition) Error() string {
	return "invalid consolidation transition for memory " + e.MemoryID +
		": " + string(e.From) + " -> " + string(e.To)
}

// ErrSelfAssociation is returned when a RELATED_TO edge would loop a concept
// onto itself.
var ErrSelfAssociation = errors.New("concept cannot be associated with itself")
