package ooxml

import (
	"strconv"

	"github.com/google/uuid"
)

// RevisionIDs hands out the numeric w:id values used on generated revision
// elements. IDs are unique within one reconstruction; Word only requires
// document-local uniqueness.
type RevisionIDs struct {
	next int
}

// NewRevisionIDs returns an allocator starting at the given id.
func NewRevisionIDs(start int) *RevisionIDs {
	if start < 1 {
		start = 1
	}
	return &RevisionIDs{next: start}
}

// Next returns the next unused id as a string.
func (r *RevisionIDs) Next() string {
	id := r.next
	r.next++
	return strconv.Itoa(id)
}

// NewMoveName returns a fresh w:name value for a moveFrom/moveTo range pair.
// Word only requires the two ends of a move to share the name; a random
// suffix keeps names from colliding with pre-existing moves in the input.
func NewMoveName() string {
	return "move-" + uuid.NewString()[:8]
}
