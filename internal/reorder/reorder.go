// Package reorder turns drag-and-drop moves into complete, dense order assignments.
package reorder

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/stemsi/classpoll/internal/guard"
	"github.com/stemsi/classpoll/internal/model"
)

// ErrOutOfRange is returned for a source or target index outside the list.
var ErrOutOfRange = errors.New("index out of range")

// Move returns a copy of ids with the element at from removed and reinserted at to.
func Move(ids []uuid.UUID, from, to int) ([]uuid.UUID, error) {
	if from < 0 || from >= len(ids) || to < 0 || to >= len(ids) {
		return nil, fmt.Errorf("%w: move %d -> %d in list of %d", ErrOutOfRange, from, to, len(ids))
	}

	out := make([]uuid.UUID, 0, len(ids))
	moved := ids[from]
	for i, id := range ids {
		if i != from {
			out = append(out, id)
		}
	}
	out = append(out, uuid.Nil)
	copy(out[to+1:], out[to:])
	out[to] = moved
	return out, nil
}

// Assign gives every sibling order = position + 1.
func Assign(ids []uuid.UUID) []model.OrderItem {
	return guard.Repack(ids)
}

// Plan is the outcome of one move: the new sibling sequence and the batched
// order payload covering every sibling.
type Plan struct {
	IDs   []uuid.UUID
	Items []model.OrderItem
}

// NewPlan computes the plan for moving from → to. A move onto itself yields
// ok == false and must produce neither a snapshot update nor a network call.
func NewPlan(ids []uuid.UUID, from, to int) (plan Plan, ok bool, err error) {
	if from == to {
		if from < 0 || from >= len(ids) {
			return Plan{}, false, fmt.Errorf("%w: index %d in list of %d", ErrOutOfRange, from, len(ids))
		}
		return Plan{}, false, nil
	}
	next, err := Move(ids, from, to)
	if err != nil {
		return Plan{}, false, err
	}
	return Plan{IDs: next, Items: Assign(next)}, true, nil
}

// IsDense reports whether orders is a permutation of 1..N.
func IsDense(orders []int) bool {
	return guard.IsDense(orders)
}
