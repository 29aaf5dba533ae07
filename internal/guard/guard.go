// Package guard holds the invariants the backend enforces regardless of what
// clients send: the role lattice, exclusive defaults and dense sibling order.
// Every function is pure; services call them inside their transactions.
package guard

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/stemsi/classpoll/internal/model"
)

// Domain errors.
var (
	ErrIllegalRoleTransition = errors.New("illegal role transition")
	ErrForeignDefault        = errors.New("default option does not belong to the question")
	ErrDeleteDefaultOption   = errors.New("cannot delete the default option")
	ErrOrderSetMismatch      = errors.New("order payload does not match the sibling set")
	ErrAccessCodeTaken       = errors.New("access code already in use")
)

// CheckRoleTransition validates a role change against the one-way lattice
// STUDENT → TEACHER → ADMIN. Only single upward steps are allowed.
// noop is true when from equals to, which succeeds without any write.
func CheckRoleTransition(from, to model.Role) (noop bool, err error) {
	if from.Rank() < 0 || to.Rank() < 0 {
		return false, fmt.Errorf("%w: unknown role %q -> %q", ErrIllegalRoleTransition, from, to)
	}
	if from == to {
		return true, nil
	}
	if to.Rank() != from.Rank()+1 {
		return false, fmt.Errorf("%w: %s -> %s", ErrIllegalRoleTransition, from, to)
	}
	return false, nil
}

// CheckDefaultOption verifies that optionID is one of the question's options.
func CheckDefaultOption(q *model.Question, optionID uuid.UUID) error {
	if q.Option(optionID) == nil {
		return ErrForeignDefault
	}
	return nil
}

// CheckOptionDeletion rejects deleting the question's current default option.
// Reassigning the default implicitly is not supported.
func CheckOptionDeletion(defaultOptionID *uuid.UUID, optionID uuid.UUID) error {
	if defaultOptionID != nil && *defaultOptionID == optionID {
		return ErrDeleteDefaultOption
	}
	return nil
}

// NormalizeOrder validates a batched order payload against the current sibling
// IDs (in their current order) and returns a dense 1..N assignment.
//
// The payload must name every sibling exactly once. Items are ranked by the
// requested order; equal requested orders keep the siblings' current relative
// position. Applying the result again yields the same result.
func NormalizeOrder(current []uuid.UUID, items []model.OrderItem) ([]model.OrderItem, error) {
	if len(items) != len(current) {
		return nil, fmt.Errorf("%w: got %d items for %d siblings", ErrOrderSetMismatch, len(items), len(current))
	}

	position := make(map[uuid.UUID]int, len(current))
	for i, id := range current {
		position[id] = i
	}

	seen := make(map[uuid.UUID]bool, len(items))
	ranked := make([]model.OrderItem, len(items))
	for i, it := range items {
		if _, ok := position[it.ID]; !ok {
			return nil, fmt.Errorf("%w: %s is not a sibling", ErrOrderSetMismatch, it.ID)
		}
		if seen[it.ID] {
			return nil, fmt.Errorf("%w: %s listed twice", ErrOrderSetMismatch, it.ID)
		}
		seen[it.ID] = true
		ranked[i] = it
	}

	sort.SliceStable(ranked, func(a, b int) bool {
		if ranked[a].Order != ranked[b].Order {
			return ranked[a].Order < ranked[b].Order
		}
		return position[ranked[a].ID] < position[ranked[b].ID]
	})

	for i := range ranked {
		ranked[i].Order = i + 1
	}
	return ranked, nil
}

// Repack returns a dense 1..N assignment for ids in their given order.
func Repack(ids []uuid.UUID) []model.OrderItem {
	items := make([]model.OrderItem, len(ids))
	for i, id := range ids {
		items[i] = model.OrderItem{ID: id, Order: i + 1}
	}
	return items
}

// IsDense reports whether orders is a permutation of 1..len(orders).
func IsDense(orders []int) bool {
	seen := make([]bool, len(orders)+1)
	for _, o := range orders {
		if o < 1 || o > len(orders) || seen[o] {
			return false
		}
		seen[o] = true
	}
	return true
}
