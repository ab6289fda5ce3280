package statemachine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tobylas-w/ThaiTable-sub000/models"
)

// ErrUnknownStatus is returned for a status outside the enumerated set.
var ErrUnknownStatus = errors.New("unknown order status")

// ErrInvalidTransition is returned when a transition is not allowed.
var ErrInvalidTransition = errors.New("invalid transition")

// Transition documents one step of the order lifecycle
type Transition struct {
	From models.OrderStatus `json:"from"`
	To   models.OrderStatus `json:"to"`
}

// lifecycle is the normal kitchen-to-cashier progression
var lifecycle = []models.OrderStatus{
	models.StatusPending,
	models.StatusConfirmed,
	models.StatusCooking,
	models.StatusReady,
	models.StatusServed,
	models.StatusPaid,
}

// cancellableFrom lists the only states an order may be cancelled from.
// Once food is READY it can no longer be cancelled.
var cancellableFrom = map[models.OrderStatus]bool{
	models.StatusPending:   true,
	models.StatusConfirmed: true,
	models.StatusCooking:   true,
}

var known = func() map[models.OrderStatus]bool {
	m := map[models.OrderStatus]bool{models.StatusCancelled: true}
	for _, s := range lifecycle {
		m[s] = true
	}
	return m
}()

// IsValid reports whether status is one of the enumerated order statuses.
func IsValid(status models.OrderStatus) bool {
	return known[status]
}

// CanTransition checks whether an order may move from one state to another.
//
// Only cancellation is guarded; any other move between known states is
// accepted (including skipping steps such as PENDING → PAID).
func CanTransition(from, to models.OrderStatus) error {
	if !IsValid(to) {
		return ErrUnknownStatus
	}
	if to == models.StatusCancelled && !cancellableFrom[from] {
		return fmt.Errorf("%w: %s → %s is not allowed, orders can be cancelled only from %s",
			ErrInvalidTransition, from, to, describeCancellable())
	}
	return nil
}

// ValidTransitionsFrom returns the suggested next states from status:
// the next lifecycle step plus CANCELLED where allowed.
func ValidTransitionsFrom(status models.OrderStatus) []models.OrderStatus {
	var nexts []models.OrderStatus
	for i, s := range lifecycle {
		if s == status && i+1 < len(lifecycle) {
			nexts = append(nexts, lifecycle[i+1])
		}
	}
	if cancellableFrom[status] {
		nexts = append(nexts, models.StatusCancelled)
	}
	return nexts
}

func describeCancellable() string {
	var names []string
	for _, s := range lifecycle {
		if cancellableFrom[s] {
			names = append(names, string(s))
		}
	}
	return strings.Join(names, ", ")
}

// GetAllTransitions returns the lifecycle for documentation
func GetAllTransitions() []Transition {
	var out []Transition
	for i := 0; i+1 < len(lifecycle); i++ {
		out = append(out, Transition{From: lifecycle[i], To: lifecycle[i+1]})
	}
	for _, s := range lifecycle {
		if cancellableFrom[s] {
			out = append(out, Transition{From: s, To: models.StatusCancelled})
		}
	}
	return out
}

// TerminalStates are states with no further lifecycle step.
func TerminalStates() []models.OrderStatus {
	return []models.OrderStatus{models.StatusPaid, models.StatusCancelled}
}
