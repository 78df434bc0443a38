package cart

import "github.com/kugelpos/transactional-core/infrastructure/errors"

// Event is an externally triggered cart operation.
type Event string

const (
	EventCreate            Event = "Create"
	EventGet               Event = "Get"
	EventCancel            Event = "Cancel"
	EventAddItem           Event = "AddItem"
	EventCancelLineItem    Event = "CancelLineItem"
	EventUpdateQuantity    Event = "UpdateQuantity"
	EventUpdatePrice       Event = "UpdatePrice"
	EventAddLineDiscount   Event = "AddLineDiscount"
	EventAddCartDiscount   Event = "AddCartDiscount"
	EventSubtotal          Event = "Subtotal"
	EventAddPayment        Event = "AddPayment"
	EventResumeItemEntry   Event = "ResumeItemEntry"
	EventBill              Event = "Bill"
)

// transition describes the states an event is accepted in, and the next
// state it drives the cart to. Create has no entry here: it runs before
// any cart exists, so it is never checked against a cart state.
type transition struct {
	accepted map[Status]bool
	next     func(current Status) Status
}

func accept(states ...Status) map[Status]bool {
	m := make(map[Status]bool, len(states))
	for _, s := range states {
		m[s] = true
	}
	return m
}

func unchanged(current Status) Status { return current }

func to(status Status) func(Status) Status {
	return func(Status) Status { return status }
}

// transitions is the full cart event table.
var transitions = map[Event]transition{
	EventGet: {
		accepted: accept(StatusIdle, StatusEnteringItem, StatusPaying),
		next:     unchanged,
	},
	EventCancel: {
		accepted: accept(StatusIdle, StatusEnteringItem, StatusPaying),
		next:     to(StatusCancelled),
	},
	EventAddItem: {
		accepted: accept(StatusIdle, StatusEnteringItem),
		next:     to(StatusEnteringItem),
	},
	EventCancelLineItem: {
		accepted: accept(StatusEnteringItem, StatusPaying),
		next:     unchanged,
	},
	EventUpdateQuantity: {
		accepted: accept(StatusEnteringItem, StatusPaying),
		next:     unchanged,
	},
	EventUpdatePrice: {
		accepted: accept(StatusEnteringItem, StatusPaying),
		next:     unchanged,
	},
	EventAddLineDiscount: {
		accepted: accept(StatusEnteringItem, StatusPaying),
		next:     unchanged,
	},
	EventAddCartDiscount: {
		accepted: accept(StatusEnteringItem, StatusPaying),
		next:     unchanged,
	},
	EventSubtotal: {
		accepted: accept(StatusEnteringItem),
		next:     to(StatusPaying),
	},
	EventAddPayment: {
		accepted: accept(StatusPaying),
		next:     to(StatusPaying),
	},
	EventResumeItemEntry: {
		accepted: accept(StatusPaying),
		next:     to(StatusEnteringItem),
	},
	EventBill: {
		accepted: accept(StatusPaying),
		next:     to(StatusCompleted),
	},
}

// CheckEventSequence verifies event is accepted given the cart's current
// state; called at the start of every mutating operation. Completed and
// Cancelled are terminal — any event against them (the no-op Get included,
// via the accepted set above) is rejected.
func CheckEventSequence(current Status, event Event) error {
	t, ok := transitions[event]
	if !ok {
		return errors.InvalidOperation("unknown cart event: " + string(event))
	}
	if !t.accepted[current] {
		return errors.InvalidOperation("event bad sequence: " + string(event) + " not accepted in state " + string(current))
	}
	return nil
}

// NextStatus returns the state a cart moves to after event succeeds from
// current. Transitions are applied only after the operation itself
// succeeds — callers must call CheckEventSequence first.
func NextStatus(current Status, event Event) Status {
	t, ok := transitions[event]
	if !ok {
		return current
	}
	return t.next(current)
}

// Bill additionally requires balance == 0; this is
// checked by the finaliser, not the FSM table, since it depends on cart
// content rather than cart state alone.
