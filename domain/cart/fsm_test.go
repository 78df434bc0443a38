package cart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckEventSequence_AcceptedTransitions(t *testing.T) {
	cases := []struct {
		state Status
		event Event
		next  Status
	}{
		{StatusIdle, EventAddItem, StatusEnteringItem},
		{StatusEnteringItem, EventAddItem, StatusEnteringItem},
		{StatusEnteringItem, EventSubtotal, StatusPaying},
		{StatusPaying, EventAddPayment, StatusPaying},
		{StatusPaying, EventResumeItemEntry, StatusEnteringItem},
		{StatusPaying, EventBill, StatusCompleted},
		{StatusIdle, EventCancel, StatusCancelled},
		{StatusEnteringItem, EventCancel, StatusCancelled},
		{StatusPaying, EventCancel, StatusCancelled},
		{StatusEnteringItem, EventCancelLineItem, StatusEnteringItem},
		{StatusPaying, EventUpdateQuantity, StatusPaying},
		{StatusPaying, EventAddCartDiscount, StatusPaying},
	}
	for _, tc := range cases {
		require.NoError(t, CheckEventSequence(tc.state, tc.event), "%s in %s", tc.event, tc.state)
		assert.Equal(t, tc.next, NextStatus(tc.state, tc.event), "%s in %s", tc.event, tc.state)
	}
}

func TestCheckEventSequence_RejectsOutOfOrderEvents(t *testing.T) {
	cases := []struct {
		state Status
		event Event
	}{
		{StatusIdle, EventSubtotal},       // nothing to total yet
		{StatusIdle, EventAddPayment},     // no subtotal taken
		{StatusEnteringItem, EventAddPayment},
		{StatusEnteringItem, EventBill},
		{StatusPaying, EventAddItem},      // must resume item entry first
		{StatusIdle, EventResumeItemEntry},
	}
	for _, tc := range cases {
		err := CheckEventSequence(tc.state, tc.event)
		require.Error(t, err, "%s in %s must be rejected", tc.event, tc.state)
		assert.Contains(t, err.Error(), "event bad sequence")
	}
}

func TestCheckEventSequence_TerminalStatesRejectEverything(t *testing.T) {
	events := []Event{EventGet, EventCancel, EventAddItem, EventSubtotal, EventAddPayment, EventBill, EventResumeItemEntry}
	for _, state := range []Status{StatusCompleted, StatusCancelled} {
		for _, event := range events {
			assert.Error(t, CheckEventSequence(state, event), "%s in terminal state %s", event, state)
		}
	}
}

func TestNextStatus_UnknownEventLeavesStateUnchanged(t *testing.T) {
	assert.Equal(t, StatusIdle, NextStatus(StatusIdle, Event("Nonsense")))
}
