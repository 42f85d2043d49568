package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
	OrderStatusDelivered:  {OrderStatusRefunded},
	OrderStatusCancelled:  nil,
	OrderStatusRefunded:   nil,
}

// AllowedTransitions returns the statuses reachable from s in one step
func AllowedTransitions(s OrderStatus) []OrderStatus {
	return append([]OrderStatus(nil), transitions[s]...)
}

// CanTransition reports whether from → to is in the transition table
func CanTransition(from, to OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition describes a status change that was applied
type Transition struct {
	From         OrderStatus
	To           OrderStatus
	ReleaseStock bool
}

// StateMachine validates and applies order status changes
type StateMachine struct {
	numbers      NumberGenerator
	now          func() time.Time
	deliveryLead time.Duration
}

// StateMachineOption customizes a StateMachine
type StateMachineOption func(*StateMachine)

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) StateMachineOption {
	return func(sm *StateMachine) {
		sm.now = now
	}
}

// WithDeliveryEstimate sets how far after shipping the ETA lands
func WithDeliveryEstimate(d time.Duration) StateMachineOption {
	return func(sm *StateMachine) {
		if d > 0 {
			sm.deliveryLead = d
		}
	}
}

// NewStateMachine creates a new StateMachine
func NewStateMachine(numbers NumberGenerator, opts ...StateMachineOption) *StateMachine {
	if numbers == nil {
		numbers = RandomNumberGenerator{}
	}
	sm := &StateMachine{
		numbers:      numbers,
		now:          func() time.Time { return time.Now().UTC() },
		deliveryLead: 7 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(sm)
	}
	return sm
}

// Now returns the machine's clock reading
func (sm *StateMachine) Now() time.Time {
	return sm.now()
}

// Validate checks from → to against the transition table
func (sm *StateMachine) Validate(from, to OrderStatus) error {
	if !CanTransition(from, to) {
		return NewIllegalTransition(from, to)
	}
	return nil
}

// Apply moves the order to status to and runs the side effects of entering
// it. On error the order is left exactly as it was.
func (sm *StateMachine) Apply(o *Order, to OrderStatus, reason string) (Transition, error) {
	from := o.Status
	if err := sm.Validate(from, to); err != nil {
		return Transition{}, err
	}
	reason = strings.TrimSpace(reason)
	if len(reason) > MaxReasonLength {
		return Transition{}, NewFieldTooLong("reason", MaxReasonLength)
	}

	now := sm.now()
	t := Transition{From: from, To: to}

	switch to {
	case OrderStatusShipped:
		if o.TrackingNumber == "" {
			o.TrackingNumber = sm.numbers.TrackingNumber(now)
			if o.EstimatedDeliveryDate == nil {
				eta := now.Add(sm.deliveryLead)
				o.EstimatedDeliveryDate = &eta
			}
		}
	case OrderStatusDelivered:
		if o.DeliveredAt == nil {
			o.DeliveredAt = &now
		}
	case OrderStatusCancelled:
		if o.CancelledAt == nil {
			o.CancelledAt = &now
			o.CancellationReason = reason
		}
		t.ReleaseStock = true
	}

	o.Status = to
	o.Touch(now)
	return t, nil
}

// Cancel is the explicit cancellation path, only open while the order has
// not started processing
func (sm *StateMachine) Cancel(o *Order, reason string) (Transition, error) {
	if !o.CanBeCancelled() {
		return Transition{}, NewNotCancellable(o.OrderNumber, o.Status)
	}
	return sm.Apply(o, OrderStatusCancelled, reason)
}

// TruncateReason shortens reason to at most MaxReasonLength bytes, cutting
// on a rune boundary
func TruncateReason(reason string) string {
	if len(reason) <= MaxReasonLength {
		return reason
	}
	cut := MaxReasonLength
	for cut > 0 && !utf8.RuneStart(reason[cut]) {
		cut--
	}
	return reason[:cut]
}
