package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusPaid      PaymentStatus = "paid"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusCancelled:
		return true
	}
	return false
}

var (
	ErrInvalidState       = errors.New("invalid order state")
	ErrFinalized          = errors.New("order is finalized")
	ErrTransitionRejected = errors.New("transition not allowed")
)

// State is the (status, payment status) pair of an order. The zero value is
// not usable; obtain states from NewState, InitialState or Transition.
type State struct {
	status  Status
	payment PaymentStatus
}

var InitialState = State{status: StatusPending, payment: PaymentStatusPending}

func NewState(status Status, payment PaymentStatus) (State, error) {
	if !status.Valid() || !payment.Valid() {
		return State{}, fmt.Errorf("%w: %q/%q", ErrInvalidState, status, payment)
	}
	return State{status: status, payment: payment}, nil
}

func (s State) Status() Status               { return s.status }
func (s State) PaymentStatus() PaymentStatus { return s.payment }
func (s State) IsZero() bool                 { return s.status == "" }

// Finalized reports the only terminal state: delivered and paid.
func (s State) Finalized() bool {
	return s.status == StatusCompleted && s.payment == PaymentStatusPaid
}

func (s State) String() string {
	return string(s.status) + "/" + string(s.payment)
}

type stateJSON struct {
	Status        Status        `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(stateJSON{Status: s.status, PaymentStatus: s.payment})
}

func (s *State) UnmarshalJSON(data []byte) error {
	var raw stateJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := NewState(raw.Status, raw.PaymentStatus)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

type ActionKind string

const (
	ActionToggleStatus     ActionKind = "toggle_status"
	ActionTogglePayment    ActionKind = "toggle_payment"
	ActionCancel           ActionKind = "cancel"
	ActionCancelPayment    ActionKind = "cancel_payment"
	ActionSetStatus        ActionKind = "set_status"
	ActionPaymentApproved  ActionKind = "payment_approved"
	ActionPaymentCancelled ActionKind = "payment_cancelled"
	ActionPaymentPending   ActionKind = "payment_pending"
)

// Action is a request to move an order between states. Status is only read
// by ActionSetStatus.
type Action struct {
	Kind   ActionKind
	Status Status
}

func SetStatus(status Status) Action {
	return Action{Kind: ActionSetStatus, Status: status}
}

// GuardError explains why Transition refused an action.
type GuardError struct {
	Action ActionKind
	From   State
	Err    error
}

func (e *GuardError) Error() string {
	return fmt.Sprintf("%s from %s: %v", e.Action, e.From, e.Err)
}

func (e *GuardError) Unwrap() error { return e.Err }

// Transition applies a to s. A rejected action returns the original state and
// a *GuardError; callers must not persist anything in that case.
func Transition(s State, a Action) (State, error) {
	if s.IsZero() {
		return s, ErrInvalidState
	}
	reject := func(err error) (State, error) {
		return s, &GuardError{Action: a.Kind, From: s, Err: err}
	}
	if s.Finalized() {
		return reject(ErrFinalized)
	}

	next := s
	switch a.Kind {
	case ActionToggleStatus:
		switch s.status {
		case StatusPending:
			next.status = StatusCompleted
		case StatusCompleted:
			next.status = StatusPending
		default:
			return reject(ErrTransitionRejected)
		}

	case ActionTogglePayment:
		switch s.payment {
		case PaymentStatusPending:
			next.payment = PaymentStatusPaid
		case PaymentStatusPaid:
			next.payment = PaymentStatusPending
		default:
			return reject(ErrTransitionRejected)
		}

	case ActionCancel:
		switch {
		case s.status == StatusPending:
			next.status = StatusCancelled
		case s.status == StatusCompleted && s.payment == PaymentStatusCancelled:
			// refunded after delivery
			next.status = StatusCancelled
		default:
			return reject(ErrTransitionRejected)
		}

	case ActionCancelPayment:
		if s.payment == PaymentStatusCancelled {
			return reject(ErrTransitionRejected)
		}
		next.payment = PaymentStatusCancelled

	case ActionSetStatus:
		if !a.Status.Valid() {
			return reject(fmt.Errorf("%w: unknown status %q", ErrTransitionRejected, a.Status))
		}
		next.status = a.Status

	case ActionPaymentApproved:
		next = State{status: StatusCompleted, payment: PaymentStatusPaid}

	case ActionPaymentCancelled:
		next = State{status: StatusCancelled, payment: PaymentStatusCancelled}

	case ActionPaymentPending:
		next.payment = PaymentStatusPending

	default:
		return reject(fmt.Errorf("%w: unknown action %q", ErrTransitionRejected, a.Kind))
	}

	return next, nil
}
