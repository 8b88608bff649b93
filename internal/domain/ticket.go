package domain

import "time"

// TicketState enumerates the ticket lifecycle.
type TicketState string

const (
	TicketPending   TicketState = "pending"
	TicketInFlight  TicketState = "in_flight"
	TicketCompleted TicketState = "completed"
	TicketFailed    TicketState = "failed"
	TicketExpired   TicketState = "expired"
)

// Terminal reports whether no further transition is allowed from the state.
func (s TicketState) Terminal() bool {
	switch s {
	case TicketCompleted, TicketFailed, TicketExpired:
		return true
	}
	return false
}

// CanTransition reports whether s -> next is a legal lifecycle step.
// Pending -> InFlight -> {Completed | Failed}, with Pending|InFlight ->
// Expired on TTL elapse.
func (s TicketState) CanTransition(next TicketState) bool {
	switch s {
	case TicketPending:
		return next == TicketInFlight || next == TicketExpired
	case TicketInFlight:
		return next == TicketCompleted || next == TicketFailed || next == TicketExpired
	}
	return false
}

// Ticket authorizes exactly one underlying generator connection attempt
// sequence for one logical generation request.
type Ticket struct {
	ID          string
	Fingerprint string
	Request     GenerationRequest
	State       TicketState
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// JobOutcome is the terminal result of one ticket. Produced once; never
// mutated afterwards.
type JobOutcome struct {
	TicketID    string
	DownloadURL string
	Err         *Error
	CompletedAt time.Time
}

// Failed reports whether the outcome carries a classified error.
func (o JobOutcome) Failed() bool {
	return o.Err != nil
}
