package bookings

// Status is the payment lifecycle of a booking.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusExpired   Status = "EXPIRED"
)

// legalTransitions enumerates every allowed edge of the state machine.
var legalTransitions = map[Status][]Status{
	StatusPending: {StatusCompleted, StatusFailed, StatusExpired},
}

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed, StatusExpired:
		return true
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s.IsValid() && len(legalTransitions[s]) == 0
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range legalTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ReleasesSeats reports whether entering s frees the booking's seats.
func (s Status) ReleasesSeats() bool {
	return s == StatusFailed || s == StatusExpired
}

func (s Status) String() string {
	return string(s)
}

// AttemptStatus tracks one external payment session.
type AttemptStatus string

const (
	AttemptInitiating AttemptStatus = "INITIATING"
	AttemptActive     AttemptStatus = "ACTIVE"
	AttemptSuperseded AttemptStatus = "SUPERSEDED"
	AttemptFailed     AttemptStatus = "FAILED"
	AttemptVerified   AttemptStatus = "VERIFIED"
)

// IsOpen reports whether the attempt still counts as the booking's live session.
func (s AttemptStatus) IsOpen() bool {
	return s == AttemptInitiating || s == AttemptActive
}
