package model

// Outcome is the tagged result of a reservation engine operation.
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	OutcomeConfirmed
	OutcomeCancelled
	OutcomeNotFound
	OutcomePastEvent
	OutcomeDuplicateRegistration
	OutcomeCapacityExceeded
	OutcomeNotRegistered
)

var outcomeNames = map[Outcome]string{
	OutcomeUnknown:               "unknown",
	OutcomeConfirmed:             "confirmed",
	OutcomeCancelled:             "cancelled",
	OutcomeNotFound:              "not_found",
	OutcomePastEvent:             "past_event",
	OutcomeDuplicateRegistration: "duplicate_registration",
	OutcomeCapacityExceeded:      "capacity_exceeded",
	OutcomeNotRegistered:         "not_registered",
}

func (o Outcome) String() string {
	if s, ok := outcomeNames[o]; ok {
		return s
	}
	return "unknown"
}

// OK reports whether the operation changed state as requested.
func (o Outcome) OK() bool {
	return o == OutcomeConfirmed || o == OutcomeCancelled
}

// Message is the human-readable text shown to API clients.
func (o Outcome) Message() string {
	switch o {
	case OutcomeConfirmed:
		return "Registration successful."
	case OutcomeCancelled:
		return "Registration cancelled."
	case OutcomeNotFound:
		return "Event not found."
	case OutcomePastEvent:
		return "Cannot register for past events."
	case OutcomeDuplicateRegistration:
		return "User already registered for this event."
	case OutcomeCapacityExceeded:
		return "Event is full."
	case OutcomeNotRegistered:
		return "User wasn't registered for this event."
	default:
		return "Unknown outcome."
	}
}

// Err converts a failed outcome into its classified error. Successful
// outcomes return nil.
func (o Outcome) Err() error {
	var kind Kind
	switch o {
	case OutcomeConfirmed, OutcomeCancelled:
		return nil
	case OutcomeNotFound:
		kind = KindNotFound
	case OutcomePastEvent:
		kind = KindPastEvent
	case OutcomeDuplicateRegistration:
		kind = KindDuplicateRegistration
	case OutcomeCapacityExceeded:
		kind = KindCapacityExceeded
	case OutcomeNotRegistered:
		kind = KindNotRegistered
	default:
		kind = KindInternal
	}
	return &Error{Kind: kind, Message: o.Message()}
}
