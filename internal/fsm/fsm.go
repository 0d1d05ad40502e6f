// Package fsm holds the pure call-cycle transition table.
package fsm

import "fmt"

type Phase string

type Event string

const (
	PhaseIdle       Phase = "idle"
	PhaseListening  Phase = "listening"
	PhaseProcessing Phase = "processing"
	PhaseResponding Phase = "responding"
	PhaseErrored    Phase = "errored"
)

const (
	EventCapture       Event = "capture"
	EventUnsupported   Event = "unsupported"
	EventCaptureFailed Event = "capture_failed"
	EventTranscript    Event = "transcript"
	EventReplied       Event = "replied"
	EventRequestFailed Event = "request_failed"
	EventComplete      Event = "complete"
	EventAcknowledge   Event = "acknowledge"
)

// Phases lists every phase in cycle order.
func Phases() []Phase {
	return []Phase{PhaseIdle, PhaseListening, PhaseProcessing, PhaseResponding, PhaseErrored}
}

// Transition returns the phase reached by applying event to current.
// Pairs outside the table leave the phase unchanged and return an error.
func Transition(current Phase, event Event) (Phase, error) {
	switch current {
	case PhaseIdle:
		switch event {
		case EventCapture:
			return PhaseListening, nil
		default:
			return current, invalidTransition(current, event)
		}
	case PhaseListening:
		switch event {
		case EventUnsupported, EventCaptureFailed:
			return PhaseErrored, nil
		case EventTranscript:
			return PhaseProcessing, nil
		default:
			return current, invalidTransition(current, event)
		}
	case PhaseProcessing:
		switch event {
		case EventReplied:
			return PhaseResponding, nil
		case EventRequestFailed:
			return PhaseErrored, nil
		default:
			return current, invalidTransition(current, event)
		}
	case PhaseResponding:
		switch event {
		case EventComplete:
			return PhaseIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case PhaseErrored:
		switch event {
		case EventAcknowledge:
			return PhaseIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown phase %q", current)
	}
}

func invalidTransition(phase Phase, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", phase, event)
}
