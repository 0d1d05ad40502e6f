package session

import (
	"slices"
	"time"

	"github.com/rbright/resq/internal/fsm"
)

// Kind classifies a surfaced or logged cycle error.
type Kind string

const (
	KindCaptureUnsupported Kind = "capture_unsupported"
	KindCaptureFailed      Kind = "capture_failed"
	KindNetwork            Kind = "network"
	KindMalformedReply     Kind = "malformed_reply"
	KindPlayback           Kind = "playback"
)

// Error is the transient error shown while a cycle is errored.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// State is the single mutable record owned by an Orchestrator. Locations,
// Summary and Keywords hold only what has been revealed so far.
type State struct {
	Phase        fsm.Phase `json:"phase"`
	Transcript   string    `json:"transcript,omitempty"`
	ResponseText string    `json:"response_text,omitempty"`
	Locations    []string  `json:"locations,omitempty"`
	Summary      string    `json:"summary,omitempty"`
	Keywords     []string  `json:"keywords,omitempty"`
	IsSpeaking   bool      `json:"is_speaking"`

	ResponseVisible  bool `json:"response_visible"`
	LocationsVisible bool `json:"locations_visible"`
	SummaryVisible   bool `json:"summary_visible"`

	Error *Error `json:"error,omitempty"`
}

// Empty reports whether no cycle output is held.
func (s State) Empty() bool {
	return s.Transcript == "" &&
		s.ResponseText == "" &&
		len(s.Locations) == 0 &&
		s.Summary == "" &&
		len(s.Keywords) == 0 &&
		!s.IsSpeaking &&
		!s.ResponseVisible &&
		!s.LocationsVisible &&
		!s.SummaryVisible &&
		s.Error == nil
}

func (s State) clone() State {
	out := s
	out.Locations = slices.Clone(s.Locations)
	out.Keywords = slices.Clone(s.Keywords)
	if s.Error != nil {
		e := *s.Error
		out.Error = &e
	}
	return out
}

// Snapshot is an immutable copy of State published to observers.
type Snapshot struct {
	State
	SessionID string    `json:"session_id"`
	CycleID   string    `json:"cycle_id,omitempty"`
	Version   uint64    `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}
