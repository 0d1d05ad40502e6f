// Package reveal paces the staged disclosure of reply artifacts.
package reveal

import (
	"context"
	"time"
)

// Artifact names one revealable part of a reply.
type Artifact string

const (
	ArtifactResponse  Artifact = "response"
	ArtifactLocations Artifact = "locations"
	ArtifactSummary   Artifact = "summary+keywords"
)

// Order is the only order artifacts are ever revealed in.
var Order = []Artifact{ArtifactResponse, ArtifactLocations, ArtifactSummary}

// Event records when an artifact became visible relative to timeline start.
type Event struct {
	Artifact    Artifact
	AvailableAt time.Duration
}

// Schedule holds minimum offsets from response arrival.
type Schedule struct {
	Locations time.Duration
	Summary   time.Duration
}

// Plan returns the declarative timeline for s. Offsets never decrease.
func (s Schedule) Plan() []Event {
	locations := max(s.Locations, 0)
	summary := max(s.Summary, locations)
	return []Event{
		{Artifact: ArtifactResponse},
		{Artifact: ArtifactLocations, AvailableAt: locations},
		{Artifact: ArtifactSummary, AvailableAt: summary},
	}
}

// Timeline fires reveal events as artifacts arrive.
type Timeline struct {
	schedule Schedule
	now      func() time.Time
}

// New builds a Timeline for schedule.
func New(schedule Schedule) *Timeline {
	return &Timeline{schedule: schedule, now: time.Now}
}

// Run fires each artifact in Order once it has arrived on arrivals, its
// scheduled offset has elapsed, and the previous artifact has fired. Closing
// arrivals marks every remaining artifact as arrived. Run returns nil after
// the last event fires, or ctx.Err() if ctx ends first.
func (t *Timeline) Run(ctx context.Context, arrivals <-chan Artifact, fire func(Event)) error {
	start := t.now()
	arrived := make(map[Artifact]bool, len(Order))
	closed := arrivals == nil

	for _, planned := range t.schedule.Plan() {
		for !closed && !arrived[planned.Artifact] {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case artifact, ok := <-arrivals:
				if !ok {
					closed = true
					continue
				}
				arrived[artifact] = true
			}
		}

		if wait := planned.AvailableAt - t.now().Sub(start); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		fire(Event{Artifact: planned.Artifact, AvailableAt: t.now().Sub(start)})
	}
	return nil
}
