// Package observation owns the in-progress specimen observation and enforces the transitions
// between capture, edit, submit and clear.
package observation

import (
	"errors"

	"github.com/sfomuseum/go-specimen-capture/geotag"
	"github.com/sfomuseum/go-specimen-capture/position"
	"github.com/sfomuseum/go-specimen-capture/source"
)

var (
	// ErrInvalidTransition is returned when an operation is not allowed in the current state.
	ErrInvalidTransition = errors.New("Invalid observation state transition")
	// ErrSubmitPrecondition is returned when submit is called without an image or without any position.
	ErrSubmitPrecondition = errors.New("Observation is not ready to submit")
	// ErrSubmitInFlight is returned while a submission is in progress.
	ErrSubmitInFlight = errors.New("Submission already in progress")
	// ErrUnknownField is returned when editing a field that does not exist.
	ErrUnknownField = errors.New("Unknown observation field")
)

// type State is the explicit state tag of a Session.
type State int

const (
	Empty State = iota
	Captured
	Annotated
	Submitting
	Submitted
	SubmitFailed
)

func (s State) String() string {

	switch s {
	case Empty:
		return "empty"
	case Captured:
		return "captured"
	case Annotated:
		return "annotated"
	case Submitting:
		return "submitting"
	case Submitted:
		return "submitted"
	case SubmitFailed:
		return "submit_failed"
	default:
		return "unknown"
	}
}

// type Field names a user-editable observation field.
type Field string

const (
	FieldDescription Field = "description"
	FieldSpeciesName Field = "speciesName"
)

// type Observation is one in-progress species sighting.
type Observation struct {
	// Locally unique, assigned when an empty observation receives its first image.
	ID          int64
	Image       source.Handle
	Description string
	SpeciesName string
	// The geotag recovered from the image, if any.
	GeoTag *geotag.GeoTag
	// The device position at the time of the last lookup. Never merged with GeoTag.
	LiveFallback *position.Position
	// The state of the extraction for the current image.
	Extraction geotag.Outcome
	// Set when Extraction is geotag.Failed.
	ExtractionErr error
}

// HasPosition reports whether a submission could be made, optionally allowing the live fallback.
func (o *Observation) HasPosition(allow_fallback bool) bool {

	if o.GeoTag != nil {
		return true
	}

	return allow_fallback && o.LiveFallback != nil
}

func (o Observation) clone() Observation {

	c := o

	if o.GeoTag != nil {
		t := *o.GeoTag
		c.GeoTag = &t
	}

	if o.LiveFallback != nil {
		p := *o.LiveFallback
		c.LiveFallback = &p
	}

	return c
}

// type Snapshot is a copy of a session's state and observation.
type Snapshot struct {
	State       State
	Observation Observation
}
