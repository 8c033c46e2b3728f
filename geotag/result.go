package geotag

import (
	"context"
	"errors"

	"github.com/sfomuseum/go-specimen-capture/metrics"
	"github.com/sfomuseum/go-specimen-capture/source"
)

// type Outcome describes the state of an extraction.
type Outcome int

const (
	// Pending means that extraction has been started but has not resolved.
	Pending Outcome = iota
	// Resolved means that a complete GeoTag was found.
	Resolved
	// Absent means that the image decoded but did not carry a complete geotag.
	Absent
	// Failed means that the image bytes could not be fetched or decoded.
	Failed
)

func (o Outcome) String() string {

	switch o {
	case Pending:
		return "pending"
	case Resolved:
		return metrics.OutcomeResolved
	case Absent:
		return metrics.OutcomeAbsent
	case Failed:
		return metrics.OutcomeFailed
	default:
		return "unknown"
	}
}

// type Result keeps the three extraction variants (found, not found, failed) apart.
type Result struct {
	Outcome Outcome
	GeoTag  *GeoTag
	Err     error
}

// Resolve extracts the GeoTag for 'h' and classifies the outcome.
func Resolve(ctx context.Context, h source.Handle) Result {

	t, err := ExtractWithHandle(ctx, h)

	var rsp Result

	switch {
	case err != nil:

		if !errors.Is(err, ErrExtractionUnavailable) {
			err = errors.Join(ErrExtractionUnavailable, err)
		}

		rsp = Result{Outcome: Failed, Err: err}

	case t == nil:
		rsp = Result{Outcome: Absent}
	default:
		rsp = Result{Outcome: Resolved, GeoTag: t}
	}

	metrics.GeoTagExtractions.WithLabelValues(rsp.Outcome.String()).Inc()
	return rsp
}
