// Package submit packages observations in to transfer payloads and performs a single upload attempt.
package submit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sfomuseum/go-specimen-capture/geo"
	"github.com/sfomuseum/go-specimen-capture/metrics"
	"github.com/sfomuseum/go-specimen-capture/source"
)

// ErrSubmitTransport is wrapped by every error a Transactor returns, whether the cause was
// the transport, a non-success response or building the payload.
var ErrSubmitTransport = errors.New("Submission failed")

// ErrDuplicateImage is returned by transactors that keep an index of image fingerprints.
var ErrDuplicateImage = fmt.Errorf("Image has already been submitted, %w", ErrSubmitTransport)

// Position sources recorded with a payload.
const (
	PositionSourceExif   = "exif"
	PositionSourceDevice = "device"
)

// type Payload is everything sent for a single observation.
type Payload struct {
	// The local observation ID.
	ID int64
	// The image being submitted. The payload does not own the bytes.
	Image       source.Handle
	Description string
	SpeciesName string
	// The capture timestamp, which may be "Unknown".
	Timestamp string
	Latitude  float64
	Longitude float64
	// Where the position came from, PositionSourceExif or PositionSourceDevice.
	PositionSource string
}

// LatitudeString returns the payload latitude formatted to six decimal places.
func (p *Payload) LatitudeString() string {
	return geo.FormatDecimal(p.Latitude)
}

// LongitudeString returns the payload longitude formatted to six decimal places.
func (p *Payload) LongitudeString() string {
	return geo.FormatDecimal(p.Longitude)
}

// Fields returns the non-file form fields for the payload, in upload order.
func (p *Payload) Fields() [][2]string {

	fields := [][2]string{
		{"description", p.Description},
		{"speciesName", p.SpeciesName},
		{"timestamp", p.Timestamp},
		{"latitude", p.LatitudeString()},
		{"longitude", p.LongitudeString()},
	}

	return fields
}

// Transactor performs exactly one upload attempt per call to Submit. It does not retry.
type Transactor interface {
	Name() string
	// Submit uploads 'p'. Errors wrap ErrSubmitTransport.
	Submit(context.Context, *Payload) error
}

// Failure wraps 'err' so that it matches ErrSubmitTransport.
func Failure(msg string, err error) error {

	if err == nil {
		return fmt.Errorf("%s, %w", msg, ErrSubmitTransport)
	}

	if errors.Is(err, ErrSubmitTransport) {
		return fmt.Errorf("%s, %w", msg, err)
	}

	return fmt.Errorf("%s, %w, %w", msg, ErrSubmitTransport, err)
}

// Do calls 't.Submit', logs the outcome and counts it.
func Do(ctx context.Context, t Transactor, p *Payload) error {

	logger := slog.Default()
	logger = logger.With("transactor", t.Name(), "observation", p.ID)

	err := t.Submit(ctx, p)

	if err != nil {

		if !errors.Is(err, ErrSubmitTransport) {
			err = Failure("Failed to submit observation", err)
		}

		logger.Error("Submission failed", "error", err)
		metrics.Submissions.WithLabelValues(t.Name(), metrics.OutcomeFailure).Inc()
		return err
	}

	logger.Info("Observation submitted")
	metrics.Submissions.WithLabelValues(t.Name(), metrics.OutcomeSuccess).Inc()
	return nil
}
