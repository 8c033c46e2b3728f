// Package position defines the live device position capability used as a map-centering
// default when an image carries no geotag.
package position

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sfomuseum/go-specimen-capture/metrics"
)

// ErrPositionUnavailable is returned when location services are unavailable or permission was denied.
var ErrPositionUnavailable = errors.New("Position unavailable")

// type Position is a single device fix in decimal degrees.
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Provider is the interface for live device position sources.
type Provider interface {
	// Name returns a label for the provider, used in logs and metrics.
	Name() string
	// CurrentPosition returns the current fix. Errors wrap ErrPositionUnavailable.
	CurrentPosition(context.Context) (Position, error)
}

// Lookup calls 'pr' and returns a pointer to its fix, or nil if no fix is available. Failures are
// logged and counted but never returned: a missing fallback position is not fatal to a capture.
func Lookup(ctx context.Context, pr Provider) *Position {

	if pr == nil {
		return nil
	}

	logger := slog.Default()
	logger = logger.With("provider", pr.Name())

	pos, err := pr.CurrentPosition(ctx)

	if err != nil {
		logger.Warn("Live position unavailable", "error", err)
		metrics.PositionLookups.WithLabelValues(pr.Name(), metrics.OutcomeFailure).Inc()
		return nil
	}

	metrics.PositionLookups.WithLabelValues(pr.Name(), metrics.OutcomeSuccess).Inc()
	return &pos
}

// StaticProvider returns a fixed, configured position. A nil Position means the provider is unavailable.
type StaticProvider struct {
	Position *Position
}

// NewStaticProvider returns a StaticProvider for 'lat' and 'lon'.
func NewStaticProvider(lat float64, lon float64) *StaticProvider {

	pos := &Position{
		Latitude:  lat,
		Longitude: lon,
	}

	return &StaticProvider{Position: pos}
}

func (p *StaticProvider) Name() string {
	return "static"
}

func (p *StaticProvider) CurrentPosition(ctx context.Context) (Position, error) {

	if p.Position == nil {
		return Position{}, fmt.Errorf("No static position configured, %w", ErrPositionUnavailable)
	}

	return *p.Position, nil
}
