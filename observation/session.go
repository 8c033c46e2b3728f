package observation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sfomuseum/go-specimen-capture/geotag"
	"github.com/sfomuseum/go-specimen-capture/metrics"
	"github.com/sfomuseum/go-specimen-capture/position"
	"github.com/sfomuseum/go-specimen-capture/source"
	"github.com/sfomuseum/go-specimen-capture/submit"
)

// ExtractFunc resolves the geotag for an image handle.
type ExtractFunc func(context.Context, source.Handle) geotag.Result

// SessionOptions configures a Session.
type SessionOptions struct {
	// The transactor used by Submit. Required to submit.
	Transactor submit.Transactor
	// An optional live position provider.
	Provider position.Provider
	// An optional extraction function. Defaults to geotag.Resolve.
	Extract ExtractFunc
}

// SubmitOptions configures a single call to Session.Submit.
type SubmitOptions struct {
	// Submit the live fallback position when the image has no geotag.
	UseLiveFallback bool
}

// Session owns a single in-progress observation. Its methods are safe for concurrent use but a
// session models one user's capture flow.
type Session struct {
	mu         sync.Mutex
	state      State
	obs        Observation
	generation uint64
	last_id    int64
	resolved   chan struct{}
	cancel     context.CancelFunc
	inflight   sync.WaitGroup
	transactor submit.Transactor
	provider   position.Provider
	extract    ExtractFunc
}

// NewSession returns a Session in the Empty state.
func NewSession(opts *SessionOptions) *Session {

	s := &Session{
		state:      Empty,
		transactor: opts.Transactor,
		provider:   opts.Provider,
		extract:    opts.Extract,
	}

	if s.extract == nil {
		s.extract = geotag.Resolve
	}

	return s
}

// State returns the session's current state.
func (s *Session) State() State {

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Snapshot returns a copy of the session's state and observation.
func (s *Session) Snapshot() Snapshot {

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshot()
}

func (s *Session) snapshot() Snapshot {

	return Snapshot{
		State:       s.state,
		Observation: s.obs.clone(),
	}
}

// Capture stores 'h' as the observation's image and starts extracting its geotag in the background.
// It returns before the extraction resolves. Results for an image that has since been replaced or
// cleared are discarded.
func (s *Session) Capture(ctx context.Context, h source.Handle) error {

	if h == nil {
		return fmt.Errorf("Missing image, %w", ErrInvalidTransition)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Submitting {
		return ErrSubmitInFlight
	}

	if s.state == Empty || s.state == Submitted || s.obs.ID == 0 {

		s.last_id += 1

		s.obs = Observation{
			ID:           s.last_id,
			LiveFallback: s.obs.LiveFallback,
		}
	}

	s.supersede()

	gen := s.generation

	s.obs.Image = h
	s.obs.GeoTag = nil
	s.obs.Extraction = geotag.Pending
	s.obs.ExtractionErr = nil

	s.state = Captured

	ext_ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	s.cancel = cancel
	s.resolved = done

	s.inflight.Add(1)
	go s.resolve(ext_ctx, gen, h, done)

	slog.Debug("Image captured", "observation", s.obs.ID, "image", h.Name(), "generation", gen)
	return nil
}

// supersede cancels any in-flight extraction and advances the generation counter. Callers must hold s.mu.
func (s *Session) supersede() {

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}

	s.generation += 1
}

func (s *Session) resolve(ctx context.Context, gen uint64, h source.Handle, done chan struct{}) {

	defer s.inflight.Done()
	defer close(done)

	rsp := s.extract(ctx, h)

	s.mu.Lock()
	defer s.mu.Unlock()

	logger := slog.Default()
	logger = logger.With("image", h.Name(), "generation", gen)

	if gen != s.generation {
		logger.Debug("Discard stale extraction result", "current", s.generation)
		metrics.StaleExtractions.Inc()
		return
	}

	s.obs.Extraction = rsp.Outcome

	switch rsp.Outcome {
	case geotag.Resolved:
		s.obs.GeoTag = rsp.GeoTag
	case geotag.Failed:
		s.obs.ExtractionErr = rsp.Err
		logger.Warn("Failed to extract geotag", "error", rsp.Err)
	default:
		// pass
	}
}

// Await blocks until the current image's extraction is no longer pending and returns a snapshot.
func (s *Session) Await(ctx context.Context) (Snapshot, error) {

	for {

		s.mu.Lock()

		if s.obs.Image == nil || s.obs.Extraction != geotag.Pending {
			snap := s.snapshot()
			s.mu.Unlock()
			return snap, nil
		}

		done := s.resolved
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return Snapshot{}, ctx.Err()
		case <-done:
			// pass
		}
	}
}

// Wait blocks until every extraction started by the session has returned, including stale ones.
func (s *Session) Wait() {
	s.inflight.Wait()
}

// Edit updates a user-entered field. It is allowed once an image exists, including before its
// geotag has resolved.
func (s *Session) Edit(field Field, value string) error {

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case Captured, Annotated, SubmitFailed:
		// pass
	default:
		return fmt.Errorf("Cannot edit observation in %s state, %w", s.state, ErrInvalidTransition)
	}

	switch field {
	case FieldDescription:
		s.obs.Description = value
	case FieldSpeciesName:
		s.obs.SpeciesName = value
	default:
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}

	s.state = Annotated
	return nil
}

// RefreshLivePosition asks the session's position provider for the device's current position and
// stores it as the observation's live fallback. A failed lookup leaves no fallback and is not an error.
// A fix that arrives after the observation was captured over, cleared or submitted, or while a
// submission is in flight, is discarded and nil is returned.
func (s *Session) RefreshLivePosition(ctx context.Context) *position.Position {

	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()

	pos := position.Lookup(ctx, s.provider)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation || s.state == Submitting {
		slog.Debug("Discard stale live position", "generation", gen, "current", s.generation, "state", s.state)
		return nil
	}

	s.obs.LiveFallback = pos

	if pos == nil {
		return nil
	}

	p := *pos
	return &p
}

// Submit validates the observation, hands it to the session's transactor and records the outcome.
// Preconditions are checked before any network activity. On success the observation is reset; on
// failure it is left untouched so the user can retry.
//
// Submit is accepted from Captured as well as Annotated and SubmitFailed: an observation does not
// need to be edited before it is submitted.
func (s *Session) Submit(ctx context.Context, opts *SubmitOptions) error {

	if opts == nil {
		opts = &SubmitOptions{}
	}

	s.mu.Lock()

	if s.state == Submitting {
		s.mu.Unlock()
		return ErrSubmitInFlight
	}

	p, err := s.payload(opts)

	if err != nil {
		s.mu.Unlock()
		return err
	}

	switch s.state {
	case Captured, Annotated, SubmitFailed:
		// pass
	default:
		s.mu.Unlock()
		return fmt.Errorf("Cannot submit observation in %s state, %w", s.state, ErrInvalidTransition)
	}

	t := s.transactor
	s.state = Submitting

	s.mu.Unlock()

	err = submit.Do(ctx, t, p)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.state = SubmitFailed
		return fmt.Errorf("Failed to submit observation %d, %w", p.ID, err)
	}

	s.supersede()

	s.obs = Observation{}
	s.state = Submitted

	return nil
}

// payload builds the submission payload. Callers must hold s.mu.
func (s *Session) payload(opts *SubmitOptions) (*submit.Payload, error) {

	if s.obs.Image == nil {
		return nil, fmt.Errorf("Observation has no image, %w", ErrSubmitPrecondition)
	}

	if !s.obs.HasPosition(opts.UseLiveFallback) {
		return nil, fmt.Errorf("Observation has no geotag or live fallback position, %w", ErrSubmitPrecondition)
	}

	if s.transactor == nil {
		return nil, fmt.Errorf("No transactor configured, %w", ErrSubmitPrecondition)
	}

	p := &submit.Payload{
		ID:          s.obs.ID,
		Image:       s.obs.Image,
		Description: s.obs.Description,
		SpeciesName: s.obs.SpeciesName,
	}

	if s.obs.GeoTag != nil {
		p.Timestamp = s.obs.GeoTag.CapturedAt
		p.Latitude = s.obs.GeoTag.Latitude
		p.Longitude = s.obs.GeoTag.Longitude
		p.PositionSource = submit.PositionSourceExif
	} else {
		p.Timestamp = geotag.Unknown
		p.Latitude = s.obs.LiveFallback.Latitude
		p.Longitude = s.obs.LiveFallback.Longitude
		p.PositionSource = submit.PositionSourceDevice
	}

	return p, nil
}

// Clear discards the image, geotag, fallback position and text fields and returns the session to
// Empty. It is refused while a submission is in flight.
func (s *Session) Clear() error {

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Submitting {
		return ErrSubmitInFlight
	}

	s.supersede()

	s.obs = Observation{}
	s.state = Empty

	return nil
}

// IsPrecondition reports whether 'err' is a submit precondition failure rather than a transport failure.
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrSubmitPrecondition)
}
