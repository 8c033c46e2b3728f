// Package lookup builds in-memory indices of previously stored observation features, keyed by image
// fingerprint or perceptual hash, so that the same photograph is not submitted twice.
package lookup

import (
	"context"
	"sync"
)

// LookerUpper is the interface for sources of stored observation features.
type LookerUpper interface {
	// Append passes every feature in the source to each of 'append_funcs'.
	Append(context.Context, *sync.Map, ...AppendLookupFunc) error
}

// NewLookupMap returns a lookup table populated from 'looker_uppers' by 'append_funcs'. Sources are
// read concurrently; the first error cancels the rest.
func NewLookupMap(ctx context.Context, looker_uppers []LookerUpper, append_funcs []AppendLookupFunc) (*sync.Map, error) {

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lu := new(sync.Map)

	done_ch := make(chan bool, len(looker_uppers))
	err_ch := make(chan error, len(looker_uppers))

	remaining := len(looker_uppers)

	for _, l := range looker_uppers {

		go func(l LookerUpper) {

			defer func() {
				done_ch <- true
			}()

			err := l.Append(ctx, lu, append_funcs...)

			if err != nil {
				err_ch <- err
			}

		}(l)
	}

	for remaining > 0 {
		select {
		case <-done_ch:
			remaining -= 1
		case err := <-err_ch:
			return nil, err
		}
	}

	// drain errors reported just before the final done signal
	select {
	case err := <-err_ch:
		return nil, err
	default:
		// pass
	}

	return lu, nil
}
