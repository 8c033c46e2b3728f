package capture

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sfomuseum/go-specimen-capture/config"
	"github.com/sfomuseum/go-specimen-capture/lookup"
	"github.com/sfomuseum/go-specimen-capture/observation"
	"github.com/sfomuseum/go-specimen-capture/position"
	"github.com/sfomuseum/go-specimen-capture/submit"
	"github.com/whosonfirst/go-whosonfirst-export/v3"
	"gocloud.dev/blob"
)

// CloseFunc releases the resources held by a transactor.
type CloseFunc func() error

func noop() error {
	return nil
}

// NewTransactor returns the submit.Transactor described by 'cfg' and a function to release it.
func NewTransactor(ctx context.Context, cfg *config.Config) (submit.Transactor, CloseFunc, error) {

	switch cfg.Submit.Transactor {
	case config.TransactorHTTP:

		return submit.NewHTTPTransactor(cfg.Submit.HTTP.URL), noop, nil

	case config.TransactorJournal:

		tr, err := submit.NewJournalTransactor(ctx, cfg.Submit.Journal.Path)

		if err != nil {
			return nil, nil, err
		}

		return tr, tr.Close, nil

	case config.TransactorBucket:

		return newBucketTransactor(ctx, &cfg.Submit.Bucket)

	default:
		return nil, nil, fmt.Errorf("Unsupported transactor '%s'", cfg.Submit.Transactor)
	}
}

func newBucketTransactor(ctx context.Context, cfg *config.BucketConfig) (submit.Transactor, CloseFunc, error) {

	bucket, err := blob.OpenBucket(ctx, cfg.BucketURI)

	if err != nil {
		return nil, nil, fmt.Errorf("Failed to open bucket, %w", err)
	}

	opts := &submit.BucketTransactorOptions{
		Bucket:     bucket,
		WriterURI:  cfg.WriterURI,
		Repo:       cfg.Repo,
		PublicRead: cfg.PublicRead,
		HashImages: cfg.HashImages,
	}

	if cfg.ExporterURI != "" {

		ex, err := export.NewExporter(ctx, cfg.ExporterURI)

		if err != nil {
			bucket.Close()
			return nil, nil, fmt.Errorf("Failed to create exporter, %w", err)
		}

		opts.Exporter = ex
	}

	if len(cfg.LookupURIs) > 0 {

		looker_uppers := make([]lookup.LookerUpper, len(cfg.LookupURIs))

		for i, uri := range cfg.LookupURIs {

			l, err := lookup.NewBlobLookerUpper(ctx, uri)

			if err != nil {
				bucket.Close()
				return nil, nil, fmt.Errorf("Failed to create lookup for %s, %w", uri, err)
			}

			looker_uppers[i] = l
		}

		append_funcs := []lookup.AppendLookupFunc{
			lookup.FingerprintAppendLookupFunc,
		}

		lu, err := lookup.NewLookupMap(ctx, looker_uppers, append_funcs)

		if err != nil {
			bucket.Close()
			return nil, nil, fmt.Errorf("Failed to build fingerprint lookup, %w", err)
		}

		opts.Lookup = lu
	}

	tr, err := submit.NewBucketTransactor(ctx, opts)

	if err != nil {
		bucket.Close()
		return nil, nil, err
	}

	return tr, bucket.Close, nil
}

// NewProvider returns the position.Provider described by 'cfg', or nil if none is configured.
func NewProvider(cfg *config.Config) position.Provider {

	switch cfg.Position.Provider {
	case config.ProviderStatic:
		return position.NewStaticProvider(cfg.Position.Static.Latitude, cfg.Position.Static.Longitude)
	case config.ProviderNMEA:
		return position.NewNMEAProvider(cfg.Position.NMEA)
	default:
		return nil
	}
}

// NewSession returns an observation.Session using the transactor and provider described by 'cfg'.
// The returned CloseFunc releases the transactor.
func NewSession(ctx context.Context, cfg *config.Config) (*observation.Session, CloseFunc, error) {

	tr, closer, err := NewTransactor(ctx, cfg)

	if err != nil {
		return nil, nil, fmt.Errorf("Failed to create transactor, %w", err)
	}

	pr := NewProvider(cfg)

	logger := slog.Default()
	logger.Debug("Create session", "transactor", tr.Name(), "position", cfg.Position.Provider)

	opts := &observation.SessionOptions{
		Transactor: tr,
		Provider:   pr,
	}

	return observation.NewSession(opts), closer, nil
}
