package capture

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sfomuseum/go-specimen-capture/config"
	"github.com/sfomuseum/go-specimen-capture/internal/fixtures"
	"github.com/sfomuseum/go-specimen-capture/observation"
	"github.com/sfomuseum/go-specimen-capture/position"
	"github.com/sfomuseum/go-specimen-capture/source"
	"github.com/sfomuseum/go-specimen-capture/submit"
	_ "gocloud.dev/blob/memblob"
)

func TestNewTransactor(t *testing.T) {

	ctx := context.Background()

	cfg := config.Default()
	cfg.Submit.Transactor = config.TransactorHTTP
	cfg.Submit.HTTP.URL = "http://localhost:8080/observations"

	tr, closer, err := NewTransactor(ctx, cfg)

	if err != nil {
		t.Fatalf("Failed to create http transactor, %v", err)
	}

	defer closer()

	if _, ok := tr.(*submit.HTTPTransactor); !ok {
		t.Errorf("Expected HTTPTransactor, got %T", tr)
	}

	cfg.Submit.Transactor = config.TransactorBucket
	cfg.Submit.Bucket.BucketURI = "mem://"
	cfg.Submit.Bucket.WriterURI = "fs://" + t.TempDir()
	cfg.Submit.Bucket.LookupURIs = []string{"mem://"}

	tr, closer, err = NewTransactor(ctx, cfg)

	if err != nil {
		t.Fatalf("Failed to create bucket transactor, %v", err)
	}

	if _, ok := tr.(*submit.BucketTransactor); !ok {
		t.Errorf("Expected BucketTransactor, got %T", tr)
	}

	err = closer()

	if err != nil {
		t.Errorf("Failed to close bucket transactor, %v", err)
	}

	cfg.Submit.Transactor = "carrier-pigeon"

	_, _, err = NewTransactor(ctx, cfg)

	if err == nil {
		t.Errorf("Expected unsupported transactor to fail")
	}
}

func TestNewProvider(t *testing.T) {

	cfg := config.Default()

	if NewProvider(cfg) != nil {
		t.Errorf("Expected no provider by default")
	}

	cfg.Position.Provider = config.ProviderStatic
	cfg.Position.Static.Latitude = -6.2
	cfg.Position.Static.Longitude = 106.8

	pr := NewProvider(cfg)

	pos, err := pr.CurrentPosition(context.Background())

	if err != nil || pos != (position.Position{Latitude: -6.2, Longitude: 106.8}) {
		t.Errorf("Unexpected static position %v, %v", pos, err)
	}

	cfg.Position.Provider = config.ProviderNMEA
	cfg.Position.NMEA.PortPath = "/dev/null-gps"

	if _, ok := NewProvider(cfg).(*position.NMEAProvider); !ok {
		t.Errorf("Expected NMEAProvider")
	}
}

func TestNewSessionJournal(t *testing.T) {

	ctx := context.Background()

	cfg := config.Default()
	cfg.Submit.Journal.Path = filepath.Join(t.TempDir(), "observations.db")

	s, closer, err := NewSession(ctx, cfg)

	if err != nil {
		t.Fatalf("Failed to create session, %v", err)
	}

	defer closer()

	body, err := fixtures.JPEG(&fixtures.Tags{
		Latitude:     fixtures.DMS(3, 44, 42),
		LatitudeRef:  "S",
		Longitude:    fixtures.DMS(38, 31, 23),
		LongitudeRef: "W",
		DateTime:     "2024-01-01 10:00",
	})

	if err != nil {
		t.Fatalf("Failed to build fixture, %v", err)
	}

	err = s.Capture(ctx, source.Bytes("specimen.jpg", body))

	if err != nil {
		t.Fatalf("Failed to capture, %v", err)
	}

	_, err = s.Await(ctx)

	if err != nil {
		t.Fatalf("Failed to await extraction, %v", err)
	}

	err = s.Edit(observation.FieldSpeciesName, "Dipterocarpus")

	if err != nil {
		t.Fatalf("Failed to edit, %v", err)
	}

	err = s.Submit(ctx, nil)

	if err != nil {
		t.Fatalf("Failed to submit, %v", err)
	}

	if s.State() != observation.Submitted {
		t.Errorf("Expected submitted state, got %s", s.State())
	}
}
