package submit

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestJournalTransactor(t *testing.T) {

	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "journal", "observations.db")

	tr, err := NewJournalTransactor(ctx, path)

	if err != nil {
		t.Fatalf("Failed to create journal, %v", err)
	}

	defer tr.Close()

	p := fixturePayload(t)

	err = Do(ctx, tr, p)

	if err != nil {
		t.Fatalf("Failed to submit, %v", err)
	}

	entries, err := tr.Entries(ctx)

	if err != nil {
		t.Fatalf("Failed to list entries, %v", err)
	}

	if len(entries) != 1 {
		t.Fatalf("Expected one entry, got %d", len(entries))
	}

	e := entries[0]

	if e.LocalID != 7 || e.SpeciesName != "Dipterocarpus" || e.Timestamp != "2024-01-01 10:00" {
		t.Errorf("Unexpected entry: %+v", e)
	}

	if e.Latitude != -3.745 || e.Longitude != -38.523056 {
		t.Errorf("Unexpected coordinates: %f, %f", e.Latitude, e.Longitude)
	}

	if e.PositionSource != PositionSourceExif {
		t.Errorf("Unexpected position source: %s", e.PositionSource)
	}

	body, err := tr.Image(ctx, e.ID)

	if err != nil {
		t.Fatalf("Failed to load image, %v", err)
	}

	expected, _ := p.Image.Open(ctx)
	defer expected.Close()

	var buf bytes.Buffer
	buf.ReadFrom(expected)

	if !bytes.Equal(body, buf.Bytes()) {
		t.Errorf("Stored image does not match submitted image")
	}

	err = tr.Submit(ctx, fixturePayload(t))

	if !errors.Is(err, ErrDuplicateImage) {
		t.Errorf("Expected ErrDuplicateImage, got %v", err)
	}
}

func TestJournalTransactorReopen(t *testing.T) {

	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "observations.db")

	tr, err := NewJournalTransactor(ctx, path)

	if err != nil {
		t.Fatalf("Failed to create journal, %v", err)
	}

	err = tr.Submit(ctx, fixturePayload(t))

	if err != nil {
		t.Fatalf("Failed to submit, %v", err)
	}

	tr.Close()

	tr, err = NewJournalTransactor(ctx, path)

	if err != nil {
		t.Fatalf("Failed to reopen journal, %v", err)
	}

	defer tr.Close()

	entries, err := tr.Entries(ctx)

	if err != nil {
		t.Fatalf("Failed to list entries, %v", err)
	}

	if len(entries) != 1 {
		t.Errorf("Expected one entry after reopening, got %d", len(entries))
	}
}

func TestJournalTransactorMissingImage(t *testing.T) {

	ctx := context.Background()

	tr, err := NewJournalTransactor(ctx, filepath.Join(t.TempDir(), "observations.db"))

	if err != nil {
		t.Fatalf("Failed to create journal, %v", err)
	}

	defer tr.Close()

	p := testPayload()
	p.Image = nil

	err = tr.Submit(ctx, p)

	if !errors.Is(err, ErrSubmitTransport) {
		t.Errorf("Expected ErrSubmitTransport, got %v", err)
	}
}
