package clone

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/sfomuseum/go-specimen-capture/internal/fixtures"
	"github.com/sfomuseum/go-specimen-capture/source"
	"github.com/sfomuseum/go-specimen-capture/submit"
	"github.com/tidwall/gjson"
	"gocloud.dev/blob/memblob"
)

type counterProvider struct {
	next int64
}

func (pr *counterProvider) NewID(ctx context.Context) (int64, error) {
	return atomic.AddInt64(&pr.next, 1), nil
}

type brokenImages struct{}

func (b *brokenImages) Image(ctx context.Context, id int64) ([]byte, error) {
	return nil, errors.New("no images here")
}

func newJournal(t *testing.T) *submit.JournalTransactor {

	t.Helper()

	ctx := context.Background()

	j, err := submit.NewJournalTransactor(ctx, filepath.Join(t.TempDir(), "observations.db"))

	if err != nil {
		t.Fatalf("Failed to create journal, %v", err)
	}

	t.Cleanup(func() { j.Close() })

	body, err := fixtures.Plain()

	if err != nil {
		t.Fatalf("Failed to build fixture, %v", err)
	}

	p := &submit.Payload{
		ID:             3,
		Image:          source.Bytes("specimen.jpg", body),
		Description:    "bark sample",
		SpeciesName:    "Tectona grandis",
		Timestamp:      "2024-01-01 10:00",
		Latitude:       13.75,
		Longitude:      100.5,
		PositionSource: submit.PositionSourceExif,
	}

	err = j.Submit(ctx, p)

	if err != nil {
		t.Fatalf("Failed to submit to journal, %v", err)
	}

	return j
}

func TestCloneJournal(t *testing.T) {

	ctx := context.Background()

	j := newJournal(t)

	target := memblob.OpenBucket(nil)
	defer target.Close()

	pr := &counterProvider{next: 41}

	opts := &CloneEntryOptions{
		Images:     j,
		Target:     target,
		IDProvider: pr,
		Repo:       "specimen-observations",
		HashImages: true,
	}

	responses, err := CloneJournal(ctx, opts, j)

	if err != nil {
		t.Fatalf("Failed to clone journal, %v", err)
	}

	if len(responses) != 1 {
		t.Fatalf("Unexpected responses: %d", len(responses))
	}

	rsp := responses[0]

	if rsp.Skipped {
		t.Errorf("Did not expect first clone to be skipped")
	}

	entries, err := j.Entries(ctx)

	if err != nil {
		t.Fatalf("Failed to read entries, %v", err)
	}

	e := entries[0]

	expected_image := fmt.Sprintf("%d_%s.jpg", e.ID, e.Fingerprint)

	if rsp.ImagePath != expected_image {
		t.Errorf("Unexpected image path %s, expected %s", rsp.ImagePath, expected_image)
	}

	attrs, err := target.Attributes(ctx, rsp.ImagePath)

	if err != nil {
		t.Fatalf("Failed to read image attributes, %v", err)
	}

	if attrs.ContentType != "image/jpeg" {
		t.Errorf("Unexpected content type: %s", attrs.ContentType)
	}

	body, err := target.ReadAll(ctx, rsp.FeaturePath)

	if err != nil {
		t.Fatalf("Failed to read feature, %v", err)
	}

	expected := map[string]string{
		"properties.wof:id":            "42",
		"properties.wof:name":          "Tectona grandis",
		"properties.obs:local_id":      "3",
		"properties.obs:description":   "bark sample",
		"properties.obs:journal_id":    fmt.Sprintf("%d", e.ID),
		"properties.media:fingerprint": e.Fingerprint,
	}

	for path, v := range expected {

		if gjson.GetBytes(body, path).String() != v {
			t.Errorf("Unexpected value for %s: %s", path, gjson.GetBytes(body, path).Raw)
		}
	}

	if !gjson.GetBytes(body, "properties.media:imagehash_avg").Exists() {
		t.Errorf("Missing image hash")
	}

	responses, err = CloneJournal(ctx, opts, j)

	if err != nil {
		t.Fatalf("Failed to clone journal again, %v", err)
	}

	if !responses[0].Skipped {
		t.Errorf("Expected second clone to be skipped")
	}

	if pr.next != 42 {
		t.Errorf("Expected skipped clone not to mint an ID, counter is %d", pr.next)
	}

	opts.Force = true

	responses, err = CloneJournal(ctx, opts, j)

	if err != nil {
		t.Fatalf("Failed to force clone, %v", err)
	}

	if responses[0].Skipped {
		t.Errorf("Did not expect forced clone to be skipped")
	}
}

func TestCloneEntryImageFailure(t *testing.T) {

	ctx := context.Background()

	target := memblob.OpenBucket(nil)
	defer target.Close()

	opts := &CloneEntryOptions{
		Images:     &brokenImages{},
		Target:     target,
		IDProvider: &counterProvider{},
	}

	e := &submit.JournalEntry{
		ID:          1,
		Fingerprint: "abc",
		MimeType:    "image/png",
	}

	_, err := CloneEntry(ctx, opts, e)

	if err == nil {
		t.Fatalf("Expected clone to fail")
	}

	exists, err := target.Exists(ctx, "1_abc.png")

	if err != nil || exists {
		t.Errorf("Expected nothing to be written (%v)", err)
	}
}
