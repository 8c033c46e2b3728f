// Package clone copies observations recorded in a journal into a bucket where they can be
// processed: one image and one feature per observation.
package clone

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/sfomuseum/go-specimen-capture/common"
	"github.com/sfomuseum/go-specimen-capture/feature"
	"github.com/sfomuseum/go-specimen-capture/source"
	"github.com/sfomuseum/go-specimen-capture/submit"
	"github.com/whosonfirst/go-whosonfirst-id"
	"gocloud.dev/blob"
)

// type ImageSource returns the image bytes for a journal entry.
type ImageSource interface {
	Image(context.Context, int64) ([]byte, error)
}

type CloneEntryOptions struct {
	Images ImageSource
	Target *blob.Bucket
	// Used to mint the WOF ID for each cloned feature.
	IDProvider id.Provider
	Repo       string
	HashImages bool
	// Overwrite entries that have already been cloned.
	Force bool
}

// type CloneEntryResponse describes where an entry was cloned to.
type CloneEntryResponse struct {
	Entry       int64  `json:"entry"`
	ImagePath   string `json:"image"`
	FeaturePath string `json:"feature"`
	Skipped     bool   `json:"skipped"`
}

// CloneEntry copies 'e' and its image to opts.Target as "{entry}_{fingerprint}.{extension}" and
// "{entry}.geojson". Entries whose image is already present are skipped unless opts.Force is set.
func CloneEntry(ctx context.Context, opts *CloneEntryOptions, e *submit.JournalEntry) (*CloneEntryResponse, error) {

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
		// pass
	}

	extension := extensionForMimeType(e.MimeType)

	rsp := &CloneEntryResponse{
		Entry:       e.ID,
		ImagePath:   fmt.Sprintf("%d_%s.%s", e.ID, e.Fingerprint, extension),
		FeaturePath: fmt.Sprintf("%d.geojson", e.ID),
	}

	if !opts.Force {

		exists, err := opts.Target.Exists(ctx, rsp.ImagePath)

		if err != nil {
			return nil, fmt.Errorf("Failed to determine if %s exists, %w", rsp.ImagePath, err)
		}

		if exists {
			rsp.Skipped = true
			return rsp, nil
		}
	}

	body, err := opts.Images.Image(ctx, e.ID)

	if err != nil {
		return nil, err
	}

	wr_opts := &blob.WriterOptions{
		ContentType: e.MimeType,
	}

	err = opts.Target.WriteAll(ctx, rsp.ImagePath, body, wr_opts)

	if err != nil {
		return nil, fmt.Errorf("Failed to write %s, %w", rsp.ImagePath, err)
	}

	enc_f, err := newFeature(ctx, opts, e, extension, body)

	if err != nil {
		opts.Target.Delete(ctx, rsp.ImagePath)
		return nil, fmt.Errorf("Failed to create feature for entry %d, %w", e.ID, err)
	}

	f_opts := &blob.WriterOptions{
		ContentType: "application/geo+json",
	}

	err = opts.Target.WriteAll(ctx, rsp.FeaturePath, enc_f, f_opts)

	if err != nil {
		opts.Target.Delete(ctx, rsp.ImagePath)
		return nil, fmt.Errorf("Failed to write %s, %w", rsp.FeaturePath, err)
	}

	return rsp, nil
}

// CloneJournal clones every entry in 'j', stopping at the first failure.
func CloneJournal(ctx context.Context, opts *CloneEntryOptions, j *submit.JournalTransactor) ([]*CloneEntryResponse, error) {

	entries, err := j.Entries(ctx)

	if err != nil {
		return nil, err
	}

	responses := make([]*CloneEntryResponse, 0)

	for _, e := range entries {

		rsp, err := CloneEntry(ctx, opts, e)

		if err != nil {
			return responses, err
		}

		slog.Debug("Cloned journal entry", "entry", e.ID, "image", rsp.ImagePath, "skipped", rsp.Skipped)
		responses = append(responses, rsp)
	}

	return responses, nil
}

func newFeature(ctx context.Context, opts *CloneEntryOptions, e *submit.JournalEntry, extension string, body []byte) ([]byte, error) {

	rec := &feature.Record{
		LocalID:        e.LocalID,
		Description:    e.Description,
		SpeciesName:    e.SpeciesName,
		Timestamp:      e.Timestamp,
		Latitude:       e.Latitude,
		Longitude:      e.Longitude,
		PositionSource: e.PositionSource,
	}

	f_opts := &feature.NewObservationFeatureOptions{
		Repo:        opts.Repo,
		Fingerprint: e.Fingerprint,
		MimeType:    e.MimeType,
		Extension:   extension,
		CustomProperties: map[string]interface{}{
			"obs:journal_id": e.ID,
		},
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(body))

	if err == nil {
		f_opts.Width = cfg.Width
		f_opts.Height = cfg.Height
	}

	if opts.HashImages {

		hashes, err := common.ImageHashes(ctx, source.Bytes(extension, body))

		if err != nil {
			return nil, err
		}

		f_opts.ImageHashes = hashes
	}

	if opts.IDProvider == nil {
		return feature.NewObservationFeature(ctx, rec, f_opts)
	}

	return feature.NewObservationFeatureWithProvider(ctx, opts.IDProvider, rec, f_opts)
}

func extensionForMimeType(mime_type string) string {

	switch mime_type {
	case "image/png":
		return "png"
	case "image/gif":
		return "gif"
	default:
		return "jpg"
	}
}
