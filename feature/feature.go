// Package feature produces Who's On First (WOF) style GeoJSON Feature documents for submitted
// specimen observations.
package feature

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sfomuseum/go-specimen-capture/common"
	"github.com/whosonfirst/go-whosonfirst-id"
)

// The wof:name assigned to observations with no species name.
const UnidentifiedName = "Unidentified specimen"

// The EXIF DateTime layout used to derive obs:created.
const ExifDateTimeLayout = "2006:01:02 15:04:05"

// type Coordinates stores a single longitude, latitude coordinate pair.
type Coordinates []float64

// type Geometry stores a GeoJSON geometry dictionary.
type Geometry struct {
	Type        string      `json:"type"`
	Coordinates Coordinates `json:"coordinates"`
}

// type Properties stores a GeoJSON properties dictionary.
type Properties map[string]interface{}

// type Feature provides a GeoJSON struct.
type Feature struct {
	Type       string     `json:"type"`
	Properties Properties `json:"properties"`
	Geometry   Geometry   `json:"geometry"`
}

// type Record is the observation data recorded in a feature.
type Record struct {
	// The WOF ID to assign. If 0 a new ID is minted.
	ID int64
	// The observation's session-local ID.
	LocalID     int64
	Description string
	SpeciesName string
	// The capture timestamp, which may be "Unknown".
	Timestamp string
	Latitude  float64
	Longitude float64
	// "exif" or "device".
	PositionSource string
}

// NewFeatureNameFunc is a function for manipulating a species name in to the final wof:name property.
type NewFeatureNameFunc func(string) (string, error)

// NewObservationFeatureOptions is a struct containing application-specific options used in the
// creation of new observation GeoJSON Features.
type NewObservationFeatureOptions struct {
	// The name of the repository that this feature will be stored in.
	Repo string
	// An optional NewFeatureNameFunc for deriving the final wof:name property.
	NameFunction NewFeatureNameFunc
	// The SHA-1 fingerprint of the observation's image.
	Fingerprint string
	// The MIME type of the observation's image.
	MimeType string
	// Perceptual hashes of the observation's image.
	ImageHashes []*common.ImageHashRsp
	// The secret used to derive the stored image's filename.
	Secret string
	// The stored image's file extension, without the leading dot.
	Extension string
	Width     int
	Height    int
	// Custom properties to assign to the new Feature
	CustomProperties map[string]interface{}
}

// NewObservationFeature creates a new GeoJSON Feature for 'rec' with a newly minted WOF ID.
func NewObservationFeature(ctx context.Context, rec *Record, opts *NewObservationFeatureOptions) ([]byte, error) {

	pr, err := id.NewProvider(ctx)

	if err != nil {
		return nil, fmt.Errorf("Failed to create ID provider, %w", err)
	}

	return NewObservationFeatureWithProvider(ctx, pr, rec, opts)
}

// NewObservationFeatureWithProvider creates a new GeoJSON Feature for 'rec', using a custom id.Provider.
func NewObservationFeatureWithProvider(ctx context.Context, pr id.Provider, rec *Record, opts *NewObservationFeatureOptions) ([]byte, error) {

	if rec == nil {
		return nil, errors.New("Missing record")
	}

	if opts == nil {
		opts = &NewObservationFeatureOptions{}
	}

	wof_id := rec.ID

	if wof_id == 0 {

		new_id, err := pr.NewID(ctx)

		if err != nil {
			return nil, fmt.Errorf("Failed to mint new ID, %w", err)
		}

		wof_id = new_id
	}

	wof_name := strings.TrimSpace(rec.SpeciesName)

	if wof_name == "" {
		wof_name = UnidentifiedName
	}

	if opts.NameFunction != nil {

		name, err := opts.NameFunction(wof_name)

		if err != nil {
			return nil, fmt.Errorf("Failed to derive name, %w", err)
		}

		wof_name = name
	}

	geom := Geometry{
		Type: "Point",
		Coordinates: Coordinates{
			rec.Longitude,
			rec.Latitude,
		},
	}

	props := make(map[string]interface{})

	props["wof:id"] = wof_id
	props["wof:name"] = wof_name
	props["wof:placetype"] = "media"
	props["wof:lastmodified"] = time.Now().Unix()

	if opts.Repo != "" {
		props["wof:repo"] = opts.Repo
	}

	props["geom:latitude"] = rec.Latitude
	props["geom:longitude"] = rec.Longitude

	// device positions are where the phone was, not where the photo was taken
	props["mz:is_approximate"] = 0

	if rec.PositionSource != "exif" {
		props["mz:is_approximate"] = 1
	}

	props["obs:local_id"] = rec.LocalID
	props["obs:description"] = rec.Description
	props["obs:species"] = rec.SpeciesName
	props["obs:timestamp"] = rec.Timestamp
	props["obs:position_source"] = rec.PositionSource

	t, err := time.Parse(ExifDateTimeLayout, rec.Timestamp)

	if err == nil {
		props["obs:created"] = t.Unix()
	}

	props["media:medium"] = "image"
	props["media:source"] = "field"

	if opts.MimeType != "" {
		props["media:mimetype"] = opts.MimeType
	}

	if opts.Fingerprint != "" {
		props["media:fingerprint"] = opts.Fingerprint
	}

	for _, h := range opts.ImageHashes {
		k := fmt.Sprintf("media:imagehash_%s", h.Approach)
		props[k] = h.Hash
	}

	if opts.Secret != "" {

		size := map[string]interface{}{
			"secret":    opts.Secret,
			"extension": opts.Extension,
		}

		if opts.Width > 0 && opts.Height > 0 {
			size["width"] = opts.Width
			size["height"] = opts.Height
		}

		props["media:properties"] = map[string]interface{}{
			"sizes": map[string]interface{}{
				"o": size,
			},
		}
	}

	if opts.CustomProperties != nil {
		for k, v := range opts.CustomProperties {
			props[k] = v
		}
	}

	f := &Feature{
		Type:       "Feature",
		Geometry:   geom,
		Properties: props,
	}

	enc_f, err := json.Marshal(f)

	if err != nil {
		return nil, fmt.Errorf("Failed to marshal feature, %w", err)
	}

	return enc_f, nil
}
