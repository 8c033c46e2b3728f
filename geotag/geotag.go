// Package geotag extracts capture location and time from the EXIF metadata embedded in an image.
package geotag

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/sfomuseum/go-specimen-capture/geo"
	"github.com/sfomuseum/go-specimen-capture/source"
)

// The value assigned to GeoTag.CapturedAt when an image has no DateTime tag.
const Unknown = "Unknown"

// ErrExtractionUnavailable signals that the image bytes could not be fetched or decoded at all. It
// is distinct from an image that decodes but carries no geotag.
var ErrExtractionUnavailable = errors.New("Image metadata extraction unavailable")

// type GeoTag is the location and capture time recovered from an image's metadata.
type GeoTag struct {
	// Decimal degrees, nominally in the range [-90, 90].
	Latitude float64 `json:"latitude"`
	// Decimal degrees, nominally in the range [-180, 180].
	Longitude float64 `json:"longitude"`
	// The verbatim EXIF DateTime value, or "Unknown".
	CapturedAt string `json:"captured_at"`
}

// Extract reads all of 'r' and returns the GeoTag encoded in its EXIF metadata. If the image decodes
// but any of the four GPS latitude/longitude tags are missing the method returns nil, nil.
func Extract(ctx context.Context, r io.Reader) (*GeoTag, error) {

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
		// pass
	}

	body, err := io.ReadAll(r)

	if err != nil {
		return nil, fmt.Errorf("%w, failed to read image, %w", ErrExtractionUnavailable, err)
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(body))

	if err != nil {
		return nil, fmt.Errorf("%w, failed to decode image, %w", ErrExtractionUnavailable, err)
	}

	logger := slog.Default()
	logger = logger.With("format", format)

	tiff, ok := ExifSegment(body)

	if !ok {
		logger.Debug("No EXIF data")
		return nil, nil
	}

	err = CheckTIFF(tiff)

	if err != nil {
		logger.Warn("Ignoring EXIF data", "error", err)
		return nil, nil
	}

	x, err := decodeExif(exifJPEG(tiff))

	if err != nil {
		logger.Debug("Failed to decode EXIF data", "error", err)
		return nil, nil
	}

	return FromExif(x), nil
}

func decodeExif(body []byte) (x *exif.Exif, err error) {

	defer func() {

		r := recover()

		if r != nil {
			x = nil
			err = fmt.Errorf("Failed to decode EXIF data, %v", r)
		}
	}()

	return exif.Decode(bytes.NewReader(body))
}

// ExtractWithHandle opens 'h' and returns the GeoTag encoded in its EXIF metadata.
func ExtractWithHandle(ctx context.Context, h source.Handle) (*GeoTag, error) {

	r, err := h.Open(ctx)

	if err != nil {
		return nil, fmt.Errorf("%w, %w", ErrExtractionUnavailable, err)
	}

	defer r.Close()

	return Extract(ctx, r)
}

// FromExif derives a GeoTag from decoded EXIF data. It returns nil unless the GPSLatitude,
// GPSLatitudeRef, GPSLongitude and GPSLongitudeRef tags are all present and non-empty.
func FromExif(x *exif.Exif) *GeoTag {

	lat, ok := readAngle(x, exif.GPSLatitude)

	if !ok {
		return nil
	}

	lat_ref, ok := readHemisphere(x, exif.GPSLatitudeRef)

	if !ok {
		return nil
	}

	lon, ok := readAngle(x, exif.GPSLongitude)

	if !ok {
		return nil
	}

	lon_ref, ok := readHemisphere(x, exif.GPSLongitudeRef)

	if !ok {
		return nil
	}

	captured_at := Unknown

	tag, err := x.Get(exif.DateTime)

	if err == nil {

		str_dt, err := tag.StringVal()

		if err == nil {

			str_dt = strings.TrimSpace(strings.TrimRight(str_dt, "\x00"))

			if str_dt != "" {
				captured_at = str_dt
			}
		}
	}

	t := &GeoTag{
		Latitude:   geo.ToDecimalDegrees(lat, lat_ref),
		Longitude:  geo.ToDecimalDegrees(lon, lon_ref),
		CapturedAt: captured_at,
	}

	return t
}

func readAngle(x *exif.Exif, name exif.FieldName) (geo.GeoAngle, bool) {

	tag, err := x.Get(name)

	if err != nil {
		return geo.GeoAngle{}, false
	}

	if tag.Count < 3 {
		return geo.GeoAngle{}, false
	}

	values := make([]float64, 3)

	for i := range values {

		num, den, err := tag.Rat2(i)

		if err != nil {
			return geo.GeoAngle{}, false
		}

		// a zero denominator is not validated here and yields Inf or NaN
		values[i] = float64(num) / float64(den)
	}

	a := geo.GeoAngle{
		Degrees: values[0],
		Minutes: values[1],
		Seconds: values[2],
	}

	return a, true
}

func readHemisphere(x *exif.Exif, name exif.FieldName) (geo.Hemisphere, bool) {

	tag, err := x.Get(name)

	if err != nil {
		return "", false
	}

	str_ref, err := tag.StringVal()

	if err != nil {
		return "", false
	}

	str_ref = strings.TrimSpace(strings.TrimRight(str_ref, "\x00"))

	if str_ref == "" {
		return "", false
	}

	ref, ok := geo.ParseHemisphere(str_ref)

	if !ok {
		// unrecognised references are kept and treated as positive
		ref = geo.Hemisphere(str_ref)
	}

	return ref, true
}
