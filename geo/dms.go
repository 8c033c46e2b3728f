// Package geo provides methods for converting degrees-minutes-seconds angles in to signed decimal degrees.
package geo

import (
	"strconv"
	"strings"
)

// type Hemisphere is a single-letter hemisphere reference as recorded in EXIF GPS tags.
type Hemisphere string

const (
	North Hemisphere = "N"
	South Hemisphere = "S"
	East  Hemisphere = "E"
	West  Hemisphere = "W"
)

// type GeoAngle stores the magnitude of a single coordinate, before a hemisphere sign is applied.
// Minutes and seconds are expected to be in the range [0, 60) but this is not enforced.
type GeoAngle struct {
	Degrees float64 `json:"degrees"`
	Minutes float64 `json:"minutes"`
	Seconds float64 `json:"seconds"`
}

// ParseHemisphere returns the Hemisphere for 's' which may be lower case or padded with
// whitespace or trailing NUL characters.
func ParseHemisphere(s string) (Hemisphere, bool) {

	s = strings.TrimRight(s, "\x00")
	s = strings.ToUpper(strings.TrimSpace(s))

	switch Hemisphere(s) {
	case North, South, East, West:
		return Hemisphere(s), true
	default:
		return "", false
	}
}

// ToDecimalDegrees converts 'angle' in to decimal degrees, negating the result for southern and
// western hemispheres. No bounds checking is performed and NaN values are propagated.
func ToDecimalDegrees(angle GeoAngle, ref Hemisphere) float64 {

	dd := angle.Degrees + angle.Minutes/60 + angle.Seconds/3600

	switch ref {
	case South, West:
		dd = dd * -1
	default:
		// pass
	}

	return dd
}

// FormatDecimal returns 'v' formatted to exactly six decimal places.
func FormatDecimal(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
