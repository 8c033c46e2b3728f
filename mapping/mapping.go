// Package mapping builds the map view for an observation: tile layer settings, center point and the
// GeoJSON markers drawn on top of it.
package mapping

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/sfomuseum/go-specimen-capture/geo"
	"github.com/sfomuseum/go-specimen-capture/observation"
)

const DefaultTileURL = "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png"

const DefaultAttribution = `&copy; <a href="http://osm.org/copyright">OpenStreetMap</a> contributors`

const DefaultZoom = 13

// Marker roles, assigned to the "marker:role" property.
const (
	RoleCurrentLocation = "current"
	RoleObservation     = "observation"
	RoleStored          = "stored"
)

// The popup text for the device position marker.
const CurrentLocationLabel = "Your current location"

// ErrMissingIcon is returned by NewMap when no marker icon is configured.
var ErrMissingIcon = errors.New("Missing marker icon")

// MarkerIcon is the image pair used to draw markers.
type MarkerIcon struct {
	IconURL   string `json:"icon_url" yaml:"icon_url"`
	ShadowURL string `json:"shadow_url,omitempty" yaml:"shadow_url"`
}

// MapOptions configures a Map. Each map carries its own icon; there is no package-level default.
type MapOptions struct {
	TileURL     string     `yaml:"tile_url"`
	Attribution string     `yaml:"attribution"`
	Zoom        int        `yaml:"zoom"`
	Icon        MarkerIcon `yaml:"icon"`
	// Used by Center when an observation has neither a geotag nor a live position.
	DefaultCenter *orb.Point `yaml:"-"`
}

// Map is an immutable map configuration.
type Map struct {
	tile_url       string
	attribution    string
	zoom           int
	icon           MarkerIcon
	default_center *orb.Point
}

// type View is the serializable state of a map: its configuration, center and markers.
type View struct {
	TileURL     string                     `json:"tile_url"`
	Attribution string                     `json:"attribution"`
	Zoom        int                        `json:"zoom"`
	Icon        MarkerIcon                 `json:"icon"`
	Center      []float64                  `json:"center,omitempty"`
	Features    *geojson.FeatureCollection `json:"features"`
}

// NewMap returns a Map for 'opts'. Empty tile URL, attribution and zoom values are replaced with defaults.
func NewMap(opts *MapOptions) (*Map, error) {

	if opts.Icon.IconURL == "" {
		return nil, ErrMissingIcon
	}

	m := &Map{
		tile_url:    opts.TileURL,
		attribution: opts.Attribution,
		zoom:        opts.Zoom,
		icon:        opts.Icon,
	}

	if m.tile_url == "" {
		m.tile_url = DefaultTileURL
	}

	if m.attribution == "" {
		m.attribution = DefaultAttribution
	}

	if m.zoom <= 0 {
		m.zoom = DefaultZoom
	}

	if m.zoom > 20 {
		return nil, fmt.Errorf("Invalid zoom level %d", m.zoom)
	}

	if opts.DefaultCenter != nil {
		pt := *opts.DefaultCenter
		m.default_center = &pt
	}

	return m, nil
}

func (m *Map) Icon() MarkerIcon {
	return m.icon
}

// Center returns the point a map of 'obs' is centered on: its geotag, else its live position, else
// the map's default center. The boolean is false if none of these exist.
func (m *Map) Center(obs observation.Observation) (orb.Point, bool) {

	if obs.GeoTag != nil {
		return orb.Point{obs.GeoTag.Longitude, obs.GeoTag.Latitude}, true
	}

	if obs.LiveFallback != nil {
		return orb.Point{obs.LiveFallback.Longitude, obs.LiveFallback.Latitude}, true
	}

	if m.default_center != nil {
		return *m.default_center, true
	}

	return orb.Point{}, false
}

// FeatureCollection returns the markers for 'obs': the device position, if known, and the
// observation's geotag, if resolved. The two are never merged.
func (m *Map) FeatureCollection(obs observation.Observation) *geojson.FeatureCollection {

	fc := geojson.NewFeatureCollection()

	if obs.LiveFallback != nil {

		pt := orb.Point{obs.LiveFallback.Longitude, obs.LiveFallback.Latitude}

		f := m.newMarker(pt, RoleCurrentLocation)
		f.Properties["popup"] = CurrentLocationLabel

		fc.Append(f)
	}

	if obs.GeoTag != nil {

		pt := orb.Point{obs.GeoTag.Longitude, obs.GeoTag.Latitude}

		f := m.newMarker(pt, RoleObservation)
		f.ID = obs.ID

		setPopup(f, obs.Description, obs.SpeciesName, obs.GeoTag.CapturedAt, obs.GeoTag.Latitude, obs.GeoTag.Longitude)

		fc.Append(f)
	}

	return fc
}

// View returns the complete view state for 'obs'.
func (m *Map) View(obs observation.Observation) *View {

	v := m.newView()
	v.Features = m.FeatureCollection(obs)

	pt, ok := m.Center(obs)

	if ok {
		v.Center = []float64{pt.X(), pt.Y()}
	}

	return v
}

func (m *Map) newView() *View {

	v := &View{
		TileURL:     m.tile_url,
		Attribution: m.attribution,
		Zoom:        m.zoom,
		Icon:        m.icon,
	}

	return v
}

func (m *Map) newMarker(pt orb.Point, role string) *geojson.Feature {

	f := geojson.NewFeature(pt)
	f.Properties["marker:role"] = role
	f.Properties["marker:icon"] = m.icon.IconURL

	if m.icon.ShadowURL != "" {
		f.Properties["marker:shadow"] = m.icon.ShadowURL
	}

	return f
}

func setPopup(f *geojson.Feature, description string, species string, timestamp string, lat float64, lon float64) {

	f.Properties["description"] = description
	f.Properties["speciesName"] = species
	f.Properties["timestamp"] = timestamp
	f.Properties["latitude"] = geo.FormatDecimal(lat)
	f.Properties["longitude"] = geo.FormatDecimal(lon)
}
