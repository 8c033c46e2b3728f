package mapping

import (
	"context"
	"fmt"
	"io"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/sfomuseum/go-specimen-capture/submit"
	"github.com/tidwall/gjson"
	"github.com/whosonfirst/go-reader/v2"
	"github.com/whosonfirst/go-whosonfirst-feature/properties"
	"github.com/whosonfirst/go-whosonfirst-uri"
)

// MarkerFromFeature returns a marker for a stored observation feature (see the feature package).
func (m *Map) MarkerFromFeature(body []byte) (*geojson.Feature, error) {

	id, err := properties.Id(body)

	if err != nil {
		return nil, fmt.Errorf("Failed to derive ID, %w", err)
	}

	centroid, _, err := properties.Centroid(body)

	if err != nil {
		return nil, fmt.Errorf("Failed to derive centroid for %d, %w", id, err)
	}

	f := m.newMarker(*centroid, RoleStored)
	f.ID = id

	species := gjson.GetBytes(body, "properties.obs:species").String()

	if species == "" {

		name, err := properties.Name(body)

		if err == nil {
			species = name
		}
	}

	description := gjson.GetBytes(body, "properties.obs:description").String()
	timestamp := gjson.GetBytes(body, "properties.obs:timestamp").String()

	setPopup(f, description, species, timestamp, centroid.Y(), centroid.X())

	return f, nil
}

// MarkerFromEntry returns a marker for a journal entry.
func (m *Map) MarkerFromEntry(e *submit.JournalEntry) *geojson.Feature {

	f := m.newMarker(orb.Point{e.Longitude, e.Latitude}, RoleStored)
	f.ID = e.ID

	setPopup(f, e.Description, e.SpeciesName, e.Timestamp, e.Latitude, e.Longitude)
	f.Properties["position_source"] = e.PositionSource

	return f
}

// StoredView returns a view of previously stored observations, read from 'r' by WOF ID.
func (m *Map) StoredView(ctx context.Context, r reader.Reader, ids ...int64) (*View, error) {

	v := m.newView()
	v.Features = geojson.NewFeatureCollection()

	for _, id := range ids {

		rel_path, err := uri.Id2RelPath(id)

		if err != nil {
			return nil, fmt.Errorf("Failed to derive path for %d, %w", id, err)
		}

		fh, err := r.Read(ctx, rel_path)

		if err != nil {
			return nil, fmt.Errorf("Failed to read %s, %w", rel_path, err)
		}

		body, err := io.ReadAll(fh)
		fh.Close()

		if err != nil {
			return nil, fmt.Errorf("Failed to read %s, %w", rel_path, err)
		}

		f, err := m.MarkerFromFeature(body)

		if err != nil {
			return nil, err
		}

		v.Features.Append(f)
	}

	v.Center = centerOf(v.Features)
	return v, nil
}

// JournalView returns a view of every observation in a journal.
func (m *Map) JournalView(entries []*submit.JournalEntry) *View {

	v := m.newView()
	v.Features = geojson.NewFeatureCollection()

	for _, e := range entries {
		v.Features.Append(m.MarkerFromEntry(e))
	}

	v.Center = centerOf(v.Features)
	return v
}

func centerOf(fc *geojson.FeatureCollection) []float64 {

	if len(fc.Features) == 0 {
		return nil
	}

	b := fc.Features[0].Geometry.Bound()

	for _, f := range fc.Features[1:] {
		b = b.Union(f.Geometry.Bound())
	}

	c := b.Center()
	return []float64{c.X(), c.Y()}
}
