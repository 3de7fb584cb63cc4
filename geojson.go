package main

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// buildFeatureCollection turns every reconciled trail into a feature, in
// catalog order. Trails without points are left out.
func buildFeatureCollection(results []*SyncResult, langs Languages) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, res := range results {
		if res == nil || res.Catalog == nil {
			continue
		}
		for _, rec := range res.Catalog.Trails {
			tl := res.TrackLogs[rec.ID]
			if tl == nil || len(tl.Points) == 0 {
				continue
			}

			var geom orb.Geometry
			if len(tl.Points) == 1 {
				geom = orb.Point{tl.Points[0].Lon, tl.Points[0].Lat}
			} else {
				ls := make(orb.LineString, 0, len(tl.Points))
				for _, p := range tl.Points {
					ls = append(ls, orb.Point{p.Lon, p.Lat})
				}
				geom = ls
			}

			f := geojson.NewFeature(geom)
			f.ID = rec.ID
			f.Properties["id"] = rec.ID
			f.Properties["catalog"] = res.Name
			f.Properties["difficulty"] = string(rec.Difficulty)
			f.Properties["styles"] = rec.Styles
			f.Properties["name"] = rec.Name[langs.Fallback]
			f.Properties["gpxUrl"] = rec.GpxURL
			if rec.Stats != nil {
				f.Properties["length_m"] = rec.Stats.LengthM
				f.Properties["ascent_m"] = rec.Stats.AscentM
				f.Properties["descent_m"] = rec.Stats.DescentM
			}
			fc.Append(f)
		}
	}
	return fc
}

func writeGeoJSON(path string, results []*SyncResult, langs Languages) (int, error) {
	fc := buildFeatureCollection(results, langs)
	data, err := encodeJSON(fc, true)
	if err != nil {
		return 0, fmt.Errorf("failed to encode geojson: %w", err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return 0, fmt.Errorf("failed to write geojson %s: %w", path, err)
	}
	return len(fc.Features), nil
}
