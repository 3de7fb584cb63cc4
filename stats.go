package main

import (
	"math"

	"github.com/paulmach/orb"
)

const earthRadiusM = 6371000.0

// --- Structs ---

type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type BBox struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

type TrailStats struct {
	LengthM        int     `json:"length_m"`
	AscentM        int     `json:"ascent_m"`
	DescentM       int     `json:"descent_m"`
	MinEleM        *int    `json:"min_ele_m"`
	MaxEleM        *int    `json:"max_ele_m"`
	Start          LatLon  `json:"start"`
	End            LatLon  `json:"end"`
	BBox           BBox    `json:"bbox"`
	AvgGradientPct float64 `json:"avg_gradient_pct"`
	HasElevation   bool    `json:"has_elevation"`
}

// ProfileSample is one vertex of an elevation profile, distance in meters
// from the start of the track.
type ProfileSample struct {
	Distance float64
	Ele      float64
}

// --- Distance & Elevation ---

// computeStats returns nil for fewer than two points.
func computeStats(points []TrackPoint) *TrailStats {
	if len(points) < 2 {
		return nil
	}

	var length, ascent, descent float64
	eleCount := 0
	minEle, maxEle := math.Inf(1), math.Inf(-1)
	mp := make(orb.MultiPoint, 0, len(points))

	for i, p := range points {
		mp = append(mp, orb.Point{p.Lon, p.Lat})
		if p.HasEle {
			eleCount++
			minEle = math.Min(minEle, p.Ele)
			maxEle = math.Max(maxEle, p.Ele)
		}
		if i == 0 {
			continue
		}
		prev := points[i-1]
		length += haversine(prev, p)

		// only pairs that both carry elevation contribute to climb
		if prev.HasEle && p.HasEle {
			d := p.Ele - prev.Ele
			if d > 0 {
				ascent += d
			} else {
				descent -= d
			}
		}
	}

	bound := mp.Bound()
	first, last := points[0], points[len(points)-1]
	stats := &TrailStats{
		LengthM:  int(math.Round(length)),
		AscentM:  int(math.Round(ascent)),
		DescentM: int(math.Round(descent)),
		Start:    LatLon{Lat: first.Lat, Lon: first.Lon},
		End:      LatLon{Lat: last.Lat, Lon: last.Lon},
		BBox: BBox{
			MinLat: bound.Min.Lat(),
			MinLon: bound.Min.Lon(),
			MaxLat: bound.Max.Lat(),
			MaxLon: bound.Max.Lon(),
		},
		AvgGradientPct: avgGradient(ascent, descent, length),
		HasElevation:   eleCount >= 2,
	}
	if eleCount > 0 {
		lo, hi := int(math.Round(minEle)), int(math.Round(maxEle))
		stats.MinEleM, stats.MaxEleM = &lo, &hi
	}
	return stats
}

func avgGradient(ascent, descent, length float64) float64 {
	if length <= 0 {
		return 0
	}
	g := math.Abs((ascent - descent) / length * 100)
	return math.Round(g*100) / 100
}

// elevationProfile skips points without elevation but keeps their
// contribution to the running distance.
func elevationProfile(points []TrackPoint) []ProfileSample {
	var profile []ProfileSample
	dist := 0.0
	for i, p := range points {
		if i > 0 {
			dist += haversine(points[i-1], p)
		}
		if p.HasEle {
			profile = append(profile, ProfileSample{Distance: dist, Ele: p.Ele})
		}
	}
	return profile
}

// haversine returns meters on a spherical earth.
func haversine(p1, p2 TrackPoint) float64 {
	lat1 := p1.Lat * math.Pi / 180
	lat2 := p2.Lat * math.Pi / 180
	dLat := (p2.Lat - p1.Lat) * math.Pi / 180
	dLon := (p2.Lon - p1.Lon) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusM * c
}
