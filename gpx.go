package main

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"golang.org/x/net/html/charset"
)

// --- Structs ---

type TrackPoint struct {
	Lat, Lon float64
	Ele      float64
	HasEle   bool
}

// TrackLog is what the sync pipeline needs out of a track-log file.
type TrackLog struct {
	Name   string
	Points []TrackPoint
	Tags   map[string]string
}

// pointBuilder collects one trkpt/rtept while its children stream by.
type pointBuilder struct {
	pt      TrackPoint
	valid   bool
	eleText strings.Builder
	inEle   bool
}

// --- GPX Parsing ---

func parseTrackLogFile(filePath string) (*TrackLog, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read track log: %w", err)
	}
	tl, err := parseTrackLog(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filePath, err)
	}
	return tl, nil
}

// parseTrackLog streams the document once. Geometry elements are only
// recognised in the root element's namespace, whatever version that is.
func parseTrackLog(data []byte) (*TrackLog, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = charset.NewReaderLabel

	var (
		rootSpace  string
		rootSeen   bool
		stack      []string // local names of open elements in the root namespace, "" for foreign ones
		trackPts   []TrackPoint
		routePts   []TrackPoint
		cur        *pointBuilder
		curIsTrack bool
		nameText   strings.Builder
		inName     bool
		trackName  string
		docName    string
		extDepth   int
		extKey     string
		extText    strings.Builder
	)
	tags := make(map[string]string)

	parent := func(n int) string {
		if len(stack) < n {
			return ""
		}
		return stack[len(stack)-n]
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if !rootSeen {
				rootSeen = true
				rootSpace = t.Name.Space
			}
			local := ""
			if t.Name.Space == rootSpace || t.Name.Space == "" {
				local = t.Name.Local
			}

			if extDepth > 0 {
				// extension payloads are only mined for document level tags
				extDepth++
				if t.Name.Local == "tag" && cur == nil {
					k, v := attr(t, "k"), attr(t, "v")
					if k != "" {
						tags[strings.ToLower(k)] = strings.TrimSpace(v)
					}
				}
				extKey = strings.ToLower(t.Name.Local)
				extText.Reset()
				stack = append(stack, "")
				continue
			}

			switch {
			case local == "extensions":
				extDepth = 1
			case local == "trkpt" && parent(1) == "trkseg" && parent(2) == "trk":
				cur, curIsTrack = newPointBuilder(t), true
			case local == "rtept" && parent(1) == "rte":
				cur, curIsTrack = newPointBuilder(t), false
			case local == "ele" && cur != nil && (parent(1) == "trkpt" || parent(1) == "rtept"):
				cur.inEle = true
				cur.eleText.Reset()
			case local == "name" && cur == nil:
				inName = true
				nameText.Reset()
			}
			stack = append(stack, local)

		case xml.CharData:
			switch {
			case extDepth > 0:
				extText.Write(t)
			case cur != nil && cur.inEle:
				cur.eleText.Write(t)
			case inName:
				nameText.Write(t)
			}

		case xml.EndElement:
			local := ""
			if len(stack) > 0 {
				local = stack[len(stack)-1]
				stack = stack[:len(stack)-1]
			}

			if extDepth > 0 {
				extDepth--
				if extDepth > 0 && extKey != "" && cur == nil {
					if v := strings.TrimSpace(extText.String()); v != "" {
						tags[extKey] = v
					}
				}
				extKey = ""
				extText.Reset()
				continue
			}

			switch local {
			case "ele":
				if cur != nil && cur.inEle {
					cur.inEle = false
					if ele, ok := parseFinite(cur.eleText.String()); ok {
						cur.pt.Ele, cur.pt.HasEle = ele, true
					}
				}
			case "trkpt", "rtept":
				if cur != nil {
					if cur.valid {
						if curIsTrack {
							trackPts = append(trackPts, cur.pt)
						} else {
							routePts = append(routePts, cur.pt)
						}
					}
					cur = nil
				}
			case "name":
				if inName {
					inName = false
					name := strings.TrimSpace(nameText.String())
					switch p := parent(1); {
					case name == "":
					case (p == "trk" || p == "rte") && trackName == "":
						trackName = name
					case (p == "metadata" || p == "gpx") && docName == "":
						docName = name
					}
				}
			}
		}
	}

	result := &TrackLog{Points: trackPts, Tags: tags}
	if len(result.Points) == 0 {
		result.Points = routePts
	}
	result.Name = trackName
	if result.Name == "" {
		result.Name = docName
	}
	return result, nil
}

func newPointBuilder(start xml.StartElement) *pointBuilder {
	b := &pointBuilder{}
	lat, okLat := parseFinite(attr(start, "lat"))
	lon, okLon := parseFinite(attr(start, "lon"))
	if okLat && okLon {
		b.pt.Lat, b.pt.Lon = lat, lon
		b.valid = true
	}
	return b
}

func attr(start xml.StartElement, name string) string {
	for _, a := range start.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func parseFinite(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
