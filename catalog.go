package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/tidwall/gjson"
)

const catalogVersion = 1

// ownedKeys are rebuilt on every run; any other key of a prior record is
// carried over verbatim.
var ownedKeys = map[string]bool{
	"id": true, "cityId": true, "countryId": true, "difficulty": true, "styles": true,
	"gpxUrl": true, "startLat": true, "startLon": true,
	"name": true, "suitable": true, "desc": true, "stats": true,
}

// --- Structs ---

type extraField struct {
	Key   string
	Value json.RawMessage
}

type TrailRecord struct {
	ID         string
	CityID     string
	CountryID  string
	Difficulty Difficulty
	Styles     []string
	GpxURL     string
	StartLat   *float64
	StartLon   *float64
	Name       map[string]string
	Suitable   map[string]string
	Desc       map[string]string
	Stats      *TrailStats

	// Extra keeps unknown keys in the order they appeared on disk.
	Extra []extraField
}

type Catalog struct {
	Version   int
	UpdatedAt string
	Trails    []TrailRecord

	// rawTrails is the trails array as loaded, used for change detection.
	rawTrails json.RawMessage
	// Legacy is set when the file held a bare array of trails.
	Legacy bool
	// Reset is set when an existing file did not have a recognizable shape.
	Reset bool
}

// --- Loading ---

// readCatalog also hands back the bytes on disk so an unchanged catalog is
// not rewritten.
func readCatalog(path string) (*Catalog, []byte, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Catalog{Version: catalogVersion}, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return parseCatalog(raw), raw, nil
}

func parseCatalog(data []byte) *Catalog {
	c := &Catalog{Version: catalogVersion}
	if len(bytes.TrimSpace(data)) == 0 {
		return c
	}
	if !gjson.ValidBytes(data) {
		c.Reset = true
		return c
	}

	root := gjson.ParseBytes(data)
	var trails gjson.Result
	switch {
	case root.IsArray():
		trails = root
		c.Legacy = true
	case root.IsObject() && root.Get("trails").IsArray():
		trails = root.Get("trails")
		if v := root.Get("version"); v.Type == gjson.Number {
			c.Version = int(v.Int())
		}
		if v := root.Get("updatedAt"); v.Type == gjson.String {
			c.UpdatedAt = v.String()
		}
	default:
		c.Reset = true
		return c
	}

	c.rawTrails = json.RawMessage(trails.Raw)
	trails.ForEach(func(_, item gjson.Result) bool {
		if !item.IsObject() {
			return true
		}
		if rec := recordFromJSON(item); rec.ID != "" {
			c.Trails = append(c.Trails, rec)
		}
		return true
	})
	return c
}

// recordFromJSON is lenient: owned keys of the wrong type read as empty and
// get recomputed.
func recordFromJSON(obj gjson.Result) TrailRecord {
	var rec TrailRecord
	obj.ForEach(func(key, value gjson.Result) bool {
		k := key.String()
		switch k {
		case "id":
			rec.ID = stringValue(value)
		case "cityId":
			rec.CityID = stringValue(value)
		case "countryId":
			rec.CountryID = stringValue(value)
		case "difficulty":
			rec.Difficulty = Difficulty(stringValue(value))
		case "styles":
			value.ForEach(func(_, s gjson.Result) bool {
				if s.Type == gjson.String && strings.TrimSpace(s.String()) != "" {
					rec.Styles = append(rec.Styles, s.String())
				}
				return true
			})
		case "gpxUrl":
			rec.GpxURL = stringValue(value)
		case "startLat":
			rec.StartLat = floatValue(value)
		case "startLon":
			rec.StartLon = floatValue(value)
		case "name":
			rec.Name = i18nValue(value)
		case "suitable":
			rec.Suitable = i18nValue(value)
		case "desc":
			rec.Desc = i18nValue(value)
		case "stats":
			// derived, recomputed from the file
		default:
			rec.Extra = append(rec.Extra, extraField{Key: k, Value: json.RawMessage(value.Raw)})
		}
		return true
	})
	return rec
}

func stringValue(v gjson.Result) string {
	if v.Type != gjson.String {
		return ""
	}
	return v.String()
}

func floatValue(v gjson.Result) *float64 {
	if v.Type != gjson.Number {
		return nil
	}
	f := v.Float()
	return &f
}

func i18nValue(v gjson.Result) map[string]string {
	if !v.IsObject() {
		return nil
	}
	m := make(map[string]string)
	v.ForEach(func(k, s gjson.Result) bool {
		if s.Type == gjson.String {
			m[k.String()] = s.String()
		}
		return true
	})
	return m
}

// --- Writing ---

func (r TrailRecord) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	write := func(key string, v any) error {
		val, err := encodeJSON(v, false)
		if err != nil {
			return fmt.Errorf("field %s: %w", key, err)
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		k, _ := encodeJSON(key, false)
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(val)
		return nil
	}

	styles := r.Styles
	if styles == nil {
		styles = []string{}
	}
	fields := []struct {
		key string
		val any
	}{
		{"id", r.ID},
		{"cityId", r.CityID},
		{"countryId", r.CountryID},
		{"difficulty", r.Difficulty},
		{"styles", styles},
		{"gpxUrl", r.GpxURL},
		{"startLat", r.StartLat},
		{"startLon", r.StartLon},
		{"name", r.Name},
		{"suitable", r.Suitable},
		{"desc", r.Desc},
		{"stats", r.Stats},
	}
	for _, f := range fields {
		if err := write(f.key, f.val); err != nil {
			return nil, err
		}
	}
	for _, e := range r.Extra {
		if ownedKeys[e.Key] {
			continue
		}
		if err := write(e.Key, e.Value); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

type catalogDoc struct {
	Version   int           `json:"version"`
	UpdatedAt string        `json:"updatedAt"`
	Trails    []TrailRecord `json:"trails"`
}

func (c *Catalog) Marshal() ([]byte, error) {
	trails := c.Trails
	if trails == nil {
		trails = []TrailRecord{}
	}
	return encodeJSON(catalogDoc{Version: c.Version, UpdatedAt: c.UpdatedAt, Trails: trails}, true)
}

// encodeJSON keeps non-ASCII text and markup characters readable in the
// catalog. The indented form ends with a newline, the compact one does not.
func encodeJSON(v any, indent bool) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	if indent {
		return buf.Bytes(), nil
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// trailsEqual compares two trails arrays by value, ignoring key order and
// formatting.
func trailsEqual(a, b json.RawMessage) bool {
	var va, vb any
	if len(a) == 0 || json.Unmarshal(a, &va) != nil {
		va = nil
	}
	if len(b) == 0 || json.Unmarshal(b, &vb) != nil {
		vb = nil
	}
	return reflect.DeepEqual(va, vb)
}

// writeFileAtomic never leaves a half written catalog behind: the data goes
// to a temp file in the same directory which then replaces the target.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
