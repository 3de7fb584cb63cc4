package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"github.com/tkrajina/gpxgo/gpx"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	splitMinPoints  = 10
	splitMinLengthM = 900.0
	splitMaxLengthM = 50000.0
)

// --- Structs ---

type SplitOptions struct {
	// BackupDir, when set, receives the original multi-track file instead
	// of it being deleted.
	BackupDir  string
	DryRun     bool
	// SubFolders limits splitting to the root and these subfolders.
	SubFolders []string
}

type SplitResult struct {
	Source   string
	Written  []string
	Unnamed  int
	Rejected []string
	Removed  bool
}

type splitCandidate struct {
	name  string
	track gpx.GPXTrack
}

type stagedFile struct {
	tmp, target string
}

// --- Splitting ---

// splitDir runs splitFile over the track logs under dir that the catalog
// would pick up. Output names avoid every trail id already present anywhere
// under dir. A missing directory is not an error.
func splitDir(dir string, opts SplitOptions, logger *slog.Logger) ([]SplitResult, error) {
	all, err := findTrackLogs(dir, nil)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool, len(all))
	for _, f := range all {
		ids[f.ID] = true
	}

	files, err := findTrackLogs(dir, opts.SubFolders)
	if err != nil {
		return nil, err
	}
	var results []SplitResult
	for _, f := range files {
		res, err := splitFile(f.Path, opts, ids, logger)
		if err != nil {
			return results, err
		}
		if res != nil {
			results = append(results, *res)
		}
	}
	return results, nil
}

// splitFile returns nil when the file holds at most one track or route, or
// when gpxgo cannot read it; the sync step then decides what the file is
// worth. ids holds the trail ids in use and receives the new ones.
func splitFile(path string, opts SplitOptions, ids map[string]bool, logger *slog.Logger) (*SplitResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	doc, err := gpx.ParseBytes(data)
	if err != nil {
		logger.Warn("not splitting unreadable track log", "file", path, "err", err)
		return nil, nil
	}
	if len(doc.Tracks)+len(doc.Routes) <= 1 {
		return nil, nil
	}
	if ids == nil {
		ids = make(map[string]bool)
	}

	logger = logger.With("file", path)
	res := &SplitResult{Source: path}

	var candidates []splitCandidate
	for _, trk := range doc.Tracks {
		name := strings.TrimSpace(trk.Name)
		if name == "" {
			res.Unnamed++
			logger.Warn("skipping unnamed track, likely low quality data", "points", countTrackPoints(trk))
			continue
		}
		candidates = append(candidates, splitCandidate{name: name, track: trk})
	}
	for _, rte := range doc.Routes {
		name := strings.TrimSpace(rte.Name)
		if name == "" {
			res.Unnamed++
			logger.Warn("skipping unnamed route, likely low quality data", "points", len(rte.Points))
			continue
		}
		candidates = append(candidates, splitCandidate{name: name, track: routeToTrack(rte)})
	}

	dir := filepath.Dir(path)
	taken := make(map[string]bool)
	var outputs []struct {
		target string
		data   []byte
	}
	for _, cand := range candidates {
		single := singleTrackDoc(doc, cand.track)
		xmlBytes, err := single.ToXml(gpx.ToXmlParams{Version: "1.1", Indent: true})
		if err != nil {
			return nil, fmt.Errorf("failed to encode track %q: %w", cand.name, err)
		}
		if reason := rejectReason(xmlBytes); reason != "" {
			res.Rejected = append(res.Rejected, cand.name)
			logger.Info("rejecting track", "track", cand.name, "reason", reason)
			continue
		}
		target := uniqueTarget(dir, sanitizeFilename(cand.name), taken, ids)
		outputs = append(outputs, struct {
			target string
			data   []byte
		}{target, xmlBytes})
	}

	if opts.DryRun {
		for _, o := range outputs {
			res.Written = append(res.Written, o.target)
		}
		return res, nil
	}

	// stage everything, then publish, then drop the source
	var staged []stagedFile
	discard := func() {
		for _, s := range staged {
			os.Remove(s.tmp)
		}
	}
	for _, o := range outputs {
		tmp, err := os.CreateTemp(dir, ".split-*.gpx.tmp")
		if err != nil {
			discard()
			return nil, fmt.Errorf("failed to stage %s: %w", o.target, err)
		}
		staged = append(staged, stagedFile{tmp: tmp.Name(), target: o.target})
		_, werr := tmp.Write(o.data)
		cerr := tmp.Close()
		if werr != nil || cerr != nil {
			discard()
			return nil, fmt.Errorf("failed to stage %s: %w", o.target, firstErr(werr, cerr))
		}
	}
	for i, s := range staged {
		if err := os.Rename(s.tmp, s.target); err != nil {
			for _, done := range staged[:i] {
				os.Remove(done.target)
			}
			for _, rest := range staged[i:] {
				os.Remove(rest.tmp)
			}
			return nil, fmt.Errorf("failed to publish %s: %w", s.target, err)
		}
		res.Written = append(res.Written, s.target)
	}

	if err := retireSource(path, opts.BackupDir); err != nil {
		for _, w := range res.Written {
			os.Remove(w)
		}
		return nil, err
	}
	res.Removed = true
	delete(ids, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	logger.Info("split multi-track file", "written", len(res.Written), "rejected", len(res.Rejected), "unnamed", res.Unnamed)
	return res, nil
}

// rejectReason applies the quality gate to an encoded single-track
// document, returning "" when it passes.
func rejectReason(xmlBytes []byte) string {
	tl, err := parseTrackLog(xmlBytes)
	if err != nil {
		return "unreadable: " + err.Error()
	}
	if len(tl.Points) < splitMinPoints {
		return fmt.Sprintf("too few points (%d)", len(tl.Points))
	}
	stats := computeStats(tl.Points)
	switch {
	case stats == nil:
		return "no geometry"
	case float64(stats.LengthM) < splitMinLengthM:
		return fmt.Sprintf("too short (%d m)", stats.LengthM)
	case float64(stats.LengthM) > splitMaxLengthM:
		return fmt.Sprintf("too long (%d m)", stats.LengthM)
	}
	return ""
}

func routeToTrack(rte gpx.GPXRoute) gpx.GPXTrack {
	trk := gpx.GPXTrack{
		Name:        rte.Name,
		Comment:     rte.Comment,
		Description: rte.Description,
		Source:      rte.Source,
		Type:        rte.Type,
	}
	seg := gpx.GPXTrackSegment{}
	seg.Points = append(seg.Points, rte.Points...)
	trk.Segments = append(trk.Segments, seg)
	return trk
}

// singleTrackDoc keeps the document level metadata of src.
func singleTrackDoc(src *gpx.GPX, trk gpx.GPXTrack) *gpx.GPX {
	out := *src
	out.Waypoints = nil
	out.Routes = nil
	out.Tracks = []gpx.GPXTrack{trk}
	return &out
}

func countTrackPoints(trk gpx.GPXTrack) int {
	n := 0
	for _, seg := range trk.Segments {
		n += len(seg.Points)
	}
	return n
}

var lowerCaser = cases.Lower(language.Und)

// sanitizeFilename strips characters that are illegal in file names on
// common filesystems, joins whitespace runs with "_" and lowercases.
func sanitizeFilename(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return ' '
		}
		if unicode.IsControl(r) || strings.ContainsRune(`<>:"/\|?*`, r) {
			return -1
		}
		return r
	}, name)
	cleaned = strings.Join(strings.Fields(cleaned), "_")
	cleaned = strings.Trim(cleaned, "._")
	if cleaned == "" {
		cleaned = "track"
	}
	return lowerCaser.String(cleaned)
}

// uniqueTarget appends _2, _3, ... to base until neither the path nor the
// id (when ids is non-nil) is in use.
func uniqueTarget(dir, base string, taken, ids map[string]bool) string {
	for i := 1; ; i++ {
		name := base
		if i > 1 {
			name = base + "_" + strconv.Itoa(i)
		}
		target := filepath.Join(dir, name+".gpx")
		if taken[target] || ids[name] {
			continue
		}
		if _, err := os.Stat(target); err == nil {
			continue
		}
		taken[target] = true
		if ids != nil {
			ids[name] = true
		}
		return target
	}
}

func retireSource(path, backupDir string) error {
	if backupDir == "" {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
		return nil
	}
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return fmt.Errorf("failed to create backup dir: %w", err)
	}
	target := uniqueTarget(backupDir, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), map[string]bool{}, nil)
	if err := os.Rename(path, target); err != nil {
		return fmt.Errorf("failed to move %s to backup: %w", path, err)
	}
	return nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
