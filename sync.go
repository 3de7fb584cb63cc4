package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
)

var errDuplicateID = errors.New("duplicate trail id")

// --- Structs ---

// CatalogSpec ties one catalog file to the directory of track logs backing it.
type CatalogSpec struct {
	Name       string
	GpxDir     string
	JSONPath   string
	FolderTag  string
	SubFolders []string
}

type SyncOptions struct {
	RawBase    string
	Country    string
	Languages  Languages
	Translator Translator
	Now        func() time.Time
	DryRun     bool
	Progress   io.Writer // nil disables the progress bar
}

type trackLogFile struct {
	Path      string
	Rel       string // slash separated, relative to the catalog directory
	SubFolder string // directory part of Rel, "" for files at the root
	ID        string
}

type SyncResult struct {
	Name    string
	Catalog *Catalog
	Changed bool
	Written bool
	Added   []string
	Kept    []string
	Removed []string
	// TrackLogs holds the parsed geometry of every reconciled trail.
	TrackLogs map[string]*TrackLog
}

// --- Discovery ---

// findTrackLogs lists *.gpx files under dir. With subFolders set only the
// root and those subfolders are searched. A missing dir yields nothing.
func findTrackLogs(dir string, subFolders []string) ([]trackLogFile, error) {
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	allowed := make(map[string]bool)
	for _, s := range subFolders {
		s = strings.Trim(filepath.ToSlash(s), "/")
		if s != "" {
			allowed[s] = true
		}
	}

	var files []trackLogFile
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if p != dir && strings.HasPrefix(name, ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(name), ".gpx") {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		sub := path.Dir(rel)
		if sub == "." {
			sub = ""
		}
		if len(allowed) > 0 && sub != "" && !underAllowed(sub, allowed) {
			return nil
		}
		files = append(files, trackLogFile{
			Path:      p,
			Rel:       rel,
			SubFolder: sub,
			ID:        strings.TrimSuffix(name, filepath.Ext(name)),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Rel < files[j].Rel })
	return files, nil
}

func underAllowed(sub string, allowed map[string]bool) bool {
	for s := range allowed {
		if sub == s || strings.HasPrefix(sub, s+"/") {
			return true
		}
	}
	return false
}

// --- Reconciliation ---

type syncer struct {
	spec   CatalogSpec
	opts   SyncOptions
	gen    textGenerator
	ctx    context.Context
	logger *slog.Logger
}

func syncCatalog(ctx context.Context, spec CatalogSpec, opts SyncOptions, logger *slog.Logger) (*SyncResult, error) {
	if opts.Translator == nil {
		opts.Translator = noopTranslator{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if spec.FolderTag == "" {
		spec.FolderTag = filepath.Base(filepath.Clean(spec.GpxDir))
	}
	logger = logger.With("catalog", spec.Name, "run", uuid.NewString())

	s := &syncer{spec: spec, opts: opts, ctx: ctx, logger: logger}
	s.gen = textGenerator{langs: opts.Languages, translate: s.translate}

	// Load
	old, raw, err := readCatalog(spec.JSONPath)
	if err != nil {
		return nil, err
	}
	if old.Reset {
		logger.Warn("catalog has an unexpected shape, starting from an empty one", "path", spec.JSONPath)
	}

	// Index
	prior := make(map[string]TrailRecord, len(old.Trails))
	var order []string
	for _, rec := range old.Trails {
		if _, dup := prior[rec.ID]; !dup {
			order = append(order, rec.ID)
		}
		prior[rec.ID] = rec
	}

	// Discover
	files, err := findTrackLogs(spec.GpxDir, spec.SubFolders)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]trackLogFile, len(files))
	for _, f := range files {
		if other, dup := byID[f.ID]; dup {
			return nil, fmt.Errorf("%w %q: %s and %s", errDuplicateID, f.ID, other.Path, f.Path)
		}
		byID[f.ID] = f
	}

	logs, err := s.parseAll(files)
	if err != nil {
		return nil, err
	}

	res := &SyncResult{Name: spec.Name, TrackLogs: logs}
	next := &Catalog{Version: old.Version}
	if next.Version == 0 {
		next.Version = catalogVersion
	}

	// Reconcile in prior order
	for _, id := range order {
		f, ok := byID[id]
		if !ok {
			res.Removed = append(res.Removed, id)
			logger.Info("dropping trail without track log", "id", id)
			continue
		}
		next.Trails = append(next.Trails, s.buildRecord(prior[id], f, logs[id]))
		res.Kept = append(res.Kept, id)
	}

	// Append new, sorted by id
	var fresh []string
	for id := range byID {
		if _, known := prior[id]; !known {
			fresh = append(fresh, id)
		}
	}
	sort.Strings(fresh)
	for _, id := range fresh {
		next.Trails = append(next.Trails, s.buildRecord(TrailRecord{ID: id}, byID[id], logs[id]))
		res.Added = append(res.Added, id)
		logger.Info("new trail", "id", id, "file", byID[id].Rel)
	}

	// Compare & stamp
	newRaw, err := encodeJSON(trailsOrEmpty(next.Trails), false)
	if err != nil {
		return nil, fmt.Errorf("failed to encode trails: %w", err)
	}
	res.Changed = old.Legacy || old.Reset || old.UpdatedAt == "" || old.Version != next.Version ||
		!trailsEqual(old.rawTrails, newRaw)
	next.UpdatedAt = old.UpdatedAt
	if res.Changed {
		next.UpdatedAt = s.opts.Now().Format("2006-01-02")
	}
	res.Catalog = next

	// Persist
	out, err := next.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to encode catalog: %w", err)
	}
	if s.opts.DryRun || bytes.Equal(out, raw) {
		return res, nil
	}
	if err := writeFileAtomic(spec.JSONPath, out); err != nil {
		return nil, fmt.Errorf("failed to write catalog %s: %w", spec.JSONPath, err)
	}
	res.Written = true
	return res, nil
}

// parseAll reads every track log before anything is reconciled, so a broken
// file stops the run while the catalog on disk is still untouched.
func (s *syncer) parseAll(files []trackLogFile) (map[string]*TrackLog, error) {
	var bar *progressbar.ProgressBar
	if s.opts.Progress != nil && len(files) > 0 {
		bar = progressbar.NewOptions(len(files),
			progressbar.OptionSetWriter(s.opts.Progress),
			progressbar.OptionSetDescription(s.spec.Name),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
		defer bar.Finish()
	}

	logs := make(map[string]*TrackLog, len(files))
	for _, f := range files {
		tl, err := parseTrackLogFile(f.Path)
		if err != nil {
			return nil, err
		}
		if len(tl.Points) == 0 {
			s.logger.Warn("track log has no points", "file", f.Rel)
		}
		logs[f.ID] = tl
		if bar != nil {
			bar.Add(1)
		}
	}
	return logs, nil
}

func (s *syncer) buildRecord(prev TrailRecord, f trackLogFile, tl *TrackLog) TrailRecord {
	stats := computeStats(tl.Points)
	cls := classify(ClassifyInput{
		ID:         f.ID,
		Prior:      prev.Difficulty,
		PriorStyle: prev.Styles,
		Stats:      stats,
		Tags:       tl.Tags,
	})
	s.logger.Debug("classified", "id", f.ID, "difficulty", cls.Difficulty, "difficulty_rule", cls.DifficultyRule, "type", cls.Type, "type_rule", cls.TypeRule)

	rec := TrailRecord{
		ID:         f.ID,
		CityID:     prev.CityID,
		CountryID:  prev.CountryID,
		Difficulty: cls.Difficulty,
		Styles:     cls.Styles,
		GpxURL:     gpxURL(s.opts.RawBase, s.spec.FolderTag, f.Rel),
		StartLat:   prev.StartLat,
		StartLon:   prev.StartLon,
		Stats:      stats,
		Extra:      prev.Extra,
	}
	if rec.CityID == "" && f.SubFolder != "" {
		rec.CityID = strings.SplitN(f.SubFolder, "/", 2)[0]
	}
	if rec.CountryID == "" {
		rec.CountryID = s.opts.Country
	}
	if stats != nil {
		lat, lon := stats.Start.Lat, stats.Start.Lon
		rec.StartLat, rec.StartLon = &lat, &lon
	}

	langs := s.opts.Languages
	defaultName := tl.Name
	if defaultName == "" {
		defaultName = displayName(f.ID)
	}
	if authored(prev.Name) {
		rec.Name = langs.normalize(prev.Name, defaultName, nil)
	} else {
		rec.Name = langs.uniform(defaultName)
	}
	if authored(prev.Suitable) {
		rec.Suitable = langs.normalize(prev.Suitable, "", s.translate)
	} else {
		rec.Suitable = langs.normalize(s.gen.suitable(cls), "", nil)
	}
	if authored(prev.Desc) {
		rec.Desc = langs.normalize(prev.Desc, "", s.translate)
	} else {
		rec.Desc = langs.normalize(s.gen.describe(cls, stats), "", nil)
	}
	return rec
}

func (s *syncer) translate(text, lang string) string {
	return s.opts.Translator.Translate(s.ctx, text, lang)
}

// gpxURL is plain concatenation: {rawBase}/{folderTag}/[{subfolder}/]{file}.
func gpxURL(rawBase, folderTag, rel string) string {
	parts := make([]string, 0, 3)
	if b := strings.TrimRight(rawBase, "/"); b != "" {
		parts = append(parts, b)
	}
	if t := strings.Trim(folderTag, "/"); t != "" {
		parts = append(parts, t)
	}
	parts = append(parts, rel)
	return strings.Join(parts, "/")
}

func trailsOrEmpty(t []TrailRecord) []TrailRecord {
	if t == nil {
		return []TrailRecord{}
	}
	return t
}
