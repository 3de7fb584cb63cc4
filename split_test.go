package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func routeXML(name string, n int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<rte><name>%s</name>", name)
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, `<rtept lat="%.6f" lon="7.100000"><ele>%d</ele></rtept>`, 46.0+float64(i)*0.0001, 300+i)
	}
	b.WriteString("</rte>")
	return b.String()
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, fs.ErrNotExist)
}

func TestSplitFileQualityGate(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "multi.gpx")
	writeTestFile(t, src, gpxDoc(trackXML("Short", 5, 100, 1)+trackXML("Long Ride", 200, 100, 1)))

	res, err := splitFile(src, SplitOptions{}, nil, testLogger())
	if err != nil {
		t.Fatalf("splitFile failed: %v", err)
	}
	if res == nil {
		t.Fatal("expected a split result")
	}
	if len(res.Written) != 1 || filepath.Base(res.Written[0]) != "long_ride.gpx" {
		t.Errorf("Written = %v, want [long_ride.gpx]", res.Written)
	}
	if len(res.Rejected) != 1 || res.Rejected[0] != "Short" {
		t.Errorf("Rejected = %v, want [Short]", res.Rejected)
	}
	if exists(src) || !res.Removed {
		t.Error("source file should be removed")
	}

	tl, err := parseTrackLogFile(filepath.Join(dir, "long_ride.gpx"))
	if err != nil {
		t.Fatalf("output does not parse: %v", err)
	}
	if len(tl.Points) != 200 || tl.Name != "Long Ride" {
		t.Errorf("output has %d points named %q", len(tl.Points), tl.Name)
	}
	if !tl.Points[0].HasEle {
		t.Error("elevation should survive the split")
	}
}

func TestSplitFileTooLong(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "multi.gpx")
	// 0.5 degree jumps, ~55 km per step
	var far strings.Builder
	far.WriteString("<trk><name>Far</name><trkseg>")
	for i := 0; i < 12; i++ {
		fmt.Fprintf(&far, `<trkpt lat="%.1f" lon="7"/>`, 40+float64(i)*0.5)
	}
	far.WriteString("</trkseg></trk>")
	writeTestFile(t, src, gpxDoc(far.String()+trackXML("Ok", 200, 0, 0)))

	res, err := splitFile(src, SplitOptions{}, nil, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Rejected) != 1 || res.Rejected[0] != "Far" {
		t.Errorf("Rejected = %v, want [Far]", res.Rejected)
	}
	if len(res.Written) != 1 {
		t.Errorf("Written = %v", res.Written)
	}
}

func TestSplitFileSingleTrackUntouched(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "single.gpx")
	writeTestFile(t, src, gpxDoc(trackXML("Only", 200, 0, 0)))

	res, err := splitFile(src, SplitOptions{}, nil, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if res != nil {
		t.Errorf("single track file should not be split, got %+v", res)
	}
	if !exists(src) {
		t.Error("single track file should stay")
	}
}

func TestSplitFileUnnamedAndRoutes(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "mixed.gpx")
	writeTestFile(t, src, gpxDoc(trackXML("", 200, 0, 0)+trackXML("Valley", 200, 0, 0)+routeXML("Ridge Route", 150)+routeXML("  ", 150)))

	res, err := splitFile(src, SplitOptions{}, nil, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if res.Unnamed != 2 {
		t.Errorf("Unnamed = %d, want 2", res.Unnamed)
	}
	if len(res.Written) != 2 {
		t.Fatalf("Written = %v, want 2 files", res.Written)
	}

	tl, err := parseTrackLogFile(filepath.Join(dir, "ridge_route.gpx"))
	if err != nil {
		t.Fatalf("route output does not parse: %v", err)
	}
	if len(tl.Points) != 150 {
		t.Errorf("route output has %d points, want 150", len(tl.Points))
	}
	data, err := os.ReadFile(filepath.Join(dir, "ridge_route.gpx"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "<trkpt") || strings.Contains(string(data), "<rtept") {
		t.Error("route should be written as a track")
	}
}

func TestSplitFileNameCollisions(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "loop.gpx"), gpxDoc(trackXML("Existing", 200, 0, 0)))
	src := filepath.Join(dir, "multi.gpx")
	writeTestFile(t, src, gpxDoc(trackXML("Loop", 200, 0, 0)+trackXML("Loop", 120, 0, 0)))

	res, err := splitFile(src, SplitOptions{}, nil, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, w := range res.Written {
		names = append(names, filepath.Base(w))
	}
	if strings.Join(names, ",") != "loop_2.gpx,loop_3.gpx" {
		t.Errorf("written = %v, want loop_2.gpx and loop_3.gpx", names)
	}
	existing, err := parseTrackLogFile(filepath.Join(dir, "loop.gpx"))
	if err != nil || existing.Name != "Existing" {
		t.Errorf("existing file was touched: %v %v", existing, err)
	}
}

func TestSplitFileBackupAndDryRun(t *testing.T) {
	dir := t.TempDir()
	backup := filepath.Join(t.TempDir(), "backup")
	src := filepath.Join(dir, "multi.gpx")
	doc := gpxDoc(trackXML("One", 200, 0, 0) + trackXML("Two", 200, 0, 0))
	writeTestFile(t, src, doc)

	res, err := splitFile(src, SplitOptions{DryRun: true}, nil, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Written) != 2 || exists(res.Written[0]) || !exists(src) {
		t.Errorf("dry run should only report: %+v", res)
	}

	if _, err := splitFile(src, SplitOptions{BackupDir: backup}, nil, testLogger()); err != nil {
		t.Fatal(err)
	}
	if exists(src) {
		t.Error("source should have left the catalog directory")
	}
	if !exists(filepath.Join(backup, "multi.gpx")) {
		t.Error("source should be in the backup directory")
	}
	if !exists(filepath.Join(dir, "one.gpx")) || !exists(filepath.Join(dir, "two.gpx")) {
		t.Error("split outputs missing")
	}
}

func TestSplitDir(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "city", "multi.gpx"), gpxDoc(trackXML("A", 200, 0, 0)+trackXML("B", 200, 0, 0)))
	writeTestFile(t, filepath.Join(dir, "plain.gpx"), gpxDoc(trackXML("Plain", 200, 0, 0)))

	results, err := splitDir(dir, SplitOptions{}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d split results, want 1", len(results))
	}
	if !exists(filepath.Join(dir, "city", "a.gpx")) {
		t.Error("outputs should land next to the source")
	}

	if results, err := splitDir(filepath.Join(dir, "missing"), SplitOptions{}, testLogger()); err != nil || results != nil {
		t.Errorf("missing dir: %v, %v", results, err)
	}
}

func TestSplitFileUnreadableLeftToSync(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.gpx")
	writeTestFile(t, bad, gpxDoc(trackXML("A", 200, 0, 0)+`<trk><name>B</name><trkseg><trkpt lat="abc" lon="7"></trkpt></trkseg></trk>`))
	empty := filepath.Join(dir, "empty.gpx")
	writeTestFile(t, empty, "")

	for _, path := range []string{bad, empty} {
		res, err := splitFile(path, SplitOptions{}, nil, testLogger())
		if err != nil || res != nil {
			t.Errorf("%s: got %+v, %v, want no split and no error", filepath.Base(path), res, err)
		}
		if !exists(path) {
			t.Errorf("%s should be left in place", filepath.Base(path))
		}
	}

	results, err := splitDir(dir, SplitOptions{}, testLogger())
	if err != nil || len(results) != 0 {
		t.Errorf("splitDir = %+v, %v", results, err)
	}
}

func TestSplitDirAvoidsTakenIDs(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "city1", "valley.gpx"), gpxDoc(trackXML("Valley", 200, 0, 0)))
	writeTestFile(t, filepath.Join(dir, "city2", "multi.gpx"), gpxDoc(trackXML("Valley", 200, 0, 0)+trackXML("Ridge", 200, 0, 0)))

	if _, err := splitDir(dir, SplitOptions{}, testLogger()); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"valley_2.gpx", "ridge.gpx"} {
		if !exists(filepath.Join(dir, "city2", name)) {
			t.Errorf("city2/%s missing", name)
		}
	}
	if exists(filepath.Join(dir, "city2", "valley.gpx")) {
		t.Error("city2/valley.gpx would clash with city1/valley.gpx")
	}

	files, err := findTrackLogs(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	seen := make(map[string]bool)
	for _, f := range files {
		if seen[f.ID] {
			t.Errorf("duplicate id %q after split", f.ID)
		}
		seen[f.ID] = true
	}
}

func TestSplitDirHonorsSubFolders(t *testing.T) {
	dir := t.TempDir()
	doc := gpxDoc(trackXML("One", 200, 0, 0) + trackXML("Two", 200, 0, 0))
	writeTestFile(t, filepath.Join(dir, "chisinau", "a.gpx"), doc)
	writeTestFile(t, filepath.Join(dir, "archive", "b.gpx"), doc)

	results, err := splitDir(dir, SplitOptions{SubFolders: []string{"chisinau"}}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || exists(filepath.Join(dir, "chisinau", "a.gpx")) {
		t.Errorf("chisinau/a.gpx should be split, results = %+v", results)
	}
	if !exists(filepath.Join(dir, "archive", "b.gpx")) || exists(filepath.Join(dir, "archive", "one.gpx")) {
		t.Error("files outside the subfolder list must not be touched")
	}
}

func TestSplitFileRetireFailureRollsBack(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "multi.gpx")
	writeTestFile(t, src, gpxDoc(trackXML("One", 200, 0, 0)+trackXML("Two", 200, 0, 0)))
	// a regular file where the backup directory should go
	backup := filepath.Join(t.TempDir(), "backup")
	writeTestFile(t, backup, "")

	if _, err := splitFile(src, SplitOptions{BackupDir: backup}, nil, testLogger()); err == nil {
		t.Fatal("expected an error when the backup directory cannot be created")
	}
	if !exists(src) {
		t.Error("source must stay when it could not be retired")
	}
	for _, name := range []string{"one.gpx", "two.gpx"} {
		if exists(filepath.Join(dir, name)) {
			t.Errorf("%s should have been removed again", name)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"Forest Loop  #2": "forest_loop_#2",
		`a/b:c*d?`:        "abcd",
		"  ":              "track",
		"Трасса Лес":      "трасса_лес",
		"..hidden..":      "hidden",
		"Tab\tSeparated":  "tab_separated",
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
