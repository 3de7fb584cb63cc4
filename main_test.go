package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunEndToEnd(t *testing.T) {
	root := t.TempDir()
	verified := filepath.Join(root, "gpx")
	unverified := filepath.Join(root, "gpx_unverified")
	writeTestFile(t, filepath.Join(verified, "chisinau", "collection.gpx"),
		gpxDoc(trackXML("Valley Run", 200, 300, -0.5)+trackXML("Tiny", 4, 0, 0)+trackXML("Hill Climb", 150, 100, 1)))
	writeTestFile(t, filepath.Join(unverified, "scate_park.gpx"), gpxDoc(trackXML("", 100, 0, 0)))

	argv := []string{
		"-verified-gpx-dir", verified,
		"-verified-json", filepath.Join(root, "trails.json"),
		"-unverified-gpx-dir", unverified,
		"-unverified-json", filepath.Join(root, "trails_unverified.json"),
		"-raw-base", "https://raw.example/main",
		"-previews", filepath.Join(root, "previews"),
		"-geojson", filepath.Join(root, "trails.geojson"),
		"-country", "md",
	}
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), argv, &stdout, &stderr); code != exitOK {
		t.Fatalf("exit code %d, stderr:\n%s", code, stderr.String())
	}

	if exists(filepath.Join(verified, "chisinau", "collection.gpx")) {
		t.Error("multi-track file should have been split")
	}
	for _, name := range []string{"valley_run.gpx", "hill_climb.gpx"} {
		if !exists(filepath.Join(verified, "chisinau", name)) {
			t.Errorf("%s missing after split", name)
		}
	}

	data, err := os.ReadFile(filepath.Join(root, "trails.json"))
	if err != nil {
		t.Fatal(err)
	}
	c := parseCatalog(data)
	if len(c.Trails) != 2 || c.Trails[0].ID != "hill_climb" || c.Trails[1].ID != "valley_run" {
		t.Fatalf("verified trails = %+v", c.Trails)
	}
	if c.Trails[1].CityID != "chisinau" || c.Trails[1].GpxURL != "https://raw.example/main/gpx/chisinau/valley_run.gpx" {
		t.Errorf("valley_run = %+v", c.Trails[1])
	}

	data, err = os.ReadFile(filepath.Join(root, "trails_unverified.json"))
	if err != nil {
		t.Fatal(err)
	}
	if c := parseCatalog(data); len(c.Trails) != 1 || c.Trails[0].GpxURL != "https://raw.example/main/gpx_unverified/scate_park.gpx" {
		t.Errorf("unverified trails = %+v", c.Trails)
	}

	if !exists(filepath.Join(root, "previews", "verified", "valley_run.png")) {
		t.Error("preview missing")
	}
	if !exists(filepath.Join(root, "trails.geojson")) {
		t.Error("geojson missing")
	}
	if !strings.Contains(stdout.String(), "verified: 2 trails, 2 added, 0 removed, written") {
		t.Errorf("summary = %q", stdout.String())
	}

	// nothing left to do on a second run
	stdout.Reset()
	if code := run(context.Background(), argv, &stdout, &stderr); code != exitOK {
		t.Fatalf("second run exit code %d", code)
	}
	if !strings.Contains(stdout.String(), "verified: 2 trails, 0 added, 0 removed, unchanged") {
		t.Errorf("second summary = %q", stdout.String())
	}
}

func TestRunExitCodes(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), nil, &stdout, &stderr); code != exitUsage {
		t.Errorf("no catalogs: exit %d, want %d", code, exitUsage)
	}
	if code := run(context.Background(), []string{"-verified-gpx-dir", "x", "-verified-json", "y", "-languages", "ru", "-fallback-lang", "en"}, &stdout, &stderr); code != exitUsage {
		t.Errorf("bad fallback: exit %d, want %d", code, exitUsage)
	}
	if code := run(context.Background(), []string{"-h"}, &stdout, &stderr); code != exitOK {
		t.Errorf("-h: exit %d, want %d", code, exitOK)
	}

	root := t.TempDir()
	good := filepath.Join(root, "good")
	bad := filepath.Join(root, "bad")
	writeTestFile(t, filepath.Join(good, "a.gpx"), gpxDoc(trackXML("A", 20, 0, 0)))
	writeTestFile(t, filepath.Join(bad, "b.gpx"), "<gpx><trk>")

	argv := []string{
		"-verified-gpx-dir", bad, "-verified-json", filepath.Join(root, "bad.json"),
		"-unverified-gpx-dir", good, "-unverified-json", filepath.Join(root, "good.json"),
		"-no-split",
	}
	if code := run(context.Background(), argv, &stdout, &stderr); code != exitFailed {
		t.Errorf("broken track log: exit %d, want %d", code, exitFailed)
	}
	if exists(filepath.Join(root, "bad.json")) {
		t.Error("failed catalog must not be written")
	}
	if !exists(filepath.Join(root, "good.json")) {
		t.Error("the other catalog should still be synced")
	}
}

func TestRunToleratesMalformedTrackLogs(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "gpx")
	writeTestFile(t, filepath.Join(dir, "rough.gpx"),
		gpxDoc(`<trk><name>Rough</name><trkseg><trkpt lat="abc" lon="7"></trkpt>`+
			`<trkpt lat="46.0" lon="7.0"></trkpt><trkpt lat="46.001" lon="7.0"></trkpt></trkseg></trk>`))
	writeTestFile(t, filepath.Join(dir, "zero.gpx"), "")

	argv := []string{"-verified-gpx-dir", dir, "-verified-json", filepath.Join(root, "trails.json")}
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), argv, &stdout, &stderr); code != exitOK {
		t.Fatalf("exit code %d, stderr:\n%s", code, stderr.String())
	}
	data, err := os.ReadFile(filepath.Join(root, "trails.json"))
	if err != nil {
		t.Fatal(err)
	}
	if c := parseCatalog(data); len(c.Trails) != 2 {
		t.Errorf("trails = %+v, want rough and zero", c.Trails)
	}
}
