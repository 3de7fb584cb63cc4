package main

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"
)

// --- Structs ---

type PreviewOptions struct {
	Dir       string
	Width     int
	Height    int
	Workers   int
	LineColor color.Color
	FillColor color.Color
}

type previewTask struct {
	id    string
	title string
	prof  []ProfileSample
}

func defaultPreviewOptions(dir string) PreviewOptions {
	return PreviewOptions{
		Dir:       dir,
		Width:     800,
		Height:    240,
		Workers:   4,
		LineColor: color.RGBA{R: 0xff, G: 0x57, B: 0x22, A: 0xff},
		FillColor: color.RGBA{R: 0xff, G: 0x98, B: 0x00, A: 0x60},
	}
}

// --- Preview Pipeline ---

// renderPreviews writes <id>.png elevation profiles for every trail of res
// that carries elevation, returning how many were written.
func renderPreviews(res *SyncResult, langs Languages, opts PreviewOptions, logger *slog.Logger) (int, error) {
	font, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return 0, fmt.Errorf("failed to load font: %w", err)
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create preview dir: %w", err)
	}

	var tasks []previewTask
	for _, rec := range res.Catalog.Trails {
		tl := res.TrackLogs[rec.ID]
		if tl == nil || rec.Stats == nil || !rec.Stats.HasElevation {
			continue
		}
		tasks = append(tasks, previewTask{id: rec.ID, title: rec.Name[langs.Fallback], prof: elevationProfile(tl.Points)})
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].id < tasks[j].id })

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	queue := make(chan previewTask, workers*2)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		written  int
		firstErr error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pngBuffer := new(bytes.Buffer)
			for t := range queue {
				img := renderProfile(t.prof, t.title, opts, font)
				pngBuffer.Reset()
				err := png.Encode(pngBuffer, img)
				if err == nil {
					err = writeFileAtomic(filepath.Join(opts.Dir, t.id+".png"), pngBuffer.Bytes())
				}

				mu.Lock()
				if err != nil {
					logger.Warn("failed to write preview", "id", t.id, "err", err)
					if firstErr == nil {
						firstErr = err
					}
				} else {
					written++
				}
				mu.Unlock()
			}
		}()
	}
	for _, t := range tasks {
		queue <- t
	}
	close(queue)
	wg.Wait()

	return written, firstErr
}

func renderProfile(prof []ProfileSample, title string, opts PreviewOptions, font *truetype.Font) image.Image {
	const (
		marginLeft   = 56.0
		marginRight  = 16.0
		marginTop    = 32.0
		marginBottom = 28.0
	)
	w, h := float64(opts.Width), float64(opts.Height)

	dc := gg.NewContext(opts.Width, opts.Height)
	dc.SetColor(color.White)
	dc.Clear()
	dc.SetFontFace(truetype.NewFace(font, &truetype.Options{Size: 13}))

	dc.SetColor(color.Black)
	dc.DrawStringAnchored(title, marginLeft, marginTop/2, 0, 0.5)

	if len(prof) < 2 {
		return dc.Image()
	}

	minEle, maxEle := math.Inf(1), math.Inf(-1)
	for _, s := range prof {
		minEle = math.Min(minEle, s.Ele)
		maxEle = math.Max(maxEle, s.Ele)
	}
	// keep flat tracks from filling the whole height
	if maxEle-minEle < 20 {
		mid := (maxEle + minEle) / 2
		minEle, maxEle = mid-10, mid+10
	}
	totalDist := prof[len(prof)-1].Distance
	if totalDist <= 0 {
		totalDist = 1
	}

	plotW := w - marginLeft - marginRight
	plotH := h - marginTop - marginBottom
	x := func(d float64) float64 { return marginLeft + d/totalDist*plotW }
	y := func(e float64) float64 { return marginTop + (1-(e-minEle)/(maxEle-minEle))*plotH }

	// area under the curve
	dc.MoveTo(x(prof[0].Distance), marginTop+plotH)
	for _, s := range prof {
		dc.LineTo(x(s.Distance), y(s.Ele))
	}
	dc.LineTo(x(prof[len(prof)-1].Distance), marginTop+plotH)
	dc.ClosePath()
	dc.SetColor(opts.FillColor)
	dc.Fill()

	dc.SetColor(opts.LineColor)
	dc.SetLineWidth(2)
	dc.MoveTo(x(prof[0].Distance), y(prof[0].Ele))
	for _, s := range prof[1:] {
		dc.LineTo(x(s.Distance), y(s.Ele))
	}
	dc.Stroke()

	// axes
	dc.SetColor(color.Gray{Y: 0x80})
	dc.SetLineWidth(1)
	dc.DrawLine(marginLeft, marginTop, marginLeft, marginTop+plotH)
	dc.DrawLine(marginLeft, marginTop+plotH, marginLeft+plotW, marginTop+plotH)
	dc.Stroke()

	dc.SetColor(color.Black)
	dc.DrawStringAnchored(fmt.Sprintf("%.0f m", maxEle), marginLeft-6, marginTop, 1, 0.5)
	dc.DrawStringAnchored(fmt.Sprintf("%.0f m", minEle), marginLeft-6, marginTop+plotH, 1, 0.5)
	dc.DrawStringAnchored("0", marginLeft, marginTop+plotH+14, 0.5, 0.5)
	dc.DrawStringAnchored(fmt.Sprintf("%.1f km", totalDist/1000), marginLeft+plotW, marginTop+plotH+14, 1, 0.5)

	return dc.Image()
}
