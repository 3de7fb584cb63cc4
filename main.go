package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

// --- Main Logic ---

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, argv []string, stdout, stderr io.Writer) int {
	args, err := parseArguments(argv, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	level := slog.LevelInfo
	if args.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	langs, err := newLanguages(args.Languages, args.FallbackLang)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	translator, closeTranslator, err := buildTranslator(args, logger)
	if err != nil {
		logger.Error("translator setup failed", "err", err)
		return exitFailed
	}
	defer closeTranslator()

	var progress io.Writer
	if f, ok := stderr.(*os.File); ok && isTerminal(f) {
		progress = f
	}

	opts := SyncOptions{
		RawBase:    args.RawBase,
		Country:    args.Country,
		Languages:  langs,
		Translator: translator,
		DryRun:     args.DryRun,
		Progress:   progress,
	}

	failed := false
	var results []*SyncResult
	for _, spec := range args.catalogs() {
		if ctx.Err() != nil {
			logger.Warn("interrupted, skipping remaining catalogs")
			failed = true
			break
		}

		// --- Split multi-track files ---
		if !args.NoSplit {
			splits, err := splitDir(spec.GpxDir, SplitOptions{BackupDir: args.SplitBackup, DryRun: args.DryRun, SubFolders: spec.SubFolders}, logger.With("catalog", spec.Name))
			if err != nil {
				logger.Error("split failed", "catalog", spec.Name, "err", err)
				failed = true
				continue
			}
			for _, s := range splits {
				fmt.Fprintf(stdout, "%s: split %s into %d files (%d rejected, %d unnamed)\n", spec.Name, s.Source, len(s.Written), len(s.Rejected), s.Unnamed)
			}
		}

		// --- Reconcile catalog ---
		res, err := syncCatalog(ctx, spec, opts, logger)
		if err != nil {
			logger.Error("catalog sync failed", "catalog", spec.Name, "err", err)
			failed = true
			continue
		}
		results = append(results, res)
		fmt.Fprintf(stdout, "%s: %d trails, %d added, %d removed, %s\n",
			spec.Name, len(res.Catalog.Trails), len(res.Added), len(res.Removed), writeStatus(res, args.DryRun))

		// --- Previews ---
		if args.PreviewDir != "" && !args.DryRun {
			popts := defaultPreviewOptions(filepath.Join(args.PreviewDir, spec.Name))
			popts.Workers = args.PreviewWorkers
			popts.LineColor = args.PreviewColor
			n, err := renderPreviews(res, langs, popts, logger)
			if err != nil {
				logger.Error("preview rendering failed", "catalog", spec.Name, "err", err)
				failed = true
			}
			logger.Info("previews written", "catalog", spec.Name, "count", n, "dir", popts.Dir)
		}
	}

	if args.GeoJSONPath != "" && !args.DryRun && len(results) > 0 {
		n, err := writeGeoJSON(args.GeoJSONPath, results, langs)
		if err != nil {
			logger.Error("geojson export failed", "err", err)
			failed = true
		} else {
			fmt.Fprintf(stdout, "GeoJSON with %d features saved to %s\n", n, args.GeoJSONPath)
		}
	}

	if failed {
		return exitFailed
	}
	return exitOK
}

func buildTranslator(args *Arguments, logger *slog.Logger) (Translator, func(), error) {
	if args.TranslateURL == "" {
		return noopTranslator{}, func() {}, nil
	}
	var t Translator = newHTTPTranslator(args.TranslateURL, args.TranslateKey, args.TranslateSource, args.TranslateDelay, logger)
	if args.TranslateCache == "" {
		return t, func() {}, nil
	}
	cached, err := openCachedTranslator(args.TranslateCache, t, logger)
	if err != nil {
		return nil, nil, err
	}
	return cached, func() {
		if err := cached.Close(); err != nil {
			logger.Warn("failed to close translation cache", "err", err)
		}
	}, nil
}

func writeStatus(res *SyncResult, dryRun bool) string {
	switch {
	case res.Written:
		return "written"
	case dryRun && res.Changed:
		return "would change"
	case res.Changed:
		return "changed"
	default:
		return "unchanged"
	}
}
