package pipeline_test

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"

	"tessera/internal/faults"
	"tessera/internal/logging"
	"tessera/internal/manifest"
	"tessera/internal/pipeline"
	"tessera/internal/progress"
	"tessera/internal/sink"
	"tessera/internal/testsupport"
)

func TestBuildRendersToDirectoryAndManifest(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithTileSize(16, 1, 2), testsupport.WithManifest())
	testsupport.WriteScene(t, cfg.Paths.InputDir, "block.obj", testsupport.CubeOBJ(20))

	s, err := pipeline.Build(context.Background(), cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	res, err := s.Run(context.Background(), "")
	if closeErr := s.Close(context.Background()); closeErr != nil {
		t.Fatalf("Close: %v", closeErr)
	}
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	total, _ := planned(t, 20, pipeline.Params(cfg), nil)
	output := res.Snapshot.Get(progress.TilesOutput).Count
	if output == 0 {
		t.Fatal("expected some non-empty tiles")
	}
	if got := output + res.Snapshot.Get(progress.TilesEmpty).Count; got != int64(total) {
		t.Fatalf("output+empty = %d, want %d", got, total)
	}

	var files int
	err = filepath.WalkDir(cfg.Paths.OutputDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() == sink.LockName {
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".png") {
			t.Errorf("unexpected file %s", p)
		}
		files++
		return nil
	})
	if err != nil {
		t.Fatalf("walk output: %v", err)
	}
	if int64(files) != output {
		t.Fatalf("found %d tile files, want %d", files, output)
	}

	store, err := manifest.Open(context.Background(), cfg.Paths.ManifestPath)
	if err != nil {
		t.Fatalf("reopen manifest: %v", err)
	}
	defer store.Close()
	runs, err := store.Runs(context.Background())
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != res.RunID || runs[0].Status != manifest.StatusCompleted {
		t.Fatalf("runs = %+v", runs)
	}
	if runs[0].Tiles != output || runs[0].Bytes != res.BytesWritten {
		t.Fatalf("run totals = %d tiles / %d bytes, want %d / %d", runs[0].Tiles, runs[0].Bytes, output, res.BytesWritten)
	}
	records, err := store.Tiles(context.Background(), res.RunID)
	if err != nil {
		t.Fatalf("Tiles: %v", err)
	}
	if int64(len(records)) != output {
		t.Fatalf("manifest has %d tiles, want %d", len(records), output)
	}
	for _, r := range records {
		if r.Scene != "block" || r.Layer != "base" || r.Format != "png" {
			t.Fatalf("unexpected record %+v", r)
		}
	}
}

func TestBuildRejectsArchiveOutput(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.OutputDir = ""
	cfg.Paths.ArchivePath = filepath.Join(testsupport.BaseDir(cfg), "tiles.zip")

	_, err := pipeline.Build(context.Background(), cfg, logging.NewNop())
	if !errors.Is(err, faults.ErrConfiguration) || !errors.Is(err, sink.ErrArchiveUnsupported) {
		t.Fatalf("Build error = %v, want unsupported archive configuration error", err)
	}
}

func TestBuildFailsPreflightForMissingOptimizer(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Optimizer.Enabled = true
	cfg.Optimizer.Command = "tessera-missing-optimizer {input} {output}"

	_, err := pipeline.Build(context.Background(), cfg, logging.NewNop())
	if !errors.Is(err, faults.ErrExternalTool) {
		t.Fatalf("Build error = %v, want ErrExternalTool", err)
	}
}

func TestBuildWiresOptimizerScript(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithTileSize(16, 1, 2),
		testsupport.WithOptimizerScript("tessera-copy", "cp \"$1\" \"$2\"\n"),
	)
	cfg.Optimizer.IntermediateFormat = "bmp"
	testsupport.WriteScene(t, cfg.Paths.InputDir, "block.obj", testsupport.CubeOBJ(20))

	s, err := pipeline.Build(context.Background(), cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	res, err := s.Run(context.Background(), "")
	if closeErr := s.Close(context.Background()); closeErr != nil {
		t.Fatalf("Close: %v", closeErr)
	}
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	optimized := res.Snapshot.Get(progress.TilesOptimized).Count
	if optimized == 0 || optimized != res.Snapshot.Get(progress.TilesOutput).Count {
		t.Fatalf("optimized %d tiles, output %d", optimized, res.Snapshot.Get(progress.TilesOutput).Count)
	}
}
