package manifest

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"tessera/internal/codec"
	"tessera/internal/fileutil"
	"tessera/internal/tile"
	"tessera/internal/tilegeom"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "db", "manifest.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func encodedTile(scene string, x int, data string) tile.Encoded {
	return tile.Encoded{
		Key:    tile.Key{Scene: scene, Layer: "base", Coord: tilegeom.Coordinate{Zoom: 2, X: x, Z: -1}},
		Format: codec.PNG,
		Data:   []byte(data),
	}
}

func TestPersistRequiresRun(t *testing.T) {
	store := openTestStore(t)
	if err := store.Persist(context.Background(), encodedTile("s", 0, "x")); !errors.Is(err, ErrNoRun) {
		t.Fatalf("Persist error = %v, want ErrNoRun", err)
	}
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := store.BeginRun(ctx, "run-1", start); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}

	var wg sync.WaitGroup
	for x := range 8 {
		wg.Go(func() {
			if err := store.Persist(ctx, encodedTile("castle", x, "tile")); err != nil {
				t.Errorf("Persist: %v", err)
			}
		})
	}
	wg.Wait()

	if err := store.FinishRun(ctx, StatusCompleted, start.Add(time.Minute)); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	runs, err := store.Runs(ctx)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	want := []Run{{
		ID:         "run-1",
		StartedAt:  start,
		FinishedAt: start.Add(time.Minute),
		Status:     StatusCompleted,
		Tiles:      8,
		Bytes:      32,
	}}
	if diff := cmp.Diff(want, runs); diff != "" {
		t.Fatalf("runs mismatch (-want +got):\n%s", diff)
	}

	records, err := store.Tiles(ctx, "run-1")
	if err != nil {
		t.Fatalf("Tiles: %v", err)
	}
	if len(records) != 8 {
		t.Fatalf("records = %d, want 8", len(records))
	}
	got := records[3]
	wantRecord := Record{
		Scene: "castle", Layer: "base", Zoom: 2, X: 3, Z: -1,
		RunID: "run-1", Format: "png", Bytes: 4, SHA256: fileutil.Digest([]byte("tile")),
	}
	if diff := cmp.Diff(wantRecord, got, cmpopts.IgnoreFields(Record{}, "WrittenAt")); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestPersistKeepsLatestWrite(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	now := time.Now()
	if err := store.BeginRun(ctx, "first", now); err != nil {
		t.Fatal(err)
	}
	if err := store.Persist(ctx, encodedTile("s", 0, "old")); err != nil {
		t.Fatal(err)
	}
	if err := store.BeginRun(ctx, "second", now.Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	if err := store.Persist(ctx, encodedTile("s", 0, "newer")); err != nil {
		t.Fatal(err)
	}

	old, err := store.Tiles(ctx, "first")
	if err != nil {
		t.Fatal(err)
	}
	if len(old) != 0 {
		t.Fatalf("first run still owns %d tiles", len(old))
	}
	latest, err := store.Tiles(ctx, "second")
	if err != nil {
		t.Fatal(err)
	}
	if len(latest) != 1 || latest[0].Bytes != 5 {
		t.Fatalf("unexpected latest rows: %+v", latest)
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.db")
	store, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = store.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatal(err)
	}
	_ = db.Close()

	if _, err := Open(context.Background(), path); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("Open error = %v, want ErrSchemaMismatch", err)
	}
}
