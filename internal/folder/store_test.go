package folder

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "folders.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreInsertGetList(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	created := time.Date(2025, 10, 3, 10, 0, 0, 0, time.UTC)

	for _, f := range []Folder{
		{ID: "b-folder", Name: "Beta", CreatedAt: created},
		{ID: "a-folder", Name: "Alpha", CreatedAt: created},
	} {
		if err := store.Insert(ctx, f); err != nil {
			t.Fatalf("insert %s: %v", f.ID, err)
		}
	}

	got, err := store.Get(ctx, "a-folder")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Alpha" || !got.CreatedAt.Equal(created) {
		t.Errorf("unexpected folder %+v", got)
	}
	if got.Synced() {
		t.Errorf("new folder should not be synced")
	}

	folders, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(folders) != 2 || folders[0].Name != "Alpha" || folders[1].Name != "Beta" {
		t.Fatalf("expected folders ordered by name, got %+v", folders)
	}
}

func TestStoreInsertDuplicate(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	f := Folder{ID: "dup", Name: "Dup", CreatedAt: time.Now()}
	if err := store.Insert(ctx, f); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := store.Insert(ctx, f); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
}

func TestStoreUpdateSyncAndDelete(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	if err := store.Insert(ctx, Folder{ID: "f1", Name: "One", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	synced := time.Date(2025, 10, 3, 12, 30, 0, 0, time.UTC)
	if err := store.UpdateSync(ctx, "f1", 12, synced); err != nil {
		t.Fatalf("update sync: %v", err)
	}
	got, err := store.Get(ctx, "f1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.VideoCount != 12 || !got.LastSynced.Equal(synced) {
		t.Errorf("sync not recorded: %+v", got)
	}

	if err := store.Delete(ctx, "f1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "f1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.Delete(ctx, "f1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound deleting twice, got %v", err)
	}
	if err := store.UpdateSync(ctx, "f1", 1, synced); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound updating a missing folder, got %v", err)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "folders.db")

	first, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := first.Insert(ctx, Folder{ID: "keep", Name: "Keep", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	_ = first.Close()

	second, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = second.Close() }()

	if _, err := second.Get(ctx, "keep"); err != nil {
		t.Fatalf("folder lost across reopen: %v", err)
	}
}
