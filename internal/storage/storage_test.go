package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Epistemic-Technology/doc-commenter/models"
)

func report(id string, entries int) *models.RunReport {
	r := &models.RunReport{RunID: id, DocumentPath: id + ".docx", Kind: models.KindDOCX}
	for i := 1; i <= entries; i++ {
		r.Entries = append(r.Entries, models.EntryReport{Entry: i, Applied: 1})
		r.Applied++
	}
	return r
}

func TestMemoryStoreSaveAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	defer store.Close()

	if err := store.SaveRun(ctx, report("a", 2)); err != nil {
		t.Fatalf("SaveRun() failed: %v", err)
	}

	got, err := store.GetRun(ctx, "a")
	if err != nil {
		t.Fatalf("GetRun() failed: %v", err)
	}
	if got.RunID != "a" || len(got.Entries) != 2 {
		t.Errorf("GetRun() = %+v", got)
	}

	entry, err := store.GetEntry(ctx, "a", 2)
	if err != nil {
		t.Fatalf("GetEntry() failed: %v", err)
	}
	if entry.Entry != 2 {
		t.Errorf("GetEntry().Entry = %d, want 2", entry.Entry)
	}

	for _, n := range []int{0, 3} {
		if _, err := store.GetEntry(ctx, "a", n); err == nil {
			t.Errorf("GetEntry(%d) succeeded, want error", n)
		}
	}
	if _, err := store.GetRun(ctx, "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun(missing) error = %v, want ErrRunNotFound", err)
	}
}

func TestMemoryStoreEvictsOldest(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(2)

	for _, id := range []string{"a", "b", "c"} {
		if err := store.SaveRun(ctx, report(id, 1)); err != nil {
			t.Fatalf("SaveRun(%s) failed: %v", id, err)
		}
	}

	infos, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("ListRuns() failed: %v", err)
	}
	var ids []string
	for _, info := range infos {
		ids = append(ids, info.RunID)
	}
	if diff := cmp.Diff([]string{"c", "b"}, ids); diff != "" {
		t.Errorf("ListRuns() mismatch (-want +got):\n%s", diff)
	}
	if _, err := store.GetRun(ctx, "a"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("oldest run was not evicted")
	}
}

func TestMemoryStoreResaveMovesToFront(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(2)
	for _, id := range []string{"a", "b", "a", "c"} {
		if err := store.SaveRun(ctx, report(id, 0)); err != nil {
			t.Fatalf("SaveRun(%s) failed: %v", id, err)
		}
	}
	infos, _ := store.ListRuns(ctx)
	if len(infos) != 2 || infos[0].RunID != "c" || infos[1].RunID != "a" {
		t.Errorf("ListRuns() = %+v, want c then a", infos)
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	_ = store.SaveRun(ctx, report("a", 1))

	if err := store.DeleteRun(ctx, "a"); err != nil {
		t.Fatalf("DeleteRun() failed: %v", err)
	}
	if err := store.DeleteRun(ctx, "a"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("second DeleteRun() error = %v, want ErrRunNotFound", err)
	}
	infos, _ := store.ListRuns(ctx)
	if len(infos) != 0 {
		t.Errorf("ListRuns() after delete = %v", infos)
	}
}

func TestMemoryStoreRejectsMissingID(t *testing.T) {
	store := NewMemoryStore(0)
	if err := store.SaveRun(context.Background(), &models.RunReport{}); err == nil {
		t.Error("SaveRun() without ID succeeded")
	}
}

func TestCalculateResourcePaths(t *testing.T) {
	paths := CalculateResourcePaths(report("r1", 2))
	expected := []string{
		"commenter://runs/r1",
		"commenter://runs/r1/entries/1",
		"commenter://runs/r1/entries/2",
		"commenter://runs/r1/entries/{entry}",
	}
	if diff := cmp.Diff(expected, paths); diff != "" {
		t.Errorf("CalculateResourcePaths() mismatch (-want +got):\n%s", diff)
	}
	if got := RunURI("x"); got != "commenter://runs/x" {
		t.Errorf("RunURI() = %q", got)
	}
}
