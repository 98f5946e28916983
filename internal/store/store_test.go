package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/oriys/scriptd/internal/runner"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runs.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func samplePID() *int {
	v := 4242
	return &v
}

func sampleReturnCode() *int {
	v := 0
	return &v
}

func TestUpsertAndLoadAllRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	started := time.Now().UTC().Truncate(time.Millisecond)
	finished := started.Add(5 * time.Second)
	errMsg := "something went wrong"

	record := &runner.RunRecord{
		RunID:      "run-1",
		Script:     "hello.py",
		Argv:       []string{"python3", "-u", "/scripts/hello.py"},
		Status:     runner.StatusSucceeded,
		PID:        samplePID(),
		ReturnCode: sampleReturnCode(),
		CreatedAt:  started,
		StartedAt:  &started,
		FinishedAt: &finished,
		StdoutPath: "/logs/run-1.stdout.log",
		StderrPath: "/logs/run-1.stderr.log",
		Error:      &errMsg,
	}

	if err := st.Upsert(ctx, record); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	loaded, err := st.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("expected 1 row, got %d", len(loaded))
	}

	got := loaded[0]
	if got.RunID != record.RunID || got.Script != record.Script || got.Status != record.Status {
		t.Fatalf("round-trip mismatch on scalar fields: %+v", got)
	}
	if len(got.Argv) != len(record.Argv) {
		t.Fatalf("argv length mismatch: got %v want %v", got.Argv, record.Argv)
	}
	if got.PID == nil || *got.PID != *record.PID {
		t.Fatalf("pid mismatch: got %v want %v", got.PID, record.PID)
	}
	if got.ReturnCode == nil || *got.ReturnCode != *record.ReturnCode {
		t.Fatalf("return_code mismatch: got %v want %v", got.ReturnCode, record.ReturnCode)
	}
	if !got.CreatedAt.Equal(record.CreatedAt) {
		t.Fatalf("created_at mismatch: got %v want %v", got.CreatedAt, record.CreatedAt)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(*record.StartedAt) {
		t.Fatalf("started_at mismatch: got %v want %v", got.StartedAt, record.StartedAt)
	}
	if got.FinishedAt == nil || !got.FinishedAt.Equal(*record.FinishedAt) {
		t.Fatalf("finished_at mismatch: got %v want %v", got.FinishedAt, record.FinishedAt)
	}
	if got.Error == nil || *got.Error != *record.Error {
		t.Fatalf("error mismatch: got %v want %v", got.Error, record.Error)
	}
}

func TestUpsertReplacesExistingRow(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	record := &runner.RunRecord{
		RunID:     "run-2",
		Script:    "long.py",
		Argv:      []string{"python3", "-u", "/scripts/long.py"},
		Status:    runner.StatusRunning,
		CreatedAt: time.Now().UTC(),
	}
	if err := st.Upsert(ctx, record); err != nil {
		t.Fatalf("Upsert (initial): %v", err)
	}

	record.Status = runner.StatusStopped
	now := time.Now().UTC()
	record.FinishedAt = &now
	if err := st.Upsert(ctx, record); err != nil {
		t.Fatalf("Upsert (replace): %v", err)
	}

	loaded, err := st.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("expected replace to keep a single row, got %d", len(loaded))
	}
	if loaded[0].Status != runner.StatusStopped {
		t.Fatalf("expected updated status stopped, got %s", loaded[0].Status)
	}
}

func TestLoadAllHandlesNullableFields(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	record := &runner.RunRecord{
		RunID:     "run-3",
		Script:    "starting.py",
		Argv:      []string{"python3", "-u", "/scripts/starting.py"},
		Status:    runner.StatusStarting,
		CreatedAt: time.Now().UTC(),
	}
	if err := st.Upsert(ctx, record); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	loaded, err := st.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("expected 1 row, got %d", len(loaded))
	}
	got := loaded[0]
	if got.PID != nil || got.ReturnCode != nil || got.StartedAt != nil || got.FinishedAt != nil || got.Error != nil {
		t.Fatalf("expected all nullable fields nil for a starting run, got %+v", got)
	}
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatalf("expected error opening empty path")
	}
}
