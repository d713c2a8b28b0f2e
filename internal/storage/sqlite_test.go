package storage

import (
	"path/filepath"
	"testing"

	"github.com/mpataki/anvil/internal/models"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "anvil.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGetRecord(t *testing.T) {
	s := newTestStorage(t)

	id, err := s.CreateRecord(&models.Record{
		Goal:        "Add LICENSE file",
		Workspace:   "/workspace",
		Outcome:     models.RecordSuccess,
		DurationSec: 42.5,
		ToolUses:    7,
		Summary:     "Added MIT license.",
	})
	if err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}

	rec, err := s.GetRecord(id)
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if rec.Goal != "Add LICENSE file" || rec.Outcome != models.RecordSuccess {
		t.Errorf("got %+v", rec)
	}
	if rec.DurationSec != 42.5 || rec.ToolUses != 7 {
		t.Errorf("got duration=%v tools=%d", rec.DurationSec, rec.ToolUses)
	}
	if rec.CreatedAt.IsZero() {
		t.Error("created_at not populated")
	}
}

func TestListRecordsNewestFirst(t *testing.T) {
	s := newTestStorage(t)

	for _, goal := range []string{"first", "second", "third"} {
		if _, err := s.CreateRecord(&models.Record{
			Goal: goal, Workspace: "/w", Outcome: models.RecordSuccess,
		}); err != nil {
			t.Fatal(err)
		}
	}

	recs, err := s.ListRecords(10)
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records", len(recs))
	}
	if recs[0].Goal != "third" || recs[2].Goal != "first" {
		t.Errorf("order wrong: %q, %q, %q", recs[0].Goal, recs[1].Goal, recs[2].Goal)
	}
}

func TestListRecordsRespectsLimit(t *testing.T) {
	s := newTestStorage(t)
	for i := 0; i < 5; i++ {
		if _, err := s.CreateRecord(&models.Record{
			Goal: "g", Workspace: "/w", Outcome: models.RecordFailure,
		}); err != nil {
			t.Fatal(err)
		}
	}

	recs, err := s.ListRecords(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Errorf("got %d records, want 2", len(recs))
	}
}

func TestFatalRecordKeepsError(t *testing.T) {
	s := newTestStorage(t)
	id, err := s.CreateRecord(&models.Record{
		Goal:      "broken run",
		Workspace: "/w",
		Outcome:   models.RecordFatal,
		Error:     "session: connection refused",
	})
	if err != nil {
		t.Fatal(err)
	}

	rec, err := s.GetRecord(id)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Outcome != models.RecordFatal || rec.Error != "session: connection refused" {
		t.Errorf("got %+v", rec)
	}
}

func TestDeleteRecord(t *testing.T) {
	s := newTestStorage(t)
	id, err := s.CreateRecord(&models.Record{Goal: "g", Workspace: "/w", Outcome: models.RecordSuccess})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteRecord(id); err != nil {
		t.Fatalf("DeleteRecord: %v", err)
	}
	if err := s.DeleteRecord(id); err == nil {
		t.Error("expected error deleting a missing record")
	}
}
