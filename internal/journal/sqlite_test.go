package journal

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/petrijr/gframe/pkg/api"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// In-memory databases are per-connection; keep the pool at one.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteStoreEvents(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(openTestDB(t))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}

	at := time.Now()
	events := []Event{
		{FrameID: "f1", At: at, Topic: api.TopicFrameStarted},
		{FrameID: "f1", At: at.Add(time.Millisecond), Topic: api.TopicRoutineCompleted, Routine: "r1"},
		{FrameID: "f2", At: at, Topic: api.TopicFrameStarted},
	}
	for _, ev := range events {
		if err := s.AppendEvent(ctx, ev); err != nil {
			t.Fatalf("AppendEvent failed: %v", err)
		}
	}

	got, err := s.ListEvents(ctx, "f1")
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Topic != api.TopicFrameStarted || got[1].Routine != "r1" {
		t.Fatalf("unexpected events: %+v", got)
	}
	if !got[1].At.Equal(at.Add(time.Millisecond)) {
		t.Fatalf("timestamp lost precision: %v", got[1].At)
	}
}

func TestSQLiteStoreResultRoundtrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(openTestDB(t))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}

	if _, err := s.GetResult(ctx, "missing"); !errors.Is(err, ErrResultNotFound) {
		t.Fatalf("expected ErrResultNotFound, got %v", err)
	}

	res := &api.Result{
		FrameID: "f1",
		State:   api.StateFailed,
		Routines: []api.RoutineResult{
			{Name: "ok", Key: 1, State: api.RoutineDone, Value: 42, Duration: 3 * time.Millisecond},
			{Name: "bad", Key: 2, State: api.RoutineFailed, Err: errors.New("boom")},
		},
	}
	if err := s.SaveResult(ctx, res); err != nil {
		t.Fatalf("SaveResult failed: %v", err)
	}

	back, err := s.GetResult(ctx, "f1")
	if err != nil {
		t.Fatalf("GetResult failed: %v", err)
	}
	if back.FrameID != "f1" || back.State != api.StateFailed {
		t.Fatalf("unexpected result header: %+v", back)
	}
	if len(back.Routines) != 2 {
		t.Fatalf("expected 2 routines, got %d", len(back.Routines))
	}
	ok := back.Routines[0]
	if ok.Name != "ok" || ok.Key != 1 || ok.State != api.RoutineDone || ok.Value != 42 {
		t.Fatalf("unexpected routine: %+v", ok)
	}
	if ok.Duration != 3*time.Millisecond {
		t.Fatalf("duration lost: %v", ok.Duration)
	}
	// Errors survive as their message only.
	bad := back.Routines[1]
	if bad.Err == nil || bad.Err.Error() != "boom" {
		t.Fatalf("error not rehydrated: %v", bad.Err)
	}
}

func TestSQLiteStoreResultUpsert(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(openTestDB(t))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}

	first := &api.Result{FrameID: "f1", State: api.StateCancelled, Reason: "draft"}
	if err := s.SaveResult(ctx, first); err != nil {
		t.Fatalf("SaveResult failed: %v", err)
	}
	second := &api.Result{FrameID: "f1", State: api.StateCompleted}
	if err := s.SaveResult(ctx, second); err != nil {
		t.Fatalf("SaveResult overwrite failed: %v", err)
	}

	back, err := s.GetResult(ctx, "f1")
	if err != nil {
		t.Fatalf("GetResult failed: %v", err)
	}
	if back.State != api.StateCompleted || back.Reason != "" {
		t.Fatalf("expected latest checkpoint to win, got %+v", back)
	}
}
