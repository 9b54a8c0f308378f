package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xiaot623/gogo/kernel/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func TestSQLiteStoreSessionsEpochsRuns(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	session := &domain.Session{
		SessionID:         "s1",
		TenantID:          "t1",
		DecisionContextID: "d1",
		Mode:              domain.SessionModeLive,
		Status:            domain.SessionStatusActive,
		CreatedAt:         time.Now(),
	}
	if err := store.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	for i, id := range []string{"e1", "e2"} {
		epoch := &domain.Epoch{EpochID: id, SessionID: "s1", Trigger: "manual", CreatedAt: time.Now()}
		if err := store.NextEpoch(ctx, epoch); err != nil {
			t.Fatalf("NextEpoch failed: %v", err)
		}
		if epoch.SequenceNo != i+1 {
			t.Fatalf("expected sequence %d, got %d", i+1, epoch.SequenceNo)
		}
	}
	epochs, err := store.ListEpochs(ctx, "s1")
	if err != nil {
		t.Fatalf("ListEpochs failed: %v", err)
	}
	if len(epochs) != 2 || epochs[1].EpochID != "e2" {
		t.Fatalf("unexpected epochs: %+v", epochs)
	}

	run := &domain.Run{
		RunID:         "r1",
		SessionID:     "s1",
		EpochID:       "e2",
		ZoneID:        "zone1",
		RunMode:       domain.RunModeAuto,
		CreatedAt:     time.Now(),
		KernelVersion: "0.1.0",
		TraceID:       "tr1",
	}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	gotRun, err := store.GetRun(ctx, "r1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if gotRun.ZoneID != "zone1" || gotRun.TraceID != "tr1" {
		t.Fatalf("unexpected run: %+v", gotRun)
	}

	if err := store.CloseSession(ctx, "s1"); err != nil {
		t.Fatalf("CloseSession failed: %v", err)
	}
	gotSession, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if gotSession.Status != domain.SessionStatusClosed {
		t.Fatalf("expected closed session, got %s", gotSession.Status)
	}
	if err := store.NextEpoch(ctx, &domain.Epoch{EpochID: "e3", SessionID: "s1", CreatedAt: time.Now()}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for closed session, got %v", err)
	}

	if _, err := store.GetSession(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := store.CloseSession(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSQLiteStoreAuditLog(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	ts := time.Now().UTC()
	types := []domain.EventType{domain.EventTypePolicyAllow, domain.EventTypeAgentStart, domain.EventTypeAgentEnd}
	for _, et := range types {
		ev := &domain.TrackEvent{
			SessionID: "s1",
			CreatedAt: ts,
			EventType: et,
			Actor:     domain.Actor{Type: domain.ActorTypeAgent, ID: "a1"},
			Refs:      map[string]any{"agent_type_id": "a1"},
		}
		if err := store.Append(ctx, ev); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		if ev.Seq == 0 {
			t.Fatalf("expected seq to be assigned")
		}
	}

	events, err := store.Query(ctx, "s1", 10, "")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for i, et := range []domain.EventType{domain.EventTypeAgentEnd, domain.EventTypeAgentStart, domain.EventTypePolicyAllow} {
		if events[i].EventType != et {
			t.Fatalf("event %d: expected %s, got %s", i, et, events[i].EventType)
		}
	}
	if events[0].Actor.ID != "a1" || events[0].Refs["agent_type_id"] != "a1" {
		t.Fatalf("unexpected decoded event: %+v", events[0])
	}

	filtered, err := store.Query(ctx, "s1", 0, domain.EventTypeAgentStart)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(filtered) != 1 {
		t.Fatalf("expected 1 filtered event, got %d", len(filtered))
	}

	if _, err := store.db.ExecContext(ctx, `UPDATE audit_events SET message = 'x'`); err == nil {
		t.Fatalf("expected audit update to be rejected")
	}
	if _, err := store.db.ExecContext(ctx, `DELETE FROM audit_events`); err == nil {
		t.Fatalf("expected audit delete to be rejected")
	}

	dup := events[0]
	if err := store.Append(ctx, &dup); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on duplicate event id, got %v", err)
	}
}

func TestSQLiteStorePointers(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	ref := func(id string) domain.ArtifactRef { return domain.ArtifactRef{Kind: domain.KindModelParams, ArtifactID: id} }
	if err := store.SetActive(ctx, "t1", "d1", "core/params", ref("a1"), time.Now()); err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}
	if err := store.SetActive(ctx, "t1", "d1", "core/params", ref("a2"), time.Now()); err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}
	if err := store.SetActive(ctx, "t1", "d1", "zone/z1/params", ref("a3"), time.Now()); err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}

	p, err := store.GetActive(ctx, "t1", "d1", "core/params")
	if err != nil {
		t.Fatalf("GetActive failed: %v", err)
	}
	if p.Ref.ArtifactID != "a2" {
		t.Fatalf("expected upserted pointer, got %+v", p)
	}
	if _, err := store.GetActive(ctx, "t1", "d2", "core/params"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	list, err := store.ListActive(ctx, "t1", "d1", "zone/")
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(list) != 1 || list[0].Key != "zone/z1/params" {
		t.Fatalf("unexpected pointers: %+v", list)
	}
	all, err := store.ListActive(ctx, "t1", "d1", "")
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 pointers, got %d", len(all))
	}
}

func TestSQLiteStoreMemory(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	if err := store.Write(ctx, "agent.a", "k", map[string]any{"n": 2}, time.Minute); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	v, err := store.Read(ctx, "agent.a", "k")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if v.(map[string]any)["n"] != 2.0 {
		t.Fatalf("unexpected value: %v", v)
	}

	now = now.Add(2 * time.Minute)
	if _, err := store.Read(ctx, "agent.a", "k"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected expired value, got %v", err)
	}

	for _, msg := range []string{"one", "two", "three"} {
		if err := store.AppendLog(ctx, "agent.a", map[string]any{"msg": msg}); err != nil {
			t.Fatalf("AppendLog failed: %v", err)
		}
	}
	logs, err := store.Logs(ctx, "agent.a", 2)
	if err != nil {
		t.Fatalf("Logs failed: %v", err)
	}
	if len(logs) != 2 || logs[0]["msg"] != "two" || logs[1]["msg"] != "three" {
		t.Fatalf("unexpected logs: %+v", logs)
	}
}

func TestSQLiteStoreMigrateIsRepeatable(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	if err := store.migrate(); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}

	session := &domain.Session{
		SessionID:         "s-whatif",
		TenantID:          "t1",
		DecisionContextID: "d1",
		Mode:              domain.SessionModeWhatIf,
		Status:            domain.SessionStatusActive,
		CreatedAt:         time.Now(),
	}
	if err := store.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	got, err := store.GetSession(ctx, "s-whatif")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.Mode != domain.SessionModeWhatIf {
		t.Fatalf("expected mode %q, got %q", domain.SessionModeWhatIf, got.Mode)
	}
}
