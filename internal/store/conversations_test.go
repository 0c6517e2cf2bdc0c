package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestParamedic(t *testing.T, s *SQLiteStore, email string) *Paramedic {
	t.Helper()
	p, err := s.CreateParamedic(context.Background(), &Paramedic{
		Name:         "Test Medic",
		Email:        email,
		PasswordHash: "irrelevant",
	})
	if err != nil {
		t.Fatalf("failed to create paramedic: %v", err)
	}
	return p
}

func (s *SQLiteStore) countConversations(t *testing.T, sessionID string) int {
	t.Helper()
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM conversations WHERE session_id = ?", sessionID).Scan(&n); err != nil {
		t.Fatalf("failed to count conversations: %v", err)
	}
	return n
}

func TestUpsertConversationSequentialIdempotence(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	medic := newTestParamedic(t, s, "seq@example.com")
	ctx := context.Background()
	const sessionID = "5f9a1c2e-0000-4000-8000-000000000001"

	first, err := s.UpsertConversation(ctx, sessionID, &medic.ID, "first transcript", json.RawMessage(`{"v":1}`))
	if err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}

	time.Sleep(10 * time.Millisecond)

	var last *Conversation
	for i := 2; i <= 4; i++ {
		last, err = s.UpsertConversation(ctx, sessionID, &medic.ID, "latest transcript", json.RawMessage(`{"v":4}`))
		if err != nil {
			t.Fatalf("upsert %d failed: %v", i, err)
		}
	}

	if n := s.countConversations(t, sessionID); n != 1 {
		t.Fatalf("expected exactly one record, got %d", n)
	}
	if last.ID != first.ID {
		t.Fatalf("surrogate id changed across upserts: %d -> %d", first.ID, last.ID)
	}
	if last.Transcript != "latest transcript" {
		t.Fatalf("expected last write to win, got transcript %q", last.Transcript)
	}
	if string(last.Analysis) != `{"v":4}` {
		t.Fatalf("expected last analysis to win, got %s", last.Analysis)
	}
	if !last.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("created_at mutated: %v -> %v", first.CreatedAt, last.CreatedAt)
	}
	if !last.UpdatedAt.After(first.UpdatedAt) {
		t.Fatalf("updated_at did not advance: %v -> %v", first.UpdatedAt, last.UpdatedAt)
	}
}

func TestUpsertConversationConcurrentConvergence(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	medic := newTestParamedic(t, s, "race@example.com")
	ctx := context.Background()
	const sessionID = "5f9a1c2e-0000-4000-8000-000000000002"

	const writers = 4
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	start := make(chan struct{})

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := s.UpsertConversation(ctx, sessionID, &medic.ID, "concurrent transcript", json.RawMessage(`{}`))
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent upsert surfaced an error: %v", err)
		}
	}

	if n := s.countConversations(t, sessionID); n != 1 {
		t.Fatalf("expected the race to converge on one record, got %d", n)
	}
}

func TestUpsertConversationOwnerFirstWriterWins(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	first := newTestParamedic(t, s, "owner1@example.com")
	second := newTestParamedic(t, s, "owner2@example.com")
	ctx := context.Background()

	// An anonymous write leaves the owner unset; a later resolved write
	// claims the record.
	claimed, err := s.UpsertConversation(ctx, "session-claim", nil, "t", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("anonymous upsert failed: %v", err)
	}
	if claimed.ParamedicID != nil {
		t.Fatalf("expected unowned record, got owner %d", *claimed.ParamedicID)
	}
	claimed, err = s.UpsertConversation(ctx, "session-claim", &first.ID, "t", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("claiming upsert failed: %v", err)
	}
	if claimed.ParamedicID == nil || *claimed.ParamedicID != first.ID {
		t.Fatalf("expected record claimed by %d, got %v", first.ID, claimed.ParamedicID)
	}

	// Once owned, a different writer does not reassign it.
	kept, err := s.UpsertConversation(ctx, "session-claim", &second.ID, "t2", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("second-owner upsert failed: %v", err)
	}
	if kept.ParamedicID == nil || *kept.ParamedicID != first.ID {
		t.Fatalf("owner reassigned: want %d, got %v", first.ID, kept.ParamedicID)
	}
	if kept.Transcript != "t2" {
		t.Fatalf("transcript should still reflect the last write, got %q", kept.Transcript)
	}
}

func TestListConversationsByParamedic(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	medic := newTestParamedic(t, s, "list@example.com")
	other := newTestParamedic(t, s, "other@example.com")
	ctx := context.Background()

	analysis := json.RawMessage(`{"patient":{"name":"Ali"},"chief_complaint":"chest pain"}`)
	sessions := []string{"list-a", "list-b", "list-c"}
	for _, sid := range sessions {
		if _, err := s.UpsertConversation(ctx, sid, &medic.ID, "transcript "+sid, analysis); err != nil {
			t.Fatalf("seed upsert %s failed: %v", sid, err)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, err := s.UpsertConversation(ctx, "foreign", &other.ID, "not mine", analysis); err != nil {
		t.Fatalf("foreign upsert failed: %v", err)
	}

	summaries, err := s.ListConversationsByParamedic(ctx, medic.ID, 0, 0)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(summaries) != 3 {
		t.Fatalf("expected 3 conversations, got %d", len(summaries))
	}
	if summaries[0].SessionID != "list-c" || summaries[2].SessionID != "list-a" {
		t.Fatalf("expected most recently updated first, got %s..%s", summaries[0].SessionID, summaries[2].SessionID)
	}
	if summaries[0].PatientName == nil || *summaries[0].PatientName != "Ali" {
		t.Fatalf("expected patient name lifted from analysis, got %v", summaries[0].PatientName)
	}
	if summaries[0].ChiefComplaint == nil || *summaries[0].ChiefComplaint != "chest pain" {
		t.Fatalf("expected chief complaint lifted from analysis, got %v", summaries[0].ChiefComplaint)
	}

	page, err := s.ListConversationsByParamedic(ctx, medic.ID, 2, 1)
	if err != nil {
		t.Fatalf("paged list failed: %v", err)
	}
	if len(page) != 2 || page[0].SessionID != "list-b" {
		t.Fatalf("unexpected page contents: %+v", page)
	}
}

func TestConversationOwnerScoping(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	owner := newTestParamedic(t, s, "scope-owner@example.com")
	intruder := newTestParamedic(t, s, "scope-intruder@example.com")
	ctx := context.Background()

	conv, err := s.UpsertConversation(ctx, "scoped-session", &owner.ID, "t", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("seed upsert failed: %v", err)
	}

	got, err := s.GetConversationByID(ctx, conv.ID, intruder.ID)
	if err != nil {
		t.Fatalf("foreign get errored: %v", err)
	}
	if got != nil {
		t.Fatal("foreign paramedic could read the conversation")
	}

	deleted, err := s.DeleteConversation(ctx, conv.ID, intruder.ID)
	if err != nil {
		t.Fatalf("foreign delete errored: %v", err)
	}
	if deleted {
		t.Fatal("foreign paramedic could delete the conversation")
	}

	deleted, err = s.DeleteConversation(ctx, conv.ID, owner.ID)
	if err != nil {
		t.Fatalf("owner delete errored: %v", err)
	}
	if !deleted {
		t.Fatal("owner delete reported not found")
	}
}
