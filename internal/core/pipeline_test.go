package core

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/fieldmedic/paramedic-assistant/internal/store"
)

type fakeTranscriber struct {
	text  string
	err   error
	calls int
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	f.calls++
	return f.text, f.err
}

type fakeAnalyzer struct {
	doc   json.RawMessage
	err   error
	calls int
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, transcript string) (json.RawMessage, error) {
	f.calls++
	return f.doc, f.err
}

type fakeConvStore struct {
	err     error
	calls   int
	records map[string]*store.Conversation
}

func (f *fakeConvStore) UpsertConversation(ctx context.Context, sessionID string, paramedicID *int64, transcript string, analysis json.RawMessage) (*store.Conversation, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.records == nil {
		f.records = make(map[string]*store.Conversation)
	}
	now := time.Now().UTC()
	conv, ok := f.records[sessionID]
	if !ok {
		conv = &store.Conversation{
			ID:        int64(len(f.records) + 1),
			SessionID: sessionID,
			CreatedAt: now,
		}
		f.records[sessionID] = conv
	}
	if conv.ParamedicID == nil {
		conv.ParamedicID = paramedicID
	}
	conv.Transcript = transcript
	conv.Analysis = analysis
	conv.UpdatedAt = now
	return conv, nil
}

func TestProcessRejectsEmptyAudio(t *testing.T) {
	t.Parallel()

	convStore := &fakeConvStore{}
	p := NewPipeline(&fakeTranscriber{}, &fakeAnalyzer{}, convStore, nil)

	_, err := p.Process(context.Background(), "session-1", nil, "audio/wav", Anonymous{})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if convStore.calls != 0 {
		t.Fatalf("store touched on invalid input: %d calls", convStore.calls)
	}
}

func TestProcessTranscriptionFailureIsStageTagged(t *testing.T) {
	t.Parallel()

	analyzer := &fakeAnalyzer{}
	convStore := &fakeConvStore{}
	p := NewPipeline(&fakeTranscriber{err: errors.New("boom")}, analyzer, convStore, nil)

	_, err := p.Process(context.Background(), "session-1", []byte("audio"), "audio/wav", Anonymous{})
	var upstream *UpstreamError
	if !errors.As(err, &upstream) || upstream.Stage != StageTranscription {
		t.Fatalf("expected transcription UpstreamError, got %v", err)
	}
	if analyzer.calls != 0 {
		t.Fatalf("analyzer called after transcription failure: %d calls", analyzer.calls)
	}
	if convStore.calls != 0 {
		t.Fatalf("store called after transcription failure: %d calls", convStore.calls)
	}
}

func TestProcessExtractionFailureIsStageTaggedAndUnpersisted(t *testing.T) {
	t.Parallel()

	convStore := &fakeConvStore{}
	p := NewPipeline(&fakeTranscriber{text: "the transcript"}, &fakeAnalyzer{err: errors.New("boom")}, convStore, nil)

	_, err := p.Process(context.Background(), "session-1", []byte("audio"), "audio/wav", Resolved{OwnerID: 7})
	var upstream *UpstreamError
	if !errors.As(err, &upstream) || upstream.Stage != StageExtraction {
		t.Fatalf("expected extraction UpstreamError, got %v", err)
	}
	if convStore.calls != 0 {
		t.Fatalf("store called after extraction failure: %d calls", convStore.calls)
	}
}

func TestProcessAnonymousPassThrough(t *testing.T) {
	t.Parallel()

	convStore := &fakeConvStore{}
	p := NewPipeline(
		&fakeTranscriber{text: "the transcript"},
		&fakeAnalyzer{doc: json.RawMessage(`{"severity":"Low"}`)},
		convStore, nil,
	)

	result, err := p.Process(context.Background(), "session-1", []byte("audio"), "audio/wav", Anonymous{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Transcript != "the transcript" {
		t.Fatalf("unexpected transcript: %q", result.Transcript)
	}
	if result.Saved {
		t.Fatal("anonymous result reported saved")
	}
	if convStore.calls != 0 {
		t.Fatalf("store called for anonymous submission: %d calls", convStore.calls)
	}
}

func TestProcessResolvedPersists(t *testing.T) {
	t.Parallel()

	convStore := &fakeConvStore{}
	p := NewPipeline(
		&fakeTranscriber{text: "the transcript"},
		&fakeAnalyzer{doc: json.RawMessage(`{"severity":"High"}`)},
		convStore, nil,
	)

	result, err := p.Process(context.Background(), "session-1", []byte("audio"), "audio/wav", Resolved{OwnerID: 7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Saved || result.Conversation == nil {
		t.Fatalf("expected saved result, got %+v", result)
	}
	if result.Conversation.ParamedicID == nil || *result.Conversation.ParamedicID != 7 {
		t.Fatalf("owner not attached: %v", result.Conversation.ParamedicID)
	}
	if convStore.calls != 1 {
		t.Fatalf("expected exactly one store call, got %d", convStore.calls)
	}
}

func TestProcessStoreFailureStillReturnsReportAndDirectSaveRecovers(t *testing.T) {
	t.Parallel()

	convStore := &fakeConvStore{err: store.ErrUnavailable}
	p := NewPipeline(
		&fakeTranscriber{text: "the transcript"},
		&fakeAnalyzer{doc: json.RawMessage(`{"severity":"High"}`)},
		convStore, nil,
	)

	result, err := p.Process(context.Background(), "session-1", []byte("audio"), "audio/wav", Resolved{OwnerID: 7})
	if err != nil {
		t.Fatalf("storage failure must not fail the pipeline: %v", err)
	}
	if result.Saved {
		t.Fatal("result reported saved despite store failure")
	}
	if result.Transcript != "the transcript" || string(result.Analysis) != `{"severity":"High"}` {
		t.Fatalf("computed report lost: %+v", result)
	}

	// The caller retries persistence via the direct-save path with the same
	// session identifier and the already-computed report.
	convStore.err = nil
	conv, err := p.DirectSave(context.Background(), "session-1", Resolved{OwnerID: 7}, result.Transcript, result.Analysis)
	if err != nil {
		t.Fatalf("direct save failed: %v", err)
	}
	if conv.Transcript != result.Transcript || string(conv.Analysis) != string(result.Analysis) {
		t.Fatalf("recovered record does not match the report: %+v", conv)
	}
	if len(convStore.records) != 1 {
		t.Fatalf("expected exactly one stored record, got %d", len(convStore.records))
	}
}

func TestProcessAbandonedRequestSkipsPersistence(t *testing.T) {
	t.Parallel()

	convStore := &fakeConvStore{}
	p := NewPipeline(
		&fakeTranscriber{text: "the transcript"},
		&fakeAnalyzer{doc: json.RawMessage(`{}`)},
		convStore, nil,
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := p.Process(ctx, "session-1", []byte("audio"), "audio/wav", Resolved{OwnerID: 7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Saved {
		t.Fatal("abandoned invocation persisted a record")
	}
	if convStore.calls != 0 {
		t.Fatalf("store called for abandoned invocation: %d calls", convStore.calls)
	}
	// Upstream calls already issued were allowed to complete.
	if result.Transcript != "the transcript" {
		t.Fatalf("upstream results dropped: %q", result.Transcript)
	}
}

func TestDirectSaveValidation(t *testing.T) {
	t.Parallel()

	p := NewPipeline(&fakeTranscriber{}, &fakeAnalyzer{}, &fakeConvStore{}, nil)

	if _, err := p.DirectSave(context.Background(), "", Anonymous{}, "t", nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for missing session, got %v", err)
	}
	if _, err := p.DirectSave(context.Background(), "session-1", Anonymous{}, "", nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for missing transcript, got %v", err)
	}
}
