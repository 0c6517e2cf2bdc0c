package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/fieldmedic/paramedic-assistant/internal/store"
)

// Transcriber converts raw audio bytes to transcript text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// Analyzer converts transcript text to a structured analysis document.
type Analyzer interface {
	Analyze(ctx context.Context, transcript string) (json.RawMessage, error)
}

// ConversationStore is the idempotent persistence boundary the pipeline
// writes through.
type ConversationStore interface {
	UpsertConversation(ctx context.Context, sessionID string, paramedicID *int64, transcript string, analysis json.RawMessage) (*store.Conversation, error)
}

// Archiver keeps a local best-effort backup of completed reports.
type Archiver interface {
	SaveReport(sessionID, transcript string, analysis json.RawMessage) error
}

// Result is what one pipeline invocation hands back to the caller. Saved is
// false when persistence was skipped (anonymous caller) or failed; in the
// failure case the caller still holds everything needed to re-save through
// the direct-save path under the same session identifier.
type Result struct {
	SessionID    string              `json:"session_id"`
	Transcript   string              `json:"transcript"`
	Analysis     json.RawMessage     `json:"analysis"`
	Saved        bool                `json:"saved"`
	Conversation *store.Conversation `json:"conversation,omitempty"`
}

// Pipeline orchestrates one recording submission: audio -> transcript ->
// analysis -> durable record. Strictly sequential, exactly one call per
// collaborator, no compensation logic; idempotent forward progress only.
type Pipeline struct {
	transcriber Transcriber
	analyzer    Analyzer
	convStore   ConversationStore
	archive     Archiver // optional
}

func NewPipeline(t Transcriber, a Analyzer, cs ConversationStore, archive Archiver) *Pipeline {
	return &Pipeline{
		transcriber: t,
		analyzer:    a,
		convStore:   cs,
		archive:     archive,
	}
}

// Process runs the full pipeline for one audio submission. A storage failure
// after successful transcription and extraction is reported through
// Result.Saved, never as an error: the computed report must reach the caller
// so it can be re-saved later.
func (p *Pipeline) Process(ctx context.Context, sessionID string, audio []byte, mimeType string, identity Identity) (*Result, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required: %w", ErrInvalidInput)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("audio payload is empty: %w", ErrInvalidInput)
	}

	// Once an upstream call is issued it is allowed to complete even if the
	// client abandons the request; cancellation is checked again before the
	// store write instead.
	aiCtx := context.WithoutCancel(ctx)

	transcript, err := p.transcriber.Transcribe(aiCtx, audio, mimeType)
	if err != nil {
		return nil, &UpstreamError{Stage: StageTranscription, Err: err}
	}

	analysis, err := p.analyzer.Analyze(aiCtx, transcript)
	if err != nil {
		return nil, &UpstreamError{Stage: StageExtraction, Err: err}
	}

	if p.archive != nil {
		if err := p.archive.SaveReport(sessionID, transcript, analysis); err != nil {
			log.Printf("Failed to archive report for session %s: %v", sessionID, err)
		}
	}

	result := &Result{
		SessionID:  sessionID,
		Transcript: transcript,
		Analysis:   analysis,
	}

	switch id := identity.(type) {
	case Resolved:
		if ctx.Err() != nil {
			// The invocation was abandoned mid-flight; never persist on
			// behalf of a caller that is gone.
			log.Printf("Request for session %s abandoned before store write, skipping persistence", sessionID)
			return result, nil
		}
		conv, err := p.convStore.UpsertConversation(ctx, sessionID, &id.OwnerID, transcript, analysis)
		if err != nil {
			log.Printf("Failed to persist conversation for session %s: %v", sessionID, err)
			return result, nil
		}
		result.Saved = true
		result.Conversation = conv
	case Anonymous:
		// Pass-through: the report is returned but nothing is stored.
	}

	return result, nil
}

// DirectSave is the secondary entry point: the caller already holds a
// transcript and analysis (typically from a Process call whose store step
// failed) and submits them for storage. It shares Process's upsert contract,
// so resubmitting the same session identifier is always safe.
func (p *Pipeline) DirectSave(ctx context.Context, sessionID string, identity Identity, transcript string, analysis json.RawMessage) (*store.Conversation, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required: %w", ErrInvalidInput)
	}
	if transcript == "" {
		return nil, fmt.Errorf("transcript is required: %w", ErrInvalidInput)
	}

	return p.convStore.UpsertConversation(ctx, sessionID, ownerID(identity), transcript, analysis)
}
