package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"
)

// upsertInsertAttempts bounds the insert -> conflict -> update loop. One lost
// race means the row now exists, so a second pass always lands on the update
// branch; the bound only guards against a broken unique-error classification.
const upsertInsertAttempts = 2

// UpsertConversation writes the latest transcript and analysis for a session,
// creating the row on first write and updating it in place afterwards. It is
// safe to call concurrently with the same sessionID: a lost insert race is
// retried as an update instead of surfacing a duplicate-key error. The
// paramedic owner is first-writer-wins; a NULL owner can be claimed later but
// never reassigned. Whichever call commits last determines the stored
// transcript and analysis.
func (s *SQLiteStore) UpsertConversation(ctx context.Context, sessionID string, paramedicID *int64, transcript string, analysis json.RawMessage) (*Conversation, error) {
	if len(analysis) == 0 {
		analysis = json.RawMessage("{}")
	}

	for attempt := 0; attempt < upsertInsertAttempts; attempt++ {
		existing, err := s.GetConversationBySessionID(ctx, sessionID)
		if err != nil {
			return nil, err
		}

		now := time.Now().UTC()

		if existing != nil {
			_, err = s.db.ExecContext(ctx, `
                UPDATE conversations
                SET transcript = ?, analysis = ?, updated_at = ?,
                    paramedic_id = COALESCE(paramedic_id, ?)
                WHERE session_id = ?`,
				transcript, string(analysis), now, paramedicID, sessionID)
			if err != nil {
				return nil, fmt.Errorf("failed to update conversation: %w", errors.Join(ErrUnavailable, err))
			}
			return s.GetConversationBySessionID(ctx, sessionID)
		}

		res, err := s.db.ExecContext(ctx, `
            INSERT INTO conversations (session_id, paramedic_id, transcript, analysis, created_at, updated_at)
            VALUES (?, ?, ?, ?, ?, ?)`,
			sessionID, paramedicID, transcript, string(analysis), now, now)
		if err != nil {
			if isUniqueViolation(err) {
				// A concurrent writer inserted this session first; replay
				// this write as an update.
				log.Printf("Lost insert race for session %s, retrying as update", sessionID)
				continue
			}
			return nil, fmt.Errorf("failed to insert conversation: %w", errors.Join(ErrUnavailable, err))
		}

		id, _ := res.LastInsertId()
		return &Conversation{
			ID:          id,
			SessionID:   sessionID,
			ParamedicID: paramedicID,
			Transcript:  transcript,
			Analysis:    analysis,
			CreatedAt:   now,
			UpdatedAt:   now,
		}, nil
	}

	return nil, fmt.Errorf("upsert for session %s did not converge: %w", sessionID, ErrUnavailable)
}

func (s *SQLiteStore) GetConversationBySessionID(ctx context.Context, sessionID string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, session_id, paramedic_id, transcript, analysis, created_at, updated_at
        FROM conversations WHERE session_id = ?`, sessionID)
	return scanConversation(row)
}

// GetConversationByID returns a conversation only if it belongs to the given
// paramedic. A missing or foreign row is (nil, nil).
func (s *SQLiteStore) GetConversationByID(ctx context.Context, id int64, paramedicID int64) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, session_id, paramedic_id, transcript, analysis, created_at, updated_at
        FROM conversations WHERE id = ? AND paramedic_id = ?`, id, paramedicID)
	return scanConversation(row)
}

func scanConversation(row *sql.Row) (*Conversation, error) {
	var conv Conversation
	var paramedicID sql.NullInt64
	var analysis string
	err := row.Scan(&conv.ID, &conv.SessionID, &paramedicID, &conv.Transcript, &analysis, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to query conversation: %w", errors.Join(ErrUnavailable, err))
	}
	if paramedicID.Valid {
		conv.ParamedicID = &paramedicID.Int64
	}
	conv.Analysis = json.RawMessage(analysis)
	return &conv, nil
}

// ListConversationsByParamedic returns the paramedic's conversations, most
// recently updated first. Patient name and chief complaint are lifted out of
// the analysis document for display; a malformed document just leaves them
// empty.
func (s *SQLiteStore) ListConversationsByParamedic(ctx context.Context, paramedicID int64, limit, offset int) ([]ConversationSummary, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx, `
        SELECT id, session_id, analysis, created_at, updated_at
        FROM conversations
        WHERE paramedic_id = ?
        ORDER BY updated_at DESC
        LIMIT ? OFFSET ?`, paramedicID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", errors.Join(ErrUnavailable, err))
	}
	defer rows.Close()

	var summaries []ConversationSummary
	for rows.Next() {
		var summary ConversationSummary
		var analysisJSON string
		if err := rows.Scan(&summary.ID, &summary.SessionID, &analysisJSON, &summary.CreatedAt, &summary.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}

		var analysis struct {
			Patient struct {
				Name *string `json:"name"`
			} `json:"patient"`
			ChiefComplaint *string `json:"chief_complaint"`
		}
		if err := json.Unmarshal([]byte(analysisJSON), &analysis); err == nil {
			summary.PatientName = analysis.Patient.Name
			summary.ChiefComplaint = analysis.ChiefComplaint
		}

		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

// DeleteConversation removes a conversation owned by the paramedic. This is
// an explicit administrative operation; the recording pipeline itself never
// deletes.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, id int64, paramedicID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM conversations WHERE id = ? AND paramedic_id = ?", id, paramedicID)
	if err != nil {
		return false, fmt.Errorf("failed to delete conversation: %w", errors.Join(ErrUnavailable, err))
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}
