package store

import (
	"encoding/json"
	"time"
)

type Paramedic struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	MedicalID    *string   `json:"medical_id"`
	NationalID   *string   `json:"national_id"`
	Age          *int      `json:"age"`
	PasswordHash string    `json:"-"` // Do not expose this in JSON responses
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Conversation is the durable record of one recording session. SessionID is
// the client-generated idempotency key: at most one row per session ever
// exists, and repeated writes converge on it.
type Conversation struct {
	ID          int64           `json:"id"`
	SessionID   string          `json:"session_id"`
	ParamedicID *int64          `json:"paramedic_id"`
	Transcript  string          `json:"transcript"`
	Analysis    json.RawMessage `json:"analysis"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ConversationSummary is the listing projection: enough to render a history
// entry without shipping the full transcript and analysis.
type ConversationSummary struct {
	ID             int64     `json:"id"`
	SessionID      string    `json:"session_id"`
	PatientName    *string   `json:"patient_name,omitempty"`
	ChiefComplaint *string   `json:"chief_complaint,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
