// Package archive keeps a local, best-effort backup of completed reports so
// a transcript survives on the host even when the primary store write fails.
// It is keyed by session identifier and overwritten on re-submission, the
// same last-write-wins shape as the primary store.
package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var reportsBucket = []byte("reports")

type Report struct {
	SessionID  string          `json:"session_id"`
	Transcript string          `json:"transcript"`
	Analysis   json.RawMessage `json:"analysis"`
	SavedAt    time.Time       `json:"saved_at"`
}

type BoltArchive struct {
	db *bolt.DB
}

func Open(path string) (*BoltArchive, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	return &BoltArchive{db: db}, nil
}

func (a *BoltArchive) Close() error {
	return a.db.Close()
}

func (a *BoltArchive) SaveReport(sessionID, transcript string, analysis json.RawMessage) error {
	report := Report{
		SessionID:  sessionID,
		Transcript: transcript,
		Analysis:   analysis,
		SavedAt:    time.Now().UTC(),
	}
	value, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	return a.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(reportsBucket)
		if err != nil {
			return err
		}
		return b.Put([]byte(sessionID), value)
	})
}

// LoadReport returns the archived report for a session, or nil when none was
// archived.
func (a *BoltArchive) LoadReport(sessionID string) (*Report, error) {
	var report *Report
	err := a.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(reportsBucket)
		if b == nil {
			return nil
		}
		value := b.Get([]byte(sessionID))
		if value == nil {
			return nil
		}
		var r Report
		if err := json.Unmarshal(value, &r); err != nil {
			return fmt.Errorf("failed to unmarshal report: %w", err)
		}
		report = &r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}
