// Package session manages the device-side session identity: one stable
// UUID per device that scopes its logical conversation thread across
// submissions and retries.
package session

import (
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// GetOrCreate returns the session identifier stored at path, creating and
// persisting a new one on first use. If the file cannot be read or written,
// it falls back to a fresh identifier per call: the device still works, but
// every submission becomes a new conversation. That degradation is accepted,
// not an error.
func GetOrCreate(path string) string {
	if data, err := os.ReadFile(path); err == nil {
		token := strings.TrimSpace(string(data))
		if _, err := uuid.Parse(token); err == nil {
			return token
		}
		log.Printf("Session file %s held an invalid token, generating a new one", path)
	}

	token := uuid.NewString()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Printf("Cannot create session directory for %s, running with a per-call identity: %v", path, err)
		return token
	}
	if err := os.WriteFile(path, []byte(token+"\n"), 0o600); err != nil {
		log.Printf("Cannot persist session identity to %s, running with a per-call identity: %v", path, err)
	}
	return token
}
