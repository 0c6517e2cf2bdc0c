// Command recorder submits a completed field recording to the assistant
// server. Audio capture happens on the device; this tool only ships finished
// WAV files, tagged with the device's stable session identity so retries and
// re-submissions converge on one stored conversation.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/fieldmedic/paramedic-assistant/internal/session"
)

type submitResponse struct {
	SessionID  string          `json:"session_id"`
	Transcript string          `json:"transcript"`
	Analysis   json.RawMessage `json:"analysis"`
	Saved      bool            `json:"saved"`
}

func main() {
	log.SetFlags(0)

	serverURL := flag.String("server", "http://localhost:8080", "Assistant server base URL")
	audioPath := flag.String("audio", "", "Path to the recorded WAV file")
	token := flag.String("token", os.Getenv("ASSISTANT_TOKEN"), "Bearer token; empty submits anonymously")
	sessionFile := flag.String("session-file", defaultSessionFile(), "Path of the persisted device session identity")
	flag.Parse()

	if *audioPath == "" {
		log.Fatal("-audio is required")
	}

	audio, err := os.ReadFile(*audioPath)
	if err != nil {
		log.Fatalf("Failed to read audio file: %v", err)
	}

	sessionID := session.GetOrCreate(*sessionFile)
	log.Printf("Submitting %s under session %s...", filepath.Base(*audioPath), sessionID[:8])

	client := &http.Client{Timeout: 5 * time.Minute}

	result, err := submitRecording(client, *serverURL, *token, sessionID, audio)
	if err != nil {
		log.Fatalf("Submission failed: %v", err)
	}

	fmt.Println("\nTranscript:")
	fmt.Println(result.Transcript)

	if result.Saved {
		log.Println("Report saved.")
		return
	}
	if *token == "" {
		log.Println("Report not saved (anonymous submission).")
		return
	}

	// The report came back unsaved; retry persistence through the
	// direct-save path with the same session identifier.
	log.Println("Report not yet saved, retrying via direct save...")
	if err := directSave(client, *serverURL, *token, sessionID, result); err != nil {
		log.Fatalf("Direct save failed, resubmit later with the same session: %v", err)
	}
	log.Println("Report saved.")
}

func submitRecording(client *http.Client, serverURL, token, sessionID string, audio []byte) (*submitResponse, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	if err := form.WriteField("session_id", sessionID); err != nil {
		return nil, err
	}
	part, err := form.CreateFormFile("audio_file", "recording.wav")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(audio); err != nil {
		return nil, err
	}
	if err := form.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, serverURL+"/api/recordings", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("server returned %s: %s", resp.Status, bytes.TrimSpace(msg))
	}

	var result submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}

func directSave(client *http.Client, serverURL, token, sessionID string, result *submitResponse) error {
	payload, err := json.Marshal(map[string]any{
		"session_id": sessionID,
		"transcript": result.Transcript,
		"analysis":   result.Analysis,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, serverURL+"/api/conversations", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("server returned %s: %s", resp.Status, bytes.TrimSpace(msg))
	}
	return nil
}

func defaultSessionFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".paramedic-session"
	}
	return filepath.Join(home, ".paramedic-assistant", "session")
}
