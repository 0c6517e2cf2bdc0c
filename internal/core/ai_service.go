package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/fieldmedic/paramedic-assistant/internal/config"
)

const (
	defaultTranscribeModelName = "gemini-1.5-flash-latest"
	defaultExtractModelName    = "gemini-1.5-flash-latest"

	transcribeInstruction = "Transcribe the following field incident recording into plain English text. " +
		"Translate into English if the speech is in another language. " +
		"Return only the transcript, no commentary."
)

// AIService is the single client behind both external AI collaborators:
// speech-to-text and structured extraction. Each call is one request/response
// exchange; retries belong to the caller, who can resubmit idempotently under
// the same session identifier.
type AIService struct {
	client *genai.Client
}

func NewAIService() *AIService {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(config.AppConfig.GeminiAPIKey))
	if err != nil {
		log.Fatalf("Failed to create GenAI client: %v", err)
	}

	return &AIService{
		client: client,
	}
}

func (s *AIService) Close() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			log.Printf("Error closing GenAI client: %v", err)
		}
	}
}

// Transcribe converts raw audio bytes into English transcript text.
func (s *AIService) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if mimeType == "" {
		mimeType = "audio/wav"
	}
	model := s.client.GenerativeModel(defaultTranscribeModelName)

	resp, err := model.GenerateContent(ctx,
		genai.Text(transcribeInstruction),
		genai.Blob{MIMEType: mimeType, Data: audio},
	)
	if err != nil {
		return "", fmt.Errorf("gemini transcription request failed: %w", err)
	}

	text := collectText(resp)
	if text == "" {
		return "", fmt.Errorf("no transcript text received from gemini")
	}
	return strings.TrimSpace(text), nil
}

// Analyze extracts the structured EMS report document from a transcript. The
// document is returned whole; its schema is not interpreted here. When the
// model output cannot be parsed as JSON even after cleanup, the raw output is
// preserved inside an error-marker document instead of failing the pipeline,
// so a completed transcription is never thrown away over formatting.
func (s *AIService) Analyze(ctx context.Context, transcript string) (json.RawMessage, error) {
	model := s.client.GenerativeModel(defaultExtractModelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(extractionSystemInstruction)},
	}
	temp := float32(0)
	model.GenerationConfig = genai.GenerationConfig{
		Temperature: &temp,
	}

	resp, err := model.GenerateContent(ctx, genai.Text(buildExtractionPrompt(transcript)))
	if err != nil {
		return nil, fmt.Errorf("gemini extraction request failed: %w", err)
	}

	raw := collectText(resp)
	if raw == "" {
		return nil, fmt.Errorf("no analysis received from gemini")
	}

	text := stripJSONFences(raw)
	if json.Valid([]byte(text)) {
		return json.RawMessage(text), nil
	}

	loose := extractJSONLoose(text)
	if json.Valid([]byte(loose)) {
		return json.RawMessage(loose), nil
	}

	log.Printf("Analysis output was not valid JSON, keeping raw text (%.50s...)", raw)
	fallback, err := json.Marshal(map[string]string{
		"error": "Could not parse JSON",
		"raw":   raw,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to wrap unparseable analysis: %w", err)
	}
	return fallback, nil
}

func collectText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		} else {
			log.Printf("Gemini response part was not text: %T", part)
		}
	}
	return b.String()
}

// stripJSONFences removes a surrounding markdown code fence, with or without
// a "json" language tag.
func stripJSONFences(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimLeft(t, "`")
	if strings.HasPrefix(strings.ToLower(t), "json") {
		t = t[4:]
	}
	t = strings.TrimRight(t, "`")
	return strings.TrimSpace(t)
}

// extractJSONLoose cuts the text down to the first '{' through the last '}',
// salvaging a JSON object wrapped in prose.
func extractJSONLoose(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start != -1 && end != -1 && end > start {
		return text[start : end+1]
	}
	return text
}
