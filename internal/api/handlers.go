package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fieldmedic/paramedic-assistant/internal/auth"
	"github.com/fieldmedic/paramedic-assistant/internal/config"
	"github.com/fieldmedic/paramedic-assistant/internal/core"
	"github.com/fieldmedic/paramedic-assistant/internal/store"
)

type APIHandler struct {
	pipeline *core.Pipeline
	dbStore  *store.SQLiteStore
}

func NewAPIHandler(pipeline *core.Pipeline, dbStore *store.SQLiteStore) *APIHandler {
	return &APIHandler{pipeline: pipeline, dbStore: dbStore}
}

// JWTAuthMiddleware protects routes that require a signed-in paramedic.
func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		email, err := auth.ValidateJWT(tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		paramedic, err := h.dbStore.GetParamedicByEmail(r.Context(), email)
		if err != nil {
			log.Printf("Error resolving identity for %s: %v", email, err)
			if errors.Is(err, store.ErrUnavailable) {
				http.Error(w, "Identity store unavailable", http.StatusServiceUnavailable)
			} else {
				http.Error(w, "Failed to process identity", http.StatusInternalServerError)
			}
			return
		}
		if paramedic == nil {
			http.Error(w, "Account not found", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), "paramedic", paramedic)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OptionalIdentityMiddleware resolves the caller identity for routes that
// work with or without a credential. A missing or invalid token resolves to
// Anonymous rather than an auth error; only an unreachable identity store is
// surfaced, and as unavailability, never as a credential failure.
func (h *APIHandler) OptionalIdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var identity core.Identity = core.Anonymous{}

		if authHeader := r.Header.Get("Authorization"); authHeader != "" {
			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if email, err := auth.ValidateJWT(tokenString); err == nil {
				paramedic, err := h.dbStore.GetParamedicByEmail(r.Context(), email)
				if err != nil {
					log.Printf("Error resolving optional identity for %s: %v", email, err)
					if errors.Is(err, store.ErrUnavailable) {
						http.Error(w, "Identity store unavailable", http.StatusServiceUnavailable)
						return
					}
					http.Error(w, "Failed to process identity", http.StatusInternalServerError)
					return
				}
				if paramedic != nil {
					identity = core.Resolved{OwnerID: paramedic.ID}
				}
			}
		}

		ctx := context.WithValue(r.Context(), "identity", identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func callerIdentity(r *http.Request) core.Identity {
	if id, ok := r.Context().Value("identity").(core.Identity); ok {
		return id
	}
	return core.Anonymous{}
}

func currentParamedic(r *http.Request) *store.Paramedic {
	p, _ := r.Context().Value("paramedic").(*store.Paramedic)
	return p
}

// SubmitRecordingHandler is the primary pipeline entry point: one completed
// audio payload in, transcript + analysis out, persisted when the caller is
// signed in. A storage failure still returns the report, flagged unsaved.
func (h *APIHandler) SubmitRecordingHandler(w http.ResponseWriter, r *http.Request) {
	maxBytes := int64(config.AppConfig.MaxAudioSizeMB) << 20
	if maxBytes <= 0 {
		maxBytes = 25 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		http.Error(w, "Invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}

	sessionID := r.FormValue("session_id")
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("audio_file")
	if err != nil {
		http.Error(w, "audio_file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Failed to read audio payload", http.StatusBadRequest)
		return
	}

	mimeType := ""
	if header != nil {
		mimeType = header.Header.Get("Content-Type")
	}

	result, err := h.pipeline.Process(r.Context(), sessionID, audio, mimeType, callerIdentity(r))
	if err != nil {
		writePipelineError(w, sessionID, err)
		return
	}

	json.NewEncoder(w).Encode(result)
}

type DirectSaveRequest struct {
	SessionID  string          `json:"session_id"`
	Transcript string          `json:"transcript"`
	Analysis   json.RawMessage `json:"analysis"`
}

// DirectSaveHandler is the secondary entry point: a caller that already holds
// a computed transcript and analysis submits them for storage. It accepts the
// same session_id as a prior recording submission without error.
func (h *APIHandler) DirectSaveHandler(w http.ResponseWriter, r *http.Request) {
	var req DirectSaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	conv, err := h.pipeline.DirectSave(r.Context(), req.SessionID, callerIdentity(r), req.Transcript, req.Analysis)
	if err != nil {
		writePipelineError(w, req.SessionID, err)
		return
	}

	json.NewEncoder(w).Encode(conv)
}

func writePipelineError(w http.ResponseWriter, sessionID string, err error) {
	var upstream *core.UpstreamError
	switch {
	case errors.Is(err, core.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &upstream):
		log.Printf("Upstream %s failure for session %s: %v", upstream.Stage, sessionID, err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "Processing failed",
			"stage": upstream.Stage,
		})
	case errors.Is(err, store.ErrUnavailable):
		log.Printf("Storage unavailable for session %s: %v", sessionID, err)
		http.Error(w, "Storage unavailable, retry the save with the same session_id", http.StatusServiceUnavailable)
	default:
		log.Printf("Error processing session %s: %v", sessionID, err)
		http.Error(w, "Processing failed", http.StatusInternalServerError)
	}
}

func (h *APIHandler) ListConversationsHandler(w http.ResponseWriter, r *http.Request) {
	paramedic := currentParamedic(r)

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	summaries, err := h.dbStore.ListConversationsByParamedic(r.Context(), paramedic.ID, limit, offset)
	if err != nil {
		log.Printf("Error listing conversations for paramedic %d: %v", paramedic.ID, err)
		http.Error(w, "Failed to list conversations", http.StatusInternalServerError)
		return
	}
	if summaries == nil {
		summaries = []store.ConversationSummary{}
	}
	json.NewEncoder(w).Encode(summaries)
}

func (h *APIHandler) GetConversationHandler(w http.ResponseWriter, r *http.Request) {
	paramedic := currentParamedic(r)

	id, err := strconv.ParseInt(chi.URLParam(r, "conversationID"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid conversation id", http.StatusBadRequest)
		return
	}

	conv, err := h.dbStore.GetConversationByID(r.Context(), id, paramedic.ID)
	if err != nil {
		log.Printf("Error getting conversation %d for paramedic %d: %v", id, paramedic.ID, err)
		http.Error(w, "Failed to get conversation", http.StatusInternalServerError)
		return
	}
	if conv == nil {
		http.Error(w, "Conversation not found", http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(conv)
}

func (h *APIHandler) DeleteConversationHandler(w http.ResponseWriter, r *http.Request) {
	paramedic := currentParamedic(r)

	id, err := strconv.ParseInt(chi.URLParam(r, "conversationID"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid conversation id", http.StatusBadRequest)
		return
	}

	deleted, err := h.dbStore.DeleteConversation(r.Context(), id, paramedic.ID)
	if err != nil {
		log.Printf("Error deleting conversation %d for paramedic %d: %v", id, paramedic.ID, err)
		http.Error(w, "Failed to delete conversation", http.StatusInternalServerError)
		return
	}
	if !deleted {
		http.Error(w, "Conversation not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
