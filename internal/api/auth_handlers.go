package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/fieldmedic/paramedic-assistant/internal/auth"
	"github.com/fieldmedic/paramedic-assistant/internal/store"
)

type SignupRequest struct {
	Name       string  `json:"name"`
	Email      string  `json:"email"`
	Password   string  `json:"password"`
	MedicalID  *string `json:"medical_id,omitempty"`
	NationalID *string `json:"national_id,omitempty"`
	Age        *int    `json:"age,omitempty"`
}

type LoginResponse struct {
	Token string           `json:"token"`
	User  *store.Paramedic `json:"user"`
}

func (h *APIHandler) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if req.Name == "" || req.Email == "" || req.Password == "" {
		http.Error(w, "Name, email and password are required", http.StatusBadRequest)
		return
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		log.Printf("Error hashing password for %s: %v", req.Email, err)
		http.Error(w, "Failed to process password", http.StatusInternalServerError)
		return
	}

	paramedic, err := h.dbStore.CreateParamedic(r.Context(), &store.Paramedic{
		Name:         req.Name,
		Email:        req.Email,
		MedicalID:    req.MedicalID,
		NationalID:   req.NationalID,
		Age:          req.Age,
		PasswordHash: hashedPassword,
	})
	if err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			http.Error(w, "Email already registered", http.StatusBadRequest)
			return
		}
		log.Printf("Error creating account for %s: %v", req.Email, err)
		writeStoreError(w, err, "Failed to create account")
		return
	}

	token, err := auth.GenerateJWT(paramedic.Email)
	if err != nil {
		log.Printf("Error generating JWT for %s: %v", paramedic.Email, err)
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(LoginResponse{Token: token, User: paramedic})
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if req.Email == "" || req.Password == "" {
		http.Error(w, "Email and password are required", http.StatusBadRequest)
		return
	}

	paramedic, err := h.dbStore.GetParamedicByEmail(r.Context(), req.Email)
	if err != nil {
		// An unreachable identity store must not read as "wrong password".
		log.Printf("Error looking up account %s: %v", req.Email, err)
		writeStoreError(w, err, "Failed to look up account")
		return
	}

	if paramedic == nil || !auth.CheckPasswordHash(req.Password, paramedic.PasswordHash) {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := auth.GenerateJWT(paramedic.Email)
	if err != nil {
		log.Printf("Error generating JWT for %s: %v", paramedic.Email, err)
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(LoginResponse{Token: token, User: paramedic})
}

func (h *APIHandler) MeHandler(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(currentParamedic(r))
}

type UpdateProfileRequest struct {
	Name     *string `json:"name,omitempty"`
	Email    *string `json:"email,omitempty"`
	Age      *int    `json:"age,omitempty"`
	Password *string `json:"password,omitempty"`
}

func (h *APIHandler) UpdateProfileHandler(w http.ResponseWriter, r *http.Request) {
	paramedic := currentParamedic(r)

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if req.Name != nil {
		paramedic.Name = *req.Name
	}
	if req.Email != nil {
		paramedic.Email = *req.Email
	}
	if req.Age != nil {
		paramedic.Age = req.Age
	}
	if req.Password != nil {
		hashed, err := auth.HashPassword(*req.Password)
		if err != nil {
			log.Printf("Error hashing new password for paramedic %d: %v", paramedic.ID, err)
			http.Error(w, "Failed to process password", http.StatusInternalServerError)
			return
		}
		paramedic.PasswordHash = hashed
	}

	if err := h.dbStore.UpdateParamedic(r.Context(), paramedic); err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			http.Error(w, "Email already taken", http.StatusBadRequest)
			return
		}
		log.Printf("Error updating profile for paramedic %d: %v", paramedic.ID, err)
		writeStoreError(w, err, "Failed to update profile")
		return
	}

	json.NewEncoder(w).Encode(paramedic)
}

func writeStoreError(w http.ResponseWriter, err error, msg string) {
	if errors.Is(err, store.ErrUnavailable) {
		http.Error(w, "Storage unavailable", http.StatusServiceUnavailable)
		return
	}
	http.Error(w, msg, http.StatusInternalServerError)
}
