package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/commitdeck/commitdeck/internal/auth"
	"github.com/commitdeck/commitdeck/internal/core"
	"github.com/commitdeck/commitdeck/internal/github"
	"github.com/commitdeck/commitdeck/internal/llm"
	"github.com/commitdeck/commitdeck/internal/store"
)

// Repository caps per tier.
const (
	freeRepoLimit = 1
	proRepoLimit  = 5
)

type APIHandler struct {
	users     *store.SQLiteStore
	pipeline  *core.Pipeline
	regen     *core.Regenerator
	newSource func(token string) core.CommitSource
	demoRepo  github.Repo
	demoToken string
}

func NewAPIHandler(users *store.SQLiteStore, pipeline *core.Pipeline, regen *core.Regenerator,
	newSource func(token string) core.CommitSource, demoRepo github.Repo, demoToken string) *APIHandler {
	return &APIHandler{
		users:     users,
		pipeline:  pipeline,
		regen:     regen,
		newSource: newSource,
		demoRepo:  demoRepo,
		demoToken: demoToken,
	}
}

// errorResponse is the coded error payload; the caller keys off Code to
// render specific messages ("limit reached", "pro required").
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeErrorCode(w http.ResponseWriter, status int, resp errorResponse) {
	writeJSON(w, status, resp)
}

func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		subject, err := auth.ValidateJWT(tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		userID, err := strconv.ParseInt(subject, 10, 64)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		user, err := h.users.GetUserByID(userID)
		if err != nil {
			log.Printf("Error in JWTAuthMiddleware for user %d: %v", userID, err)
			http.Error(w, "Failed to process user identity", http.StatusInternalServerError)
			return
		}
		if user == nil {
			http.Error(w, "User not found", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), "userID", user.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OptionalJWTAuthMiddleware accepts requests with or without a bearer token.
// A token that is present but invalid still fails closed.
func (h *APIHandler) OptionalJWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			next.ServeHTTP(w, r)
			return
		}
		h.JWTAuthMiddleware(next).ServeHTTP(w, r)
	})
}

type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *APIHandler) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if req.Email == "" || req.Password == "" {
		http.Error(w, "Email and password are required", http.StatusBadRequest)
		return
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		log.Printf("Error hashing password for user %s: %v", req.Email, err)
		http.Error(w, "Failed to process password", http.StatusInternalServerError)
		return
	}

	user, err := h.users.CreateUser(req.Email, hashedPassword)
	if err != nil {
		log.Printf("Error creating user %s: %v", req.Email, err)
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(user)
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

	user, err := h.users.GetUserByEmail(req.Email)
	if err != nil {
		log.Printf("Error getting user %s: %v", req.Email, err)
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	if user == nil || !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := auth.GenerateJWT(strconv.FormatInt(user.ID, 10))
	if err != nil {
		log.Printf("Error generating JWT for user %s: %v", req.Email, err)
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"token": token})
}

func (h *APIHandler) TodayCardsHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)

	user, err := h.users.GetUserByID(userID)
	if err != nil || user == nil {
		log.Printf("Error loading user %d: %v", userID, err)
		http.Error(w, "Failed to load user", http.StatusInternalServerError)
		return
	}
	if len(user.Repositories) == 0 {
		writeErrorCode(w, http.StatusBadRequest, errorResponse{Code: "NO_REPOSITORY", Message: "no repository configured"})
		return
	}

	src := h.newSource(user.GitHubToken)
	set, err := h.pipeline.TodaySet(r.Context(), src, core.UserIdentity(userID), user.Repositories[0])
	if err != nil {
		log.Printf("Error building today's set for user %d: %v", userID, err)
		http.Error(w, "Failed to build today's cards", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (h *APIHandler) DemoTodayCardsHandler(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("deviceId")
	if deviceID == "" {
		http.Error(w, "deviceId query parameter is required", http.StatusBadRequest)
		return
	}
	if h.demoRepo.FullName == "" {
		http.Error(w, "Demo mode is not configured", http.StatusServiceUnavailable)
		return
	}

	identity := core.DemoIdentity(auth.HashDeviceID(deviceID))
	src := h.newSource(h.demoToken)
	set, err := h.pipeline.TodaySet(r.Context(), src, identity, h.demoRepo)
	if err != nil {
		log.Printf("Error building demo set for %s: %v", identity.Key(), err)
		http.Error(w, "Failed to build today's cards", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

type RegenerateQuestionRequest struct {
	RawDiff          string `json:"rawDiff"`
	ExistingQuestion string `json:"existingQuestion"`
	ExistingAnswer   string `json:"existingAnswer"`
	CardID           string `json:"cardId,omitempty"`
	DemoDeviceID     string `json:"demoDeviceId,omitempty"`
}

func (h *APIHandler) RegenerateQuestionHandler(w http.ResponseWriter, r *http.Request) {
	var req RegenerateQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	var identity core.Identity
	if userID, ok := r.Context().Value("userID").(int64); ok {
		identity = core.UserIdentity(userID)
	} else if req.DemoDeviceID != "" {
		identity = core.DemoIdentity(auth.HashDeviceID(req.DemoDeviceID))
	} else {
		http.Error(w, "Bearer token or demoDeviceId is required", http.StatusUnauthorized)
		return
	}

	result, err := h.regen.RegenerateQuestion(r.Context(), identity, core.RegenerateRequest{
		RawDiff:          req.RawDiff,
		ExistingQuestion: req.ExistingQuestion,
		ExistingAnswer:   req.ExistingAnswer,
		CardID:           req.CardID,
	})
	if err != nil {
		h.writeRegenError(w, identity, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *APIHandler) RegenerateTodayHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)

	if err := h.regen.RegenerateToday(r.Context(), userID); err != nil {
		h.writeRegenError(w, core.UserIdentity(userID), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeRegenError maps regeneration failures to distinguishable responses:
// the quota and tier rejections must never degrade to a generic error.
func (h *APIHandler) writeRegenError(w http.ResponseWriter, identity core.Identity, err error) {
	var rateErr *core.RateLimitError
	var validationErr *core.ValidationError
	var parseErr *llm.ParseError

	switch {
	case errors.As(err, &rateErr):
		writeErrorCode(w, http.StatusTooManyRequests, errorResponse{Code: "LIMIT_EXCEEDED", Limit: rateErr.Limit})
	case errors.Is(err, core.ErrProRequired):
		writeErrorCode(w, http.StatusForbidden, errorResponse{Code: "PRO_REQUIRED", Message: "pro subscription required"})
	case errors.As(err, &validationErr):
		http.Error(w, validationErr.Message, http.StatusBadRequest)
	case errors.Is(err, llm.ErrTimeout):
		writeErrorCode(w, http.StatusGatewayTimeout, errorResponse{Code: "AI_TIMEOUT", Message: "the AI took too long to respond"})
	case errors.As(err, &parseErr):
		writeErrorCode(w, http.StatusBadGateway, errorResponse{Code: "AI_ERROR", Message: "the AI response could not be processed"})
	default:
		log.Printf("Regeneration error for %s: %v", identity.Key(), err)
		http.Error(w, "Failed to regenerate", http.StatusInternalServerError)
	}
}

func (h *APIHandler) ListRepositoriesHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)

	user, err := h.users.GetUserByID(userID)
	if err != nil || user == nil {
		log.Printf("Error loading user %d: %v", userID, err)
		http.Error(w, "Failed to load user", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, user.Repositories)
}

type UpdateRepositoriesRequest struct {
	Repositories []github.Repo `json:"repositories"`
}

func (h *APIHandler) UpdateRepositoriesHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)

	var req UpdateRepositoriesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	for _, repo := range req.Repositories {
		if repo.FullName == "" || !strings.Contains(repo.FullName, "/") {
			http.Error(w, "Repository fullName must be owner/name", http.StatusBadRequest)
			return
		}
	}

	user, err := h.users.GetUserByID(userID)
	if err != nil || user == nil {
		log.Printf("Error loading user %d: %v", userID, err)
		http.Error(w, "Failed to load user", http.StatusInternalServerError)
		return
	}

	limit := freeRepoLimit
	if user.Tier == store.TierPro {
		limit = proRepoLimit
	}
	if len(req.Repositories) > limit {
		writeErrorCode(w, http.StatusForbidden, errorResponse{Code: "REPO_LIMIT", Limit: limit})
		return
	}

	if err := h.users.UpdateRepositories(userID, req.Repositories); err != nil {
		log.Printf("Error updating repositories for user %d: %v", userID, err)
		http.Error(w, "Failed to update repositories", http.StatusInternalServerError)
		return
	}

	// The configured sources changed, so today's cards no longer reflect
	// them; drop the set and let the next fetch regenerate.
	if err := h.regen.InvalidateToday(r.Context(), core.UserIdentity(userID)); err != nil {
		log.Printf("Error invalidating today's set for user %d: %v", userID, err)
	}

	writeJSON(w, http.StatusOK, req.Repositories)
}
