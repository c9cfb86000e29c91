// Package handlers implements the HTTP handlers for the AutoFlowAI service.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/christy136/AutoFlowAI/internal/profiles"
	"github.com/christy136/AutoFlowAI/internal/service"
	"github.com/christy136/AutoFlowAI/pkg/models"
)

// Handlers holds all handler dependencies.
type Handlers struct {
	Service *service.Service
}

// New creates a new Handlers instance.
func New(svc *service.Service) *Handlers {
	return &Handlers{Service: svc}
}

// ── Request bodies ───────────────────────────────────────────

// contextValues accepts any JSON scalar per key and keeps its string form.
type contextValues map[string]string

func (c *contextValues) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(contextValues, len(raw))
	for k, v := range raw {
		switch t := v.(type) {
		case nil:
		case string:
			out[k] = t
		case float64, bool:
			out[k] = fmt.Sprint(t)
		default:
			return fmt.Errorf("context value %q must be a string", k)
		}
	}
	*c = out
	return nil
}

type generateRequest struct {
	Requirement string        `json:"requirement"`
	Context     contextValues `json:"context"`
	Simulate    bool          `json:"simulate"`
}

type precheckRequest struct {
	Context contextValues `json:"context"`
	AutoFix *bool         `json:"auto_fix"`
}

type accountInput struct {
	Name string `json:"name"`
	models.AccountProfile
}

type usecaseInput struct {
	Name string `json:"name"`
	models.UseCaseProfile
}

type saveProfilesRequest struct {
	Account accountInput `json:"account"`
	UseCase usecaseInput `json:"usecase"`
}

// ══════════════════════════════════════════════════════════════
// ── Operations ───────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

func (h *Handlers) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	res, err := h.Service.Generate(r.Context(), service.GenerateRequest{
		Requirement: req.Requirement,
		Context:     req.Context,
		Simulate:    req.Simulate,
	})
	if err != nil {
		respondOperationError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *Handlers) Precheck(w http.ResponseWriter, r *http.Request) {
	var req precheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	res := h.Service.Precheck(r.Context(), service.PrecheckRequest{Context: req.Context, AutoFix: req.AutoFix})
	respondJSON(w, http.StatusOK, res)
}

func (h *Handlers) ValidateArtifact(w http.ResponseWriter, r *http.Request) {
	var artifact models.PipelineArtifact
	if err := json.NewDecoder(r.Body).Decode(&artifact); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	res := h.Service.ValidateArtifact(&artifact)
	status := http.StatusOK
	if !res.OK {
		status = http.StatusUnprocessableEntity
	}
	respondJSON(w, status, map[string]interface{}{
		"ok":       res.OK,
		"reason":   res.Reason,
		"warnings": res.Warnings,
	})
}

func (h *Handlers) ListArtifacts(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Service.Artifacts().List()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Listing artifacts failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"artifacts": entries})
}

// ══════════════════════════════════════════════════════════════
// ── Profiles & Secrets ───────────────────────────────────────
// ══════════════════════════════════════════════════════════════

func (h *Handlers) ListProfiles(w http.ResponseWriter, r *http.Request) {
	listing, err := h.Service.Profiles().List()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Listing profiles failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, listing)
}

func (h *Handlers) SaveProfiles(w http.ResponseWriter, r *http.Request) {
	var req saveProfilesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	account := req.Account.AccountProfile
	account.Name = req.Account.Name
	usecase := req.UseCase.UseCaseProfile
	usecase.Name = req.UseCase.Name

	acctPath, ucPath, err := h.Service.Profiles().Save(account, usecase)
	if err != nil {
		respondProfileError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status":          "saved",
		"account_profile": acctPath,
		"usecase_profile": ucPath,
	})
}

func (h *Handlers) ActivateProfiles(w http.ResponseWriter, r *http.Request) {
	var req models.ActiveProfiles
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := h.Service.Profiles().Activate(req.Account, req.UseCase); err != nil {
		respondProfileError(w, err)
		return
	}
	log.Info().Str("account", req.Account).Str("usecase", req.UseCase).Msg("Profiles activated")
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "activated", "active": req})
}

func (h *Handlers) SecretsStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{"secrets": h.Service.SecretsStatus()})
}

func (h *Handlers) AuditEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "Invalid limit", v)
			return
		}
		limit = n
	}
	events, err := h.Service.AuditEvents(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Reading audit log failed", err.Error())
		return
	}
	if events == nil {
		events = []models.AuditEvent{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

// ── Helpers ──────────────────────────────────────────────────

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message, reason string) {
	body := map[string]string{"error": message}
	if reason != "" {
		body["reason"] = reason
	}
	respondJSON(w, status, body)
}

func respondOperationError(w http.ResponseWriter, err error) {
	var opErr *service.OperationError
	if !errors.As(err, &opErr) {
		respondError(w, http.StatusInternalServerError, "Operation failed", err.Error())
		return
	}

	status, message := http.StatusInternalServerError, "Operation failed"
	switch opErr.Kind {
	case service.KindInvalidInput:
		status, message = http.StatusBadRequest, "Invalid request"
	case service.KindInterpretation:
		status, message = http.StatusBadRequest, "Invalid structured output from LLM"
	case service.KindValidation:
		status, message = http.StatusBadRequest, "ADF JSON validation failed"
	case service.KindPersistence:
		status, message = http.StatusInternalServerError, "Saving pipeline failed"
	}
	respondJSON(w, status, map[string]string{
		"error":  message,
		"reason": opErr.Err.Error(),
		"stage":  opErr.Stage,
	})
}

func respondProfileError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, profiles.ErrInvalidName):
		respondError(w, http.StatusBadRequest, "Invalid profile name", err.Error())
	case errors.Is(err, profiles.ErrNotFound):
		respondError(w, http.StatusNotFound, "Profile not found", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "Profile store failed", err.Error())
	}
}
