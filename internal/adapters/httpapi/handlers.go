package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"roastbot/internal/core/domain"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func (a *API) health(status string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, healthResponse{Status: status, Timestamp: a.now().UTC()})
	}
}

func (a *API) createRun(w http.ResponseWriter, r *http.Request) {
	var req domain.RunRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, domain.ErrInvalidRequest.Error(), err.Error())
		return
	}
	ticket, err := a.svc.CreateRun(r.Context(), req)
	if err != nil {
		a.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, ticket)
}

func (a *API) listRuns(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, a.svc.ListRuns(r.Context()))
}

func (a *API) getRun(w http.ResponseWriter, r *http.Request) {
	snap, err := a.svc.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		a.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (a *API) cancelRun(w http.ResponseWriter, r *http.Request) {
	snap, err := a.svc.CancelRun(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		a.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, snap)
}

func (a *API) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, http.StatusNotFound, domain.ErrNotFound.Error(), "")
	case errors.Is(err, domain.ErrInvalidRequest):
		detail := strings.TrimPrefix(err.Error(), domain.ErrInvalidRequest.Error()+": ")
		respondError(w, http.StatusBadRequest, domain.ErrInvalidRequest.Error(), detail)
	default:
		a.logger.Error().Err(err).Msg("request failed")
		respondError(w, http.StatusInternalServerError, "internal_error", "")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dest any) error {
	if r.Body == nil {
		return errors.New("request body required")
	}
	defer r.Body.Close()

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, code, detail string) {
	respondJSON(w, status, errorResponse{Error: code, Detail: detail})
}
