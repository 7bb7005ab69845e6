// Package handler contains the HTTP handlers for the REST API.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/openpredict/ammd/internal/domain"
	"github.com/openpredict/ammd/internal/numeric"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			slog.Error("handler: encode response", slog.String("error", err.Error()))
		}
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// parseListOpts reads pagination and filter query parameters.
func parseListOpts(r *http.Request) domain.ListOpts {
	opts := domain.ListOpts{Limit: defaultLimit}
	q := r.URL.Query()
	if s := q.Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			opts.Limit = min(n, maxLimit)
		}
	}
	if s := q.Get("offset"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 {
			opts.Offset = n
		}
	}
	if s := q.Get("enabled_only"); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			opts.EnabledOnly = b
		}
	}
	opts.Category = q.Get("category")
	return opts
}

// pathID parses the {id} path segment as a market id.
func pathID(r *http.Request) (uint64, error) {
	return strconv.ParseUint(r.PathValue("id"), 10, 64)
}

// parseAmount decodes a decimal string into a token amount. An empty string
// is treated as zero.
func parseAmount(s string) (numeric.U128, error) {
	if s == "" {
		return numeric.Zero(), nil
	}
	return numeric.FromString(s)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// writeServiceError maps domain errors to HTTP status codes. Anything that
// is not a recognised domain condition is logged and reported as a 500.
func writeServiceError(logger *slog.Logger, w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrPaused):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrAlreadyFinalized),
		errors.Is(err, domain.ErrRequestPending),
		errors.Is(err, domain.ErrRequestCreated),
		errors.Is(err, domain.ErrPoolAlreadySeeded):
		writeError(w, http.StatusConflict, err.Error())
	case domain.IsRejection(err),
		errors.Is(err, domain.ErrMaxSharesIn),
		errors.Is(err, domain.ErrInsufficientShares),
		errors.Is(err, domain.ErrInsufficientLP),
		errors.Is(err, domain.ErrInsufficientStorage),
		errors.Is(err, domain.ErrStorageInUse),
		errors.Is(err, domain.ErrMarketNotFinalized),
		errors.Is(err, domain.ErrNothingToClaim),
		errors.Is(err, domain.ErrResolutionTimeNotReached),
		errors.Is(err, domain.ErrInvalidTagCount),
		errors.Is(err, domain.ErrInvalidEndTime),
		errors.Is(err, domain.ErrInvalidResolutionTime),
		errors.Is(err, domain.ErrInvalidScalarBounds),
		errors.Is(err, domain.ErrFeeTooHigh):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		logger.ErrorContext(r.Context(), "handler: "+op, slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
