// Package httpx holds the JSON plumbing shared by every HTTP handler.
package httpx

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"lostfound/internal/apperr"
)

// ActorHeader carries the authenticated caller, set by the boundary layer.
const ActorHeader = "X-Actor-ID"

// JSON writes data with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Error().Err(err).Msg("error encoding response")
		}
	}
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Error maps err onto a status code and writes the error body.
func Error(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := StatusFor(kind)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("internal error")
		msg = "internal error"
	}
	if kind == apperr.KindBusy {
		w.Header().Set("Retry-After", "1")
	}
	JSON(w, status, errorBody{Error: msg, Code: string(kind)})
}

func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindInvalidArgument:
		return http.StatusBadRequest
	case apperr.KindInvalidState:
		return http.StatusUnprocessableEntity
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindBusy:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Decode reads a JSON body into target, rejecting unknown fields.
func Decode(r *http.Request, target any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return apperr.InvalidArgument("decode", "malformed request body: %v", err)
	}
	return nil
}

// Actor returns the caller identity or an InvalidArgument error.
func Actor(r *http.Request) (string, error) {
	actor := strings.TrimSpace(r.Header.Get(ActorHeader))
	if actor == "" {
		return "", apperr.InvalidArgument("actor", "missing %s header", ActorHeader)
	}
	return actor, nil
}

// IDParam parses a UUID route parameter.
func IDParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, apperr.InvalidArgument("route", "invalid %s", name)
	}
	return id, nil
}

// Campus reads the optional campusId query filter; 0 means every campus.
func Campus(q url.Values) (int, error) {
	raw := q.Get("campusId")
	if raw == "" {
		return 0, nil
	}
	campus, err := strconv.Atoi(raw)
	if err != nil || campus < 0 {
		return 0, apperr.InvalidArgument("campus", "campusId must be a positive integer")
	}
	return campus, nil
}
