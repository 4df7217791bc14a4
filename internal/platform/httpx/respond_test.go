package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lostfound/internal/apperr"
)

func TestErrorMapsKinds(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{apperr.NotFound("op", "missing"), http.StatusNotFound, "not_found"},
		{apperr.InvalidArgument("op", "bad"), http.StatusBadRequest, "invalid_argument"},
		{apperr.InvalidState("op", "no"), http.StatusUnprocessableEntity, "invalid_state"},
		{apperr.Conflict("op", "lost race"), http.StatusConflict, "conflict"},
		{apperr.Busy("op", "locked"), http.StatusServiceUnavailable, "busy"},
		{errors.New("db down"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		Error(rec, tc.err)

		assert.Equal(t, tc.status, rec.Code, tc.code)
		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, tc.code, body["code"])
	}
}

func TestBusySetsRetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, apperr.Busy("lock", "busy"))
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, errors.New("pq: password authentication failed"))
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	var target struct {
		Message string `json:"message"`
	}
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"message":"hi","extra":1}`))
	err := Decode(r, &target)
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestActor(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := Actor(r)
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	r.Header.Set(ActorHeader, " staff-7 ")
	actor, err := Actor(r)
	require.NoError(t, err)
	assert.Equal(t, "staff-7", actor)
}
