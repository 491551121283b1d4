package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	dErrors "garagedata/pkg/domain-errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type plainBody struct {
	Registration string `json:"registration"`
}

type preparedBody struct {
	Registration string `json:"registration"`
}

func (b *preparedBody) Normalize() {
	b.Registration = strings.ToUpper(strings.TrimSpace(b.Registration))
}

func (b *preparedBody) Validate() error {
	if b.Registration == "" {
		return errors.New("registration is required")
	}
	if len(b.Registration) > 12 {
		return dErrors.New(dErrors.CodeInvalidInput, "registration too long")
	}
	return nil
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestDecodeRequest(t *testing.T) {
	post := func(body string) *http.Request {
		return httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	}

	t.Run("plain body is decoded as sent", func(t *testing.T) {
		w := httptest.NewRecorder()
		got, ok := DecodeRequest[plainBody](w, post(`{"registration":" ab12cde "}`))
		require.True(t, ok)
		assert.Equal(t, " ab12cde ", got.Registration)
	})

	t.Run("preparable body is normalized", func(t *testing.T) {
		w := httptest.NewRecorder()
		got, ok := DecodeRequest[preparedBody](w, post(`{"registration":" ab12cde "}`))
		require.True(t, ok)
		assert.Equal(t, "AB12CDE", got.Registration)
	})

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"malformed json", `{"registration":`, http.StatusBadRequest, "bad_request"},
		{"unknown field", `{"registration":"AB12CDE","kind":"image"}`, http.StatusBadRequest, "bad_request"},
		{"trailing object", `{"registration":"AB12CDE"}{"registration":"X"}`, http.StatusBadRequest, "bad_request"},
		{"plain validation error", `{"registration":"  "}`, http.StatusBadRequest, "invalid_registration"},
		{"domain validation error", `{"registration":"ABCDEFGHIJKLMNOP"}`, http.StatusBadRequest, "invalid_registration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			got, ok := DecodeRequest[preparedBody](w, post(tt.body))
			assert.False(t, ok)
			assert.Nil(t, got)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decodeError(t, w).Error)
		})
	}
}
