package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondErrorMapsKinds(t *testing.T) {
	cases := []struct {
		err    error
		status int
		detail string
	}{
		{Errorf(ErrNotFound, "Cliente %d não encontrado", 9), http.StatusNotFound, "Cliente 9 não encontrado"},
		{Errorf(ErrDuplicate, "CPF já cadastrado"), http.StatusConflict, "CPF já cadastrado"},
		{Errorf(ErrConflict, "Estoque insuficiente"), http.StatusConflict, "Estoque insuficiente"},
		{fmt.Errorf("wrapped: %w", Errorf(ErrValidation, "Email inválido")), http.StatusBadRequest, "Email inválido"},
		{Errorf(ErrForbidden, "nope"), http.StatusForbidden, "nope"},
		{Errorf(ErrUnauthorized, "Token ausente"), http.StatusUnauthorized, "Token ausente"},
		{errors.New("db down"), http.StatusInternalServerError, ""},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			rec := httptest.NewRecorder()
			RespondError(rec, tc.err)

			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
			var body ProblemDetail
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.status, body.Status)
			assert.Equal(t, tc.detail, body.Detail)
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var target struct {
		Nome string `json:"nome"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"nome":"Ana"}`))
	require.NoError(t, DecodeJSON(req, &target))
	assert.Equal(t, "Ana", target.Nome)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	err := DecodeJSON(req, &target)
	require.ErrorIs(t, err, ErrValidation)
	assert.True(t, strings.HasPrefix(err.Error(), "JSON inválido"))
}

func TestCSV(t *testing.T) {
	rec := httptest.NewRecorder()
	CSV(rec, "relatorio.csv", []byte("a,b\n"))

	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="relatorio.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "a,b\n", rec.Body.String())
}
