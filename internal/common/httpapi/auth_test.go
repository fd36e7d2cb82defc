package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
)

func TestRequireAPIKeyRejectsMissing(t *testing.T) {
	called := false
	h := RequireAPIKey("secret", func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		called = true
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	h(w, req, nil)

	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAPIKeyRejectsWrong(t *testing.T) {
	called := false
	h := RequireAPIKey("secret", func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		called = true
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Api-Key", "wrong")
	w := httptest.NewRecorder()
	h(w, req, nil)

	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAPIKeyAcceptsMatch(t *testing.T) {
	called := false
	h := RequireAPIKey("secret", func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		called = true
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Api-Key", "secret")
	w := httptest.NewRecorder()
	h(w, req, nil)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWriteErrorShape(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, http.StatusBadRequest, "bad input")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"bad input"}`, w.Body.String())
}
