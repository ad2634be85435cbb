package restapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/models"
)

func TestSendOK(t *testing.T) {
	api := createTestApi(t)
	w := httptest.NewRecorder()

	api.sendOK(w, httptest.NewRequest(http.MethodGet, "/test", nil), map[string]string{"test": "data"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var decoded models.ResponseModel
	require.NoError(t, json.NewDecoder(w.Body).Decode(&decoded))
	assert.Equal(t, http.StatusOK, decoded.Code)
	assert.Equal(t, "OK", decoded.Text)
	assert.Equal(t, testNow.UnixMilli(), decoded.CurrentTime)
	assert.Equal(t, map[string]any{"test": "data"}, decoded.Data)
}

func TestSendResponseUsesCode(t *testing.T) {
	api := createTestApi(t)
	w := httptest.NewRecorder()

	api.sendResponse(w, httptest.NewRequest(http.MethodPost, "/test", nil),
		models.NewResponse(http.StatusCreated, "x", "Created", api.Clock))

	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestServerErrorResponseHidesCause(t *testing.T) {
	api := createTestApi(t)
	w := httptest.NewRecorder()

	api.serverErrorResponse(w, httptest.NewRequest(http.MethodGet, "/test", nil), errors.New("secret detail"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "secret detail")
	assert.Contains(t, w.Body.String(), "internal server error")
}

func TestValidationErrorResponse(t *testing.T) {
	api := createTestApi(t)
	w := httptest.NewRecorder()

	api.validationErrorResponse(w, httptest.NewRequest(http.MethodGet, "/test", nil),
		map[string][]string{"limit": {"must be a positive integer"}})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var decoded models.ResponseModel
	require.NoError(t, json.NewDecoder(w.Body).Decode(&decoded))
	assert.Equal(t, []string{"must be a positive integer"}, decoded.FieldErrors["limit"])
}
