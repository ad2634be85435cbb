package restapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/logging"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/models"
)

// serverErrorResponse logs err and answers 500 without leaking the cause.
func (api *RestAPI) serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	logging.LogError(logging.FromContext(r.Context()), "request failed", err,
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("request_id", GetRequestID(r.Context())))
	api.sendError(w, r, http.StatusInternalServerError, "internal server error")
}

func (api *RestAPI) validationErrorResponse(w http.ResponseWriter, r *http.Request, fieldErrors map[string][]string) {
	setJSONResponseType(&w)
	w.WriteHeader(http.StatusBadRequest)

	response := models.NewResponse(http.StatusBadRequest, nil, "invalid request", api.Clock)
	response.FieldErrors = fieldErrors
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logging.LogError(logging.FromContext(r.Context()), "failed to encode validation response", err)
	}
}
