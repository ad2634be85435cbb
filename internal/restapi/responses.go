package restapi

import (
	"encoding/json"
	"net/http"

	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/logging"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/models"
)

func (api *RestAPI) sendResponse(w http.ResponseWriter, r *http.Request, response models.ResponseModel) {
	setJSONResponseType(&w)
	if response.Code != 0 && response.Code != http.StatusOK {
		w.WriteHeader(response.Code)
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		api.serverErrorResponse(w, r, err)
	}
}

func (api *RestAPI) sendOK(w http.ResponseWriter, r *http.Request, data any) {
	api.sendResponse(w, r, models.NewOKResponse(data, api.Clock))
}

func (api *RestAPI) sendNotFound(w http.ResponseWriter, r *http.Request) {
	api.sendError(w, r, http.StatusNotFound, "resource not found")
}

func setJSONResponseType(w *http.ResponseWriter) {
	(*w).Header().Set("Content-Type", "application/json")
}

func (api *RestAPI) sendError(w http.ResponseWriter, r *http.Request, code int, message string) {
	setJSONResponseType(&w)
	w.WriteHeader(code)

	response := models.NewResponse(code, nil, message, api.Clock)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logging.LogError(logging.FromContext(r.Context()), "failed to encode error response", err)
	}
}
