package restapi

import (
	"encoding/json"
	"net/http"

	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/logging"
)

// HealthResponse represents the JSON response from the health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// healthHandler reports ready once both databases answer a ping.
func (api *RestAPI) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if api.Application == nil || api.GtfsDB == nil || api.GtfsDB.DB == nil || api.Alerts == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(HealthResponse{
			Status: "unavailable",
			Detail: "database not initialized",
		})
		return
	}

	if err := api.GtfsDB.DB.PingContext(r.Context()); err != nil {
		logging.LogError(logging.FromContext(r.Context()), "GTFS DB ping failed", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(HealthResponse{
			Status: "unavailable",
			Detail: "timetable database connection failed",
		})
		return
	}

	if err := api.Alerts.DB().PingContext(r.Context()); err != nil {
		logging.LogError(logging.FromContext(r.Context()), "alerts DB ping failed", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(HealthResponse{
			Status: "unavailable",
			Detail: "alerts database connection failed",
		})
		return
	}

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(HealthResponse{Status: "ok"})
}
