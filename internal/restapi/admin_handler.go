package restapi

import (
	"net/http"
)

// AdminSummary is a point-in-time view of the stores and the cache.
type AdminSummary struct {
	Timetable       map[string]int `json:"timetable"`
	Alerts          map[string]int `json:"alerts"`
	LiveVehicles    int            `json:"live_vehicles"`
	LiveTripUpdates int            `json:"live_trip_updates"`
	ModelLoaded     bool           `json:"model_loaded"`
}

func (api *RestAPI) adminSummaryHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	timetable, err := api.GtfsDB.TableCounts(ctx)
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}
	alertCounts, err := api.Alerts.Counts(ctx)
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}

	api.sendOK(w, r, AdminSummary{
		Timetable:       timetable,
		Alerts:          alertCounts,
		LiveVehicles:    len(api.Realtime.VehiclePositions()),
		LiveTripUpdates: len(api.Realtime.TripUpdates()),
		ModelLoaded:     api.Predictor != nil && api.Predictor.Available(),
	})
}
