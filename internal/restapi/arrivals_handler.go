package restapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/gtfsdb"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/models"
)

const maxIDLength = 128

// ArrivalsForStopData is the payload of the arrivals endpoint.
type ArrivalsForStopData struct {
	StopID string                 `json:"stop_id"`
	List   []models.ArrivalRecord `json:"list"`
}

func (api *RestAPI) arrivalsForStopHandler(w http.ResponseWriter, r *http.Request) {
	stopID := r.PathValue("stopID")
	if msg := validateID(stopID); msg != "" {
		api.validationErrorResponse(w, r, map[string][]string{"stopID": {msg}})
		return
	}

	records, err := api.Arrivals.ArrivalsForStop(r.Context(), stopID)
	if errors.Is(err, gtfsdb.ErrStopNotFound) {
		api.sendNotFound(w, r)
		return
	}
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}
	if records == nil {
		records = []models.ArrivalRecord{}
	}

	api.sendOK(w, r, ArrivalsForStopData{StopID: stopID, List: records})
}

// validateID returns a message describing why id is unusable, or "".
func validateID(id string) string {
	switch {
	case strings.TrimSpace(id) == "":
		return "must not be empty"
	case len(id) > maxIDLength:
		return "must be at most 128 characters"
	case strings.ContainsFunc(id, func(r rune) bool { return r < 0x20 || r == 0x7f }):
		return "must not contain control characters"
	}
	return ""
}
