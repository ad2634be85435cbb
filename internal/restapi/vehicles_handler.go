package restapi

import (
	"net/http"
	"strconv"

	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/geo"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/models"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/realtime"
)

const (
	defaultVehicleRadius = 500.0
	maxVehicleRadius     = 10_000.0
)

// VehicleView is a cached vehicle position with its freshness.
type VehicleView struct {
	realtime.VehiclePosition
	Stale      bool  `json:"stale"`
	AgeSeconds int64 `json:"age_seconds"`
}

var defaultStaleDetector = NewStaleDetector()

// vehiclesHandler lists every live cached vehicle position, optionally
// filtered by route_id and by a lat/lon/radius search area.
func (api *RestAPI) vehiclesHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	routeID := query.Get("route_id")

	area, fieldErrors := parseSearchArea(query.Get("lat"), query.Get("lon"), query.Get("radius"))
	if len(fieldErrors) > 0 {
		api.validationErrorResponse(w, r, fieldErrors)
		return
	}

	now := api.Clock.Now()
	positions := api.Realtime.VehiclePositions()
	views := make([]VehicleView, 0, len(positions))
	for _, v := range positions {
		if routeID != "" && v.RouteID != routeID {
			continue
		}
		if area != nil && (v.Latitude == nil || v.Longitude == nil || !area.Contains(*v.Latitude, *v.Longitude)) {
			continue
		}
		views = append(views, VehicleView{
			VehiclePosition: v,
			Stale:           defaultStaleDetector.Check(v, now),
			AgeSeconds:      int64(defaultStaleDetector.Age(v, now).Seconds()),
		})
	}

	api.sendOK(w, r, models.NewListData(views))
}

// parseSearchArea returns nil when neither lat nor lon is given.
func parseSearchArea(latStr, lonStr, radiusStr string) (*geo.Circle, map[string][]string) {
	if latStr == "" && lonStr == "" {
		if radiusStr != "" {
			return nil, map[string][]string{"radius": {"requires lat and lon"}}
		}
		return nil, nil
	}

	errs := map[string][]string{}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil || lat < -90 || lat > 90 {
		errs["lat"] = []string{"must be a latitude between -90 and 90"}
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil || lon < -180 || lon > 180 {
		errs["lon"] = []string{"must be a longitude between -180 and 180"}
	}
	radius := defaultVehicleRadius
	if radiusStr != "" {
		radius, err = strconv.ParseFloat(radiusStr, 64)
		if err != nil || radius <= 0 || radius > maxVehicleRadius {
			errs["radius"] = []string{"must be between 0 and 10000 meters"}
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}

	c := geo.NewCircle(lat, lon, radius)
	return &c, nil
}
