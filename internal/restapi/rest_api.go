package restapi

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/app"
)

// Cache-Control tiers.
const (
	cacheRealtime = 10 * time.Second
	cacheNone     = 0
)

type RestAPI struct {
	*app.Application
	rateLimiter *RateLimitMiddleware
}

// NewRestAPI builds the API over app. A configured rate limit of zero
// disables limiting.
func NewRestAPI(app *app.Application) *RestAPI {
	perSecond := app.Config.RateLimit
	if perSecond == 0 {
		perSecond = -1
	}
	return &RestAPI{
		Application: app,
		rateLimiter: NewRateLimitMiddleware(perSecond, time.Second, nil, app.Clock),
	}
}

// SetRoutes registers every API route on mux. Rate limiting applies to the
// /api routes only.
func (api *RestAPI) SetRoutes(mux *http.ServeMux) {
	limited := func(maxAge time.Duration, h http.HandlerFunc) http.Handler {
		return api.rateLimiter.Handler()(CacheControlMiddleware(maxAge, h))
	}

	mux.Handle("GET /api/stops/{stopID}/arrivals", limited(cacheRealtime, api.arrivalsForStopHandler))
	mux.Handle("GET /api/vehicles", limited(cacheRealtime, api.vehiclesHandler))

	mux.Handle("POST /api/alerts", limited(cacheNone, api.createSubscriptionHandler))
	mux.Handle("GET /api/alerts", limited(cacheNone, api.listSubscriptionsHandler))
	mux.Handle("DELETE /api/alerts/{id}", limited(cacheNone, api.deactivateSubscriptionHandler))
	mux.Handle("GET /api/notifications", limited(cacheNone, api.listNotificationsHandler))
	mux.Handle("POST /api/notifications/{id}/read", limited(cacheNone, api.markNotificationReadHandler))

	mux.Handle("GET /api/admin/summary", limited(cacheNone, api.adminSummaryHandler))

	mux.HandleFunc("GET /healthz", api.healthHandler)
	if api.Metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(api.Metrics.Registry, promhttp.HandlerOpts{}))
	}
}

// Shutdown stops background goroutines owned by the API.
func (api *RestAPI) Shutdown() {
	if api.rateLimiter != nil {
		api.rateLimiter.Stop()
	}
}
