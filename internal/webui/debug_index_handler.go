// Package webui serves the HTML debug view of the real-time cache.
package webui

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/davecgh/go-spew/spew"

	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/app"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/logging"
)

//go:embed debug_index.html
var templateFS embed.FS

var debugTemplate = template.Must(template.ParseFS(templateFS, "debug_index.html"))

type WebUI struct {
	*app.Application
}

func (webUI *WebUI) SetWebUIRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /debug/cache", webUI.debugIndexHandler)
}

type debugData struct {
	Title string
	Pre   string
}

var dumper = spew.ConfigState{Indent: "  ", SortKeys: true, DisablePointerAddresses: true}

func writeDebugData(w http.ResponseWriter, r *http.Request, title string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := debugTemplate.Execute(w, debugData{Title: title, Pre: dumper.Sdump(data)})
	if err != nil {
		logging.LogError(logging.FromContext(r.Context()), "failed to execute debug template", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// debugIndexHandler dumps cache and store contents. It is not available in
// production.
func (webUI *WebUI) debugIndexHandler(w http.ResponseWriter, r *http.Request) {
	if webUI.Config.IsProduction() {
		http.NotFound(w, r)
		return
	}

	var data any
	var title string

	switch dataType := r.URL.Query().Get("dataType"); dataType {
	case "vehicles":
		data = webUI.Realtime.VehiclePositions()
		title = "Real-time cache - Vehicle positions"
	case "trip_updates":
		data = webUI.Realtime.TripUpdates()
		title = "Real-time cache - Trip updates"
	case "cache_keys":
		data = webUI.Realtime.Store().Keys("")
		title = "Real-time cache - Keys"
	case "subscriptions":
		subs, err := webUI.Alerts.ActiveSubscriptions(r.Context())
		if err != nil {
			logging.LogError(logging.FromContext(r.Context()), "failed to load subscriptions", err,
				slog.String("data_type", dataType))
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		data = subs
		title = "Alerts - Active subscriptions"
	case "config":
		cfg := webUI.Config
		cfg.Feed.AuthHeaderValue = redact(cfg.Feed.AuthHeaderValue)
		cfg.Static.AuthHeaderValue = redact(cfg.Static.AuthHeaderValue)
		data = cfg
		title = "Configuration"
	default:
		data = map[string]string{
			"error": "Please use one of the following: vehicles, trip_updates, cache_keys, subscriptions, config.",
		}
		title = "Choose a data type"
	}

	writeDebugData(w, r, title, data)
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "[redacted]"
}
