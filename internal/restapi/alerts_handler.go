package restapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/alerts"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/models"
)

const (
	maxRequestBodyBytes      = 16 * 1024
	defaultNotificationLimit = 20
	maxNotificationLimit     = 100
)

type createSubscriptionRequest struct {
	UserID           string   `json:"user_id"`
	StopID           string   `json:"stop_id"`
	RouteID          *string  `json:"route_id"`
	ThresholdMinutes *float64 `json:"threshold_minutes"`
}

// createSubscriptionHandler stores a new active subscription. The threshold
// defaults to 5 minutes and the user to the request's user.
func (api *RestAPI) createSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	var req createSubscriptionRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		api.validationErrorResponse(w, r, map[string][]string{"body": {"must be a JSON subscription object"}})
		return
	}

	in := alerts.NewSubscription{
		UserID:           req.UserID,
		StopID:           req.StopID,
		RouteID:          req.RouteID,
		ThresholdMinutes: 5,
	}
	if in.UserID == "" {
		in.UserID = api.RequestUserID(r)
	}
	if req.ThresholdMinutes != nil {
		in.ThresholdMinutes = *req.ThresholdMinutes
	}

	sub, err := api.Alerts.CreateSubscription(r.Context(), in)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		api.validationErrorResponse(w, r, fieldErrors(verrs))
		return
	}
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}

	api.sendResponse(w, r, models.NewResponse(http.StatusCreated, sub, "Created", api.Clock))
}

func (api *RestAPI) listSubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	subs, err := api.Alerts.SubscriptionsForUser(r.Context(), api.RequestUserID(r))
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}
	api.sendOK(w, r, models.NewListData(subs))
}

// deactivateSubscriptionHandler only lets a user deactivate their own
// subscriptions; anything else is reported as not found.
func (api *RestAPI) deactivateSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if msg := validateID(id); msg != "" {
		api.validationErrorResponse(w, r, map[string][]string{"id": {msg}})
		return
	}

	sub, err := api.Alerts.Subscription(r.Context(), id)
	if errors.Is(err, alerts.ErrSubscriptionNotFound) || (err == nil && sub.UserID != api.RequestUserID(r)) {
		api.sendNotFound(w, r)
		return
	}
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}

	if err := api.Alerts.DeactivateSubscription(r.Context(), id); err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}
	sub.IsActive = false
	api.sendOK(w, r, sub)
}

func (api *RestAPI) listNotificationsHandler(w http.ResponseWriter, r *http.Request) {
	limit := defaultNotificationLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			api.validationErrorResponse(w, r, map[string][]string{"limit": {"must be a positive integer"}})
			return
		}
		limit = min(n, maxNotificationLimit)
	}

	events, err := api.Alerts.NotificationsForUser(r.Context(), api.RequestUserID(r), limit)
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}
	api.sendOK(w, r, models.NewListData(events))
}

func (api *RestAPI) markNotificationReadHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if msg := validateID(id); msg != "" {
		api.validationErrorResponse(w, r, map[string][]string{"id": {msg}})
		return
	}

	// notifications on another user's subscriptions are reported as missing
	err := api.Alerts.MarkNotificationRead(r.Context(), api.RequestUserID(r), id)
	if errors.Is(err, alerts.ErrNotificationNotFound) {
		api.sendNotFound(w, r)
		return
	}
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func fieldErrors(verrs validator.ValidationErrors) map[string][]string {
	out := make(map[string][]string, len(verrs))
	for _, fe := range verrs {
		msg := "failed " + fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		out[fe.Field()] = append(out[fe.Field()], msg)
	}
	return out
}
