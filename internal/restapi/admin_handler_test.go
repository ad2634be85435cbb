package restapi

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/alerts"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/realtime"
)

func TestAdminSummary(t *testing.T) {
	api := createTestApi(t)

	_, err := api.Alerts.CreateSubscription(context.Background(), alerts.NewSubscription{UserID: "u1", StopID: "S1", ThresholdMinutes: 5})
	require.NoError(t, err)
	api.Realtime.StoreVehiclePositions([]realtime.VehiclePosition{{VehicleID: "v1"}})

	rec := serve(t, api, http.MethodGet, "/api/admin/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)

	summary := decode[AdminSummary](t, rec).Data
	assert.Equal(t, 2, summary.Timetable["routes"])
	assert.Equal(t, 4, summary.Timetable["stops"])
	assert.Equal(t, 3, summary.Timetable["trips"])
	assert.Equal(t, 8, summary.Timetable["stop_times"])
	assert.Equal(t, 1, summary.Alerts["subscriptions_active"])
	assert.Equal(t, 1, summary.LiveVehicles)
	assert.Equal(t, 0, summary.LiveTripUpdates)
	assert.False(t, summary.ModelLoaded)
}
