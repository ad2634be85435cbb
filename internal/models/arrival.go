package models

// ArrivalStatus classifies a scheduled arrival against real-time data.
type ArrivalStatus string

const (
	StatusEarly     ArrivalStatus = "EARLY"
	StatusOnTime    ArrivalStatus = "ON_TIME"
	StatusLate      ArrivalStatus = "LATE"
	StatusScheduled ArrivalStatus = "SCHEDULED"
)

// ArrivalRecord is one scheduled call at a stop merged with real-time and
// prediction data. It is computed per request and never stored.
type ArrivalRecord struct {
	TripID              string        `json:"trip_id"`
	RouteID             string        `json:"route_id"`
	Headsign            string        `json:"headsign"`
	StopSequence        uint32        `json:"stop_sequence"`
	ScheduledArrival    string        `json:"scheduled_arrival"`
	PredictedArrival    *string       `json:"predicted_arrival"`
	DelayMinutes        float64       `json:"delay_minutes"`
	Status              ArrivalStatus `json:"status"`
	ProbabilityLate5Min float64       `json:"probability_late_5min"`
	VehicleID           *string       `json:"vehicle_id"`
}

// ClassifyDelay maps a delay in minutes to a status. Late is strictly more
// than 5 minutes, early strictly more than 1 minute ahead.
func ClassifyDelay(minutes float64) ArrivalStatus {
	switch {
	case minutes > 5:
		return StatusLate
	case minutes < -1:
		return StatusEarly
	default:
		return StatusOnTime
	}
}
