// Package realtime defines the decoded GTFS-Realtime records held in the
// real-time cache and the key scheme they are stored under.
package realtime

import "strings"

const (
	VehicleKeyPrefix    = "vehicle:"
	TripUpdateKeyPrefix = "trip_update:"
)

func VehicleKey(vehicleID string) string {
	return VehicleKeyPrefix + vehicleID
}

func TripUpdateKey(tripID string) string {
	return TripUpdateKeyPrefix + tripID
}

// VehicleStatus mirrors the GTFS-RT VehicleStopStatus enum.
type VehicleStatus int

const (
	StatusIncomingAt VehicleStatus = iota
	StatusStoppedAt
	StatusInTransitTo
	StatusUnknown
)

func (s VehicleStatus) String() string {
	switch s {
	case StatusIncomingAt:
		return "INCOMING_AT"
	case StatusStoppedAt:
		return "STOPPED_AT"
	case StatusInTransitTo:
		return "IN_TRANSIT_TO"
	default:
		return "UNKNOWN"
	}
}

func (s VehicleStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *VehicleStatus) UnmarshalText(text []byte) error {
	switch strings.ToUpper(string(text)) {
	case "INCOMING_AT":
		*s = StatusIncomingAt
	case "STOPPED_AT":
		*s = StatusStoppedAt
	case "IN_TRANSIT_TO":
		*s = StatusInTransitTo
	default:
		*s = StatusUnknown
	}
	return nil
}

// VehiclePosition is the latest reported state of one vehicle.
type VehiclePosition struct {
	VehicleID string        `json:"vehicle_id"`
	Label     string        `json:"label,omitempty"`
	TripID    string        `json:"trip_id,omitempty"`
	RouteID   string        `json:"route_id,omitempty"`
	StopID    string        `json:"stop_id,omitempty"`
	Latitude  *float64      `json:"lat,omitempty"`
	Longitude *float64      `json:"lon,omitempty"`
	Bearing   *float64      `json:"bearing,omitempty"`
	Speed     *float64      `json:"speed,omitempty"`
	Status    VehicleStatus `json:"current_status"`
	// Timestamp is the feed timestamp in epoch seconds, 0 when absent.
	Timestamp int64 `json:"timestamp"`
}

// StopTimeUpdate is one per-stop prediction inside a trip update. Absent
// optional fields stay nil.
type StopTimeUpdate struct {
	StopSequence   *uint32 `json:"stop_sequence,omitempty"`
	StopID         string  `json:"stop_id,omitempty"`
	ArrivalDelay   *int64  `json:"arrival_delay,omitempty"`
	ArrivalTime    *int64  `json:"arrival_time,omitempty"`
	DepartureDelay *int64  `json:"departure_delay,omitempty"`
	DepartureTime  *int64  `json:"departure_time,omitempty"`
}

// TripUpdate carries the latest predictions for one trip. StopTimeUpdates
// keep feed order and may cover only part of the trip.
type TripUpdate struct {
	TripID          string           `json:"trip_id"`
	RouteID         string           `json:"route_id,omitempty"`
	VehicleID       string           `json:"vehicle_id,omitempty"`
	Timestamp       int64            `json:"timestamp"`
	StopTimeUpdates []StopTimeUpdate `json:"stop_time_updates"`
}

// UpdateForSequence returns the stop-time update whose stop_sequence equals seq.
// Updates without a stop_sequence never match.
func (tu TripUpdate) UpdateForSequence(seq uint32) (StopTimeUpdate, bool) {
	for _, stu := range tu.StopTimeUpdates {
		if stu.StopSequence != nil && *stu.StopSequence == seq {
			return stu, true
		}
	}
	return StopTimeUpdate{}, false
}
