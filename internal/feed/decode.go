package feed

import (
	"time"

	"github.com/OneBusAway/go-gtfs"
	gtfsrt "github.com/OneBusAway/go-gtfs/proto"
	"google.golang.org/protobuf/proto"

	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/realtime"
)

// Message is one decoded feed snapshot. Only the slice matching Endpoint is populated.
type Message struct {
	Endpoint    Endpoint
	CreatedAt   time.Time
	Vehicles    []realtime.VehiclePosition
	TripUpdates []realtime.TripUpdate
}

func (m *Message) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Vehicles) + len(m.TripUpdates)
}

// Decode parses a GTFS-RT protobuf payload. Entities missing their identity
// are skipped; missing optional fields are left nil.
func Decode(ep Endpoint, body []byte) (*Message, error) {
	rt, err := gtfs.ParseRealtime(body, &gtfs.ParseRealtimeOptions{})
	if err != nil {
		return nil, err
	}

	msg := &Message{Endpoint: ep, CreatedAt: rt.CreatedAt}
	switch ep {
	case VehiclePositions:
		msg.Vehicles = make([]realtime.VehiclePosition, 0, len(rt.Vehicles))
		for i := range rt.Vehicles {
			if vp, ok := convertVehicle(&rt.Vehicles[i]); ok {
				msg.Vehicles = append(msg.Vehicles, vp)
			}
		}
	case TripUpdates:
		stamps := tripTimestamps(body)
		msg.TripUpdates = make([]realtime.TripUpdate, 0, len(rt.Trips))
		for i := range rt.Trips {
			if tu, ok := convertTrip(&rt.Trips[i], rt.CreatedAt); ok {
				if ts, found := stamps[tu.TripID]; found {
					tu.Timestamp = ts
				}
				msg.TripUpdates = append(msg.TripUpdates, tu)
			}
		}
	}
	return msg, nil
}

func convertVehicle(v *gtfs.Vehicle) (realtime.VehiclePosition, bool) {
	if v.ID == nil || v.ID.ID == "" {
		return realtime.VehiclePosition{}, false
	}

	vp := realtime.VehiclePosition{
		VehicleID: v.ID.ID,
		Label:     v.ID.Label,
		Status:    realtime.StatusUnknown,
	}
	if v.Trip != nil {
		vp.TripID = v.Trip.ID.ID
		vp.RouteID = v.Trip.ID.RouteID
	}
	if v.StopID != nil {
		vp.StopID = *v.StopID
	}
	if p := v.Position; p != nil {
		vp.Latitude = widen(p.Latitude)
		vp.Longitude = widen(p.Longitude)
		vp.Bearing = widen(p.Bearing)
		vp.Speed = widen(p.Speed)
	}
	if v.CurrentStatus != nil {
		vp.Status = vehicleStatus(int(*v.CurrentStatus))
	}
	if v.Timestamp != nil {
		vp.Timestamp = v.Timestamp.Unix()
	}
	return vp, true
}

func vehicleStatus(code int) realtime.VehicleStatus {
	switch code {
	case 0:
		return realtime.StatusIncomingAt
	case 1:
		return realtime.StatusStoppedAt
	case 2:
		return realtime.StatusInTransitTo
	default:
		return realtime.StatusUnknown
	}
}

// tripTimestamps reads TripUpdate.timestamp, which the parsed model drops,
// keyed by trip id. Unset timestamps are left out.
func tripTimestamps(body []byte) map[string]int64 {
	var fm gtfsrt.FeedMessage
	if err := proto.Unmarshal(body, &fm); err != nil {
		return nil
	}
	stamps := make(map[string]int64)
	for _, e := range fm.GetEntity() {
		tu := e.GetTripUpdate()
		if id := tu.GetTrip().GetTripId(); id != "" && tu.GetTimestamp() > 0 {
			stamps[id] = int64(tu.GetTimestamp())
		}
	}
	return stamps
}

// convertTrip skips trips that are only referenced by another entity, such
// as a vehicle position's trip in a combined feed.
func convertTrip(t *gtfs.Trip, createdAt time.Time) (realtime.TripUpdate, bool) {
	if !t.IsEntityInMessage || t.ID.ID == "" {
		return realtime.TripUpdate{}, false
	}

	tu := realtime.TripUpdate{
		TripID:          t.ID.ID,
		RouteID:         t.ID.RouteID,
		StopTimeUpdates: make([]realtime.StopTimeUpdate, 0, len(t.StopTimeUpdates)),
	}
	if !createdAt.IsZero() {
		tu.Timestamp = createdAt.Unix()
	}
	if t.Vehicle != nil {
		if t.Vehicle.ID != nil {
			tu.VehicleID = t.Vehicle.ID.ID
		}
		if t.Vehicle.Timestamp != nil {
			tu.Timestamp = t.Vehicle.Timestamp.Unix()
		}
	}

	for i := range t.StopTimeUpdates {
		stu := &t.StopTimeUpdates[i]
		out := realtime.StopTimeUpdate{}
		if stu.StopSequence != nil {
			s := *stu.StopSequence
			out.StopSequence = &s
		}
		if stu.StopID != nil {
			out.StopID = *stu.StopID
		}
		if stu.Arrival != nil {
			out.ArrivalDelay = delaySeconds(stu.Arrival.Delay)
			out.ArrivalTime = epochSeconds(stu.Arrival.Time)
		}
		if stu.Departure != nil {
			out.DepartureDelay = delaySeconds(stu.Departure.Delay)
			out.DepartureTime = epochSeconds(stu.Departure.Time)
		}
		tu.StopTimeUpdates = append(tu.StopTimeUpdates, out)
	}
	return tu, true
}

func widen(f *float32) *float64 {
	if f == nil {
		return nil
	}
	v := float64(*f)
	return &v
}

func delaySeconds(d *time.Duration) *int64 {
	if d == nil {
		return nil
	}
	s := int64(d.Seconds())
	return &s
}

func epochSeconds(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	s := t.Unix()
	return &s
}
