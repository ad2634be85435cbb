// Package feedtest builds GTFS-RT protobuf payloads and serves them over
// httptest for tests of the feed client and its consumers.
package feedtest

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	gtfsrt "github.com/OneBusAway/go-gtfs/proto"
	"github.com/klauspost/compress/gzip"
	"google.golang.org/protobuf/proto"
)

// Stop is one stop-time update. A nil Sequence or Delay is omitted from the message.
type Stop struct {
	Sequence *uint32
	StopID   string
	Delay    *int32
}

// Seq and Delay are shorthands for the optional Stop fields.
func Seq(n uint32) *uint32 { return &n }
func Delay(s int32) *int32 { return &s }

type TripUpdate struct {
	TripID    string
	RouteID   string
	VehicleID string
	// Timestamp is the trip update's own measurement time; zero omits it.
	Timestamp time.Time
	Stops     []Stop
}

type Vehicle struct {
	ID        string
	TripID    string
	RouteID   string
	StopID    string
	Lat, Lon  float32
	Status    *gtfsrt.VehiclePosition_VehicleStopStatus
	Timestamp time.Time
}

func header(ts time.Time) *gtfsrt.FeedHeader {
	return &gtfsrt.FeedHeader{
		GtfsRealtimeVersion: proto.String("2.0"),
		Incrementality:      gtfsrt.FeedHeader_FULL_DATASET.Enum(),
		Timestamp:           proto.Uint64(uint64(ts.Unix())),
	}
}

// TripUpdatesFeed encodes a trip-updates FeedMessage. It panics on a marshal error.
func TripUpdatesFeed(ts time.Time, updates ...TripUpdate) []byte {
	return CombinedFeed(ts, updates, nil)
}

// VehiclePositionsFeed encodes a vehicle-positions FeedMessage. A vehicle
// with an empty ID is encoded without a vehicle descriptor.
func VehiclePositionsFeed(ts time.Time, vehicles ...Vehicle) []byte {
	return CombinedFeed(ts, nil, vehicles)
}

// CombinedFeed encodes one FeedMessage carrying both entity kinds, as some
// agencies serve from a single endpoint.
func CombinedFeed(ts time.Time, updates []TripUpdate, vehicles []Vehicle) []byte {
	msg := &gtfsrt.FeedMessage{Header: header(ts)}
	for _, u := range updates {
		msg.Entity = append(msg.Entity, &gtfsrt.FeedEntity{
			Id:         proto.String("tu-" + u.TripID),
			TripUpdate: tripUpdate(u),
		})
	}
	for i, v := range vehicles {
		msg.Entity = append(msg.Entity, &gtfsrt.FeedEntity{
			Id:      proto.String("vp-" + strconv.Itoa(i)),
			Vehicle: vehiclePosition(v),
		})
	}
	return mustMarshal(msg)
}

func tripUpdate(u TripUpdate) *gtfsrt.TripUpdate {
	tu := &gtfsrt.TripUpdate{
		Trip: &gtfsrt.TripDescriptor{TripId: proto.String(u.TripID)},
	}
	if u.RouteID != "" {
		tu.Trip.RouteId = proto.String(u.RouteID)
	}
	if u.VehicleID != "" {
		tu.Vehicle = &gtfsrt.VehicleDescriptor{Id: proto.String(u.VehicleID)}
	}
	if !u.Timestamp.IsZero() {
		tu.Timestamp = proto.Uint64(uint64(u.Timestamp.Unix()))
	}
	for _, s := range u.Stops {
		stu := &gtfsrt.TripUpdate_StopTimeUpdate{StopSequence: s.Sequence}
		if s.StopID != "" {
			stu.StopId = proto.String(s.StopID)
		}
		if s.Delay != nil {
			stu.Arrival = &gtfsrt.TripUpdate_StopTimeEvent{Delay: s.Delay}
		}
		tu.StopTimeUpdate = append(tu.StopTimeUpdate, stu)
	}
	return tu
}

func vehiclePosition(v Vehicle) *gtfsrt.VehiclePosition {
	vp := &gtfsrt.VehiclePosition{
		Position: &gtfsrt.Position{
			Latitude:  proto.Float32(v.Lat),
			Longitude: proto.Float32(v.Lon),
		},
		CurrentStatus: v.Status,
	}
	if v.ID != "" {
		vp.Vehicle = &gtfsrt.VehicleDescriptor{Id: proto.String(v.ID)}
	}
	if v.TripID != "" {
		vp.Trip = &gtfsrt.TripDescriptor{TripId: proto.String(v.TripID)}
		if v.RouteID != "" {
			vp.Trip.RouteId = proto.String(v.RouteID)
		}
	}
	if v.StopID != "" {
		vp.StopId = proto.String(v.StopID)
	}
	if !v.Timestamp.IsZero() {
		vp.Timestamp = proto.Uint64(uint64(v.Timestamp.Unix()))
	}
	return vp
}

func mustMarshal(msg proto.Message) []byte {
	data, err := proto.Marshal(msg)
	if err != nil {
		panic(err)
	}
	return data
}

// Gzip compresses payload as a Content-Encoding: gzip body would be.
func Gzip(payload []byte) []byte {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(payload); err != nil {
		panic(err)
	}
	if err := w.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// Server is an httptest server whose response can be changed between fetches.
type Server struct {
	*httptest.Server

	mu      sync.Mutex
	status  int
	payload []byte
	gzip    bool
	delay   time.Duration
	headers http.Header

	hits atomic.Int64
}

// NewServer starts a server answering 200 with an empty body. Close it when done.
func NewServer() *Server {
	s := &Server{status: http.StatusOK}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	s.hits.Add(1)

	s.mu.Lock()
	status, payload, gz, delay := s.status, s.payload, s.gzip, s.delay
	s.headers = r.Header.Clone()
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	w.Header().Set("Content-Type", "application/x-protobuf")
	if gz {
		w.Header().Set("Content-Encoding", "gzip")
		payload = Gzip(payload)
	}
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

func (s *Server) SetPayload(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payload = payload
}

func (s *Server) SetStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

func (s *Server) SetGzip(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gzip = enabled
}

// SetDelay holds every response for d, or until the client gives up.
func (s *Server) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// LastHeaders returns the request headers of the most recent fetch.
func (s *Server) LastHeaders() http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.headers
}

func (s *Server) Hits() int64 {
	return s.hits.Load()
}
