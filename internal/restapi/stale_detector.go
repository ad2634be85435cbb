package restapi

import (
	"time"

	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/realtime"
)

// StaleDetector flags vehicle positions whose feed timestamp is too old to
// trust. The cache TTL bounds how long a record is served at all; a vehicle
// can still be reported by a fresh feed with an old timestamp.
type StaleDetector struct {
	threshold time.Duration
}

func NewStaleDetector() *StaleDetector {
	return &StaleDetector{threshold: 15 * time.Minute}
}

func (d *StaleDetector) WithThreshold(threshold time.Duration) *StaleDetector {
	d.threshold = threshold
	return d
}

// Check reports true when the timestamp is missing or older than the threshold.
func (d *StaleDetector) Check(v realtime.VehiclePosition, now time.Time) bool {
	if v.Timestamp == 0 {
		return true
	}
	return d.Age(v, now) > d.threshold
}

// Age is how old the position is. A missing timestamp counts as just past the
// threshold.
func (d *StaleDetector) Age(v realtime.VehiclePosition, now time.Time) time.Duration {
	if v.Timestamp == 0 {
		return d.threshold + time.Second
	}
	return now.Sub(time.Unix(v.Timestamp, 0))
}
