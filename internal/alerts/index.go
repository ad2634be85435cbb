package alerts

import "github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/realtime"

// DelayEntry is the latest arrival delay seen for a (route, stop) pair.
type DelayEntry struct {
	RouteID      string
	StopID       string
	DelaySeconds int64
}

func (d DelayEntry) Minutes() float64 {
	return float64(d.DelaySeconds) / 60.0
}

type delayKey struct {
	routeID string
	stopID  string
}

// DelayIndex maps (route, stop) to a delay, grouped by stop so each
// subscription only scans its own stop. A later write for a key replaces the
// delay but keeps the key's original position, so iteration order depends
// only on the order of the input.
type DelayIndex struct {
	entries []DelayEntry
	byKey   map[delayKey]int
	byStop  map[string][]int
}

func NewDelayIndex() *DelayIndex {
	return &DelayIndex{
		byKey:  make(map[delayKey]int),
		byStop: make(map[string][]int),
	}
}

// BuildDelayIndex indexes every stop-time update that carries an arrival delay.
func BuildDelayIndex(updates []realtime.TripUpdate) *DelayIndex {
	ix := NewDelayIndex()
	for _, tu := range updates {
		for _, stu := range tu.StopTimeUpdates {
			if stu.StopID == "" || stu.ArrivalDelay == nil {
				continue
			}
			ix.Put(tu.RouteID, stu.StopID, *stu.ArrivalDelay)
		}
	}
	return ix
}

// Put records delaySeconds for (routeID, stopID); last write wins.
func (ix *DelayIndex) Put(routeID, stopID string, delaySeconds int64) {
	key := delayKey{routeID: routeID, stopID: stopID}
	if i, ok := ix.byKey[key]; ok {
		ix.entries[i].DelaySeconds = delaySeconds
		return
	}
	ix.entries = append(ix.entries, DelayEntry{RouteID: routeID, StopID: stopID, DelaySeconds: delaySeconds})
	i := len(ix.entries) - 1
	ix.byKey[key] = i
	ix.byStop[stopID] = append(ix.byStop[stopID], i)
}

func (ix *DelayIndex) Delay(routeID, stopID string) (int64, bool) {
	i, ok := ix.byKey[delayKey{routeID: routeID, stopID: stopID}]
	if !ok {
		return 0, false
	}
	return ix.entries[i].DelaySeconds, true
}

// ForStop returns the entries for stopID in first-seen order.
func (ix *DelayIndex) ForStop(stopID string) []DelayEntry {
	positions := ix.byStop[stopID]
	out := make([]DelayEntry, 0, len(positions))
	for _, i := range positions {
		out = append(out, ix.entries[i])
	}
	return out
}

func (ix *DelayIndex) Len() int {
	return len(ix.entries)
}
