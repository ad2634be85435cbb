package realtime

import (
	"sort"
	"time"

	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/cache"
)

// DefaultTTL is how long an ingested record stays visible without a refresh.
const DefaultTTL = 600 * time.Second

// Cache is the typed view of the real-time store used by ingestion, the
// arrival merge engine and the alert evaluator.
type Cache struct {
	store *cache.Store
	ttl   time.Duration
}

func NewCache(store *cache.Store, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{store: store, ttl: ttl}
}

// Store exposes the underlying key/value store for diagnostics.
func (c *Cache) Store() *cache.Store {
	return c.store
}

// StoreVehiclePositions writes all positions as one batch and returns the
// number written. Positions without a vehicle id are dropped.
func (c *Cache) StoreVehiclePositions(positions []VehiclePosition) int {
	b := c.store.NewBatch()
	for _, vp := range positions {
		if vp.VehicleID == "" {
			continue
		}
		b.Put(VehicleKey(vp.VehicleID), vp, c.ttl)
	}
	return b.Commit()
}

// StoreTripUpdates writes all trip updates as one batch and returns the
// number written. Updates without a trip id are dropped.
func (c *Cache) StoreTripUpdates(updates []TripUpdate) int {
	b := c.store.NewBatch()
	for _, tu := range updates {
		if tu.TripID == "" {
			continue
		}
		b.Put(TripUpdateKey(tu.TripID), tu, c.ttl)
	}
	return b.Commit()
}

func (c *Cache) VehiclePosition(vehicleID string) (VehiclePosition, bool) {
	v, ok := c.store.Get(VehicleKey(vehicleID))
	if !ok {
		return VehiclePosition{}, false
	}
	vp, ok := v.(VehiclePosition)
	return vp, ok
}

func (c *Cache) TripUpdate(tripID string) (TripUpdate, bool) {
	v, ok := c.store.Get(TripUpdateKey(tripID))
	if !ok {
		return TripUpdate{}, false
	}
	tu, ok := v.(TripUpdate)
	return tu, ok
}

// TripUpdatesFor returns the cached updates for the given trips from one
// consistent read, keyed by trip id. Trips without an update are absent.
func (c *Cache) TripUpdatesFor(tripIDs []string) map[string]TripUpdate {
	keys := make([]string, len(tripIDs))
	for i, id := range tripIDs {
		keys[i] = TripUpdateKey(id)
	}
	out := make(map[string]TripUpdate, len(keys))
	for _, v := range c.store.MultiGet(keys) {
		if tu, ok := v.(TripUpdate); ok {
			out[tu.TripID] = tu
		}
	}
	return out
}

// VehiclePositions returns every live position ordered by vehicle id.
func (c *Cache) VehiclePositions() []VehiclePosition {
	values := c.store.MultiGetPrefix(VehicleKeyPrefix)
	out := make([]VehiclePosition, 0, len(values))
	for _, v := range values {
		if vp, ok := v.(VehiclePosition); ok {
			out = append(out, vp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VehicleID < out[j].VehicleID })
	return out
}

// TripUpdates returns every live trip update ordered by trip id.
func (c *Cache) TripUpdates() []TripUpdate {
	values := c.store.MultiGetPrefix(TripUpdateKeyPrefix)
	out := make([]TripUpdate, 0, len(values))
	for _, v := range values {
		if tu, ok := v.(TripUpdate); ok {
			out = append(out, tu)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TripID < out[j].TripID })
	return out
}
