// Package geo has the distance helpers behind the nearby-vehicle filter.
package geo

import "math"

// EarthRadiusMeters is the mean Earth radius.
const EarthRadiusMeters = 6371010.0

// Bounds is a latitude/longitude box.
type Bounds struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

func (b Bounds) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

// Distance returns the great-circle distance in meters. Points less than
// 0.2 degrees apart use the equirectangular approximation.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	if math.Abs(lat2-lat1) < 0.2 && math.Abs(lon2-lon1) < 0.2 {
		x := radians(lon2-lon1) * math.Cos(radians(lat1+lat2)/2)
		y := radians(lat2 - lat1)
		return EarthRadiusMeters * math.Hypot(x, y)
	}

	phi1, phi2 := radians(lat1), radians(lat2)
	dLambda := radians(lon2 - lon1)

	y := math.Hypot(
		math.Cos(phi2)*math.Sin(dLambda),
		math.Cos(phi1)*math.Sin(phi2)-math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLambda),
	)
	x := math.Sin(phi1)*math.Sin(phi2) + math.Cos(phi1)*math.Cos(phi2)*math.Cos(dLambda)
	return EarthRadiusMeters * math.Atan2(y, x)
}

// BoundsAround returns the box enclosing the circle of radius meters around
// the point. It is a cheap prefilter before Distance.
func BoundsAround(lat, lon, radius float64) Bounds {
	latOffset := radius / EarthRadiusMeters * 180 / math.Pi
	lonOffset := radius / (EarthRadiusMeters * math.Cos(radians(lat))) * 180 / math.Pi
	return Bounds{
		MinLat: lat - latOffset,
		MaxLat: lat + latOffset,
		MinLon: lon - lonOffset,
		MaxLon: lon + lonOffset,
	}
}

// Circle is a search area.
type Circle struct {
	Lat, Lon float64
	Radius   float64
	bounds   Bounds
}

func NewCircle(lat, lon, radius float64) Circle {
	return Circle{Lat: lat, Lon: lon, Radius: radius, bounds: BoundsAround(lat, lon, radius)}
}

func (c Circle) Contains(lat, lon float64) bool {
	if !c.bounds.Contains(lat, lon) {
		return false
	}
	return Distance(c.Lat, c.Lon, lat, lon) <= c.Radius
}
