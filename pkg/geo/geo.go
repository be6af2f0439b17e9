// Package geo provides great-circle math for aircraft proximity work.
//
// All distances are in nautical miles on a spherical Earth of radius
// 3440.065 NM, which matches what aviation consumers of the published
// snapshots expect.
package geo

import "math"

const (
	// EarthRadiusNM is the Earth's mean radius in nautical miles.
	EarthRadiusNM = 3440.065

	// DegreesToRadians converts degrees to radians
	DegreesToRadians = math.Pi / 180.0

	// RadiansToDegrees converts radians to degrees
	RadiansToDegrees = 180.0 / math.Pi
)

// Point is a position on Earth's surface in the WGS84 coordinate system.
type Point struct {
	// Latitude in decimal degrees (-90 to +90)
	Latitude float64

	// Longitude in decimal degrees (-180 to +180)
	Longitude float64
}

// BoundingBox is a lat/lon rectangle around a center point.
// Providers that take rectangular queries (OpenSky, FR24) are fed this.
type BoundingBox struct {
	North float64
	South float64
	West  float64
	East  float64
}

// DistanceNM returns the great-circle distance between p and q in
// nautical miles, computed with the haversine formula.
func DistanceNM(p, q Point) float64 {
	phi1 := p.Latitude * DegreesToRadians
	phi2 := q.Latitude * DegreesToRadians
	dPhi := (q.Latitude - p.Latitude) * DegreesToRadians
	dLambda := (q.Longitude - p.Longitude) * DegreesToRadians

	a := math.Pow(math.Sin(dPhi/2), 2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Pow(math.Sin(dLambda/2), 2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusNM * c
}

// BearingDeg returns the initial great-circle bearing from p to q,
// normalized into [0, 360). 0 = North, 90 = East.
func BearingDeg(p, q Point) float64 {
	phi1 := p.Latitude * DegreesToRadians
	phi2 := q.Latitude * DegreesToRadians
	dLambda := (q.Longitude - p.Longitude) * DegreesToRadians

	y := math.Sin(dLambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLambda)

	return math.Mod(math.Atan2(y, x)*RadiansToDegrees+360.0, 360.0)
}

// Round1 rounds to one decimal place (bearings, ETA minutes).
func Round1(v float64) float64 { return math.Round(v*10) / 10 }

// Round3 rounds to three decimal places (distances in NM).
func Round3(v float64) float64 { return math.Round(v*1000) / 1000 }

// BoxAround returns a bounding box extending radiusNM nautical miles
// from the center in each direction. One degree of latitude is 60 NM;
// the longitude delta is widened by 1/cos(lat), with cos(lat) floored
// at 0.1 so high-latitude centers do not blow up to a global box.
func BoxAround(center Point, radiusNM float64) BoundingBox {
	dLat := radiusNM / 60.0
	cosLat := math.Cos(center.Latitude * DegreesToRadians)
	if cosLat < 0.1 {
		cosLat = 0.1
	}
	dLon := radiusNM / (60.0 * cosLat)

	return BoundingBox{
		North: center.Latitude + dLat,
		South: center.Latitude - dLat,
		West:  center.Longitude - dLon,
		East:  center.Longitude + dLon,
	}
}
