package domain

import "math"

const (
	earthRadiusKm = 6371.0

	// kmPerDegree approximates one degree of latitude. Used for the coarse
	// bounding box pre-filter; precise distances use HaversineKm.
	kmPerDegree = 111.0
)

// HaversineKm returns the great-circle distance in kilometers between two
// WGS-84 coordinate pairs.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLon := radians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

// BoundingBox is a coarse rectangular filter around a center point.
type BoundingBox struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// NewBoundingBox builds a box of radiusKm around a center point using the
// flat-earth degree approximation. Slightly over-inclusive; callers refine
// with HaversineKm when exact distances matter.
func NewBoundingBox(lat, lon, radiusKm float64) BoundingBox {
	delta := radiusKm / kmPerDegree
	return BoundingBox{
		MinLat: lat - delta,
		MaxLat: lat + delta,
		MinLon: lon - delta,
		MaxLon: lon + delta,
	}
}

// Contains reports whether a point falls inside the box.
func (b BoundingBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// ValidCoordinates reports whether lat/lon are in WGS-84 range.
func ValidCoordinates(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
