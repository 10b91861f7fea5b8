// Package geo holds the small amount of geodesy the caster needs: the
// EPSG:4978 → EPSG:4326 transform for RTCM 1005/1006 antenna positions,
// ISO 3166 country-code mapping, and an offline reverse geocoder.
package geo

import "math"

// WGS-84 ellipsoid.
const (
	wgs84A  = 6378137.0
	wgs84F  = 1.0 / 298.257223563
	wgs84B  = wgs84A * (1 - wgs84F)
	wgs84E2 = wgs84F * (2 - wgs84F)
)

// ECEFToLLA converts Earth-Centered Earth-Fixed meters to geodetic
// latitude/longitude in degrees and ellipsoidal height in meters, using
// Bowring's method with one refinement iteration (millimeter-level for
// terrestrial points).
func ECEFToLLA(x, y, z float64) (lat, lon, height float64) {
	lon = math.Atan2(y, x)

	p := math.Hypot(x, y)
	if p == 0 {
		// On the polar axis.
		lat = math.Pi / 2
		if z < 0 {
			lat = -lat
		}
		height = math.Abs(z) - wgs84B
		return rad2deg(lat), rad2deg(lon), height
	}

	// Bowring's initial parametric latitude.
	ep2 := (wgs84A*wgs84A - wgs84B*wgs84B) / (wgs84B * wgs84B)
	theta := math.Atan2(z*wgs84A, p*wgs84B)
	sinT, cosT := math.Sin(theta), math.Cos(theta)
	lat = math.Atan2(z+ep2*wgs84B*sinT*sinT*sinT, p-wgs84E2*wgs84A*cosT*cosT*cosT)

	for i := 0; i < 2; i++ {
		sinLat := math.Sin(lat)
		n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
		height = p/math.Cos(lat) - n
		lat = math.Atan2(z, p*(1-wgs84E2*n/(n+height)))
	}

	sinLat := math.Sin(lat)
	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
	if math.Abs(math.Cos(lat)) > 1e-10 {
		height = p/math.Cos(lat) - n
	} else {
		height = math.Abs(z) - wgs84B
	}

	return rad2deg(lat), rad2deg(lon), height
}

func rad2deg(r float64) float64 { return r * 180 / math.Pi }
func deg2rad(d float64) float64 { return d * math.Pi / 180 }
