package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// llaToECEF is the forward WGS-84 transform, used to build round-trip
// fixtures for ECEFToLLA.
func llaToECEF(lat, lon, height float64) (x, y, z float64) {
	latR, lonR := deg2rad(lat), deg2rad(lon)
	sinLat, cosLat := math.Sin(latR), math.Cos(latR)
	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
	x = (n + height) * cosLat * math.Cos(lonR)
	y = (n + height) * cosLat * math.Sin(lonR)
	z = (n*(1-wgs84E2) + height) * sinLat
	return
}

func TestECEFToLLAEquator(t *testing.T) {
	lat, lon, height := ECEFToLLA(wgs84A, 0, 0)
	assert.InDelta(t, 0.0, lat, 1e-9)
	assert.InDelta(t, 0.0, lon, 1e-9)
	assert.InDelta(t, 0.0, height, 1e-6)
}

func TestECEFToLLAPolarAxis(t *testing.T) {
	lat, _, height := ECEFToLLA(0, 0, wgs84B+100)
	assert.InDelta(t, 90.0, lat, 1e-9)
	assert.InDelta(t, 100.0, height, 1e-6)

	lat, _, _ = ECEFToLLA(0, 0, -wgs84B)
	assert.InDelta(t, -90.0, lat, 1e-9)
}

func TestECEFToLLARoundTrip(t *testing.T) {
	cases := []struct {
		name             string
		lat, lon, height float64
	}{
		{"beijing", 39.9042, 116.4074, 55.0},
		{"sydney", -33.8688, 151.2093, 20.0},
		{"reykjavik", 64.1466, -21.9426, 15.0},
		{"quito", -0.1807, -78.4678, 2850.0},
		{"high alt", 45.0, 90.0, 20000.0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			x, y, z := llaToECEF(c.lat, c.lon, c.height)
			lat, lon, height := ECEFToLLA(x, y, z)
			assert.InDelta(t, c.lat, lat, 1e-8)
			assert.InDelta(t, c.lon, lon, 1e-8)
			assert.InDelta(t, c.height, height, 1e-3)
		})
	}
}

func TestCountryAlpha3(t *testing.T) {
	assert.Equal(t, "CHN", CountryAlpha3("CN"))
	assert.Equal(t, "USA", CountryAlpha3("US"))
	assert.Equal(t, "DEU", CountryAlpha3("DE"))
	// Unknown codes pass through unchanged.
	assert.Equal(t, "XX", CountryAlpha3("XX"))
	assert.Equal(t, "", CountryAlpha3(""))
}

func TestReverseGeocode(t *testing.T) {
	country, name, err := ReverseGeocode(39.9042, 116.4074)
	require.NoError(t, err)
	assert.Equal(t, "CN", country)
	assert.Equal(t, "Beijing", name)

	// A point near but not on a gazetteer entry still resolves.
	country, name, err = ReverseGeocode(40.1, 116.2)
	require.NoError(t, err)
	assert.Equal(t, "CN", country)
	assert.Equal(t, "Beijing", name)

	// Middle of the southern Pacific: nothing within range.
	_, _, err = ReverseGeocode(-45.0, -130.0)
	assert.ErrorIs(t, err, ErrNoMatch)
}
