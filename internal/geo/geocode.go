package geo

import (
	"math"

	"github.com/pkg/errors"
)

// Geocoder resolves a coordinate to a 2-letter country code and a city
// name. The caster tolerates failure: the STR line then keeps its
// configured defaults.
type Geocoder func(lat, lon float64) (countryAlpha2, city string, err error)

// ErrNoMatch is returned when no known city is near the coordinate.
var ErrNoMatch = errors.New("no city near coordinate")

type city struct {
	name    string
	country string
	lat     float64
	lon     float64
}

// A coarse offline gazetteer of major cities. Good enough to label a base
// station's STR line without a network lookup; anything farther than
// maxCityDistanceKM from every entry is reported as no match.
var cities = []city{
	{"Beijing", "CN", 39.9042, 116.4074},
	{"Shanghai", "CN", 31.2304, 121.4737},
	{"Guangzhou", "CN", 23.1291, 113.2644},
	{"Shenzhen", "CN", 22.5431, 114.0579},
	{"Chengdu", "CN", 30.5728, 104.0668},
	{"Wuhan", "CN", 30.5928, 114.3055},
	{"Xian", "CN", 34.3416, 108.9398},
	{"Guilin", "CN", 25.2736, 110.2900},
	{"Hong Kong", "HK", 22.3193, 114.1694},
	{"Taipei", "TW", 25.0330, 121.5654},
	{"Tokyo", "JP", 35.6762, 139.6503},
	{"Osaka", "JP", 34.6937, 135.5023},
	{"Seoul", "KR", 37.5665, 126.9780},
	{"Singapore", "SG", 1.3521, 103.8198},
	{"Bangkok", "TH", 13.7563, 100.5018},
	{"Hanoi", "VN", 21.0285, 105.8542},
	{"Jakarta", "ID", -6.2088, 106.8456},
	{"Manila", "PH", 14.5995, 120.9842},
	{"Kuala Lumpur", "MY", 3.1390, 101.6869},
	{"New Delhi", "IN", 28.6139, 77.2090},
	{"Mumbai", "IN", 19.0760, 72.8777},
	{"Dhaka", "BD", 23.8103, 90.4125},
	{"Karachi", "PK", 24.8607, 67.0011},
	{"Dubai", "AE", 25.2048, 55.2708},
	{"Riyadh", "SA", 24.7136, 46.6753},
	{"Tehran", "IR", 35.6892, 51.3890},
	{"Istanbul", "TR", 41.0082, 28.9784},
	{"Moscow", "RU", 55.7558, 37.6173},
	{"Novosibirsk", "RU", 55.0084, 82.9357},
	{"Kyiv", "UA", 50.4501, 30.5234},
	{"Warsaw", "PL", 52.2297, 21.0122},
	{"Berlin", "DE", 52.5200, 13.4050},
	{"Munich", "DE", 48.1351, 11.5820},
	{"Frankfurt", "DE", 50.1109, 8.6821},
	{"Amsterdam", "NL", 52.3676, 4.9041},
	{"Brussels", "BE", 50.8503, 4.3517},
	{"Paris", "FR", 48.8566, 2.3522},
	{"London", "GB", 51.5074, -0.1278},
	{"Dublin", "IE", 53.3498, -6.2603},
	{"Madrid", "ES", 40.4168, -3.7038},
	{"Barcelona", "ES", 41.3851, 2.1734},
	{"Lisbon", "PT", 38.7223, -9.1393},
	{"Rome", "IT", 41.9028, 12.4964},
	{"Milan", "IT", 45.4642, 9.1900},
	{"Zurich", "CH", 47.3769, 8.5417},
	{"Vienna", "AT", 48.2082, 16.3738},
	{"Prague", "CZ", 50.0755, 14.4378},
	{"Stockholm", "SE", 59.3293, 18.0686},
	{"Oslo", "NO", 59.9139, 10.7522},
	{"Helsinki", "FI", 60.1699, 24.9384},
	{"Copenhagen", "DK", 55.6761, 12.5683},
	{"Athens", "GR", 37.9838, 23.7275},
	{"Cairo", "EG", 30.0444, 31.2357},
	{"Lagos", "NG", 6.5244, 3.3792},
	{"Nairobi", "KE", -1.2921, 36.8219},
	{"Johannesburg", "ZA", -26.2041, 28.0473},
	{"Cape Town", "ZA", -33.9249, 18.4241},
	{"New York", "US", 40.7128, -74.0060},
	{"Chicago", "US", 41.8781, -87.6298},
	{"Denver", "US", 39.7392, -104.9903},
	{"Los Angeles", "US", 34.0522, -118.2437},
	{"San Francisco", "US", 37.7749, -122.4194},
	{"Seattle", "US", 47.6062, -122.3321},
	{"Houston", "US", 29.7604, -95.3698},
	{"Miami", "US", 25.7617, -80.1918},
	{"Toronto", "CA", 43.6532, -79.3832},
	{"Vancouver", "CA", 49.2827, -123.1207},
	{"Mexico City", "MX", 19.4326, -99.1332},
	{"Bogota", "CO", 4.7110, -74.0721},
	{"Lima", "PE", -12.0464, -77.0428},
	{"Santiago", "CL", -33.4489, -70.6693},
	{"Buenos Aires", "AR", -34.6037, -58.3816},
	{"Sao Paulo", "BR", -23.5505, -46.6333},
	{"Rio de Janeiro", "BR", -22.9068, -43.1729},
	{"Brasilia", "BR", -15.8267, -47.9218},
	{"Sydney", "AU", -33.8688, 151.2093},
	{"Melbourne", "AU", -37.8136, 144.9631},
	{"Brisbane", "AU", -27.4698, 153.0251},
	{"Perth", "AU", -31.9505, 115.8605},
	{"Auckland", "NZ", -36.8485, 174.7633},
	{"Wellington", "NZ", -41.2866, 174.7756},
}

const maxCityDistanceKM = 500.0

// ReverseGeocode is the built-in Geocoder: nearest gazetteer city within
// maxCityDistanceKM.
func ReverseGeocode(lat, lon float64) (string, string, error) {
	best := -1
	bestDist := math.MaxFloat64
	for i, c := range cities {
		d := haversineKM(lat, lon, c.lat, c.lon)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	if best < 0 || bestDist > maxCityDistanceKM {
		return "", "", ErrNoMatch
	}
	return cities[best].country, cities[best].name, nil
}

func haversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKM = 6371.0
	dLat := deg2rad(lat2 - lat1)
	dLon := deg2rad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(deg2rad(lat1))*math.Cos(deg2rad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKM * math.Asin(math.Sqrt(a))
}
