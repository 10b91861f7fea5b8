package geo

// iso2to3 maps ISO 3166-1 alpha-2 country codes to alpha-3, which is what
// sourcetable STR country fields use.
var iso2to3 = map[string]string{
	"CN": "CHN", "JP": "JPN", "KR": "KOR", "IN": "IND", "ID": "IDN", "TH": "THA",
	"VN": "VNM", "MY": "MYS", "SG": "SGP", "PH": "PHL", "BD": "BGD", "PK": "PAK",
	"LK": "LKA", "MM": "MMR", "KH": "KHM", "LA": "LAO", "BN": "BRN", "MN": "MNG",
	"KZ": "KAZ", "UZ": "UZB", "TM": "TKM", "KG": "KGZ", "TJ": "TJK", "AF": "AFG",
	"IR": "IRN", "IQ": "IRQ", "SY": "SYR", "JO": "JOR", "LB": "LBN", "IL": "ISR",
	"PS": "PSE", "SA": "SAU", "AE": "ARE", "QA": "QAT", "BH": "BHR", "KW": "KWT",
	"OM": "OMN", "YE": "YEM", "TR": "TUR", "GE": "GEO", "AM": "ARM", "AZ": "AZE",
	"CY": "CYP", "TW": "TWN", "HK": "HKG", "MO": "MAC", "BT": "BTN", "MV": "MDV",
	"NP": "NPL", "TL": "TLS", "GB": "GBR", "DE": "DEU", "FR": "FRA", "IT": "ITA",
	"ES": "ESP", "PT": "PRT", "NL": "NLD", "BE": "BEL", "CH": "CHE", "AT": "AUT",
	"SE": "SWE", "NO": "NOR", "DK": "DNK", "FI": "FIN", "IS": "ISL", "IE": "IRL",
	"LU": "LUX", "MT": "MLT", "PL": "POL", "CZ": "CZE", "SK": "SVK", "HU": "HUN",
	"SI": "SVN", "HR": "HRV", "BA": "BIH", "RS": "SRB", "ME": "MNE", "MK": "MKD",
	"AL": "ALB", "GR": "GRC", "BG": "BGR", "RO": "ROU", "MD": "MDA", "UA": "UKR",
	"BY": "BLR", "LT": "LTU", "LV": "LVA", "EE": "EST", "RU": "RUS", "AD": "AND",
	"MC": "MCO", "SM": "SMR", "VA": "VAT", "LI": "LIE", "US": "USA", "CA": "CAN",
	"MX": "MEX", "GT": "GTM", "BZ": "BLZ", "SV": "SLV", "HN": "HND", "NI": "NIC",
	"CR": "CRI", "PA": "PAN", "CU": "CUB", "JM": "JAM", "HT": "HTI", "DO": "DOM",
	"TT": "TTO", "BB": "BRB", "GD": "GRD", "VC": "VCT", "LC": "LCA", "DM": "DMA",
	"AG": "ATG", "KN": "KNA", "BS": "BHS", "BR": "BRA", "AR": "ARG", "CL": "CHL",
	"PE": "PER", "CO": "COL", "VE": "VEN", "EC": "ECU", "BO": "BOL", "PY": "PRY",
	"UY": "URY", "GY": "GUY", "SR": "SUR", "GF": "GUF", "FK": "FLK", "ZA": "ZAF",
	"EG": "EGY", "NG": "NGA", "KE": "KEN", "ET": "ETH", "GH": "GHA", "UG": "UGA",
	"TZ": "TZA", "MZ": "MOZ", "MG": "MDG", "CM": "CMR", "CI": "CIV", "NE": "NER",
	"BF": "BFA", "ML": "MLI", "MW": "MWI", "ZM": "ZMB", "ZW": "ZWE", "BW": "BWA",
	"NA": "NAM", "SZ": "SWZ", "LS": "LSO", "MU": "MUS", "SC": "SYC", "MR": "MRT",
	"SN": "SEN", "GM": "GMB", "GW": "GNB", "GN": "GIN", "SL": "SLE", "LR": "LBR",
	"TG": "TGO", "BJ": "BEN", "CV": "CPV", "ST": "STP", "GQ": "GNQ", "GA": "GAB",
	"CG": "COG", "CD": "COD", "CF": "CAF", "TD": "TCD", "LY": "LBY", "TN": "TUN",
	"DZ": "DZA", "MA": "MAR", "EH": "ESH", "SD": "SDN", "SS": "SSD", "ER": "ERI",
	"DJ": "DJI", "SO": "SOM", "RW": "RWA", "BI": "BDI", "KM": "COM", "AO": "AGO",
	"AU": "AUS", "NZ": "NZL", "FJ": "FJI", "PG": "PNG", "SB": "SLB", "NC": "NCL",
	"PF": "PYF", "VU": "VUT", "WS": "WSM", "TO": "TON", "TV": "TUV", "KI": "KIR",
	"NR": "NRU", "PW": "PLW", "FM": "FSM", "MH": "MHL", "CK": "COK", "NU": "NIU",
	"TK": "TKL", "WF": "WLF", "AS": "ASM", "GU": "GUM", "MP": "MNP", "AQ": "ATA",}

// CountryAlpha3 translates a 2-letter ISO country code to its 3-letter
// form. Unknown codes are returned unchanged.
func CountryAlpha3(alpha2 string) string {
	if a3, ok := iso2to3[alpha2]; ok {
		return a3
	}
	return alpha2
}
