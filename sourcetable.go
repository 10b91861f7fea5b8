package ntrip

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/go-gnss/ntripcaster/internal/rtcm"
)

// SourcetableConfig carries the caster-level values baked into STR
// defaults and the NET footer.
type SourcetableConfig struct {
	Host      string
	Port      int
	Author    string
	Website   string
	Contact   string
	Country   string // ISO 3166 alpha-3
	Latitude  float64
	Longitude float64

	// FilePath, when set, receives a copy of the table on each rebuild.
	FilePath string
}

// Sourcetable caches the rendered table so GET / is served without
// touching the registry.
type Sourcetable struct {
	cfg SourcetableConfig
	log logrus.FieldLogger

	mu   sync.RWMutex
	body string
}

func NewSourcetable(cfg SourcetableConfig, logger logrus.FieldLogger) *Sourcetable {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Sourcetable{cfg: cfg, log: logger.WithField("component", "sourcetable")}
	s.Rebuild(nil)
	return s
}

// Rebuild rerenders the table from the given STR lines and persists it.
func (s *Sourcetable) Rebuild(strLines []string) {
	var b strings.Builder
	for _, line := range strLines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString(s.netLine())
	b.WriteByte('\n')
	b.WriteString("ENDSOURCETABLE;\n")
	body := b.String()

	s.mu.Lock()
	s.body = body
	s.mu.Unlock()

	if s.cfg.FilePath != "" {
		if err := os.WriteFile(s.cfg.FilePath, []byte(body), 0644); err != nil {
			s.log.WithError(err).Warn("failed to persist sourcetable file")
		}
	}
}

// Body returns the cached table.
func (s *Sourcetable) Body() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.body
}

func (s *Sourcetable) netLine() string {
	return fmt.Sprintf("NET;%s;%s;N;N;%s;%s:%d;%s;;",
		s.cfg.Author, s.cfg.Author, s.cfg.Website, s.cfg.Host, s.cfg.Port, s.cfg.Contact)
}

// STR field indexes within the 19-field record (field 0 is the "STR"
// tag itself).
const (
	strIdentifier    = 2
	strFormatDetails = 4
	strCarrier       = 5
	strNavSystem     = 6
	strCountry       = 8
	strLatitude      = 9
	strLongitude     = 10
	strBitrate       = 17
	strMisc          = 18
)

// InitialSTRLine renders the provisional STR record for a mount that
// just came online, before the stream parser has seen any data.
func InitialSTRLine(mount, agent string, cfg SourcetableConfig) string {
	if agent == "" {
		agent = "unknown"
	}
	fields := []string{
		"STR",
		mount,
		"none",      // identifier
		"RTCM 3.x",  // format
		"1005(1)",   // format-details
		"0",         // carrier
		"GPS",       // nav-system
		cfg.Author,  // network
		cfg.Country, // country
		fmt.Sprintf("%.4f", cfg.Latitude),
		fmt.Sprintf("%.4f", cfg.Longitude),
		"0",   // nmea
		"0",   // solution
		agent, // generator
		"N",   // compression
		"B",   // authentication
		"N",   // fee
		"500", // bitrate
		"NO",  // misc: not yet verified against the stream
	}
	return strings.Join(fields, ";")
}

// FinalizeSTRLine folds a parse result into an existing STR line. A
// result without coordinates leaves the defaults in place (misc stays
// NO); otherwise the observed values replace them and misc becomes YES.
func FinalizeSTRLine(line string, res rtcm.Result) string {
	if !res.HasPosition {
		return line
	}

	fields := strings.Split(line, ";")
	if len(fields) != 19 {
		return line
	}

	if res.City != "" {
		fields[strIdentifier] = res.City
	}
	if res.MessageTypes != "" {
		fields[strFormatDetails] = res.MessageTypes
	}
	if res.Carriers != "" {
		fields[strCarrier] = res.Carriers
	}
	if res.GNSS != "" {
		fields[strNavSystem] = res.GNSS
	}
	if res.CountryISO3 != "" {
		fields[strCountry] = res.CountryISO3
	}
	fields[strLatitude] = fmt.Sprintf("%.4f", res.Lat)
	fields[strLongitude] = fmt.Sprintf("%.4f", res.Lon)
	if res.BitrateBPS > 0 {
		fields[strBitrate] = fmt.Sprintf("%d", int(res.BitrateBPS))
	}
	fields[strMisc] = "YES"

	return strings.Join(fields, ";")
}
