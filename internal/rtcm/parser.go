package rtcm

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/go-gnss/ntripcaster/internal/geo"
)

// Result is everything the parser learned about a mount's stream. The
// registry folds it into the mount's STR line.
type Result struct {
	Mount string

	HasPosition bool
	StationID   uint16
	Lat         float64
	Lon         float64
	Height      float64
	City        string
	CountryISO3 string

	AntennaDescriptor string
	ReceiverType      string
	Firmware          string

	// "1005(1),1074(1)" style histogram, ids ascending, frequency in
	// messages per second.
	MessageTypes string
	GNSS         string // "GPS+GLO"
	Carriers     string // "L1+L2"
	BitrateBPS   float64
}

// Config controls one parser run.
type Config struct {
	Mount  string
	Source io.ReadCloser

	// Duration bounds the whole run; Warmup delays bitrate accounting so
	// the ring buffer's replayed history doesn't inflate it; OnUpdate,
	// when set, receives an intermediate Result every StatsInterval.
	Duration      time.Duration
	Warmup        time.Duration
	StatsInterval time.Duration

	Geocoder geo.Geocoder
	Logger   logrus.FieldLogger
	OnUpdate func(Result)
}

const (
	DefaultDuration      = 30 * time.Second
	DefaultWarmup        = 5 * time.Second
	DefaultStatsInterval = 10 * time.Second
)

// Run consumes cfg.Source until the duration elapses or the source
// closes, and returns the accumulated Result. It closes the source on
// exit. Run blocks; callers wanting concurrency spawn it themselves.
func Run(cfg Config) Result {
	if cfg.Duration <= 0 {
		cfg.Duration = DefaultDuration
	}
	if cfg.Warmup <= 0 {
		cfg.Warmup = DefaultWarmup
	}
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = DefaultStatsInterval
	}
	if cfg.Geocoder == nil {
		cfg.Geocoder = geo.ReverseGeocode
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("mount", cfg.Mount)

	p := &parser{cfg: cfg, log: log, start: time.Now()}

	// A blocked Read must not outlive the window.
	stop := time.AfterFunc(cfg.Duration, func() { cfg.Source.Close() })
	defer stop.Stop()
	defer cfg.Source.Close()

	var scanner FrameScanner
	buf := make([]byte, 4096)
	for time.Since(p.start) < cfg.Duration {
		n, err := cfg.Source.Read(buf)
		if n > 0 {
			p.observe(scanner.Scan(buf[:n]), n)
		}
		if err != nil {
			if err != io.EOF {
				log.WithError(err).Debug("parser source closed")
			}
			break
		}
	}

	res := p.snapshot(true)
	log.WithFields(logrus.Fields{
		"position": res.HasPosition,
		"gnss":     res.GNSS,
		"bitrate":  res.BitrateBPS,
	}).Info("rtcm parse window finished")
	return res
}

type parser struct {
	cfg   Config
	log   logrus.FieldLogger
	start time.Time

	position *AntennaPosition
	device   *DeviceInfo

	types    map[int]int64
	gnss     map[string]struct{}
	carriers map[string]struct{}

	warmupDone  bool
	windowStart time.Time
	windowBytes int64
	bitrate     float64
	lastStats   time.Time
}

func (p *parser) observe(frames [][]byte, rawBytes int) {
	now := time.Now()

	if !p.warmupDone && now.Sub(p.start) >= p.cfg.Warmup {
		p.warmupDone = true
		p.windowStart = now
		p.lastStats = now
	}
	if p.warmupDone {
		p.windowBytes += int64(rawBytes)
	}

	for _, frame := range frames {
		id := MessageID(frame)
		if id == 0 {
			continue
		}
		if p.types == nil {
			p.types = make(map[int]int64)
			p.gnss = make(map[string]struct{})
			p.carriers = make(map[string]struct{})
		}
		p.types[id]++

		if gnss, bands, ok := SignalInfo(id); ok {
			p.gnss[gnss] = struct{}{}
			for _, b := range bands {
				p.carriers[b] = struct{}{}
			}
		}

		switch id {
		case 1005, 1006:
			if pos, ok := DecodeAntennaPosition(payload(frame)); ok {
				p.position = &pos
			}
		case 1033:
			if dev, ok := DecodeDeviceInfo(payload(frame)); ok {
				p.device = &dev
			}
		}
	}

	if p.warmupDone && now.Sub(p.lastStats) >= p.cfg.StatsInterval {
		elapsed := now.Sub(p.windowStart).Seconds()
		if elapsed >= 1 {
			p.bitrate = float64(p.windowBytes) * 8 / elapsed
			p.windowBytes = 0
			p.windowStart = now
		}
		p.lastStats = now
		if p.cfg.OnUpdate != nil {
			p.cfg.OnUpdate(p.snapshot(false))
		}
	}
}

// snapshot assembles a Result from the accumulated state. final also
// flushes a pending bitrate window.
func (p *parser) snapshot(final bool) Result {
	res := Result{Mount: p.cfg.Mount, BitrateBPS: p.bitrate}

	if final && p.warmupDone {
		elapsed := time.Since(p.windowStart).Seconds()
		if elapsed >= 1 && p.windowBytes > 0 {
			res.BitrateBPS = float64(p.windowBytes) * 8 / elapsed
		}
	}

	if p.position != nil {
		res.HasPosition = true
		res.StationID = p.position.StationID
		res.Lat, res.Lon, res.Height = geo.ECEFToLLA(p.position.X, p.position.Y, p.position.Z)

		if alpha2, city, err := p.cfg.Geocoder(res.Lat, res.Lon); err == nil {
			res.City = city
			res.CountryISO3 = geo.CountryAlpha3(alpha2)
		} else {
			p.log.WithError(err).Debug("reverse geocode failed")
		}
	}

	if p.device != nil {
		res.AntennaDescriptor = p.device.AntennaDescriptor
		res.ReceiverType = p.device.ReceiverType
		res.Firmware = p.device.Firmware
	}

	res.MessageTypes = p.formatTypes()
	res.GNSS = joinSorted(p.gnss)
	res.Carriers = joinSorted(p.carriers)
	return res
}

// formatTypes renders "id(freq),..." with ids ascending and freq in
// messages per second over the observed window, floored at 1.
func (p *parser) formatTypes() string {
	if len(p.types) == 0 {
		return ""
	}
	elapsed := time.Since(p.start).Seconds()
	if elapsed < 1 {
		elapsed = 1
	}

	ids := make([]int, 0, len(p.types))
	for id := range p.types {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		freq := math.Round(float64(p.types[id]) / elapsed)
		if freq < 1 {
			freq = 1
		}
		parts = append(parts, fmt.Sprintf("%d(%d)", id, int(freq)))
	}
	return strings.Join(parts, ",")
}

func joinSorted(set map[string]struct{}) string {
	if len(set) == 0 {
		return ""
	}
	vals := make([]string, 0, len(set))
	for v := range set {
		vals = append(vals, v)
	}
	sort.Strings(vals)
	return strings.Join(vals, "+")
}
