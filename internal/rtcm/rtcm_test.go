package rtcm

import (
	"io"
	"testing"
	"time"

	crc24q "github.com/goblimey/go-crc24q/crc24q"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bitWriter builds message payloads MSB first, the mirror of getUint.
type bitWriter struct {
	bits []byte
	n    uint
}

func (w *bitWriter) put(v uint64, width uint) {
	for i := width; i > 0; i-- {
		if w.n%8 == 0 {
			w.bits = append(w.bits, 0)
		}
		bit := byte(v>>(i-1)) & 1
		w.bits[len(w.bits)-1] |= bit << (7 - w.n%8)
		w.n++
	}
}

func (w *bitWriter) putInt(v int64, width uint) {
	w.put(uint64(v)&((1<<width)-1), width)
}

// frame wraps a payload in the 0xd3 header and CRC24Q trailer.
func frame(payload []byte) []byte {
	f := []byte{0xd3, byte(len(payload) >> 8 & 0x03), byte(len(payload))}
	f = append(f, payload...)
	crc := crc24q.Hash(f)
	return append(f, crc24q.HiByte(crc), crc24q.MiByte(crc), crc24q.LoByte(crc))
}

// Beijing at 55 m, in 0.1 mm ECEF units.
const (
	beijingX = -21790925668
	beijingY = 43883303165
	beijingZ = 40698667053
)

func position1005(stationID uint64) []byte {
	var w bitWriter
	w.put(1005, 12)
	w.put(stationID, 12)
	w.put(0, 6) // ITRF year
	w.put(0, 4)
	w.putInt(beijingX, 38)
	w.put(0, 2)
	w.putInt(beijingY, 38)
	w.put(0, 2)
	w.putInt(beijingZ, 38)
	return w.bits
}

func device1033(antenna, receiver, firmware string) []byte {
	var w bitWriter
	w.put(1033, 12)
	w.put(42, 12)
	putStr := func(s string) {
		w.put(uint64(len(s)), 8)
		for _, c := range []byte(s) {
			w.put(uint64(c), 8)
		}
	}
	putStr(antenna)
	w.put(0, 8) // setup id
	putStr("ANT-SN-1")
	putStr(receiver)
	putStr(firmware)
	putStr("RCV-SN-1")
	return w.bits
}

func TestFrameScannerReassemblesSplitFrames(t *testing.T) {
	f1 := frame(position1005(100))
	f2 := frame(device1033("TRM59800.00", "TRIMBLE NETR9", "5.45"))
	stream := append(append([]byte{}, f1...), f2...)

	var s FrameScanner
	var got [][]byte
	// Feed one byte at a time.
	for _, b := range stream {
		got = append(got, s.Scan([]byte{b})...)
	}

	require.Len(t, got, 2)
	assert.Equal(t, f1, got[0])
	assert.Equal(t, f2, got[1])
	assert.Equal(t, 1005, MessageID(got[0]))
	assert.Equal(t, 1033, MessageID(got[1]))
}

func TestFrameScannerResyncsAfterGarbage(t *testing.T) {
	f := frame(position1005(7))
	// Garbage including a false 0xd3 preamble ahead of the real frame.
	stream := append([]byte{0x00, 0xd3, 0x01, 0x02, 0xff}, f...)

	var s FrameScanner
	got := s.Scan(stream)
	require.Len(t, got, 1)
	assert.Equal(t, f, got[0])
}

func TestFrameScannerSkipsStarvedFalsePreamble(t *testing.T) {
	f := frame(position1005(7))

	// A false preamble announcing 258 payload bytes that never arrive
	// must not hold up the real frame behind it.
	var s FrameScanner
	assert.Empty(t, s.Scan([]byte{0xd3, 0x01, 0x02, 0xaa}))

	got := s.Scan(f)
	require.Len(t, got, 1)
	assert.Equal(t, f, got[0])
}

func TestFrameScannerRejectsBadCRC(t *testing.T) {
	f := frame(position1005(7))
	f[len(f)-1] ^= 0xff

	var s FrameScanner
	assert.Empty(t, s.Scan(f))
}

func TestDecodeAntennaPosition(t *testing.T) {
	pos, ok := DecodeAntennaPosition(position1005(2319))
	require.True(t, ok)
	assert.Equal(t, uint16(2319), pos.StationID)
	assert.InDelta(t, -2179092.5668, pos.X, 1e-4)
	assert.InDelta(t, 4388330.3165, pos.Y, 1e-4)
	assert.InDelta(t, 4069866.7053, pos.Z, 1e-4)

	_, ok = DecodeAntennaPosition([]byte{0x3e, 0xd0})
	assert.False(t, ok)
}

func TestDecodeDeviceInfo(t *testing.T) {
	info, ok := DecodeDeviceInfo(device1033("TRM59800.00", "TRIMBLE NETR9", "5.45"))
	require.True(t, ok)
	assert.Equal(t, uint16(42), info.StationID)
	assert.Equal(t, "TRM59800.00", info.AntennaDescriptor)
	assert.Equal(t, "ANT-SN-1", info.AntennaSerial)
	assert.Equal(t, "TRIMBLE NETR9", info.ReceiverType)
	assert.Equal(t, "5.45", info.Firmware)
	assert.Equal(t, "RCV-SN-1", info.ReceiverSerial)

	// Truncated counted string.
	p := device1033("TRM59800.00", "TRIMBLE NETR9", "5.45")
	_, ok = DecodeDeviceInfo(p[:len(p)-4])
	assert.False(t, ok)
}

func TestSignalInfo(t *testing.T) {
	gnss, bands, ok := SignalInfo(1077)
	require.True(t, ok)
	assert.Equal(t, "GPS", gnss)
	assert.Equal(t, []string{"L1", "L2", "L5"}, bands)

	gnss, bands, ok = SignalInfo(1087)
	require.True(t, ok)
	assert.Equal(t, "GLO", gnss)
	assert.Equal(t, []string{"G1", "G2", "G3"}, bands)

	_, _, ok = SignalInfo(1005)
	assert.False(t, ok)
}

func TestRunExtractsMetadata(t *testing.T) {
	pr, pw := io.Pipe()

	go func() {
		defer pw.Close()
		pw.Write(frame(position1005(2319)))
		pw.Write(frame(device1033("TRM59800.00", "TRIMBLE NETR9", "5.45")))
		// MSM traffic on two constellations.
		var w bitWriter
		w.put(1074, 12)
		w.put(2319, 12)
		pw.Write(frame(w.bits))
		var w2 bitWriter
		w2.put(1084, 12)
		w2.put(2319, 12)
		pw.Write(frame(w2.bits))
	}()

	res := Run(Config{
		Mount:    "BJFS00",
		Source:   pr,
		Duration: 2 * time.Second,
		Warmup:   time.Millisecond,
	})

	assert.Equal(t, "BJFS00", res.Mount)
	require.True(t, res.HasPosition)
	assert.Equal(t, uint16(2319), res.StationID)
	assert.InDelta(t, 39.9042, res.Lat, 1e-4)
	assert.InDelta(t, 116.4074, res.Lon, 1e-4)
	assert.InDelta(t, 55.0, res.Height, 0.5)
	assert.Equal(t, "Beijing", res.City)
	assert.Equal(t, "CHN", res.CountryISO3)
	assert.Equal(t, "TRIMBLE NETR9", res.ReceiverType)
	assert.Equal(t, "GLO+GPS", res.GNSS)
	assert.Equal(t, "G3+L5", res.Carriers)
	assert.Equal(t, "1005(1),1033(1),1074(1),1084(1)", res.MessageTypes)
}

func TestRunWithoutPositionKeepsDefaults(t *testing.T) {
	pr, pw := io.Pipe()
	go pw.Close()

	res := Run(Config{
		Mount:    "EMPTY",
		Source:   pr,
		Duration: time.Second,
	})

	assert.False(t, res.HasPosition)
	assert.Empty(t, res.City)
	assert.Empty(t, res.CountryISO3)
	assert.Empty(t, res.MessageTypes)
}
