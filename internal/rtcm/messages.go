package rtcm

import "strings"

// DF025/26/27 are signed 38-bit integers in units of 0.0001 m.
const ecefScale = 1e-4

// AntennaPosition is the station identity and ECEF antenna reference
// point carried by messages 1005 and 1006.
type AntennaPosition struct {
	StationID uint16
	X, Y, Z   float64 // meters
}

// Field layout shared by 1005 and 1006 (1006 appends an antenna height
// field which the caster has no use for).
const (
	lenMessageType = 12
	lenStationID   = 12
	lenITRFYear    = 6
	lenFlags1      = 4
	lenECEF        = 38
	lenFlags2      = 2

	positionMessageBits = lenMessageType + lenStationID + lenITRFYear +
		lenFlags1 + lenECEF + lenFlags2 + lenECEF + lenFlags2 + lenECEF
)

// DecodeAntennaPosition decodes a 1005 or 1006 payload. ok is false when
// the payload is truncated.
func DecodeAntennaPosition(p []byte) (pos AntennaPosition, ok bool) {
	if uint(len(p))*8 < positionMessageBits {
		return pos, false
	}

	bit := uint(lenMessageType)
	pos.StationID = uint16(getUint(p, bit, lenStationID))
	bit += lenStationID + lenITRFYear + lenFlags1

	pos.X = float64(getInt(p, bit, lenECEF)) * ecefScale
	bit += lenECEF + lenFlags2
	pos.Y = float64(getInt(p, bit, lenECEF)) * ecefScale
	bit += lenECEF + lenFlags2
	pos.Z = float64(getInt(p, bit, lenECEF)) * ecefScale

	return pos, true
}

// DeviceInfo is the equipment description carried by message 1033.
type DeviceInfo struct {
	StationID         uint16
	AntennaDescriptor string
	AntennaSerial     string
	ReceiverType      string
	Firmware          string
	ReceiverSerial    string
}

// DecodeDeviceInfo decodes a 1033 payload: station id followed by five
// counted ASCII strings (antenna descriptor, antenna serial, receiver
// type, firmware version, receiver serial) with an 8-bit antenna setup
// id between the first two. ok is false on truncation.
func DecodeDeviceInfo(p []byte) (info DeviceInfo, ok bool) {
	bits := uint(len(p)) * 8
	bit := uint(lenMessageType)
	if bit+lenStationID > bits {
		return info, false
	}
	info.StationID = uint16(getUint(p, bit, lenStationID))
	bit += lenStationID

	readString := func() (string, bool) {
		if bit+8 > bits {
			return "", false
		}
		n := uint(getUint(p, bit, 8))
		bit += 8
		if bit+n*8 > bits {
			return "", false
		}
		b := make([]byte, 0, n)
		for i := uint(0); i < n; i++ {
			b = append(b, byte(getUint(p, bit, 8)))
			bit += 8
		}
		return strings.TrimRight(string(b), "\x00 "), true
	}

	if info.AntennaDescriptor, ok = readString(); !ok {
		return info, false
	}
	// Antenna setup ID (DF031).
	if bit+8 > bits {
		return info, false
	}
	bit += 8
	if info.AntennaSerial, ok = readString(); !ok {
		return info, false
	}
	if info.ReceiverType, ok = readString(); !ok {
		return info, false
	}
	if info.Firmware, ok = readString(); !ok {
		return info, false
	}
	if info.ReceiverSerial, ok = readString(); !ok {
		return info, false
	}
	return info, true
}
