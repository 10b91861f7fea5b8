// Package rtcm extracts the little slice of RTCM 3 the caster cares
// about: enough framing to delimit messages in an uploader's byte
// stream, and decoders for the handful of message types that feed the
// sourcetable (1005/1006 antenna position, 1033 device descriptors, and
// the MSM range for constellation/carrier detection).
package rtcm

import (
	crc24q "github.com/goblimey/go-crc24q/crc24q"
)

const (
	framePreamble byte = 0xd3

	// 3-byte header plus 3-byte CRC around the variable-length payload.
	frameHeaderLen = 3
	frameCRCLen    = 3

	// 10-bit length field.
	maxPayloadLen = 1023
)

// FrameScanner reassembles complete RTCM 3 frames from an arbitrary
// segmentation of the byte stream. Bytes that don't form a valid frame
// (bad preamble or failed CRC) are skipped one at a time until the
// scanner resynchronizes.
type FrameScanner struct {
	buf []byte
}

// Scan appends p to the pending buffer and returns every complete,
// CRC-valid frame now available, in stream order. Returned frames are
// copies; the caller owns them.
func (s *FrameScanner) Scan(p []byte) [][]byte {
	s.buf = append(s.buf, p...)

	var frames [][]byte
	for {
		// Discard garbage before the next possible preamble.
		i := 0
		for i < len(s.buf) && s.buf[i] != framePreamble {
			i++
		}
		s.buf = s.buf[i:]

		if len(s.buf) < frameHeaderLen {
			break
		}
		payloadLen := int(s.buf[1]&0x03)<<8 | int(s.buf[2])
		total := frameHeaderLen + payloadLen + frameCRCLen
		if len(s.buf) < total {
			// A false preamble can announce a length that keeps the
			// scanner starved for bytes that never arrive, stalling real
			// frames already buffered behind it. If a later preamble in
			// the pending bytes forms a complete valid frame, resync
			// there instead of waiting.
			if j := s.nextValidFrame(); j > 0 {
				s.buf = s.buf[j:]
				continue
			}
			break
		}

		if !checkCRC(s.buf[:total]) {
			// False preamble. Drop one byte and resync.
			s.buf = s.buf[1:]
			continue
		}

		frame := make([]byte, total)
		copy(frame, s.buf[:total])
		frames = append(frames, frame)
		s.buf = s.buf[total:]
	}

	// Release the backing array once drained so a long-lived scanner
	// doesn't pin old reads.
	if len(s.buf) == 0 {
		s.buf = nil
	}
	return frames
}

// nextValidFrame returns the offset of the first complete, CRC-valid
// frame starting after position 0, or 0 if none is buffered yet.
func (s *FrameScanner) nextValidFrame() int {
	for j := 1; j+frameHeaderLen+frameCRCLen <= len(s.buf); j++ {
		if s.buf[j] != framePreamble {
			continue
		}
		payloadLen := int(s.buf[j+1]&0x03)<<8 | int(s.buf[j+2])
		total := frameHeaderLen + payloadLen + frameCRCLen
		if j+total <= len(s.buf) && checkCRC(s.buf[j:j+total]) {
			return j
		}
	}
	return 0
}

func checkCRC(frame []byte) bool {
	n := len(frame)
	crc := crc24q.Hash(frame[:n-frameCRCLen])
	return crc24q.HiByte(crc) == frame[n-3] &&
		crc24q.MiByte(crc) == frame[n-2] &&
		crc24q.LoByte(crc) == frame[n-1]
}

// MessageID returns the 12-bit message type of a complete frame, or 0
// if the frame is too short to carry one.
func MessageID(frame []byte) int {
	if len(frame) < frameHeaderLen+2 {
		return 0
	}
	return int(getUint(frame[frameHeaderLen:], 0, 12))
}

// payload strips the header and CRC from a complete frame.
func payload(frame []byte) []byte {
	return frame[frameHeaderLen : len(frame)-frameCRCLen]
}
