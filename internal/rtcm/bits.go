package rtcm

// getUint extracts width bits starting at bit position pos (MSB first)
// from data. The caller guarantees pos+width fits within data.
func getUint(data []byte, pos, width uint) uint64 {
	var v uint64
	for i := uint(0); i < width; i++ {
		bit := pos + i
		byteIdx := bit / 8
		shift := 7 - (bit % 8)
		v = (v << 1) | uint64((data[byteIdx]>>shift)&1)
	}
	return v
}

// getInt extracts a two's-complement signed field of width bits.
func getInt(data []byte, pos, width uint) int64 {
	v := getUint(data, pos, width)
	if v&(1<<(width-1)) != 0 {
		v |= ^uint64(0) << width
	}
	return int64(v)
}
