package audio

// Float32FromInt16 converts 16-bit PCM samples to normalized float32 in [-1, 1).
func Float32FromInt16(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// Int16FromFloat32 converts normalized float32 samples to 16-bit PCM,
// clamping values outside [-1, 1).
func Int16FromFloat32(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := s * 32768.0
		if v > 32767.0 {
			v = 32767.0
		} else if v < -32768.0 {
			v = -32768.0
		}
		out[i] = int16(v)
	}
	return out
}

// BytesFromInt16 serializes int16 PCM samples as little-endian bytes.
func BytesFromInt16(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// Int16FromBytes parses little-endian PCM-16 bytes into samples.
// A trailing odd byte is ignored.
func Int16FromBytes(data []byte) []int16 {
	n := len(data) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return out
}
