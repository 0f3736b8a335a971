package asr

import "encoding/binary"

// pcm16ToFloat32 converts signed 16-bit little-endian PCM to float32 in
// [-1.0, 1.0) by dividing by 32768, the divisor the recognizer's model
// was trained against. For s != -32768, f32(s)*32768 round-trips to s.
func pcm16ToFloat32(data []byte) []float32 {
	n := len(data) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(data[i*2:]))
		out[i] = float32(s) / 32768.0
	}
	return out
}
