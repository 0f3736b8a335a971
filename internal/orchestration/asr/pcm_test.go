package asr

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPCM16ToFloat32RoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 100, -100, 32767, -32767, -32768}
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}

	out := pcm16ToFloat32(data)
	assert.Len(t, out, len(samples))

	for i, s := range samples {
		if s == -32768 {
			continue
		}
		roundTripped := int16(out[i] * 32768.0)
		assert.Equal(t, s, roundTripped, "sample %d should round-trip", s)
	}
}

func TestPCM16ToFloat32EmptyInput(t *testing.T) {
	assert.Empty(t, pcm16ToFloat32(nil))
}

func TestPCM16ToFloat32Range(t *testing.T) {
	data := make([]byte, 4)
	binary.LittleEndian.PutUint16(data[0:2], uint16(int16(32767)))
	binary.LittleEndian.PutUint16(data[2:4], uint16(int16(-32768)))

	out := pcm16ToFloat32(data)
	assert.InDelta(t, 1.0, out[0], 0.001)
	assert.InDelta(t, -1.0, out[1], 0.001)
}
