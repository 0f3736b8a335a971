package asr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameBufferFIFOOrder(t *testing.T) {
	b := newFrameBuffer(10)
	require.NoError(t, b.Push(frame{Data: []byte("one")}))
	require.NoError(t, b.Push(frame{Data: []byte("two")}))
	require.NoError(t, b.Push(frame{Data: []byte("three")}))

	f, ok := b.Pop()
	require.True(t, ok)
	assert.Equal(t, "one", string(f.Data))

	f, ok = b.Pop()
	require.True(t, ok)
	assert.Equal(t, "two", string(f.Data))
}

func TestFrameBufferOverflowDropsOldest(t *testing.T) {
	cap := 5
	b := newFrameBuffer(cap)
	for i := 0; i < cap+3; i++ {
		require.NoError(t, b.Push(frame{Data: []byte{byte(i)}}))
	}

	assert.Equal(t, cap, b.Len())

	f, ok := b.Pop()
	require.True(t, ok)
	assert.Equal(t, byte(3), f.Data[0], "the three oldest frames should have been evicted")
}

func TestFrameBufferPopEmpty(t *testing.T) {
	b := newFrameBuffer(4)
	_, ok := b.Pop()
	assert.False(t, ok)
}

func TestFrameBufferResetClears(t *testing.T) {
	b := newFrameBuffer(4)
	require.NoError(t, b.Push(frame{Data: []byte("x")}))
	b.Reset()
	assert.Equal(t, 0, b.Len())
	_, ok := b.Pop()
	assert.False(t, ok)
}

func TestFrameBufferPreservesIsFinalAndSampleRate(t *testing.T) {
	b := newFrameBuffer(4)
	require.NoError(t, b.Push(frame{Data: []byte("abc"), SampleRate: 48000, IsFinal: true}))
	f, ok := b.Pop()
	require.True(t, ok)
	assert.Equal(t, 48000, f.SampleRate)
	assert.True(t, f.IsFinal)
}
