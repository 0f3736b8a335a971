package asr

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaylabs/voxrelay/internal/orchestration/events"
	"github.com/relaylabs/voxrelay/internal/orchestration/orchestrationtest"
)

const trimmedIncrement = "  hello world  "

func pcmFrame(nSamples int) []byte {
	data := make([]byte, nSamples*2)
	for i := 0; i < nSamples; i++ {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(int16(100)))
	}
	return data
}

func TestManagerFlushesAtChunkBoundary(t *testing.T) {
	fb := orchestrationtest.NewFakeBus()
	rec := &orchestrationtest.FakeRecognizer{ChunkSecsVal: 0.1} // chunkBytes = 0.1*16000*2 = 3200
	m := New(fb, rec, nil, 0, 0)

	ctx := context.Background()
	fb.Deliver(ctx, events.SubjectVADSpeechStart, events.NewVADSpeechStart(0.9))

	fb.Deliver(ctx, events.SubjectAudioFrameReceived, events.NewAudioFrameReceived(pcmFrame(1700), 16000, false))
	fb.Deliver(ctx, events.SubjectAudioFrameReceived, events.NewAudioFrameReceived(pcmFrame(1700), 16000, false))

	orchestrationtest.WaitForCondition(t, time.Second, func() bool {
		return len(fb.EventsOfSubject(events.SubjectASRResultPartial)) > 0
	})

	fb.Deliver(ctx, events.SubjectVADSpeechEnd, events.NewVADSpeechEnd(0.9))

	orchestrationtest.WaitForCondition(t, time.Second, func() bool {
		return len(fb.EventsOfSubject(events.SubjectASRResultFinal)) > 0
	})

	finals := fb.EventsOfSubject(events.SubjectASRResultFinal)
	require.Len(t, finals, 1)
	final := finals[0].(events.ASRResultFinal)
	assert.True(t, final.IsFinal)
	assert.NotEmpty(t, final.Text)

	require.NoError(t, m.Shutdown(ctx))
}

func TestManagerFlushesRemainderOnFinalFrame(t *testing.T) {
	fb := orchestrationtest.NewFakeBus()
	rec := &orchestrationtest.FakeRecognizer{ChunkSecsVal: 10} // huge chunk size: only the final-frame flush should fire
	m := New(fb, rec, nil, 0, 0)

	ctx := context.Background()
	fb.Deliver(ctx, events.SubjectVADSpeechStart, events.NewVADSpeechStart(0.9))
	fb.Deliver(ctx, events.SubjectAudioFrameReceived, events.NewAudioFrameReceived(pcmFrame(100), 16000, false))
	fb.Deliver(ctx, events.SubjectAudioFrameReceived, events.NewAudioFrameReceived(nil, 16000, true))

	fb.Deliver(ctx, events.SubjectVADSpeechEnd, events.NewVADSpeechEnd(0.9))

	orchestrationtest.WaitForCondition(t, time.Second, func() bool {
		return len(fb.EventsOfSubject(events.SubjectASRResultFinal)) > 0
	})

	partials := fb.EventsOfSubject(events.SubjectASRResultPartial)
	require.Len(t, partials, 1)
	assert.Equal(t, "x", partials[0].(events.ASRResultPartial).Text)

	require.NoError(t, m.Shutdown(ctx))
}

func TestManagerResetIsIdempotent(t *testing.T) {
	fb := orchestrationtest.NewFakeBus()
	rec := &orchestrationtest.FakeRecognizer{ChunkSecsVal: 0.1}
	m := New(fb, rec, nil, 0, 0)

	ctx := context.Background()
	m.resetASR(ctx)
	m.resetASR(ctx)

	assert.Empty(t, m.accumulatedText)
	assert.Equal(t, 0, m.chunkCount)
	assert.Equal(t, 0, m.buffer.Len())
}

func TestFinalASRTextIsTrimmed(t *testing.T) {
	fb := orchestrationtest.NewFakeBus()
	rec := &orchestrationtest.FakeRecognizer{ChunkSecsVal: 10, Increment: trimmedIncrement}
	m := New(fb, rec, nil, 0, 0)

	ctx := context.Background()
	fb.Deliver(ctx, events.SubjectVADSpeechStart, events.NewVADSpeechStart(0.9))
	fb.Deliver(ctx, events.SubjectAudioFrameReceived, events.NewAudioFrameReceived(pcmFrame(100), 16000, false))
	fb.Deliver(ctx, events.SubjectVADSpeechEnd, events.NewVADSpeechEnd(0.9))

	orchestrationtest.WaitForCondition(t, time.Second, func() bool {
		return len(fb.EventsOfSubject(events.SubjectASRResultFinal)) > 0
	})

	finals := fb.EventsOfSubject(events.SubjectASRResultFinal)
	require.Len(t, finals, 1)
	final := finals[0].(events.ASRResultFinal)
	assert.Equal(t, "hello world", final.Text)

	require.NoError(t, m.Shutdown(ctx))
}
