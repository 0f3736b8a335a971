package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaylabs/voxrelay/internal/orchestration/events"
	"github.com/relaylabs/voxrelay/internal/orchestration/orchestrationtest"
)

func TestInputGatewayPublishesAudioFrame(t *testing.T) {
	fb := orchestrationtest.NewFakeBus()
	conn := orchestrationtest.NewFakeConn(orchestrationtest.FakeFrame{Data: []byte{1, 2, 3}, IsText: false})
	g := New(fb, conn, nil)
	require.NoError(t, g.HandleConnection())

	g.HandleMessageLoop(context.Background())

	frames := fb.EventsOfSubject(events.SubjectAudioFrameReceived)
	require.Len(t, frames, 1)
	af := frames[0].(events.AudioFrameReceived)
	assert.Equal(t, []byte{1, 2, 3}, af.Data)
	assert.False(t, af.IsFinal)
}

func TestInputGatewayVADStartPublishesConfidence(t *testing.T) {
	fb := orchestrationtest.NewFakeBus()
	conn := orchestrationtest.NewFakeConn(orchestrationtest.FakeFrame{
		Data: []byte(`{"action":"vad_speech_start","confidence":0.95}`), IsText: true,
	})
	g := New(fb, conn, nil)
	g.HandleMessageLoop(context.Background())

	starts := fb.EventsOfSubject(events.SubjectVADSpeechStart)
	require.Len(t, starts, 1)
	assert.Equal(t, 0.95, starts[0].(events.VADSpeechStart).Confidence)
}

func TestInputGatewayVADStartDefaultsConfidence(t *testing.T) {
	fb := orchestrationtest.NewFakeBus()
	conn := orchestrationtest.NewFakeConn(orchestrationtest.FakeFrame{
		Data: []byte(`{"action":"vad_speech_start"}`), IsText: true,
	})
	g := New(fb, conn, nil)
	g.HandleMessageLoop(context.Background())

	starts := fb.EventsOfSubject(events.SubjectVADSpeechStart)
	require.Len(t, starts, 1)
	assert.Equal(t, defaultVADConfidence, starts[0].(events.VADSpeechStart).Confidence)
}

func TestInputGatewayVADEndEmitsSentinelFinalFrame(t *testing.T) {
	fb := orchestrationtest.NewFakeBus()
	conn := orchestrationtest.NewFakeConn(orchestrationtest.FakeFrame{
		Data: []byte(`{"action":"vad_speech_end"}`), IsText: true,
	})
	g := New(fb, conn, nil)
	g.HandleMessageLoop(context.Background())

	ends := fb.EventsOfSubject(events.SubjectVADSpeechEnd)
	require.Len(t, ends, 1)

	frames := fb.EventsOfSubject(events.SubjectAudioFrameReceived)
	require.Len(t, frames, 1)
	af := frames[0].(events.AudioFrameReceived)
	assert.Empty(t, af.Data)
	assert.True(t, af.IsFinal)
}

func TestInputGatewayUnknownControlMessageIsIgnored(t *testing.T) {
	fb := orchestrationtest.NewFakeBus()
	conn := orchestrationtest.NewFakeConn(orchestrationtest.FakeFrame{
		Data: []byte(`{"action":"something_else"}`), IsText: true,
	})
	g := New(fb, conn, nil)
	g.HandleMessageLoop(context.Background())

	assert.Empty(t, fb.EventsOfSubject(events.SubjectVADSpeechStart))
	assert.Empty(t, fb.EventsOfSubject(events.SubjectVADSpeechEnd))
}

func TestInputGatewayMalformedJSONIsIgnored(t *testing.T) {
	fb := orchestrationtest.NewFakeBus()
	conn := orchestrationtest.NewFakeConn(orchestrationtest.FakeFrame{
		Data: []byte(`not json`), IsText: true,
	})
	g := New(fb, conn, nil)
	g.HandleMessageLoop(context.Background())

	assert.Empty(t, fb.EventsOfSubject(events.SubjectVADSpeechStart))
}
