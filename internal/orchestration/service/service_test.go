package service

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/relaylabs/voxrelay/internal/config"
	"github.com/relaylabs/voxrelay/internal/orchestration/orchestrationtest"
	"github.com/relaylabs/voxrelay/internal/orchestration/synth"
)

func pcmFrame(nSamples int) []byte {
	data := make([]byte, nSamples*2)
	for i := 0; i < nSamples; i++ {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(int16(500)))
	}
	return data
}

// TestServiceEndToEndTurn drives a full vad_start -> audio -> vad_end turn
// through the real bus/asr/tts stack and asserts the client sees both an
// ASR final transcript and a synthesized response.
func TestServiceEndToEndTurn(t *testing.T) {
	conn := orchestrationtest.NewFakeConn(
		orchestrationtest.FakeFrame{Data: []byte(`{"action":"vad_speech_start"}`), IsText: true},
		orchestrationtest.FakeFrame{Data: pcmFrame(1000), IsText: false},
		orchestrationtest.FakeFrame{Data: []byte(`{"action":"vad_speech_end"}`), IsText: true},
	)
	conn.Stop = make(chan struct{})

	rec := &orchestrationtest.FakeRecognizer{ChunkSecsVal: 0.01, Increment: "hi "}
	pipe := &orchestrationtest.FakePipeline{Chunks: []synth.Chunk{{AudioChunk: []byte("audio"), Text: "response"}}}

	tuning := config.Default()
	tuning.BusShutdownGraceSeconds = 3
	svc := New(conn, rec, pipe, tuning, nil)
	require.NotEmpty(t, svc.SessionID)

	ctx := context.Background()
	runDone := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(runDone)
	}()

	orchestrationtest.WaitForCondition(t, 2*time.Second, func() bool {
		for _, w := range conn.SnapshotWritten() {
			var sig struct {
				Action string `json:"action"`
			}
			if json.Unmarshal(w, &sig) == nil && sig.Action == "finish_asr" {
				return true
			}
		}
		return false
	})

	orchestrationtest.WaitForCondition(t, 2*time.Second, func() bool {
		return len(conn.SnapshotBinaries()) > 0
	})

	close(conn.Stop)
	select {
	case <-runDone:
	case <-time.After(5 * time.Second):
		t.Fatal("service never shut down")
	}
}
