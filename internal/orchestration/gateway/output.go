package gateway

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/relaylabs/voxrelay/internal/orchestration/events"
)

// asrSignal is the text frame shape for update_asr/finish_asr.
type asrSignal struct {
	Action string `json:"action"`
	Data   struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
		IsFinal    bool    `json:"is_final"`
	} `json:"data"`
}

// respSignal is the text frame shape for update_resp/finish_resp.
type respSignal struct {
	Action string `json:"action"`
	Data   struct {
		Text string `json:"text"`
	} `json:"data"`
}

// OutputGateway is a stateless translator from outbound bus events to
// transport frames.
type OutputGateway struct {
	conn   Conn
	logger *slog.Logger
}

// NewOutput constructs an OutputGateway over conn, subscribing to the bus events
// that need translating to client-facing frames.
func NewOutput(b Publisher, conn Conn, logger *slog.Logger) *OutputGateway {
	if logger == nil {
		logger = slog.Default()
	}
	g := &OutputGateway{conn: conn, logger: logger}

	b.Subscribe(events.SubjectASRResultPartial, g.handleASRResultPartial)
	b.Subscribe(events.SubjectASRResultFinal, g.handleASRResultFinal)
	b.Subscribe(events.SubjectTTSResponseUpdate, g.handleTTSResponseUpdate)
	b.Subscribe(events.SubjectTTSResponseFinish, g.handleTTSResponseFinish)
	b.Subscribe(events.SubjectTTSChunkGenerated, g.handleTTSChunkGenerated)

	g.logger.Debug("output gateway initialized")
	return g
}

func (g *OutputGateway) sendText(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		g.logger.Error("marshal outbound frame failed", "error", err)
		return
	}
	if err := g.conn.WriteText(payload); err != nil {
		g.logger.Error("send websocket message failed", "error", err)
	}
}

func (g *OutputGateway) handleASRResultPartial(ctx context.Context, ev events.Event) error {
	e, ok := ev.(events.ASRResultPartial)
	if !ok {
		return nil
	}
	var sig asrSignal
	sig.Action = "update_asr"
	sig.Data.Text = e.Text
	sig.Data.Confidence = e.Confidence
	sig.Data.IsFinal = false
	g.sendText(sig)
	return nil
}

func (g *OutputGateway) handleASRResultFinal(ctx context.Context, ev events.Event) error {
	e, ok := ev.(events.ASRResultFinal)
	if !ok {
		return nil
	}
	var sig asrSignal
	sig.Action = "finish_asr"
	sig.Data.Text = e.Text
	sig.Data.Confidence = e.Confidence
	sig.Data.IsFinal = true
	g.sendText(sig)
	return nil
}

func (g *OutputGateway) handleTTSResponseUpdate(ctx context.Context, ev events.Event) error {
	e, ok := ev.(events.TTSResponseUpdate)
	if !ok {
		return nil
	}
	var sig respSignal
	sig.Action = "update_resp"
	sig.Data.Text = e.Text
	g.sendText(sig)
	return nil
}

func (g *OutputGateway) handleTTSResponseFinish(ctx context.Context, ev events.Event) error {
	e, ok := ev.(events.TTSResponseFinish)
	if !ok {
		return nil
	}
	var sig respSignal
	sig.Action = "finish_resp"
	sig.Data.Text = e.Text
	g.sendText(sig)
	return nil
}

func (g *OutputGateway) handleTTSChunkGenerated(ctx context.Context, ev events.Event) error {
	e, ok := ev.(events.TTSChunkGenerated)
	if !ok {
		return nil
	}
	if err := g.conn.WriteBinary(e.AudioChunk); err != nil {
		g.logger.Error("send audio chunk failed", "error", err)
	}
	return nil
}
