// Package gateway implements InputGateway and OutputGateway: the
// transport-facing translation layer between raw frames and bus events.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/relaylabs/voxrelay/internal/metrics"
	"github.com/relaylabs/voxrelay/internal/orchestration/bus"
	"github.com/relaylabs/voxrelay/internal/orchestration/events"
)

// Conn is the minimal transport surface InputGateway/OutputGateway need.
// internal/transport.Conn implements it over a gorilla/websocket connection.
type Conn interface {
	// ReadMessage blocks for the next frame. isText distinguishes a text
	// control frame from a binary audio frame.
	ReadMessage() (data []byte, isText bool, err error)
	WriteText(data []byte) error
	WriteBinary(data []byte) error
}

// Publisher is the subset of bus.Bus InputGateway needs.
type Publisher interface {
	Subscribe(subject events.Subject, handler bus.Handler)
	Publish(ctx context.Context, ev events.Event, wait bool) bool
}

// controlMessage is the shape of a client->server text frame.
type controlMessage struct {
	Action     string  `json:"action"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

func (c controlMessage) messageType() string {
	if c.Action != "" {
		return c.Action
	}
	if c.Type != "" {
		return c.Type
	}
	return "unknown"
}

const defaultVADConfidence = 0.8

// InputGateway reads frames off the transport and publishes the
// corresponding bus events.
type InputGateway struct {
	bus    Publisher
	conn   Conn
	logger *slog.Logger
}

// New constructs an InputGateway over conn, publishing to bus.
func New(b Publisher, conn Conn, logger *slog.Logger) *InputGateway {
	if logger == nil {
		logger = slog.Default()
	}
	g := &InputGateway{bus: b, conn: conn, logger: logger}
	b.Subscribe(events.SubjectErrorOccurred, g.handleErrorOccurred)
	return g
}

func (g *InputGateway) handleErrorOccurred(ctx context.Context, ev events.Event) error {
	eo, ok := ev.(events.ErrorOccurred)
	if !ok {
		return nil
	}
	g.logger.Error("error event observed by input gateway", "error_type", eo.ErrorType, "message", eo.ErrorMessage)
	return nil
}

// HandleConnection performs whatever transport-level accept step remains
// after the caller has already upgraded the connection (e.g. websocket
// handshake), kept separate from HandleMessageLoop so callers can log or
// instrument the accept step independently of the read loop.
func (g *InputGateway) HandleConnection() error {
	g.logger.Info("connection established")
	return nil
}

// HandleMessageLoop reads frames until the transport closes or errors.
func (g *InputGateway) HandleMessageLoop(ctx context.Context) {
	for {
		data, isText, err := g.conn.ReadMessage()
		if err != nil {
			g.logger.Info("connection closed", "error", err)
			return
		}
		if isText {
			g.handleTextFrame(ctx, data)
		} else {
			g.handleAudioFrame(ctx, data)
		}
	}
}

func (g *InputGateway) handleAudioFrame(ctx context.Context, data []byte) {
	metrics.AudioFramesReceived.Inc()
	g.bus.Publish(ctx, events.NewAudioFrameReceived(data, 48000, false), false)
}

func (g *InputGateway) handleTextFrame(ctx context.Context, data []byte) {
	g.bus.Publish(ctx, events.NewWebSocketMessageReceived(string(data)), false)

	var msg controlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		g.logger.Warn("could not parse control frame", "error", err)
		return
	}

	switch msg.messageType() {
	case "vad_speech_start":
		confidence := msg.Confidence
		if confidence == 0 {
			confidence = defaultVADConfidence
		}
		g.bus.Publish(ctx, events.NewVADSpeechStart(confidence), false)

	case "vad_speech_end":
		confidence := msg.Confidence
		if confidence == 0 {
			confidence = defaultVADConfidence
		}
		g.bus.Publish(ctx, events.NewVADSpeechEnd(confidence), false)
		// Sentinel final audio frame: an empty, is_final payload that
		// forces the ASR flush loop to process whatever it accumulated
		// instead of waiting for a full chunk.
		g.bus.Publish(ctx, events.NewAudioFrameReceived(nil, 48000, true), false)

	default:
		g.logger.Warn("unknown control message", "type", msg.messageType())
	}
}
