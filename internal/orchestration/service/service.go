// Package service wires one connection's EventBus, ASRManager, TTSManager,
// InputGateway and OutputGateway together and sequences their lifecycle.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/relaylabs/voxrelay/internal/config"
	"github.com/relaylabs/voxrelay/internal/orchestration/asr"
	"github.com/relaylabs/voxrelay/internal/orchestration/bus"
	"github.com/relaylabs/voxrelay/internal/orchestration/gateway"
	"github.com/relaylabs/voxrelay/internal/orchestration/recognizer"
	"github.com/relaylabs/voxrelay/internal/orchestration/synth"
	"github.com/relaylabs/voxrelay/internal/orchestration/tts"
)

// Service owns one connection's orchestration components and sequences
// connect -> message-loop -> shutdown.
type Service struct {
	SessionID string

	bus           *bus.Bus
	asrManager    *asr.Manager
	ttsManager    *tts.Manager
	inputGateway  *gateway.InputGateway
	outputGateway *gateway.OutputGateway

	shutdownGrace time.Duration
	logger        *slog.Logger
}

// New constructs a Service for one connection. Construction order matters:
// the bus is created first, then the four components, each of which
// subscribes to the subjects it cares about during its own constructor.
// tuning's knobs are threaded into the components that use them: buffer
// capacity and poll intervals into the ASR/TTS managers, shutdown grace into
// the bus.
func New(conn gateway.Conn, rec recognizer.Recognizer, pipeline synth.Pipeline, tuning config.Tuning, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	sessionID := uuid.NewString()
	logger = logger.With("session_id", sessionID)

	b := bus.New(logger)
	asrMgr := asr.New(b, rec, logger, tuning.AudioBufferCapacity, time.Duration(tuning.ASRConsumerPollMs)*time.Millisecond)
	ttsMgr := tts.New(b, pipeline, logger, time.Duration(tuning.TTSConsumerPollMs)*time.Millisecond)
	in := gateway.New(b, conn, logger)
	out := gateway.NewOutput(b, conn, logger)

	logger.Info("conversation service initialized")

	return &Service{
		SessionID:     sessionID,
		bus:           b,
		asrManager:    asrMgr,
		ttsManager:    ttsMgr,
		inputGateway:  in,
		outputGateway: out,
		shutdownGrace: tuning.BusShutdownGrace(),
		logger:        logger,
	}
}

// Run sequences the connection: accept, then the message loop, until the
// transport closes. Shutdown always runs, in ASR -> TTS -> Bus order.
func (s *Service) Run(ctx context.Context) {
	defer s.Shutdown(ctx)

	if err := s.inputGateway.HandleConnection(); err != nil {
		s.logger.Error("handle connection failed", "error", err)
		return
	}
	s.inputGateway.HandleMessageLoop(ctx)
}

// Shutdown tears down the ASR manager, TTS manager, then the event bus, in
// that order.
func (s *Service) Shutdown(ctx context.Context) {
	if err := s.asrManager.Shutdown(ctx); err != nil {
		s.logger.Error("asr manager shutdown failed", "error", err)
	}
	if err := s.ttsManager.Shutdown(ctx); err != nil {
		s.logger.Error("tts manager shutdown failed", "error", err)
	}
	s.bus.Shutdown(ctx, s.shutdownGrace)
	s.logger.Info("conversation service shut down")
}
