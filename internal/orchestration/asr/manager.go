// Package asr implements ASRManager: the IDLE/LISTENING state machine that
// buffers inbound audio and drives it into a streaming recognizer in
// fixed-size chunks, publishing partial and final transcripts.
package asr

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/looplab/fsm"

	"github.com/relaylabs/voxrelay/internal/metrics"
	"github.com/relaylabs/voxrelay/internal/orchestration/bus"
	"github.com/relaylabs/voxrelay/internal/orchestration/events"
	"github.com/relaylabs/voxrelay/internal/orchestration/recognizer"
)

const (
	// MockConfidence is a placeholder confidence, never computed from the
	// recognizer's actual output.
	MockConfidence = 0.85

	// defaultPollInterval and defaultBufferCap are used when New is given
	// a non-positive override.
	defaultPollInterval = 5 * time.Millisecond
	defaultBufferCap    = 1000
)

// Publisher is the subset of bus.Bus the manager needs, so tests can fake it.
type Publisher interface {
	Subscribe(subject events.Subject, handler bus.Handler)
	Publish(ctx context.Context, ev events.Event, wait bool) bool
}

// consumerState tracks the audio-draining goroutine's running status and
// simple counters for diagnostics.
type consumerState struct {
	running        bool
	processing     bool
	lastActivity   time.Time
	processedChunks int
	errors         int
}

// Manager is the event-driven ASR orchestrator for one connection.
type Manager struct {
	bus        Publisher
	recognizer recognizer.Recognizer
	logger     *slog.Logger

	machine *fsm.FSM

	bufMu  sync.Mutex
	buffer *frameBuffer

	accumulatedText string
	confidenceSum   float64
	chunkCount      int
	cache           recognizer.Cache
	chunkBytes      int

	consumer   consumerState
	consumerWG sync.WaitGroup
	cancelFn   context.CancelFunc
	cancelMu   sync.Mutex

	pollInterval time.Duration
}

// New constructs an ASRManager subscribed to AudioFrameReceived,
// VADSpeechStart and VADSpeechEnd. bufferCapacity bounds the audio buffer in
// frames and pollInterval is the consumer's empty-buffer sleep; either may be
// passed as <= 0 to take the package defaults.
func New(bus Publisher, rec recognizer.Recognizer, logger *slog.Logger, bufferCapacity int, pollInterval time.Duration) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if bufferCapacity <= 0 {
		bufferCapacity = defaultBufferCap
	}
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	chunkBytes := 0
	if rec != nil && rec.ChunkSecs() > 0 {
		chunkBytes = int(rec.ChunkSecs() * recognizer.TargetSampleRate * 2)
	}

	m := &Manager{
		bus:          bus,
		recognizer:   rec,
		logger:       logger,
		buffer:       newFrameBuffer(bufferCapacity),
		cache:        recognizer.Cache{},
		chunkBytes:   chunkBytes,
		pollInterval: pollInterval,
	}

	m.machine = fsm.NewFSM(
		"idle",
		fsm.Events{
			{Name: "vad_start", Src: []string{"idle", "listening"}, Dst: "listening"},
			{Name: "vad_end", Src: []string{"listening", "idle"}, Dst: "idle"},
		},
		fsm.Callbacks{
			"enter_state": func(ctx context.Context, e *fsm.Event) {
				m.logger.Debug("asr state transition", "from", e.Src, "to", e.Dst)
				bus.Publish(ctx, events.NewConversationStateChanged(e.Src, e.Dst, "ASRManager:"+e.Event), false)
			},
		},
	)

	bus.Subscribe(events.SubjectAudioFrameReceived, m.handleAudioFrame)
	bus.Subscribe(events.SubjectVADSpeechStart, m.handleVADSpeechStart)
	bus.Subscribe(events.SubjectVADSpeechEnd, m.handleVADSpeechEnd)

	m.logger.Info("ASR manager initialized", "chunk_bytes", chunkBytes)
	return m
}

func (m *Manager) handleAudioFrame(ctx context.Context, ev events.Event) error {
	af, ok := ev.(events.AudioFrameReceived)
	if !ok {
		return nil
	}
	m.bufMu.Lock()
	m.buffer.Push(frame{Data: af.Data, Timestamp: time.Now(), SampleRate: af.SampleRate, IsFinal: af.IsFinal})
	metrics.ASRBufferDepth.Set(float64(m.buffer.Len()))
	m.bufMu.Unlock()
	m.logger.Debug("audio frame buffered", "bytes", len(af.Data))
	return nil
}

func (m *Manager) handleVADSpeechStart(ctx context.Context, ev events.Event) error {
	m.logger.Info("VAD speech start: starting ASR processing")
	if err := m.machine.Event(ctx, "vad_start"); err != nil {
		m.logger.Debug("asr fsm transition", "event", "vad_start", "error", err)
	}
	m.resetASR(ctx)
	m.startConsumer(ctx)
	return nil
}

func (m *Manager) handleVADSpeechEnd(ctx context.Context, ev events.Event) error {
	m.logger.Info("VAD speech end: draining ASR buffer")
	m.stopConsumer()
	m.finishASRProcessing(ctx)
	if err := m.machine.Event(ctx, "vad_end"); err != nil {
		m.logger.Debug("asr fsm transition", "event", "vad_end", "error", err)
	}
	return nil
}

func (m *Manager) resetASR(ctx context.Context) {
	m.stopConsumer()

	m.accumulatedText = ""
	m.confidenceSum = 0
	m.chunkCount = 0
	m.cache = recognizer.Cache{}
	m.consumer = consumerState{}

	m.bufMu.Lock()
	m.buffer.Reset()
	m.bufMu.Unlock()

	m.logger.Info("ASR state fully reset")
}

func (m *Manager) startConsumer(ctx context.Context) {
	m.cancelMu.Lock()
	defer m.cancelMu.Unlock()
	if m.consumer.running {
		return
	}

	cctx, cancel := context.WithCancel(ctx)
	m.cancelFn = cancel
	m.consumer.running = true

	m.consumerWG.Add(1)
	go func() {
		defer m.consumerWG.Done()
		m.runConsumer(cctx)
	}()
	m.logger.Info("ASR consumer started")
}

func (m *Manager) stopConsumer() {
	m.cancelMu.Lock()
	m.consumer.running = false
	if m.cancelFn != nil {
		m.cancelFn()
		m.cancelFn = nil
	}
	m.cancelMu.Unlock()
	m.consumerWG.Wait()
}

// runConsumer is the single task that drains the audio buffer, accumulates
// bytes, and flushes to the recognizer at chunk boundaries or on a final
// frame.
func (m *Manager) runConsumer(ctx context.Context) {
	m.logger.Debug("ASR consumer running")

	accumulated := make([]byte, 0)
	processed := 0
	sampleRate := recognizer.TargetSampleRate

	flushRemainder := func() {
		if len(accumulated) > processed {
			m.processAccumulated(ctx, accumulated, processed, true, sampleRate)
		}
	}

	for {
		select {
		case <-ctx.Done():
			// Take in every frame still buffered so the final flush covers
			// all audio received before the stop.
			m.bufMu.Lock()
			for fr, ok := m.buffer.Pop(); ok; fr, ok = m.buffer.Pop() {
				accumulated = append(accumulated, fr.Data...)
				if fr.SampleRate > 0 {
					sampleRate = fr.SampleRate
				}
			}
			metrics.ASRBufferDepth.Set(float64(m.buffer.Len()))
			m.bufMu.Unlock()
			flushRemainder()
			m.consumer.processing = false
			m.logger.Info("ASR consumer stopped")
			return
		default:
		}

		m.bufMu.Lock()
		fr, ok := m.buffer.Pop()
		metrics.ASRBufferDepth.Set(float64(m.buffer.Len()))
		m.bufMu.Unlock()

		if !ok {
			time.Sleep(m.pollInterval)
			continue
		}

		accumulated = append(accumulated, fr.Data...)
		if fr.SampleRate > 0 {
			sampleRate = fr.SampleRate
		}
		isFinal := fr.IsFinal

		shouldProcess := false
		if isFinal {
			shouldProcess = true
		} else if m.chunkBytes > 0 && len(accumulated)-processed >= m.chunkBytes {
			shouldProcess = true
		}

		if shouldProcess && len(accumulated) > processed {
			m.processAccumulated(ctx, accumulated, processed, isFinal, sampleRate)
			m.consumer.lastActivity = time.Now()
			m.consumer.processedChunks++

			if isFinal {
				processed = len(accumulated)
			} else {
				processed = len(accumulated) - (len(accumulated) % m.chunkBytes)
			}
		}
	}
}

func (m *Manager) processAccumulated(ctx context.Context, accumulated []byte, processed int, isFinal bool, sampleRate int) {
	m.consumer.processing = true
	defer func() { m.consumer.processing = false }()

	audioData := accumulated[processed:]
	if len(audioData) == 0 {
		return
	}
	if m.recognizer == nil {
		m.logger.Warn("no recognizer configured, skipping ASR processing")
		return
	}

	audioFloat := pcm16ToFloat32(audioData)

	chunks, err := m.recognizer.GetChunks(audioFloat, sampleRate)
	if err != nil {
		m.reportError(ctx, "asr_consumer_error", err.Error())
		return
	}

	var newText string
	for i, chunk := range chunks {
		// Only the last chunk of a final flush carries isFinal=true: the
		// recognizer keys decoder state off the session id in m.cache and
		// clears it once told a stream is final, so marking every chunk
		// in this loop final would hand each one after the first a brand
		// new session id and break decoder-state continuity mid-flush.
		chunkIsFinal := isFinal && i == len(chunks)-1
		textIncrement, err := m.recognizer.RecognizeStream(chunk, m.cache, chunkIsFinal)
		if err != nil {
			m.reportError(ctx, "asr_consumer_error", err.Error())
			continue
		}
		if textIncrement != "" {
			newText += textIncrement
		}
	}

	if isFinal {
		m.cache = recognizer.Cache{}
	}

	if newText != "" {
		m.accumulatedText += newText
		m.confidenceSum += MockConfidence
		m.chunkCount++
		metrics.ASRPartialResults.Inc()
		m.bus.Publish(ctx, events.NewASRResult(m.accumulatedText, false, MockConfidence), false)
	}
}

func (m *Manager) finishASRProcessing(ctx context.Context) {
	denom := m.chunkCount
	if denom < 1 {
		denom = 1
	}
	finalConfidence := m.confidenceSum / float64(denom)
	finalText := strings.TrimSpace(m.accumulatedText)
	m.bus.Publish(ctx, events.NewASRResult(finalText, true, finalConfidence), false)
	m.logger.Info("ASR processing finished", "text", finalText)
}

func (m *Manager) reportError(ctx context.Context, errorType, message string) {
	m.consumer.errors++
	metrics.EventHandlerErrors.WithLabelValues(errorType).Inc()
	m.bus.Publish(ctx, events.NewErrorOccurred(errorType, message, "ASRManager", nil), false)
}

// Shutdown tears down the consumer and resets state.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("shutting down ASR manager")
	m.resetASR(ctx)
	return nil
}
