// Package tts implements TTSManager: the IDLE/SPEAKING/PAUSED state machine
// that drives the LLM-to-speech pipeline, enqueues audio and text updates,
// and honors barge-in by pausing and letting task-id invalidation discard
// the stale turn.
package tts

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/looplab/fsm"

	"github.com/relaylabs/voxrelay/internal/metrics"
	"github.com/relaylabs/voxrelay/internal/orchestration/bus"
	"github.com/relaylabs/voxrelay/internal/orchestration/events"
	"github.com/relaylabs/voxrelay/internal/orchestration/synth"
)

const defaultConsumerPollTimeout = 100 * time.Millisecond
const pausedSleep = 50 * time.Millisecond

// Publisher is the subset of bus.Bus the manager needs.
type Publisher interface {
	Subscribe(subject events.Subject, handler bus.Handler)
	Publish(ctx context.Context, ev events.Event, wait bool) bool
}

type consumerState struct {
	running        bool
	processedTasks int
	errors         int
}

// Manager is the event-driven TTS orchestrator for one connection.
type Manager struct {
	bus      Publisher
	pipeline synth.Pipeline
	logger   *slog.Logger

	machine *fsm.FSM

	mu              sync.Mutex
	isPaused        bool
	currentTaskID   int64
	currentText     string
	accumulatedText string

	queue *unboundedQueue

	genCancel context.CancelFunc
	genWG     sync.WaitGroup

	consumerCancel context.CancelFunc
	consumerWG     sync.WaitGroup
	consumer       consumerState

	consumerPollTimeout time.Duration
}

// New constructs a TTSManager subscribed to ASRResultFinal,
// TTSPlaybackFinished, and VADSpeechStart. consumerPollTimeout bounds how
// long the consumer waits on an empty queue before re-checking pause/cancel
// state; <= 0 takes the package default.
func New(b Publisher, pipeline synth.Pipeline, logger *slog.Logger, consumerPollTimeout time.Duration) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if consumerPollTimeout <= 0 {
		consumerPollTimeout = defaultConsumerPollTimeout
	}
	m := &Manager{
		bus:                 b,
		pipeline:            pipeline,
		logger:              logger,
		queue:               newUnboundedQueue(),
		consumerPollTimeout: consumerPollTimeout,
	}

	m.machine = fsm.NewFSM(
		"idle",
		fsm.Events{
			{Name: "asr_final", Src: []string{"idle", "speaking", "paused"}, Dst: "speaking"},
			{Name: "barge_in", Src: []string{"speaking"}, Dst: "paused"},
			{Name: "playback_finished", Src: []string{"idle", "speaking", "paused"}, Dst: "idle"},
		},
		fsm.Callbacks{
			"enter_state": func(ctx context.Context, e *fsm.Event) {
				m.logger.Debug("tts state transition", "from", e.Src, "to", e.Dst)
				b.Publish(ctx, events.NewConversationStateChanged(e.Src, e.Dst, "TTSManager:"+e.Event), false)
			},
		},
	)

	b.Subscribe(events.SubjectASRResultFinal, m.handleASRResultFinal)
	b.Subscribe(events.SubjectTTSPlaybackFinished, m.handleTTSPlaybackFinished)
	b.Subscribe(events.SubjectVADSpeechStart, m.handleVADSpeechStart)

	m.logger.Info("TTS manager initialized")
	return m
}

func (m *Manager) handleASRResultFinal(ctx context.Context, ev events.Event) error {
	final, ok := ev.(events.ASRResultFinal)
	if !ok {
		return nil
	}
	m.resetTTS(ctx)

	taskID := m.nextTaskID()
	m.logger.Info("TTS manager received final ASR result", "text", final.Text, "task_id", taskID)

	m.startGenerator(ctx, final.Text, taskID)
	m.startConsumer(ctx)

	if err := m.machine.Event(ctx, "asr_final"); err != nil {
		m.logger.Debug("tts fsm transition", "event", "asr_final", "error", err)
	}
	return nil
}

func (m *Manager) handleVADSpeechStart(ctx context.Context, ev events.Event) error {
	m.mu.Lock()
	taskID := m.currentTaskID
	text := m.currentText
	alreadyPaused := m.isPaused
	m.mu.Unlock()

	if alreadyPaused {
		return nil
	}

	m.logger.Info("VAD speech start: pausing TTS for barge-in", "task_id", taskID)
	if m.machine.Current() == "speaking" {
		metrics.BargeIns.Inc()
	}
	m.bus.Publish(ctx, events.NewTTSPaused(text, taskID), false)

	m.mu.Lock()
	m.isPaused = true
	m.mu.Unlock()

	if err := m.machine.Event(ctx, "barge_in"); err != nil {
		m.logger.Debug("tts fsm transition", "event", "barge_in", "error", err)
	}
	return nil
}

func (m *Manager) handleTTSPlaybackFinished(ctx context.Context, ev events.Event) error {
	m.logger.Info("TTS playback finished: resetting TTS state")
	m.resetTTS(ctx)
	if err := m.machine.Event(ctx, "playback_finished"); err != nil {
		m.logger.Debug("tts fsm transition", "event", "playback_finished", "error", err)
	}
	return nil
}

func (m *Manager) nextTaskID() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentTaskID++
	return m.currentTaskID
}

// resetTTS fully cancels the generator and consumer, clears the queue, and
// resets all turn-scoped state. Calling it twice in a row is idempotent:
// the second call finds nothing running and nothing queued.
func (m *Manager) resetTTS(ctx context.Context) {
	m.mu.Lock()
	m.isPaused = false
	m.currentText = ""
	m.accumulatedText = ""
	m.mu.Unlock()

	m.stopGenerator()
	m.stopConsumer()
	m.queue.Drain()
	m.consumer = consumerState{}

	m.logger.Info("TTS state fully reset")
}

func (m *Manager) stopGenerator() {
	if m.genCancel != nil {
		m.genCancel()
		m.genCancel = nil
	}
	m.genWG.Wait()
}

func (m *Manager) stopConsumer() {
	m.consumer.running = false
	if m.consumerCancel != nil {
		m.consumerCancel()
		m.consumerCancel = nil
	}
	m.consumerWG.Wait()
}

func (m *Manager) startGenerator(ctx context.Context, text string, taskID int64) {
	m.stopGenerator()

	gctx, cancel := context.WithCancel(ctx)
	m.genCancel = cancel

	m.genWG.Add(1)
	go func() {
		defer m.genWG.Done()
		m.runGenerator(gctx, text, taskID)
	}()
}

func (m *Manager) startConsumer(ctx context.Context) {
	if m.consumer.running {
		return
	}
	cctx, cancel := context.WithCancel(ctx)
	m.consumerCancel = cancel
	m.consumer.running = true

	m.consumerWG.Add(1)
	go func() {
		defer m.consumerWG.Done()
		m.runConsumer(cctx)
	}()
	m.logger.Info("TTS consumer started")
}

// runGenerator drives pipeline.GenerateStream(text), dedupes cumulative
// text snapshots and enqueues TTS queue items. On exhaustion or error it
// enqueues a terminal item so the consumer can emit TTSResponseFinish, but
// only if some response text was produced; a cancelled generator enqueues
// nothing further.
func (m *Manager) runGenerator(ctx context.Context, text string, taskID int64) {
	m.logger.Info("starting TTS generation", "task_id", taskID)

	chunks, errs := m.pipeline.GenerateStream(ctx, text)
	var respText string
	var genErr error

loop:
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-chunks:
			if !ok {
				break loop
			}
			// c.Text is a cumulative snapshot, not a delta: replace, never
			// append. The consumer compares full strings against the last
			// one it sent (runConsumer's lastSentText), since snapshots
			// are not guaranteed monotonically longer.
			respText = c.Text
			m.queue.Put(queueItem{TaskID: taskID, Audio: c.AudioChunk, RespText: respText, IsFinal: false})
		case err, ok := <-errs:
			if ok && err != nil {
				genErr = err
				break loop
			}
		}
	}

	if genErr != nil {
		m.logger.Error("TTS generation error", "task_id", taskID, "error", genErr)
		metrics.EventHandlerErrors.WithLabelValues("tts_generation_error").Inc()
		m.bus.Publish(ctx, events.NewErrorOccurred("tts_generation_error", genErr.Error(), "TTSManager", nil), false)
	}

	if respText != "" {
		m.queue.Put(queueItem{TaskID: taskID, RespText: respText, IsFinal: true})
	}
}

// runConsumer pops queue items with a bounded wait, honoring pause and
// task-id invalidation, and publishes the corresponding outbound events.
func (m *Manager) runConsumer(ctx context.Context) {
	m.logger.Debug("TTS consumer running")
	var lastSentText string

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		m.mu.Lock()
		paused := m.isPaused
		m.mu.Unlock()
		if paused {
			time.Sleep(pausedSleep)
			continue
		}

		item, ok := m.queue.PopWait(m.consumerPollTimeout)
		if !ok {
			continue
		}

		m.mu.Lock()
		current := m.currentTaskID
		m.mu.Unlock()
		if item.TaskID != current {
			m.logger.Debug("dropping stale TTS item", "item_task_id", item.TaskID, "current_task_id", current)
			continue
		}

		if len(item.Audio) > 0 {
			metrics.TTSChunksGenerated.Inc()
			m.bus.Publish(ctx, events.NewTTSChunkGenerated(item.Audio, item.TaskID, item.RespText), false)
		}

		if item.RespText != lastSentText {
			m.bus.Publish(ctx, events.NewTTSResponseUpdate(item.RespText, item.TaskID), false)
			lastSentText = item.RespText
			m.mu.Lock()
			m.currentText = item.RespText
			m.accumulatedText = item.RespText
			m.mu.Unlock()
		}

		if item.IsFinal {
			m.bus.Publish(ctx, events.NewTTSResponseFinish(item.RespText, item.TaskID), false)
		}

		m.consumer.processedTasks++
	}
}

// Shutdown tears down generator and consumer and resets state.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("shutting down TTS manager")
	m.resetTTS(ctx)
	m.queue.Close()
	return nil
}

// CurrentTaskID returns the task id of the turn currently being spoken (or
// paused), for tests and observability.
func (m *Manager) CurrentTaskID() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentTaskID
}
