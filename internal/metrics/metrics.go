// Package metrics exposes promauto-registered Prometheus metrics for the
// orchestration core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voxrelay_sessions_active",
		Help: "Currently active conversation sessions",
	})

	SessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voxrelay_sessions_total",
		Help: "Total conversation sessions served",
	})

	AudioFramesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voxrelay_audio_frames_received_total",
		Help: "Total inbound audio frames published to the bus",
	})

	ASRBufferDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voxrelay_asr_buffer_depth",
		Help: "Frames currently queued in the ASR audio buffer",
	})

	ASRPartialResults = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voxrelay_asr_partial_results_total",
		Help: "Partial ASR transcripts published",
	})

	TTSChunksGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voxrelay_tts_chunks_generated_total",
		Help: "TTS audio chunks published",
	})

	BargeIns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voxrelay_barge_ins_total",
		Help: "VADSpeechStart events observed while TTS was speaking",
	})

	EventHandlerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voxrelay_event_handler_errors_total",
		Help: "Handler failures surfaced as error.occurred, by error_type",
	}, []string{"error_type"})

	HandlerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voxrelay_event_handler_duration_seconds",
		Help:    "Event handler execution latency by subject",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"subject"})
)
