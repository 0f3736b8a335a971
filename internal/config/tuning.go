// Package config loads the orchestration core's tuning knobs from a JSON
// file, falling back to in-code defaults when the file is missing so
// startup never hard-fails on it.
package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"time"
)

// Tuning holds knobs that affect timing and throughput but not the
// correctness of the conversation state machines.
type Tuning struct {
	// ChunkSecs is the recognizer's requested chunk duration, used to
	// derive ASRManager's chunk_byte_target.
	ChunkSecs float64 `json:"chunk_secs"`
	// AudioBufferCapacity bounds the ASR audio buffer (default 1000 frames).
	AudioBufferCapacity int `json:"audio_buffer_capacity"`
	// TTSConsumerPollMs is the TTS consumer's queue poll timeout.
	TTSConsumerPollMs int `json:"tts_consumer_poll_ms"`
	// ASRConsumerPollMs is the ASR consumer's empty-buffer sleep interval.
	ASRConsumerPollMs int `json:"asr_consumer_poll_ms"`
	// BusShutdownGraceSeconds bounds how long EventBus.Shutdown waits for
	// in-flight handlers before giving up.
	BusShutdownGraceSeconds int `json:"bus_shutdown_grace_seconds"`
}

// Default returns the documented production defaults.
func Default() Tuning {
	return Tuning{
		ChunkSecs:               0.6,
		AudioBufferCapacity:     1000,
		TTSConsumerPollMs:       100,
		ASRConsumerPollMs:       5,
		BusShutdownGraceSeconds: 3,
	}
}

// BusShutdownGrace returns the configured grace as a time.Duration.
func (t Tuning) BusShutdownGrace() time.Duration {
	return time.Duration(t.BusShutdownGraceSeconds) * time.Second
}

// Load reads a tuning file at path, falling back to Default() if the file
// is absent. A malformed file that does exist is a startup error.
func Load(path string) (Tuning, error) {
	t := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("tuning file not found, using defaults", "path", path)
			return t, nil
		}
		return t, err
	}

	if err := json.Unmarshal(data, &t); err != nil {
		return t, err
	}
	return t, nil
}
