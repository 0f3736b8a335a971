// Package synth defines the LLM-to-speech pipeline contract TTSManager
// drives. The LLM and synthesizer engines themselves are out of scope;
// this package only describes the shape the manager needs.
package synth

import "context"

// Chunk is one element of a synthesis stream: a cumulative text snapshot
// and a (possibly empty) audio fragment for that increment.
type Chunk struct {
	AudioChunk []byte
	Text       string
	ASRText    string
}

// Pipeline drives text through an LLM and an incremental synthesizer and
// streams back Chunks. GenerateStream must be safe to abandon mid-stream:
// if ctx is cancelled, implementations should stop producing and close
// their output promptly.
type Pipeline interface {
	GenerateStream(ctx context.Context, text string) (<-chan Chunk, <-chan error)
}
