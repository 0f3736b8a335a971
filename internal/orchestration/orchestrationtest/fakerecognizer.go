package orchestrationtest

import "github.com/relaylabs/voxrelay/internal/orchestration/recognizer"

// FakeRecognizer returns a fixed text increment per non-empty chunk and
// splits audio using the production chunking helpers, so tests can exercise
// ASRManager's real chunk-boundary and final-flush logic against a
// deterministic stand-in for a real transcription server.
type FakeRecognizer struct {
	ChunkSecsVal float64
	// Increment is returned for every non-empty chunk; defaults to "x".
	Increment string
	Calls     int
}

func (r *FakeRecognizer) ChunkSecs() float64 { return r.ChunkSecsVal }

func (r *FakeRecognizer) RecognizeStream(chunk []float32, cache recognizer.Cache, isFinal bool) (string, error) {
	r.Calls++
	if len(chunk) == 0 {
		return "", nil
	}
	if r.Increment != "" {
		return r.Increment, nil
	}
	return "x", nil
}

func (r *FakeRecognizer) GetChunks(audio []float32, srcSampleRate int) ([][]float32, error) {
	stride := recognizer.ChunkStride(r.ChunkSecs())
	return recognizer.SplitChunks(audio, stride), nil
}
