// Package recognizer defines the black-box contract ASRManager drives. The
// recognizer engine itself is out of scope; this package only describes
// the shape ASRManager needs, plus a chunking helper.
package recognizer

import "math"

// TargetSampleRate is the sample rate recognizer implementations expect
// their input resampled to.
const TargetSampleRate = 16000

// Cache is an opaque, recognizer-owned streaming state container. The
// orchestration core only passes it through, clearing it when a segment
// finalizes.
type Cache map[string]any

// Recognizer is the streaming ASR contract. Implementations may be
// CPU-bound; callers are expected to offload blocking calls to a worker if
// needed.
type Recognizer interface {
	// ChunkSecs is the recognizer's requested chunk duration in seconds,
	// used to derive ASRManager's chunk_byte_target.
	ChunkSecs() float64

	// RecognizeStream performs one incremental recognition step over a
	// single recognizer-sized chunk, threading cache across calls within a
	// segment. Returns the text increment produced by this chunk, if any.
	RecognizeStream(chunk []float32, cache Cache, isFinal bool) (textIncrement string, err error)

	// GetChunks resamples audio (if srcSampleRate != TargetSampleRate) and
	// splits it into recognizer-sized chunks.
	GetChunks(audio []float32, srcSampleRate int) ([][]float32, error)
}

// ChunkStride returns the number of samples per chunk for a recognizer
// whose ChunkSecs() is chunkSecs, at the target sample rate.
func ChunkStride(chunkSecs float64) int {
	stride := int(chunkSecs * TargetSampleRate)
	if stride <= 0 {
		stride = 1
	}
	return stride
}

// SplitChunks splits audio (already at TargetSampleRate) into chunkStride
// sized chunks, the last one possibly shorter. Chunk count is
// ceil(len(audio)/stride), so no trailing samples are ever dropped.
func SplitChunks(audio []float32, chunkStride int) [][]float32 {
	if chunkStride <= 0 || len(audio) == 0 {
		if len(audio) == 0 {
			return nil
		}
		return [][]float32{audio}
	}
	n := int(math.Ceil(float64(len(audio)) / float64(chunkStride)))
	chunks := make([][]float32, 0, n)
	for start := 0; start < len(audio); start += chunkStride {
		end := start + chunkStride
		if end > len(audio) {
			end = len(audio)
		}
		chunks = append(chunks, audio[start:end])
	}
	return chunks
}
