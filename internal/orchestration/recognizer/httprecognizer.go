package recognizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// defaultChunkSecs is the duration of audio this recognizer asks ASRManager
// to accumulate before each RecognizeStream call, used when no override is
// configured.
const defaultChunkSecs = 0.6

// HTTPRecognizer drives a streaming-capable transcription server over
// HTTP, one chunk per request. The server is expected to key its internal
// decoder state off the session_id form field and reset it when told the
// chunk is final.
type HTTPRecognizer struct {
	url       string
	client    *http.Client
	chunkSecs float64
}

// NewHTTPRecognizer builds a client pointed at a transcription server.
// chunkSecs <= 0 falls back to defaultChunkSecs.
func NewHTTPRecognizer(url string, poolSize int, chunkSecs float64) *HTTPRecognizer {
	if chunkSecs <= 0 {
		chunkSecs = defaultChunkSecs
	}
	return &HTTPRecognizer{
		url:       url,
		client:    newPooledHTTPClient(poolSize, 10*time.Second),
		chunkSecs: chunkSecs,
	}
}

func (r *HTTPRecognizer) ChunkSecs() float64 { return r.chunkSecs }

// RecognizeStream posts one chunk of already-resampled audio, along with
// the streaming session id carried in cache, and returns the text
// increment the server attributes to this chunk.
func (r *HTTPRecognizer) RecognizeStream(chunk []float32, cache Cache, isFinal bool) (string, error) {
	sessionID, _ := cache["session_id"].(string)
	if sessionID == "" {
		sessionID = fmt.Sprintf("sess-%d", time.Now().UnixNano())
		cache["session_id"] = sessionID
	}

	body, contentType, err := buildMultipartChunk(chunk, sessionID, isFinal)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, r.url+"/stream", body)
	if err != nil {
		return "", fmt.Errorf("create recognize request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("recognize request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("recognize status %d: %s", resp.StatusCode, string(respBody))
	}

	var streamResp struct {
		TextIncrement string `json:"text_increment"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&streamResp); err != nil {
		return "", fmt.Errorf("decode recognize response: %w", err)
	}

	if isFinal {
		delete(cache, "session_id")
	}
	return streamResp.TextIncrement, nil
}

// GetChunks resamples audio to TargetSampleRate if needed, then splits it
// into ChunkStride-sized chunks.
func (r *HTTPRecognizer) GetChunks(audio []float32, srcSampleRate int) ([][]float32, error) {
	resampled := resample(audio, srcSampleRate, TargetSampleRate)
	return SplitChunks(resampled, ChunkStride(r.ChunkSecs())), nil
}

func buildMultipartChunk(samples []float32, sessionID string, isFinal bool) (*bytes.Buffer, string, error) {
	wavData := samplesToWAV(samples, TargetSampleRate)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("session_id", sessionID); err != nil {
		return nil, "", fmt.Errorf("write session_id field: %w", err)
	}
	if isFinal {
		if err := writer.WriteField("is_final", "true"); err != nil {
			return nil, "", fmt.Errorf("write is_final field: %w", err)
		}
	}

	part, err := writer.CreateFormFile("file", "chunk.wav")
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(wavData); err != nil {
		return nil, "", fmt.Errorf("write wav data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}

	return &body, writer.FormDataContentType(), nil
}
