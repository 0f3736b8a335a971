package synth

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPPipeline streams a chat completion from an Ollama-compatible LLM
// endpoint and synthesizes audio for each completed sentence via a Piper-
// compatible TTS endpoint, emitting one Chunk per sentence boundary.
type HTTPPipeline struct {
	llmURL       string
	llmModel     string
	systemPrompt string
	maxTokens    int

	ttsURL string
	voice  string

	client *http.Client
}

// NewHTTPPipeline builds a pipeline against the given LLM and TTS backends.
func NewHTTPPipeline(llmURL, llmModel, systemPrompt string, maxTokens int, ttsURL, voice string, poolSize int) *HTTPPipeline {
	return &HTTPPipeline{
		llmURL:       llmURL,
		llmModel:     llmModel,
		systemPrompt: systemPrompt,
		maxTokens:    maxTokens,
		ttsURL:       ttsURL,
		voice:        voice,
		client:       newPooledHTTPClient(poolSize, 60*time.Second),
	}
}

func (p *HTTPPipeline) GenerateStream(ctx context.Context, text string) (<-chan Chunk, <-chan error) {
	chunks := make(chan Chunk)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		resp, err := p.postChatRequest(ctx, text)
		if err != nil {
			errs <- err
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			errs <- fmt.Errorf("llm status %d: %s", resp.StatusCode, body)
			return
		}

		var accumulated strings.Builder
		var sentences sentenceBuffer

		emit := func(seg string) bool {
			if seg == "" {
				return true
			}
			audio, err := p.synthesize(ctx, seg)
			if err != nil {
				errs <- err
				return false
			}
			select {
			case chunks <- Chunk{AudioChunk: audio, Text: accumulated.String(), ASRText: text}:
				return true
			case <-ctx.Done():
				return false
			}
		}

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			default:
			}

			var line ollamaStreamChunk
			if json.Unmarshal(scanner.Bytes(), &line) != nil {
				continue
			}
			if line.Done {
				break
			}
			token := line.Message.Content
			if token == "" {
				continue
			}
			accumulated.WriteString(token)
			if complete := sentences.add(token); complete != "" {
				if !emit(complete) {
					return
				}
			}
		}
		if err := scanner.Err(); err != nil {
			errs <- fmt.Errorf("read llm stream: %w", err)
			return
		}

		emit(sentences.flush())
	}()

	return chunks, errs
}

func (p *HTTPPipeline) postChatRequest(ctx context.Context, userMessage string) (*http.Response, error) {
	reqBody := ollamaRequest{
		Model:  p.llmModel,
		Stream: true,
		Messages: []ollamaMessage{
			{Role: "system", Content: p.systemPrompt},
			{Role: "user", Content: userMessage},
		},
		Options: ollamaOptions{NumPredict: p.maxTokens},
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal llm request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.llmURL+"/api/chat", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("create llm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm request: %w", err)
	}
	return resp, nil
}

func (p *HTTPPipeline) synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	reqBody, err := json.Marshal(ttsRequest{Text: text, Voice: p.voice})
	if err != nil {
		return nil, fmt.Errorf("marshal tts request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.ttsURL+"/synthesize", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tts status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Stream   bool            `json:"stream"`
	Messages []ollamaMessage `json:"messages"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	NumPredict int `json:"num_predict"`
}

type ollamaStreamChunk struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

type ttsRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}
