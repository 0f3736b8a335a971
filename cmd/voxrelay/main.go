package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relaylabs/voxrelay/internal/config"
	"github.com/relaylabs/voxrelay/internal/env"
	"github.com/relaylabs/voxrelay/internal/metrics"
	"github.com/relaylabs/voxrelay/internal/orchestration/recognizer"
	"github.com/relaylabs/voxrelay/internal/orchestration/service"
	"github.com/relaylabs/voxrelay/internal/orchestration/synth"
	"github.com/relaylabs/voxrelay/internal/transport"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16384,
	WriteBufferSize: 16384,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	tuning, err := config.Load("voxrelay.json")
	if err != nil {
		slog.Error("failed to load tuning config", "error", err)
		os.Exit(1)
	}

	port := env.Str("VOXRELAY_PORT", "8000")
	recognizerURL := env.Str("RECOGNIZER_URL", "http://localhost:9000")
	llmURL := env.Str("LLM_URL", "http://localhost:11434")
	llmModel := env.Str("LLM_MODEL", "llama3.2:3b")
	llmSystemPrompt := env.Str("LLM_SYSTEM_PROMPT", "You are a helpful, concise conversational voice assistant.")
	llmMaxTokens := 1024
	ttsURL := env.Str("TTS_URL", "http://localhost:5002")
	ttsVoice := env.Str("TTS_VOICE", "en_US-lessac-medium")
	recognizerPoolSize := 20
	pipelinePoolSize := 20

	rec := recognizer.NewHTTPRecognizer(recognizerURL, recognizerPoolSize, tuning.ChunkSecs)
	pipeline := synth.NewHTTPPipeline(llmURL, llmModel, llmSystemPrompt, llmMaxTokens, ttsURL, ttsVoice, pipelinePoolSize)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ws", wsHandler(rec, pipeline, tuning))

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: mux}

	go awaitShutdown(srv)

	slog.Info("voxrelay starting", "addr", addr)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}

	slog.Info("voxrelay stopped")
}

func wsHandler(rec recognizer.Recognizer, pipeline synth.Pipeline, tuning config.Tuning) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Error("websocket upgrade failed", "error", err)
			return
		}
		defer ws.Close()

		metrics.SessionsActive.Inc()
		metrics.SessionsTotal.Inc()
		defer metrics.SessionsActive.Dec()

		conn := transport.New(ws)
		svc := service.New(conn, rec, pipeline, tuning, slog.Default())
		svc.Run(r.Context())
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// awaitShutdown blocks until SIGINT/SIGTERM, then gracefully shuts down the
// HTTP server: it stops accepting connections and waits up to 30s for
// in-flight HTTP requests. Upgraded websocket connections are hijacked and
// are not tracked by http.Server.Shutdown, so live conversation sessions
// are neither closed nor waited for.
func awaitShutdown(srv *http.Server) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
}
