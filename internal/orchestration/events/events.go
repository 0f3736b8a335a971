// Package events defines the event envelope and payload types that flow
// across the orchestration bus. Every event carries a stable subject
// string (Subject()) used for dispatch, an opaque id, and a timestamp.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Subject identifies an event class on the bus. Stable across the wire;
// never renamed once shipped.
type Subject string

const (
	SubjectWebSocketMessageReceived Subject = "websocket.message_received"
	SubjectAudioFrameReceived       Subject = "audio.frame_received"
	SubjectVADSpeechStart           Subject = "vad.speech_start"
	SubjectVADSpeechEnd             Subject = "vad.speech_end"
	SubjectASRResultPartial         Subject = "asr.result_partial"
	SubjectASRResultFinal           Subject = "asr.result_final"
	SubjectConversationStateChanged Subject = "conversation.state_changed"
	SubjectTTSStarted               Subject = "tts.started"
	SubjectTTSStopped               Subject = "tts.stopped"
	SubjectTTSPaused                Subject = "tts.paused"
	SubjectTTSResponseUpdate        Subject = "tts.response_update"
	SubjectTTSResponseFinish        Subject = "tts.response_finish"
	SubjectTTSChunkGenerated        Subject = "tts.chunk_generated"
	SubjectTTSPlaybackFinished      Subject = "tts.playback_finished"
	SubjectVerificationResult       Subject = "verification.result"
	SubjectErrorOccurred            Subject = "error.occurred"
)

// Event is the common envelope every payload satisfies.
type Event interface {
	Subject() Subject
	ID() string
	Timestamp() time.Time
}

// base carries the fields common to every event; embed it in each payload.
type base struct {
	id   string
	at   time.Time
	subj Subject
}

func newBase(subj Subject) base {
	return base{id: uuid.NewString(), at: time.Now(), subj: subj}
}

func (b base) Subject() Subject    { return b.subj }
func (b base) ID() string          { return b.id }
func (b base) Timestamp() time.Time { return b.at }

// WebSocketMessageReceived carries a raw text frame before InputGateway
// has classified its action.
type WebSocketMessageReceived struct {
	base
	Message string
}

func NewWebSocketMessageReceived(message string) WebSocketMessageReceived {
	return WebSocketMessageReceived{base: newBase(SubjectWebSocketMessageReceived), Message: message}
}

// AudioFrameReceived is one frame of inbound PCM audio, or the sentinel
// final frame (empty Data, IsFinal true) that closes a VAD segment.
type AudioFrameReceived struct {
	base
	Data       []byte
	SampleRate int
	Channels   int
	IsFinal    bool
	Format     string
}

func NewAudioFrameReceived(data []byte, sampleRate int, isFinal bool) AudioFrameReceived {
	return AudioFrameReceived{
		base:       newBase(SubjectAudioFrameReceived),
		Data:       data,
		SampleRate: sampleRate,
		Channels:   1,
		IsFinal:    isFinal,
		Format:     "pcm_s16le",
	}
}

// VADSpeechStart signals the client detected the beginning of an utterance.
type VADSpeechStart struct {
	base
	Confidence         float64
	SpeechProbability  float64
}

func NewVADSpeechStart(confidence float64) VADSpeechStart {
	return VADSpeechStart{base: newBase(SubjectVADSpeechStart), Confidence: confidence, SpeechProbability: confidence}
}

// VADSpeechEnd signals the client detected the end of an utterance.
type VADSpeechEnd struct {
	base
	Confidence        float64
	SpeechProbability float64
}

func NewVADSpeechEnd(confidence float64) VADSpeechEnd {
	return VADSpeechEnd{base: newBase(SubjectVADSpeechEnd), Confidence: confidence, SpeechProbability: confidence}
}

// ASRResultPartial is an incremental transcript for the in-progress utterance.
type ASRResultPartial struct {
	base
	Text       string
	Confidence float64
	IsFinal    bool
}

// ASRResultFinal is the terminal transcript for one VAD segment.
type ASRResultFinal struct {
	base
	Text       string
	Confidence float64
	IsFinal    bool
}

func NewASRResult(text string, isFinal bool, confidence float64) Event {
	if isFinal {
		return ASRResultFinal{base: newBase(SubjectASRResultFinal), Text: text, Confidence: confidence, IsFinal: true}
	}
	return ASRResultPartial{base: newBase(SubjectASRResultPartial), Text: text, Confidence: confidence, IsFinal: false}
}

// ConversationStateChanged is an observability-only event published by the
// ASR/TTS state machines on every FSM transition. No component subscribes
// to it by default; it exists so logging/metrics can key off transitions
// without reaching into manager internals.
type ConversationStateChanged struct {
	base
	From   string
	To     string
	Reason string
}

func NewConversationStateChanged(from, to, reason string) ConversationStateChanged {
	return ConversationStateChanged{base: newBase(SubjectConversationStateChanged), From: from, To: to, Reason: reason}
}

// TTSStarted marks the beginning of a synthesis turn.
type TTSStarted struct {
	base
	Text   string
	TaskID int64
}

func NewTTSStarted(text string, taskID int64) TTSStarted {
	return TTSStarted{base: newBase(SubjectTTSStarted), Text: text, TaskID: taskID}
}

// TTSStopped marks a synthesis turn stopped outright (distinct from paused).
type TTSStopped struct {
	base
	Text   string
	TaskID int64
}

func NewTTSStopped(text string, taskID int64) TTSStopped {
	return TTSStopped{base: newBase(SubjectTTSStopped), Text: text, TaskID: taskID}
}

// TTSPaused marks a barge-in pause of the current turn.
type TTSPaused struct {
	base
	Text   string
	TaskID int64
}

func NewTTSPaused(text string, taskID int64) TTSPaused {
	return TTSPaused{base: newBase(SubjectTTSPaused), Text: text, TaskID: taskID}
}

// TTSResponseUpdate carries the latest cumulative response text for a turn.
type TTSResponseUpdate struct {
	base
	Text   string
	TaskID int64
}

func NewTTSResponseUpdate(text string, taskID int64) TTSResponseUpdate {
	return TTSResponseUpdate{base: newBase(SubjectTTSResponseUpdate), Text: text, TaskID: taskID}
}

// TTSResponseFinish marks a turn's response text as complete.
type TTSResponseFinish struct {
	base
	Text   string
	TaskID int64
}

func NewTTSResponseFinish(text string, taskID int64) TTSResponseFinish {
	return TTSResponseFinish{base: newBase(SubjectTTSResponseFinish), Text: text, TaskID: taskID}
}

// TTSChunkGenerated carries one synthesized audio fragment for a turn.
type TTSChunkGenerated struct {
	base
	AudioChunk []byte
	TaskID     int64
	Text       string
}

func NewTTSChunkGenerated(audioChunk []byte, taskID int64, text string) TTSChunkGenerated {
	return TTSChunkGenerated{base: newBase(SubjectTTSChunkGenerated), AudioChunk: audioChunk, TaskID: taskID, Text: text}
}

// TTSPlaybackFinished is an optional client-originated ack that playback of
// a turn's audio completed. Its absence is not an error: the next
// ASRResultFinal performs the same reset.
type TTSPlaybackFinished struct {
	base
	FinalText string
}

func NewTTSPlaybackFinished(finalText string) TTSPlaybackFinished {
	return TTSPlaybackFinished{base: newBase(SubjectTTSPlaybackFinished), FinalText: finalText}
}

// VerificationResult is kept for wire compatibility. No component in this
// module schedules verification work; nothing publishes this event today,
// but code that receives one over the bus (from a future verification
// pipeline) will resolve to this type.
type VerificationResult struct {
	base
	IsValid        bool
	Text           string
	Confidence     float64
	Reason         string
	ValidationTime time.Time
	TextLength     int
	ChunkCount     int
}

func NewVerificationResult(isValid bool, text string, confidence float64, reason string, textLength, chunkCount int) VerificationResult {
	return VerificationResult{
		base:           newBase(SubjectVerificationResult),
		IsValid:        isValid,
		Text:           text,
		Confidence:     confidence,
		Reason:         reason,
		ValidationTime: time.Now(),
		TextLength:     textLength,
		ChunkCount:     chunkCount,
	}
}

// ErrorOccurred is the sole error-reporting event on the bus. error_type
// values are drawn from a closed taxonomy (event_bus_publish_error,
// event_handler_error, asr_consumer_error, tts_consumer_error,
// tts_generation_error); Component names the publishing component.
type ErrorOccurred struct {
	base
	ErrorType    string
	ErrorMessage string
	Component    string
	Context      map[string]any
}

func NewErrorOccurred(errorType, errorMessage, component string, context map[string]any) ErrorOccurred {
	if context == nil {
		context = map[string]any{}
	}
	return ErrorOccurred{
		base:         newBase(SubjectErrorOccurred),
		ErrorType:    errorType,
		ErrorMessage: errorMessage,
		Component:    component,
		Context:      context,
	}
}
