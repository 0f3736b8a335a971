package asr

import (
	"encoding/binary"
	"errors"
	"log/slog"
	"time"

	"github.com/smallnest/ringbuffer"
)

// frame is one buffered audio chunk awaiting the ASR consumer.
type frame struct {
	Data       []byte
	Timestamp  time.Time
	SampleRate int
	IsFinal    bool
}

// frameBuffer is a bounded, FIFO, oldest-drop queue of frames, backed by a
// byte-oriented ring buffer with a length-prefixed framing scheme. Capacity
// is expressed in frame count, not bytes, so the underlying byte buffer is
// sized generously and a frame counter enforces the count bound
// independently of how many bytes are actually in flight.
type frameBuffer struct {
	maxFrames int
	count     int
	rb        *ringbuffer.RingBuffer
}

// bytesPerFrameHint sizes the backing byte buffer; production audio frames
// are small (tens of ms of PCM16), so this comfortably holds 1000 of them
// without needing byte-level eviction in the common case — frame-count
// eviction below still bounds things even if frames run larger.
const bytesPerFrameHint = 4096

func newFrameBuffer(maxFrames int) *frameBuffer {
	if maxFrames <= 0 {
		maxFrames = 1000
	}
	return &frameBuffer{
		maxFrames: maxFrames,
		rb:        ringbuffer.New(maxFrames * bytesPerFrameHint).SetBlocking(false),
	}
}

// Push appends f, evicting the oldest buffered frame(s) first if the
// buffer is already at capacity or doesn't have byte space for f.
func (b *frameBuffer) Push(f frame) error {
	data := marshalFrame(f)
	required := len(data) + 4

	for b.count >= b.maxFrames || required > b.rb.Free() {
		if !b.dropOldest() {
			b.rb.Reset()
			b.count = 0
			break
		}
	}

	size := make([]byte, 4)
	binary.LittleEndian.PutUint32(size, uint32(len(data)))
	if _, err := b.rb.Write(size); err != nil {
		return err
	}
	if _, err := b.rb.Write(data); err != nil {
		return err
	}
	b.count++
	return nil
}

// Pop removes and returns the oldest buffered frame, if any.
func (b *frameBuffer) Pop() (frame, bool) {
	if b.rb.IsEmpty() || b.count == 0 {
		return frame{}, false
	}
	size := make([]byte, 4)
	n, err := b.rb.Read(size)
	if err != nil || n != 4 {
		slog.Default().Warn("ring buffer short read", "error", errShortFrame, "where", "length prefix")
		return frame{}, false
	}
	length := binary.LittleEndian.Uint32(size)
	data := make([]byte, length)
	n, err = b.rb.Read(data)
	if err != nil || uint32(n) != length {
		slog.Default().Warn("ring buffer short read", "error", errShortFrame, "where", "frame body")
		return frame{}, false
	}
	b.count--
	return unmarshalFrame(data), true
}

func (b *frameBuffer) Len() int { return b.count }

// Reset drops all buffered frames.
func (b *frameBuffer) Reset() {
	b.rb.Reset()
	b.count = 0
}

func (b *frameBuffer) dropOldest() bool {
	if b.rb.IsEmpty() || b.count == 0 {
		return false
	}
	size := make([]byte, 4)
	n, err := b.rb.Read(size)
	if err != nil || n != 4 {
		return false
	}
	length := binary.LittleEndian.Uint32(size)
	if length > 0 {
		skip := make([]byte, length)
		n, err := b.rb.Read(skip)
		if err != nil || uint32(n) != length {
			return false
		}
	}
	b.count--
	return true
}

var errShortFrame = errors.New("asr: truncated frame in ring buffer")

// marshalFrame/unmarshalFrame implement a minimal binary encoding: an
// 8-byte unix-nano timestamp, a 4-byte sample rate, a 1-byte is_final
// flag, then the raw audio bytes.
func marshalFrame(f frame) []byte {
	out := make([]byte, 8+4+1+len(f.Data))
	binary.LittleEndian.PutUint64(out[0:8], uint64(f.Timestamp.UnixNano()))
	binary.LittleEndian.PutUint32(out[8:12], uint32(f.SampleRate))
	if f.IsFinal {
		out[12] = 1
	}
	copy(out[13:], f.Data)
	return out
}

func unmarshalFrame(data []byte) frame {
	if len(data) < 13 {
		return frame{}
	}
	ts := time.Unix(0, int64(binary.LittleEndian.Uint64(data[0:8])))
	sr := int(binary.LittleEndian.Uint32(data[8:12]))
	isFinal := data[12] == 1
	audio := make([]byte, len(data)-13)
	copy(audio, data[13:])
	return frame{Data: audio, Timestamp: ts, SampleRate: sr, IsFinal: isFinal}
}
