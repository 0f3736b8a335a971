package orchestrationtest

import (
	"errors"
	"sync"
)

// FakeFrame is one frame a FakeConn replays to a gateway.InputGateway.
type FakeFrame struct {
	Data   []byte
	IsText bool
}

// FakeConn is a gateway.Conn double fed a fixed sequence of frames. Once
// exhausted, ReadMessage blocks on Stop (if non-nil) before erroring, so a
// test can hold a connection open across a background goroutine's
// processing of the last frame; with Stop nil, it errors immediately.
type FakeConn struct {
	mu       sync.Mutex
	Frames   []FakeFrame
	idx      int
	Written  [][]byte
	Binaries [][]byte
	Stop     chan struct{}
}

// NewFakeConn constructs a FakeConn that errors as soon as frames run out.
func NewFakeConn(frames ...FakeFrame) *FakeConn {
	return &FakeConn{Frames: frames}
}

func (c *FakeConn) ReadMessage() ([]byte, bool, error) {
	c.mu.Lock()
	if c.idx < len(c.Frames) {
		f := c.Frames[c.idx]
		c.idx++
		c.mu.Unlock()
		return f.Data, f.IsText, nil
	}
	stop := c.Stop
	c.mu.Unlock()

	if stop != nil {
		<-stop
	}
	return nil, false, errors.New("connection closed")
}

func (c *FakeConn) WriteText(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Written = append(c.Written, data)
	return nil
}

func (c *FakeConn) WriteBinary(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Binaries = append(c.Binaries, data)
	return nil
}

func (c *FakeConn) SnapshotWritten() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.Written...)
}

func (c *FakeConn) SnapshotBinaries() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.Binaries...)
}
