// Package transport wraps a gorilla/websocket connection behind the small
// read/write surface the orchestration gateways need, with a single mutex
// guarding concurrent writes.
package transport

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Conn adapts a *websocket.Conn to orchestration/gateway.Conn.
type Conn struct {
	ws    *websocket.Conn
	wmu   sync.Mutex
}

// New wraps ws.
func New(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// ReadMessage blocks for the next frame and reports whether it was text.
func (c *Conn) ReadMessage() (data []byte, isText bool, err error) {
	msgType, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, false, err
	}
	return data, msgType == websocket.TextMessage, nil
}

// WriteText sends data as a text frame. Safe for concurrent use.
func (c *Conn) WriteText(data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// WriteBinary sends data as a binary frame. Safe for concurrent use.
func (c *Conn) WriteBinary(data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.ws.WriteMessage(websocket.BinaryMessage, data)
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.ws.Close()
}
