package server

import (
	"bytes"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browser clients connect from arbitrary origins
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWebSocket upgrades an HTTP request to a WebSocket connection and
// feeds it into the same connection path as raw TCP. The binary frame
// protocol is carried as a byte stream over WebSocket binary messages;
// frames may span message boundaries.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	wsConn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		debugLog.Printf("WebSocket upgrade failed for %s: %v", r.RemoteAddr, err)
		return
	}

	s.handleConnection(newWSNetConn(wsConn))
}

// wsNetConn adapts a websocket.Conn to net.Conn so the frame codec and
// SafeConn work unchanged over WebSocket transport.
type wsNetConn struct {
	ws     *websocket.Conn
	reader io.Reader // Current binary message being drained
}

func newWSNetConn(ws *websocket.Conn) *wsNetConn {
	return &wsNetConn{ws: ws}
}

func (c *wsNetConn) Read(p []byte) (int, error) {
	for {
		if c.reader == nil {
			msgType, r, err := c.ws.NextReader()
			if err != nil {
				return 0, err
			}
			if msgType != websocket.BinaryMessage {
				// Drain and skip text/control payloads
				io.Copy(io.Discard, r)
				continue
			}
			c.reader = r
		}

		n, err := c.reader.Read(p)
		if err == io.EOF {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *wsNetConn) Write(p []byte) (int, error) {
	if err := c.ws.WriteMessage(websocket.BinaryMessage, bytes.Clone(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsNetConn) Close() error {
	return c.ws.Close()
}

func (c *wsNetConn) LocalAddr() net.Addr {
	return c.ws.LocalAddr()
}

func (c *wsNetConn) RemoteAddr() net.Addr {
	return c.ws.RemoteAddr()
}

func (c *wsNetConn) SetDeadline(t time.Time) error {
	if err := c.ws.SetReadDeadline(t); err != nil {
		return err
	}
	return c.ws.SetWriteDeadline(t)
}

func (c *wsNetConn) SetReadDeadline(t time.Time) error {
	return c.ws.SetReadDeadline(t)
}

func (c *wsNetConn) SetWriteDeadline(t time.Time) error {
	return c.ws.SetWriteDeadline(t)
}
