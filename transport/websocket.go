// Package transport provides the line-oriented connection a chat session reads
// protocol lines from. The production implementation speaks IRC over a
// WebSocket to the Twitch chat edge.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultURL is the Twitch IRC-over-WebSocket endpoint.
const DefaultURL = "wss://irc-ws.chat.twitch.tv:443"

// ErrClosed is returned by ReadLine and WriteLine once the connection is closed.
var ErrClosed = errors.New("transport: connection closed")

// Conn is an ordered, reliable line stream.
type Conn interface {
	// ReadLine blocks until the next non-empty line arrives or the connection fails.
	ReadLine() (string, error)
	// WriteLine sends one line; the line terminator is added by the Conn.
	WriteLine(line string) error
	Close() error
}

// Dialer opens a new Conn.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// WebSocket dials the chat server over a WebSocket using the "irc" subprotocol.
type WebSocket struct {
	URL          string
	Dialer       *websocket.Dialer
	WriteTimeout time.Duration
}

func (w *WebSocket) dialer() *websocket.Dialer {
	if w.Dialer != nil {
		return w.Dialer
	}
	return &websocket.Dialer{
		Proxy:            websocket.DefaultDialer.Proxy,
		HandshakeTimeout: 10 * time.Second,
		Subprotocols:     []string{"irc"},
	}
}

// Dial implements Dialer.
func (w *WebSocket) Dial(ctx context.Context) (Conn, error) {
	url := w.URL
	if url == "" {
		url = DefaultURL
	}
	conn, resp, err := w.dialer().DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	wt := w.WriteTimeout
	if wt <= 0 {
		wt = 10 * time.Second
	}
	return &wsConn{conn: conn, writeTimeout: wt, closed: make(chan struct{})}, nil
}

type wsConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	pending []string // lines from the last frame not yet returned; reader goroutine only

	wmu       sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

// ReadLine returns lines in arrival order. A single frame may carry several
// CRLF separated lines.
func (c *wsConn) ReadLine() (string, error) {
	for len(c.pending) == 0 {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
				return "", ErrClosed
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || errors.Is(err, net.ErrClosed) {
				return "", ErrClosed
			}
			return "", err
		}
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimRight(line, "\r")
			if strings.TrimSpace(line) == "" {
				continue
			}
			c.pending = append(c.pending, line)
		}
	}
	line := c.pending[0]
	c.pending = c.pending[1:]
	return line, nil
}

func (c *wsConn) WriteLine(line string) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, []byte(line+"\r\n"))
}

// Close sends a close frame (best effort) and closes the socket. Safe to call
// more than once and concurrently with ReadLine.
func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.wmu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.wmu.Unlock()
		err = c.conn.Close()
	})
	return err
}
