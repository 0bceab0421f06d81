package testutil

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/chatfeed/transport"
)

// FakeDialer is an in-memory transport.Dialer. Each successful Dial creates a
// FakeConn the test drives from the server side.
type FakeDialer struct {
	mu       sync.Mutex
	failures int
	dials    int
	conns    chan *FakeConn
}

// NewFakeDialer returns a dialer whose first failures dials return an error.
func NewFakeDialer(failures int) *FakeDialer {
	return &FakeDialer{failures: failures, conns: make(chan *FakeConn, 64)}
}

// Dial implements transport.Dialer.
func (d *FakeDialer) Dial(ctx context.Context) (transport.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.dials++
	if d.failures > 0 {
		d.failures--
		d.mu.Unlock()
		return nil, errors.New("dial refused")
	}
	d.mu.Unlock()
	c := newFakeConn()
	d.conns <- c
	return c, nil
}

// Dials reports how many Dial attempts were made.
func (d *FakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// NextConn waits for the next successfully dialed connection.
func (d *FakeDialer) NextConn(t *testing.T, timeout time.Duration) *FakeConn {
	t.Helper()
	select {
	case c := <-d.conns:
		return c
	case <-time.After(timeout):
		t.Fatalf("no connection dialed within %s", timeout)
		return nil
	}
}

// FakeConn is one side of an in-memory chat connection.
type FakeConn struct {
	in      chan string
	written chan string

	mu      sync.Mutex
	lines   []string
	closeMu sync.Once
	closed  chan struct{}
	err     error
}

func newFakeConn() *FakeConn {
	return &FakeConn{
		in:      make(chan string, 256),
		written: make(chan string, 256),
		closed:  make(chan struct{}),
	}
}

// ReadLine implements transport.Conn. Buffered server lines are delivered
// before the close error.
func (c *FakeConn) ReadLine() (string, error) {
	select {
	case l := <-c.in:
		return l, nil
	default:
	}
	select {
	case l := <-c.in:
		return l, nil
	case <-c.closed:
		return "", c.err
	}
}

// WriteLine implements transport.Conn.
func (c *FakeConn) WriteLine(line string) error {
	select {
	case <-c.closed:
		return transport.ErrClosed
	default:
	}
	c.mu.Lock()
	c.lines = append(c.lines, line)
	c.mu.Unlock()
	select {
	case c.written <- line:
	default:
	}
	return nil
}

// Close implements transport.Conn.
func (c *FakeConn) Close() error {
	c.shutdown(transport.ErrClosed)
	return nil
}

func (c *FakeConn) shutdown(err error) {
	c.closeMu.Do(func() {
		c.err = err
		close(c.closed)
	})
}

// Send queues a line from the server.
func (c *FakeConn) Send(lines ...string) {
	for _, l := range lines {
		c.in <- l
	}
}

// Drop simulates the server closing the connection.
func (c *FakeConn) Drop() {
	c.shutdown(io.EOF)
}

// Closed reports whether the connection has been closed by either side.
func (c *FakeConn) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Written returns every line the client wrote so far.
func (c *FakeConn) Written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

// WaitFor blocks until the client writes a line starting with prefix.
func (c *FakeConn) WaitFor(t *testing.T, prefix string, timeout time.Duration) string {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case l := <-c.written:
			if strings.HasPrefix(l, prefix) {
				return l
			}
		case <-deadline:
			t.Fatalf("client did not write %q within %s; wrote %q", prefix, timeout, c.Written())
			return ""
		}
	}
}
