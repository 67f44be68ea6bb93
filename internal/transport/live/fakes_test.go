package live

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/fasthttp/websocket"
	"github.com/scrapedeck/console/internal/domain"
	"github.com/stretchr/testify/require"
)

var errServerClosed = errors.New("websocket: close 1000 (normal)")

// fakeConn is an in-memory connection. Frames pushed by the test are read
// in order; drop simulates a server-side close.
type fakeConn struct {
	frames chan []byte
	gone   chan struct{}
	closed chan struct{}

	dropOnce  sync.Once
	closeOnce sync.Once

	mu      sync.Mutex
	written [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames: make(chan []byte, 16),
		gone:   make(chan struct{}),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) push(frame string) {
	c.frames <- []byte(frame)
}

func (c *fakeConn) drop() {
	c.dropOnce.Do(func() { close(c.gone) })
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.frames:
		return websocket.TextMessage, data, nil
	case <-c.gone:
		return 0, nil, errServerClosed
	case <-c.closed:
		return 0, nil, net.ErrClosed
	}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	select {
	case <-c.closed:
		return net.ErrClosed
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) Written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.written))
	for i, w := range c.written {
		out[i] = string(w)
	}
	return out
}

// fakeDialer fails the first `failures` dials, then hands out fresh
// fakeConns.
type fakeDialer struct {
	mu       sync.Mutex
	dials    int
	failures int
	conns    []*fakeConn
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dials++
	if d.failures != 0 {
		if d.failures > 0 {
			d.failures--
		}
		return nil, errors.New("connection refused")
	}
	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// setFailures sets how many upcoming dials fail; negative fails forever.
func (d *fakeDialer) setFailures(n int) {
	d.mu.Lock()
	d.failures = n
	d.mu.Unlock()
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

func mustPatch(t *testing.T, raw string) domain.TaskPatch {
	t.Helper()
	p, err := domain.DecodeTaskPatch([]byte(raw))
	require.NoError(t, err)
	return p
}
