package live

import (
	"context"
	"net"
	"testing"
	"time"

	fiberws "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/scrapedeck/console/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frameRecorder chan string

func (r frameRecorder) HandleMessage(data []byte) {
	r <- string(data)
}

// startBackend serves /ws/scraping with fiber: it pushes one task_update,
// echoes the first client frame back to the test and then hangs up.
func startBackend(t *testing.T) (string, <-chan string) {
	t.Helper()

	received := make(chan string, 1)
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/ws/scraping", fiberws.New(func(c *fiberws.Conn) {
		if err := c.WriteMessage(fiberws.TextMessage, []byte(`{"type": "task_update", "task": {"id": "T1"}}`)); err != nil {
			return
		}
		_, msg, err := c.ReadMessage()
		if err != nil {
			return
		}
		received <- string(msg)
		c.Close()
	}))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go app.Listener(ln)
	t.Cleanup(func() { app.Shutdown() })

	return "ws://" + ln.Addr().String() + "/ws/scraping", received
}

func TestWebsocketDialer_AgainstFiberBackend(t *testing.T) {
	url, received := startBackend(t)
	frames := make(frameRecorder, 4)

	m := NewManager(ManagerConfig{
		URL:              url,
		Dialer:           NewWebsocketDialer(time.Second),
		Handler:          frames,
		Backoff:          Backoff{Base: time.Hour, Max: time.Hour},
		HandshakeTimeout: time.Second,
	})
	t.Cleanup(m.Stop)

	require.NoError(t, m.Start(context.Background()))
	require.Equal(t, domain.ChannelOpen, m.State())

	select {
	case frame := <-frames:
		assert.JSONEq(t, `{"type": "task_update", "task": {"id": "T1"}}`, frame)
	case <-time.After(2 * time.Second):
		t.Fatal("no frame from backend")
	}

	require.NoError(t, m.Send(map[string]string{"type": "subscribe"}))
	select {
	case msg := <-received:
		assert.JSONEq(t, `{"type": "subscribe"}`, msg)
	case <-time.After(2 * time.Second):
		t.Fatal("backend did not receive the client frame")
	}

	require.Eventually(t, func() bool {
		return m.State() == domain.ChannelClosedRetrying
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, time.Hour, m.Status().NextDelay)
}

func TestWebsocketDialer_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	_, err = NewWebsocketDialer(time.Second).Dial(context.Background(), "ws://"+addr+"/ws/scraping")
	assert.ErrorIs(t, err, domain.ErrTransport)
}
