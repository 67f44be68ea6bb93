package session

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/scrapedeck/console/internal/config"
	"github.com/scrapedeck/console/internal/domain"
	"github.com/scrapedeck/console/internal/transport/live"
	"github.com/scrapedeck/console/pkg/utils/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		API: config.APIConfig{BaseURL: "http://backend.test", Prefix: "/api/v1", MaxRetries: 0},
		Live: config.LiveConfig{
			BaseURL:     "ws://backend.test",
			Path:        "/ws/scraping",
			MaxAttempts: 5,
			BaseDelay:   time.Second,
			MaxDelay:    10 * time.Second,
		},
		Poll:          config.PollConfig{Interval: 5 * time.Second},
		Notifications: config.NotificationsConfig{DefaultDuration: 5 * time.Second},
	}
}

type listAPI struct {
	mu      sync.Mutex
	records []string
	lists   int
	err     error
}

func (a *listAPI) ListTasks(ctx context.Context) ([]json.RawMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lists++
	if a.err != nil {
		return nil, a.err
	}
	out := make([]json.RawMessage, len(a.records))
	for i, r := range a.records {
		out[i] = json.RawMessage(r)
	}
	return out, nil
}

func (a *listAPI) Lists() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lists
}

func (a *listAPI) GetTask(ctx context.Context, id string) (json.RawMessage, error) {
	return nil, errors.New("not implemented")
}

func (a *listAPI) CreateTask(ctx context.Context, spec domain.TaskSpec) (string, error) {
	return "", errors.New("not implemented")
}

func (a *listAPI) ExecuteTask(ctx context.Context, id string) (json.RawMessage, error) {
	return nil, errors.New("not implemented")
}

func (a *listAPI) RetryTask(ctx context.Context, id string) error {
	return errors.New("not implemented")
}

func (a *listAPI) DeleteTask(ctx context.Context, id string) error {
	return errors.New("not implemented")
}

func (a *listAPI) TaskLogs(ctx context.Context, id string) (json.RawMessage, error) {
	return nil, errors.New("not implemented")
}

func (a *listAPI) TaskResults(ctx context.Context, id string) (json.RawMessage, error) {
	return nil, errors.New("not implemented")
}

type pipeConn struct {
	frames chan []byte
	closed chan struct{}
	once   sync.Once
}

func (c *pipeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.frames:
		return websocket.TextMessage, data, nil
	case <-c.closed:
		return 0, nil, net.ErrClosed
	}
}

func (c *pipeConn) WriteMessage(int, []byte) error { return nil }

func (c *pipeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type pipeDialer struct {
	mu   sync.Mutex
	url  string
	conn *pipeConn
	fail bool
}

func (d *pipeDialer) Dial(ctx context.Context, url string) (live.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.url = url
	if d.fail {
		return nil, errors.New("connection refused")
	}
	d.conn = &pipeConn{frames: make(chan []byte, 8), closed: make(chan struct{})}
	return d.conn, nil
}

func TestSession_StartLoadsAndConnects(t *testing.T) {
	api := &listAPI{records: []string{`{"_id": {"$oid": "T1"}, "status": "running"}`, `{"id": "T2", "status": "pending"}`}}
	dialer := &pipeDialer{}
	fake := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	s := New(testConfig(), WithTaskAPI(api), WithDialer(dialer), WithClock(fake))
	t.Cleanup(s.Close)

	require.NoError(t, s.Start(context.Background()))

	assert.Equal(t, 2, s.Registry.Len())
	assert.Equal(t, domain.ChannelOpen, s.Channel.State())
	assert.Equal(t, "ws://backend.test/ws/scraping", dialer.url)

	dialer.conn.frames <- []byte(`{"type": "task_complete", "task": {"id": "T1", "status": "completed"}}`)
	require.Eventually(t, func() bool {
		return len(s.Notifications.List()) == 1
	}, time.Second, time.Millisecond)

	task, _ := s.Registry.Get("T1")
	assert.Equal(t, domain.TaskStatusCompleted, task.Status)

	fake.Advance(5 * time.Second)
	assert.Empty(t, s.Notifications.List())
}

func TestSession_StartSurvivesFailedRefresh(t *testing.T) {
	api := &listAPI{err: domain.ErrTransport}
	fake := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	s := New(testConfig(), WithTaskAPI(api), WithDialer(&pipeDialer{}), WithClock(fake))
	t.Cleanup(s.Close)

	require.NoError(t, s.Start(context.Background()))
	assert.NotEmpty(t, s.Registry.Err())
	assert.Equal(t, domain.ChannelOpen, s.Channel.State())
}

func TestSession_RunPollsWhileChannelDown(t *testing.T) {
	api := &listAPI{}
	dialer := &pipeDialer{fail: true}
	fake := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	s := New(testConfig(), WithTaskAPI(api), WithDialer(dialer), WithClock(fake))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// Retry timer plus the poller timer.
	require.Eventually(t, func() bool { return fake.Pending() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, api.Lists())

	fake.Advance(5 * time.Second)
	require.Eventually(t, func() bool { return api.Lists() == 2 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, domain.ChannelClosedFinal, s.Channel.State())
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	s := New(testConfig(), WithTaskAPI(&listAPI{}), WithDialer(&pipeDialer{}))
	require.NoError(t, s.Start(context.Background()))

	s.Close()
	s.Close()
	assert.Equal(t, domain.ChannelClosedFinal, s.Channel.State())
}
