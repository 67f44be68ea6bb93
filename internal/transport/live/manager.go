package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/scrapedeck/console/internal/core/ports"
	"github.com/scrapedeck/console/internal/domain"
	"github.com/scrapedeck/console/internal/infrastructure/logger"
	"github.com/scrapedeck/console/pkg/utils/clock"
)

var (
	ErrNotRunning     = errors.New("live: channel not running")
	ErrAlreadyStarted = errors.New("live: channel already started")
)

const DefaultHandshakeTimeout = 10 * time.Second

// Conn is the subset of *websocket.Conn the manager uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// MessageHandler receives every inbound frame in arrival order.
type MessageHandler interface {
	HandleMessage(data []byte)
}

// Manager owns the push connection. It moves through connecting, open,
// closed-retrying and closed-final; a server-side close schedules a retry
// with exponential backoff until MaxAttempts consecutive retries have
// failed. Only Stop ends the channel for good; Reconnect revives it from
// closed-final.
type Manager struct {
	url              string
	dialer           Dialer
	handler          MessageHandler
	clock            clock.Clock
	backoff          Backoff
	maxAttempts      int
	handshakeTimeout time.Duration
	logger           *logger.Logger

	mu        sync.Mutex
	state     domain.ChannelState
	attempts  int
	nextDelay time.Duration
	conn      Conn
	timer     clock.Timer
	epoch     uint64
	started   bool
	stopped   bool
	ctx       context.Context
	cancel    context.CancelFunc
}

type ManagerConfig struct {
	URL              string
	Dialer           Dialer
	Handler          MessageHandler
	Clock            clock.Clock
	Backoff          Backoff
	MaxAttempts      int
	HandshakeTimeout time.Duration
	Logger           *logger.Logger
}

func NewManager(cfg ManagerConfig) *Manager {
	c := cfg.Clock
	if c == nil {
		c = clock.Real()
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	handshake := cfg.HandshakeTimeout
	if handshake <= 0 {
		handshake = DefaultHandshakeTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = NewWebsocketDialer(handshake)
	}

	return &Manager{
		url:              cfg.URL,
		dialer:           dialer,
		handler:          cfg.Handler,
		clock:            c,
		backoff:          cfg.Backoff,
		maxAttempts:      maxAttempts,
		handshakeTimeout: handshake,
		logger:           log,
		state:            domain.ChannelConnecting,
	}
}

var _ ports.LiveChannel = (*Manager)(nil)

// Start performs the first dial and returns once it has succeeded or a
// retry has been scheduled. ctx bounds the whole life of the channel.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.ctx, m.cancel = context.WithCancel(ctx)
	epoch := m.epoch
	m.mu.Unlock()

	m.connect(epoch)
	return nil
}

// Stop closes the connection, cancels any pending retry and leaves the
// channel closed-final.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}
	m.stopped = true
	m.epoch++
	m.stopTimerLocked()
	m.closeConnLocked()
	m.setStateLocked(domain.ChannelClosedFinal)
	m.nextDelay = 0
	if m.cancel != nil {
		m.cancel()
	}
	m.logger.Infow("live_channel_stopped", "url", m.url)
}

// Reconnect drops the current connection or pending retry and dials again
// with a fresh attempt budget.
func (m *Manager) Reconnect() error {
	m.mu.Lock()
	if !m.started || m.stopped {
		m.mu.Unlock()
		return ErrNotRunning
	}
	m.epoch++
	epoch := m.epoch
	m.stopTimerLocked()
	m.closeConnLocked()
	m.attempts = 0
	m.nextDelay = 0
	m.mu.Unlock()

	m.logger.Infow("live_channel_reconnect_requested", "url", m.url)
	m.connect(epoch)
	return nil
}

// Send writes message as a JSON text frame. It is a silent no-op unless the
// channel is open; nothing is queued.
func (m *Manager) Send(message any) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("live: encode outbound message: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != domain.ChannelOpen || m.conn == nil {
		m.logger.Debugw("live_send_dropped", "state", m.state)
		return nil
	}
	if err := m.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: live send: %w", domain.ErrTransport, err)
	}
	return nil
}

func (m *Manager) State() domain.ChannelState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) Status() domain.ChannelStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.ChannelStatus{
		State:       m.state,
		Attempt:     m.attempts,
		MaxAttempts: m.maxAttempts,
		NextDelay:   m.nextDelay,
	}
}

// ==================== State machine ====================

func (m *Manager) connect(epoch uint64) {
	m.mu.Lock()
	if m.stale(epoch) {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.setStateLocked(domain.ChannelConnecting)
	attempt := m.attempts
	ctx := m.ctx
	m.mu.Unlock()

	m.logger.Infow("live_channel_connecting", "url", m.url, "attempt", attempt)

	dialCtx, cancel := context.WithTimeout(ctx, m.handshakeTimeout)
	conn, err := m.dialer.Dial(dialCtx, m.url)
	cancel()

	m.mu.Lock()
	if m.stale(epoch) {
		m.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		m.mu.Unlock()
		m.logger.Warnw("live_channel_dial_failed", "url", m.url, "attempt", attempt, "error", err)
		m.handleDisconnect(epoch)
		return
	}
	m.conn = conn
	m.attempts = 0
	m.nextDelay = 0
	m.setStateLocked(domain.ChannelOpen)
	m.mu.Unlock()

	m.logger.Infow("live_channel_open", "url", m.url)
	go m.readLoop(epoch, conn)
}

func (m *Manager) readLoop(epoch uint64, conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			m.mu.Lock()
			current := !m.stale(epoch)
			m.mu.Unlock()
			if current {
				m.logger.Warnw("live_channel_closed", "url", m.url, "error", err)
			}
			m.handleDisconnect(epoch)
			return
		}
		if m.handler != nil {
			m.handler.HandleMessage(data)
		}
	}
}

// handleDisconnect schedules the next retry or gives up once the retry
// budget is spent.
func (m *Manager) handleDisconnect(epoch uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stale(epoch) {
		return
	}
	m.conn = nil

	if m.attempts >= m.maxAttempts {
		m.nextDelay = 0
		m.setStateLocked(domain.ChannelClosedFinal)
		m.logger.Errorw("live_channel_gave_up", "url", m.url, "attempts", m.attempts)
		return
	}

	m.attempts++
	delay := m.backoff.Delay(m.attempts)
	m.nextDelay = delay
	m.setStateLocked(domain.ChannelClosedRetrying)
	m.logger.Infow("live_channel_retry_scheduled", "attempt", m.attempts, "max_attempts", m.maxAttempts, "delay_ms", delay.Milliseconds())
	m.timer = m.clock.AfterFunc(delay, func() {
		m.connect(epoch)
	})
}

func (m *Manager) stale(epoch uint64) bool {
	return m.stopped || epoch != m.epoch
}

func (m *Manager) setStateLocked(state domain.ChannelState) {
	if m.state == state {
		return
	}
	m.logger.Debugw("live_channel_state", "from", m.state, "to", state)
	m.state = state
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) closeConnLocked() {
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
}
