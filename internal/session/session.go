// Package session wires the task registry, the notification emitter, the
// live channel and the fallback poller into one object with a shared
// lifecycle.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/scrapedeck/console/internal/config"
	"github.com/scrapedeck/console/internal/core/ports"
	"github.com/scrapedeck/console/internal/core/services"
	"github.com/scrapedeck/console/internal/infrastructure/logger"
	"github.com/scrapedeck/console/internal/infrastructure/remote"
	"github.com/scrapedeck/console/internal/transport/live"
	"github.com/scrapedeck/console/pkg/utils/clock"
	"golang.org/x/sync/errgroup"
)

type Session struct {
	Registry      *services.TaskRegistry
	Notifications *services.NotificationService
	Channel       *live.Manager
	Poller        *services.Poller

	logger    *logger.Logger
	closeOnce sync.Once
}

type options struct {
	clock   clock.Clock
	dialer  live.Dialer
	api     ports.TaskAPI
	logger  *logger.Logger
	version string
}

type Option func(*options)

func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

func WithDialer(d live.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithTaskAPI replaces the HTTP backend client.
func WithTaskAPI(api ports.TaskAPI) Option {
	return func(o *options) { o.api = api }
}

func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithVersion(v string) Option {
	return func(o *options) { o.version = v }
}

func New(cfg *config.Config, opts ...Option) *Session {
	o := options{clock: clock.Real()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.NewNop()
	}
	log := o.logger

	api := o.api
	if api == nil {
		api = remote.NewAPIClient(remote.APIClientConfig{
			BaseURL:    cfg.API.Endpoint(),
			Timeout:    cfg.API.Timeout,
			MaxRetries: cfg.API.MaxRetries,
			RetryDelay: cfg.API.RetryDelay,
			Version:    o.version,
			Logger:     log.Named("api"),
		})
	}

	registry := services.NewTaskRegistry(services.TaskRegistryConfig{
		API:    api,
		Logger: log.Named("registry"),
	})
	notifications := services.NewNotificationService(services.NotificationServiceConfig{
		Clock:           o.clock,
		DefaultDuration: cfg.Notifications.DefaultDuration,
		Logger:          log.Named("notifications"),
	})

	dialer := o.dialer
	if dialer == nil {
		dialer = live.NewWebsocketDialer(cfg.Live.HandshakeTimeout)
	}
	channel := live.NewManager(live.ManagerConfig{
		URL:              cfg.Live.URL(),
		Dialer:           dialer,
		Handler:          live.NewDispatcher(registry, notifications, log.Named("dispatch")),
		Clock:            o.clock,
		Backoff:          live.Backoff{Base: cfg.Live.BaseDelay, Max: cfg.Live.MaxDelay},
		MaxAttempts:      cfg.Live.MaxAttempts,
		HandshakeTimeout: cfg.Live.HandshakeTimeout,
		Logger:           log.Named("live"),
	})
	poller := services.NewPoller(services.PollerConfig{
		Registry: registry,
		Channel:  channel,
		Interval: cfg.Poll.Interval,
		Clock:    o.clock,
		Logger:   log.Named("poller"),
	})

	return &Session{
		Registry:      registry,
		Notifications: notifications,
		Channel:       channel,
		Poller:        poller,
		logger:        log,
	}
}

// Start loads the task list and opens the live channel. A failed initial
// refresh is logged; the registry error flag reports it and the poller
// catches up later.
func (s *Session) Start(ctx context.Context) error {
	if err := s.Registry.Refresh(ctx); err != nil {
		s.logger.Warnw("session_initial_refresh_failed", "error", err)
	}
	return s.Channel.Start(ctx)
}

// Run starts the session and keeps the poller going until ctx is done,
// then closes the session.
func (s *Session) Run(ctx context.Context) error {
	defer s.Close()

	if err := s.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.Poller.Run(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Close stops the channel and every pending notification timer.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.Channel.Stop()
		s.Notifications.Close()
		s.logger.Infow("session_closed")
	})
}
