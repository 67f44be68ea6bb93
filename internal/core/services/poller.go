package services

import (
	"context"
	"time"

	"github.com/scrapedeck/console/internal/core/ports"
	"github.com/scrapedeck/console/internal/domain"
	"github.com/scrapedeck/console/internal/infrastructure/logger"
	"github.com/scrapedeck/console/pkg/utils/clock"
)

const DefaultPollInterval = 5 * time.Second

// ChannelStateReader reports the live channel's state.
type ChannelStateReader interface {
	State() domain.ChannelState
}

// Poller refreshes the registry on a fixed interval while the live channel
// is down, so the task list stays current in pull-only mode.
type Poller struct {
	registry ports.Refresher
	channel  ChannelStateReader
	interval time.Duration
	clock    clock.Clock
	logger   *logger.Logger
}

type PollerConfig struct {
	Registry ports.Refresher
	Channel  ChannelStateReader
	Interval time.Duration
	Clock    clock.Clock
	Logger   *logger.Logger
}

func NewPoller(cfg PollerConfig) *Poller {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	c := cfg.Clock
	if c == nil {
		c = clock.Real()
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &Poller{
		registry: cfg.Registry,
		channel:  cfg.Channel,
		interval: interval,
		clock:    c,
		logger:   log,
	}
}

// Run polls until ctx is cancelled. Ticks are skipped while the channel is
// open.
func (p *Poller) Run(ctx context.Context) error {
	tick := make(chan struct{}, 1)
	p.logger.Infow("poller_started", "interval", p.interval.String())

	for {
		timer := p.clock.AfterFunc(p.interval, func() {
			select {
			case tick <- struct{}{}:
			default:
			}
		})

		select {
		case <-ctx.Done():
			timer.Stop()
			p.logger.Infow("poller_stopped")
			return ctx.Err()
		case <-tick:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	if p.channel != nil && p.channel.State() == domain.ChannelOpen {
		return
	}

	if err := p.registry.Refresh(ctx); err != nil {
		// Not fatal; the next tick tries again.
		p.logger.Warnw("poller_refresh_failed", "error", err)
		return
	}
	p.logger.Debugw("poller_refreshed")
}
