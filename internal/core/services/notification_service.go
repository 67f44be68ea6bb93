package services

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/scrapedeck/console/internal/core/ports"
	"github.com/scrapedeck/console/internal/domain"
	"github.com/scrapedeck/console/internal/infrastructure/logger"
	"github.com/scrapedeck/console/pkg/utils/clock"
)

const DefaultNotificationDuration = 5 * time.Second

// NotificationService keeps the ordered list of active alerts. Each alert
// owns an expiry timer that is stopped when the alert is dismissed early.
type NotificationService struct {
	clock           clock.Clock
	defaultDuration time.Duration
	logger          *logger.Logger

	mu      sync.Mutex
	items   []domain.Notification
	timers  map[string]clock.Timer
	subs    map[uint64]chan domain.Notification
	nextSub uint64
	closed  bool
}

type NotificationServiceConfig struct {
	Clock           clock.Clock
	DefaultDuration time.Duration
	Logger          *logger.Logger
}

func NewNotificationService(cfg NotificationServiceConfig) *NotificationService {
	c := cfg.Clock
	if c == nil {
		c = clock.Real()
	}
	duration := cfg.DefaultDuration
	if duration <= 0 {
		duration = DefaultNotificationDuration
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}

	return &NotificationService{
		clock:           c,
		defaultDuration: duration,
		logger:          log,
		timers:          make(map[string]clock.Timer),
		subs:            make(map[uint64]chan domain.Notification),
	}
}

var _ ports.NotificationService = (*NotificationService)(nil)

// Notify appends an alert and schedules its removal. A non-positive
// duration selects the default.
func (s *NotificationService) Notify(message string, severity domain.Severity, duration time.Duration) domain.Notification {
	if duration <= 0 {
		duration = s.defaultDuration
	}
	if !severity.Valid() {
		severity = domain.SeverityInfo
	}

	n := domain.Notification{
		ID:        uuid.NewString(),
		Severity:  severity,
		Message:   message,
		Duration:  duration,
		CreatedAt: s.clock.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return n
	}

	s.items = append(s.items, n)
	id := n.ID
	s.timers[id] = s.clock.AfterFunc(duration, func() {
		s.expire(id)
	})

	for subID, ch := range s.subs {
		select {
		case ch <- n:
		default:
			s.logger.Warnw("notification_subscriber_full", "subscriber", subID, "id", n.ID)
		}
	}

	s.logger.Debugw("notification_added", "id", n.ID, "type", n.Severity, "duration_ms", duration.Milliseconds())
	return n
}

// Dismiss removes the alert immediately. It reports whether anything was
// removed; dismissing an expired or unknown id is a no-op.
func (s *NotificationService) Dismiss(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, ok := s.timers[id]; ok {
		timer.Stop()
		delete(s.timers, id)
	}
	return s.removeLocked(id)
}

func (s *NotificationService) expire(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.timers, id)
	if s.removeLocked(id) {
		s.logger.Debugw("notification_expired", "id", id)
	}
}

func (s *NotificationService) removeLocked(id string) bool {
	for i, n := range s.items {
		if n.ID == id {
			s.items = append(s.items[:i:i], s.items[i+1:]...)
			return true
		}
	}
	return false
}

// List returns the active alerts in display order.
func (s *NotificationService) List() []domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Notification, len(s.items))
	copy(out, s.items)
	return out
}

// Subscribe streams every alert raised after the call. Slow subscribers
// miss alerts rather than block the emitter. The returned func cancels the
// subscription and closes the channel.
func (s *NotificationService) Subscribe(buffer int) (<-chan domain.Notification, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan domain.Notification, buffer)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	s.nextSub++
	id := s.nextSub
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if sub, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(sub)
			}
		})
	}
}

// Close stops every pending expiry timer and ends all subscriptions.
func (s *NotificationService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
}
