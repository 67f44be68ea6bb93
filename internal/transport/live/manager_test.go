package live

import (
	"context"
	"testing"
	"time"

	"github.com/scrapedeck/console/internal/core/services"
	"github.com/scrapedeck/console/internal/domain"
	"github.com/scrapedeck/console/pkg/utils/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = time.Second

type harness struct {
	manager       *Manager
	dialer        *fakeDialer
	clock         *clock.Fake
	registry      *services.TaskRegistry
	notifications *services.NotificationService
}

func newHarness(t *testing.T, failures int) *harness {
	t.Helper()
	fake := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	registry := services.NewTaskRegistry(services.TaskRegistryConfig{})
	notifications := services.NewNotificationService(services.NotificationServiceConfig{Clock: fake})
	dialer := &fakeDialer{failures: failures}

	m := NewManager(ManagerConfig{
		URL:         "ws://backend.test/ws/scraping",
		Dialer:      dialer,
		Handler:     NewDispatcher(registry, notifications, nil),
		Clock:       fake,
		Backoff:     Backoff{Base: time.Second, Max: 10 * time.Second},
		MaxAttempts: 5,
	})
	t.Cleanup(m.Stop)

	return &harness{manager: m, dialer: dialer, clock: fake, registry: registry, notifications: notifications}
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.manager.Start(context.Background()))
}

func TestManager_OpensOnFirstDial(t *testing.T) {
	h := newHarness(t, 0)
	h.start(t)

	assert.Equal(t, domain.ChannelOpen, h.manager.State())
	assert.Equal(t, 1, h.dialer.Dials())
	assert.ErrorIs(t, h.manager.Start(context.Background()), ErrAlreadyStarted)
}

func TestManager_GivesUpAfterMaxAttempts(t *testing.T) {
	h := newHarness(t, -1)
	h.start(t)

	delays := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second, 10 * time.Second}
	for i, delay := range delays {
		status := h.manager.Status()
		require.Equal(t, domain.ChannelClosedRetrying, status.State)
		assert.Equal(t, i+1, status.Attempt)
		assert.Equal(t, delay, status.NextDelay)

		h.clock.Advance(delay - time.Millisecond)
		assert.Equal(t, i+1, h.dialer.Dials(), "redialed before the backoff elapsed")
		h.clock.Advance(time.Millisecond)
		assert.Equal(t, i+2, h.dialer.Dials())
	}

	assert.Equal(t, domain.ChannelClosedFinal, h.manager.State())
	assert.Zero(t, h.clock.Pending())

	h.clock.Advance(time.Hour)
	assert.Equal(t, 6, h.dialer.Dials())
	assert.Equal(t, domain.ChannelClosedFinal, h.manager.State())
}

func TestManager_SuccessfulOpenResetsAttempts(t *testing.T) {
	h := newHarness(t, 2)
	h.start(t)

	h.clock.Advance(2 * time.Second)
	h.clock.Advance(4 * time.Second)
	require.Equal(t, domain.ChannelOpen, h.manager.State())
	assert.Equal(t, 0, h.manager.Status().Attempt)
	assert.Equal(t, 3, h.dialer.Dials())

	h.dialer.last().drop()
	require.Eventually(t, func() bool {
		return h.manager.State() == domain.ChannelClosedRetrying
	}, waitFor, time.Millisecond)
	assert.Equal(t, 2*time.Second, h.manager.Status().NextDelay)

	h.clock.Advance(2 * time.Second)
	assert.Equal(t, domain.ChannelOpen, h.manager.State())
	assert.Equal(t, 4, h.dialer.Dials())
}

func TestManager_TaskCompleteScenario(t *testing.T) {
	h := newHarness(t, 0)
	_, err := h.registry.Merge(mustPatch(t, `{"id": "T1", "status": "running"}`))
	require.NoError(t, err)
	h.start(t)

	h.dialer.last().push(`{"type": "task_complete", "task": {"_id": {"$oid": "T1"}, "status": "completed"}}`)

	require.Eventually(t, func() bool {
		task, _ := h.registry.Get("T1")
		return task.Status == domain.TaskStatusCompleted
	}, waitFor, time.Millisecond)
	require.Eventually(t, func() bool { return len(h.notifications.List()) == 1 }, waitFor, time.Millisecond)

	n := h.notifications.List()[0]
	assert.Equal(t, domain.SeveritySuccess, n.Severity)
	assert.Equal(t, 1, h.registry.Len())
}

func TestManager_UnknownKindIsIgnored(t *testing.T) {
	h := newHarness(t, 0)
	_, err := h.registry.Merge(mustPatch(t, `{"id": "T1", "status": "running"}`))
	require.NoError(t, err)
	h.start(t)

	conn := h.dialer.last()
	conn.push(`{"type": "unknown_kind", "task": {"id": "T1", "status": "failed"}}`)
	conn.push(`{not json`)
	conn.push(`{"type": "task_update"}`)
	conn.push(`{"type": "task_update", "task": {"id": "SYNC"}}`)

	require.Eventually(t, func() bool {
		_, ok := h.registry.Get("SYNC")
		return ok
	}, waitFor, time.Millisecond)

	task, _ := h.registry.Get("T1")
	assert.Equal(t, domain.TaskStatusRunning, task.Status)
	assert.Empty(t, h.notifications.List())
	assert.Equal(t, domain.ChannelOpen, h.manager.State())
	assert.Equal(t, 1, h.dialer.Dials())
}

func TestManager_SendOnlyWhileOpen(t *testing.T) {
	h := newHarness(t, 0)

	require.NoError(t, h.manager.Send(map[string]string{"type": "ping"}))

	h.start(t)
	conn := h.dialer.last()
	require.NoError(t, h.manager.Send(map[string]string{"type": "ping"}))
	assert.Equal(t, []string{`{"type":"ping"}`}, conn.Written())

	conn.drop()
	require.Eventually(t, func() bool {
		return h.manager.State() == domain.ChannelClosedRetrying
	}, waitFor, time.Millisecond)

	require.NoError(t, h.manager.Send(map[string]string{"type": "lost"}))
	assert.Len(t, conn.Written(), 1)
}

func TestManager_SendRejectsUnencodableMessage(t *testing.T) {
	h := newHarness(t, 0)
	h.start(t)

	assert.Error(t, h.manager.Send(make(chan int)))
}

func TestManager_StopCancelsPendingRetry(t *testing.T) {
	h := newHarness(t, -1)
	h.start(t)
	require.Equal(t, 1, h.clock.Pending())

	h.manager.Stop()

	assert.Zero(t, h.clock.Pending())
	assert.Equal(t, domain.ChannelClosedFinal, h.manager.State())
	h.clock.Advance(time.Minute)
	assert.Equal(t, 1, h.dialer.Dials())
	assert.ErrorIs(t, h.manager.Reconnect(), ErrNotRunning)
}

func TestManager_StopClosesOpenConnection(t *testing.T) {
	h := newHarness(t, 0)
	h.start(t)
	conn := h.dialer.last()

	h.manager.Stop()

	assert.True(t, conn.isClosed())
	assert.Equal(t, domain.ChannelClosedFinal, h.manager.State())
	assert.Zero(t, h.clock.Pending())
	assert.Equal(t, 1, h.dialer.Dials())
}

func TestManager_ReconnectRevivesClosedFinal(t *testing.T) {
	h := newHarness(t, -1)
	h.start(t)
	for _, d := range []time.Duration{2, 4, 8, 10, 10} {
		h.clock.Advance(d * time.Second)
	}
	require.Equal(t, domain.ChannelClosedFinal, h.manager.State())

	h.dialer.setFailures(0)
	require.NoError(t, h.manager.Reconnect())

	assert.Equal(t, domain.ChannelOpen, h.manager.State())
	assert.Equal(t, 7, h.dialer.Dials())
}

func TestManager_ReconnectReplacesOpenConnection(t *testing.T) {
	h := newHarness(t, 0)
	h.start(t)
	first := h.dialer.last()

	require.NoError(t, h.manager.Reconnect())

	assert.True(t, first.isClosed())
	assert.NotSame(t, first, h.dialer.last())
	assert.Equal(t, domain.ChannelOpen, h.manager.State())
	assert.Zero(t, h.clock.Pending())
}

func TestManager_ReconnectBeforeStart(t *testing.T) {
	h := newHarness(t, 0)
	assert.ErrorIs(t, h.manager.Reconnect(), ErrNotRunning)
	assert.Equal(t, 0, h.dialer.Dials())
}
