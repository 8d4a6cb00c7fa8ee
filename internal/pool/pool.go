// Package pool implements the per-platform Connection Pool Manager
// (spec.md §4.5): a bounded set of live ChatSessions selected by the
// orchestrator's selector, plus a FIFO queue for targets that arrive when
// the pool is already at capacity.
package pool

import (
	"context"
	"sync"

	"github.com/injooinjoo/streaming-agent-sub004/internal/logging"
	"github.com/injooinjoo/streaming-agent-sub004/internal/metrics"
	"github.com/injooinjoo/streaming-agent-sub004/internal/model"
	"github.com/injooinjoo/streaming-agent-sub004/internal/session"
)

// Target is one candidate broadcast the selector wants a session for.
type Target struct {
	Broadcast model.BroadcastKey
	Coords    model.ChatCoordinates
}

// Dialer builds and connects a Session for a Target. SOOP and CHZZK sessions
// have different construction signatures (session.NewSOOPSession vs
// session.NewCHZZKSession); the pool only needs this one seam.
type Dialer func(ctx context.Context, target Target) (*session.Session, error)

// Manager owns every live session for one platform, enforcing cap.
type Manager struct {
	platform model.Platform
	capacity int
	dial     Dialer
	logger   logging.Logger
	collector *metrics.Collector

	mu          sync.Mutex
	connections map[model.BroadcastKey]*session.Session
	waiting     []Target
}

// NewManager builds an empty pool manager for one platform.
func NewManager(platform model.Platform, capacity int, dial Dialer, logger logging.Logger, collector *metrics.Collector) *Manager {
	return &Manager{
		platform:    platform,
		capacity:    capacity,
		dial:        dial,
		logger:      logger,
		collector:   collector,
		connections: make(map[model.BroadcastKey]*session.Session),
	}
}

// Size returns the number of currently connected sessions.
func (m *Manager) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.connections)
}

// UpdateTargets reconciles the pool against a fresh selector result
// (spec.md §4.5 core operation): drop sessions no longer targeted, connect
// new ones within cap, enqueue the rest.
func (m *Manager) UpdateTargets(ctx context.Context, targets []Target) {
	m.mu.Lock()
	toDrop := make([]*session.Session, 0)
	wanted := make(map[model.BroadcastKey]Target, len(targets))
	for _, t := range targets {
		wanted[t.Broadcast] = t
	}
	for key, sess := range m.connections {
		if _, ok := wanted[key]; !ok {
			toDrop = append(toDrop, sess)
		}
	}

	var toStart []Target
	for key, t := range wanted {
		if _, connected := m.connections[key]; connected {
			continue
		}
		if len(m.connections) < m.capacity {
			// Reserve the slot immediately so concurrent UpdateTargets calls
			// don't both think there's room.
			m.connections[key] = nil
			toStart = append(toStart, t)
		} else {
			m.waiting = append(m.waiting, t)
		}
	}
	m.mu.Unlock()

	for _, sess := range toDrop {
		if sess != nil {
			sess.Close()
		}
	}
	for _, t := range toStart {
		m.startSession(ctx, t)
	}
}

// startSession dials a target's session and installs it, freeing the
// reserved slot and draining the waiting queue if the dial fails.
func (m *Manager) startSession(ctx context.Context, t Target) {
	sess, err := m.dial(ctx, t)
	if err != nil {
		m.logger.WithField("broadcast", t.Broadcast).WithError(err).Warn("session connect failed")
		m.mu.Lock()
		delete(m.connections, t.Broadcast)
		m.mu.Unlock()
		m.drainWaiting(ctx)
		return
	}

	m.mu.Lock()
	m.connections[t.Broadcast] = sess
	m.mu.Unlock()
	if m.collector != nil {
		m.collector.SessionsActive.WithLabelValues(string(m.platform)).Set(float64(m.Size()))
	}

	go m.watchClose(ctx, sess)
}

// watchClose removes a session from the pool once it signals closed, then
// drains the waiting queue (spec.md §4.5 step 3).
func (m *Manager) watchClose(ctx context.Context, sess *session.Session) {
	broadcast := <-sess.Closed
	m.mu.Lock()
	delete(m.connections, broadcast)
	m.mu.Unlock()
	if m.collector != nil {
		m.collector.SessionsActive.WithLabelValues(string(m.platform)).Set(float64(m.Size()))
	}
	m.drainWaiting(ctx)
}

// drainWaiting starts queued targets while room exists, FIFO order.
func (m *Manager) drainWaiting(ctx context.Context) {
	for {
		m.mu.Lock()
		if len(m.waiting) == 0 || len(m.connections) >= m.capacity {
			m.mu.Unlock()
			return
		}
		t := m.waiting[0]
		m.waiting = m.waiting[1:]
		m.connections[t.Broadcast] = nil
		m.mu.Unlock()
		m.startSession(ctx, t)
	}
}

// CollectAllViewerLists snapshots every live session's viewer map.
func (m *Manager) CollectAllViewerLists() []model.ViewerList {
	m.mu.Lock()
	sessions := make([]*session.Session, 0, len(m.connections))
	for _, sess := range m.connections {
		if sess != nil {
			sessions = append(sessions, sess)
		}
	}
	m.mu.Unlock()

	lists := make([]model.ViewerList, 0, len(sessions))
	for _, sess := range sessions {
		lists = append(lists, sess.SnapshotViewers())
	}
	return lists
}

// CollectAllChatStats drains every live session's chat counters.
func (m *Manager) CollectAllChatStats() []model.ChatStats {
	m.mu.Lock()
	sessions := make([]*session.Session, 0, len(m.connections))
	for _, sess := range m.connections {
		if sess != nil {
			sessions = append(sessions, sess)
		}
	}
	m.mu.Unlock()

	stats := make([]model.ChatStats, 0, len(sessions))
	for _, sess := range sessions {
		stats = append(stats, sess.DrainChatStats())
	}
	return stats
}

// ForEachSession snapshots the currently live sessions under the pool's
// lock, then invokes fn once per session outside the lock.
func (m *Manager) ForEachSession(fn func(*session.Session)) {
	m.mu.Lock()
	sessions := make([]*session.Session, 0, len(m.connections))
	for _, sess := range m.connections {
		if sess != nil {
			sessions = append(sessions, sess)
		}
	}
	m.mu.Unlock()
	for _, sess := range sessions {
		fn(sess)
	}
}

// DisconnectAll force-closes every live session (spec.md §4.6 shutdown).
func (m *Manager) DisconnectAll() {
	m.mu.Lock()
	sessions := make([]*session.Session, 0, len(m.connections))
	for _, sess := range m.connections {
		if sess != nil {
			sessions = append(sessions, sess)
		}
	}
	m.connections = make(map[model.BroadcastKey]*session.Session)
	m.waiting = nil
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, sess := range sessions {
		wg.Add(1)
		go func(s *session.Session) {
			defer wg.Done()
			s.Close()
		}(sess)
	}
	wg.Wait()
}
