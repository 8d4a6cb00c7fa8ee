package pool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/injooinjoo/streaming-agent-sub004/internal/model"
	"github.com/injooinjoo/streaming-agent-sub004/internal/session"
)

// fakeDial builds a Session that never actually connects a socket; tests
// close it manually via the returned control to simulate a session ending.
func fakeDial(t *testing.T) (Dialer, func(model.BroadcastKey)) {
	t.Helper()
	var mu sync.Mutex
	sessions := make(map[model.BroadcastKey]*session.Session)

	dial := func(ctx context.Context, target Target) (*session.Session, error) {
		sess := session.New(target.Broadcast, target.Broadcast.Platform, session.Protocol{}, nil)
		mu.Lock()
		sessions[target.Broadcast] = sess
		mu.Unlock()
		return sess, nil
	}
	closeFn := func(key model.BroadcastKey) {
		mu.Lock()
		sess := sessions[key]
		mu.Unlock()
		if sess != nil {
			sess.Close()
		}
	}
	return dial, closeFn
}

func key(id string) model.BroadcastKey {
	return model.BroadcastKey{Platform: model.PlatformSOOP, ChannelID: id, BroadcastID: id}
}

// TestUpdateTargetsRespectsCapacity is property P5: the pool never connects
// more sessions than its configured capacity, queuing the rest.
func TestUpdateTargetsRespectsCapacity(t *testing.T) {
	dial, _ := fakeDial(t)
	m := NewManager(model.PlatformSOOP, 2, dial, nil, nil)

	targets := []Target{{Broadcast: key("a")}, {Broadcast: key("b")}, {Broadcast: key("c")}}
	m.UpdateTargets(context.Background(), targets)

	if got := m.Size(); got != 2 {
		t.Fatalf("Size() = %d, want 2 (capacity bound)", got)
	}
	if len(m.waiting) != 1 {
		t.Fatalf("waiting queue len = %d, want 1", len(m.waiting))
	}
}

func TestUpdateTargetsDropsUnwanted(t *testing.T) {
	dial, _ := fakeDial(t)
	m := NewManager(model.PlatformSOOP, 2, dial, nil, nil)

	m.UpdateTargets(context.Background(), []Target{{Broadcast: key("a")}, {Broadcast: key("b")}})
	if m.Size() != 2 {
		t.Fatalf("Size() = %d, want 2", m.Size())
	}

	m.UpdateTargets(context.Background(), []Target{{Broadcast: key("b")}})
	// dropping runs session.Close() synchronously in UpdateTargets, but the
	// map removal happens in watchClose once Closed fires; poll briefly.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if m.Size() == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if got := m.Size(); got != 1 {
		t.Fatalf("Size() after dropping %q = %d, want 1", "a", got)
	}
}

func TestDrainWaitingStartsQueuedTargetOnSlotFree(t *testing.T) {
	dial, closeFn := fakeDial(t)
	m := NewManager(model.PlatformSOOP, 1, dial, nil, nil)

	m.UpdateTargets(context.Background(), []Target{{Broadcast: key("a")}, {Broadcast: key("b")}})
	if m.Size() != 1 {
		t.Fatalf("Size() = %d, want 1", m.Size())
	}
	if len(m.waiting) != 1 {
		t.Fatalf("waiting len = %d, want 1", len(m.waiting))
	}

	closeFn(key("a"))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		m.mu.Lock()
		_, connected := m.connections[key("b")]
		waitingLen := len(m.waiting)
		m.mu.Unlock()
		if connected && waitingLen == 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("queued target %q never started after its slot freed", "b")
}

func TestDisconnectAllClearsPool(t *testing.T) {
	dial, _ := fakeDial(t)
	m := NewManager(model.PlatformSOOP, 3, dial, nil, nil)
	m.UpdateTargets(context.Background(), []Target{{Broadcast: key("a")}, {Broadcast: key("b")}})
	if m.Size() != 2 {
		t.Fatalf("Size() = %d, want 2", m.Size())
	}
	m.DisconnectAll()
	if m.Size() != 0 {
		t.Fatalf("Size() after DisconnectAll = %d, want 0", m.Size())
	}
}
