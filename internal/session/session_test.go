package session

import (
	"testing"

	"github.com/injooinjoo/streaming-agent-sub004/internal/model"
)

func testBroadcast() model.BroadcastKey {
	return model.BroadcastKey{Platform: model.PlatformSOOP, ChannelID: "c1", BroadcastID: "b1"}
}

func TestNewSessionStartsConnecting(t *testing.T) {
	s := New(testBroadcast(), model.PlatformSOOP, Protocol{}, nil)
	if s.State() != StateConnecting {
		t.Fatalf("State() = %v, want connecting", s.State())
	}
}

func TestApplyResultReplacesViewerList(t *testing.T) {
	s := New(testBroadcast(), model.PlatformSOOP, Protocol{}, nil)
	s.applyResult(FrameResult{ViewerListReplace: []model.Viewer{
		{ViewerID: "v1", Nickname: "n1"},
		{ViewerID: "v2", Nickname: "n2"},
	}})
	list := s.SnapshotViewers()
	if len(list.Viewers) != 2 {
		t.Fatalf("got %d viewers, want 2", len(list.Viewers))
	}

	s.applyResult(FrameResult{ViewerListReplace: []model.Viewer{{ViewerID: "v3", Nickname: "n3"}}})
	list = s.SnapshotViewers()
	if len(list.Viewers) != 1 || list.Viewers[0].ViewerID != "v3" {
		t.Fatalf("viewer list replace did not discard the previous set: got %+v", list.Viewers)
	}
}

func TestApplyResultViewerJoinMerges(t *testing.T) {
	s := New(testBroadcast(), model.PlatformSOOP, Protocol{}, nil)
	s.applyResult(FrameResult{ViewerListReplace: []model.Viewer{{ViewerID: "v1"}}})
	s.applyResult(FrameResult{ViewerJoin: &model.Viewer{ViewerID: "v2"}})
	list := s.SnapshotViewers()
	if len(list.Viewers) != 2 {
		t.Fatalf("got %d viewers after join, want 2 (merge, not replace)", len(list.Viewers))
	}
}

// TestChatCounterResetsOnDrain is property P7: DrainChatStats must zero the
// counters so a subsequent drain with no new chat returns zero, never the
// stale previous count.
func TestChatCounterResetsOnDrain(t *testing.T) {
	s := New(testBroadcast(), model.PlatformSOOP, Protocol{}, nil)
	s.applyResult(FrameResult{Events: []model.Event{
		{EventType: model.EventChat, Actor: model.PersonKey{PlatformUserID: "u1"}},
		{EventType: model.EventChat, Actor: model.PersonKey{PlatformUserID: "u1"}},
		{EventType: model.EventChat, Actor: model.PersonKey{PlatformUserID: "u2"}},
	}})

	first := s.DrainChatStats()
	if first.MessageCount != 3 {
		t.Errorf("MessageCount = %d, want 3", first.MessageCount)
	}
	if first.UniqueChatters != 2 {
		t.Errorf("UniqueChatters = %d, want 2", first.UniqueChatters)
	}

	second := s.DrainChatStats()
	if second.MessageCount != 0 || second.UniqueChatters != 0 {
		t.Fatalf("second drain with no new chat = %+v, want zero value", second)
	}
}

// TestChatCounterConcurrentRecordAndDrain exercises P7 under concurrent
// access: one goroutine hammers recordChat while another repeatedly drains,
// summing every drained MessageCount against the total number of recorded
// messages. A lost or double-counted increment (the race the load/swap
// split used to allow) would make the sums disagree.
func TestChatCounterConcurrentRecordAndDrain(t *testing.T) {
	s := New(testBroadcast(), model.PlatformSOOP, Protocol{}, nil)

	const totalMessages = 5000
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < totalMessages; i++ {
			s.recordChat("viewer")
		}
	}()

	var drainedTotal int
	drainDone := make(chan struct{})
	go func() {
		defer close(drainDone)
		for {
			select {
			case <-done:
				drainedTotal += s.DrainChatStats().MessageCount
				return
			default:
				drainedTotal += s.DrainChatStats().MessageCount
			}
		}
	}()

	<-done
	<-drainDone

	if drainedTotal != totalMessages {
		t.Fatalf("sum of drained MessageCount = %d, want %d (no count should be lost or double-counted across concurrent record/drain)", drainedTotal, totalMessages)
	}
}

func TestDeliverRoutesDonationsToPriorityChannel(t *testing.T) {
	s := New(testBroadcast(), model.PlatformSOOP, Protocol{}, nil)
	s.deliver(model.Event{EventType: model.EventDonation})
	select {
	case <-s.Donations:
	default:
		t.Fatalf("donation event was not delivered to the Donations channel")
	}
}

func TestDeliverDropsChatWhenChannelFull(t *testing.T) {
	s := New(testBroadcast(), model.PlatformSOOP, Protocol{}, nil)
	for i := 0; i < eventBufferSize; i++ {
		s.deliver(model.Event{EventType: model.EventChat})
	}
	if s.DroppedCount() != 0 {
		t.Fatalf("DroppedCount = %d before overflow, want 0", s.DroppedCount())
	}
	s.deliver(model.Event{EventType: model.EventChat})
	if s.DroppedCount() != 1 {
		t.Fatalf("DroppedCount = %d after overflow, want 1", s.DroppedCount())
	}
}

func TestCloseIsIdempotentAndSignalsClosed(t *testing.T) {
	s := New(testBroadcast(), model.PlatformSOOP, Protocol{}, nil)
	s.Close()
	s.Close() // must not panic or double-send on Closed

	select {
	case key := <-s.Closed:
		if key != testBroadcast() {
			t.Errorf("Closed sent %+v, want %+v", key, testBroadcast())
		}
	default:
		t.Fatalf("Closed channel was not signalled")
	}
	if s.State() != StateClosed {
		t.Errorf("State() = %v, want closed", s.State())
	}
}
