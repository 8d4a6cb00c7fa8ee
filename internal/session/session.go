// Package session implements ChatSession, the per-broadcast WebSocket
// worker (spec.md §4.4). One Session owns exactly one socket; the generic
// engine here is protocol-agnostic, with SOOP and CHZZK wiring their own
// handshake/decode behavior through Protocol (see soop.go, chzzk.go).
//
// Grounded in the corpus's api_realtime/internal/websocket/hub.go Client
// type, inverted from a server-side accepted connection to a
// Dialer-initiated outbound client — this process is a WebSocket client of
// the platforms, not a server for browsers.
package session

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/injooinjoo/streaming-agent-sub004/internal/logging"
	"github.com/injooinjoo/streaming-agent-sub004/internal/model"
)

// State is the session's connection lifecycle stage (spec.md §4.4).
type State int

const (
	StateConnecting State = iota
	StateHandshaking
	StateConnected
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const (
	dialTimeout     = 10 * time.Second
	eventBufferSize = 256
	donationBuffer  = 64
)

// FrameResult is what a platform decoder produces for one inbound frame.
type FrameResult struct {
	Pong              bool
	Connected         bool
	ViewerListReplace []model.Viewer
	ViewerJoin        *model.Viewer
	Events            []model.Event
}

// Protocol is the platform-specific behavior a Session delegates to: how to
// shape the dial, what to send on open, how to decode inbound frames, and
// the keepalive cadence.
type Protocol struct {
	URL          string
	Subprotocol  string
	RequireAck   func(FrameResult) bool // returns true if this frame completes the handshake
	OnOpen       func(send func(messageType int, data []byte) error) error
	DecodeFrame  func(messageType int, data []byte) FrameResult
	OnPing       func(send func(messageType int, data []byte) error) error // reactive reply to a server PING frame
	PingInterval time.Duration
	SendPing     func(send func(messageType int, data []byte) error) error // proactive keepalive on PingInterval
}

// chatCounters is swapped under mu so a recordChat increment and a
// DrainChatStats swap can never interleave (spec.md §9 Design Notes:
// "atomic swap of the counter struct"). The atomic.Pointer alone is not
// enough: Load-then-mutate and Swap-then-read are each two steps, so both
// must happen while mu is held or an increment landing between the swap
// and the read would be silently lost.
type chatCounters struct {
	messageCount int
	chatters     map[string]struct{}
}

func newChatCounters() *chatCounters {
	return &chatCounters{chatters: make(map[string]struct{})}
}

// Session is one live WebSocket connection to a platform's chat/event
// stream for a single broadcast.
type Session struct {
	Broadcast model.BroadcastKey
	Platform  model.Platform

	protocol Protocol
	logger   logging.Logger

	Events    chan model.Event
	Donations chan model.Event
	Closed    chan model.BroadcastKey // signalled once, on transition to Closed

	dropped atomic.Int64

	mu      sync.Mutex
	state   State
	viewers map[string]model.Viewer

	counters atomic.Pointer[chatCounters]

	conn      *websocket.Conn
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// New builds a Session in the Connecting state. Connect must be called to
// actually dial.
func New(broadcast model.BroadcastKey, platform model.Platform, protocol Protocol, logger logging.Logger) *Session {
	s := &Session{
		Broadcast: broadcast,
		Platform:  platform,
		protocol:  protocol,
		logger:    logger,
		Events:    make(chan model.Event, eventBufferSize),
		Donations: make(chan model.Event, donationBuffer),
		Closed:    make(chan model.BroadcastKey, 1),
		viewers:   make(map[string]model.Viewer),
	}
	s.counters.Store(newChatCounters())
	return s
}

// State returns the session's current lifecycle stage.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Connect dials the socket, sends the handshake, and starts the read loop
// and ping timer. It resolves once the socket is open and any ack frame
// required by the protocol has arrived, or after dialTimeout.
func (s *Session) Connect(parent context.Context) error {
	s.setState(StateConnecting)

	dialCtx, dialCancel := context.WithTimeout(parent, dialTimeout)
	defer dialCancel()

	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	header := http.Header{}
	if s.protocol.Subprotocol != "" {
		header.Set("Sec-WebSocket-Protocol", s.protocol.Subprotocol)
	}

	conn, _, err := dialer.DialContext(dialCtx, s.protocol.URL, header)
	if err != nil {
		s.setState(StateClosed)
		return err
	}
	s.conn = conn
	s.setState(StateHandshaking)

	var writeMu sync.Mutex
	send := func(messageType int, data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteMessage(messageType, data)
	}

	if s.protocol.OnOpen != nil {
		if err := s.protocol.OnOpen(send); err != nil {
			conn.Close()
			s.setState(StateClosed)
			return err
		}
	}

	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel

	acked := make(chan struct{}, 1)
	if s.protocol.RequireAck == nil {
		acked <- struct{}{}
	}

	go s.readLoop(ctx, conn, send, acked)
	go s.pingLoop(ctx, send)

	if s.protocol.RequireAck != nil {
		select {
		case <-acked:
		case <-time.After(dialTimeout):
			s.Close()
			return context.DeadlineExceeded
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.setState(StateConnected)
	return nil
}

func (s *Session) readLoop(ctx context.Context, conn *websocket.Conn, send func(int, []byte) error, acked chan struct{}) {
	defer s.Close()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.logger.WithField("broadcast", s.Broadcast).WithError(err).Debug("session read error")
			}
			return
		}

		result := s.protocol.DecodeFrame(messageType, data)

		if s.protocol.RequireAck != nil && s.protocol.RequireAck(result) {
			select {
			case acked <- struct{}{}:
			default:
			}
		}

		if result.Pong {
			if s.protocol.OnPing != nil {
				if err := s.protocol.OnPing(send); err != nil {
					return
				}
			}
			continue
		}

		s.applyResult(result)

		for _, ev := range result.Events {
			s.deliver(ev)
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (s *Session) applyResult(result FrameResult) {
	if result.ViewerListReplace != nil {
		s.mu.Lock()
		s.viewers = make(map[string]model.Viewer, len(result.ViewerListReplace))
		for _, v := range result.ViewerListReplace {
			s.viewers[v.ViewerID] = v
		}
		s.mu.Unlock()
	}
	if result.ViewerJoin != nil {
		s.mu.Lock()
		s.viewers[result.ViewerJoin.ViewerID] = *result.ViewerJoin
		s.mu.Unlock()
	}

	for _, ev := range result.Events {
		if ev.EventType == model.EventChat {
			s.recordChat(ev.Actor.PlatformUserID)
		}
	}
}

func (s *Session) recordChat(viewerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counters := s.counters.Load()
	counters.messageCount++
	if viewerID != "" {
		counters.chatters[viewerID] = struct{}{}
	}
}

// deliver routes donation and subscription events to the priority channel
// (never dropped per spec.md §5 backpressure policy; a full priority channel
// blocks the read loop) and everything else to the bounded chat channel.
// When the chat channel is full, the oldest buffered event is dropped to
// make room and the drop counter is incremented.
func (s *Session) deliver(ev model.Event) {
	if ev.EventType == model.EventDonation || ev.EventType == model.EventSubscription {
		s.Donations <- ev
		return
	}
	for {
		select {
		case s.Events <- ev:
			return
		default:
		}
		select {
		case <-s.Events:
			s.dropped.Add(1)
		default:
		}
	}
}

// DroppedCount returns how many non-donation events were dropped due to a
// full outbound channel.
func (s *Session) DroppedCount() int64 {
	return s.dropped.Load()
}

func (s *Session) pingLoop(ctx context.Context, send func(int, []byte) error) {
	if s.protocol.PingInterval <= 0 || s.protocol.SendPing == nil {
		return
	}
	ticker := time.NewTicker(s.protocol.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.protocol.SendPing(send); err != nil {
				return
			}
		}
	}
}

// SnapshotViewers returns a point-in-time copy of the viewer map
// (spec.md §4.4 snapshotViewers — a cheap read, no reset).
func (s *Session) SnapshotViewers() model.ViewerList {
	s.mu.Lock()
	defer s.mu.Unlock()
	viewers := make([]model.Viewer, 0, len(s.viewers))
	for _, v := range s.viewers {
		viewers = append(viewers, v)
	}
	return model.ViewerList{Broadcast: s.Broadcast, Viewers: viewers}
}

// DrainChatStats atomically reads and zeroes the chat counters
// (spec.md P7).
func (s *Session) DrainChatStats() model.ChatStats {
	s.mu.Lock()
	old := s.counters.Swap(newChatCounters())
	messageCount := old.messageCount
	uniqueChatters := len(old.chatters)
	s.mu.Unlock()
	return model.ChatStats{
		Broadcast:      s.Broadcast,
		MessageCount:   messageCount,
		UniqueChatters: uniqueChatters,
	}
}

// Close stops the ping timer, closes the socket, and clears the viewer map.
// Idempotent; safe to call from the read loop or the pool manager.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.setState(StateClosing)
		if s.cancel != nil {
			s.cancel()
		}
		if s.conn != nil {
			s.conn.Close()
		}
		s.mu.Lock()
		s.viewers = make(map[string]model.Viewer)
		s.mu.Unlock()
		s.setState(StateClosed)
		s.Closed <- s.Broadcast
	})
}
