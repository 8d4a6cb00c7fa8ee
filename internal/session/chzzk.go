package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/injooinjoo/streaming-agent-sub004/internal/logging"
	"github.com/injooinjoo/streaming-agent-sub004/internal/model"
	"github.com/injooinjoo/streaming-agent-sub004/internal/platform/chzzk"
)

const chzzkPingInterval = 20 * time.Second

// NewCHZZKSession builds a Session wired to the CHZZK wire protocol: a
// CONNECT frame on open, waiting for CONNECTED (cmd 10100) before the
// handshake is considered complete, PONG replies to server PING, and an
// unconditional PONG keepalive every 20s (spec.md §4.3).
func NewCHZZKSession(broadcast model.BroadcastKey, coords model.ChatCoordinates, logger logging.Logger) *Session {
	url := fmt.Sprintf("wss://%s/chat", coords.Host)

	sendJSON := func(send func(int, []byte) error, frame any) error {
		data, err := json.Marshal(frame)
		if err != nil {
			return err
		}
		return send(websocket.TextMessage, data)
	}

	protocol := Protocol{
		URL: url,
		OnOpen: func(send func(int, []byte) error) error {
			return sendJSON(send, chzzk.ConnectFrame(coords.ChatRoomID))
		},
		RequireAck: func(result FrameResult) bool { return result.Connected },
		DecodeFrame: func(messageType int, data []byte) FrameResult {
			result := chzzk.Decode(data, broadcast)
			return FrameResult{
				Pong:      result.Pong,
				Connected: result.Connected,
				Events:    result.Events,
			}
		},
		OnPing: func(send func(int, []byte) error) error {
			return sendJSON(send, chzzk.PongFrame())
		},
		PingInterval: chzzkPingInterval,
		SendPing: func(send func(int, []byte) error) error {
			return sendJSON(send, chzzk.PongFrame())
		},
	}

	return New(broadcast, model.PlatformCHZZK, protocol, logger)
}
