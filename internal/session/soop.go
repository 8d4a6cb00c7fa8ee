package session

import (
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/injooinjoo/streaming-agent-sub004/internal/logging"
	"github.com/injooinjoo/streaming-agent-sub004/internal/model"
	"github.com/injooinjoo/streaming-agent-sub004/internal/platform/soop"
)

const soopPingInterval = 60 * time.Second

// NewSOOPSession builds a Session wired to the SOOP wire protocol: CONNECT
// then JOIN on open (500ms apart per spec.md §4.3), PONG replies to server
// PING, ping every 60s.
func NewSOOPSession(broadcast model.BroadcastKey, coords model.ChatCoordinates, logger logging.Logger) *Session {
	url := fmt.Sprintf("wss://%s:%d/Websocket/%s", coords.Host, coords.Port, broadcast.ChannelID)

	protocol := Protocol{
		URL:         url,
		Subprotocol: "chat",
		OnOpen: func(send func(int, []byte) error) error {
			if err := send(websocket.BinaryMessage, soop.BuildConnectFrame()); err != nil {
				return err
			}
			time.Sleep(500 * time.Millisecond)
			return send(websocket.BinaryMessage, soop.BuildJoinFrame(coords.ChatRoomID))
		},
		DecodeFrame: func(messageType int, data []byte) FrameResult {
			frame, ok := soop.ParseFrame(data)
			if !ok {
				return FrameResult{}
			}
			result := soop.Decode(frame, broadcast)
			return FrameResult{
				Pong:              result.Pong,
				ViewerListReplace: result.UserListReplace,
				ViewerJoin:        result.UserJoin,
				Events:            result.Events,
			}
		},
		OnPing: func(send func(int, []byte) error) error {
			return send(websocket.BinaryMessage, soop.BuildPongFrame())
		},
		PingInterval: soopPingInterval,
		SendPing: func(send func(int, []byte) error) error {
			return send(websocket.BinaryMessage, soop.EncodeFrame(soop.ActionPing))
		},
	}

	return New(broadcast, model.PlatformSOOP, protocol, logger)
}
