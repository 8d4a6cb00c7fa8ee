package soop

import "fmt"

// BuildConnectFrame builds the initial CONNECT frame sent immediately after
// the WebSocket dial completes (spec.md §4.4).
func BuildConnectFrame() []byte {
	return EncodeFrame(ActionConnect, "", "", "16")
}

// BuildJoinFrame builds the JOIN frame sent ~500ms after CONNECT, carrying
// the chat room id resolved by FetchChatCoordinates.
func BuildJoinFrame(chatRoomID string) []byte {
	return EncodeFrame(ActionJoin, chatRoomID, "", "")
}

// BuildPongFrame replies to a server PING (action 0000).
func BuildPongFrame() []byte {
	return EncodeFrame(ActionPing)
}

// String renders a frame for debug logging.
func (f Frame) String() string {
	return fmt.Sprintf("soop.Frame{action=%s parts=%v}", f.Action, f.Parts)
}
