package model

import "time"

// Event is the unified, append-only activity record (spec.md §3). Every
// protocol decoder emits these; nothing downstream ever mutates one after
// insert.
type Event struct {
	EventID     string
	EventType   EventType
	Platform    Platform
	Actor       PersonKey
	ActorNick   string
	ActorRole   Role
	Target      PersonKey // zero value if the event has no target person
	TargetChannelID string
	Broadcast   BroadcastKey
	Message     string
	Amount      int64 // normalized to KRW
	OriginalAmount int64
	Currency    string
	DonationSubtype DonationSubtype
	SubscriptionMonths int
	EventTimestamp time.Time
	IngestedAt     time.Time
}

// Viewer is one entry in a chat session's rolling viewer map.
type Viewer struct {
	ViewerID     string
	Nickname     string
	IsSubscriber bool
	IsFan        bool
}

// ViewerList is a point-in-time copy of a session's viewer map, as returned
// by Session.SnapshotViewers. It never aliases session-owned storage.
type ViewerList struct {
	Broadcast BroadcastKey
	Viewers   []Viewer
}

// ChatStats is the drained (message count, unique chatters) pair returned by
// Session.DrainChatStats. Subsequent reads before new chat frames arrive
// return the zero value (spec.md P7).
type ChatStats struct {
	Broadcast       BroadcastKey
	MessageCount    int
	UniqueChatters  int
}

// RawBroadcast is what a platform API client's listLiveBroadcasts returns,
// before enrichment (spec.md §4.2). Fields map 1:1 onto the platform's wire
// shape via each platform package's decoder.
type RawBroadcast struct {
	Platform        Platform
	ChannelID       string
	BroadcastID     string
	BroadcasterID   string
	BroadcasterNick string
	Title           string
	CategoryID      string
	CategoryName    string
	Thumbnail       string
	ViewerCount     int
	StartedAt       time.Time
	Tags            []string
}

// ChatCoordinates is the resolved chat-server endpoint for one channel
// (spec.md §4.2 fetchChatCoordinates).
type ChatCoordinates struct {
	Host       string
	Port       int
	ChatRoomID string
}
