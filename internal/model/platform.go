// Package model holds the unified, platform-agnostic types the rest of the
// collector operates on: decoded events, persons, broadcasts, and the
// snapshot/stats shapes written to the warehouse (spec.md §3).
package model

// Platform identifies one of the two in-scope broadcast platforms.
type Platform string

const (
	PlatformSOOP  Platform = "soop"
	PlatformCHZZK Platform = "chzzk"
)

// Role is the actor's standing within a broadcast at event time.
type Role string

const (
	RoleStreamer Role = "streamer"
	RoleManager  Role = "manager"
	RoleVIP      Role = "vip"
	RoleFan      Role = "fan"
	RoleRegular  Role = "regular"
	RoleSystem   Role = "system"
)

// EventType is the unified event kind emitted by every protocol decoder.
type EventType string

const (
	EventChat             EventType = "chat"
	EventUserListSnapshot EventType = "user_list_snapshot"
	EventUserJoin         EventType = "user_join"
	EventDonation         EventType = "donation"
	EventSubscription     EventType = "subscription"
)

// DonationSubtype classifies the monetary/subscription-like event, per the
// glossary in spec.md.
type DonationSubtype string

const (
	DonationBalloon    DonationSubtype = "balloon"
	DonationAdBalloon  DonationSubtype = "ad_balloon"
	DonationVideoBalloon DonationSubtype = "video_balloon"
	DonationCheese     DonationSubtype = "cheese"
	DonationSubscribe  DonationSubtype = "subscribe"
)

// BroadcastKey uniquely identifies a broadcast within one platform (the
// glossary's "platform key" for broadcasts).
type BroadcastKey struct {
	Platform    Platform
	ChannelID   string
	BroadcastID string
}

// PersonKey uniquely identifies a person within one platform.
type PersonKey struct {
	Platform       Platform
	PlatformUserID string
}
