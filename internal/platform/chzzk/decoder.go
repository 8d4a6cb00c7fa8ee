package chzzk

import (
	"encoding/json"

	"github.com/injooinjoo/streaming-agent-sub004/internal/model"
)

// DecodeResult mirrors the SOOP decoder's shape (internal/platform/soop):
// at most one of Pong/Connected is set; Events carries zero or more
// decoded records.
type DecodeResult struct {
	Pong      bool
	Connected bool
	Events    []model.Event
}

// incomingFrame is the minimal shape needed to dispatch on cmd before
// re-parsing bdy against a cmd-specific shape.
type incomingFrame struct {
	Cmd int             `json:"cmd"`
	Bdy json.RawMessage `json:"bdy"`
}

// chatProfile is the JSON-encoded-string "profile" field re-parsed per
// message (spec.md §4.3).
type chatProfile struct {
	UserIDHash string `json:"userIdHash"`
	Nickname   string `json:"nickname"`
}

// chatExtras covers the superset of fields used across CHAT/DONATION/
// SUBSCRIPTION bodies; unused fields are simply left zero for a given cmd.
type chatExtras struct {
	PayAmount int    `json:"payAmount"`
	Msg       string `json:"msg"`
	Month     int    `json:"month"`
}

// chatItem is one entry of a CHAT/RECENT_CHAT/DONATION/SUBSCRIPTION body.
// profile and extras arrive as JSON-encoded strings, not nested objects,
// and must be re-parsed (spec.md §4.3).
type chatItem struct {
	Msg     string `json:"msg"`
	Profile string `json:"profile"`
	Extras  string `json:"extras"`
}

// Decode parses one raw CHZZK frame payload into a DecodeResult. broadcast
// identifies the session the frame arrived on.
func Decode(raw []byte, broadcast model.BroadcastKey) DecodeResult {
	var frame incomingFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return DecodeResult{}
	}

	switch frame.Cmd {
	case CmdPing:
		return DecodeResult{Pong: true}
	case CmdConnected:
		return DecodeResult{Connected: true}
	case CmdChat, CmdRecentChat:
		return DecodeResult{Events: decodeItems(frame.Bdy, broadcast, decodeChatItem)}
	case CmdDonation:
		return DecodeResult{Events: decodeItems(frame.Bdy, broadcast, decodeDonationItem)}
	case CmdSubscription:
		return DecodeResult{Events: decodeItems(frame.Bdy, broadcast, decodeSubscriptionItem)}
	default:
		return DecodeResult{}
	}
}

// decodeItems re-parses a bdy payload that may be a single object or an
// array of objects, skipping anything that doesn't decode.
func decodeItems(bdy json.RawMessage, broadcast model.BroadcastKey, decode func(chatItem, model.BroadcastKey) (model.Event, bool)) []model.Event {
	if len(bdy) == 0 {
		return nil
	}

	var items []chatItem
	if bdy[0] == '[' {
		if err := json.Unmarshal(bdy, &items); err != nil {
			return nil
		}
	} else {
		var single chatItem
		if err := json.Unmarshal(bdy, &single); err != nil {
			return nil
		}
		items = []chatItem{single}
	}

	var events []model.Event
	for _, item := range items {
		if ev, ok := decode(item, broadcast); ok {
			events = append(events, ev)
		}
	}
	return events
}

func parseProfile(raw string) chatProfile {
	var p chatProfile
	_ = json.Unmarshal([]byte(raw), &p)
	return p
}

func parseExtras(raw string) chatExtras {
	var e chatExtras
	_ = json.Unmarshal([]byte(raw), &e)
	return e
}

func decodeChatItem(item chatItem, broadcast model.BroadcastKey) (model.Event, bool) {
	profile := parseProfile(item.Profile)
	if profile.UserIDHash == "" {
		return model.Event{}, false
	}
	return model.Event{
		EventType:       model.EventChat,
		Platform:        model.PlatformCHZZK,
		Actor:           model.PersonKey{Platform: model.PlatformCHZZK, PlatformUserID: profile.UserIDHash},
		ActorNick:       profile.Nickname,
		Broadcast:       broadcast,
		TargetChannelID: broadcast.ChannelID,
		Message:         item.Msg,
	}, true
}

func decodeDonationItem(item chatItem, broadcast model.BroadcastKey) (model.Event, bool) {
	profile := parseProfile(item.Profile)
	extras := parseExtras(item.Extras)
	message := extras.Msg
	if message == "" {
		message = item.Msg
	}
	return model.Event{
		EventType:       model.EventDonation,
		Platform:        model.PlatformCHZZK,
		Actor:           model.PersonKey{Platform: model.PlatformCHZZK, PlatformUserID: profile.UserIDHash},
		ActorNick:       profile.Nickname,
		Broadcast:       broadcast,
		TargetChannelID: broadcast.ChannelID,
		Message:         message,
		Amount:          int64(extras.PayAmount),
		OriginalAmount:  int64(extras.PayAmount),
		Currency:        "KRW",
		DonationSubtype: model.DonationCheese,
	}, true
}

func decodeSubscriptionItem(item chatItem, broadcast model.BroadcastKey) (model.Event, bool) {
	profile := parseProfile(item.Profile)
	extras := parseExtras(item.Extras)
	return model.Event{
		EventType:          model.EventSubscription,
		Platform:           model.PlatformCHZZK,
		Actor:              model.PersonKey{Platform: model.PlatformCHZZK, PlatformUserID: profile.UserIDHash},
		ActorNick:          profile.Nickname,
		Broadcast:          broadcast,
		TargetChannelID:    broadcast.ChannelID,
		Amount:             0,
		Currency:           "KRW",
		DonationSubtype:    model.DonationSubscribe,
		SubscriptionMonths: extras.Month,
	}, true
}
