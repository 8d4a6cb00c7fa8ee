package soop

import (
	"strconv"
	"strings"

	"github.com/injooinjoo/streaming-agent-sub004/internal/model"
)

// Field layout assumptions below are not pinned down by anything but the
// donation count position (spec.md §4.3 names parts[4]); everything else is
// a consistent, documented guess at the real wire shape.

// DecodeResult is everything a single frame can produce. At most one of
// Pong / UserListReplace / UserJoin is set; Events may still carry a chat
// or donation record alongside.
type DecodeResult struct {
	Pong            bool
	UserListReplace []model.Viewer
	UserJoin        *model.Viewer
	Events          []model.Event
}

// Decode turns one parsed Frame into a DecodeResult. broadcast identifies
// the session the frame arrived on, for stamping onto emitted events.
func Decode(frame Frame, broadcast model.BroadcastKey) DecodeResult {
	switch frame.Action {
	case ActionPing:
		return DecodeResult{Pong: true}
	case ActionUserList:
		return DecodeResult{UserListReplace: decodeUserList(frame.Parts)}
	case ActionUserJoin:
		v := decodeViewer(frame.Parts, 0)
		if v == nil {
			return DecodeResult{}
		}
		return DecodeResult{UserJoin: v}
	case ActionChat:
		return DecodeResult{Events: []model.Event{decodeChat(frame.Parts, broadcast)}}
	case ActionTextDonation:
		return DecodeResult{Events: []model.Event{decodeDonation(frame.Parts, broadcast, model.DonationBalloon)}}
	case ActionAdBalloon:
		return DecodeResult{Events: []model.Event{decodeDonation(frame.Parts, broadcast, model.DonationAdBalloon)}}
	case ActionVideoDonation:
		return DecodeResult{Events: []model.Event{decodeDonation(frame.Parts, broadcast, model.DonationVideoBalloon)}}
	case ActionSubscribe:
		return DecodeResult{Events: []model.Event{decodeSubscribe(frame.Parts, broadcast)}}
	default:
		return DecodeResult{}
	}
}

// decodeUserList parses 0004 USER_LIST: parts arrive in (id, nickname,
// flags) triples.
func decodeUserList(parts []string) []model.Viewer {
	var viewers []model.Viewer
	for i := 0; i+2 < len(parts); i += 3 {
		if v := decodeViewer(parts, i); v != nil {
			viewers = append(viewers, *v)
		}
	}
	return viewers
}

func decodeViewer(parts []string, offset int) *model.Viewer {
	if offset+2 >= len(parts) {
		return nil
	}
	rawID := partOr(parts, offset)
	if rawID == "" {
		return nil
	}
	id := strings.TrimSuffix(rawID, "(n)")
	nickname := partOr(parts, offset+1)
	flags := parseFlagPair(partOr(parts, offset+2))
	return &model.Viewer{
		ViewerID:     id,
		Nickname:     nickname,
		IsSubscriber: flags&0x10000000 != 0,
		IsFan:        flags&0x20000000 != 0 || flags&0x40000 != 0,
	}
}

// parseFlagPair accepts one or two '|'-joined 32-bit flag integers and ORs
// them together so a single bitmask test covers both.
func parseFlagPair(raw string) uint64 {
	var combined uint64
	for _, field := range strings.Split(raw, "|") {
		if n, err := strconv.ParseUint(strings.TrimSpace(field), 10, 64); err == nil {
			combined |= n
		}
	}
	return combined
}

func decodeChat(parts []string, broadcast model.BroadcastKey) model.Event {
	return model.Event{
		EventType:       model.EventChat,
		Platform:        model.PlatformSOOP,
		Actor:           model.PersonKey{Platform: model.PlatformSOOP, PlatformUserID: partOr(parts, 1)},
		ActorNick:       partOr(parts, 2),
		Broadcast:       broadcast,
		TargetChannelID: broadcast.ChannelID,
		Message:         partOr(parts, 0),
	}
}

// decodeDonation covers 0018/0087/0105. Count lives at parts[4]; SOOP
// denominates balloons in units of 100 KRW.
func decodeDonation(parts []string, broadcast model.BroadcastKey, subtype model.DonationSubtype) model.Event {
	const krwPerBalloon = 100

	count := atoiOr(partOr(parts, 4), 0)
	if subtype == model.DonationAdBalloon && count == 0 {
		count = scanPlausibleCount(parts, 5, 9)
	}

	return model.Event{
		EventType:       model.EventDonation,
		Platform:        model.PlatformSOOP,
		Actor:           model.PersonKey{Platform: model.PlatformSOOP, PlatformUserID: partOr(parts, 0)},
		ActorNick:       partOr(parts, 1),
		Broadcast:       broadcast,
		TargetChannelID: broadcast.ChannelID,
		Amount:          int64(count * krwPerBalloon),
		OriginalAmount:  int64(count),
		Currency:        "KRW",
		DonationSubtype: subtype,
	}
}

// scanPlausibleCount handles the AD_BALLOON quirk where the count sometimes
// lands in a later field instead of parts[4]: the first in-range value
// between lo and hi (inclusive bounds on the field index) wins. Left as a
// heuristic rather than a fixed offset — see DESIGN.md Open Question.
func scanPlausibleCount(parts []string, lo, hi int) int {
	for i := lo; i <= hi && i < len(parts); i++ {
		if n := atoiOr(parts[i], -1); n > 0 && n < 100000 {
			return n
		}
	}
	return 0
}

func decodeSubscribe(parts []string, broadcast model.BroadcastKey) model.Event {
	return model.Event{
		EventType:          model.EventSubscription,
		Platform:           model.PlatformSOOP,
		Actor:              model.PersonKey{Platform: model.PlatformSOOP, PlatformUserID: partOr(parts, 0)},
		ActorNick:          partOr(parts, 1),
		Broadcast:          broadcast,
		TargetChannelID:    broadcast.ChannelID,
		Amount:             0,
		Currency:           "KRW",
		DonationSubtype:    model.DonationSubscribe,
		SubscriptionMonths: atoiOr(partOr(parts, 2), 1),
	}
}

func atoiOr(s string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fallback
	}
	return n
}
