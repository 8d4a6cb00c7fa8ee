package soop

import (
	"testing"

	"github.com/injooinjoo/streaming-agent-sub004/internal/model"
)

var testBroadcast = model.BroadcastKey{Platform: model.PlatformSOOP, ChannelID: "bjid1", BroadcastID: "bno1"}

func TestParseFrameRoundTrip(t *testing.T) {
	raw := EncodeFrame(ActionChat, "hello world", "user123", "nick1")
	frame, ok := ParseFrame(raw)
	if !ok {
		t.Fatalf("ParseFrame rejected a well-formed frame")
	}
	if frame.Action != ActionChat {
		t.Fatalf("action = %q, want %q", frame.Action, ActionChat)
	}
	want := []string{"hello world", "user123", "nick1"}
	if len(frame.Parts) != len(want) {
		t.Fatalf("parts = %v, want %v", frame.Parts, want)
	}
	for i := range want {
		if frame.Parts[i] != want[i] {
			t.Errorf("parts[%d] = %q, want %q", i, frame.Parts[i], want[i])
		}
	}
}

func TestParseFrameRejectsShortOrMalformed(t *testing.T) {
	if _, ok := ParseFrame([]byte("short")); ok {
		t.Fatalf("ParseFrame accepted input shorter than the header")
	}
	if _, ok := ParseFrame([]byte("xx0000000010payload")); ok {
		t.Fatalf("ParseFrame accepted a frame missing the ESC/SO prefix")
	}
}

func TestDecodePing(t *testing.T) {
	result := Decode(Frame{Action: ActionPing}, testBroadcast)
	if !result.Pong {
		t.Fatalf("expected Pong=true for action %s", ActionPing)
	}
}

func TestDecodeUserListReplace(t *testing.T) {
	frame := Frame{
		Action: ActionUserList,
		Parts:  []string{"uid1(n)", "nick1", "0", "uid2", "nick2", "268435456"},
	}
	result := Decode(frame, testBroadcast)
	if len(result.UserListReplace) != 2 {
		t.Fatalf("got %d viewers, want 2", len(result.UserListReplace))
	}
	if result.UserListReplace[0].ViewerID != "uid1" {
		t.Errorf("viewer[0].ViewerID = %q, want uid1 (the (n) suffix should be stripped)", result.UserListReplace[0].ViewerID)
	}
	if !result.UserListReplace[1].IsSubscriber {
		t.Errorf("viewer[1] flags=268435456 (0x10000000) should decode IsSubscriber=true")
	}
}

func TestDecodeUserJoin(t *testing.T) {
	frame := Frame{Action: ActionUserJoin, Parts: []string{"uid3", "nick3", "0"}}
	result := Decode(frame, testBroadcast)
	if result.UserJoin == nil {
		t.Fatalf("expected UserJoin to be set")
	}
	if result.UserJoin.ViewerID != "uid3" {
		t.Errorf("UserJoin.ViewerID = %q, want uid3", result.UserJoin.ViewerID)
	}
}

func TestDecodeChat(t *testing.T) {
	frame := Frame{Action: ActionChat, Parts: []string{"hi there", "uid4", "nick4"}}
	result := Decode(frame, testBroadcast)
	if len(result.Events) != 1 {
		t.Fatalf("got %d events, want 1", len(result.Events))
	}
	ev := result.Events[0]
	if ev.EventType != model.EventChat {
		t.Errorf("EventType = %q, want chat", ev.EventType)
	}
	if ev.Actor.PlatformUserID != "uid4" || ev.Actor.Platform != model.PlatformSOOP {
		t.Errorf("Actor = %+v, want PersonKey{soop, uid4}", ev.Actor)
	}
	if ev.Message != "hi there" {
		t.Errorf("Message = %q, want %q", ev.Message, "hi there")
	}
}

func TestDecodeDonationNormalizesKRW(t *testing.T) {
	frame := Frame{Action: ActionTextDonation, Parts: []string{"uid5", "nick5", "msg", "", "10"}}
	result := Decode(frame, testBroadcast)
	ev := result.Events[0]
	if ev.Amount != 1000 {
		t.Errorf("Amount = %d, want 1000 (10 balloons * 100 KRW)", ev.Amount)
	}
	if ev.OriginalAmount != 10 {
		t.Errorf("OriginalAmount = %d, want 10", ev.OriginalAmount)
	}
	if ev.DonationSubtype != model.DonationBalloon {
		t.Errorf("DonationSubtype = %q, want balloon", ev.DonationSubtype)
	}
}

func TestDecodeAdBalloonFallsBackToScan(t *testing.T) {
	// parts[4] is "0" (not present), so the decoder scans parts[5..9] for
	// the first plausible count.
	frame := Frame{Action: ActionAdBalloon, Parts: []string{"uid6", "nick6", "msg", "", "0", "0", "5", "0"}}
	result := Decode(frame, testBroadcast)
	ev := result.Events[0]
	if ev.OriginalAmount != 5 {
		t.Errorf("OriginalAmount = %d, want 5 (scanned from parts[6])", ev.OriginalAmount)
	}
}

func TestDecodeSubscribe(t *testing.T) {
	frame := Frame{Action: ActionSubscribe, Parts: []string{"uid7", "nick7", "3"}}
	result := Decode(frame, testBroadcast)
	ev := result.Events[0]
	if ev.EventType != model.EventSubscription {
		t.Errorf("EventType = %q, want subscription", ev.EventType)
	}
	if ev.SubscriptionMonths != 3 {
		t.Errorf("SubscriptionMonths = %d, want 3", ev.SubscriptionMonths)
	}
}

func TestDecodeUnknownActionIsZeroValue(t *testing.T) {
	result := Decode(Frame{Action: "9999"}, testBroadcast)
	if result.Pong || result.UserJoin != nil || result.UserListReplace != nil || result.Events != nil {
		t.Fatalf("unknown action should decode to the zero DecodeResult, got %+v", result)
	}
}
