package chzzk

import (
	"testing"

	"github.com/injooinjoo/streaming-agent-sub004/internal/model"
)

var testBroadcast = model.BroadcastKey{Platform: model.PlatformCHZZK, ChannelID: "chan1", BroadcastID: "chan1"}

func TestDecodePing(t *testing.T) {
	result := Decode([]byte(`{"cmd":0}`), testBroadcast)
	if !result.Pong {
		t.Fatalf("expected Pong=true for cmd 0")
	}
}

func TestDecodeConnected(t *testing.T) {
	result := Decode([]byte(`{"cmd":10100}`), testBroadcast)
	if !result.Connected {
		t.Fatalf("expected Connected=true for cmd 10100")
	}
}

func TestDecodeChatSingleObject(t *testing.T) {
	raw := []byte(`{"cmd":93101,"bdy":{"msg":"hello","profile":"{\"userIdHash\":\"u1\",\"nickname\":\"nick1\"}","extras":"{}"}}`)
	result := Decode(raw, testBroadcast)
	if len(result.Events) != 1 {
		t.Fatalf("got %d events, want 1", len(result.Events))
	}
	ev := result.Events[0]
	if ev.EventType != model.EventChat {
		t.Errorf("EventType = %q, want chat", ev.EventType)
	}
	if ev.Actor.PlatformUserID != "u1" {
		t.Errorf("Actor.PlatformUserID = %q, want u1", ev.Actor.PlatformUserID)
	}
	if ev.Message != "hello" {
		t.Errorf("Message = %q, want hello", ev.Message)
	}
}

func TestDecodeChatArray(t *testing.T) {
	raw := []byte(`{"cmd":15101,"bdy":[` +
		`{"msg":"a","profile":"{\"userIdHash\":\"u1\",\"nickname\":\"n1\"}","extras":"{}"},` +
		`{"msg":"b","profile":"{\"userIdHash\":\"u2\",\"nickname\":\"n2\"}","extras":"{}"}` +
		`]}`)
	result := Decode(raw, testBroadcast)
	if len(result.Events) != 2 {
		t.Fatalf("got %d events, want 2", len(result.Events))
	}
}

func TestDecodeDonationReparsesExtras(t *testing.T) {
	raw := []byte(`{"cmd":93102,"bdy":{"profile":"{\"userIdHash\":\"u3\",\"nickname\":\"n3\"}","extras":"{\"payAmount\":1000,\"msg\":\"thanks\"}"}}`)
	result := Decode(raw, testBroadcast)
	ev := result.Events[0]
	if ev.Amount != 1000 || ev.OriginalAmount != 1000 {
		t.Errorf("Amount/OriginalAmount = %d/%d, want 1000/1000", ev.Amount, ev.OriginalAmount)
	}
	if ev.Message != "thanks" {
		t.Errorf("Message = %q, want thanks (from extras.msg)", ev.Message)
	}
}

func TestDecodeSubscription(t *testing.T) {
	raw := []byte(`{"cmd":93103,"bdy":{"profile":"{\"userIdHash\":\"u4\",\"nickname\":\"n4\"}","extras":"{\"month\":6}"}}`)
	result := Decode(raw, testBroadcast)
	ev := result.Events[0]
	if ev.EventType != model.EventSubscription {
		t.Errorf("EventType = %q, want subscription", ev.EventType)
	}
	if ev.SubscriptionMonths != 6 {
		t.Errorf("SubscriptionMonths = %d, want 6", ev.SubscriptionMonths)
	}
}

func TestDecodeChatMissingProfileIsSkipped(t *testing.T) {
	raw := []byte(`{"cmd":93101,"bdy":{"msg":"no profile"}}`)
	result := Decode(raw, testBroadcast)
	if len(result.Events) != 0 {
		t.Fatalf("expected no events when profile.userIdHash is empty, got %d", len(result.Events))
	}
}

func TestDecodeUnknownCmdIsZeroValue(t *testing.T) {
	result := Decode([]byte(`{"cmd":424242}`), testBroadcast)
	if result.Pong || result.Connected || result.Events != nil {
		t.Fatalf("unknown cmd should decode to the zero DecodeResult, got %+v", result)
	}
}

func TestDecodeMalformedJSONIsZeroValue(t *testing.T) {
	result := Decode([]byte(`not json`), testBroadcast)
	if result.Pong || result.Connected || result.Events != nil {
		t.Fatalf("malformed JSON should decode to the zero DecodeResult, got %+v", result)
	}
}
