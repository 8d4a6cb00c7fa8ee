package collector

import (
	"testing"
	"time"

	"github.com/injooinjoo/streaming-agent-sub004/internal/model"
)

func TestFloorBucketQuantizes(t *testing.T) {
	interval := 5 * time.Minute
	at := time.Date(2026, 7, 31, 10, 23, 47, 0, time.UTC)
	bucket := floorBucket(at, interval)
	want := time.Date(2026, 7, 31, 10, 20, 0, 0, time.UTC)
	if !bucket.Equal(want) {
		t.Fatalf("floorBucket(%v) = %v, want %v", at, bucket, want)
	}
}

func TestFloorBucketIdempotent(t *testing.T) {
	interval := 5 * time.Minute
	at := time.Date(2026, 7, 31, 10, 20, 0, 0, time.UTC)
	if b := floorBucket(at, interval); !b.Equal(at) {
		t.Fatalf("floorBucket on an already-aligned time changed it: got %v", b)
	}
}

func raw(viewerCount int) model.RawBroadcast {
	return model.RawBroadcast{ChannelID: "c", ViewerCount: viewerCount}
}

func TestSelectTargetsFiltersByThreshold(t *testing.T) {
	broadcasts := []model.RawBroadcast{raw(50), raw(150), raw(99), raw(200)}
	got := selectTargets(broadcasts, 100, 10)
	if len(got) != 2 {
		t.Fatalf("got %d targets, want 2 (viewers >= 100)", len(got))
	}
	for _, b := range got {
		if b.ViewerCount < 100 {
			t.Errorf("selected broadcast with viewerCount=%d below threshold", b.ViewerCount)
		}
	}
}

func TestSelectTargetsSortsDescending(t *testing.T) {
	broadcasts := []model.RawBroadcast{raw(150), raw(500), raw(300)}
	got := selectTargets(broadcasts, 0, 10)
	for i := 1; i < len(got); i++ {
		if got[i].ViewerCount > got[i-1].ViewerCount {
			t.Fatalf("selectTargets did not sort descending: %v", got)
		}
	}
	if got[0].ViewerCount != 500 {
		t.Errorf("got[0].ViewerCount = %d, want 500", got[0].ViewerCount)
	}
}

func TestSelectTargetsTruncatesToCapacity(t *testing.T) {
	broadcasts := []model.RawBroadcast{raw(500), raw(400), raw(300), raw(200)}
	got := selectTargets(broadcasts, 0, 2)
	if len(got) != 2 {
		t.Fatalf("got %d targets, want 2 (capacity bound)", len(got))
	}
	if got[0].ViewerCount != 500 || got[1].ViewerCount != 400 {
		t.Fatalf("selectTargets kept the wrong top-2: %v", got)
	}
}
