package persistence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/injooinjoo/streaming-agent-sub004/internal/logging"
	"github.com/injooinjoo/streaming-agent-sub004/internal/model"
	"github.com/injooinjoo/streaming-agent-sub004/internal/warehouse"
)

// Store wraps a warehouse.Client with the collector's domain-specific
// upsert/insert operations. It holds no state of its own beyond the
// connection; every invariant (peak monotonicity, cache consistency) is the
// caller's responsibility per spec.md §5's shared-resource policy.
type Store struct {
	wh     *warehouse.Client
	logger logging.Logger
}

// New builds a Store over an already-connected warehouse client.
func New(wh *warehouse.Client, logger logging.Logger) *Store {
	return &Store{wh: wh, logger: logger}
}

// UpsertPerson implements spec.md §4.7 upsertPerson: merge on
// (platform, platform_user_id); nickname and last_seen_at always refresh.
func (s *Store) UpsertPerson(ctx context.Context, platform model.Platform, userID, nickname string, isBroadcaster bool) error {
	if userID == "" {
		return nil
	}
	now := time.Now().UTC()
	return s.wh.Merge(ctx, warehouse.MergeSpec{
		Target:     tablePersons,
		InsertCols: []string{"platform", "platform_user_id", "nickname", "is_broadcaster", "first_seen_at", "last_seen_at"},
		InsertVals: []interface{}{string(platform), userID, nickname, isBroadcaster, now, now},
	})
}

// BroadcastState is the full current snapshot of one broadcast's mutable
// columns. Because the warehouse's merge() lowers to INSERT against a
// ReplacingMergeTree-keyed table (internal/warehouse/merge.go), every write
// must carry the complete row — peak_viewers and is_live are computed by
// the caller (the orchestrator's in-memory broadcastMetaCache) before the
// insert, not derived by the warehouse.
type BroadcastState struct {
	Broadcast         model.BroadcastKey
	BroadcasterUserID string
	Title             string
	CategoryID        string
	CategoryName      string
	Tags              []string
	StartedAt         time.Time
	EndedAt           *time.Time
	CurrentViewers    int
	PeakViewers       int
	IsLive            bool
}

// UpsertBroadcast implements spec.md §4.7 upsertBroadcast. Callers compute
// peak_viewers = max(cached, observed) before calling this.
func (s *Store) UpsertBroadcast(ctx context.Context, state BroadcastState) error {
	var endedAt interface{}
	if state.EndedAt != nil {
		endedAt = *state.EndedAt
	}
	return s.wh.Merge(ctx, warehouse.MergeSpec{
		Target: tableBroadcasts,
		InsertCols: []string{
			"platform", "channel_id", "broadcast_id", "broadcaster_user_id",
			"title", "category_id", "category_name", "tags",
			"current_viewers", "peak_viewers", "is_live",
			"started_at", "ended_at",
		},
		InsertVals: []interface{}{
			string(state.Broadcast.Platform), state.Broadcast.ChannelID, state.Broadcast.BroadcastID, state.BroadcasterUserID,
			state.Title, state.CategoryID, state.CategoryName, strings.Join(state.Tags, ","),
			state.CurrentViewers, state.PeakViewers, state.IsLive,
			state.StartedAt, endedAt,
		},
	})
}

// MarkBroadcastEnded implements spec.md §4.7 markBroadcastEnded: the caller
// supplies the broadcast's last known full state with EndedAt set; this
// forces IsLive to false and writes the row through UpsertBroadcast, since
// the ReplacingMergeTree lowering has no partial UPDATE primitive. No
// duration column is written; the row carries started_at and ended_at only.
func (s *Store) MarkBroadcastEnded(ctx context.Context, state BroadcastState) error {
	state.IsLive = false
	return s.UpsertBroadcast(ctx, state)
}

// SaveViewerSnapshot implements the Schedule A per-poll snapshot write
// (spec.md §4.6 step 2): one row per (broadcast, bucket).
func (s *Store) SaveViewerSnapshot(ctx context.Context, broadcast model.BroadcastKey, bucket time.Time, viewerCount int, chatRatePerMinute float64) error {
	return s.wh.Merge(ctx, warehouse.MergeSpec{
		Target:     tableViewerSnapshots,
		InsertCols: []string{"platform", "channel_id", "broadcast_id", "snapshot_timestamp", "viewer_count", "chat_rate"},
		InsertVals: []interface{}{string(broadcast.Platform), broadcast.ChannelID, broadcast.BroadcastID, bucket, viewerCount, chatRatePerMinute},
	})
}

// SaveBroadcastStats5Min implements spec.md §4.7 saveBroadcastSnapshot for
// Schedule B: merge on (broadcast, bucket), ratios are 0 when viewers=0.
func (s *Store) SaveBroadcastStats5Min(ctx context.Context, broadcast model.BroadcastKey, bucket time.Time, viewerCount, subscriberCount, fanCount, chatCount, uniqueChatters int) error {
	var subscriberRatio, fanRatio float64
	if viewerCount > 0 {
		subscriberRatio = float64(subscriberCount) / float64(viewerCount)
		fanRatio = float64(fanCount) / float64(viewerCount)
	}
	return s.wh.Merge(ctx, warehouse.MergeSpec{
		Target: tableBroadcastStats5Min,
		InsertCols: []string{
			"platform", "channel_id", "broadcast_id", "bucket",
			"viewer_count", "subscriber_count", "fan_count",
			"subscriber_ratio", "fan_ratio", "chat_count", "unique_chatters",
		},
		InsertVals: []interface{}{
			string(broadcast.Platform), broadcast.ChannelID, broadcast.BroadcastID, bucket,
			viewerCount, subscriberCount, fanCount,
			subscriberRatio, fanRatio, chatCount, uniqueChatters,
		},
	})
}

// InsertViewingRecord implements spec.md §4.7 insertViewingRecord: idempotent
// on (viewer_id, broadcast_id, snapshot_at) via a NOT EXISTS guard.
func (s *Store) InsertViewingRecord(ctx context.Context, viewer model.Viewer, broadcast model.BroadcastKey, snapshotAt time.Time) error {
	query := fmt.Sprintf(
		`INSERT INTO %s (viewer_id, platform, broadcast_id, snapshot_at, is_subscriber, is_fan)
		 SELECT ?, ?, ?, ?, ?, ?
		 WHERE NOT EXISTS (
		   SELECT 1 FROM %s WHERE viewer_id = ? AND broadcast_id = ? AND snapshot_at = ?
		 )`,
		tableViewingRecords, tableViewingRecords,
	)
	_, err := s.wh.Run(ctx, query,
		viewer.ViewerID, string(broadcast.Platform), broadcast.BroadcastID, snapshotAt, viewer.IsSubscriber, viewer.IsFan,
		viewer.ViewerID, broadcast.BroadcastID, snapshotAt,
	)
	return err
}

// InsertEvent implements the append path for chat/donation/subscription
// events (spec.md §4.7 insertDonation, generalized to every event type the
// protocol decoders emit — chat events append the same way).
func (s *Store) InsertEvent(ctx context.Context, ev model.Event) error {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	if ev.IngestedAt.IsZero() {
		ev.IngestedAt = time.Now().UTC()
	}
	_, err := s.wh.Run(ctx, fmt.Sprintf(
		`INSERT INTO %s (
			event_id, event_type, platform,
			actor_platform_user_id, actor_nickname, actor_role,
			target_platform_user_id, target_channel_id,
			broadcast_channel_id, broadcast_id,
			message, amount, original_amount, currency,
			donation_subtype, subscription_months,
			event_timestamp, ingested_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tableEvents,
	),
		ev.EventID, string(ev.EventType), string(ev.Platform),
		ev.Actor.PlatformUserID, ev.ActorNick, string(ev.ActorRole),
		ev.Target.PlatformUserID, ev.TargetChannelID,
		ev.Broadcast.ChannelID, ev.Broadcast.BroadcastID,
		ev.Message, ev.Amount, ev.OriginalAmount, ev.Currency,
		string(ev.DonationSubtype), ev.SubscriptionMonths,
		ev.EventTimestamp, ev.IngestedAt,
	)
	return err
}

// UpsertCategory implements the supplemental Category catalog write
// (SPEC_FULL.md §4.8): written whenever Schedule A detects a category
// change on a broadcast.
func (s *Store) UpsertCategory(ctx context.Context, platform model.Platform, categoryID, categoryName string) error {
	if categoryID == "" {
		return nil
	}
	return s.wh.Merge(ctx, warehouse.MergeSpec{
		Target:     tableCategories,
		InsertCols: []string{"platform", "category_id", "category_name"},
		InsertVals: []interface{}{string(platform), categoryID, categoryName},
	})
}

// FieldChange is one detected title/category change, written to
// broadcast_changes (spec.md §4.6 step 2).
type FieldChange struct {
	Broadcast model.BroadcastKey
	Field     string
	OldValue  string
	NewValue  string
}

// RecordBroadcastChange inserts one broadcast_changes row.
func (s *Store) RecordBroadcastChange(ctx context.Context, change FieldChange) error {
	_, err := s.wh.Run(ctx, fmt.Sprintf(
		`INSERT INTO %s (platform, channel_id, broadcast_id, field, old_value, new_value, changed_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tableBroadcastChanges,
	),
		string(change.Broadcast.Platform), change.Broadcast.ChannelID, change.Broadcast.BroadcastID,
		change.Field, change.OldValue, change.NewValue, time.Now().UTC(),
	)
	return err
}

// CloseSegment implements the supplemental segment-tracking feature
// (SPEC_FULL.md "Segment tracking"): closes the currently open segment for
// a broadcast by stamping segment_end.
func (s *Store) CloseSegment(ctx context.Context, broadcast model.BroadcastKey, segmentEnd time.Time) error {
	_, err := s.wh.Run(ctx, fmt.Sprintf(
		`ALTER TABLE %s UPDATE segment_end = ? WHERE platform = ? AND channel_id = ? AND broadcast_id = ? AND segment_end IS NULL`,
		tableBroadcastSegments,
	), segmentEnd, string(broadcast.Platform), broadcast.ChannelID, broadcast.BroadcastID)
	return err
}

// OpenSegment inserts a new open segment (segment_end = NULL) for a
// broadcast whose title or category just changed.
func (s *Store) OpenSegment(ctx context.Context, broadcast model.BroadcastKey, categoryID, categoryName string, segmentStart time.Time) error {
	_, err := s.wh.Run(ctx, fmt.Sprintf(
		`INSERT INTO %s (platform, channel_id, broadcast_id, category_id, category_name, segment_start, segment_end) VALUES (?, ?, ?, ?, ?, ?, NULL)`,
		tableBroadcastSegments,
	),
		string(broadcast.Platform), broadcast.ChannelID, broadcast.BroadcastID,
		categoryID, categoryName, segmentStart,
	)
	return err
}

// BeginTx opens a warehouse transaction for one snapshot bucket's writes
// (spec.md §4.6 Schedule B: each broadcast's snapshot write is committed in
// a single transaction).
func (s *Store) BeginTx(ctx context.Context) (*warehouse.Tx, error) {
	return s.wh.BeginTransaction(ctx)
}

// mergeQuery builds the same INSERT-lowering warehouse.Merge uses, for
// callers that must issue it inside an open Tx instead of through the
// client directly.
func mergeQuery(target string, cols []string) string {
	placeholders := make([]string, len(cols))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", target, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
}

// UpsertPersonTx is UpsertPerson scoped to an open Tx.
func (s *Store) UpsertPersonTx(ctx context.Context, tx *warehouse.Tx, platform model.Platform, userID, nickname string, isBroadcaster bool) error {
	if userID == "" {
		return nil
	}
	now := time.Now().UTC()
	cols := []string{"platform", "platform_user_id", "nickname", "is_broadcaster", "first_seen_at", "last_seen_at"}
	_, err := tx.Run(ctx, mergeQuery(tablePersons, cols), string(platform), userID, nickname, isBroadcaster, now, now)
	return err
}

// InsertViewingRecordTx is InsertViewingRecord scoped to an open Tx.
func (s *Store) InsertViewingRecordTx(ctx context.Context, tx *warehouse.Tx, viewer model.Viewer, broadcast model.BroadcastKey, snapshotAt time.Time) error {
	query := fmt.Sprintf(
		`INSERT INTO %s (viewer_id, platform, broadcast_id, snapshot_at, is_subscriber, is_fan)
		 SELECT ?, ?, ?, ?, ?, ?
		 WHERE NOT EXISTS (
		   SELECT 1 FROM %s WHERE viewer_id = ? AND broadcast_id = ? AND snapshot_at = ?
		 )`,
		tableViewingRecords, tableViewingRecords,
	)
	_, err := tx.Run(ctx, query,
		viewer.ViewerID, string(broadcast.Platform), broadcast.BroadcastID, snapshotAt, viewer.IsSubscriber, viewer.IsFan,
		viewer.ViewerID, broadcast.BroadcastID, snapshotAt,
	)
	return err
}

// SaveBroadcastStats5MinTx is SaveBroadcastStats5Min scoped to an open Tx.
func (s *Store) SaveBroadcastStats5MinTx(ctx context.Context, tx *warehouse.Tx, broadcast model.BroadcastKey, bucket time.Time, viewerCount, subscriberCount, fanCount, chatCount, uniqueChatters int) error {
	var subscriberRatio, fanRatio float64
	if viewerCount > 0 {
		subscriberRatio = float64(subscriberCount) / float64(viewerCount)
		fanRatio = float64(fanCount) / float64(viewerCount)
	}
	cols := []string{
		"platform", "channel_id", "broadcast_id", "bucket",
		"viewer_count", "subscriber_count", "fan_count",
		"subscriber_ratio", "fan_ratio", "chat_count", "unique_chatters",
	}
	_, err := tx.Run(ctx, mergeQuery(tableBroadcastStats5Min, cols),
		string(broadcast.Platform), broadcast.ChannelID, broadcast.BroadcastID, bucket,
		viewerCount, subscriberCount, fanCount,
		subscriberRatio, fanRatio, chatCount, uniqueChatters,
	)
	return err
}

// InsertEngagementDeltaTx is InsertEngagementDelta scoped to an open Tx.
func (s *Store) InsertEngagementDeltaTx(ctx context.Context, tx *warehouse.Tx, viewerID string, platform model.Platform, channelID, categoryID string, chatDelta, donationDelta int, donationAmountDelta int64) error {
	now := time.Now().UTC()
	cols := []string{"platform_user_id", "channel_id", "platform", "category_id", "chat_count", "donation_count", "donation_amount", "first_seen_at", "last_seen_at"}
	_, err := tx.Run(ctx, mergeQuery(tableViewerEngagement, cols), viewerID, channelID, string(platform), categoryID, chatDelta, donationDelta, donationAmountDelta, now, now)
	return err
}

// InsertEngagementDelta appends one (viewer, channel, platform, category)
// engagement delta row. ViewerEngagement's running totals (spec.md §3) are
// the sum of these deltas over a SummingMergeTree-style table — the same
// insert-and-let-the-engine-aggregate pattern merge() already uses for
// upserts, applied here to an additive rather than replace metric.
func (s *Store) InsertEngagementDelta(ctx context.Context, viewerID string, platform model.Platform, channelID, categoryID string, chatDelta, donationDelta int, donationAmountDelta int64) error {
	now := time.Now().UTC()
	_, err := s.wh.Run(ctx, fmt.Sprintf(
		`INSERT INTO %s (platform_user_id, channel_id, platform, category_id, chat_count, donation_count, donation_amount, first_seen_at, last_seen_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tableViewerEngagement,
	), viewerID, channelID, string(platform), categoryID, chatDelta, donationDelta, donationAmountDelta, now, now)
	return err
}

// LogIngestError implements the supplemental ingest error log
// (SPEC_FULL.md "Ingest error log"): failed event inserts and failed
// Schedule B snapshot transactions are mirrored here in addition to being
// logged. Malformed upstream frames are not recorded here; the decoders
// drop them without reporting.
func (s *Store) LogIngestError(ctx context.Context, platform model.Platform, stage, message string) {
	_, err := s.wh.Run(ctx, fmt.Sprintf(
		`INSERT INTO %s (platform, stage, message, occurred_at) VALUES (?, ?, ?, ?)`,
		tableCollectorErrors,
	), string(platform), stage, message, time.Now().UTC())
	if err != nil {
		s.logger.WithError(err).Warn("failed to write collector_errors row")
	}
}
