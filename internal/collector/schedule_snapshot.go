package collector

import (
	"context"
	"time"

	"github.com/injooinjoo/streaming-agent-sub004/internal/model"
	"github.com/injooinjoo/streaming-agent-sub004/internal/warehouse"
)

// runSnapshotCycle implements Schedule B (spec.md §4.6 step 2 / §5): for
// every live session across both pools, read its viewer map, drain its chat
// counters, and write one viewing_records row per viewer plus one
// broadcast_stats_5min row per broadcast, each broadcast's writes committed
// in a single transaction.
func (o *Orchestrator) runSnapshotCycle(ctx context.Context) {
	bucket := floorBucket(time.Now().UTC(), o.cfg.SnapshotInterval)

	o.snapshotPool(ctx, o.soopPool, bucket)
	o.snapshotPool(ctx, o.chzzkPool, bucket)
}

func (o *Orchestrator) snapshotPool(ctx context.Context, p interface {
	CollectAllViewerLists() []model.ViewerList
	CollectAllChatStats() []model.ChatStats
}, bucket time.Time) {
	viewerLists := p.CollectAllViewerLists()
	chatStats := make(map[model.BroadcastKey]model.ChatStats, len(viewerLists))
	for _, cs := range p.CollectAllChatStats() {
		chatStats[cs.Broadcast] = cs
	}

	for _, vl := range viewerLists {
		o.snapshotBroadcast(ctx, vl, chatStats[vl.Broadcast], bucket)
	}
}

// snapshotBroadcast writes one broadcast's bucket inside one transaction
// (spec.md §4.6: "each snapshot's writes are committed in a single
// transaction"). A failure rolls the whole bucket back and is logged, not
// retried — consistent with the donation path's log-and-continue policy.
func (o *Orchestrator) snapshotBroadcast(ctx context.Context, vl model.ViewerList, stats model.ChatStats, bucket time.Time) {
	txCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	tx, err := o.store.BeginTx(txCtx)
	if err != nil {
		o.logger.WithField("broadcast", vl.Broadcast).WithError(err).Error("snapshot: begin transaction failed")
		o.store.LogIngestError(txCtx, vl.Broadcast.Platform, "snapshot_begin_tx", err.Error())
		return
	}

	if snapErr := o.writeSnapshotTx(txCtx, tx, vl, stats, bucket); snapErr != nil {
		_ = tx.Rollback()
		o.logger.WithField("broadcast", vl.Broadcast).WithError(snapErr).Error("snapshot: write failed, bucket rolled back")
		o.store.LogIngestError(txCtx, vl.Broadcast.Platform, "snapshot_write", snapErr.Error())
		return
	}

	if err := tx.Commit(); err != nil {
		o.logger.WithField("broadcast", vl.Broadcast).WithError(err).Error("snapshot: commit failed")
		o.store.LogIngestError(txCtx, vl.Broadcast.Platform, "snapshot_commit", err.Error())
	}
}

func (o *Orchestrator) writeSnapshotTx(ctx context.Context, tx *warehouse.Tx, vl model.ViewerList, stats model.ChatStats, bucket time.Time) error {
	subscriberCount, fanCount := 0, 0
	for _, v := range vl.Viewers {
		if v.IsSubscriber {
			subscriberCount++
		}
		if v.IsFan {
			fanCount++
		}
		if err := o.store.UpsertPersonTx(ctx, tx, vl.Broadcast.Platform, v.ViewerID, v.Nickname, false); err != nil {
			return err
		}
		if err := o.store.InsertViewingRecordTx(ctx, tx, v, vl.Broadcast, bucket); err != nil {
			return err
		}
	}

	return o.store.SaveBroadcastStats5MinTx(ctx, tx, vl.Broadcast, bucket,
		len(vl.Viewers), subscriberCount, fanCount, stats.MessageCount, stats.UniqueChatters,
	)
}
