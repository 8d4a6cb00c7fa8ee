package collector

import (
	"context"
	"time"

	"github.com/injooinjoo/streaming-agent-sub004/internal/model"
	"github.com/injooinjoo/streaming-agent-sub004/internal/persistence"
	"github.com/injooinjoo/streaming-agent-sub004/internal/pool"
)

// runPollCycle implements Schedule A (spec.md §4.6): parallel per-platform
// listLiveBroadcasts under a shared 60s deadline, upserts, change
// detection, ended-broadcast detection, and selector → pool manager.
func (o *Orchestrator) runPollCycle(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, apiPollDeadline)
	defer cancel()

	type result struct {
		platform   model.Platform
		broadcasts []model.RawBroadcast
		err        error
	}
	resultsCh := make(chan result, 2)

	go func() {
		broadcasts, err := o.soopAPI.ListLiveBroadcasts(ctx)
		resultsCh <- result{model.PlatformSOOP, broadcasts, err}
	}()
	go func() {
		broadcasts, err := o.chzzkAPI.ListLiveBroadcasts(ctx)
		resultsCh <- result{model.PlatformCHZZK, broadcasts, err}
	}()

	bucket := floorBucket(time.Now().UTC(), o.cfg.SnapshotInterval)

	for i := 0; i < 2; i++ {
		r := <-resultsCh
		outcome := "ok"
		if r.err != nil {
			o.logger.WithField("platform", r.platform).WithError(r.err).Warn("poll cycle failed, platform skipped this round")
			outcome = "error"
		}
		if o.metrics != nil {
			o.metrics.PollCycles.WithLabelValues(string(r.platform), outcome).Inc()
		}
		if r.err != nil {
			continue
		}
		o.processPlatformPoll(ctx, r.platform, r.broadcasts, bucket)
	}
}

func (o *Orchestrator) processPlatformPoll(ctx context.Context, platform model.Platform, broadcasts []model.RawBroadcast, bucket time.Time) {
	currentKeys := make(map[model.BroadcastKey]bool, len(broadcasts))

	for _, raw := range broadcasts {
		key := model.BroadcastKey{Platform: platform, ChannelID: raw.ChannelID, BroadcastID: raw.BroadcastID}
		currentKeys[key] = true
		o.upsertObservedBroadcast(ctx, key, raw, bucket)
	}

	o.detectEndedBroadcasts(ctx, platform, currentKeys)

	o.mu.Lock()
	o.liveSet[platform] = currentKeys
	o.mu.Unlock()

	targets := o.buildTargets(ctx, platform, broadcasts)
	if o.metrics != nil {
		o.metrics.SelectorSize.WithLabelValues(string(platform)).Set(float64(len(targets)))
	}

	o.poolFor(platform).UpdateTargets(ctx, targets)
}

func (o *Orchestrator) upsertObservedBroadcast(ctx context.Context, key model.BroadcastKey, raw model.RawBroadcast, bucket time.Time) {
	if err := o.store.UpsertPerson(ctx, key.Platform, raw.BroadcasterID, raw.BroadcasterNick, true); err != nil {
		o.logger.WithError(err).Warn("upsert broadcaster person failed")
	}

	o.mu.Lock()
	m, known := o.meta[key]
	if !known {
		m = &broadcastMeta{StartedAt: raw.StartedAt}
		o.meta[key] = m
	}

	titleChanged := known && m.Title != raw.Title
	categoryChanged := known && m.CategoryID != raw.CategoryID
	oldTitle, oldCategoryID := m.Title, m.CategoryID

	if raw.ViewerCount > m.PeakViewers {
		m.PeakViewers = raw.ViewerCount
	}
	m.BroadcasterUserID = raw.BroadcasterID
	m.Title = raw.Title
	m.CategoryID = raw.CategoryID
	m.CategoryName = raw.CategoryName
	peak := m.PeakViewers
	startedAt := m.StartedAt
	o.mu.Unlock()

	state := persistence.BroadcastState{
		Broadcast:         key,
		BroadcasterUserID: raw.BroadcasterID,
		Title:             raw.Title,
		CategoryID:        raw.CategoryID,
		CategoryName:      raw.CategoryName,
		Tags:              raw.Tags,
		StartedAt:         startedAt,
		CurrentViewers:    raw.ViewerCount,
		PeakViewers:       peak,
		IsLive:            true,
	}
	if err := o.store.UpsertBroadcast(ctx, state); err != nil {
		o.logger.WithError(err).Warn("upsert broadcast failed")
	}
	if err := o.store.SaveViewerSnapshot(ctx, key, bucket, raw.ViewerCount, 0); err != nil {
		o.logger.WithError(err).Warn("save viewer snapshot failed")
	}

	switch {
	case known && (titleChanged || categoryChanged):
		now := time.Now().UTC()
		if titleChanged {
			if err := o.store.RecordBroadcastChange(ctx, persistence.FieldChange{Broadcast: key, Field: "title", OldValue: oldTitle, NewValue: raw.Title}); err != nil {
				o.logger.WithError(err).Warn("record title change failed")
			}
		}
		if categoryChanged {
			if err := o.store.RecordBroadcastChange(ctx, persistence.FieldChange{Broadcast: key, Field: "category", OldValue: oldCategoryID, NewValue: raw.CategoryID}); err != nil {
				o.logger.WithError(err).Warn("record category change failed")
			}
			if err := o.store.UpsertCategory(ctx, key.Platform, raw.CategoryID, raw.CategoryName); err != nil {
				o.logger.WithError(err).Warn("upsert category failed")
			}
		}
		if err := o.store.CloseSegment(ctx, key, now); err != nil {
			o.logger.WithError(err).Warn("close segment failed")
		}
		if err := o.store.OpenSegment(ctx, key, raw.CategoryID, raw.CategoryName, now); err != nil {
			o.logger.WithError(err).Warn("open segment failed")
		}
	case !known:
		if err := o.store.OpenSegment(ctx, key, raw.CategoryID, raw.CategoryName, startedAt); err != nil {
			o.logger.WithError(err).Warn("open initial segment failed")
		}
	}
}

// detectEndedBroadcasts implements spec.md §4.6 step 3 / P4: any key in the
// previous poll's live set absent from the current one is marked ended.
func (o *Orchestrator) detectEndedBroadcasts(ctx context.Context, platform model.Platform, currentKeys map[model.BroadcastKey]bool) {
	o.mu.Lock()
	previous := o.liveSet[platform]
	var ended []model.BroadcastKey
	for key := range previous {
		if !currentKeys[key] {
			ended = append(ended, key)
		}
	}
	o.mu.Unlock()

	now := time.Now().UTC()
	for _, key := range ended {
		o.mu.Lock()
		m := o.meta[key]
		o.mu.Unlock()
		if m == nil {
			continue
		}
		state := persistence.BroadcastState{
			Broadcast:         key,
			BroadcasterUserID: m.BroadcasterUserID,
			Title:             m.Title,
			CategoryID:        m.CategoryID,
			CategoryName:      m.CategoryName,
			StartedAt:         m.StartedAt,
			PeakViewers:       m.PeakViewers,
			EndedAt:           &now,
		}
		if err := o.store.MarkBroadcastEnded(ctx, state); err != nil {
			o.logger.WithError(err).Warn("mark broadcast ended failed")
		}
		if err := o.store.CloseSegment(ctx, key, now); err != nil {
			o.logger.WithError(err).Warn("close segment on broadcast end failed")
		}
	}
}

// buildTargets applies the selector (spec.md §4.6 step 4, P6) and resolves
// chat coordinates for the chosen broadcasts.
func (o *Orchestrator) buildTargets(ctx context.Context, platform model.Platform, broadcasts []model.RawBroadcast) []pool.Target {
	selected := selectTargets(broadcasts, o.cfg.MinViewersThreshold, o.cfg.PoolCapPerPlatform())

	coordsClient := o.coordsFor(platform)
	targets := make([]pool.Target, 0, len(selected))
	for _, raw := range selected {
		coords, err := coordsClient.FetchChatCoordinates(ctx, raw.ChannelID)
		if err != nil {
			o.logger.WithField("channel_id", raw.ChannelID).WithError(err).Debug("fetch chat coordinates failed")
			continue
		}
		targets = append(targets, pool.Target{
			Broadcast: model.BroadcastKey{Platform: platform, ChannelID: raw.ChannelID, BroadcastID: raw.BroadcastID},
			Coords:    coords,
		})
	}
	return targets
}

func (o *Orchestrator) poolFor(platform model.Platform) *pool.Manager {
	if platform == model.PlatformSOOP {
		return o.soopPool
	}
	return o.chzzkPool
}

func (o *Orchestrator) coordsFor(platform model.Platform) coordFetcher {
	if platform == model.PlatformSOOP {
		return o.soopCoords
	}
	return o.chzzkCoords
}
