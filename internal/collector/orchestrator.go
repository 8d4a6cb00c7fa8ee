// Package collector implements the Collector Orchestrator (spec.md §4.6):
// it owns both pool managers and the warehouse-backed persistence layer,
// and drives the two periodic schedules plus the event-driven donation
// path.
package collector

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/injooinjoo/streaming-agent-sub004/internal/config"
	"github.com/injooinjoo/streaming-agent-sub004/internal/logging"
	"github.com/injooinjoo/streaming-agent-sub004/internal/metrics"
	"github.com/injooinjoo/streaming-agent-sub004/internal/model"
	"github.com/injooinjoo/streaming-agent-sub004/internal/persistence"
	"github.com/injooinjoo/streaming-agent-sub004/internal/pool"
	"github.com/injooinjoo/streaming-agent-sub004/internal/session"
)

const (
	apiPollDeadline   = 60 * time.Second
	sessionDialBudget = 10 * time.Second
	shutdownBound     = 30 * time.Second
	snapshotDelay     = 30 * time.Second
)

// broadcastLister is satisfied by both platform clients; it lets the
// orchestrator treat both platforms uniformly in Schedule A.
type broadcastLister interface {
	ListLiveBroadcasts(ctx context.Context) ([]model.RawBroadcast, error)
}

// coordFetcher is satisfied by both platform clients' chat-coordinate call.
type coordFetcher interface {
	FetchChatCoordinates(ctx context.Context, channelID string) (model.ChatCoordinates, error)
}

// broadcastMeta is the orchestrator's in-memory record of one broadcast's
// mutable fields, used to detect title/category changes and to carry the
// monotonic peak forward into every upsert (spec.md §4.6 step 2,
// §9 "broadcastMetaCache").
type broadcastMeta struct {
	BroadcasterUserID string
	Title             string
	CategoryID        string
	CategoryName      string
	StartedAt         time.Time
	PeakViewers       int
}

// Orchestrator owns the two pool managers, the warehouse-backed store, and
// the two periodic schedules.
type Orchestrator struct {
	cfg     config.Config
	logger  logging.Logger
	store   *persistence.Store
	metrics *metrics.Collector

	soopAPI  broadcastLister
	chzzkAPI broadcastLister
	soopCoords  coordFetcher
	chzzkCoords coordFetcher

	soopPool  *pool.Manager
	chzzkPool *pool.Manager

	mu      sync.Mutex
	meta    map[model.BroadcastKey]*broadcastMeta
	liveSet map[model.Platform]map[model.BroadcastKey]bool

	wg sync.WaitGroup
}

// Clients bundles the two platform API clients the orchestrator polls.
type Clients struct {
	SOOP  interface {
		broadcastLister
		coordFetcher
	}
	CHZZK interface {
		broadcastLister
		coordFetcher
	}
}

// New builds an Orchestrator and its two pool managers.
func New(cfg config.Config, logger logging.Logger, store *persistence.Store, collector *metrics.Collector, clients Clients) *Orchestrator {
	o := &Orchestrator{
		cfg:         cfg,
		logger:      logger,
		store:       store,
		metrics:     collector,
		soopAPI:     clients.SOOP,
		chzzkAPI:    clients.CHZZK,
		soopCoords:  clients.SOOP,
		chzzkCoords: clients.CHZZK,
		meta:        make(map[model.BroadcastKey]*broadcastMeta),
		liveSet: map[model.Platform]map[model.BroadcastKey]bool{
			model.PlatformSOOP:  make(map[model.BroadcastKey]bool),
			model.PlatformCHZZK: make(map[model.BroadcastKey]bool),
		},
	}

	capacity := cfg.PoolCapPerPlatform()
	o.soopPool = pool.NewManager(model.PlatformSOOP, capacity, o.dialSOOP, logger, collector)
	o.chzzkPool = pool.NewManager(model.PlatformCHZZK, capacity, o.dialCHZZK, logger, collector)

	return o
}

func (o *Orchestrator) dialSOOP(ctx context.Context, t pool.Target) (*session.Session, error) {
	dialCtx, cancel := context.WithTimeout(ctx, sessionDialBudget)
	defer cancel()
	sess := session.NewSOOPSession(t.Broadcast, t.Coords, o.logger)
	if err := sess.Connect(dialCtx); err != nil {
		return nil, err
	}
	o.consumeEvents(sess)
	return sess, nil
}

func (o *Orchestrator) dialCHZZK(ctx context.Context, t pool.Target) (*session.Session, error) {
	dialCtx, cancel := context.WithTimeout(ctx, sessionDialBudget)
	defer cancel()
	sess := session.NewCHZZKSession(t.Broadcast, t.Coords, o.logger)
	if err := sess.Connect(dialCtx); err != nil {
		return nil, err
	}
	o.consumeEvents(sess)
	return sess, nil
}

// consumeEvents fans in one session's chat and donation channels for the
// life of the session (spec.md §4.6 donation path: event-driven, not
// scheduled).
func (o *Orchestrator) consumeEvents(sess *session.Session) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		for {
			select {
			case ev, ok := <-sess.Events:
				if !ok {
					return
				}
				o.handleEvent(ev)
			case ev, ok := <-sess.Donations:
				if !ok {
					return
				}
				o.handleEvent(ev)
			case <-sess.Closed:
				o.drainRemaining(sess)
				return
			}
		}
	}()
}

// drainRemaining flushes any events still buffered when a session closes,
// since sess.Closed fires once and select is not biased toward it.
func (o *Orchestrator) drainRemaining(sess *session.Session) {
	for {
		select {
		case ev := <-sess.Events:
			o.handleEvent(ev)
		case ev := <-sess.Donations:
			o.handleEvent(ev)
		default:
			return
		}
	}
}

// handleEvent persists one decoded event. Failures log and continue; no
// retry (spec.md §4.6 donation path).
func (o *Orchestrator) handleEvent(ev model.Event) {
	if ev.EventTimestamp.IsZero() {
		ev.EventTimestamp = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := o.store.InsertEvent(ctx, ev); err != nil {
		o.logger.WithError(err).WithField("event_type", ev.EventType).Error("failed to persist event")
		o.store.LogIngestError(ctx, ev.Platform, "insert_event", err.Error())
		return
	}
	if o.metrics != nil {
		o.metrics.EventsProcessed.WithLabelValues(string(ev.EventType)).Inc()
	}

	if ev.EventType == model.EventChat || ev.EventType == model.EventDonation {
		o.recordEngagement(ctx, ev)
	}
}

// recordEngagement appends a ViewerEngagement delta row for chat/donation
// activity (SPEC_FULL.md's ViewerEngagement running totals). Failures are
// logged only; engagement is a supplemental aggregate, not part of the
// append-only event record's own durability guarantee.
func (o *Orchestrator) recordEngagement(ctx context.Context, ev model.Event) {
	o.mu.Lock()
	m := o.meta[ev.Broadcast]
	var categoryID string
	if m != nil {
		categoryID = m.CategoryID
	}
	o.mu.Unlock()

	chatDelta, donationDelta := 0, 0
	switch ev.EventType {
	case model.EventChat:
		chatDelta = 1
	case model.EventDonation:
		donationDelta = 1
	}
	if err := o.store.InsertEngagementDelta(ctx, ev.Actor.PlatformUserID, ev.Platform, ev.Broadcast.ChannelID, categoryID, chatDelta, donationDelta, ev.Amount); err != nil {
		o.logger.WithError(err).Debug("record engagement delta failed")
	}
}

// Run starts both schedules and blocks until ctx is cancelled, then shuts
// down within shutdownBound.
func (o *Orchestrator) Run(ctx context.Context) error {
	pollTicker := time.NewTicker(o.cfg.APIPollInterval)
	defer pollTicker.Stop()
	snapshotTicker := time.NewTicker(o.cfg.SnapshotInterval)
	defer snapshotTicker.Stop()

	o.runPollCycle(ctx)

	snapshotStart := time.NewTimer(snapshotDelay)
	defer snapshotStart.Stop()

	for {
		select {
		case <-ctx.Done():
			return o.shutdown()
		case <-pollTicker.C:
			o.runPollCycle(ctx)
		case <-snapshotStart.C:
			o.runSnapshotCycle(ctx)
		case <-snapshotTicker.C:
			o.runSnapshotCycle(ctx)
		}
	}
}

// PoolSizes reports the current connection count for both platform pools,
// used by the operational health check (spec.md §6).
func (o *Orchestrator) PoolSizes() (soop, chzzk int) {
	return o.soopPool.Size(), o.chzzkPool.Size()
}

func (o *Orchestrator) shutdown() error {
	done := make(chan struct{})
	go func() {
		o.soopPool.DisconnectAll()
		o.chzzkPool.DisconnectAll()
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(shutdownBound):
		o.logger.Warn("shutdown bound exceeded, abandoning in-flight work")
	}
	return nil
}

// floorBucket quantizes t to the interval boundary (spec.md P1).
func floorBucket(t time.Time, interval time.Duration) time.Time {
	return t.Truncate(interval)
}

// selectTargets filters to viewers >= minViewersThreshold, sorts
// descending, and takes at most capacity broadcasts, where capacity is the
// platform's pool capacity (spec.md §4.6 step 4, P6).
func selectTargets(broadcasts []model.RawBroadcast, minViewers, capacity int) []model.RawBroadcast {
	var eligible []model.RawBroadcast
	for _, b := range broadcasts {
		if b.ViewerCount >= minViewers {
			eligible = append(eligible, b)
		}
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].ViewerCount > eligible[j].ViewerCount
	})
	if len(eligible) > capacity {
		eligible = eligible[:capacity]
	}
	return eligible
}
