// Package persistence implements the SQL contracts of spec.md §4.7: the
// logical upsert/insert operations the orchestrator issues, each a thin
// call into the warehouse client's merge/run primitives (spec.md §4.7:
// "bit-exact at the column level").
package persistence

const (
	tablePersons            = "persons"
	tableBroadcasts          = "broadcasts"
	tableBroadcastSegments   = "broadcast_segments"
	tableBroadcastChanges    = "broadcast_changes"
	tableEvents              = "events"
	tableViewingRecords      = "viewing_records"
	tableViewerSnapshots     = "viewer_snapshots"
	tableBroadcastStats5Min  = "broadcast_stats_5min"
	tableViewerEngagement    = "viewer_engagement"
	tableCategories          = "categories"
	tableCollectorErrors     = "collector_errors"
)
