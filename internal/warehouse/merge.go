package warehouse

import (
	"context"
	"fmt"
	"strings"
)

// MergeSpec describes a declarative upsert as a target table plus
// positional insert columns and values. It has no using-select,
// on-condition or update-set parts: the lowering below is a plain INSERT,
// so only the inserted row is described. The non-transactional upserts of
// the persistence layer (Person, Broadcast, Category, viewer snapshots) go
// through Merge; the Schedule B writes inside a Tx build the same INSERT
// with persistence.mergeQuery instead. Merge runs on the concrete *Client;
// there is no executor interface for a test double to replace.
//
// ClickHouse's MergeTree family dedups via ReplacingMergeTree/last-write
// semantics rather than an ANSI MERGE statement, so this builder lowers to a
// plain INSERT against a ReplacingMergeTree-keyed table: the newest row for
// a given ordering key wins on background merge, which gives "on match
// update, on miss insert" semantics resolved asynchronously instead of
// synchronously.
type MergeSpec struct {
	Target      string
	InsertCols  []string
	InsertVals  []interface{}
}

// Merge executes one upsert. Values are positional and must line up with
// InsertCols.
func (c *Client) Merge(ctx context.Context, spec MergeSpec) error {
	if len(spec.InsertCols) != len(spec.InsertVals) {
		return fmt.Errorf("warehouse: merge into %s: %d columns but %d values", spec.Target, len(spec.InsertCols), len(spec.InsertVals))
	}
	placeholders := make([]string, len(spec.InsertVals))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		spec.Target,
		strings.Join(spec.InsertCols, ", "),
		strings.Join(placeholders, ", "),
	)
	_, err := c.Run(ctx, query, spec.InsertVals...)
	return err
}
