package warehouse

import (
	"context"
	"fmt"

	"github.com/injooinjoo/streaming-agent-sub004/internal/logging"
)

// BatchInsert writes rows through the native ClickHouse batch API in
// sub-batches of batchChunkSize. A row that fails to append is logged and
// skipped; the rest of its sub-batch still sends (spec.md §4.1: "if an
// individual row fails, it is logged and skipped (batch continues)").
func (c *Client) BatchInsert(ctx context.Context, table string, cols []string, values [][]interface{}) error {
	if len(values) == 0 {
		return nil
	}

	insertQuery := buildInsertPrefix(table, cols)

	for start := 0; start < len(values); start += batchChunkSize {
		end := start + batchChunkSize
		if end > len(values) {
			end = len(values)
		}
		chunk := values[start:end]

		err := c.withRetry(func() error {
			batch, err := c.nativeConn.PrepareBatch(ctx, insertQuery)
			if err != nil {
				return err
			}
			for i, row := range chunk {
				if appendErr := batch.Append(row...); appendErr != nil {
					c.logger.WithError(appendErr).WithFields(logging.Fields{
						"table": table,
						"row":   start + i,
					}).Warn("batch insert: dropping row that failed to append")
					continue
				}
			}
			return batch.Send()
		})
		if err != nil {
			return fmt.Errorf("warehouse batch insert into %s: %w", table, err)
		}
	}
	return nil
}

func buildInsertPrefix(table string, cols []string) string {
	colList := ""
	for i, col := range cols {
		if i > 0 {
			colList += ", "
		}
		colList += col
	}
	return fmt.Sprintf("INSERT INTO %s (%s)", table, colList)
}
