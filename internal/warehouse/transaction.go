package warehouse

import (
	"context"
	"database/sql"
)

// Tx is a scoped transaction handle. The orchestrator wraps each snapshot
// bucket's writes for one broadcast in a Tx (spec.md §4.6 Schedule B: "Each
// snapshot's writes are wrapped in a transaction per broadcast").
type Tx struct {
	tx *sql.Tx
}

// BeginTransaction starts a new transaction scoped to ctx.
func (c *Client) BeginTransaction(ctx context.Context) (*Tx, error) {
	tx, err := c.sqlConn.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(err)
	}
	return &Tx{tx: tx}, nil
}

// Run executes a statement within the transaction.
func (t *Tx) Run(ctx context.Context, query string, binds ...interface{}) (RunResult, error) {
	res, err := t.tx.ExecContext(ctx, query, binds...)
	if err != nil {
		return RunResult{}, classify(err)
	}
	var result RunResult
	if changes, err := res.RowsAffected(); err == nil {
		result.Changes = changes
	}
	return result, nil
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return classify(err)
	}
	return nil
}

// Rollback aborts the transaction. Calling it after a successful Commit is
// a no-op: the sql.ErrTxDone that database/sql reports is swallowed and nil
// is returned.
func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return classify(err)
	}
	return nil
}
