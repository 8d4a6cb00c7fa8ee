// Package warehouse is the only component that talks to the analytics
// warehouse (spec.md §4.1). It wraps a ClickHouse connection pair — a
// database/sql handle for get/all/run, and a native driver.Conn for batch
// inserts — behind the five primitives the rest of the collector is allowed
// to use: get, all, run, merge, batchInsert.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	chdriver "github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/injooinjoo/streaming-agent-sub004/internal/config"
	"github.com/injooinjoo/streaming-agent-sub004/internal/logging"
)

const (
	maxReconnectAttempts = 5
	reconnectDelay       = 5 * time.Second
	batchChunkSize       = 100
)

// Row is one result row, keyed by lower-cased column name (spec.md §4.1:
// "Column names in returned rows are normalized to lower-case").
type Row map[string]interface{}

// RunResult is the outcome of a non-query statement.
type RunResult struct {
	Changes int64
	LastID  *int64
}

// Client is the shared, concurrent-safe warehouse handle. One instance is
// created at startup and passed to every component that needs to persist
// data (spec.md §3, Ownership model: "The warehouse client is shared
// (concurrent-safe)").
type Client struct {
	mu     sync.Mutex // serializes reconnect attempts; statement execution is safe for concurrent use via the pooled *sql.DB / native conn
	cfg    config.WarehouseConfig
	logger logging.Logger

	sqlConn    *sql.DB
	nativeConn chdriver.Conn
}

// Connect opens both the SQL and native connections and verifies
// reachability (spec.md §4.1 connect()).
func Connect(cfg config.WarehouseConfig, logger logging.Logger) (*Client, error) {
	c := &Client{cfg: cfg, logger: logger}
	if err := c.dial(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) dial() error {
	opts := &clickhouse.Options{
		Addr: []string{c.cfg.Addr},
		Auth: clickhouse.Auth{
			Database: c.cfg.Database,
			Username: c.cfg.Username,
			Password: c.cfg.Password,
		},
	}

	sqlConn := clickhouse.OpenDB(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sqlConn.PingContext(ctx); err != nil {
		return fmt.Errorf("warehouse sql connect: %w", err)
	}

	native, err := clickhouse.Open(opts)
	if err != nil {
		_ = sqlConn.Close()
		return fmt.Errorf("warehouse native connect: %w", err)
	}
	if err := native.Ping(ctx); err != nil {
		_ = sqlConn.Close()
		return fmt.Errorf("warehouse native ping: %w", err)
	}

	c.sqlConn = sqlConn
	c.nativeConn = native

	c.logger.WithFields(logging.Fields{
		"addr":     c.cfg.Addr,
		"database": c.cfg.Database,
	}).Info("connected to warehouse")
	return nil
}

// Disconnect releases both connections. Safe to call more than once.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []string
	if c.sqlConn != nil {
		if err := c.sqlConn.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		c.sqlConn = nil
	}
	if c.nativeConn != nil {
		if err := c.nativeConn.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		c.nativeConn = nil
	}
	if len(errs) > 0 {
		return fmt.Errorf("warehouse disconnect: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ensureConnection retries a reconnect, bounded by maxReconnectAttempts with
// a fixed delay between tries (spec.md §4.1). It is only invoked after a
// transient failure.
func (c *Client) ensureConnection() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sqlConn != nil {
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := c.sqlConn.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
	}

	if c.sqlConn != nil {
		_ = c.sqlConn.Close()
	}
	if c.nativeConn != nil {
		_ = c.nativeConn.Close()
	}

	var lastErr error
	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		if err := c.dial(); err == nil {
			return nil
		} else {
			lastErr = err
			c.logger.WithError(err).WithField("attempt", attempt).Warn("warehouse reconnect failed")
		}
		if attempt < maxReconnectAttempts {
			time.Sleep(reconnectDelay)
		}
	}
	c.logger.WithError(lastErr).Error("warehouse unavailable after exhausting reconnect attempts")
	return ErrUnavailable
}

// withRetry executes op once; on a transient WarehouseError it reconnects
// and retries exactly once (spec.md §4.1: "transient errors are retried
// once after reconnect inside ensureConnection").
func (c *Client) withRetry(op func() error) error {
	err := op()
	if err == nil {
		return nil
	}
	we := classify(err)
	if we.Kind != KindTransient {
		return we
	}
	if reErr := c.ensureConnection(); reErr != nil {
		return reErr
	}
	if err := op(); err != nil {
		return classify(err)
	}
	return nil
}

// Get runs a parameterized query and returns the first row, or nil if there
// were no results.
func (c *Client) Get(ctx context.Context, query string, binds ...interface{}) (Row, error) {
	rows, err := c.All(ctx, query, binds...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// All runs a parameterized query and returns every row, with column names
// normalized to lower-case.
func (c *Client) All(ctx context.Context, query string, binds ...interface{}) ([]Row, error) {
	var out []Row
	err := c.withRetry(func() error {
		out = nil
		rows, err := c.sqlConn.QueryContext(ctx, query, binds...)
		if err != nil {
			return err
		}
		defer rows.Close()

		cols, err := rows.Columns()
		if err != nil {
			return err
		}
		lowered := make([]string, len(cols))
		for i, col := range cols {
			lowered[i] = strings.ToLower(col)
		}

		for rows.Next() {
			raw := make([]interface{}, len(cols))
			ptrs := make([]interface{}, len(cols))
			for i := range raw {
				ptrs[i] = &raw[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return err
			}
			row := make(Row, len(cols))
			for i, name := range lowered {
				row[name] = raw[i]
			}
			out = append(out, row)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Run executes a statement with no expected result rows (INSERT/UPDATE/DDL).
func (c *Client) Run(ctx context.Context, query string, binds ...interface{}) (RunResult, error) {
	var result RunResult
	err := c.withRetry(func() error {
		res, err := c.sqlConn.ExecContext(ctx, query, binds...)
		if err != nil {
			return err
		}
		if changes, err := res.RowsAffected(); err == nil {
			result.Changes = changes
		}
		if lastID, err := res.LastInsertId(); err == nil && lastID != 0 {
			result.LastID = &lastID
		}
		return nil
	})
	if err != nil {
		return RunResult{}, err
	}
	return result, nil
}

// IsHealthy reports whether the warehouse answers SELECT 1.
func (c *Client) IsHealthy(ctx context.Context) bool {
	if c.sqlConn == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var one int
	row := c.sqlConn.QueryRowContext(ctx, "SELECT 1")
	return row.Scan(&one) == nil && one == 1
}

// NativeConn exposes the native driver connection for the batch writer.
func (c *Client) NativeConn() chdriver.Conn {
	return c.nativeConn
}
