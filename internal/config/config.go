package config

import "time"

// Config is the collector's full runtime configuration, resolved once at
// startup from the environment. Nothing in this process re-reads the
// environment after Load returns; there is no hot-reload path.
type Config struct {
	// Connection pool / selector tuning (spec.md §4.6).
	MaxWebSocketConnections int
	MinViewersThreshold     int
	SnapshotInterval        time.Duration
	APIPollInterval         time.Duration

	// Warehouse connection. Account/Warehouse/Role mirror the credential
	// set named in spec.md §6; only Database/Username/Password/Addr map
	// onto the ClickHouse driver actually wired in (see SPEC_FULL.md,
	// DOMAIN STACK).
	Warehouse WarehouseConfig

	// HTTP surface for /health and /metrics (SPEC_FULL.md §6 ambient process surface).
	HealthPort string

	ServiceName string
}

// WarehouseConfig holds the analytics warehouse connection parameters.
type WarehouseConfig struct {
	Addr     string
	Account  string
	Warehouse string
	Database string
	Schema   string
	Role     string
	Username string
	Password string
}

// Load resolves the full Config from the process environment. Required
// warehouse credentials are fatal if missing (spec.md §7, Configuration/auth
// errors are fatal at startup); the rest fall back to documented defaults.
func Load() Config {
	return Config{
		MaxWebSocketConnections: GetEnvInt("ANALYTICS_MAX_WS", 100),
		MinViewersThreshold:     GetEnvInt("ANALYTICS_MIN_VIEWERS", 100),
		SnapshotInterval:        time.Duration(GetEnvInt("ANALYTICS_SNAPSHOT_INTERVAL", 300)) * time.Second,
		APIPollInterval:         time.Duration(GetEnvInt("ANALYTICS_POLL_INTERVAL", 300)) * time.Second,
		Warehouse: WarehouseConfig{
			Addr:      RequireEnv("WAREHOUSE_ADDR"),
			Account:   GetEnv("WAREHOUSE_ACCOUNT", ""),
			Warehouse: GetEnv("WAREHOUSE_WAREHOUSE", ""),
			Database:  RequireEnv("WAREHOUSE_DATABASE"),
			Schema:    GetEnv("WAREHOUSE_SCHEMA", ""),
			Role:      GetEnv("WAREHOUSE_ROLE", ""),
			Username:  RequireEnv("WAREHOUSE_USERNAME"),
			Password:  RequireEnv("WAREHOUSE_PASSWORD"),
		},
		HealthPort:  GetEnv("PORT", "8090"),
		ServiceName: "analytics-collector",
	}
}

// PoolCapPerPlatform returns the per-platform connection cap, split evenly
// across the two platforms (spec.md §4.5).
func (c Config) PoolCapPerPlatform() int {
	return c.MaxWebSocketConnections / 2
}
