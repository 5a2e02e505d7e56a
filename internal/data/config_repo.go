package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
)

// Queue default keys persisted in the config table. Values are resolved once
// at enqueue time and fixed per job.
const (
	ConfigKeyMaxRetries     = "max_retries"
	ConfigKeyBackoffBase    = "backoff_base"
	ConfigKeyDefaultTimeout = "default_timeout_seconds"
)

// ErrConfigKeyNotFound is returned when a config key is not present.
var ErrConfigKeyNotFound = errors.New("config key not found")

// QueueDefaults are the store-resolved fallbacks for enqueue requests that
// omit retry limits or a timeout.
type QueueDefaults struct {
	MaxRetries     int
	BackoffBase    int
	TimeoutSeconds int
}

// ConfigRepo provides access to persisted queue configuration.
type ConfigRepo struct {
	DB     *sql.DB
	logger *slog.Logger
}

// NewConfigRepo creates a new ConfigRepo.
func NewConfigRepo(db *sql.DB, logger *slog.Logger) *ConfigRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConfigRepo{DB: db, logger: logger.With("component", "config_repo")}
}

// Get returns the value for a config key.
func (r *ConfigRepo) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.DB.QueryRowContext(ctx, `SELECT value FROM config WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrConfigKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get config %s: %w", key, err)
	}
	return value, nil
}

// Set upserts a config key.
func (r *ConfigRepo) Set(ctx context.Context, key, value string) error {
	if _, err := r.DB.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, key, value); err != nil {
		return fmt.Errorf("set config %s: %w", key, err)
	}
	return nil
}

// All returns every config key/value pair.
func (r *ConfigRepo) All(ctx context.Context) (map[string]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT key, value FROM config ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list config: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan config: %w", err)
		}
		out[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list config: %w", err)
	}
	return out, nil
}

// Defaults resolves the queue defaults, falling back to the built-in values
// for keys that are missing or unparsable.
func (r *ConfigRepo) Defaults(ctx context.Context) (QueueDefaults, error) {
	d := QueueDefaults{MaxRetries: 3, BackoffBase: 2, TimeoutSeconds: 300}

	all, err := r.All(ctx)
	if err != nil {
		return d, err
	}

	d.MaxRetries = r.intValue(ctx, all, ConfigKeyMaxRetries, d.MaxRetries)
	d.BackoffBase = r.intValue(ctx, all, ConfigKeyBackoffBase, d.BackoffBase)
	d.TimeoutSeconds = r.intValue(ctx, all, ConfigKeyDefaultTimeout, d.TimeoutSeconds)
	return d, nil
}

func (r *ConfigRepo) intValue(ctx context.Context, all map[string]string, key string, fallback int) int {
	raw, ok := all[key]
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		r.logger.WarnContext(ctx, "ignoring unparsable config value", "key", key, "value", raw)
		return fallback
	}
	return n
}
