package settings

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS entity_settings (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL DEFAULT '',
	poll_url_a        TEXT NOT NULL DEFAULT '',
	poll_url_b        TEXT NOT NULL DEFAULT '',
	sidecar_url       TEXT NOT NULL DEFAULT '',
	notify_channel_id TEXT NOT NULL DEFAULT '',
	alert_role_ids    TEXT[] NOT NULL DEFAULT '{}',
	dm_role_ids       TEXT[] NOT NULL DEFAULT '{}',
	panel_message_id  TEXT NOT NULL DEFAULT '',
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const selectColumns = `id, name, poll_url_a, poll_url_b, sidecar_url, notify_channel_id,
	alert_role_ids, dm_role_ids, panel_message_id`

// upsertSQL keeps a stored panel message id when the config has none.
const upsertSQL = `
INSERT INTO entity_settings (id, name, poll_url_a, poll_url_b, sidecar_url,
	notify_channel_id, alert_role_ids, dm_role_ids, panel_message_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	poll_url_a = EXCLUDED.poll_url_a,
	poll_url_b = EXCLUDED.poll_url_b,
	sidecar_url = EXCLUDED.sidecar_url,
	notify_channel_id = EXCLUDED.notify_channel_id,
	alert_role_ids = EXCLUDED.alert_role_ids,
	dm_role_ids = EXCLUDED.dm_role_ids,
	panel_message_id = COALESCE(NULLIF(EXCLUDED.panel_message_id, ''), entity_settings.panel_message_id),
	updated_at = now()`

// PostgresStore is a [Store] backed by the entity_settings table.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ Store = (*PostgresStore)(nil)

// OpenPostgres connects to dsn and ensures the schema exists.
func OpenPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("settings: failed to parse connection string: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("settings: failed to initialize pool: %w", err)
	}

	s := NewPostgresStore(pool, logger)
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("connected to settings database", "host", poolConfig.ConnConfig.Host, "database", poolConfig.ConnConfig.Database)
	return s, nil
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &PostgresStore{pool: pool, logger: logger.With("component", "settings")}
}

// EnsureSchema creates the entity_settings table if it does not exist.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("settings: failed to create schema: %w", err)
	}
	return nil
}

// Sync upserts entities and deletes rows for entities no longer listed.
// Panel message ids already stored are kept unless entities carry one.
func (p *PostgresStore) Sync(ctx context.Context, entities []Settings) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			p.logger.Warn("failed to rollback transaction", "error", err)
		}
	}()

	ids := make([]string, 0, len(entities))
	for _, s := range entities {
		if _, err := tx.Exec(ctx, upsertSQL, upsertArgs(s)...); err != nil {
			return fmt.Errorf("failed to upsert entity %s: %w", s.ID, err)
		}
		ids = append(ids, s.ID)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM entity_settings WHERE NOT (id = ANY($1))`, ids)
	if err != nil {
		return fmt.Errorf("failed to prune entities: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	p.logger.Info("settings synced", "entities", len(entities), "pruned", tag.RowsAffected())
	return nil
}

// List implements [Store].
func (p *PostgresStore) List(ctx context.Context) ([]Settings, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+selectColumns+` FROM entity_settings ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	defer rows.Close()

	var out []Settings
	for rows.Next() {
		s, err := scanSettings(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	return out, nil
}

// Get implements [Store].
func (p *PostgresStore) Get(ctx context.Context, id string) (Settings, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM entity_settings WHERE id = $1`, id)
	s, err := scanSettings(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Settings{}, ErrNotFound
	}
	return s, err
}

// SetPanelMessageID implements [Store].
func (p *PostgresStore) SetPanelMessageID(ctx context.Context, id, messageID string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE entity_settings SET panel_message_id = $2, updated_at = now() WHERE id = $1`,
		id, messageID)
	if err != nil {
		return fmt.Errorf("failed to store panel message id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Close releases the pool.
func (p *PostgresStore) Close() {
	p.pool.Close()
}

func upsertArgs(s Settings) []any {
	alert := s.AlertRoleIDs
	if alert == nil {
		alert = []string{}
	}
	dm := s.DMRoleIDs
	if dm == nil {
		dm = []string{}
	}
	return []any{s.ID, s.Name, s.PollURLA, s.PollURLB, s.SidecarURL, s.NotifyChannelID, alert, dm, s.PanelMessageID}
}

func scanSettings(row pgx.Row) (Settings, error) {
	var s Settings
	err := row.Scan(&s.ID, &s.Name, &s.PollURLA, &s.PollURLB, &s.SidecarURL,
		&s.NotifyChannelID, &s.AlertRoleIDs, &s.DMRoleIDs, &s.PanelMessageID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Settings{}, err
		}
		return Settings{}, fmt.Errorf("failed to scan entity settings: %w", err)
	}
	return s, nil
}
