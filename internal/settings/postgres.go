package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the guild_settings table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS guild_settings (
    guild_id                     TEXT PRIMARY KEY,
    default_volume               INT NOT NULL DEFAULT 100,
    auto_disconnect              BOOLEAN NOT NULL DEFAULT TRUE,
    auto_disconnect_delay_secs   INT NOT NULL DEFAULT 30,
    leave_if_no_listeners        BOOLEAN NOT NULL DEFAULT TRUE,
    queue_page_size              INT NOT NULL DEFAULT 10,
    queue_add_response_ephemeral BOOLEAN NOT NULL DEFAULT FALSE,
    playlist_limit               INT NOT NULL DEFAULT 50,
    turn_down_when_speaking      BOOLEAN NOT NULL DEFAULT FALSE,
    turn_down_target             INT NOT NULL DEFAULT 20,
    auto_announce_next_song      BOOLEAN NOT NULL DEFAULT FALSE,
    created_at                   TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at                   TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL database.
type PostgresStore struct {
	db DB
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new [PostgresStore] that uses the given database
// connection or pool. The caller is responsible for calling
// [PostgresStore.Migrate] to ensure the schema exists before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL against the database, creating the
// guild_settings table if it does not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, Schema)
	if err != nil {
		return fmt.Errorf("settings: migrate: %w", err)
	}
	return nil
}

// Get returns a guild's settings, or [Defaults] when the guild has no row.
func (s *PostgresStore) Get(ctx context.Context, guildID string) (*GuildSettings, error) {
	const query = `
		SELECT guild_id, default_volume, auto_disconnect, auto_disconnect_delay_secs,
		       leave_if_no_listeners, queue_page_size, queue_add_response_ephemeral,
		       playlist_limit, turn_down_when_speaking, turn_down_target,
		       auto_announce_next_song
		FROM guild_settings
		WHERE guild_id = $1`

	var (
		gs        GuildSettings
		delaySecs int
	)
	err := s.db.QueryRow(ctx, query, guildID).Scan(
		&gs.GuildID, &gs.DefaultVolume, &gs.AutoDisconnect, &delaySecs,
		&gs.LeaveIfNoListeners, &gs.QueuePageSize, &gs.QueueAddResponseEphemeral,
		&gs.PlaylistLimit, &gs.TurnDownWhenSpeaking, &gs.TurnDownTarget,
		&gs.AutoAnnounceNextSong,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Defaults(guildID), nil
		}
		return nil, fmt.Errorf("settings: get %q: %w", guildID, err)
	}
	gs.AutoDisconnectDelay = time.Duration(delaySecs) * time.Second
	return &gs, nil
}

// Set validates and upserts a guild's settings.
func (s *PostgresStore) Set(ctx context.Context, gs *GuildSettings) error {
	if err := gs.Validate(); err != nil {
		return err
	}

	const query = `
		INSERT INTO guild_settings (
			guild_id, default_volume, auto_disconnect, auto_disconnect_delay_secs,
			leave_if_no_listeners, queue_page_size, queue_add_response_ephemeral,
			playlist_limit, turn_down_when_speaking, turn_down_target,
			auto_announce_next_song
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (guild_id) DO UPDATE SET
			default_volume = EXCLUDED.default_volume,
			auto_disconnect = EXCLUDED.auto_disconnect,
			auto_disconnect_delay_secs = EXCLUDED.auto_disconnect_delay_secs,
			leave_if_no_listeners = EXCLUDED.leave_if_no_listeners,
			queue_page_size = EXCLUDED.queue_page_size,
			queue_add_response_ephemeral = EXCLUDED.queue_add_response_ephemeral,
			playlist_limit = EXCLUDED.playlist_limit,
			turn_down_when_speaking = EXCLUDED.turn_down_when_speaking,
			turn_down_target = EXCLUDED.turn_down_target,
			auto_announce_next_song = EXCLUDED.auto_announce_next_song,
			updated_at = now()`

	_, err := s.db.Exec(ctx, query,
		gs.GuildID, gs.DefaultVolume, gs.AutoDisconnect,
		int(gs.AutoDisconnectDelay/time.Second),
		gs.LeaveIfNoListeners, gs.QueuePageSize, gs.QueueAddResponseEphemeral,
		gs.PlaylistLimit, gs.TurnDownWhenSpeaking, gs.TurnDownTarget,
		gs.AutoAnnounceNextSong,
	)
	if err != nil {
		return fmt.Errorf("settings: set %q: %w", gs.GuildID, err)
	}
	return nil
}
