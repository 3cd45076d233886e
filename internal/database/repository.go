package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"guildstats/internal/models"
)

// ErrInvalidDay is returned when a stored day string does not parse as a
// calendar date. It signals a persistence invariant violation.
var ErrInvalidDay = errors.New("database: invalid day string")

// Repository handles counter and voice session persistence.
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// tableFor maps a counter scope to its table and entity column.
func tableFor(scope models.Scope) (table, entityCol string, err error) {
	switch scope {
	case models.ScopeUser:
		return "user_daily", "user_id", nil
	case models.ScopeChannel:
		return "channel_daily", "channel_id", nil
	default:
		return "", "", fmt.Errorf("unknown counter scope %q", scope)
	}
}

// IncrementMessage adds one message to the counter for (scope, guild, entity,
// day), creating the row if needed. The upsert is atomic; concurrent callers
// on the same key never lose updates.
func (r *Repository) IncrementMessage(ctx context.Context, scope models.Scope, guildID, entityID, day string) error {
	table, col, err := tableFor(scope)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %[1]s (guild_id, %[2]s, day, messages, voice_seconds)
		VALUES (?, ?, ?, 1, 0)
		ON CONFLICT (guild_id, %[2]s, day)
		DO UPDATE SET messages = %[1]s.messages + 1`, table, col)

	if _, err := r.db.conn.ExecContext(ctx, r.db.rebind(query), guildID, entityID, day); err != nil {
		return fmt.Errorf("failed to increment messages: %w", err)
	}
	return nil
}

// AddVoiceSeconds adds voice seconds to the counter for (scope, guild,
// entity, day), creating the row if needed.
func (r *Repository) AddVoiceSeconds(ctx context.Context, scope models.Scope, guildID, entityID, day string, seconds int64) error {
	table, col, err := tableFor(scope)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %[1]s (guild_id, %[2]s, day, messages, voice_seconds)
		VALUES (?, ?, ?, 0, ?)
		ON CONFLICT (guild_id, %[2]s, day)
		DO UPDATE SET voice_seconds = %[1]s.voice_seconds + EXCLUDED.voice_seconds`, table, col)

	if _, err := r.db.conn.ExecContext(ctx, r.db.rebind(query), guildID, entityID, day, seconds); err != nil {
		return fmt.Errorf("failed to add voice seconds: %w", err)
	}
	return nil
}

// SumRange sums messages and voice seconds for an entity over an inclusive
// day range. Empty ranges yield zero totals, never an error.
func (r *Repository) SumRange(ctx context.Context, scope models.Scope, guildID, entityID, startDay, endDay string) (models.Totals, error) {
	table, col, err := tableFor(scope)
	if err != nil {
		return models.Totals{}, err
	}

	query := fmt.Sprintf(`
		SELECT
			COALESCE(SUM(messages), 0),
			COALESCE(SUM(voice_seconds), 0)
		FROM %s
		WHERE guild_id = ? AND %s = ? AND day BETWEEN ? AND ?`, table, col)

	var totals models.Totals
	err = r.db.conn.QueryRowContext(ctx, r.db.rebind(query), guildID, entityID, startDay, endDay).
		Scan(&totals.Messages, &totals.VoiceSeconds)
	if err != nil {
		return models.Totals{}, fmt.Errorf("failed to sum range: %w", err)
	}
	return totals, nil
}

// SeriesRange returns the stored per-day rows for an entity over an inclusive
// day range, ascending by day. Days without activity are absent.
func (r *Repository) SeriesRange(ctx context.Context, scope models.Scope, guildID, entityID, startDay, endDay string) ([]models.SeriesPoint, error) {
	table, col, err := tableFor(scope)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT day, messages, voice_seconds
		FROM %s
		WHERE guild_id = ? AND %s = ? AND day BETWEEN ? AND ?
		ORDER BY day ASC`, table, col)

	rows, err := r.db.conn.QueryContext(ctx, r.db.rebind(query), guildID, entityID, startDay, endDay)
	if err != nil {
		return nil, fmt.Errorf("failed to query series: %w", err)
	}
	defer rows.Close()

	var series []models.SeriesPoint
	for rows.Next() {
		var p models.SeriesPoint
		if err := rows.Scan(&p.Day, &p.Messages, &p.VoiceSeconds); err != nil {
			return nil, fmt.Errorf("failed to scan series row: %w", err)
		}
		if _, err := models.ParseDay(p.Day); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDay, err)
		}
		series = append(series, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read series rows: %w", err)
	}

	return series, nil
}

// UserTotals pairs a user with their summed activity.
type UserTotals struct {
	UserID string `json:"user_id"`
	models.Totals
}

// TopUsers returns users in a guild ranked by voice seconds over an
// inclusive day range.
func (r *Repository) TopUsers(ctx context.Context, guildID, startDay, endDay string, limit int) ([]UserTotals, error) {
	query := `
		SELECT user_id, SUM(messages), SUM(voice_seconds) AS vs
		FROM user_daily
		WHERE guild_id = ? AND day BETWEEN ? AND ?
		GROUP BY user_id
		ORDER BY vs DESC
		LIMIT ?`

	rows, err := r.db.conn.QueryContext(ctx, r.db.rebind(query), guildID, startDay, endDay, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top users: %w", err)
	}
	defer rows.Close()

	var top []UserTotals
	for rows.Next() {
		var ut UserTotals
		if err := rows.Scan(&ut.UserID, &ut.Messages, &ut.VoiceSeconds); err != nil {
			return nil, fmt.Errorf("failed to scan top user row: %w", err)
		}
		top = append(top, ut)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read top user rows: %w", err)
	}

	return top, nil
}

// UpsertSession creates or replaces the open voice session for
// (guild, user).
func (r *Repository) UpsertSession(ctx context.Context, session models.VoiceSession) error {
	query := `
		INSERT INTO voice_sessions (guild_id, user_id, channel_id, started_at_ms)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (guild_id, user_id)
		DO UPDATE SET channel_id = EXCLUDED.channel_id,
		              started_at_ms = EXCLUDED.started_at_ms`

	_, err := r.db.conn.ExecContext(ctx, r.db.rebind(query),
		session.GuildID, session.UserID, session.ChannelID, session.StartedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}
	return nil
}

// GetSession returns the open voice session for (guild, user), or nil when
// none exists.
func (r *Repository) GetSession(ctx context.Context, guildID, userID string) (*models.VoiceSession, error) {
	query := `
		SELECT channel_id, started_at_ms
		FROM voice_sessions
		WHERE guild_id = ? AND user_id = ?`

	var channelID string
	var startedAtMs int64
	err := r.db.conn.QueryRowContext(ctx, r.db.rebind(query), guildID, userID).
		Scan(&channelID, &startedAtMs)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return &models.VoiceSession{
		GuildID:   guildID,
		UserID:    userID,
		ChannelID: channelID,
		StartedAt: time.UnixMilli(startedAtMs).UTC(),
	}, nil
}

// DeleteSession removes the open voice session for (guild, user). Deleting a
// missing session is not an error.
func (r *Repository) DeleteSession(ctx context.Context, guildID, userID string) error {
	query := `DELETE FROM voice_sessions WHERE guild_id = ? AND user_id = ?`
	if _, err := r.db.conn.ExecContext(ctx, r.db.rebind(query), guildID, userID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// ListOpenSessions returns all open voice sessions for a guild.
func (r *Repository) ListOpenSessions(ctx context.Context, guildID string) ([]models.VoiceSession, error) {
	query := `
		SELECT user_id, channel_id, started_at_ms
		FROM voice_sessions
		WHERE guild_id = ?
		ORDER BY started_at_ms ASC`

	rows, err := r.db.conn.QueryContext(ctx, r.db.rebind(query), guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.VoiceSession
	for rows.Next() {
		var userID, channelID string
		var startedAtMs int64
		if err := rows.Scan(&userID, &channelID, &startedAtMs); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sessions = append(sessions, models.VoiceSession{
			GuildID:   guildID,
			UserID:    userID,
			ChannelID: channelID,
			StartedAt: time.UnixMilli(startedAtMs).UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read session rows: %w", err)
	}

	return sessions, nil
}
