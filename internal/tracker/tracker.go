package tracker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"guildstats/internal/metrics"
	"guildstats/internal/models"
)

// Store is the persistence surface the tracker needs. Upserts are atomic;
// the tracker holds no locks of its own.
type Store interface {
	IncrementMessage(ctx context.Context, scope models.Scope, guildID, entityID, day string) error
	AddVoiceSeconds(ctx context.Context, scope models.Scope, guildID, entityID, day string, seconds int64) error
	UpsertSession(ctx context.Context, session models.VoiceSession) error
	GetSession(ctx context.Context, guildID, userID string) (*models.VoiceSession, error)
	DeleteSession(ctx context.Context, guildID, userID string) error
}

// Tracker converts message and voice presence events into daily counters.
// Sessions are persisted, so restarts pick up where the process left off.
type Tracker struct {
	store  Store
	logger zerolog.Logger
}

// New creates a new tracker
func New(store Store, logger zerolog.Logger) *Tracker {
	return &Tracker{
		store:  store,
		logger: logger.With().Str("component", "tracker").Logger(),
	}
}

// OnMessage counts one message for both the author and the channel, bucketed
// by the UTC day of the event timestamp.
func (t *Tracker) OnMessage(ctx context.Context, guildID, userID, channelID string, ts time.Time) error {
	day := models.UTCDay(ts)

	if err := t.store.IncrementMessage(ctx, models.ScopeUser, guildID, userID, day); err != nil {
		return err
	}
	if err := t.store.IncrementMessage(ctx, models.ScopeChannel, guildID, channelID, day); err != nil {
		return err
	}

	metrics.MessagesTracked.WithLabelValues(guildID).Inc()
	return nil
}

// OnVoiceTransition dispatches a raw presence transition. Empty channel IDs
// mean "not in a voice channel" on that side of the transition.
func (t *Tracker) OnVoiceTransition(ctx context.Context, guildID, userID, oldChannelID, newChannelID string, ts time.Time) error {
	switch {
	case oldChannelID == "" && newChannelID != "":
		return t.OnJoin(ctx, guildID, userID, newChannelID, ts)
	case oldChannelID != "" && newChannelID == "":
		return t.OnLeave(ctx, guildID, userID, ts)
	case oldChannelID != "" && newChannelID != "" && oldChannelID != newChannelID:
		return t.OnMove(ctx, guildID, userID, newChannelID, ts)
	default:
		// Same-channel state change (mute, deafen, stream), nothing to track.
		return nil
	}
}

// OnJoin opens a voice session. A join while a session is already open is
// treated as a move: the open session is closed and credited first.
// Transition events race, so duplicate joins must not error.
func (t *Tracker) OnJoin(ctx context.Context, guildID, userID, channelID string, ts time.Time) error {
	existing, err := t.store.GetSession(ctx, guildID, userID)
	if err != nil {
		return err
	}
	if existing != nil {
		if err := t.closeSession(ctx, existing, ts); err != nil {
			return err
		}
	}

	session := models.VoiceSession{
		GuildID:   guildID,
		UserID:    userID,
		ChannelID: channelID,
		StartedAt: ts.UTC(),
	}
	if err := t.store.UpsertSession(ctx, session); err != nil {
		return err
	}

	t.logger.Debug().
		Str("guild_id", guildID).
		Str("user_id", userID).
		Str("channel_id", channelID).
		Msg("Voice session opened")
	return nil
}

// OnLeave closes the open voice session and credits its duration. A leave
// with no open session is a no-op.
func (t *Tracker) OnLeave(ctx context.Context, guildID, userID string, ts time.Time) error {
	session, err := t.store.GetSession(ctx, guildID, userID)
	if err != nil {
		return err
	}
	if session == nil {
		return nil
	}
	return t.closeSession(ctx, session, ts)
}

// OnMove closes the open session and opens a new one in the target channel
// at the same instant.
func (t *Tracker) OnMove(ctx context.Context, guildID, userID, newChannelID string, ts time.Time) error {
	return t.OnJoin(ctx, guildID, userID, newChannelID, ts)
}

// closeSession deletes the session row and credits the elapsed duration to
// both the user and the channel on the UTC day of the close. A session
// spanning midnight attributes its whole duration to the closing day.
// Non-positive durations (clock skew, same-tick join/leave) are discarded.
func (t *Tracker) closeSession(ctx context.Context, session *models.VoiceSession, now time.Time) error {
	seconds := int64(now.Sub(session.StartedAt) / time.Second)

	if err := t.store.DeleteSession(ctx, session.GuildID, session.UserID); err != nil {
		return err
	}

	if seconds < 1 {
		t.logger.Debug().
			Str("guild_id", session.GuildID).
			Str("user_id", session.UserID).
			Int64("seconds", seconds).
			Msg("Voice session closed with no creditable duration")
		return nil
	}

	day := models.UTCDay(now)

	if err := t.store.AddVoiceSeconds(ctx, models.ScopeUser, session.GuildID, session.UserID, day, seconds); err != nil {
		return err
	}
	if err := t.store.AddVoiceSeconds(ctx, models.ScopeChannel, session.GuildID, session.ChannelID, day, seconds); err != nil {
		return err
	}

	metrics.VoiceSessionsClosed.WithLabelValues(session.GuildID).Inc()
	metrics.VoiceSecondsRecorded.WithLabelValues(session.GuildID).Add(float64(seconds))

	t.logger.Debug().
		Str("guild_id", session.GuildID).
		Str("user_id", session.UserID).
		Str("channel_id", session.ChannelID).
		Int64("seconds", seconds).
		Str("day", day).
		Msg("Voice session closed")
	return nil
}
