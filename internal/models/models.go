package models

import (
	"fmt"
	"time"
)

// DayLayout is the calendar-date format used as the counter bucket key.
// Day strings sort lexicographically in chronological order.
const DayLayout = "2006-01-02"

// EpochDay is the lower bound used for "all time" ranges.
const EpochDay = "1970-01-01"

// Scope selects whether a counter pertains to a user or a channel.
type Scope string

const (
	ScopeUser    Scope = "user"
	ScopeChannel Scope = "channel"
)

// VoiceSession represents a user's open voice channel session.
// At most one exists per (guild, user).
type VoiceSession struct {
	GuildID   string    `json:"guild_id"`
	UserID    string    `json:"user_id"`
	ChannelID string    `json:"channel_id"`
	StartedAt time.Time `json:"started_at"`
}

// Totals holds summed activity over a range.
type Totals struct {
	Messages     int64 `json:"messages"`
	VoiceSeconds int64 `json:"voice_seconds"`
}

// SeriesPoint is one calendar day of activity.
type SeriesPoint struct {
	Day          string `json:"day"`
	Messages     int64  `json:"messages"`
	VoiceSeconds int64  `json:"voice_seconds"`
}

// Range is an inclusive [Start, End] day interval with a display label.
type Range struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Label string `json:"label"`
}

// UTCDay returns the UTC calendar day of t as YYYY-MM-DD.
func UTCDay(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// ParseDay validates a YYYY-MM-DD day string.
func ParseDay(day string) (time.Time, error) {
	t, err := time.Parse(DayLayout, day)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day %q: %w", day, err)
	}
	return t, nil
}

// AddDays shifts a day string by delta calendar days in UTC.
func AddDays(day string, delta int) (string, error) {
	t, err := ParseDay(day)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, delta).Format(DayLayout), nil
}
