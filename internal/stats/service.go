package stats

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"guildstats/internal/models"
)

// ErrPartialCustomRange is returned when exactly one of from/to is supplied.
// A custom range requires both bounds.
var ErrPartialCustomRange = errors.New("stats: custom range requires both from and to")

// Store is the counter query surface the service needs.
type Store interface {
	SumRange(ctx context.Context, scope models.Scope, guildID, entityID, startDay, endDay string) (models.Totals, error)
	SeriesRange(ctx context.Context, scope models.Scope, guildID, entityID, startDay, endDay string) ([]models.SeriesPoint, error)
}

// Activity is the totals-plus-series payload consumed by rendering and
// command collaborators.
type Activity struct {
	Totals models.Totals        `json:"totals"`
	Series []models.SeriesPoint `json:"series"`
	Range  models.Range         `json:"range"`
}

// Service answers activity range queries.
type Service struct {
	store  Store
	logger zerolog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewService creates a new stats service
func NewService(store Store, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger.With().Str("component", "stats").Logger(),
		now:    time.Now,
	}
}

// GetUserActivity returns totals and a gap-free daily series for a user.
func (s *Service) GetUserActivity(ctx context.Context, guildID, userID string, q PeriodQuery) (*Activity, error) {
	return s.activity(ctx, models.ScopeUser, guildID, userID, q)
}

// GetChannelActivity returns totals and a gap-free daily series for a channel.
func (s *Service) GetChannelActivity(ctx context.Context, guildID, channelID string, q PeriodQuery) (*Activity, error) {
	return s.activity(ctx, models.ScopeChannel, guildID, channelID, q)
}

func (s *Service) activity(ctx context.Context, scope models.Scope, guildID, entityID string, q PeriodQuery) (*Activity, error) {
	if (q.From == "") != (q.To == "") {
		return nil, ErrPartialCustomRange
	}

	rng := ResolveRange(q, s.now().UTC())

	totals, err := s.store.SumRange(ctx, scope, guildID, entityID, rng.Start, rng.End)
	if err != nil {
		return nil, err
	}

	sparse, err := s.store.SeriesRange(ctx, scope, guildID, entityID, rng.Start, rng.End)
	if err != nil {
		return nil, err
	}

	series, err := EnsureSeriesDays(sparse, rng.Start, rng.End)
	if err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("scope", string(scope)).
		Str("guild_id", guildID).
		Str("entity_id", entityID).
		Str("range", rng.Label).
		Int("points", len(series)).
		Msg("Resolved activity query")

	return &Activity{Totals: totals, Series: series, Range: rng}, nil
}
