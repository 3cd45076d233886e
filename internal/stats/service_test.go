package stats

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"guildstats/internal/models"
)

// fakeStore serves range queries from in-memory rows, the same way the SQL
// store serves them from tables.
type fakeStore struct {
	rows map[string][]models.SeriesPoint // key: scope|guild|entity
	err  error
}

func storeKey(scope models.Scope, guildID, entityID string) string {
	return string(scope) + "|" + guildID + "|" + entityID
}

func (f *fakeStore) put(scope models.Scope, guildID, entityID string, p models.SeriesPoint) {
	if f.rows == nil {
		f.rows = make(map[string][]models.SeriesPoint)
	}
	key := storeKey(scope, guildID, entityID)
	f.rows[key] = append(f.rows[key], p)
}

func (f *fakeStore) SumRange(ctx context.Context, scope models.Scope, guildID, entityID, startDay, endDay string) (models.Totals, error) {
	if f.err != nil {
		return models.Totals{}, f.err
	}
	var totals models.Totals
	for _, p := range f.rows[storeKey(scope, guildID, entityID)] {
		if p.Day >= startDay && p.Day <= endDay {
			totals.Messages += p.Messages
			totals.VoiceSeconds += p.VoiceSeconds
		}
	}
	return totals, nil
}

func (f *fakeStore) SeriesRange(ctx context.Context, scope models.Scope, guildID, entityID, startDay, endDay string) ([]models.SeriesPoint, error) {
	if f.err != nil {
		return nil, f.err
	}
	var series []models.SeriesPoint
	for _, p := range f.rows[storeKey(scope, guildID, entityID)] {
		if p.Day >= startDay && p.Day <= endDay {
			series = append(series, p)
		}
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Day < series[j].Day })
	return series, nil
}

func newTestService(store Store, now time.Time) *Service {
	svc := NewService(store, zerolog.Nop())
	svc.now = func() time.Time { return now }
	return svc
}

func TestServicePartialCustomRange(t *testing.T) {
	svc := newTestService(&fakeStore{}, time.Now())

	_, err := svc.GetUserActivity(context.Background(), "g1", "u1", PeriodQuery{From: "2024-01-01"})
	if !errors.Is(err, ErrPartialCustomRange) {
		t.Fatalf("expected ErrPartialCustomRange, got %v", err)
	}

	_, err = svc.GetChannelActivity(context.Background(), "g1", "c1", PeriodQuery{To: "2024-01-31"})
	if !errors.Is(err, ErrPartialCustomRange) {
		t.Fatalf("expected ErrPartialCustomRange, got %v", err)
	}
}

func TestServiceSeriesAgreesWithTotals(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	store := &fakeStore{}
	store.put(models.ScopeUser, "g1", "u1", models.SeriesPoint{Day: "2024-03-04", Messages: 3, VoiceSeconds: 120})
	store.put(models.ScopeUser, "g1", "u1", models.SeriesPoint{Day: "2024-03-08", Messages: 10, VoiceSeconds: 0})
	store.put(models.ScopeUser, "g1", "u1", models.SeriesPoint{Day: "2024-03-10", Messages: 1, VoiceSeconds: 3600})
	// A row outside the queried range must affect neither sum nor series.
	store.put(models.ScopeUser, "g1", "u1", models.SeriesPoint{Day: "2024-03-01", Messages: 500, VoiceSeconds: 500})

	svc := newTestService(store, now)

	activity, err := svc.GetUserActivity(context.Background(), "g1", "u1", PeriodQuery{Period: "7d"})
	if err != nil {
		t.Fatalf("get user activity: %v", err)
	}

	if len(activity.Series) != 7 {
		t.Fatalf("expected 7 series points, got %d", len(activity.Series))
	}

	var msgs, secs int64
	for _, p := range activity.Series {
		msgs += p.Messages
		secs += p.VoiceSeconds
	}
	if msgs != activity.Totals.Messages || secs != activity.Totals.VoiceSeconds {
		t.Fatalf("series sums (%d msgs, %d secs) disagree with totals %+v",
			msgs, secs, activity.Totals)
	}
	if activity.Totals.Messages != 14 || activity.Totals.VoiceSeconds != 3720 {
		t.Fatalf("unexpected totals %+v", activity.Totals)
	}
	if activity.Range.Label != "Last 7 days" {
		t.Fatalf("unexpected range label %q", activity.Range.Label)
	}
}

func TestServiceEmptyRangeYieldsZeroes(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := newTestService(&fakeStore{}, now)

	activity, err := svc.GetChannelActivity(context.Background(), "g1", "c-unknown", PeriodQuery{Period: "3d"})
	if err != nil {
		t.Fatalf("get channel activity: %v", err)
	}

	if activity.Totals.Messages != 0 || activity.Totals.VoiceSeconds != 0 {
		t.Fatalf("expected zero totals, got %+v", activity.Totals)
	}
	if len(activity.Series) != 3 {
		t.Fatalf("expected 3 zero points, got %d", len(activity.Series))
	}
}

func TestServicePropagatesStoreErrors(t *testing.T) {
	storeErr := errors.New("store unreachable")
	svc := newTestService(&fakeStore{err: storeErr}, time.Now())

	if _, err := svc.GetUserActivity(context.Background(), "g1", "u1", PeriodQuery{}); !errors.Is(err, storeErr) {
		t.Fatalf("expected store error to propagate, got %v", err)
	}
}
