package database

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"guildstats/internal/models"
)

func openTestRepository(t *testing.T) *Repository {
	t.Helper()

	db, err := New(DriverSQLite, filepath.Join(t.TempDir(), "stats.sqlite"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return NewRepository(db)
}

func TestIncrementMessage(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := repo.IncrementMessage(ctx, models.ScopeUser, "g1", "u1", "2024-03-10"); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}

	totals, err := repo.SumRange(ctx, models.ScopeUser, "g1", "u1", "2024-03-10", "2024-03-10")
	if err != nil {
		t.Fatalf("sum range: %v", err)
	}
	if totals.Messages != 3 {
		t.Fatalf("messages = %d, want 3", totals.Messages)
	}
	if totals.VoiceSeconds != 0 {
		t.Fatalf("voice seconds = %d, want 0", totals.VoiceSeconds)
	}
}

func TestIncrementMessageConcurrent(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	const n = 25
	var wg sync.WaitGroup
	errs := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- repo.IncrementMessage(ctx, models.ScopeChannel, "g1", "c1", "2024-03-10")
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent increment: %v", err)
		}
	}

	totals, err := repo.SumRange(ctx, models.ScopeChannel, "g1", "c1", "2024-03-10", "2024-03-10")
	if err != nil {
		t.Fatalf("sum range: %v", err)
	}
	if totals.Messages != n {
		t.Fatalf("messages = %d, want %d (lost updates)", totals.Messages, n)
	}
}

func TestAddVoiceSecondsAccumulates(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	if err := repo.AddVoiceSeconds(ctx, models.ScopeUser, "g1", "u1", "2024-03-10", 100); err != nil {
		t.Fatalf("add voice seconds: %v", err)
	}
	if err := repo.AddVoiceSeconds(ctx, models.ScopeUser, "g1", "u1", "2024-03-10", 25); err != nil {
		t.Fatalf("add voice seconds: %v", err)
	}

	totals, err := repo.SumRange(ctx, models.ScopeUser, "g1", "u1", "2024-03-10", "2024-03-10")
	if err != nil {
		t.Fatalf("sum range: %v", err)
	}
	if totals.VoiceSeconds != 125 {
		t.Fatalf("voice seconds = %d, want 125", totals.VoiceSeconds)
	}
}

func TestSumRangeEmpty(t *testing.T) {
	repo := openTestRepository(t)

	totals, err := repo.SumRange(context.Background(), models.ScopeUser, "g1", "nobody", "2024-01-01", "2024-12-31")
	if err != nil {
		t.Fatalf("sum range: %v", err)
	}
	if totals.Messages != 0 || totals.VoiceSeconds != 0 {
		t.Fatalf("expected zero totals, got %+v", totals)
	}
}

func TestSumRangeBoundsInclusive(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	for _, day := range []string{"2024-03-01", "2024-03-02", "2024-03-03", "2024-03-04"} {
		if err := repo.IncrementMessage(ctx, models.ScopeUser, "g1", "u1", day); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}

	totals, err := repo.SumRange(ctx, models.ScopeUser, "g1", "u1", "2024-03-02", "2024-03-03")
	if err != nil {
		t.Fatalf("sum range: %v", err)
	}
	if totals.Messages != 2 {
		t.Fatalf("messages = %d, want 2 (bounds must be inclusive)", totals.Messages)
	}
}

func TestSeriesRangeSparseAscending(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	// Insert out of chronological order.
	for _, day := range []string{"2024-03-05", "2024-03-01", "2024-03-03"} {
		if err := repo.IncrementMessage(ctx, models.ScopeUser, "g1", "u1", day); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}

	series, err := repo.SeriesRange(ctx, models.ScopeUser, "g1", "u1", "2024-03-01", "2024-03-05")
	if err != nil {
		t.Fatalf("series range: %v", err)
	}

	want := []string{"2024-03-01", "2024-03-03", "2024-03-05"}
	if len(series) != len(want) {
		t.Fatalf("expected %d sparse rows, got %d", len(want), len(series))
	}
	for i, p := range series {
		if p.Day != want[i] {
			t.Fatalf("row %d day = %s, want %s", i, p.Day, want[i])
		}
	}
}

func TestSeriesRangeRejectsMalformedDay(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	// Corrupt a row behind the repository's back.
	_, err := repo.db.conn.Exec(
		`INSERT INTO user_daily (guild_id, user_id, day, messages, voice_seconds) VALUES (?, ?, ?, ?, ?)`,
		"g1", "u1", "garbage-day", 1, 0)
	if err != nil {
		t.Fatalf("insert corrupt row: %v", err)
	}

	_, err = repo.SeriesRange(ctx, models.ScopeUser, "g1", "u1", "2024-01-01", "z")
	if !errors.Is(err, ErrInvalidDay) {
		t.Fatalf("expected ErrInvalidDay, got %v", err)
	}
}

func TestScopesAreIsolated(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	if err := repo.IncrementMessage(ctx, models.ScopeUser, "g1", "x1", "2024-03-10"); err != nil {
		t.Fatalf("increment user: %v", err)
	}

	totals, err := repo.SumRange(ctx, models.ScopeChannel, "g1", "x1", "2024-03-10", "2024-03-10")
	if err != nil {
		t.Fatalf("sum range: %v", err)
	}
	if totals.Messages != 0 {
		t.Fatalf("channel scope leaked user counts: %+v", totals)
	}
}

func TestSessionLifecycle(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	startedAt := time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)

	if err := repo.UpsertSession(ctx, models.VoiceSession{
		GuildID: "g1", UserID: "u1", ChannelID: "c1", StartedAt: startedAt,
	}); err != nil {
		t.Fatalf("upsert session: %v", err)
	}

	session, err := repo.GetSession(ctx, "g1", "u1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if session == nil {
		t.Fatal("expected a session")
	}
	if session.ChannelID != "c1" || !session.StartedAt.Equal(startedAt) {
		t.Fatalf("unexpected session %+v", session)
	}

	// Upsert on the same key replaces the session (one per guild+user).
	laterAt := startedAt.Add(time.Hour)
	if err := repo.UpsertSession(ctx, models.VoiceSession{
		GuildID: "g1", UserID: "u1", ChannelID: "c2", StartedAt: laterAt,
	}); err != nil {
		t.Fatalf("replace session: %v", err)
	}

	session, err = repo.GetSession(ctx, "g1", "u1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if session.ChannelID != "c2" || !session.StartedAt.Equal(laterAt) {
		t.Fatalf("session not replaced: %+v", session)
	}

	sessions, err := repo.ListOpenSessions(ctx, "g1")
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 open session, got %d", len(sessions))
	}

	if err := repo.DeleteSession(ctx, "g1", "u1"); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	session, err = repo.GetSession(ctx, "g1", "u1")
	if err != nil {
		t.Fatalf("get session after delete: %v", err)
	}
	if session != nil {
		t.Fatalf("expected no session, got %+v", session)
	}

	// Deleting again is not an error.
	if err := repo.DeleteSession(ctx, "g1", "u1"); err != nil {
		t.Fatalf("double delete: %v", err)
	}
}

func TestTopUsersRankedByVoice(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	if err := repo.AddVoiceSeconds(ctx, models.ScopeUser, "g1", "u1", "2024-03-10", 100); err != nil {
		t.Fatalf("add voice seconds: %v", err)
	}
	if err := repo.AddVoiceSeconds(ctx, models.ScopeUser, "g1", "u2", "2024-03-10", 300); err != nil {
		t.Fatalf("add voice seconds: %v", err)
	}
	if err := repo.AddVoiceSeconds(ctx, models.ScopeUser, "g1", "u2", "2024-03-09", 50); err != nil {
		t.Fatalf("add voice seconds: %v", err)
	}
	// Different guild must not appear.
	if err := repo.AddVoiceSeconds(ctx, models.ScopeUser, "g2", "u3", "2024-03-10", 999); err != nil {
		t.Fatalf("add voice seconds: %v", err)
	}

	top, err := repo.TopUsers(ctx, "g1", "2024-03-01", "2024-03-31", 10)
	if err != nil {
		t.Fatalf("top users: %v", err)
	}

	if len(top) != 2 {
		t.Fatalf("expected 2 users, got %d", len(top))
	}
	if top[0].UserID != "u2" || top[0].VoiceSeconds != 350 {
		t.Fatalf("unexpected leader %+v", top[0])
	}
	if top[1].UserID != "u1" || top[1].VoiceSeconds != 100 {
		t.Fatalf("unexpected runner-up %+v", top[1])
	}
}

func TestRebind(t *testing.T) {
	sqlite := &DB{driver: DriverSQLite}
	postgres := &DB{driver: DriverPostgres}

	query := "SELECT ? WHERE a = ? AND b = ?"

	if got := sqlite.rebind(query); got != query {
		t.Fatalf("sqlite rebind changed query: %s", got)
	}
	if got := postgres.rebind(query); got != "SELECT $1 WHERE a = $2 AND b = $3" {
		t.Fatalf("postgres rebind = %s", got)
	}
}
