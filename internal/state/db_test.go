package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ShayCichocki/nimbus/internal/action"
	"github.com/ShayCichocki/nimbus/internal/persist"
	"github.com/ShayCichocki/nimbus/pkg/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB creates a new temporary database for testing.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen_CreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "state.db")
	db, err := Open(path)
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, path, db.Path())
	assert.Equal(t, DriverModernc, db.Driver())
	_, err = os.Stat(filepath.Dir(path))
	assert.NoError(t, err)
}

func TestOpenWithDriver_Unsupported(t *testing.T) {
	_, err := OpenWithDriver("postgres", filepath.Join(t.TempDir(), "x.db"))
	assert.Error(t, err)
}

func TestMigrate_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, db.Migrate())

	var version int
	require.NoError(t, db.QueryRowContext(context.Background(),
		"SELECT MAX(version) FROM schema_version").Scan(&version))
	assert.Equal(t, 6, version)
}

func TestSessions(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	none, err := db.LatestSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)

	s := &Session{ID: uuid.NewString(), StartedAt: time.Now(), Status: SessionActive}
	require.NoError(t, db.CreateSession(ctx, s))

	ended := time.Now()
	s.EndedAt = &ended
	s.Iterations = 12
	s.Status = SessionCompleted
	require.NoError(t, db.UpdateSession(ctx, s))

	got, err := db.GetSession(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 12, got.Iterations)
	assert.Equal(t, SessionCompleted, got.Status)
	require.NotNil(t, got.EndedAt)

	latest, err := db.LatestSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, s.ID, latest.ID)
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	require.NoError(t, db.SetMemory(ctx, "projects_completed", 2))
	require.NoError(t, db.SetMemory(ctx, "projects_completed", 3))
	mem, err := db.LongTermMemory(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"projects_completed": float64(3)}, mem)

	require.NoError(t, db.SaveLongTermMemory(ctx, map[string]any{"lesson": "write tests early"}))
	mem, err = db.LongTermMemory(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"lesson": "write tests early"}, mem)
}

func TestExperiences(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	for _, a := range []string{"research_and_plan", "write_tests", "run_code"} {
		require.NoError(t, db.AddExperience(ctx, models.Experience{Scenario: "demo", Action: a, Outcome: "success"}))
	}
	exps, err := db.RecentExperiences(ctx, 2)
	require.NoError(t, err)
	require.Len(t, exps, 2)
	assert.Equal(t, "run_code", exps[0].Action)
	assert.Equal(t, "write_tests", exps[1].Action)
	assert.False(t, exps[0].Timestamp.IsZero())

	all, err := db.RecentExperiences(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSnapshot_RoundTrip(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	none, err := db.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)

	snap := models.Snapshot{
		LongTermMemory:    map[string]any{"k": "v"},
		RecentExperiences: []map[string]any{{"action": "write_tests"}},
		Timestamp:         1_700_000_000_000,
	}
	require.NoError(t, db.WriteSnapshot(ctx, snap))
	snap.Timestamp++
	require.NoError(t, db.WriteSnapshot(ctx, snap))

	got, err := db.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, snap.Timestamp, got.Timestamp)
	assert.Equal(t, "v", got.LongTermMemory["k"])
	assert.Equal(t, "write_tests", got.RecentExperiences[0]["action"])

	_, err = db.ExecContext(ctx, `UPDATE snapshots SET data = '{broken'`)
	require.NoError(t, err)
	_, err = db.LoadSnapshot(ctx)
	assert.ErrorIs(t, err, persist.ErrCorruptSnapshot)
}

func TestSnapshot_WithScheduler(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	require.NoError(t, db.SetMemory(ctx, "k", "v"))
	require.NoError(t, persist.NewScheduler(db).Flush(ctx))

	require.NoError(t, db.SaveLongTermMemory(ctx, nil))
	snap, err := persist.NewScheduler(db).Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap)

	mem, err := db.LongTermMemory(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v", mem["k"], "load restores long-term memory")
}

func TestActionLog(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	for i, status := range []models.ResultStatus{models.StatusSuccess, models.StatusUnknown} {
		require.NoError(t, db.AppendActionLog(ctx, action.Record{
			Seq:       int64(i + 1),
			Name:      "run_code",
			Result:    models.ActionResult{Status: status, Payload: map[string]any{"output": "ok"}},
			Timestamp: time.Now(),
		}))
	}
	recs, err := db.RecentActions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, int64(2), recs[0].Seq)
	assert.Equal(t, models.StatusUnknown, recs[0].Result.Status)
	assert.Equal(t, "ok", recs[1].Result.String("output"))
}

func TestProgress(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	none, err := db.GetProgress(ctx, "demo")
	require.NoError(t, err)
	assert.Nil(t, none)

	rec := models.ProgressRecord{
		Project:      "demo",
		CurrentStage: models.StagePlanning,
		Counters:     models.Counters{TotalActions: 1},
		StartedAt:    time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, db.SaveProgress(ctx, rec))
	rec.CurrentStage = models.StageTesting
	rec.Counters.TotalActions = 5
	require.NoError(t, db.SaveProgress(ctx, rec))

	got, err := db.GetProgress(ctx, "demo")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.StageTesting, got.CurrentStage)
	assert.Equal(t, 5, got.Counters.TotalActions)

	all, err := db.ListProgress(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
