package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/codescope/internal/models"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func completedResult(id, repo string, completedAt time.Time, findings ...models.Finding) *models.ExecutionResult {
	if findings == nil {
		findings = []models.Finding{}
	}
	return &models.ExecutionResult{
		ExecutionID: id,
		TaskID:      "task-" + id,
		TaskType:    models.TaskScanProject,
		Repository:  repo,
		Success:     true,
		FinalStage:  models.StageCompleted,
		Findings:    findings,
		ReportText:  "# Report",
		RetryCounts: map[string]int{"graph": 1},
		StartedAt:   completedAt.Add(-3 * time.Second),
		CompletedAt: completedAt,
		Duration:    3 * time.Second,
	}
}

func TestApplyMigrations(t *testing.T) {
	store := setupTestStore(t)

	versions, err := store.GetAppliedVersions()
	require.NoError(t, err)
	require.Len(t, versions, len(migrations))
	for i, v := range versions {
		assert.Equal(t, migrations[i].Version, v.Version)
	}

	// Applying again is a no-op.
	require.NoError(t, store.ApplyMigrations(context.Background()))
	latest, err := store.GetLatestVersion()
	require.NoError(t, err)
	assert.Equal(t, migrations[len(migrations)-1].Version, latest)
}

func TestRecordAndGet(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	result := completedResult("exec-1", "https://git.example.com/org/repo.git", now,
		models.Finding{Severity: models.SeverityHigh, Category: "security", Message: "sql injection",
			Location: &models.SourceLocation{Path: "db.go", Line: 40}},
		models.Finding{Severity: models.SeverityLow, Category: "style", Message: "long line"},
	)
	require.NoError(t, store.Record(ctx, result))

	got, err := store.Get(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, result.TaskID, got.TaskID)
	assert.Equal(t, models.TaskScanProject, got.TaskType)
	assert.Equal(t, models.StageCompleted, got.FinalStage)
	assert.True(t, got.Success)
	assert.Equal(t, "# Report", got.ReportText)
	assert.Equal(t, map[string]int{"graph": 1}, got.RetryCounts)
	assert.Equal(t, 3*time.Second, got.Duration)
	assert.True(t, got.CompletedAt.Equal(now), "completed_at %v", got.CompletedAt)
	assert.Nil(t, got.Error)

	require.Len(t, got.Findings, 2)
	assert.Equal(t, "sql injection", got.Findings[0].Message)
	require.NotNil(t, got.Findings[0].Location)
	assert.Equal(t, "db.go", got.Findings[0].Location.Path)
	assert.Equal(t, 40, got.Findings[0].Location.Line)
	assert.Nil(t, got.Findings[1].Location)
}

func TestRecordFailedExecution(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	result := completedResult("exec-f", "/srv/repo", time.Now())
	result.TaskType = models.TaskReviewPR
	result.PRID = "17"
	result.Success = false
	result.FinalStage = models.StageFailed
	result.ErrorCount = 4
	result.Error = &models.ErrorDetail{
		Kind:    models.ErrorKindAgentUnavailable,
		Message: "connection refused",
		Agent:   "cloner",
		Stage:   models.StageAcquiringData,
		Retries: 3,
	}
	require.NoError(t, store.Record(ctx, result))

	got, err := store.Get(ctx, "exec-f")
	require.NoError(t, err)
	assert.Equal(t, "17", got.PRID)
	assert.Equal(t, models.StageFailed, got.FinalStage)
	assert.Equal(t, 4, got.ErrorCount)
	require.NotNil(t, got.Error)
	assert.Equal(t, *result.Error, *got.Error)
	assert.Empty(t, got.Findings)
}

func TestRecordReplacesEarlierRecord(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	first := completedResult("exec-1", "/srv/repo", time.Now(),
		models.Finding{Severity: models.SeverityInfo, Message: "a"},
		models.Finding{Severity: models.SeverityInfo, Message: "b"},
	)
	require.NoError(t, store.Record(ctx, first))

	second := completedResult("exec-1", "/srv/repo", time.Now(),
		models.Finding{Severity: models.SeverityCritical, Message: "c"},
	)
	require.NoError(t, store.Record(ctx, second))

	got, err := store.Get(ctx, "exec-1")
	require.NoError(t, err)
	require.Len(t, got.Findings, 1)
	assert.Equal(t, "c", got.Findings[0].Message)
}

func TestGetUnknownExecution(t *testing.T) {
	store := setupTestStore(t)
	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordNil(t *testing.T) {
	store := setupTestStore(t)
	assert.Error(t, store.Record(context.Background(), nil))
}

func TestList(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Record(ctx, completedResult("old", "/srv/a", base,
		models.Finding{Severity: models.SeverityLow, Message: "x"})))
	require.NoError(t, store.Record(ctx, completedResult("mid", "/srv/b", base.Add(time.Hour))))
	require.NoError(t, store.Record(ctx, completedResult("new", "/srv/a", base.Add(2*time.Hour),
		models.Finding{Severity: models.SeverityHigh, Message: "y"},
		models.Finding{Severity: models.SeverityLow, Message: "z"})))

	tests := []struct {
		name string
		opts ListOptions
		want []string
	}{
		{"all newest first", ListOptions{}, []string{"new", "mid", "old"}},
		{"limit", ListOptions{Limit: 2}, []string{"new", "mid"}},
		{"by repository", ListOptions{Repository: "/srv/a"}, []string{"new", "old"}},
		{"unknown repository", ListOptions{Repository: "/srv/none"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := store.List(ctx, tt.opts)
			require.NoError(t, err)
			var ids []string
			for _, s := range list {
				ids = append(ids, s.ExecutionID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}

	list, err := store.List(ctx, ListOptions{Limit: 1})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].FindingCount)
	assert.Equal(t, models.StageCompleted, list[0].FinalStage)
	assert.Equal(t, 3*time.Second, list[0].Duration)
}

func TestSeverityTotals(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	now := time.Now()
	require.NoError(t, store.Record(ctx, completedResult("a", "/srv/a", now,
		models.Finding{Severity: models.SeverityHigh, Message: "1"},
		models.Finding{Severity: models.SeverityLow, Message: "2"})))
	require.NoError(t, store.Record(ctx, completedResult("b", "/srv/b", now,
		models.Finding{Severity: models.SeverityHigh, Message: "3"})))

	all, err := store.SeverityTotals(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"high": 2, "low": 1}, all)

	onlyA, err := store.SeverityTotals(ctx, "/srv/a")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"high": 1, "low": 1}, onlyA)
}

func TestFileStorePersists(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "nested", "history.db")

	store, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Record(ctx, completedResult("persisted", "/srv/repo", time.Now())))
	require.NoError(t, store.Close())

	reopened, err := NewStore(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "persisted")
	require.NoError(t, err)
	assert.Equal(t, "/srv/repo", got.Repository)
}
