package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"carebear/pkg/models"
)

func sampleIssue(createdAt time.Time) *models.Issue {
	return &models.Issue{
		ID:   uuid.New().String(),
		Rank: models.RankCritical,
		Message: models.Message{
			Channel:   models.Channel{ID: "C1", Name: "oncall"},
			Timestamp: "1700000000.000100",
			Text:      "build is broken",
			Author:    models.Profile{ID: "U9", Name: "Ada", Handle: "ada", TeamID: "T1"},
		},
		ReportingUser: models.Profile{ID: "U1", Name: "Grace", Handle: "grace", TeamID: "T1"},
		Status:        models.StatusBacklog,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
}

// exerciseIssueStore runs the behaviour every IssueStore must share.
func exerciseIssueStore(t *testing.T, store IssueStore) {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Create and Get", func(t *testing.T) {
		issue := sampleIssue(base)
		require.NoError(t, store.Create(ctx, issue))

		retrieved, err := store.Get(ctx, issue.ID)
		require.NoError(t, err)
		assert.Equal(t, issue.ID, retrieved.ID)
		assert.Equal(t, issue.Rank, retrieved.Rank)
		assert.Equal(t, issue.Message, retrieved.Message)
		assert.Equal(t, issue.ReportingUser, retrieved.ReportingUser)
		assert.True(t, issue.CreatedAt.Equal(retrieved.CreatedAt))
	})

	t.Run("Create is idempotent by id", func(t *testing.T) {
		issue := sampleIssue(base)
		require.NoError(t, store.Create(ctx, issue))

		dup := *issue
		dup.Rank = models.RankLow
		require.NoError(t, store.Create(ctx, &dup))

		retrieved, err := store.Get(ctx, issue.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RankCritical, retrieved.Rank)
	})

	t.Run("List newest first", func(t *testing.T) {
		older := sampleIssue(base.Add(time.Hour))
		newer := sampleIssue(base.Add(2 * time.Hour))
		require.NoError(t, store.Create(ctx, older))
		require.NoError(t, store.Create(ctx, newer))

		issues, err := store.List(ctx)
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(issues), 2)
		assert.Equal(t, newer.ID, issues[0].ID)
		assert.Equal(t, older.ID, issues[1].ID)
	})

	t.Run("Update", func(t *testing.T) {
		issue := sampleIssue(base)
		require.NoError(t, store.Create(ctx, issue))

		issue.Status = models.StatusInProgress
		issue.Rank = models.RankHigh
		issue.UpdatedAt = base.Add(time.Minute)
		require.NoError(t, store.Update(ctx, issue, models.StatusBacklog))

		retrieved, err := store.Get(ctx, issue.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusInProgress, retrieved.Status)
		assert.Equal(t, models.RankHigh, retrieved.Rank)
		assert.True(t, base.Add(time.Minute).Equal(retrieved.UpdatedAt))
	})

	t.Run("Update with stale status conflicts", func(t *testing.T) {
		issue := sampleIssue(base)
		require.NoError(t, store.Create(ctx, issue))

		first := *issue
		first.Status = models.StatusInProgress
		require.NoError(t, store.Update(ctx, &first, models.StatusBacklog))

		second := *issue
		second.Status = models.StatusDone
		assert.ErrorIs(t, store.Update(ctx, &second, models.StatusBacklog), ErrConflict)

		retrieved, err := store.Get(ctx, issue.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusInProgress, retrieved.Status)
	})

	t.Run("Delete", func(t *testing.T) {
		issue := sampleIssue(base)
		require.NoError(t, store.Create(ctx, issue))
		require.NoError(t, store.Delete(ctx, issue.ID))

		_, err := store.Get(ctx, issue.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("missing ids", func(t *testing.T) {
		missing := sampleIssue(base)
		_, err := store.Get(ctx, missing.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, store.Update(ctx, missing, missing.Status), ErrNotFound)
		assert.ErrorIs(t, store.Delete(ctx, missing.ID), ErrNotFound)
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, store.Ping(ctx))
	})
}

func TestMemoryIssueStore(t *testing.T) {
	exerciseIssueStore(t, NewMemoryIssueStore())
}

func TestPostgresIssueStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test-db"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %s", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	store := NewPostgresIssueStore(pool)
	require.NoError(t, store.Migrate(ctx))
	// Migrate must be repeatable.
	require.NoError(t, store.Migrate(ctx))

	exerciseIssueStore(t, store)
}
