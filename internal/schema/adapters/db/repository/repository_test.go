package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/indexvault-go/internal/domain/lifecycle"
	"github.com/indexvault-go/pkg/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *database.DB {
	// Use in-memory SQLite for testing
	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	db := &database.DB{DB: gormDB}
	require.NoError(t, Migrate(db))
	return db
}

func TestLifecycleRepository_GetRecordDefaultsToIdle(t *testing.T) {
	repo := NewLifecycleRepository(setupTestDB(t))

	record, err := repo.GetRecord(context.Background(), "demo")
	require.NoError(t, err)
	assert.Equal(t, "demo", record.ServiceName)
	assert.Equal(t, lifecycle.StateIdle, record.State)
}

func TestLifecycleRepository_SaveTransition(t *testing.T) {
	repo := NewLifecycleRepository(setupTestDB(t))
	ctx := context.Background()

	record, err := repo.GetRecord(ctx, "demo")
	require.NoError(t, err)

	record.State = lifecycle.StateBackedUp
	record.LastRunID = "run-1"
	require.NoError(t, repo.SaveTransition(ctx, record, &lifecycle.Transition{
		ServiceName: "demo",
		FromState:   lifecycle.StateIdle,
		ToState:     lifecycle.StateBackedUp,
		Event:       lifecycle.EventBackup,
		RunID:       "run-1",
		CreatedAt:   time.Now().Add(-time.Minute),
	}))

	record.State = lifecycle.StateDeprovisioned
	record.Endpoint = ""
	require.NoError(t, repo.SaveTransition(ctx, record, &lifecycle.Transition{
		ServiceName: "demo",
		FromState:   lifecycle.StateBackedUp,
		ToState:     lifecycle.StateDeprovisioned,
		Event:       lifecycle.EventDeprovision,
		CreatedAt:   time.Now(),
	}))

	stored, err := repo.GetRecord(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StateDeprovisioned, stored.State)
	assert.Equal(t, "run-1", stored.LastRunID)

	history, err := repo.ListTransitions(ctx, "demo", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, lifecycle.EventDeprovision, history[0].Event)
	assert.Equal(t, lifecycle.EventBackup, history[1].Event)

	limited, err := repo.ListTransitions(ctx, "demo", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	other, err := repo.ListTransitions(ctx, "other", 0)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestLifecycleRepository_Runs(t *testing.T) {
	repo := NewLifecycleRepository(setupTestDB(t))
	ctx := context.Background()

	older := &lifecycle.Run{
		ID:          uuid.New().String(),
		ServiceName: "demo",
		Operation:   "backup",
		Succeeded:   []string{"a", "b"},
		Failed:      []string{"c"},
		Reasons:     []string{"storage upload \"c-definition.json\": throttled"},
		StartedAt:   time.Now().Add(-time.Hour),
		FinishedAt:  time.Now().Add(-time.Hour + time.Second),
	}
	newer := &lifecycle.Run{
		ID:          uuid.New().String(),
		ServiceName: "demo",
		Operation:   "restore",
		Succeeded:   []string{"a"},
		Failed:      []string{},
		Reasons:     []string{},
		StartedAt:   time.Now(),
		FinishedAt:  time.Now(),
	}
	require.NoError(t, repo.SaveRun(ctx, older))
	require.NoError(t, repo.SaveRun(ctx, newer))

	runs, err := repo.ListRuns(ctx, "demo", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "restore", runs[0].Operation)
	assert.Equal(t, []string{"a", "b"}, runs[1].Succeeded)
	assert.Equal(t, []string{"c"}, runs[1].Failed)
	assert.Len(t, runs[1].Reasons, 1)
}
