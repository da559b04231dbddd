package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/indexvault-go/internal/domain/lifecycle"
	"github.com/indexvault-go/internal/schema/ports"
	"github.com/indexvault-go/pkg/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var _ ports.LifecycleRepository = (*LifecycleRepository)(nil)

type LifecycleRepository struct {
	db *database.DB
}

func NewLifecycleRepository(db *database.DB) *LifecycleRepository {
	return &LifecycleRepository{db: db}
}

// Migrate creates or updates the lifecycle tables.
func Migrate(db *database.DB) error {
	if err := db.Migrate(&lifecycle.Record{}, &lifecycle.Transition{}, &lifecycle.Run{}); err != nil {
		return fmt.Errorf("failed to migrate lifecycle tables: %w", err)
	}
	return nil
}

func (r *LifecycleRepository) GetRecord(ctx context.Context, serviceName string) (*lifecycle.Record, error) {
	var record lifecycle.Record
	err := r.db.WithContext(ctx).
		Where("service_name = ?", serviceName).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &lifecycle.Record{ServiceName: serviceName, State: lifecycle.StateIdle}, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// SaveTransition upserts the record and appends the history entry in one
// transaction.
func (r *LifecycleRepository) SaveTransition(ctx context.Context, record *lifecycle.Record, transition *lifecycle.Transition) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "service_name"}},
			DoUpdates: clause.AssignmentColumns([]string{"state", "endpoint", "last_run_id", "updated_at"}),
		}).Create(record).Error; err != nil {
			return err
		}
		return tx.Create(transition).Error
	})
}

func (r *LifecycleRepository) SaveRun(ctx context.Context, run *lifecycle.Run) error {
	return r.db.WithContext(ctx).Save(run).Error
}

func (r *LifecycleRepository) ListTransitions(ctx context.Context, serviceName string, limit int) ([]lifecycle.Transition, error) {
	var transitions []lifecycle.Transition
	query := r.db.WithContext(ctx).
		Where("service_name = ?", serviceName).
		Order("created_at DESC").
		Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&transitions).Error; err != nil {
		return nil, err
	}
	return transitions, nil
}

func (r *LifecycleRepository) ListRuns(ctx context.Context, serviceName string, limit int) ([]lifecycle.Run, error) {
	var runs []lifecycle.Run
	query := r.db.WithContext(ctx).
		Where("service_name = ?", serviceName).
		Order("started_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}
