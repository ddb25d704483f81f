package repository

import (
	"context"
	"database/sql"

	"reflow_oven/internal/models"
	"reflow_oven/internal/reflow"
)

type Authorization interface {
	Create(ctx context.Context, username, hash string) (int, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

// SettingsRepo is the durable key/value store behind calibration.
type SettingsRepo interface {
	reflow.Store
}

type EventRepo interface {
	Append(ctx context.Context, e models.OvenEvent) error
	List(ctx context.Context, f models.EventFilter) ([]models.OvenEvent, error)
}

type RunRepo interface {
	Save(ctx context.Context, r models.RunSummary) error
	List(ctx context.Context, limit int) ([]models.RunSummary, error)
	Get(ctx context.Context, runID string) (*models.RunSummary, error)
}

type Repository struct {
	Settings  SettingsRepo
	EventRepo EventRepo
	RunRepo   RunRepo
	Auth      Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		Settings:  NewSettingsSQLite(db),
		EventRepo: NewEventSQLite(db),
		RunRepo:   NewRunSQLite(db),
		Auth:      NewUserRepository(db),
	}
}
