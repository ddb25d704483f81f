package service

import (
	"context"

	"reflow_oven/internal/logger"
	"reflow_oven/internal/metrics"
	"reflow_oven/internal/models"
	"reflow_oven/internal/reflow"
	"reflow_oven/internal/repository"
)

type Authorization interface {
	SignUp(ctx context.Context, username, password string) (int, error)
	GenerateToken(ctx context.Context, username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Oven exposes the operator requests: start, abort and reset.
type Oven interface {
	Start(ctx context.Context) error
	Abort(ctx context.Context) error
	Reset(ctx context.Context) error
}

// Monitoring exposes read-only controller state (stage, temperature, outputs, faults).
type Monitoring interface {
	GetState(ctx context.Context) (models.OvenState, error)
}

// EventLog exposes append-only logs with filtering access.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.OvenEvent, error)
}

// Calibration exposes learning progress and the operator reset.
type Calibration interface {
	Status(ctx context.Context) (models.CalibrationStatus, error)
	ResetLearning(ctx context.Context) error
}

// RunHistory exposes the summaries of finished runs.
type RunHistory interface {
	ListRuns(ctx context.Context, limit int) ([]models.RunSummary, error)
	GetRun(ctx context.Context, runID string) (*models.RunSummary, error)
}

// Controller runs the sampling and control loops until ctx is canceled.
type Controller interface {
	Run(ctx context.Context) error
}

// Service aggregates all sub-services.
type Service struct {
	Oven
	Monitoring
	EventLog
	Calibration
	RunHistory
	Controller
	Authorization
}

// Deps carries what the services need besides the repositories.
type Deps struct {
	Profile     *reflow.Profile
	Sensor      reflow.Sensor
	Outputs     reflow.Outputs
	Metrics     *metrics.Metrics
	Log         *logger.Logger
	Controller  ControllerConfig
	Filter      reflow.FilterConfig
	Driver      reflow.DriverConfig
	Calibration reflow.CalibrationConfig
	Auth        AuthConfig
}

// NewService wires the repository layer and the reflow core into concrete services.
func NewService(repos *repository.Repository, d Deps) *Service {
	log := d.Log
	if log == nil {
		log = logger.Nop()
	}
	calibrator := reflow.NewCalibrator(repos.Settings, d.Profile, d.Calibration, log.Named("calibrator"))
	ctl := NewControllerService(d.Controller, ControllerDeps{
		Profile:    d.Profile,
		Sensor:     d.Sensor,
		Actuator:   reflow.NewDriver(d.Driver, d.Outputs, log.Named("driver")),
		Filter:     reflow.NewFilter(d.Filter),
		Calibrator: calibrator,
		Events:     repos.EventRepo,
		Runs:       repos.RunRepo,
		Metrics:    d.Metrics,
		Log:        log,
	})

	return &Service{
		Oven:          NewOvenService(ctl, log),
		Monitoring:    NewMonitoringService(ctl),
		EventLog:      NewEventLogService(repos.EventRepo),
		Calibration:   NewCalibrationService(calibrator, ctl, repos.EventRepo, d.Metrics, log),
		RunHistory:    NewRunHistoryService(repos.RunRepo),
		Controller:    ctl,
		Authorization: NewAuthService(repos.Auth, d.Auth),
	}
}
