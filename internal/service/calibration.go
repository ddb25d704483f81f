package service

import (
	"context"

	"reflow_oven/internal/logger"
	"reflow_oven/internal/metrics"
	"reflow_oven/internal/models"
	"reflow_oven/internal/reflow"
	"reflow_oven/internal/repository"
)

// CalibrationService exposes learning progress and lets the operator restart
// learning between runs.
type CalibrationService struct {
	calibrator *reflow.Calibrator
	src        snapshotSource
	eventRepo  repository.EventRepo
	metrics    *metrics.Metrics
	log        *logger.Logger
}

func NewCalibrationService(cal *reflow.Calibrator, src snapshotSource, eventRepo repository.EventRepo,
	m *metrics.Metrics, log *logger.Logger) *CalibrationService {
	return &CalibrationService{
		calibrator: cal,
		src:        src,
		eventRepo:  eventRepo,
		metrics:    m,
		log:        log.Named("calibration"),
	}
}

// Status reports the learned parameters and convergence progress.
func (s *CalibrationService) Status(ctx context.Context) (models.CalibrationStatus, error) {
	st := s.calibrator.Status()
	out := models.CalibrationStatus{
		Complete:       st.Complete,
		Runs:           st.Runs,
		Streak:         st.Streak,
		RequiredStreak: s.calibrator.Config().RequiredStreak,
		LastRunID:      st.LastRunID,
		UpdatedAt:      toUTC(st.UpdatedAt),
		Stages:         make([]models.StageCalibration, 0, len(reflow.HeatingStages)),
	}
	for _, stage := range reflow.HeatingStages {
		p := st.Learned[stage]
		step := st.Steps[stage]
		out.Stages = append(out.Stages, models.StageCalibration{
			Stage:               string(stage),
			Duty:                p.Duty,
			TimeToTargetSeconds: p.TimeToTarget.Seconds(),
			StepCap:             step.Cap,
			LastDirection:       step.LastDirection,
		})
	}
	return out, nil
}

// ResetLearning discards learned duty. It is refused while a run is active so
// a run is always evaluated against the parameters it started with.
func (s *CalibrationService) ResetLearning(ctx context.Context) error {
	snap, _ := s.src.Latest()
	if snap.State.Stage.Active() {
		return ErrRunInProgress
	}
	if err := s.calibrator.ResetLearning(ctx); err != nil {
		s.log.Errorw("calibration_reset_failed", "err", err)
		return err
	}
	s.metrics.ObserveCalibration(s.calibrator.Status())
	if err := s.eventRepo.Append(ctx, models.OvenEvent{
		Type:        models.EventCalibration,
		Description: "learning reset by operator",
	}); err != nil {
		s.log.Errorw("event_append_failed", "err", err, "type", models.EventCalibration)
	}
	return nil
}
