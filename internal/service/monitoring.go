package service

import (
	"context"
	"time"

	"reflow_oven/internal/models"
	"reflow_oven/internal/reflow"
)

type snapshotSource interface {
	Latest() (reflow.Snapshot, time.Time)
}

type MonitoringService struct {
	src snapshotSource
}

func NewMonitoringService(src snapshotSource) *MonitoringService {
	return &MonitoringService{src: src}
}

// GetState returns the snapshot of the last control tick.
func (s *MonitoringService) GetState(ctx context.Context) (models.OvenState, error) {
	snap, at := s.src.Latest()
	return toOvenState(snap, at), nil
}

func toOvenState(snap reflow.Snapshot, at time.Time) models.OvenState {
	st := snap.State
	return models.OvenState{
		Stage:               string(st.Stage),
		TempC:               snap.Temp.ValueC,
		SensorFault:         snap.Temp.Fault,
		SensorCode:          snap.Temp.Code.String(),
		BandMinC:            snap.Band.MinC,
		BandMaxC:            snap.Band.MaxC,
		StageElapsedSeconds: st.StageElapsed.Seconds(),
		RunElapsedSeconds:   st.RunElapsed.Seconds(),
		Duty:                snap.Command.Duty,
		Door:                string(snap.Command.Door),
		Fan:                 snap.Command.Fan,
		FaultLatched:        st.FaultLatched,
		FaultReason:         string(st.FaultReason),
		RunID:               st.RunID,
		IsRunning:           st.Stage.Active(),
		UpdatedAt:           toUTC(at),
	}
}

// toUTC normalizes non-zero time to UTC, preserving zero values.
func toUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}
