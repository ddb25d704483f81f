package service

import (
	"context"
	"errors"
	"time"

	"reflow_oven/internal/logger"
	"reflow_oven/internal/reflow"
)

// Domain refusals of operator requests.
var (
	ErrRunInProgress = errors.New("a run is in progress")
	ErrResetRequired = errors.New("previous run has ended, reset the controller first")
	ErrNotTerminal   = errors.New("nothing to reset: controller is not in a terminal stage")
)

// controlPort is the part of the controller the operator services need.
type controlPort interface {
	Latest() (reflow.Snapshot, time.Time)
	Submit(ev reflow.OperatorEvent) error
}

// OvenService validates operator requests against the latest snapshot and
// queues them for the control loop.
type OvenService struct {
	ctl controlPort
	log *logger.Logger
}

func NewOvenService(ctl controlPort, log *logger.Logger) *OvenService {
	return &OvenService{ctl: ctl, log: log.Named("oven")}
}

// Start begins a run. The controller must be Idle with no latched fault.
func (s *OvenService) Start(ctx context.Context) error {
	st := s.state()
	switch {
	case st.Stage.Active():
		return ErrRunInProgress
	case st.Stage != reflow.StageIdle || st.FaultLatched:
		return ErrResetRequired
	}
	return s.submit(reflow.EventStart)
}

// Abort stops the active run with heaters off and the door closed. It is
// accepted in every stage: the snapshot may predate a Start still queued,
// and the machine ignores an Abort with no run to stop.
func (s *OvenService) Abort(ctx context.Context) error {
	return s.submit(reflow.EventAbort)
}

// Reset acknowledges a terminal stage and returns the controller to Idle.
func (s *OvenService) Reset(ctx context.Context) error {
	if !s.state().Stage.Terminal() {
		return ErrNotTerminal
	}
	return s.submit(reflow.EventReset)
}

func (s *OvenService) state() reflow.ControllerState {
	snap, _ := s.ctl.Latest()
	return snap.State
}

func (s *OvenService) submit(ev reflow.OperatorEvent) error {
	if err := s.ctl.Submit(ev); err != nil {
		s.log.Warnw("operator_event_rejected", "event", ev, "err", err)
		return err
	}
	s.log.Infow("operator_event_queued", "event", ev)
	return nil
}
