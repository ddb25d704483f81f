package reflow

import (
	"time"

	"reflow_oven/internal/logger"

	"github.com/google/uuid"
)

// TickInput is everything a control tick consumes.
type TickInput struct {
	Temp    FilteredTemperature
	Elapsed time.Duration // since the previous tick
	Event   OperatorEvent
	Now     time.Time
}

// ControllerState is owned by the Machine and reset at the start of every run.
// The fault latch is cleared only by an operator Reset.
type ControllerState struct {
	Stage        Stage         `json:"stage"`
	StageElapsed time.Duration `json:"stage_elapsed"`
	RunElapsed   time.Duration `json:"run_elapsed"`
	LastDuty     float64       `json:"last_duty"`
	FaultLatched bool          `json:"fault_latched"`
	FaultReason  FaultReason   `json:"fault_reason,omitempty"`
	RunID        string        `json:"run_id,omitempty"`
}

// Snapshot is the read-only view handed to the UI once per tick.
type Snapshot struct {
	State   ControllerState     `json:"state"`
	Temp    FilteredTemperature `json:"temp"`
	Command Command             `json:"command"`
	Band    Band                `json:"band"`
}

// Machine is the reflow run state machine. Tick is its only entry point for
// time, temperature and operator input; it never blocks and issues exactly
// one actuator command per call.
type Machine struct {
	profile *Profile
	act     Actuator
	log     *logger.Logger
	newID   func() string

	state      ControllerState
	record     *RunRecord
	doorRested bool
	// duties are the learned parameters captured at Start; calibration only
	// takes effect from the next run.
	duties LearnedParameters

	onStageChange func(from, to Stage, st ControllerState)
	onRunFinished func(rec *RunRecord)
}

// NewMachine creates an idle machine driving act from profile p.
func NewMachine(p *Profile, act Actuator, log *logger.Logger) *Machine {
	if log == nil {
		log = logger.Nop()
	}
	return &Machine{
		profile: p,
		act:     act,
		log:     log,
		newID:   uuid.NewString,
		state:   ControllerState{Stage: StageIdle},
	}
}

// SetCallbacks registers transition and run-completion observers. They run
// synchronously inside Tick after the actuator command has been issued.
func (m *Machine) SetCallbacks(onStageChange func(from, to Stage, st ControllerState), onRunFinished func(rec *RunRecord)) {
	m.onStageChange = onStageChange
	m.onRunFinished = onRunFinished
}

// State returns a copy of the controller state.
func (m *Machine) State() ControllerState {
	return m.state
}

// Tick runs one control step.
func (m *Machine) Tick(in TickInput) Snapshot {
	var (
		transitions []transition
		finished    *RunRecord
		cmd         Command
	)
	emit := func(from, to Stage) { transitions = append(transitions, transition{from, to}) }

	handled := false
	switch in.Event {
	case EventAbort:
		if m.state.Stage.Active() {
			from := m.state.Stage
			finished = m.finish(StageAborted, FaultNone)
			emit(from, StageAborted)
			cmd = heatersOff(DoorClosed)
			handled = true
		}
	case EventReset:
		if m.state.Stage.Terminal() {
			from := m.state.Stage
			m.state = ControllerState{Stage: StageIdle}
			emit(from, StageIdle)
			cmd = heatersOff(DoorClosed)
			handled = true
		}
	case EventStart:
		if m.state.Stage == StageIdle && !m.state.FaultLatched {
			m.startRun(in)
			emit(StageIdle, StagePreheat)
			in.Elapsed = 0
		}
	}

	if !handled {
		switch {
		case m.state.Stage.Active():
			cmd, finished = m.runActive(in, emit)
		case m.state.Stage == StageDone:
			cmd = m.doneCommand(in.Temp)
		case m.state.Stage == StageFaulted:
			cmd = heatersOff(DoorHold)
		default:
			cmd = heatersOff(DoorClosed)
		}
	}

	m.act.Apply(cmd)
	m.state.LastDuty = cmd.Duty

	for _, t := range transitions {
		if m.onStageChange != nil {
			m.onStageChange(t.from, t.to, m.state)
		}
	}
	if finished != nil && m.onRunFinished != nil {
		m.onRunFinished(finished)
	}

	snap := Snapshot{State: m.state, Temp: in.Temp, Command: cmd}
	if spec := m.profile.spec(m.state.Stage); spec != nil {
		snap.Band = spec.Band
	}
	return snap
}

type transition struct {
	from, to Stage
}

func (m *Machine) startRun(in TickInput) {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	id := m.newID()
	m.state = ControllerState{Stage: StagePreheat, RunID: id}
	m.record = newRunRecord(id, now.UTC())
	m.record.beginStage(StagePreheat, 0, in.Temp)
	m.doorRested = false
	m.duties = m.profile.Learned()
	m.log.Infow("run_started", "run_id", id, "temp_c", in.Temp.ValueC)
}

// runActive advances an in-progress run by one tick. Safety checks come
// first and dominate any stage advancement in the same tick.
func (m *Machine) runActive(in TickInput, emit func(from, to Stage)) (Command, *RunRecord) {
	elapsed := in.Elapsed
	if elapsed < 0 {
		elapsed = 0
	}
	m.state.StageElapsed += elapsed
	m.state.RunElapsed += elapsed
	temp := in.Temp
	stage := m.state.Stage

	if reason := m.safetyFault(temp); reason != FaultNone {
		m.record.append(RecordSample{Offset: m.state.RunElapsed, TempC: temp.ValueC, Fault: temp.Fault, Stage: stage})
		rec := m.fault(reason)
		emit(stage, StageFaulted)
		return heatersOff(DoorHold), rec
	}

	m.record.observe(temp)
	spec := m.profile.spec(stage)
	satisfied := spec.satisfied(temp.ValueC)
	if satisfied {
		m.record.markReached(m.state.StageElapsed)
	}

	var finished *RunRecord
	switch {
	case satisfied && m.state.StageElapsed >= spec.MinDuration:
		finished = m.advance(temp)
		emit(stage, m.state.Stage)
	case m.state.StageElapsed > spec.MaxDuration:
		m.log.Warnw("stage_timeout", "run_id", m.state.RunID, "stage", stage,
			"elapsed", m.state.StageElapsed, "max", spec.MaxDuration, "temp_c", temp.ValueC)
		finished = m.fault(FaultStageTimeout)
		emit(stage, StageFaulted)
	}

	var cmd Command
	switch m.state.Stage {
	case StageDone:
		cmd = m.doneCommand(temp)
	case StageFaulted:
		cmd = heatersOff(DoorHold)
	default:
		cmd = m.activeCommand(m.state.Stage, temp)
	}
	if finished == nil {
		m.record.append(RecordSample{Offset: m.state.RunElapsed, TempC: temp.ValueC, Stage: m.state.Stage, Duty: cmd.Duty})
	}
	return cmd, finished
}

// safetyFault evaluates the checks that end a run regardless of stage.
func (m *Machine) safetyFault(temp FilteredTemperature) FaultReason {
	switch {
	case !temp.Fault && temp.ValueC >= m.profile.CeilingC:
		return FaultOverCeiling
	case temp.Fault:
		return FaultSensor
	case m.state.RunElapsed > m.profile.MaxRunDuration:
		return FaultRunTimeout
	}
	return FaultNone
}

// activeCommand is the duty and door request for a process stage. Duty is
// held at zero while a heating stage sits at or above its band maximum.
func (m *Machine) activeCommand(stage Stage, temp FilteredTemperature) Command {
	spec := m.profile.spec(stage)
	var duty float64
	if stage.Heating() {
		duty = m.duties[stage].Duty
	}
	if stage.Heating() && temp.ValueC >= spec.Band.MaxC {
		duty = 0
	}
	return Command{Duty: duty, Door: spec.Door, Fan: true}
}

// doneCommand opens the door after a completed run and returns it to rest
// once the oven is down to the rest temperature.
func (m *Machine) doneCommand(temp FilteredTemperature) Command {
	if !m.doorRested && !temp.Fault && temp.ValueC <= m.profile.RestC {
		m.doorRested = true
		m.log.Infow("door_rested", "temp_c", temp.ValueC)
	}
	if m.doorRested {
		return heatersOff(DoorClosed)
	}
	return Command{Duty: 0, Door: DoorOpen, Fan: true}
}

// advance moves to the next stage, or to Done after Cooling.
func (m *Machine) advance(temp FilteredTemperature) *RunRecord {
	from := m.state.Stage
	m.record.endStage(m.state.RunElapsed, true)
	to := from.next()
	m.log.Infow("stage_advanced", "run_id", m.state.RunID, "from", from, "to", to,
		"stage_elapsed", m.state.StageElapsed, "temp_c", temp.ValueC)
	if to == StageDone {
		return m.finish(StageDone, FaultNone)
	}
	m.state.Stage = to
	m.state.StageElapsed = 0
	m.record.beginStage(to, m.state.RunElapsed, temp)
	return nil
}

func (m *Machine) fault(reason FaultReason) *RunRecord {
	m.state.FaultLatched = true
	m.state.FaultReason = reason
	m.log.Errorw("run_faulted", "run_id", m.state.RunID, "stage", m.state.Stage, "reason", reason,
		"run_elapsed", m.state.RunElapsed)
	return m.finish(StageFaulted, reason)
}

// finish moves to a terminal stage and detaches the finalized record.
func (m *Machine) finish(terminal Stage, reason FaultReason) *RunRecord {
	rec := m.record
	m.record = nil
	if rec != nil {
		completed := terminal == StageDone
		if !completed {
			rec.endStage(m.state.RunElapsed, false)
		}
		rec.finalize(outcomeFor(terminal), reason, m.state.Stage, m.state.RunElapsed)
	}
	m.state.Stage = terminal
	if terminal == StageDone {
		m.doorRested = false
		m.log.Infow("run_done", "run_id", m.state.RunID, "run_elapsed", m.state.RunElapsed)
	}
	if terminal == StageAborted {
		m.log.Infow("run_aborted", "run_id", m.state.RunID, "run_elapsed", m.state.RunElapsed)
	}
	return rec
}

func outcomeFor(s Stage) RunOutcome {
	switch s {
	case StageDone:
		return OutcomeDone
	case StageAborted:
		return OutcomeAborted
	case StageFaulted:
		return OutcomeFaulted
	}
	return OutcomeNone
}
