package reflow

// Stage is the controller's position in a reflow run. The four process
// stages are traversed once per run; Idle precedes a run and Done, Aborted
// and Faulted end it.
type Stage string

const (
	StageIdle    Stage = "IDLE"
	StagePreheat Stage = "PREHEAT"
	StageSoak    Stage = "SOAK"
	StageReflow  Stage = "REFLOW"
	StageCooling Stage = "COOLING"
	StageDone    Stage = "DONE"
	StageAborted Stage = "ABORTED"
	StageFaulted Stage = "FAULTED"
)

// ProcessStages lists the profile stages in traversal order.
var ProcessStages = []Stage{StagePreheat, StageSoak, StageReflow, StageCooling}

// HeatingStages are the stages whose duty is learned by calibration.
var HeatingStages = []Stage{StagePreheat, StageSoak, StageReflow}

// Active reports whether a run is in progress in this stage.
func (s Stage) Active() bool {
	switch s {
	case StagePreheat, StageSoak, StageReflow, StageCooling:
		return true
	}
	return false
}

// Terminal reports whether the stage ends a run and needs an operator reset.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageAborted || s == StageFaulted
}

// Heating reports whether the heaters are driven in this stage.
func (s Stage) Heating() bool {
	return s == StagePreheat || s == StageSoak || s == StageReflow
}

// next returns the stage that follows s; Cooling is followed by Done.
func (s Stage) next() Stage {
	for i, st := range ProcessStages {
		if st == s && i+1 < len(ProcessStages) {
			return ProcessStages[i+1]
		}
	}
	return StageDone
}

// FaultReason says why a run ended in Faulted.
type FaultReason string

const (
	FaultNone         FaultReason = ""
	FaultSensor       FaultReason = "SENSOR_FAULT"
	FaultOverCeiling  FaultReason = "OVER_CEILING"
	FaultStageTimeout FaultReason = "STAGE_TIMEOUT"
	FaultRunTimeout   FaultReason = "RUN_TIMEOUT"
)

// DoorCommand is the discrete position request for the door servo.
type DoorCommand string

const (
	DoorOpen   DoorCommand = "OPEN"
	DoorClosed DoorCommand = "CLOSED"
	DoorHold   DoorCommand = "HOLD"
)

// OperatorEvent is a discrete operator request delivered into a tick.
type OperatorEvent string

const (
	EventNone  OperatorEvent = ""
	EventStart OperatorEvent = "START"
	EventAbort OperatorEvent = "ABORT"
	EventReset OperatorEvent = "RESET"
)
