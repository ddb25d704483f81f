package reflow

import "time"

// RunOutcome is how a run ended.
type RunOutcome string

const (
	OutcomeNone    RunOutcome = ""
	OutcomeDone    RunOutcome = "DONE"
	OutcomeAborted RunOutcome = "ABORTED"
	OutcomeFaulted RunOutcome = "FAULTED"
)

// RecordSample is one control tick of a run.
type RecordSample struct {
	Offset time.Duration `json:"offset"`
	TempC  float64       `json:"temp_c"`
	Fault  bool          `json:"fault"`
	Stage  Stage         `json:"stage"`
	Duty   float64       `json:"duty"`
}

// StageBoundary is what was observed for one stage during a run. Start and
// End are run offsets; ReachedAt is relative to the stage start and only
// meaningful when Reached is set.
type StageBoundary struct {
	Stage     Stage         `json:"stage"`
	Start     time.Duration `json:"start"`
	End       time.Duration `json:"end"`
	ReachedAt time.Duration `json:"reached_at"`
	Reached   bool          `json:"reached"`
	Completed bool          `json:"completed"`
	StartC    float64       `json:"start_c"`
	PeakC     float64       `json:"peak_c"`
	TroughC   float64       `json:"trough_c"`

	seen bool
}

// Duration is how long the stage lasted.
func (b StageBoundary) Duration() time.Duration {
	return b.End - b.Start
}

// RunRecord is the time series of one run. It is created at Start, appended
// every active tick, finalized on the terminal transition and then handed to
// calibration exactly once.
type RunRecord struct {
	ID          string          `json:"id"`
	StartedAt   time.Time       `json:"started_at"`
	Samples     []RecordSample  `json:"samples"`
	Stages      []StageBoundary `json:"stages"`
	Outcome     RunOutcome      `json:"outcome"`
	FaultReason FaultReason     `json:"fault_reason,omitempty"`
	FaultStage  Stage           `json:"fault_stage,omitempty"`
	Duration    time.Duration   `json:"duration"`
	Finalized   bool            `json:"finalized"`
}

func newRunRecord(id string, startedAt time.Time) *RunRecord {
	return &RunRecord{
		ID:        id,
		StartedAt: startedAt,
		Samples:   make([]RecordSample, 0, 1024),
		Stages:    make([]StageBoundary, 0, len(ProcessStages)),
	}
}

// Boundary returns the observed boundary of a stage, if the run entered it.
func (r *RunRecord) Boundary(s Stage) (StageBoundary, bool) {
	for _, b := range r.Stages {
		if b.Stage == s {
			return b, true
		}
	}
	return StageBoundary{}, false
}

// PeakC is the highest valid temperature seen during the run.
func (r *RunRecord) PeakC() float64 {
	var peak float64
	for i, b := range r.Stages {
		if i == 0 || b.PeakC > peak {
			peak = b.PeakC
		}
	}
	return peak
}

func (r *RunRecord) beginStage(s Stage, at time.Duration, temp FilteredTemperature) {
	r.Stages = append(r.Stages, StageBoundary{Stage: s, Start: at, End: at})
	if !temp.Fault {
		r.current().StartC = temp.ValueC
	}
	r.observe(temp)
}

func (r *RunRecord) current() *StageBoundary {
	if len(r.Stages) == 0 {
		return nil
	}
	return &r.Stages[len(r.Stages)-1]
}

// observe folds a valid temperature into the current stage's extremes.
func (r *RunRecord) observe(temp FilteredTemperature) {
	b := r.current()
	if b == nil || temp.Fault {
		return
	}
	if !b.seen {
		b.PeakC, b.TroughC, b.seen = temp.ValueC, temp.ValueC, true
		return
	}
	if temp.ValueC > b.PeakC {
		b.PeakC = temp.ValueC
	}
	if temp.ValueC < b.TroughC {
		b.TroughC = temp.ValueC
	}
}

func (r *RunRecord) markReached(stageElapsed time.Duration) {
	if b := r.current(); b != nil && !b.Reached {
		b.Reached = true
		b.ReachedAt = stageElapsed
	}
}

func (r *RunRecord) endStage(at time.Duration, completed bool) {
	if b := r.current(); b != nil {
		b.End = at
		b.Completed = completed
	}
}

func (r *RunRecord) append(s RecordSample) {
	r.Samples = append(r.Samples, s)
}

func (r *RunRecord) finalize(outcome RunOutcome, reason FaultReason, stage Stage, at time.Duration) {
	r.Outcome = outcome
	r.FaultReason = reason
	if outcome == OutcomeFaulted {
		r.FaultStage = stage
	}
	r.Duration = at
	r.Finalized = true
}
