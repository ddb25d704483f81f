package reflow

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"reflow_oven/internal/logger"
)

// CalibrationKey is the store key holding the whole calibration state.
const CalibrationKey = "reflow.calibration"

// Store is the durable key/value collaborator used by the Calibrator.
type Store interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
}

// CalibrationConfig tunes the damped hill-climb.
type CalibrationConfig struct {
	MaxStep        float64 `mapstructure:"max_step"`
	MinStep        float64 `mapstructure:"min_step"`
	RequiredStreak int     `mapstructure:"required_streak"`
	// OvershootToleranceC is how far a stage peak may exceed its band top
	// before an otherwise on-time stage is treated as running hot.
	OvershootToleranceC float64 `mapstructure:"overshoot_tolerance_c"`
}

// DefaultCalibrationConfig starts at a 10 % step, never goes below 2 %,
// tolerates 5 °C of overshoot and needs two consecutive in-bounds runs.
func DefaultCalibrationConfig() CalibrationConfig {
	return CalibrationConfig{
		MaxStep:             0.10,
		MinStep:             0.02,
		RequiredStreak:      2,
		OvershootToleranceC: 5,
	}
}

// minDuty is the additive floor so a near-zero duty can still grow.
const minDuty = 0.01

// recentRuns is how many evaluated run IDs the blob remembers.
const recentRuns = 16

// StepState is the per-stage damping memory.
type StepState struct {
	Cap           float64 `json:"cap"`
	LastDirection int     `json:"last_direction"`
}

// CalibrationState is persisted as one blob after every evaluated run. Keeping
// the evaluated run IDs next to the parameters makes a retried or replayed
// evaluation a no-op.
type CalibrationState struct {
	Learned      LearnedParameters   `json:"learned"`
	Steps        map[Stage]StepState `json:"steps"`
	Runs         int                 `json:"runs"`
	Streak       int                 `json:"streak"`
	Complete     bool                `json:"complete"`
	LastRunID    string              `json:"last_run_id,omitempty"`
	RecentRunIDs []string            `json:"recent_run_ids,omitempty"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

func (s CalibrationState) clone() CalibrationState {
	out := s
	out.Learned = s.Learned.Clone()
	out.Steps = make(map[Stage]StepState, len(s.Steps))
	for k, v := range s.Steps {
		out.Steps[k] = v
	}
	out.RecentRunIDs = append([]string(nil), s.RecentRunIDs...)
	return out
}

// evaluated reports whether id is among the remembered runs.
func (s CalibrationState) evaluated(id string) bool {
	if id == "" {
		return false
	}
	if id == s.LastRunID {
		return true
	}
	for _, seen := range s.RecentRunIDs {
		if seen == id {
			return true
		}
	}
	return false
}

// remember records id as the latest evaluated run, keeping the newest
// recentRuns IDs.
func (s *CalibrationState) remember(id string) {
	s.LastRunID = id
	s.RecentRunIDs = append(s.RecentRunIDs, id)
	if n := len(s.RecentRunIDs); n > recentRuns {
		s.RecentRunIDs = append([]string(nil), s.RecentRunIDs[n-recentRuns:]...)
	}
}

// StageAdjustment explains what one run did to one stage.
type StageAdjustment struct {
	Stage      Stage         `json:"stage"`
	Observed   time.Duration `json:"observed"`
	Projected  bool          `json:"projected"`
	Direction  int           `json:"direction"`
	Step       float64       `json:"step"`
	DutyBefore float64       `json:"duty_before"`
	DutyAfter  float64       `json:"duty_after"`
	InBounds   bool          `json:"in_bounds"`
	OvershootC float64       `json:"overshoot_c"`
	Reason     string        `json:"reason"`
}

// Evaluation is the result of feeding one RunRecord to the Calibrator.
type Evaluation struct {
	RunID       string            `json:"run_id"`
	Skipped     bool              `json:"skipped"`
	SkipReason  string            `json:"skip_reason,omitempty"`
	Duplicate   bool              `json:"duplicate"`
	Adjustments []StageAdjustment `json:"adjustments,omitempty"`
	Learned     LearnedParameters `json:"learned"`
	Complete    bool              `json:"complete"`
	Changed     bool              `json:"changed"`
}

// Calibrator adjusts the profile's learned duty from finished runs until the
// realised curve stays inside the stage bounds.
type Calibrator struct {
	store   Store
	profile *Profile
	cfg     CalibrationConfig
	log     *logger.Logger

	mu    sync.Mutex
	state CalibrationState
}

// NewCalibrator creates a calibrator seeded from the profile's current
// learned parameters. Call Load to restore persisted progress.
func NewCalibrator(store Store, p *Profile, cfg CalibrationConfig, log *logger.Logger) *Calibrator {
	def := DefaultCalibrationConfig()
	if cfg.MaxStep <= 0 || cfg.MaxStep > 1 {
		cfg.MaxStep = def.MaxStep
	}
	if cfg.MinStep <= 0 || cfg.MinStep > cfg.MaxStep {
		cfg.MinStep = math.Min(def.MinStep, cfg.MaxStep)
	}
	if cfg.RequiredStreak <= 0 {
		cfg.RequiredStreak = def.RequiredStreak
	}
	if cfg.OvershootToleranceC <= 0 {
		cfg.OvershootToleranceC = def.OvershootToleranceC
	}
	if log == nil {
		log = logger.Nop()
	}
	c := &Calibrator{store: store, profile: p, cfg: cfg, log: log}
	c.state = c.freshState(p.Learned())
	return c
}

func (c *Calibrator) freshState(lp LearnedParameters) CalibrationState {
	steps := make(map[Stage]StepState, len(HeatingStages))
	for _, s := range HeatingStages {
		steps[s] = StepState{Cap: c.cfg.MaxStep}
	}
	return CalibrationState{Learned: lp, Steps: steps}
}

// Load restores the persisted state and applies it to the profile. A missing
// or unreadable blob starts learning from the profile's initial duties.
func (c *Calibrator) Load(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, found, err := c.store.Get(ctx, CalibrationKey)
	if err != nil {
		return fmt.Errorf("load calibration: %w", err)
	}
	if !found {
		c.log.Infow("calibration_fresh", "profile", c.profile.Name)
		return nil
	}

	var st CalibrationState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		c.log.Warnw("calibration_blob_unreadable", "err", err)
		return nil
	}
	if err := st.Learned.Validate(); err != nil {
		c.log.Warnw("calibration_blob_invalid", "err", err)
		return nil
	}
	fresh := c.freshState(st.Learned)
	for _, s := range HeatingStages {
		if step, ok := st.Steps[s]; ok && step.Cap > 0 {
			fresh.Steps[s] = step
		}
	}
	st.Steps = fresh.Steps

	if err := c.profile.applyLearned(st.Learned); err != nil {
		return err
	}
	c.state = st
	c.log.Infow("calibration_loaded", "runs", st.Runs, "streak", st.Streak, "complete", st.Complete)
	return nil
}

// Status returns a copy of the current calibration state.
func (c *Calibrator) Status() CalibrationState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Config returns the tunables in effect.
func (c *Calibrator) Config() CalibrationConfig {
	return c.cfg
}

// ResetLearning discards learned progress and restarts from the profile's
// initial duties. Runs evaluated before the reset stay known.
func (c *Calibrator) ResetLearning(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.freshState(c.profile.initialLearned())
	next.LastRunID = c.state.LastRunID
	next.RecentRunIDs = append([]string(nil), c.state.RecentRunIDs...)
	next.UpdatedAt = time.Now().UTC()
	if err := c.commit(ctx, next); err != nil {
		return err
	}
	c.log.Infow("calibration_reset", "profile", c.profile.Name)
	return nil
}

// Evaluate feeds one finalized run into learning and persists the result.
// A record already evaluated is reported as a duplicate and changes nothing.
func (c *Calibrator) Evaluate(ctx context.Context, rec *RunRecord) (Evaluation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ev := Evaluation{Learned: c.state.Learned.Clone(), Complete: c.state.Complete}
	if rec == nil {
		ev.Skipped, ev.SkipReason = true, "no record"
		return ev, nil
	}
	ev.RunID = rec.ID

	switch {
	case !rec.Finalized:
		ev.Skipped, ev.SkipReason = true, "run not finalized"
		return ev, nil
	case c.state.evaluated(rec.ID):
		ev.Duplicate = true
		return ev, nil
	case rec.Outcome == OutcomeAborted:
		ev.Skipped, ev.SkipReason = true, "aborted runs are not used for learning"
		return ev, nil
	case c.state.Complete:
		ev.Skipped, ev.SkipReason = true, "learning complete"
		return ev, nil
	}

	next := c.state.clone()
	allInBounds := rec.Outcome == OutcomeDone
	for _, s := range HeatingStages {
		adj := c.adjust(rec, s, &next)
		ev.Adjustments = append(ev.Adjustments, adj)
		if !adj.InBounds {
			allInBounds = false
		}
		if adj.DutyAfter != adj.DutyBefore {
			ev.Changed = true
		}
	}

	if allInBounds {
		next.Streak++
	} else {
		next.Streak = 0
	}
	if next.Streak >= c.cfg.RequiredStreak {
		next.Complete = true
	}
	next.Runs++
	next.remember(rec.ID)
	next.UpdatedAt = time.Now().UTC()

	if err := c.commit(ctx, next); err != nil {
		return ev, err
	}

	ev.Learned = next.Learned.Clone()
	ev.Complete = next.Complete
	c.log.Infow("calibration_evaluated", "run_id", rec.ID, "outcome", rec.Outcome,
		"streak", next.Streak, "complete", next.Complete, "changed", ev.Changed)
	return ev, nil
}

// commit persists the state before making it current.
func (c *Calibrator) commit(ctx context.Context, next CalibrationState) error {
	blob, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode calibration: %w", err)
	}
	if err := c.store.Set(ctx, CalibrationKey, string(blob)); err != nil {
		return fmt.Errorf("save calibration: %w", err)
	}
	if err := c.profile.applyLearned(next.Learned); err != nil {
		return err
	}
	c.state = next
	return nil
}

// adjust derives the signal for one heating stage and applies it to next.
func (c *Calibrator) adjust(rec *RunRecord, s Stage, next *CalibrationState) StageAdjustment {
	spec := c.profile.spec(s)
	params := next.Learned[s]
	adj := StageAdjustment{Stage: s, DutyBefore: params.Duty, DutyAfter: params.Duty}

	b, entered := rec.Boundary(s)
	if !entered {
		adj.Reason = "stage not entered"
		return adj
	}
	if b.PeakC > spec.Band.MaxC {
		adj.OvershootC = b.PeakC - spec.Band.MaxC
	}

	faultedHere := rec.Outcome == OutcomeFaulted && rec.FaultStage == s
	step := next.Steps[s]
	mid := midpoint(spec.MinDuration, spec.MaxDuration)

	var needed float64
	switch {
	case faultedHere && rec.FaultReason == FaultOverCeiling:
		adj.Direction = -1
		adj.Reason = "safety ceiling reached"
		needed = step.Cap
	case faultedHere && rec.FaultReason == FaultStageTimeout:
		adj.Observed = projectTimeout(b, spec)
		adj.Projected = true
		adj.Direction = 1
		adj.Reason = "stage timed out"
		needed = relativeChange(adj.Observed, mid)
	case faultedHere:
		adj.Reason = fmt.Sprintf("no signal from %s", rec.FaultReason)
		return adj
	case !b.Reached:
		adj.Reason = "target not reached"
		return adj
	default:
		adj.Observed = b.ReachedAt
		needed = relativeChange(b.ReachedAt, mid)
		switch {
		case b.ReachedAt < spec.MinDuration:
			adj.Direction = -1
			adj.Reason = "reached target too early"
		case b.ReachedAt > spec.MaxDuration:
			adj.Direction = 1
			adj.Reason = "reached target too late"
		case adj.OvershootC > c.cfg.OvershootToleranceC:
			// On time but running hot: back off by the relative excess.
			adj.Direction = -1
			adj.Reason = "overshot band top"
			needed = overshootChange(adj.OvershootC, b.StartC, spec.Band.MaxC)
		default:
			adj.InBounds = true
			adj.Reason = "within bounds"
			return adj
		}
	}

	if step.LastDirection != 0 && step.LastDirection != adj.Direction {
		step.Cap = math.Max(step.Cap/2, c.cfg.MinStep)
	}
	adj.Step = math.Min(math.Max(needed, c.cfg.MinStep), step.Cap)
	step.Cap = adj.Step
	step.LastDirection = adj.Direction
	next.Steps[s] = step

	duty := params.Duty * (1 + float64(adj.Direction)*adj.Step)
	if adj.Direction > 0 && duty < params.Duty+minDuty {
		duty = params.Duty + minDuty
	}
	duty = clamp01(duty)
	adj.DutyAfter = duty

	if duty > 0 && params.Duty > 0 {
		base := params.TimeToTarget
		if adj.Observed > 0 {
			base = adj.Observed
		}
		params.TimeToTarget = time.Duration(float64(base) * params.Duty / duty)
	}
	if params.TimeToTarget <= 0 {
		params.TimeToTarget = mid
	}
	params.Duty = duty
	next.Learned[s] = params
	return adj
}

// projectTimeout estimates when a timed-out stage would have reached its
// target from the fraction of the rise achieved before the bound.
func projectTimeout(b StageBoundary, spec *StageSpec) time.Duration {
	required := spec.target() - b.StartC
	achieved := b.PeakC - b.StartC
	if required <= 0 || achieved <= 0 {
		return 2 * spec.MaxDuration
	}
	if achieved >= required {
		return spec.MaxDuration
	}
	return time.Duration(float64(spec.MaxDuration) * required / achieved)
}

// relativeChange is the fractional duty change that would move observed to
// the target time, assuming time-to-target is inversely proportional to duty.
func relativeChange(observed, target time.Duration) float64 {
	if target <= 0 {
		return 0
	}
	return math.Abs(float64(observed)/float64(target) - 1)
}

// overshootChange is the excess above the band top as a fraction of the rise
// the stage had to make.
func overshootChange(overshootC, startC, topC float64) float64 {
	rise := topC - startC
	if rise <= 0 {
		return 0
	}
	return overshootC / rise
}
