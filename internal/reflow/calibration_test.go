package reflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"reflow_oven/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	values map[string]string
	sets   int
	setErr error
}

func newMemStore() *memStore {
	return &memStore{values: map[string]string{}}
}

func (s *memStore) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *memStore) Set(_ context.Context, key, value string) error {
	if s.setErr != nil {
		return s.setErr
	}
	s.sets++
	s.values[key] = value
	return nil
}

type nopActuator struct{}

func (nopActuator) Apply(Command) {}

// plant heats at rate×duty °C/s for the stage the controller is in and cools
// at a fixed rate with the heaters off, so time-to-target is inversely
// proportional to duty.
type plant struct {
	rates    map[Stage]float64
	coolRate float64
	ambientC float64
}

func testPlant() plant {
	return plant{
		rates:    map[Stage]float64{StagePreheat: 5, StageSoak: 2, StageReflow: 1.2},
		coolRate: 1.5,
		ambientC: 25,
	}
}

func simulateRun(t *testing.T, p *Profile, id string, pl plant) *RunRecord {
	t.Helper()
	var rec *RunRecord
	m := NewMachine(p, nopActuator{}, logger.Nop())
	m.newID = func() string { return id }
	m.SetCallbacks(nil, func(r *RunRecord) { rec = r })

	const dt = 500 * time.Millisecond
	temp := pl.ambientC
	snap := m.Tick(TickInput{Temp: celsius(temp), Event: EventStart})
	for i := 0; rec == nil && i < 10000; i++ {
		if snap.Command.Duty > 0 {
			temp += pl.rates[snap.State.Stage] * snap.Command.Duty * dt.Seconds()
		} else {
			temp -= pl.coolRate * dt.Seconds()
		}
		snap = m.Tick(TickInput{Temp: celsius(temp), Elapsed: dt})
	}
	require.NotNil(t, rec, "run %s did not finish", id)
	return rec
}

func newTestCalibrator(p *Profile, store Store) *Calibrator {
	return NewCalibrator(store, p, DefaultCalibrationConfig(), logger.Nop())
}

// learn runs the plant until learning completes and returns the number of runs.
func learn(t *testing.T, p *Profile, c *Calibrator, pl plant, limit int) (int, []Evaluation) {
	t.Helper()
	var evals []Evaluation
	for n := 1; n <= limit; n++ {
		rec := simulateRun(t, p, fmt.Sprintf("run-%d", n), pl)
		ev, err := c.Evaluate(context.Background(), rec)
		require.NoError(t, err)
		evals = append(evals, ev)
		if ev.Complete {
			return n, evals
		}
	}
	return limit + 1, evals
}

func TestCalibrator_ConvergesWhenOvenRunsHot(t *testing.T) {
	p := DefaultProfile()
	learned := p.Learned()
	learned[StagePreheat] = StageParams{Duty: 0.5, TimeToTarget: 75 * time.Second}
	learned[StageSoak] = StageParams{Duty: 0.3, TimeToTarget: 90 * time.Second}
	learned[StageReflow] = StageParams{Duty: 0.8, TimeToTarget: 60 * time.Second}
	require.NoError(t, p.applyLearned(learned))

	store := newMemStore()
	c := newTestCalibrator(p, store)

	runs, evals := learn(t, p, c, testPlant(), 10)
	assert.Equal(t, 4, runs)

	first := evals[0].Adjustments[0]
	assert.Equal(t, StagePreheat, first.Stage)
	assert.Equal(t, -1, first.Direction)
	assert.Equal(t, 50*time.Second, first.Observed)
	assert.InDelta(t, 0.10, first.Step, 1e-9)
	assert.InDelta(t, 0.45, first.DutyAfter, 1e-9)
	assert.True(t, evals[0].Adjustments[1].InBounds)
	assert.True(t, evals[0].Adjustments[2].InBounds)

	for _, ev := range evals[len(evals)-2:] {
		assert.False(t, ev.Changed)
		for _, adj := range ev.Adjustments {
			assert.True(t, adj.InBounds, "%s in bounds", adj.Stage)
		}
	}

	// Parameters are fixed after completion.
	final := p.Learned()
	rec := simulateRun(t, p, "after", testPlant())
	ev, err := c.Evaluate(context.Background(), rec)
	require.NoError(t, err)
	assert.True(t, ev.Skipped)
	assert.Equal(t, final, p.Learned())
	assert.Equal(t, runs, store.sets)
}

func TestCalibrator_ConvergesFromTimeouts(t *testing.T) {
	p := DefaultProfile()
	learned := p.Learned()
	learned[StagePreheat] = StageParams{Duty: 0.2, TimeToTarget: 75 * time.Second}
	learned[StageSoak] = StageParams{Duty: 0.3, TimeToTarget: 90 * time.Second}
	learned[StageReflow] = StageParams{Duty: 0.8, TimeToTarget: 60 * time.Second}
	require.NoError(t, p.applyLearned(learned))

	c := newTestCalibrator(p, newMemStore())
	runs, evals := learn(t, p, c, testPlant(), 10)
	require.LessOrEqual(t, runs, 10)

	first := evals[0].Adjustments[0]
	assert.Equal(t, 1, first.Direction)
	assert.True(t, first.Projected)
	assert.Greater(t, first.Observed, 90*time.Second)
	assert.InDelta(t, 0.22, first.DutyAfter, 1e-9)
	assert.Equal(t, "stage not entered", evals[0].Adjustments[1].Reason)

	st := c.Status()
	assert.True(t, st.Complete)
	assert.Equal(t, 2, st.Streak)
	assert.Equal(t, runs, st.Runs)
	for i := 1; i < len(evals); i++ {
		prev, cur := evals[i-1].Learned[StagePreheat].Duty, evals[i].Learned[StagePreheat].Duty
		assert.GreaterOrEqual(t, cur, prev, "preheat duty only grows on an underpowered oven")
	}
}

func TestCalibrator_EvaluateIsIdempotent(t *testing.T) {
	p := DefaultProfile()
	store := newMemStore()
	c := newTestCalibrator(p, store)
	rec := stalledPreheat("run-a")

	first, err := c.Evaluate(context.Background(), rec)
	require.NoError(t, err)
	require.True(t, first.Changed)
	persisted := store.values[CalibrationKey]

	again, err := c.Evaluate(context.Background(), rec)
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.False(t, again.Changed)
	assert.Equal(t, first.Learned, again.Learned)
	assert.Equal(t, persisted, store.values[CalibrationKey])
	assert.Equal(t, 1, store.sets)

	// A restarted controller retrying the same record changes nothing either.
	restarted := DefaultProfile()
	c2 := newTestCalibrator(restarted, store)
	require.NoError(t, c2.Load(context.Background()))
	retry, err := c2.Evaluate(context.Background(), rec)
	require.NoError(t, err)
	assert.True(t, retry.Duplicate)
	assert.Equal(t, first.Learned, restarted.Learned())
	assert.Equal(t, 1, store.sets)
}

func TestCalibrator_SkipsAbortedAndUnfinalized(t *testing.T) {
	p := DefaultProfile()
	store := newMemStore()
	c := newTestCalibrator(p, store)
	before := p.Learned()

	aborted := stalledPreheat("aborted")
	aborted.Outcome, aborted.FaultReason, aborted.FaultStage = OutcomeAborted, FaultNone, ""
	ev, err := c.Evaluate(context.Background(), aborted)
	require.NoError(t, err)
	assert.True(t, ev.Skipped)

	open := stalledPreheat("open")
	open.Finalized = false
	ev, err = c.Evaluate(context.Background(), open)
	require.NoError(t, err)
	assert.True(t, ev.Skipped)

	ev, err = c.Evaluate(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, ev.Skipped)

	assert.Equal(t, before, p.Learned())
	assert.Zero(t, store.sets)
}

func TestCalibrator_CeilingFaultAlwaysDecreases(t *testing.T) {
	p := DefaultProfile()
	c := newTestCalibrator(p, newMemStore())

	rec := newRunRecord("hot", time.Now())
	rec.Stages = []StageBoundary{
		{Stage: StagePreheat, Reached: true, ReachedAt: 75 * time.Second, Completed: true, StartC: 25, PeakC: 150},
		{Stage: StageSoak, Reached: true, ReachedAt: 90 * time.Second, Completed: true, StartC: 150, PeakC: 200},
		// Slow to target, which alone would ask for more duty.
		{Stage: StageReflow, StartC: 200, PeakC: 261},
	}
	rec.finalize(OutcomeFaulted, FaultOverCeiling, StageReflow, 4*time.Minute)

	ev, err := c.Evaluate(context.Background(), rec)
	require.NoError(t, err)

	reflow := ev.Adjustments[2]
	assert.Equal(t, -1, reflow.Direction)
	assert.InDelta(t, 0.10, reflow.Step, 1e-9)
	assert.InDelta(t, 0.81, p.DutyFor(StageReflow), 1e-9)
	assert.InDelta(t, 16.0, reflow.OvershootC, 1e-9)
	assert.True(t, ev.Adjustments[0].InBounds)
	assert.True(t, ev.Adjustments[1].InBounds)
	assert.Zero(t, c.Status().Streak, "a faulted run never counts toward completion")
}

func TestCalibrator_SensorFaultGivesNoSignal(t *testing.T) {
	p := DefaultProfile()
	c := newTestCalibrator(p, newMemStore())

	rec := newRunRecord("sensor", time.Now())
	rec.Stages = []StageBoundary{{Stage: StagePreheat, StartC: 25, PeakC: 90}}
	rec.finalize(OutcomeFaulted, FaultSensor, StagePreheat, 40*time.Second)

	ev, err := c.Evaluate(context.Background(), rec)
	require.NoError(t, err)
	assert.False(t, ev.Changed)
	assert.Zero(t, ev.Adjustments[0].Direction)
	assert.Equal(t, 1, c.Status().Runs)
}

func TestCalibrator_StepHalvesOnReversal(t *testing.T) {
	p := DefaultProfile()
	c := newTestCalibrator(p, newMemStore())

	tests := []struct {
		reachedAt time.Duration
		direction int
		step      float64
	}{
		{135 * time.Second, 1, 0.10},
		{95 * time.Second, 1, 0.10},
		{45 * time.Second, -1, 0.05},
		{100 * time.Second, 1, 0.025},
		{50 * time.Second, -1, 0.02}, // floor
		{100 * time.Second, 1, 0.02},
	}
	for i, tt := range tests {
		adj := evalPreheatAt(t, c, fmt.Sprintf("r%d", i), tt.reachedAt)
		assert.Equal(t, tt.direction, adj.Direction, "run %d", i)
		assert.InDelta(t, tt.step, adj.Step, 1e-9, "run %d", i)
		assert.InDelta(t, tt.step, c.Status().Steps[StagePreheat].Cap, 1e-9, "run %d", i)
	}
}

func TestCalibrator_StepFollowsNeededChangeAndNeverGrows(t *testing.T) {
	p := DefaultProfile()
	learned := p.Learned()
	learned[StagePreheat] = StageParams{Duty: 0.3, TimeToTarget: 75 * time.Second}
	require.NoError(t, p.applyLearned(learned))
	c := NewCalibrator(newMemStore(), p, CalibrationConfig{MaxStep: 0.5, MinStep: 0.02, RequiredStreak: 2}, nil)

	adj := evalPreheatAt(t, c, "a", 100*time.Second)
	assert.InDelta(t, 1.0/3.0, adj.Step, 1e-9)
	assert.InDelta(t, 0.4, adj.DutyAfter, 1e-9)

	adj = evalPreheatAt(t, c, "b", 95*time.Second)
	assert.InDelta(t, 0.2666666, adj.Step, 1e-6)

	adj = evalPreheatAt(t, c, "c", 150*time.Second)
	assert.InDelta(t, 0.2666666, adj.Step, 1e-6, "cap does not grow back")

	// Projected time-to-target follows the new duty.
	lp := c.Status().Learned[StagePreheat]
	assert.InDelta(t, adj.DutyAfter, lp.Duty, 1e-12)
	assert.InDelta(t, float64(150*time.Second)*adj.DutyBefore/adj.DutyAfter, float64(lp.TimeToTarget), float64(time.Millisecond))
}

// evalPreheatAt evaluates a run whose Preheat reached its target at the
// given time, then ended on a sensor fault in Soak.
func evalPreheatAt(t *testing.T, c *Calibrator, id string, reachedAt time.Duration) StageAdjustment {
	t.Helper()
	rec := newRunRecord(id, time.Now())
	rec.Stages = []StageBoundary{
		{Stage: StagePreheat, Reached: true, ReachedAt: reachedAt, Completed: true, StartC: 25, PeakC: 150},
		{Stage: StageSoak, StartC: 150, PeakC: 160},
	}
	rec.finalize(OutcomeFaulted, FaultSensor, StageSoak, reachedAt+10*time.Second)
	ev, err := c.Evaluate(context.Background(), rec)
	require.NoError(t, err)
	require.Equal(t, StagePreheat, ev.Adjustments[0].Stage)
	return ev.Adjustments[0]
}

func TestCalibrator_PersistsBeforeCommitting(t *testing.T) {
	p := DefaultProfile()
	store := newMemStore()
	store.setErr = errors.New("disk full")
	c := newTestCalibrator(p, store)
	rec := stalledPreheat("run-x")

	_, err := c.Evaluate(context.Background(), rec)
	require.ErrorContains(t, err, "disk full")
	assert.Equal(t, 0.6, p.DutyFor(StagePreheat))
	assert.Zero(t, c.Status().Runs)

	store.setErr = nil
	ev, err := c.Evaluate(context.Background(), rec)
	require.NoError(t, err)
	assert.False(t, ev.Duplicate)
	assert.InDelta(t, 0.66, p.DutyFor(StagePreheat), 1e-9)
}

func TestCalibrator_LoadAndReset(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	saved := CalibrationState{
		Learned: LearnedParameters{
			StagePreheat: {Duty: 0.42, TimeToTarget: 70 * time.Second},
			StageSoak:    {Duty: 0.31, TimeToTarget: 80 * time.Second},
			StageReflow:  {Duty: 0.77, TimeToTarget: 50 * time.Second},
		},
		Runs:     7,
		Streak:   2,
		Complete: true,
	}
	blob, err := json.Marshal(saved)
	require.NoError(t, err)
	store.values[CalibrationKey] = string(blob)

	p := DefaultProfile()
	c := newTestCalibrator(p, store)
	require.NoError(t, c.Load(ctx))
	assert.Equal(t, 0.42, p.DutyFor(StagePreheat))
	st := c.Status()
	assert.True(t, st.Complete)
	assert.InDelta(t, 0.10, st.Steps[StageSoak].Cap, 1e-9)

	require.NoError(t, c.ResetLearning(ctx))
	assert.Equal(t, 0.6, p.DutyFor(StagePreheat))
	assert.False(t, c.Status().Complete)
	assert.Zero(t, c.Status().Runs)

	var persisted CalibrationState
	require.NoError(t, json.Unmarshal([]byte(store.values[CalibrationKey]), &persisted))
	assert.False(t, persisted.Complete)
	assert.Equal(t, 0.6, persisted.Learned[StagePreheat].Duty)
}

func TestCalibrator_LoadIgnoresCorruptBlob(t *testing.T) {
	store := newMemStore()
	store.values[CalibrationKey] = "{not json"
	p := DefaultProfile()
	c := newTestCalibrator(p, store)

	require.NoError(t, c.Load(context.Background()))
	assert.Equal(t, 0.6, p.DutyFor(StagePreheat))
}

// stalledPreheat is a run that timed out in Preheat having covered
// 90 of the 125 °C it needed.
func stalledPreheat(id string) *RunRecord {
	rec := newRunRecord(id, time.Now())
	rec.Stages = []StageBoundary{{Stage: StagePreheat, StartC: 25, PeakC: 115, End: 91 * time.Second}}
	rec.finalize(OutcomeFaulted, FaultStageTimeout, StagePreheat, 91*time.Second)
	return rec
}

func TestCalibrator_OlderRunReplayIsDuplicate(t *testing.T) {
	p := DefaultProfile()
	store := newMemStore()
	c := newTestCalibrator(p, store)
	ctx := context.Background()

	older, newer := stalledPreheat("run-a"), stalledPreheat("run-b")
	_, err := c.Evaluate(ctx, older)
	require.NoError(t, err)
	_, err = c.Evaluate(ctx, newer)
	require.NoError(t, err)
	duty := p.DutyFor(StagePreheat)

	replay, err := c.Evaluate(ctx, older)
	require.NoError(t, err)
	assert.True(t, replay.Duplicate)
	assert.Equal(t, duty, p.DutyFor(StagePreheat))
	assert.Equal(t, 2, store.sets)

	// Still known after a reset and after a restart.
	require.NoError(t, c.ResetLearning(ctx))
	restarted := newTestCalibrator(DefaultProfile(), store)
	require.NoError(t, restarted.Load(ctx))
	replay, err = restarted.Evaluate(ctx, older)
	require.NoError(t, err)
	assert.True(t, replay.Duplicate)
	assert.Zero(t, restarted.Status().Runs)
}

func TestCalibrator_RemembersBoundedRunHistory(t *testing.T) {
	c := newTestCalibrator(DefaultProfile(), newMemStore())
	ctx := context.Background()

	for i := 0; i < recentRuns+4; i++ {
		_, err := c.Evaluate(ctx, stalledPreheat(fmt.Sprintf("run-%02d", i)))
		require.NoError(t, err)
	}
	st := c.Status()
	require.Len(t, st.RecentRunIDs, recentRuns)
	assert.Equal(t, "run-04", st.RecentRunIDs[0])
	assert.Equal(t, fmt.Sprintf("run-%02d", recentRuns+3), st.LastRunID)
	assert.False(t, st.evaluated("run-03"))
	assert.True(t, st.evaluated("run-04"))
}

// doneRunWithPreheatPeak is a completed run with every heating stage on time,
// Preheat peaking at peakC.
func doneRunWithPreheatPeak(id string, peakC float64) *RunRecord {
	rec := newRunRecord(id, time.Now())
	rec.Stages = []StageBoundary{
		{Stage: StagePreheat, Reached: true, ReachedAt: 75 * time.Second, Completed: true, StartC: 25, PeakC: peakC},
		{Stage: StageSoak, Reached: true, ReachedAt: 90 * time.Second, Completed: true, StartC: 150, PeakC: 200},
		{Stage: StageReflow, Reached: true, ReachedAt: 60 * time.Second, Completed: true, StartC: 200, PeakC: 245},
		{Stage: StageCooling, Reached: true, Completed: true, StartC: 245, PeakC: 245},
	}
	rec.finalize(OutcomeDone, FaultNone, "", 6*time.Minute)
	return rec
}

func TestCalibrator_OvershootBlocksCompletion(t *testing.T) {
	p := DefaultProfile()
	c := newTestCalibrator(p, newMemStore())
	ctx := context.Background()

	ev, err := c.Evaluate(ctx, doneRunWithPreheatPeak("hot", 162))
	require.NoError(t, err)
	preheat := ev.Adjustments[0]
	assert.False(t, preheat.InBounds)
	assert.Equal(t, -1, preheat.Direction)
	assert.Equal(t, "overshot band top", preheat.Reason)
	assert.InDelta(t, 12.0, preheat.OvershootC, 1e-9)
	assert.InDelta(t, 0.096, preheat.Step, 1e-9)
	assert.InDelta(t, 0.6*(1-0.096), p.DutyFor(StagePreheat), 1e-9)
	assert.Zero(t, c.Status().Streak)

	ev, err = c.Evaluate(ctx, doneRunWithPreheatPeak("warm", 153))
	require.NoError(t, err)
	assert.True(t, ev.Adjustments[0].InBounds, "overshoot within tolerance")
	assert.InDelta(t, 3.0, ev.Adjustments[0].OvershootC, 1e-9)
	assert.False(t, ev.Changed)
	assert.Equal(t, 1, c.Status().Streak)
}
