package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"reflow_oven/internal/logger"
	"reflow_oven/internal/metrics"
	"reflow_oven/internal/models"
	"reflow_oven/internal/reflow"
	"reflow_oven/internal/repository"

	"github.com/google/uuid"
)

// ControllerConfig sets the loop rates of the controller.
type ControllerConfig struct {
	TickInterval   time.Duration `mapstructure:"tick_interval"`
	SampleInterval time.Duration `mapstructure:"sample_interval"`
	InboxSize      int           `mapstructure:"inbox_size"`
}

// DefaultControllerConfig ticks at 20 Hz and samples at 100 Hz.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		TickInterval:   50 * time.Millisecond,
		SampleInterval: 10 * time.Millisecond,
		InboxSize:      8,
	}
}

// ErrControllerBusy is returned when the operator inbox is full. Abort is
// never refused.
var ErrControllerBusy = errors.New("controller busy, try again")

// ControllerDeps are the collaborators of the control loop.
type ControllerDeps struct {
	Profile    *reflow.Profile
	Sensor     reflow.Sensor
	Actuator   reflow.Actuator
	Filter     *reflow.Filter
	Calibrator *reflow.Calibrator
	Events     repository.EventRepo
	Runs       repository.RunRepo
	Metrics    *metrics.Metrics
	Log        *logger.Logger
}

type published struct {
	snap reflow.Snapshot
	at   time.Time
}

// ControllerService owns the state machine. A sampling goroutine feeds the
// filter and the control goroutine ticks the machine; everything that
// touches the machine happens on the control goroutine. Events and finished
// runs are handed to a writer goroutine, so no tick waits on storage.
type ControllerService struct {
	cfg        ControllerConfig
	sensor     reflow.Sensor
	filter     *reflow.Filter
	machine    *reflow.Machine
	calibrator *reflow.Calibrator
	events     repository.EventRepo
	runs       repository.RunRepo
	metrics    *metrics.Metrics
	log        *logger.Logger

	inbox   chan reflow.OperatorEvent
	abort   atomic.Bool
	backlog []reflow.OperatorEvent
	latest  atomic.Pointer[published]

	lastTick time.Time
	tickAt   time.Time
	pending  []models.OvenEvent
	finished []*reflow.RunRecord
	writes   *writeQueue
}

// NewControllerService wires the machine to its collaborators. Nothing runs
// until Run is called.
func NewControllerService(cfg ControllerConfig, d ControllerDeps) *ControllerService {
	def := DefaultControllerConfig()
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = def.SampleInterval
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = def.InboxSize
	}
	log := d.Log.Named("controller")

	c := &ControllerService{
		cfg:        cfg,
		sensor:     d.Sensor,
		filter:     d.Filter,
		calibrator: d.Calibrator,
		events:     d.Events,
		runs:       d.Runs,
		metrics:    d.Metrics,
		log:        log,
		inbox:      make(chan reflow.OperatorEvent, cfg.InboxSize),
		writes:     newWriteQueue(),
	}
	c.machine = reflow.NewMachine(d.Profile, d.Actuator, d.Log.Named("machine"))
	c.machine.SetCallbacks(c.onStageChange, c.onRunFinished)

	c.latest.Store(&published{
		snap: reflow.Snapshot{State: c.machine.State(), Temp: c.filter.Filtered()},
		at:   time.Now().UTC(),
	})
	return c
}

// Run loads calibration, then samples and ticks until ctx is canceled. On
// the way out it aborts any active run so the heaters are left off.
func (c *ControllerService) Run(ctx context.Context) error {
	if err := c.calibrator.Load(ctx); err != nil {
		return fmt.Errorf("restore calibration: %w", err)
	}
	c.metrics.ObserveCalibration(c.calibrator.Status())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.sampleLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		c.writeLoop(ctx)
	}()

	c.log.Infow("controller_started", "tick", c.cfg.TickInterval, "sample", c.cfg.SampleInterval)

	t := time.NewTicker(c.cfg.TickInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			c.tick(time.Now(), reflow.EventAbort)
			c.drainWrites(context.WithoutCancel(ctx))
			c.log.Infow("controller_stopped")
			return nil
		case now := <-t.C:
			begin := time.Now()
			c.Step(now)
			took := time.Since(begin)
			overrun := took > c.cfg.TickInterval
			c.metrics.ObserveTick(took.Seconds(), overrun)
			if overrun {
				c.log.Warnw("tick_overrun", "took", took, "interval", c.cfg.TickInterval)
			}
		}
	}
}

func (c *ControllerService) sampleLoop(ctx context.Context) {
	t := time.NewTicker(c.cfg.SampleInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.filter.Sample(c.sensor.Read())
		}
	}
}

// Step runs one control tick at now with the next operator event. What the
// tick produced for storage is queued for the writer goroutine.
func (c *ControllerService) Step(now time.Time) reflow.Snapshot {
	return c.tick(now, c.nextEvent())
}

func (c *ControllerService) tick(now time.Time, ev reflow.OperatorEvent) reflow.Snapshot {
	var elapsed time.Duration
	if !c.lastTick.IsZero() && now.After(c.lastTick) {
		elapsed = now.Sub(c.lastTick)
	}
	c.lastTick = now
	c.tickAt = now.UTC()

	snap := c.machine.Tick(reflow.TickInput{
		Temp:    c.filter.Filtered(),
		Elapsed: elapsed,
		Event:   ev,
		Now:     now,
	})
	c.latest.Store(&published{snap: snap, at: c.tickAt})
	c.metrics.ObserveSnapshot(snap)

	c.handOff()
	return snap
}

// nextEvent drains the inbox. A pending Abort wins and discards everything
// queued; other events are delivered one per tick in order.
func (c *ControllerService) nextEvent() reflow.OperatorEvent {
drain:
	for {
		select {
		case ev := <-c.inbox:
			c.backlog = append(c.backlog, ev)
		default:
			break drain
		}
	}
	if c.abort.Swap(false) {
		c.backlog = c.backlog[:0]
		return reflow.EventAbort
	}
	if len(c.backlog) == 0 {
		return reflow.EventNone
	}
	ev := c.backlog[0]
	c.backlog = c.backlog[1:]
	return ev
}

// Submit queues an operator event for the next tick. It never blocks. An
// Abort is latched outside the inbox so a full inbox cannot refuse it.
func (c *ControllerService) Submit(ev reflow.OperatorEvent) error {
	if ev == reflow.EventAbort {
		c.abort.Store(true)
		return nil
	}
	select {
	case c.inbox <- ev:
		return nil
	default:
		return ErrControllerBusy
	}
}

// Latest returns the snapshot of the last tick and when it was taken.
func (c *ControllerService) Latest() (reflow.Snapshot, time.Time) {
	p := c.latest.Load()
	return p.snap, p.at
}

func (c *ControllerService) onStageChange(from, to reflow.Stage, st reflow.ControllerState) {
	meta := map[string]any{
		"from":          string(from),
		"to":            string(to),
		"run_elapsed_s": st.RunElapsed.Seconds(),
	}
	ev := models.OvenEvent{
		EventID:     uuid.NewString(),
		OccurredAt:  c.tickAt,
		Type:        models.EventStageChange,
		RunID:       st.RunID,
		Description: fmt.Sprintf("%s -> %s", from, to),
		Metadata:    meta,
	}
	switch {
	case from == reflow.StageIdle && to == reflow.StagePreheat:
		ev.Type, ev.Description = models.EventStart, "run started"
	case to == reflow.StageIdle:
		ev.Type, ev.Description = models.EventReset, "controller reset"
	case to == reflow.StageAborted:
		ev.Type, ev.Description = models.EventAbort, "run aborted in "+string(from)
	case to == reflow.StageFaulted:
		ev.Type = models.EventFault
		ev.Description = fmt.Sprintf("fault %s in %s", st.FaultReason, from)
		meta["reason"] = string(st.FaultReason)
	}
	c.log.Infow("stage_changed", "run_id", st.RunID, "from", from, "to", to, "reason", st.FaultReason)
	c.pending = append(c.pending, ev)
}

func (c *ControllerService) onRunFinished(rec *reflow.RunRecord) {
	c.finished = append(c.finished, rec)
}

// handOff moves what the last tick produced onto the write queue.
func (c *ControllerService) handOff() {
	if len(c.pending) == 0 && len(c.finished) == 0 {
		return
	}
	items := make([]writeItem, 0, len(c.pending)+len(c.finished))
	for i := range c.pending {
		ev := c.pending[i]
		items = append(items, writeItem{event: &ev, at: c.tickAt})
	}
	for _, rec := range c.finished {
		items = append(items, writeItem{run: rec, at: c.tickAt})
	}
	c.pending = c.pending[:0]
	c.finished = c.finished[:0]
	c.writes.push(items...)
}

// writeLoop persists queued work until ctx is canceled. Writes already
// started finish with their own context; leftovers are drained by Run.
func (c *ControllerService) writeLoop(ctx context.Context) {
	wctx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.writes.ready:
			c.drainWrites(wctx)
		}
	}
}

// drainWrites persists everything queued so far in order. Store failures are
// logged and never reach the control loop.
func (c *ControllerService) drainWrites(ctx context.Context) {
	for items := c.writes.take(); len(items) > 0; items = c.writes.take() {
		for _, it := range items {
			if it.event != nil {
				c.appendEvent(ctx, *it.event, it.at)
				continue
			}
			c.finishRun(ctx, it.run, it.at)
		}
	}
}

func (c *ControllerService) finishRun(ctx context.Context, rec *reflow.RunRecord, at time.Time) {
	summary := summarizeRun(rec)
	c.log.Infow("run_finished", "run_id", rec.ID, "outcome", rec.Outcome,
		"reason", rec.FaultReason, "duration", rec.Duration, "peak_c", summary.PeakC)
	c.metrics.RunFinished(rec.Outcome, rec.FaultReason)

	if err := c.runs.Save(ctx, summary); err != nil {
		c.log.Errorw("run_save_failed", "err", err, "run_id", rec.ID)
	}
	c.appendEvent(ctx, models.OvenEvent{
		Type:        models.EventRunFinished,
		RunID:       rec.ID,
		Description: "run finished: " + string(rec.Outcome),
		Metadata: map[string]any{
			"outcome":    string(rec.Outcome),
			"reason":     string(rec.FaultReason),
			"duration_s": rec.Duration.Seconds(),
			"peak_c":     summary.PeakC,
		},
	}, at)

	eval, err := c.calibrator.Evaluate(ctx, rec)
	if err != nil {
		c.log.Errorw("calibration_evaluate_failed", "err", err, "run_id", rec.ID)
		return
	}
	c.metrics.ObserveCalibration(c.calibrator.Status())
	if eval.Skipped || eval.Duplicate {
		c.log.Infow("calibration_skipped", "run_id", rec.ID, "reason", eval.SkipReason, "duplicate", eval.Duplicate)
		return
	}
	c.appendEvent(ctx, models.OvenEvent{
		Type:        models.EventCalibration,
		RunID:       rec.ID,
		Description: calibrationDescription(eval),
		Metadata: map[string]any{
			"complete":    eval.Complete,
			"changed":     eval.Changed,
			"adjustments": eval.Adjustments,
		},
	}, at)
}

func (c *ControllerService) appendEvent(ctx context.Context, ev models.OvenEvent, at time.Time) {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = at
	}
	if err := c.events.Append(ctx, ev); err != nil {
		c.log.Errorw("event_append_failed", "err", err, "type", ev.Type, "run_id", ev.RunID)
	}
}

func calibrationDescription(eval reflow.Evaluation) string {
	switch {
	case eval.Complete:
		return "calibration complete"
	case eval.Changed:
		return "learned duty adjusted"
	}
	return "learned duty unchanged"
}

// summarizeRun condenses a finalized record for the run history.
func summarizeRun(rec *reflow.RunRecord) models.RunSummary {
	s := models.RunSummary{
		RunID:           rec.ID,
		StartedAt:       rec.StartedAt.UTC(),
		FinishedAt:      rec.StartedAt.Add(rec.Duration).UTC(),
		Outcome:         string(rec.Outcome),
		FaultReason:     string(rec.FaultReason),
		FaultStage:      string(rec.FaultStage),
		DurationSeconds: rec.Duration.Seconds(),
		PeakC:           rec.PeakC(),
		Samples:         len(rec.Samples),
		Stages:          make([]models.StageSummary, 0, len(rec.Stages)),
	}
	for _, b := range rec.Stages {
		st := models.StageSummary{
			Stage:        string(b.Stage),
			StartSeconds: b.Start.Seconds(),
			EndSeconds:   b.End.Seconds(),
			Reached:      b.Reached,
			Completed:    b.Completed,
			StartC:       b.StartC,
			PeakC:        b.PeakC,
			TroughC:      b.TroughC,
		}
		if b.Reached {
			st.ReachedAtSeconds = b.ReachedAt.Seconds()
		}
		s.Stages = append(s.Stages, st)
	}
	return s
}

// writeItem is one unit of storage work: an event or a finished run.
type writeItem struct {
	event *models.OvenEvent
	run   *reflow.RunRecord
	at    time.Time
}

// writeQueue is an unbounded FIFO between the control goroutine and the
// writer. push never blocks on storage; ready signals pending work.
type writeQueue struct {
	mu    sync.Mutex
	items []writeItem
	ready chan struct{}
}

func newWriteQueue() *writeQueue {
	return &writeQueue{ready: make(chan struct{}, 1)}
}

func (q *writeQueue) push(items ...writeItem) {
	q.mu.Lock()
	q.items = append(q.items, items...)
	q.mu.Unlock()
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *writeQueue) take() []writeItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}
