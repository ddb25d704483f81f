package reflow

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Band is the acceptable temperature range of a stage.
type Band struct {
	MinC float64 `yaml:"min_c" json:"min_c"`
	MaxC float64 `yaml:"max_c" json:"max_c"`
}

// Predicate is the temperature condition that lets a stage advance.
type Predicate string

const (
	PredicateReachMax     Predicate = "reach_max"      // temperature >= band max
	PredicateReachMin     Predicate = "reach_min"      // temperature >= band min
	PredicateFallBelowMax Predicate = "fall_below_max" // temperature <= band max
)

// StageSpec is the fixed definition of one process stage.
type StageSpec struct {
	Band        Band          `yaml:"band"`
	MinDuration time.Duration `yaml:"min_duration"`
	MaxDuration time.Duration `yaml:"max_duration"`
	Predicate   Predicate     `yaml:"predicate"`
	Door        DoorCommand   `yaml:"door"`
	InitialDuty float64       `yaml:"initial_duty"`
}

// satisfied evaluates the stage predicate against a temperature.
func (s StageSpec) satisfied(tempC float64) bool {
	switch s.Predicate {
	case PredicateReachMin:
		return tempC >= s.Band.MinC
	case PredicateFallBelowMax:
		return tempC <= s.Band.MaxC
	default:
		return tempC >= s.Band.MaxC
	}
}

// target is the temperature the predicate is waiting for.
func (s StageSpec) target() float64 {
	if s.Predicate == PredicateReachMin {
		return s.Band.MinC
	}
	return s.Band.MaxC
}

// StageParams are the oven-specific values learned for one heating stage.
type StageParams struct {
	Duty         float64       `json:"duty"`
	TimeToTarget time.Duration `json:"time_to_target"`
}

// LearnedParameters holds StageParams for every heating stage.
type LearnedParameters map[Stage]StageParams

// Clone returns an independent copy.
func (lp LearnedParameters) Clone() LearnedParameters {
	out := make(LearnedParameters, len(lp))
	for k, v := range lp {
		out[k] = v
	}
	return out
}

// Validate checks duty ∈ [0,1] and time-to-target > 0 for every heating stage.
func (lp LearnedParameters) Validate() error {
	for _, s := range HeatingStages {
		p, ok := lp[s]
		if !ok {
			return fmt.Errorf("learned parameters: missing stage %s", s)
		}
		if p.Duty < 0 || p.Duty > 1 {
			return fmt.Errorf("learned parameters: %s duty %.3f outside [0,1]", s, p.Duty)
		}
		if p.TimeToTarget <= 0 {
			return fmt.Errorf("learned parameters: %s time to target must be positive", s)
		}
	}
	return nil
}

// Profile is the target thermal curve plus the oven's learned parameters.
// Everything except the learned parameters is fixed after loading; the
// learned parameters change only through the Calibrator.
type Profile struct {
	Name           string        `yaml:"name"`
	Preheat        StageSpec     `yaml:"preheat"`
	Soak           StageSpec     `yaml:"soak"`
	Reflow         StageSpec     `yaml:"reflow"`
	Cooling        StageSpec     `yaml:"cooling"`
	CeilingC       float64       `yaml:"ceiling_c"`
	MaxRunDuration time.Duration `yaml:"max_run_duration"`
	RestC          float64       `yaml:"rest_c"` // door returns to rest at or below this after Done

	mu      sync.RWMutex
	learned LearnedParameters
}

// DefaultProfile returns a lead-free profile with a 260 °C safety ceiling.
func DefaultProfile() *Profile {
	p := &Profile{
		Name: "lead-free",
		Preheat: StageSpec{
			Band:        Band{MinC: 100, MaxC: 150},
			MinDuration: 60 * time.Second,
			MaxDuration: 90 * time.Second,
			Predicate:   PredicateReachMax,
			Door:        DoorClosed,
			InitialDuty: 0.6,
		},
		Soak: StageSpec{
			Band:        Band{MinC: 150, MaxC: 200},
			MinDuration: 60 * time.Second,
			MaxDuration: 120 * time.Second,
			Predicate:   PredicateReachMax,
			Door:        DoorClosed,
			InitialDuty: 0.35,
		},
		Reflow: StageSpec{
			Band:        Band{MinC: 217, MaxC: 245},
			MinDuration: 30 * time.Second,
			MaxDuration: 90 * time.Second,
			Predicate:   PredicateReachMax,
			Door:        DoorClosed,
			InitialDuty: 0.9,
		},
		Cooling: StageSpec{
			Band:        Band{MinC: 50, MaxC: 150},
			MinDuration: 0,
			MaxDuration: 300 * time.Second,
			Predicate:   PredicateFallBelowMax,
			Door:        DoorHold,
		},
		CeilingC:       260,
		MaxRunDuration: 12 * time.Minute,
		RestC:          50,
	}
	p.learned = p.initialLearned()
	return p
}

// LoadProfile reads a YAML profile. A missing file yields the default
// profile; missing fields are filled from it.
func LoadProfile(filename string) (*Profile, error) {
	p := DefaultProfile()

	data, err := os.ReadFile(filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return p, nil
		}
		return nil, fmt.Errorf("read profile %q: %w", filename, err)
	}

	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", filename, err)
	}
	p.ensureDefaults()

	if err := p.Validate(); err != nil {
		return nil, err
	}
	p.learned = p.initialLearned()
	return p, nil
}

// ensureDefaults fills zero fields from the default profile.
func (p *Profile) ensureDefaults() {
	def := DefaultProfile()

	if p.Name == "" {
		p.Name = def.Name
	}
	for _, s := range ProcessStages {
		spec, ds := p.spec(s), def.spec(s)
		if spec.Band == (Band{}) {
			spec.Band = ds.Band
		}
		if spec.MaxDuration == 0 {
			spec.MinDuration, spec.MaxDuration = ds.MinDuration, ds.MaxDuration
		}
		if spec.Predicate == "" {
			spec.Predicate = ds.Predicate
		}
		if spec.Door == "" {
			spec.Door = ds.Door
		}
		if s.Heating() && spec.InitialDuty == 0 {
			spec.InitialDuty = ds.InitialDuty
		}
	}
	if p.CeilingC == 0 {
		p.CeilingC = def.CeilingC
	}
	if p.MaxRunDuration == 0 {
		p.MaxRunDuration = def.MaxRunDuration
	}
	if p.RestC == 0 {
		p.RestC = def.RestC
	}
}

// Validate checks the fixed part of the profile.
func (p *Profile) Validate() error {
	for _, s := range ProcessStages {
		spec := p.spec(s)
		if spec.Band.MinC >= spec.Band.MaxC {
			return fmt.Errorf("profile %s: band min %.1f must be below max %.1f", s, spec.Band.MinC, spec.Band.MaxC)
		}
		if spec.MinDuration < 0 || spec.MaxDuration <= spec.MinDuration {
			return fmt.Errorf("profile %s: duration bounds [%s,%s] are invalid", s, spec.MinDuration, spec.MaxDuration)
		}
		if spec.Band.MaxC >= p.CeilingC {
			return fmt.Errorf("profile %s: band max %.1f reaches the safety ceiling %.1f", s, spec.Band.MaxC, p.CeilingC)
		}
		switch spec.Predicate {
		case PredicateReachMax, PredicateReachMin, PredicateFallBelowMax:
		default:
			return fmt.Errorf("profile %s: unknown predicate %q", s, spec.Predicate)
		}
		if spec.InitialDuty < 0 || spec.InitialDuty > 1 {
			return fmt.Errorf("profile %s: initial duty %.2f outside [0,1]", s, spec.InitialDuty)
		}
	}
	if p.MaxRunDuration <= 0 {
		return errors.New("profile: max run duration must be positive")
	}
	return nil
}

// spec returns the definition of a process stage, or nil for other stages.
func (p *Profile) spec(s Stage) *StageSpec {
	switch s {
	case StagePreheat:
		return &p.Preheat
	case StageSoak:
		return &p.Soak
	case StageReflow:
		return &p.Reflow
	case StageCooling:
		return &p.Cooling
	}
	return nil
}

// BandFor returns the target band of a process stage.
func (p *Profile) BandFor(s Stage) (minC, maxC float64) {
	if spec := p.spec(s); spec != nil {
		return spec.Band.MinC, spec.Band.MaxC
	}
	return 0, 0
}

// DurationBounds returns the minimum and maximum dwell of a process stage.
func (p *Profile) DurationBounds(s Stage) (minD, maxD time.Duration) {
	if spec := p.spec(s); spec != nil {
		return spec.MinDuration, spec.MaxDuration
	}
	return 0, 0
}

// DutyFor returns the learned heater duty for a stage. Only heating stages
// ever get a non-zero duty.
func (p *Profile) DutyFor(s Stage) float64 {
	if !s.Heating() {
		return 0
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.learned[s].Duty
}

// Learned returns a copy of the current learned parameters.
func (p *Profile) Learned() LearnedParameters {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.learned.Clone()
}

// applyLearned replaces the learned parameters after validating them.
func (p *Profile) applyLearned(lp LearnedParameters) error {
	if err := lp.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	p.learned = lp.Clone()
	p.mu.Unlock()
	return nil
}

// initialLearned seeds learned parameters from the profile's initial duties,
// estimating time-to-target as the middle of each stage's dwell bounds.
func (p *Profile) initialLearned() LearnedParameters {
	lp := make(LearnedParameters, len(HeatingStages))
	for _, s := range HeatingStages {
		spec := p.spec(s)
		lp[s] = StageParams{
			Duty:         spec.InitialDuty,
			TimeToTarget: midpoint(spec.MinDuration, spec.MaxDuration),
		}
	}
	return lp
}

func midpoint(a, b time.Duration) time.Duration {
	return a + (b-a)/2
}
