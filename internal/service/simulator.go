package service

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"reflow_oven/internal/reflow"
)

// ----------- Simulation defaults -----------
const (
	AmbientC            = 25.0  // ambient temperature °C
	HeaterRiseCPerSec   = 3.0   // °C per second at full power, before losses
	LossPerSec          = 0.005 // Newtonian loss coefficient, closed door
	DoorOpenLossPerSec  = 0.02  // extra loss with the door open
	FanLossPerSec       = 0.002 // extra loss with the convection fan on
	SensorNoiseC        = 0.25  // thermocouple noise, standard deviation
	defaultSimElements  = 2
	defaultSimStepLimit = time.Second
)

// SimulatorConfig describes the simulated oven plant.
type SimulatorConfig struct {
	AmbientC           float64 `mapstructure:"ambient_c"`
	HeaterRiseCPerSec  float64 `mapstructure:"heater_rise_c_per_sec"`
	LossPerSec         float64 `mapstructure:"loss_per_sec"`
	DoorOpenLossPerSec float64 `mapstructure:"door_open_loss_per_sec"`
	FanLossPerSec      float64 `mapstructure:"fan_loss_per_sec"`
	NoiseC             float64 `mapstructure:"noise_c"`
	Elements           int     `mapstructure:"elements"`
	Seed               int64   `mapstructure:"seed"`
}

// DefaultSimulatorConfig returns a small benchtop oven with two elements.
func DefaultSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		AmbientC:           AmbientC,
		HeaterRiseCPerSec:  HeaterRiseCPerSec,
		LossPerSec:         LossPerSec,
		DoorOpenLossPerSec: DoorOpenLossPerSec,
		FanLossPerSec:      FanLossPerSec,
		NoiseC:             SensorNoiseC,
		Elements:           defaultSimElements,
	}
}

// OvenSimulator is a first-order thermal model of the oven. It stands in for
// the I/O board: the controller samples it as a Sensor and switches it as
// Outputs, while Run advances the plant in the background.
type OvenSimulator struct {
	cfg SimulatorConfig

	mu       sync.Mutex
	rng      *rand.Rand
	tempC    float64
	elements []bool
	fan      bool
	doorOpen bool
	fault    reflow.FaultCode
	now      func() time.Time
}

var (
	_ reflow.Sensor  = (*OvenSimulator)(nil)
	_ reflow.Outputs = (*OvenSimulator)(nil)
)

// NewOvenSimulator returns a cold oven at ambient temperature.
func NewOvenSimulator(cfg SimulatorConfig) *OvenSimulator {
	def := DefaultSimulatorConfig()
	if cfg.HeaterRiseCPerSec <= 0 {
		cfg.HeaterRiseCPerSec = def.HeaterRiseCPerSec
	}
	if cfg.LossPerSec <= 0 {
		cfg.LossPerSec = def.LossPerSec
	}
	if cfg.Elements <= 0 {
		cfg.Elements = def.Elements
	}
	if cfg.NoiseC < 0 {
		cfg.NoiseC = 0
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &OvenSimulator{
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(seed)),
		tempC:    cfg.AmbientC,
		elements: make([]bool, cfg.Elements),
		now:      time.Now,
	}
}

// Run advances the plant every tick until ctx is canceled.
func (s *OvenSimulator) Run(ctx context.Context, tick time.Duration) {
	t := time.NewTicker(tick)
	defer t.Stop()
	last := s.now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			elapsed := now.Sub(last)
			last = now
			// a stalled process must not teleport the plant
			if elapsed > defaultSimStepLimit {
				elapsed = defaultSimStepLimit
			}
			s.Advance(elapsed)
		}
	}
}

// Advance integrates the plant over dt.
func (s *OvenSimulator) Advance(dt time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	secs := dt.Seconds()
	if secs <= 0 {
		return
	}
	loss := s.cfg.LossPerSec
	if s.doorOpen {
		loss += s.cfg.DoorOpenLossPerSec
	}
	if s.fan {
		loss += s.cfg.FanLossPerSec
	}
	rise := s.cfg.HeaterRiseCPerSec * s.powerLocked()
	// exact solution of dT/dt = rise - loss*(T-ambient) over dt
	target := s.cfg.AmbientC + rise/loss
	s.tempC = target + (s.tempC-target)*math.Exp(-loss*secs)
}

// powerLocked is the fraction of elements energised.
func (s *OvenSimulator) powerLocked() float64 {
	on := 0
	for _, e := range s.elements {
		if e {
			on++
		}
	}
	return float64(on) / float64(len(s.elements))
}

// Read implements reflow.Sensor.
func (s *OvenSimulator) Read() reflow.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := reflow.Reading{TempC: s.tempC, Fault: s.fault, At: s.now()}
	if s.cfg.NoiseC > 0 {
		r.TempC += s.rng.NormFloat64() * s.cfg.NoiseC
	}
	return r
}

// TrueTemp returns the noiseless plant temperature.
func (s *OvenSimulator) TrueTemp() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tempC
}

// SetTemp forces the plant temperature.
func (s *OvenSimulator) SetTemp(c float64) {
	s.mu.Lock()
	s.tempC = c
	s.mu.Unlock()
}

// InjectFault makes subsequent reads carry the given thermocouple fault.
// SensorOK clears it.
func (s *OvenSimulator) InjectFault(code reflow.FaultCode) {
	s.mu.Lock()
	s.fault = code
	s.mu.Unlock()
}

func (s *OvenSimulator) SetElement(index int, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.elements) {
		return fmt.Errorf("simulated oven has no element %d", index)
	}
	s.elements[index] = on
	return nil
}

func (s *OvenSimulator) SetFan(on bool) error {
	s.mu.Lock()
	s.fan = on
	s.mu.Unlock()
	return nil
}

// SetDoor moves the door instantly; Hold leaves it where it is.
func (s *OvenSimulator) SetDoor(cmd reflow.DoorCommand) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch cmd {
	case reflow.DoorOpen:
		s.doorOpen = true
	case reflow.DoorClosed:
		s.doorOpen = false
	case reflow.DoorHold:
	default:
		return fmt.Errorf("unknown door command %q", cmd)
	}
	return nil
}

// DoorOpen reports the simulated door position.
func (s *OvenSimulator) DoorOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doorOpen
}
