package reflow

import (
	"time"

	"reflow_oven/internal/logger"
)

// Command is what the state machine asks of the actuators for one tick.
type Command struct {
	Duty float64     `json:"duty"`
	Door DoorCommand `json:"door"`
	Fan  bool        `json:"fan"`
}

// heatersOff is a command with every heating element de-energised.
func heatersOff(door DoorCommand) Command {
	return Command{Duty: 0, Door: door}
}

// Outputs is the switching collaborator: heating elements, convection fan and
// door servo. Implementations reach the position on their own schedule.
type Outputs interface {
	SetElement(index int, on bool) error
	SetFan(on bool) error
	SetDoor(cmd DoorCommand) error
}

// Actuator consumes one Command per control tick.
type Actuator interface {
	Apply(cmd Command)
}

// DriverConfig sets the time-proportioning period and the share of the
// requested duty given to each heating element.
type DriverConfig struct {
	Period        time.Duration `mapstructure:"period"`
	ElementScales []float64     `mapstructure:"element_scales"`
}

// DefaultDriverConfig drives two elements at full share over a 1 s period.
func DefaultDriverConfig() DriverConfig {
	return DriverConfig{
		Period:        time.Second,
		ElementScales: []float64{1.0, 1.0},
	}
}

// Driver turns a fractional duty into on/off switching of binary heating
// elements: within each period an element is on for duty×period and off for
// the rest. Only state changes are written to the Outputs.
type Driver struct {
	cfg DriverConfig
	out Outputs
	log *logger.Logger
	now func() time.Time

	periodStart time.Time
	elements    []bool
	fan         bool
	door        DoorCommand
	written     bool
}

var _ Actuator = (*Driver)(nil)

// NewDriver creates a driver writing to out.
func NewDriver(cfg DriverConfig, out Outputs, log *logger.Logger) *Driver {
	def := DefaultDriverConfig()
	if cfg.Period <= 0 {
		cfg.Period = def.Period
	}
	if len(cfg.ElementScales) == 0 {
		cfg.ElementScales = def.ElementScales
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Driver{
		cfg:      cfg,
		out:      out,
		log:      log,
		now:      time.Now,
		elements: make([]bool, len(cfg.ElementScales)),
	}
}

// Apply switches the outputs for the current position in the control period.
// A zero duty switches every element off at once rather than at period end.
func (d *Driver) Apply(cmd Command) {
	now := d.now()
	if d.periodStart.IsZero() || now.Sub(d.periodStart) >= d.cfg.Period || now.Before(d.periodStart) {
		d.periodStart = now
	}
	phase := now.Sub(d.periodStart)
	duty := clamp01(cmd.Duty)

	for i, scale := range d.cfg.ElementScales {
		d.setElement(i, elementOn(clamp01(duty*scale), phase, d.cfg.Period))
	}
	d.setFan(cmd.Fan)
	if cmd.Door != "" {
		d.setDoor(cmd.Door)
	}
	d.written = true
}

// Elements returns the last switched state of each heating element.
func (d *Driver) Elements() []bool {
	out := make([]bool, len(d.elements))
	copy(out, d.elements)
	return out
}

func (d *Driver) setElement(i int, on bool) {
	if d.written && d.elements[i] == on {
		return
	}
	if err := d.out.SetElement(i, on); err != nil {
		d.log.Errorw("actuator_element_write_failed", "err", err, "element", i, "on", on)
		return
	}
	d.elements[i] = on
}

func (d *Driver) setFan(on bool) {
	if d.written && d.fan == on {
		return
	}
	if err := d.out.SetFan(on); err != nil {
		d.log.Errorw("actuator_fan_write_failed", "err", err, "on", on)
		return
	}
	d.fan = on
}

func (d *Driver) setDoor(cmd DoorCommand) {
	if d.door == cmd {
		return
	}
	if err := d.out.SetDoor(cmd); err != nil {
		d.log.Errorw("actuator_door_write_failed", "err", err, "door", cmd)
		return
	}
	d.door = cmd
}

// elementOn reports whether an element with the given duty is energised at
// phase within the period.
func elementOn(duty float64, phase, period time.Duration) bool {
	switch {
	case duty <= 0:
		return false
	case duty >= 1:
		return true
	}
	return phase < time.Duration(duty*float64(period))
}

func clamp01(v float64) float64 {
	if v < 0 || v != v {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
