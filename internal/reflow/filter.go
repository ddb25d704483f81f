package reflow

import (
	"math"
	"sync/atomic"
	"time"
)

// FaultCode is the sensor's own diagnosis of a reading.
type FaultCode uint8

const (
	SensorOK FaultCode = iota
	SensorOpen
	SensorShortGND
	SensorShortVCC
	SensorNoReading
)

func (c FaultCode) String() string {
	switch c {
	case SensorOK:
		return "OK"
	case SensorOpen:
		return "OPEN"
	case SensorShortGND:
		return "SHORT_GND"
	case SensorShortVCC:
		return "SHORT_VCC"
	case SensorNoReading:
		return "NO_READING"
	default:
		return "UNKNOWN"
	}
}

// Reading is one raw sample from the thermocouple front end.
type Reading struct {
	TempC float64
	Fault FaultCode
	At    time.Time
}

// Sensor is the sampling collaborator. Read must not block.
type Sensor interface {
	Read() Reading
}

// FilteredTemperature is the smoothed value consumed once per control tick.
type FilteredTemperature struct {
	ValueC  float64   `json:"value_c"`
	Fault   bool      `json:"fault"`
	Code    FaultCode `json:"code"`
	Samples int       `json:"samples"` // valid readings behind ValueC
}

// FilterConfig sizes the averaging window and the plausible range.
type FilterConfig struct {
	Window        int     `mapstructure:"window"`
	MinPlausibleC float64 `mapstructure:"min_plausible_c"`
	MaxPlausibleC float64 `mapstructure:"max_plausible_c"`
}

// DefaultFilterConfig returns a 16-sample window accepting -20..500 °C.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		Window:        16,
		MinPlausibleC: -20,
		MaxPlausibleC: 500,
	}
}

// Filter averages the most recent readings over a rolling window.
//
// Sample is called by exactly one producer (the sampling loop) and Filtered by
// exactly one consumer (the control tick). The producer owns the window; the
// consumer only ever sees immutable results published through an atomic
// pointer, so neither side waits for the other.
type Filter struct {
	cfg    FilterConfig
	window []Reading
	next   int
	count  int

	published atomic.Pointer[FilteredTemperature]
}

// NewFilter creates a filter that reports a NoReading fault until sampled.
func NewFilter(cfg FilterConfig) *Filter {
	def := DefaultFilterConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.MaxPlausibleC <= cfg.MinPlausibleC {
		cfg.MinPlausibleC, cfg.MaxPlausibleC = def.MinPlausibleC, def.MaxPlausibleC
	}

	f := &Filter{cfg: cfg, window: make([]Reading, cfg.Window)}
	f.published.Store(&FilteredTemperature{Fault: true, Code: SensorNoReading})
	return f
}

// Sample pushes a raw reading into the window and republishes the average.
func (f *Filter) Sample(r Reading) {
	f.window[f.next] = r
	f.next = (f.next + 1) % len(f.window)
	if f.count < len(f.window) {
		f.count++
	}

	out := f.average()
	f.published.Store(&out)
}

// Filtered returns the latest published average.
func (f *Filter) Filtered() FilteredTemperature {
	return *f.published.Load()
}

// average computes the mean of valid readings. An explicit fault code anywhere
// in the window faults the result; so does a window with no valid reading.
func (f *Filter) average() FilteredTemperature {
	var (
		sum   float64
		valid int
		code  = SensorOK
	)
	for i := 0; i < f.count; i++ {
		r := f.window[i]
		if r.Fault != SensorOK {
			code = r.Fault
			continue
		}
		if !f.plausible(r.TempC) {
			continue
		}
		sum += r.TempC
		valid++
	}

	out := FilteredTemperature{Samples: valid, Code: code}
	if valid > 0 {
		out.ValueC = sum / float64(valid)
	}
	switch {
	case code != SensorOK:
		out.Fault = true
	case valid == 0:
		out.Fault = true
		out.Code = SensorNoReading
	}
	return out
}

func (f *Filter) plausible(c float64) bool {
	if math.IsNaN(c) || math.IsInf(c, 0) {
		return false
	}
	return c >= f.cfg.MinPlausibleC && c <= f.cfg.MaxPlausibleC
}
