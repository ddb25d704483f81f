package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"reflow_oven/internal/hardware"
	"reflow_oven/internal/logger"
	"reflow_oven/internal/reflow"
	"reflow_oven/internal/service"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. REFLOW_DB_PATH.
const EnvPrefix = "REFLOW"

// Sensor sources.
const (
	SourceSim    = "sim"
	SourceSerial = "serial"
)

type Config struct {
	Port        string                   `mapstructure:"port"`
	Log         LogConfig                `mapstructure:"log"`
	DB          DBConfig                 `mapstructure:"db"`
	Auth        service.AuthConfig       `mapstructure:"auth"`
	Controller  service.ControllerConfig `mapstructure:"controller"`
	Filter      reflow.FilterConfig      `mapstructure:"filter"`
	Actuator    reflow.DriverConfig      `mapstructure:"actuator"`
	Sensor      SensorConfig             `mapstructure:"sensor"`
	Serial      hardware.Config          `mapstructure:"serial"`
	Simulator   service.SimulatorConfig  `mapstructure:"simulator"`
	Calibration reflow.CalibrationConfig `mapstructure:"calibration"`
	Profile     ProfileConfig            `mapstructure:"profile"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

type SensorConfig struct {
	Source string `mapstructure:"source"` // sim | serial
}

type ProfileConfig struct {
	Path string `mapstructure:"path"`
}

// SimTick is how often the simulated plant is advanced.
const SimTick = 10 * time.Millisecond

// Load reads config.yml from dir, applies REFLOW_* environment overrides and
// fills every unset key with its default. A missing file is not an error.
func Load(dir string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(dir)
	v.SetConfigName("config")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Sensor.Source = strings.ToLower(strings.TrimSpace(cfg.Sensor.Source))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	ctl := service.DefaultControllerConfig()
	flt := reflow.DefaultFilterConfig()
	drv := reflow.DefaultDriverConfig()
	sim := service.DefaultSimulatorConfig()
	cal := reflow.DefaultCalibrationConfig()

	v.SetDefault("port", "8080")
	v.SetDefault("log.level", logger.InfoLevel)
	v.SetDefault("db.path", "app.db")

	v.SetDefault("auth.signing_key", "")
	v.SetDefault("auth.token_ttl", time.Hour)

	v.SetDefault("controller.tick_interval", ctl.TickInterval)
	v.SetDefault("controller.sample_interval", ctl.SampleInterval)
	v.SetDefault("controller.inbox_size", ctl.InboxSize)

	v.SetDefault("filter.window", flt.Window)
	v.SetDefault("filter.min_plausible_c", flt.MinPlausibleC)
	v.SetDefault("filter.max_plausible_c", flt.MaxPlausibleC)

	v.SetDefault("actuator.period", drv.Period)
	v.SetDefault("actuator.element_scales", drv.ElementScales)

	v.SetDefault("sensor.source", SourceSim)
	v.SetDefault("serial.port", "")
	v.SetDefault("serial.baud_rate", hardware.DefaultBaudRate)
	v.SetDefault("serial.stale_after", hardware.DefaultStaleAfter)

	v.SetDefault("simulator.ambient_c", sim.AmbientC)
	v.SetDefault("simulator.heater_rise_c_per_sec", sim.HeaterRiseCPerSec)
	v.SetDefault("simulator.loss_per_sec", sim.LossPerSec)
	v.SetDefault("simulator.door_open_loss_per_sec", sim.DoorOpenLossPerSec)
	v.SetDefault("simulator.fan_loss_per_sec", sim.FanLossPerSec)
	v.SetDefault("simulator.noise_c", sim.NoiseC)
	v.SetDefault("simulator.elements", sim.Elements)
	v.SetDefault("simulator.seed", 0)

	v.SetDefault("calibration.max_step", cal.MaxStep)
	v.SetDefault("calibration.min_step", cal.MinStep)
	v.SetDefault("calibration.required_streak", cal.RequiredStreak)
	v.SetDefault("calibration.overshoot_tolerance_c", cal.OvershootToleranceC)

	v.SetDefault("profile.path", "configs/profile.yml")
}

// Validate rejects settings the process cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Port) == "" {
		errs = append(errs, errors.New("port is empty"))
	}
	if c.Controller.TickInterval <= 0 {
		errs = append(errs, errors.New("controller.tick_interval must be positive"))
	}
	if c.Controller.SampleInterval <= 0 {
		errs = append(errs, errors.New("controller.sample_interval must be positive"))
	}
	if c.Actuator.Period > 0 && c.Actuator.Period < c.Controller.TickInterval {
		errs = append(errs, errors.New("actuator.period is shorter than one control tick"))
	}
	switch c.Sensor.Source {
	case SourceSim:
	case SourceSerial:
		if strings.TrimSpace(c.Serial.Port) == "" {
			errs = append(errs, errors.New("serial.port is required for the serial sensor"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown sensor.source %q", c.Sensor.Source))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
