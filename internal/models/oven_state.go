package models

import "time"

// OvenState is the latest controller snapshot as served to operators.
type OvenState struct {
	Stage               string    `json:"stage"` // IDLE | PREHEAT | SOAK | REFLOW | COOLING | DONE | ABORTED | FAULTED
	TempC               float64   `json:"temp_c"`
	SensorFault         bool      `json:"sensor_fault"`
	SensorCode          string    `json:"sensor_code"`
	BandMinC            float64   `json:"band_min_c,omitempty"`
	BandMaxC            float64   `json:"band_max_c,omitempty"`
	StageElapsedSeconds float64   `json:"stage_elapsed_seconds"`
	RunElapsedSeconds   float64   `json:"run_elapsed_seconds"`
	Duty                float64   `json:"duty"`
	Door                string    `json:"door"`
	Fan                 bool      `json:"fan"`
	FaultLatched        bool      `json:"fault_latched"`
	FaultReason         string    `json:"fault_reason,omitempty"` // SENSOR_FAULT | OVER_CEILING | STAGE_TIMEOUT | RUN_TIMEOUT
	RunID               string    `json:"run_id,omitempty"`
	IsRunning           bool      `json:"is_running"`
	UpdatedAt           time.Time `json:"updated_at"`
}
