package models

import "time"

// RunSummary is the persisted history entry of one finished run.
type RunSummary struct {
	RunID           string         `json:"run_id"`
	StartedAt       time.Time      `json:"started_at"`
	FinishedAt      time.Time      `json:"finished_at"`
	Outcome         string         `json:"outcome"` // DONE | ABORTED | FAULTED
	FaultReason     string         `json:"fault_reason,omitempty"`
	FaultStage      string         `json:"fault_stage,omitempty"`
	DurationSeconds float64        `json:"duration_seconds"`
	PeakC           float64        `json:"peak_c"`
	Samples         int            `json:"samples"`
	Stages          []StageSummary `json:"stages"`
}

// StageSummary is what a run observed for one stage.
type StageSummary struct {
	Stage            string  `json:"stage"`
	StartSeconds     float64 `json:"start_seconds"`
	EndSeconds       float64 `json:"end_seconds"`
	Reached          bool    `json:"reached"`
	ReachedAtSeconds float64 `json:"reached_at_seconds,omitempty"`
	Completed        bool    `json:"completed"`
	StartC           float64 `json:"start_c"`
	PeakC            float64 `json:"peak_c"`
	TroughC          float64 `json:"trough_c"`
}

// CalibrationStatus reports learning progress.
type CalibrationStatus struct {
	Complete       bool               `json:"complete"`
	Runs           int                `json:"runs"`
	Streak         int                `json:"streak"`
	RequiredStreak int                `json:"required_streak"`
	LastRunID      string             `json:"last_run_id,omitempty"`
	UpdatedAt      time.Time          `json:"updated_at"`
	Stages         []StageCalibration `json:"stages"`
}

// StageCalibration is the learned state of one heating stage.
type StageCalibration struct {
	Stage               string  `json:"stage"`
	Duty                float64 `json:"duty"`
	TimeToTargetSeconds float64 `json:"time_to_target_seconds"`
	StepCap             float64 `json:"step_cap"`
	LastDirection       int     `json:"last_direction"`
}
