package service

import "time"

// LogFilter supports history filtering by time range, type and run.
type LogFilter struct {
	From  time.Time // inclusive; zero means no lower bound
	To    time.Time // inclusive; zero means no upper bound
	Type  string    // "", "START", "ABORT", "RESET", "STAGE_CHANGE", "FAULT", "RUN_FINISHED", "CALIBRATION"
	RunID string
	Limit int // 0 means the default page size
}
