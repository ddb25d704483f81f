package service

import (
	"context"
	"errors"
	"strings"

	"reflow_oven/internal/models"
	"reflow_oven/internal/repository"
)

const maxRunListLimit = 500

// ErrRunNotFound is returned for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

type RunHistoryService struct {
	runRepo repository.RunRepo
}

func NewRunHistoryService(runRepo repository.RunRepo) *RunHistoryService {
	return &RunHistoryService{runRepo: runRepo}
}

// ListRuns returns the most recent runs first. A non-positive limit uses the
// store's default page size.
func (s *RunHistoryService) ListRuns(ctx context.Context, limit int) ([]models.RunSummary, error) {
	if limit > maxRunListLimit {
		limit = maxRunListLimit
	}
	return s.runRepo.List(ctx, limit)
}

func (s *RunHistoryService) GetRun(ctx context.Context, runID string) (*models.RunSummary, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil, ErrRunNotFound
	}
	run, err := s.runRepo.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, ErrRunNotFound
	}
	return run, nil
}
