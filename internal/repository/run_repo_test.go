package repository

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"reflow_oven/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var runColumns = []string{"id", "started_at", "finished_at", "outcome", "fault_reason", "fault_stage", "duration_s", "peak_c", "samples", "stages"}

func sampleRun() models.RunSummary {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return models.RunSummary{
		RunID:           "run-1",
		StartedAt:       start,
		FinishedAt:      start.Add(91 * time.Second),
		Outcome:         "FAULTED",
		FaultReason:     "STAGE_TIMEOUT",
		FaultStage:      "PREHEAT",
		DurationSeconds: 91,
		PeakC:           118.5,
		Samples:         1820,
		Stages: []models.StageSummary{
			{Stage: "PREHEAT", EndSeconds: 91, StartC: 25, PeakC: 118.5, TroughC: 25},
		},
	}
}

func TestRunSQLite_Save(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRunSQLite(db)
	run := sampleRun()

	mock.ExpectExec(regexp.QuoteMeta(insertRunSQL)).
		WithArgs("run-1", run.StartedAt, run.FinishedAt, "FAULTED", "STAGE_TIMEOUT", "PREHEAT",
			91.0, 118.5, 1820,
			`[{"stage":"PREHEAT","start_seconds":0,"end_seconds":91,"reached":false,"completed":false,"start_c":25,"peak_c":118.5,"trough_c":25}]`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Save(ctx(t), run))
}

func TestRunSQLite_Save_DoneRunHasNullFaults(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRunSQLite(db)
	run := sampleRun()
	run.Outcome, run.FaultReason, run.FaultStage = "DONE", "", ""

	mock.ExpectExec(regexp.QuoteMeta(insertRunSQL)).
		WithArgs("run-1", sqlmock.AnyArg(), sqlmock.AnyArg(), "DONE", nil, nil,
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Save(ctx(t), run))
}

func TestRunSQLite_List(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRunSQLite(db)
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(runColumns).
		AddRow("run-2", start.Add(time.Hour), start.Add(70*time.Minute), "DONE", nil, nil, 412.5, 246.1, 8250,
			`[{"stage":"PREHEAT","reached":true,"reached_at_seconds":72}]`).
		AddRow("run-1", start, start.Add(91*time.Second), "FAULTED", "STAGE_TIMEOUT", "PREHEAT", 91.0, 118.5, 1820, `[]`)

	mock.ExpectQuery(regexp.QuoteMeta(selectRunsSQL)).WithArgs(defaultRunListLimit).WillReturnRows(rows)

	got, err := repo.List(ctx(t), 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "run-2", got[0].RunID)
	assert.Empty(t, got[0].FaultReason)
	require.Len(t, got[0].Stages, 1)
	assert.Equal(t, 72.0, got[0].Stages[0].ReachedAtSeconds)
	assert.Equal(t, "PREHEAT", got[1].FaultStage)
	assert.Empty(t, got[1].Stages)
}

func TestRunSQLite_List_BadStagesJSON(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRunSQLite(db)

	rows := sqlmock.NewRows(runColumns).
		AddRow("run-1", time.Now(), time.Now(), "DONE", nil, nil, 1.0, 1.0, 1, `{broken`)
	mock.ExpectQuery(regexp.QuoteMeta(selectRunsSQL)).WithArgs(5).WillReturnRows(rows)

	_, err := repo.List(ctx(t), 5)
	assert.ErrorContains(t, err, "decode stages")
}

func TestRunSQLite_Get(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRunSQLite(db)

	mock.ExpectQuery(regexp.QuoteMeta(selectRunSQL)).WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(runColumns))
	got, err := repo.Get(ctx(t), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	mock.ExpectQuery(regexp.QuoteMeta(selectRunSQL)).WithArgs("boom").
		WillReturnError(errors.New("locked"))
	_, err = repo.Get(ctx(t), "boom")
	assert.ErrorContains(t, err, "locked")
}
