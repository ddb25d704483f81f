package handlers

import (
	"context"
	"net/http"
	"time"

	"reflow_oven/internal/models"
	"reflow_oven/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(ctx context.Context, username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(ctx context.Context, username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

type mockOven struct {
	startErr    error
	abortErr    error
	resetErr    error
	startCalled int
	abortCalled int
	resetCalled int
}

func (m *mockOven) Start(ctx context.Context) error {
	m.startCalled++
	return m.startErr
}
func (m *mockOven) Abort(ctx context.Context) error {
	m.abortCalled++
	return m.abortErr
}
func (m *mockOven) Reset(ctx context.Context) error {
	m.resetCalled++
	return m.resetErr
}

// mockMonitoring returns states in order and then repeats the last one.
type mockMonitoring struct {
	state  models.OvenState
	states []models.OvenState
	err    error
	calls  int
}

func (m *mockMonitoring) GetState(ctx context.Context) (models.OvenState, error) {
	m.calls++
	if m.err != nil {
		return models.OvenState{}, m.err
	}
	if len(m.states) > 0 {
		st := m.states[0]
		if len(m.states) > 1 {
			m.states = m.states[1:]
		}
		return st, nil
	}
	return m.state, nil
}

type mockEventLog struct {
	resp      []models.OvenEvent
	err       error
	lastFrom  time.Time
	lastTo    time.Time
	lastType  string
	lastRunID string
	lastLimit int
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]models.OvenEvent, error) {
	m.lastFrom = f.From
	m.lastTo = f.To
	m.lastType = f.Type
	m.lastRunID = f.RunID
	m.lastLimit = f.Limit
	return m.resp, m.err
}

type mockCalibration struct {
	status      models.CalibrationStatus
	statusErr   error
	resetErr    error
	resetCalled int
}

func (m *mockCalibration) Status(ctx context.Context) (models.CalibrationStatus, error) {
	return m.status, m.statusErr
}
func (m *mockCalibration) ResetLearning(ctx context.Context) error {
	m.resetCalled++
	return m.resetErr
}

type mockRunHistory struct {
	runs      []models.RunSummary
	run       *models.RunSummary
	err       error
	lastLimit int
	lastID    string
}

func (m *mockRunHistory) ListRuns(ctx context.Context, limit int) ([]models.RunSummary, error) {
	m.lastLimit = limit
	return m.runs, m.err
}
func (m *mockRunHistory) GetRun(ctx context.Context, runID string) (*models.RunSummary, error) {
	m.lastID = runID
	return m.run, m.err
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
