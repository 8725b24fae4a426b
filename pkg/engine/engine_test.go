package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silentengine/silentengine/pkg/config"
	"github.com/silentengine/silentengine/pkg/models"
	"github.com/silentengine/silentengine/pkg/provider"
	"github.com/silentengine/silentengine/pkg/router"
)

type fakeProvider struct {
	mu           sync.Mutex
	name         string
	model        string
	unhealthy    bool
	err          error
	content      func(call int) string
	calls        int
	healthChecks int
	prompts      []string
}

func newFake(name string) *fakeProvider {
	_, model, _ := strings.Cut(name, ":")
	return &fakeProvider{name: name, model: model}
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) CheckHealth(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healthChecks++
	return !f.unhealthy
}

func (f *fakeProvider) Generate(_ context.Context, req models.GenerateRequest) (models.GenerateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.prompts = append(f.prompts, req.Prompt)
	if f.err != nil {
		return models.GenerateResponse{}, f.err
	}
	content := "ok from " + f.name
	if f.content != nil {
		content = f.content(f.calls)
	}
	return models.GenerateResponse{
		Content:   content,
		Model:     f.model,
		Provider:  f.name,
		Tokens:    models.NewTokenUsage(10, 20),
		Cost:      0.01,
		RequestID: "req_" + f.name,
	}, nil
}

type record struct {
	req          models.GenerateRequest
	resp         models.GenerateResponse
	errMsg       string
	fallbackUsed bool
}

type memRecorder struct {
	mu   sync.Mutex
	recs []record
}

func (m *memRecorder) Append(req models.GenerateRequest, resp models.GenerateResponse, errMsg string, fallbackUsed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, record{req, resp, errMsg, fallbackUsed})
}

type countingAlerter struct {
	alerts []FallbackAlert
}

func (c *countingAlerter) Fallback(_ context.Context, a FallbackAlert) {
	c.alerts = append(c.alerts, a)
}

type harness struct {
	engine  *Engine
	primary *fakeProvider
	backup  *fakeProvider
	rec     *memRecorder
	alerter *countingAlerter
}

// newHarness wires an engine with one fallback rule (code) and one single rule (chat)
// that both use primary, backed by backup.
func newHarness() *harness {
	h := &harness{
		primary: newFake("anthropic:claude-haiku-4"),
		backup:  newFake("groq:llama-3.1-70b"),
		rec:     &memRecorder{},
		alerter: &countingAlerter{},
	}
	r := router.New(config.RoutingConfig{
		Default: h.backup.name,
		Rules: []models.RoutingRule{
			{TaskType: models.TaskCode, PrimaryModel: h.primary.name, BackupModel: h.backup.name, Strategy: models.StrategyFallback},
			{TaskType: models.TaskChat, PrimaryModel: h.primary.name, BackupModel: h.backup.name, Strategy: models.StrategySingle},
			{TaskType: models.TaskJSON, PrimaryModel: h.primary.name, Strategy: models.StrategySingle},
		},
	})
	h.engine = New(provider.NewRegistry(h.primary, h.backup), r, Options{Recorder: h.rec, Alerter: h.alerter})
	return h
}

func TestPrimarySuccess(t *testing.T) {
	h := newHarness()

	resp, err := h.engine.Generate(context.Background(), models.GenerateRequest{Prompt: "hi", TaskType: models.TaskCode})
	require.NoError(t, err)
	assert.Equal(t, "claude-haiku-4", resp.Model)
	assert.Equal(t, 0, h.backup.calls)

	require.Len(t, h.rec.recs, 1)
	assert.False(t, h.rec.recs[0].fallbackUsed)
	assert.Empty(t, h.rec.recs[0].errMsg)
	assert.Empty(t, h.alerter.alerts)
}

func TestSingleStrategyNeverCallsBackup(t *testing.T) {
	for _, unhealthy := range []bool{false, true} {
		h := newHarness()
		h.primary.unhealthy = unhealthy
		h.primary.err = errors.New("rate limited upstream")

		_, err := h.engine.Generate(context.Background(), models.GenerateRequest{Prompt: "hi", TaskType: models.TaskChat})
		require.Error(t, err)
		assert.Equal(t, 1, h.primary.calls, "single strategy attempts the primary even when unhealthy")
		assert.Equal(t, 0, h.backup.calls)

		var agg *AggregateError
		require.ErrorAs(t, err, &agg)
		assert.Nil(t, agg.BackupErr)
		assert.Equal(t, "all models failed for taskType=chat. Primary (anthropic:claude-haiku-4): rate limited upstream", err.Error())
	}
}

func TestUnhealthyPrimaryIsSkipped(t *testing.T) {
	h := newHarness()
	h.primary.unhealthy = true

	resp, err := h.engine.Generate(context.Background(), models.GenerateRequest{Prompt: "hi", TaskType: models.TaskCode})
	require.NoError(t, err)
	assert.Equal(t, 0, h.primary.calls)
	assert.Equal(t, 1, h.backup.calls)
	assert.Equal(t, "llama-3.1-70b", resp.Model)

	require.Len(t, h.rec.recs, 1)
	assert.True(t, h.rec.recs[0].fallbackUsed)
	require.Len(t, h.alerter.alerts, 1)
	assert.Equal(t, ReasonUnhealthy, h.alerter.alerts[0].Reason)
}

func TestUnhealthyPrimaryBackupFails(t *testing.T) {
	h := newHarness()
	h.primary.unhealthy = true
	h.backup.err = errors.New("backup down")

	_, err := h.engine.Generate(context.Background(), models.GenerateRequest{Prompt: "hi", TaskType: models.TaskCode})
	require.Error(t, err)
	assert.Equal(t, 0, h.primary.calls)
	assert.ErrorIs(t, err, ErrUnhealthy)

	require.Len(t, h.rec.recs, 1)
	assert.True(t, h.rec.recs[0].fallbackUsed)
	assert.Equal(t, "Primary: provider unhealthy, Backup: backup down", h.rec.recs[0].errMsg)
}

func TestCodeTaskFallsBackOnPrimaryError(t *testing.T) {
	h := newHarness()
	h.primary.err = errors.New("upstream returned 500: boom")

	resp, err := h.engine.Generate(context.Background(), models.GenerateRequest{Prompt: "write a parser", TaskType: models.TaskCode})
	require.NoError(t, err)

	assert.Equal(t, 1, h.primary.calls)
	assert.Equal(t, 1, h.backup.calls)
	assert.Equal(t, "llama-3.1-70b", resp.Model)

	require.Len(t, h.rec.recs, 1)
	rec := h.rec.recs[0]
	assert.True(t, rec.fallbackUsed)
	assert.Equal(t, "upstream returned 500: boom", rec.errMsg)

	require.Len(t, h.alerter.alerts, 1)
	alert := h.alerter.alerts[0]
	assert.Equal(t, "anthropic:claude-haiku-4", alert.Primary)
	assert.Equal(t, "groq:llama-3.1-70b", alert.Backup)
	assert.Equal(t, ReasonError, alert.Reason)
	assert.EqualError(t, alert.Err, "upstream returned 500: boom")
}

func TestBothFail(t *testing.T) {
	h := newHarness()
	h.primary.err = errors.New("p-err")
	h.backup.err = errors.New("b-err")

	_, err := h.engine.Generate(context.Background(), models.GenerateRequest{Prompt: "hi", TaskType: models.TaskCode})
	require.Error(t, err)
	assert.Equal(t, 1, h.primary.calls)
	assert.Equal(t, 1, h.backup.calls, "backup is attempted exactly once")
	assert.Equal(t,
		"all models failed for taskType=code. Primary (anthropic:claude-haiku-4): p-err. Backup (groq:llama-3.1-70b): b-err",
		err.Error())
	assert.Empty(t, h.alerter.alerts)

	require.Len(t, h.rec.recs, 1)
	rec := h.rec.recs[0]
	assert.Equal(t, "Primary: p-err, Backup: b-err", rec.errMsg)
	assert.False(t, rec.fallbackUsed)
	assert.Equal(t, "none", rec.resp.Provider)
	assert.Equal(t, "anthropic:claude-haiku-4", rec.resp.Model)
	assert.Zero(t, rec.resp.Tokens)
	assert.Zero(t, rec.resp.Cost)
	assert.NotEmpty(t, rec.resp.RequestID)
}

func TestUnknownPrimaryIsConfigurationError(t *testing.T) {
	r := router.New(config.RoutingConfig{Default: "missing:model"})
	e := New(provider.NewRegistry(), r, Options{})

	_, err := e.Generate(context.Background(), models.GenerateRequest{Prompt: "hi"})
	assert.ErrorIs(t, err, ErrConfiguration)
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "missing:model", cfgErr.ModelID)
}

func TestEmptyTaskTypeRoutesAsGeneral(t *testing.T) {
	h := newHarness()
	_, err := h.engine.Generate(context.Background(), models.GenerateRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, 1, h.backup.calls, "general is unmapped and goes to the default model")
	assert.Equal(t, 0, h.primary.calls)
}

func TestLogAlerterDoesNotPanic(t *testing.T) {
	LogAlerter{}.Fallback(context.Background(), FallbackAlert{Primary: "a", Backup: "b", Err: errors.New("x")})
}
