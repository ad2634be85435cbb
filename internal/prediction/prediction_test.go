package prediction

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/metrics"
)

const testModel = `
version: test_v1
intercept: 0
hour_of_day: {mean: 12, scale: 6, weight: 1}
day_of_week: {mean: 3, scale: 2, weight: 0}
is_weekend: {mean: 0, scale: 1, weight: 0}
stop_sequence: {mean: 10, scale: 5, weight: 0}
route_weights:
  "10": 2
`

func TestLogisticModelProbability(t *testing.T) {
	m, err := ParseModel([]byte(testModel))
	require.NoError(t, err)
	ctx := context.Background()

	p, err := m.ProbabilityLate(ctx, Features{RouteID: "unknown", HourOfDay: 12, DayOfWeek: 3, StopSequence: 10})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, p, 1e-9, "all features at their mean give sigmoid(0)")

	late, err := m.ProbabilityLate(ctx, Features{RouteID: "10", HourOfDay: 12, DayOfWeek: 3, StopSequence: 10})
	require.NoError(t, err)
	assert.Greater(t, late, p, "positive route weight raises the probability")

	evening, err := m.ProbabilityLate(ctx, Features{RouteID: "unknown", HourOfDay: 18, DayOfWeek: 3, StopSequence: 10})
	require.NoError(t, err)
	assert.InDelta(t, 0.7311, evening, 1e-4)
}

func TestParseModelRejectsInvalidDocuments(t *testing.T) {
	_, err := ParseModel([]byte("version: [unterminated"))
	assert.Error(t, err)

	_, err = ParseModel([]byte("intercept: 1"))
	assert.Error(t, err, "version is required")

	_, err = ParseModel([]byte(`
version: v1
hour_of_day: {mean: 0, scale: 0, weight: 1}
`))
	assert.Error(t, err, "zero scale is rejected")
}

func TestLoadModelMissingFile(t *testing.T) {
	_, err := LoadModel(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.True(t, errors.Is(err, ErrModelUnavailable))

	_, err = LoadModel("")
	assert.True(t, errors.Is(err, ErrModelUnavailable))
}

func TestShippedModelLoads(t *testing.T) {
	m, err := LoadModel(filepath.Join("..", "..", "ml", "models", "delay_predictor_v1.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "delay_predictor_v1", m.Version)

	p, err := m.ProbabilityLate(context.Background(), Features{RouteID: "10", StopSequence: 5, HourOfDay: 8})
	require.NoError(t, err)
	assert.True(t, p > 0 && p < 1)
}

type failingPredictor struct {
	err   error
	panic bool
	value float64
}

func (f failingPredictor) ProbabilityLate(context.Context, Features) (float64, error) {
	if f.panic {
		panic("corrupt model state")
	}
	return f.value, f.err
}

func TestServiceFallsBackToZero(t *testing.T) {
	tests := []struct {
		name      string
		predictor Predictor
	}{
		{"no model", nil},
		{"model error", failingPredictor{err: errors.New("boom")}},
		{"model panic", failingPredictor{panic: true}},
		{"out of range", failingPredictor{value: 1.7}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := metrics.New()
			s := NewService(tt.predictor, m, nil)

			assert.Equal(t, 0.0, s.ProbabilityLate(context.Background(), Features{RouteID: "10"}))
			assert.Equal(t, float64(1), testutil.ToFloat64(m.PredictionFallbacks))
		})
	}
}

func TestServicePassesThroughProbability(t *testing.T) {
	s := NewService(failingPredictor{value: 0.42}, nil, nil)
	assert.True(t, s.Available())
	assert.Equal(t, 0.42, s.ProbabilityLate(context.Background(), Features{}))
}

func TestLoadServiceWithoutModelRunsInFallback(t *testing.T) {
	s := LoadService(filepath.Join(t.TempDir(), "missing.yaml"), nil, nil)
	assert.False(t, s.Available())
	assert.Equal(t, 0.0, s.ProbabilityLate(context.Background(), Features{}))

	path := filepath.Join(t.TempDir(), "model.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testModel), 0o600))
	s = LoadService(path, nil, nil)
	assert.True(t, s.Available())
}
