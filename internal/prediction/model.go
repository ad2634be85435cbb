// Package prediction scores the probability that an arrival runs five or more
// minutes late. The model is a logistic regression whose coefficients are
// exported from the training pipeline to YAML.
package prediction

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrModelUnavailable is returned when no usable model is loaded.
var ErrModelUnavailable = errors.New("prediction model unavailable")

// Features is the input vector for one scheduled arrival.
type Features struct {
	RouteID      string
	StopSequence uint32
	HourOfDay    int
	DayOfWeek    int // 0 = Monday
	IsWeekend    bool
}

// Predictor returns the probability that an arrival is late by 5 minutes or more.
type Predictor interface {
	ProbabilityLate(ctx context.Context, f Features) (float64, error)
}

// Coefficient is a standardized numeric feature: weight * (x - mean) / scale.
type Coefficient struct {
	Mean   float64 `yaml:"mean"`
	Scale  float64 `yaml:"scale" validate:"gt=0"`
	Weight float64 `yaml:"weight"`
}

func (c Coefficient) term(x float64) float64 {
	return c.Weight * (x - c.Mean) / c.Scale
}

// LogisticModel is the deserialized coefficient file.
type LogisticModel struct {
	Version   string  `yaml:"version" validate:"required"`
	Intercept float64 `yaml:"intercept"`

	HourOfDay    Coefficient `yaml:"hour_of_day"`
	DayOfWeek    Coefficient `yaml:"day_of_week"`
	IsWeekend    Coefficient `yaml:"is_weekend"`
	StopSequence Coefficient `yaml:"stop_sequence"`

	// RouteWeights are the one-hot route coefficients; unknown routes add 0.
	RouteWeights map[string]float64 `yaml:"route_weights"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadModel reads a coefficient file. A missing file yields ErrModelUnavailable.
func LoadModel(path string) (*LogisticModel, error) {
	if path == "" {
		return nil, ErrModelUnavailable
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s not found", ErrModelUnavailable, path)
		}
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}
	return ParseModel(data)
}

// ParseModel decodes and validates a coefficient document.
func ParseModel(data []byte) (*LogisticModel, error) {
	var m LogisticModel
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse model: %w", err)
	}
	if err := validate.Struct(m); err != nil {
		return nil, fmt.Errorf("invalid model: %w", err)
	}
	return &m, nil
}

func (m *LogisticModel) ProbabilityLate(_ context.Context, f Features) (float64, error) {
	if m == nil {
		return 0, ErrModelUnavailable
	}

	z := m.Intercept +
		m.HourOfDay.term(float64(f.HourOfDay)) +
		m.DayOfWeek.term(float64(f.DayOfWeek)) +
		m.IsWeekend.term(boolToFloat(f.IsWeekend)) +
		m.StopSequence.term(float64(f.StopSequence)) +
		m.RouteWeights[f.RouteID]

	p := 1 / (1 + math.Exp(-z))
	if math.IsNaN(p) {
		return 0, fmt.Errorf("model %s produced NaN", m.Version)
	}
	return p, nil
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
