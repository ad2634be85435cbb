package prediction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/logging"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/metrics"
)

// Service wraps a Predictor so that callers always get a probability.
// Any error or panic from the model is replaced by 0.0 and counted.
type Service struct {
	predictor Predictor
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewService accepts a nil predictor, in which case every prediction is 0.0.
func NewService(p Predictor, m *metrics.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		predictor: p,
		metrics:   m,
		logger:    logger.With(slog.String("component", "prediction")),
	}
}

// LoadService loads the model at path. A missing or invalid model is logged
// and the service runs in fallback mode; it never fails startup.
func LoadService(path string, m *metrics.Metrics, logger *slog.Logger) *Service {
	s := NewService(nil, m, logger)

	model, err := LoadModel(path)
	switch {
	case errors.Is(err, ErrModelUnavailable):
		s.logger.Warn("model not found, predictions will report zero probability", slog.String("path", path))
	case err != nil:
		logging.LogError(s.logger, "failed to load model", err, slog.String("path", path))
	default:
		s.predictor = model
		logging.LogOperation(s.logger, "model_loaded",
			slog.String("path", path),
			slog.String("version", model.Version))
	}
	return s
}

// Available reports whether a model is loaded.
func (s *Service) Available() bool {
	return s.predictor != nil
}

// ProbabilityLate never fails.
func (s *Service) ProbabilityLate(ctx context.Context, f Features) float64 {
	p, err := s.predict(ctx, f)
	if err != nil {
		if s.metrics != nil {
			s.metrics.PredictionFallbacks.Inc()
		}
		if !errors.Is(err, ErrModelUnavailable) {
			logging.LogError(s.logger, "prediction failed", err, slog.String("route_id", f.RouteID))
		}
		return 0.0
	}
	return p
}

func (s *Service) predict(ctx context.Context, f Features) (p float64, err error) {
	if s.predictor == nil {
		return 0, ErrModelUnavailable
	}
	defer func() {
		if r := recover(); r != nil {
			p, err = 0, fmt.Errorf("prediction panicked: %v", r)
		}
	}()

	p, err = s.predictor.ProbabilityLate(ctx, f)
	if err != nil {
		return 0, err
	}
	if p < 0 || p > 1 {
		return 0, fmt.Errorf("probability %v out of range", p)
	}
	return p, nil
}
