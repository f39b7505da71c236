package service

import (
	"context"
	"errors"
	"time"

	"kb-assistant/internal/dto"
	"kb-assistant/internal/pkg/logger"
	"kb-assistant/pkg/retry"
)

// HealthChecker is the part of the gateway the probe needs
type HealthChecker interface {
	Health(ctx context.Context) error
	HealthURL() string
}

type IHealthService interface {
	CheckBackend(ctx context.Context) *dto.BackendHealthResponse
}

type healthService struct {
	backend HealthChecker
	retry   retry.Config
	logger  logger.ILogger
}

func NewHealthService(backend HealthChecker, retryCfg retry.Config, log logger.ILogger) IHealthService {
	retryCfg.Logger = log
	retryCfg.Operation = "backend_health"
	retryCfg.Retryable = func(err error) bool {
		return !errors.Is(err, context.Canceled)
	}
	return &healthService{backend: backend, retry: retryCfg, logger: log}
}

func (s *healthService) CheckBackend(ctx context.Context) *dto.BackendHealthResponse {
	res := &dto.BackendHealthResponse{URL: s.backend.HealthURL()}

	err := retry.Do(ctx, s.retry, s.backend.Health)
	res.CheckedAt = time.Now()
	if err != nil {
		s.logger.Warn("HEALTH", "Backend health check failed", map[string]interface{}{
			"url":   res.URL,
			"error": err.Error(),
		})
		res.Error = err.Error()
		return res
	}
	res.Healthy = true
	return res
}
