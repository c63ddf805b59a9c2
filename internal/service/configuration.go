package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"kiosco/backend/internal/domain"
)

// GetConfiguration serves the business settings from cache when possible.
// Cache failures only cost a store read.
func (s *Service) GetConfiguration(ctx context.Context) (domain.Configuration, error) {
	if cached, ok, err := s.configCache.Get(ctx); err != nil {
		s.logger.Warn("configuration cache read failed", zap.Error(err))
	} else if ok {
		return *cached, nil
	}

	cfg, err := s.repo.GetConfiguration(ctx)
	if err != nil {
		return domain.Configuration{}, err
	}
	if err := s.configCache.Set(ctx, cfg, s.configCacheTTL); err != nil {
		s.logger.Warn("configuration cache write failed", zap.Error(err))
	}
	return *cfg, nil
}

func (s *Service) UpdateConfiguration(ctx context.Context, cfg domain.Configuration) (domain.Configuration, error) {
	cfg.BusinessName = strings.TrimSpace(cfg.BusinessName)
	if cfg.BusinessName == "" {
		return domain.Configuration{}, invalid("business_name", "business name is required")
	}
	cfg.Currency = strings.ToUpper(strings.TrimSpace(cfg.Currency))
	if cfg.Currency == "" {
		cfg.Currency = "ARS"
	}
	cfg.UpdatedAt = s.now().UTC()

	saved, err := s.repo.UpsertConfiguration(ctx, cfg)
	if err != nil {
		return domain.Configuration{}, err
	}
	if err := s.configCache.Invalidate(ctx); err != nil {
		s.logger.Warn("configuration cache invalidate failed", zap.Error(err))
	}
	if err := s.configCache.Set(ctx, saved, s.configCacheTTL); err != nil {
		s.logger.Warn("configuration cache write failed", zap.Error(err))
	}

	s.logAudit(ctx, "configuration_update", "configuration", "1", "business_name="+saved.BusinessName)
	return *saved, nil
}
