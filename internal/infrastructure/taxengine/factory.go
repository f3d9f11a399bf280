package taxengine

import (
	"github.com/hrpay/backend/internal/domain/payroll"
	"github.com/hrpay/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// New returns the HTTP client when a base URL is configured, else the stub
func New(cfg config.TaxEngineConfig, logger *zap.Logger) (payroll.TaxCalculator, error) {
	if cfg.BaseURL == "" {
		logger.Warn("tax engine base url not set, using flat-rate stub calculator")
		return NewStubCalculator(), nil
	}
	logger.Info("using remote tax engine", zap.String("base_url", cfg.BaseURL))
	return NewClient(cfg)
}
