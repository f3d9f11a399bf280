package disbursement

import (
	"github.com/hrpay/backend/internal/domain/payroll"
	"github.com/hrpay/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// New returns the HTTP gateway client when a base URL is configured, else the stub
func New(cfg config.DisbursementConfig, logger *zap.Logger) (payroll.PaymentGateway, error) {
	if cfg.BaseURL == "" {
		logger.Warn("disbursement base url not set, using stub gateway")
		return NewStubGateway(logger), nil
	}
	logger.Info("using disbursement gateway",
		zap.String("base_url", cfg.BaseURL),
		zap.Duration("timeout", cfg.Timeout),
	)
	return NewClient(cfg, logger)
}
