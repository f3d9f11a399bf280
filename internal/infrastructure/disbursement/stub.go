package disbursement

import (
	"context"
	"sync"

	"github.com/hrpay/backend/internal/domain/payroll"
	"go.uber.org/zap"
)

// StubGateway accepts every transfer without moving money. Transfers
// repeated with the same reference return the first result.
type StubGateway struct {
	mu      sync.Mutex
	results map[string]*payroll.TransferResult
	logger  *zap.Logger
}

// NewStubGateway creates the always-accepting gateway
func NewStubGateway(logger *zap.Logger) *StubGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StubGateway{
		results: make(map[string]*payroll.TransferResult),
		logger:  logger.Named("disbursement_stub"),
	}
}

// Transfer implements payroll.PaymentGateway
func (g *StubGateway) Transfer(ctx context.Context, req payroll.TransferRequest) (*payroll.TransferResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if prior, ok := g.results[req.Reference]; ok {
		return prior, nil
	}
	result := &payroll.TransferResult{Accepted: true, ExternalID: "stub-" + req.Reference}
	g.results[req.Reference] = result

	g.logger.Info("stub transfer accepted",
		zap.String("reference", req.Reference),
		zap.String("amount", req.Amount.StringFixed(2)),
		zap.String("channel", string(req.Destination.Kind)),
	)
	return result, nil
}

// Transfers returns the number of distinct transfers accepted
func (g *StubGateway) Transfers() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.results)
}

var _ payroll.PaymentGateway = (*StubGateway)(nil)
