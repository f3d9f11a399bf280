package taxengine

import (
	"context"

	"github.com/hrpay/backend/internal/domain/payroll"
	"github.com/shopspring/decimal"
)

// Flat rates used by the stub calculator. They approximate the Kenyan
// statutory schedule closely enough for local runs and demos.
var (
	stubPAYERate        = decimal.RequireFromString("0.30")
	stubPAYEThreshold   = decimal.NewFromInt(24000)
	stubPersonalRelief  = decimal.NewFromInt(2400)
	stubNHIFRate        = decimal.RequireFromString("0.0275")
	stubNSSFRate        = decimal.RequireFromString("0.06")
	stubNSSFCap         = decimal.NewFromInt(4320)
	stubHousingLevyRate = decimal.RequireFromString("0.015")
)

// StubCalculator computes statutory amounts locally with flat rates. It is
// selected when no tax engine URL is configured.
type StubCalculator struct{}

// NewStubCalculator creates the flat-rate calculator
func NewStubCalculator() *StubCalculator {
	return &StubCalculator{}
}

// Calculate implements payroll.TaxCalculator
func (StubCalculator) Calculate(ctx context.Context, req payroll.TaxRequest) (*payroll.TaxResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	gross := req.GrossSalary
	if gross.IsZero() {
		gross = req.BasicSalary
	}
	nssf := decimal.Min(gross.Mul(stubNSSFRate), stubNSSFCap).Round(2)

	taxable := req.TaxableIncome
	if taxable.IsZero() {
		taxable = gross.Sub(nssf)
	}

	amounts := make(map[payroll.StatutoryKind]decimal.Decimal, len(req.Kinds))
	for _, kind := range req.Kinds {
		switch kind {
		case payroll.StatutoryPAYE:
			paye := decimal.Zero
			if taxable.GreaterThan(stubPAYEThreshold) {
				paye = taxable.Sub(stubPAYEThreshold).Mul(stubPAYERate)
				if req.PersonalRelief {
					paye = decimal.Max(paye.Sub(stubPersonalRelief), decimal.Zero)
				}
			}
			amounts[kind] = paye.Round(2)
		case payroll.StatutoryNHIF:
			amounts[kind] = gross.Mul(stubNHIFRate).Round(2)
		case payroll.StatutoryNSSF:
			amounts[kind] = nssf
		case payroll.StatutoryHousingLevy:
			amounts[kind] = gross.Mul(stubHousingLevyRate).Round(2)
		}
	}

	return &payroll.TaxResult{TaxableIncome: taxable, Amounts: amounts}, nil
}

var _ payroll.TaxCalculator = (*StubCalculator)(nil)
