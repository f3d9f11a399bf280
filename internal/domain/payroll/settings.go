package payroll

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hrpay/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// AllowanceMode decides how an allowance amount is computed
type AllowanceMode string

const (
	AllowanceModeFixed      AllowanceMode = "FIXED"
	AllowanceModePercentage AllowanceMode = "PERCENTAGE"
)

// AllowanceDefinition is a business-wide allowance configured in payroll settings
type AllowanceDefinition struct {
	Name    string          `json:"name"`
	Mode    AllowanceMode   `json:"mode"`
	Value   decimal.Decimal `json:"value"`
	Enabled bool            `json:"enabled"`
	Taxable bool            `json:"taxable"`
}

// Resolve computes the allowance amount for an employee. An override wins,
// else a fixed value or a percentage of basic salary.
func (a AllowanceDefinition) Resolve(basic decimal.Decimal, overrides map[string]decimal.Decimal) decimal.Decimal {
	if v, ok := overrides[a.Name]; ok {
		return v
	}
	if a.Mode == AllowanceModePercentage {
		return basic.Mul(a.Value).Div(decimal.NewFromInt(100)).Round(2)
	}
	return a.Value
}

// TaxSettings toggles the statutory deductions requested from the tax engine
type TaxSettings struct {
	PAYE        bool `json:"paye"`
	NHIF        bool `json:"nhif"`
	NSSF        bool `json:"nssf"`
	HousingLevy bool `json:"housing_levy"`
	// PersonalRelief is passed through to the tax engine, which owns its meaning.
	PersonalRelief bool `json:"personal_relief"`
}

// Kinds returns the enabled statutory kinds in payslip order
func (t TaxSettings) Kinds() []StatutoryKind {
	var out []StatutoryKind
	if t.PAYE {
		out = append(out, StatutoryPAYE)
	}
	if t.NHIF {
		out = append(out, StatutoryNHIF)
	}
	if t.NSSF {
		out = append(out, StatutoryNSSF)
	}
	if t.HousingLevy {
		out = append(out, StatutoryHousingLevy)
	}
	return out
}

// Settings is the tax and allowance configuration a processing run uses
type Settings struct {
	Currency   string                `json:"currency"`
	Tax        TaxSettings           `json:"tax"`
	Allowances []AllowanceDefinition `json:"allowances"`
}

// Validate checks the allowance definitions
func (s *Settings) Validate() error {
	var details []string
	seen := make(map[string]bool)
	for i, a := range s.Allowances {
		name := strings.TrimSpace(a.Name)
		if name == "" {
			details = append(details, fmt.Sprintf("allowances[%d].name is required", i))
		} else if seen[name] {
			details = append(details, fmt.Sprintf("allowance %q is defined twice", name))
		}
		seen[name] = true
		if a.Mode != AllowanceModeFixed && a.Mode != AllowanceModePercentage {
			details = append(details, fmt.Sprintf("allowances[%d].mode %q is not supported", i, a.Mode))
		}
		if a.Value.IsNegative() {
			details = append(details, fmt.Sprintf("allowances[%d].value cannot be negative", i))
		}
	}
	if len(details) > 0 {
		return shared.NewValidationError("invalid payroll settings", details...)
	}
	return nil
}

// EnabledAllowances returns the enabled definitions in configured order
func (s *Settings) EnabledAllowances() []AllowanceDefinition {
	out := make([]AllowanceDefinition, 0, len(s.Allowances))
	for _, a := range s.Allowances {
		if a.Enabled {
			out = append(out, a)
		}
	}
	return out
}

// ResolveAllowances computes an employee's allowance lines
func (s *Settings) ResolveAllowances(e *Employee) (lines []AllowanceLine, taxable decimal.Decimal) {
	taxable = decimal.Zero
	for _, def := range s.EnabledAllowances() {
		amount := def.Resolve(e.BasicSalary, e.AllowanceOverrides)
		lines = append(lines, AllowanceLine{Name: def.Name, Amount: amount})
		if def.Taxable {
			taxable = taxable.Add(amount)
		}
	}
	return lines, taxable
}

// Snapshot serializes the settings stored on the period row
func (s *Settings) Snapshot() string {
	b, err := json.Marshal(s)
	if err != nil {
		return "{}"
	}
	return string(b)
}
