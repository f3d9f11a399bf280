package payroll

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/hrpay/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// DeductionCategory is the tag of a DeductionLine
type DeductionCategory string

const (
	DeductionCategoryStatutory DeductionCategory = "STATUTORY"
	DeductionCategoryCustom    DeductionCategory = "CUSTOM"
)

// StatutoryKind enumerates deductions computed by the tax engine
type StatutoryKind string

const (
	StatutoryPAYE        StatutoryKind = "PAYE"
	StatutoryNHIF        StatutoryKind = "NHIF"
	StatutoryNSSF        StatutoryKind = "NSSF"
	StatutoryHousingLevy StatutoryKind = "HOUSING_LEVY"
)

// StatutoryKinds lists the kinds in payslip order
var StatutoryKinds = []StatutoryKind{StatutoryPAYE, StatutoryNHIF, StatutoryNSSF, StatutoryHousingLevy}

// IsValid checks if the kind is known
func (k StatutoryKind) IsValid() bool {
	switch k {
	case StatutoryPAYE, StatutoryNHIF, StatutoryNSSF, StatutoryHousingLevy:
		return true
	}
	return false
}

// DisplayName returns the label printed on payslips
func (k StatutoryKind) DisplayName() string {
	switch k {
	case StatutoryNHIF:
		return "NHIF/SHIF"
	case StatutoryHousingLevy:
		return "Housing Levy"
	default:
		return string(k)
	}
}

// CustomDeductionType enumerates employer-initiated deductions
type CustomDeductionType string

const (
	CustomTypeSalaryAdvance CustomDeductionType = "SALARY_ADVANCE"
	CustomTypeLoan          CustomDeductionType = "LOAN"
	CustomTypeOther         CustomDeductionType = "OTHER"
)

// IsValid checks if the type is known
func (t CustomDeductionType) IsValid() bool {
	switch t {
	case CustomTypeSalaryAdvance, CustomTypeLoan, CustomTypeOther:
		return true
	}
	return false
}

// ParseCustomDeductionType accepts the canonical value case-insensitively
func ParseCustomDeductionType(s string) (CustomDeductionType, error) {
	t := CustomDeductionType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", shared.NewValidationError(fmt.Sprintf("unknown custom deduction type %q", s))
	}
	return t, nil
}

// DeductionLine is a tagged variant: either Statutory(kind) or Custom(refID, type).
// The tag is fixed at construction and never derived from Name.
type DeductionLine struct {
	Category  DeductionCategory   `json:"category"`
	Statutory StatutoryKind       `json:"statutory_kind,omitempty"`
	RefID     uuid.UUID           `json:"ref_id,omitempty"`
	Type      CustomDeductionType `json:"custom_type,omitempty"`
	Name      string              `json:"name"`
	Amount    decimal.Decimal     `json:"amount"`
}

// NewStatutoryLine creates a Statutory(kind) line
func NewStatutoryLine(kind StatutoryKind, amount decimal.Decimal) (DeductionLine, error) {
	l := DeductionLine{
		Category:  DeductionCategoryStatutory,
		Statutory: kind,
		Name:      kind.DisplayName(),
		Amount:    amount,
	}
	return l, l.Validate()
}

// NewCustomLine creates a Custom(refID, type) line
func NewCustomLine(refID uuid.UUID, typ CustomDeductionType, name string, amount decimal.Decimal) (DeductionLine, error) {
	l := DeductionLine{
		Category: DeductionCategoryCustom,
		RefID:    refID,
		Type:     typ,
		Name:     name,
		Amount:   amount,
	}
	return l, l.Validate()
}

// IsStatutory reports whether the line is tagged Statutory
func (l DeductionLine) IsStatutory() bool {
	return l.Category == DeductionCategoryStatutory
}

// IsCustom reports whether the line is tagged Custom
func (l DeductionLine) IsCustom() bool {
	return l.Category == DeductionCategoryCustom
}

// Validate enforces tag consistency
func (l DeductionLine) Validate() error {
	if l.Amount.IsNegative() {
		return shared.NewValidationError(fmt.Sprintf("deduction %q has a negative amount", l.Name))
	}
	switch l.Category {
	case DeductionCategoryStatutory:
		if !l.Statutory.IsValid() {
			return shared.NewValidationError(fmt.Sprintf("unknown statutory kind %q", l.Statutory))
		}
		if l.RefID != uuid.Nil || l.Type != "" {
			return shared.NewValidationError("statutory deduction cannot carry a custom reference")
		}
	case DeductionCategoryCustom:
		if l.RefID == uuid.Nil {
			return shared.NewValidationError("custom deduction line requires a reference id")
		}
		if !l.Type.IsValid() {
			return shared.NewValidationError(fmt.Sprintf("unknown custom deduction type %q", l.Type))
		}
		if l.Statutory != "" {
			return shared.NewValidationError("custom deduction cannot carry a statutory kind")
		}
	default:
		return ErrUntaggedDeduction(l.Name)
	}
	return nil
}

// AllowanceLine is a resolved allowance on a payroll record
type AllowanceLine struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

// SumAllowances totals allowance amounts
func SumAllowances(lines []AllowanceLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Amount)
	}
	return total
}

// SumDeductions totals deduction amounts
func SumDeductions(lines []DeductionLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Amount)
	}
	return total
}

// SumByCategory totals the deductions of one category
func SumByCategory(lines []DeductionLine, category DeductionCategory) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		if l.Category == category {
			total = total.Add(l.Amount)
		}
	}
	return total
}
