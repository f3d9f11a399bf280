package payroll

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hrpay/backend/internal/domain/shared"
)

const (
	minPayrollYear = 2000
	maxPayrollYear = 2100
)

// PeriodKey identifies one payroll cycle of a business.
type PeriodKey struct {
	BusinessID uuid.UUID `json:"business_id"`
	Month      int       `json:"month"`
	Year       int       `json:"year"`
}

// NewPeriodKey validates and builds a PeriodKey
func NewPeriodKey(businessID uuid.UUID, month, year int) (PeriodKey, error) {
	k := PeriodKey{BusinessID: businessID, Month: month, Year: year}
	if err := k.Validate(); err != nil {
		return PeriodKey{}, err
	}
	return k, nil
}

// Validate checks month and year ranges
func (k PeriodKey) Validate() error {
	if k.BusinessID == uuid.Nil {
		return shared.NewValidationError("business id is required")
	}
	if k.Month < 1 || k.Month > 12 {
		return shared.NewValidationError(fmt.Sprintf("month must be between 1 and 12, got %d", k.Month))
	}
	if k.Year < minPayrollYear || k.Year > maxPayrollYear {
		return shared.NewValidationError(fmt.Sprintf("year must be between %d and %d, got %d", minPayrollYear, maxPayrollYear, k.Year))
	}
	return nil
}

// String renders the key as YYYY-MM
func (k PeriodKey) String() string {
	return fmt.Sprintf("%04d-%02d", k.Year, k.Month)
}

// Start returns the first instant of the period (UTC)
func (k PeriodKey) Start() time.Time {
	return time.Date(k.Year, time.Month(k.Month), 1, 0, 0, 0, 0, time.UTC)
}

// End returns the last instant of the period (UTC)
func (k PeriodKey) End() time.Time {
	return k.Start().AddDate(0, 1, 0).Add(-time.Nanosecond)
}

// Index orders periods on a single monotonic scale
func (k PeriodKey) Index() int {
	return k.Year*12 + (k.Month - 1)
}

// PeriodStatus is derived from the records of a period
type PeriodStatus string

const (
	PeriodStatusUnprocessed       PeriodStatus = "UNPROCESSED"
	PeriodStatusProcessed         PeriodStatus = "PROCESSED"
	PeriodStatusPartiallyApproved PeriodStatus = "PARTIALLY_APPROVED"
	PeriodStatusApproved          PeriodStatus = "APPROVED"
	PeriodStatusPaid              PeriodStatus = "PAID"
)

// String returns the string representation of PeriodStatus
func (s PeriodStatus) String() string {
	return string(s)
}

// DerivePeriodStatus aggregates record statuses into the period status.
// Any Paid record makes the whole period Paid.
func DerivePeriodStatus(records []*PayrollRecord) PeriodStatus {
	if len(records) == 0 {
		return PeriodStatusUnprocessed
	}
	var processed, settled int
	for _, r := range records {
		switch r.Status {
		case RecordStatusPaid:
			return PeriodStatusPaid
		case RecordStatusProcessed:
			processed++
		case RecordStatusApproved, RecordStatusFailed:
			settled++
		}
	}
	switch {
	case processed == len(records):
		return PeriodStatusProcessed
	case settled == len(records):
		return PeriodStatusApproved
	default:
		return PeriodStatusPartiallyApproved
	}
}

// PayrollPeriod is the authoritative row for a (business, month, year) cycle.
// Locked flips to true in the same transaction that commits the first Paid
// record and never flips back.
type PayrollPeriod struct {
	shared.TenantAggregateRoot
	Month        int
	Year         int
	Locked       bool
	LockedAt     *time.Time
	ProcessedAt  *time.Time
	RunCount     int
	SettingsJSON string
}

// NewPayrollPeriod creates an unprocessed period
func NewPayrollPeriod(key PeriodKey) (*PayrollPeriod, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	return &PayrollPeriod{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(key.BusinessID),
		Month:               key.Month,
		Year:                key.Year,
	}, nil
}

// Key returns the period identity
func (p *PayrollPeriod) Key() PeriodKey {
	return PeriodKey{BusinessID: p.TenantID, Month: p.Month, Year: p.Year}
}

// EnsureReprocessable returns a guard violation once any record was paid
func (p *PayrollPeriod) EnsureReprocessable() error {
	if p.Locked {
		return ErrPeriodAlreadyPaid(p.Key())
	}
	return nil
}

// MarkProcessed records a processing run with the settings snapshot used
func (p *PayrollPeriod) MarkProcessed(settingsJSON string) error {
	if err := p.EnsureReprocessable(); err != nil {
		return err
	}
	now := time.Now()
	p.ProcessedAt = &now
	p.RunCount++
	p.SettingsJSON = settingsJSON
	p.Touch()
	return nil
}

// PeriodSummary is a read model combining the period with its records
type PeriodSummary struct {
	Key          PeriodKey        `json:"period"`
	Status       PeriodStatus     `json:"status"`
	Locked       bool             `json:"locked"`
	RecordCount  int              `json:"record_count"`
	StatusCounts map[string]int   `json:"status_counts"`
	Totals       PeriodTotals     `json:"totals"`
	Records      []*PayrollRecord `json:"-"`
}

// NewPeriodSummary builds a summary from the current records of a period
func NewPeriodSummary(key PeriodKey, locked bool, records []*PayrollRecord) *PeriodSummary {
	s := &PeriodSummary{
		Key:          key,
		Status:       DerivePeriodStatus(records),
		Locked:       locked,
		RecordCount:  len(records),
		StatusCounts: make(map[string]int),
		Records:      records,
	}
	for _, r := range records {
		s.StatusCounts[r.Status.String()]++
		s.Totals.add(r)
	}
	return s
}
