package payroll

import (
	"github.com/google/uuid"
)

// RecordOutcome is what a payment batch did to one record
type RecordOutcome struct {
	RecordID  uuid.UUID    `json:"record_id"`
	Status    RecordStatus `json:"status"`
	Reason    string       `json:"reason,omitempty"`
	Attempted bool         `json:"attempted"`
	Reference string       `json:"reference,omitempty"`
}

// PaymentReport is the result of ProcessPayments. Individual failures are
// reported here and never as an error of the batch.
type PaymentReport struct {
	ProcessedCount int             `json:"processed_count"`
	Outcomes       []RecordOutcome `json:"outcomes"`
}

// NewPaymentReport creates an empty report sized for n records
func NewPaymentReport(n int) *PaymentReport {
	return &PaymentReport{Outcomes: make([]RecordOutcome, 0, n)}
}

// Add appends an outcome and counts Paid records
func (r *PaymentReport) Add(o RecordOutcome) {
	if o.Status == RecordStatusPaid {
		r.ProcessedCount++
	}
	r.Outcomes = append(r.Outcomes, o)
}

// StatusByRecord maps record id to resulting status
func (r *PaymentReport) StatusByRecord() map[string]string {
	out := make(map[string]string, len(r.Outcomes))
	for _, o := range r.Outcomes {
		out[o.RecordID.String()] = o.Status.String()
	}
	return out
}

// FailedIDs lists the records that ended Failed in this batch
func (r *PaymentReport) FailedIDs() []uuid.UUID {
	var ids []uuid.UUID
	for _, o := range r.Outcomes {
		if o.Status == RecordStatusFailed {
			ids = append(ids, o.RecordID)
		}
	}
	return ids
}

// HasFailures reports whether any record did not reach Paid
func (r *PaymentReport) HasFailures() bool {
	return r.ProcessedCount < len(r.Outcomes)
}
