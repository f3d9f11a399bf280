package payroll

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/hrpay/backend/internal/domain/shared"
)

// Guard rule identifiers reported with GuardViolation errors
const (
	RulePeriodAlreadyPaid       = "PERIOD_ALREADY_PAID"
	RuleChannelSwitchNotAtomic  = "CHANNEL_SWITCH_NOT_ATOMIC"
	RuleChannelKindMismatch     = "CHANNEL_KIND_MISMATCH"
	RuleDeductionStatusChange   = "DEDUCTION_STATUS_TRANSITION"
	RuleRecordStatusTransition  = "RECORD_STATUS_TRANSITION"
	RuleDeductionAlreadyStarted = "DEDUCTION_ALREADY_STARTED"
)

// Failure reasons recorded on Failed payroll records
const (
	ReasonNoPaymentChannel  = "NoPaymentChannel"
	ReasonNotApproved       = "NotApproved"
	ReasonNotFound          = "NotFound"
	// ReasonNonPositiveNetPay marks records whose deductions consume the whole gross pay
	ReasonNonPositiveNetPay = "NonPositiveNetPay"
)

// ErrPeriodAlreadyPaid blocks reprocessing of a period with a Paid record
func ErrPeriodAlreadyPaid(key PeriodKey) *shared.DomainError {
	return shared.NewGuardViolation(RulePeriodAlreadyPaid,
		fmt.Sprintf("payroll period %s already has paid records and cannot be reprocessed", key))
}

// ErrChannelSwitchNotAtomic blocks mixing bank accounts and wallet outside SetXChannel
func ErrChannelSwitchNotAtomic(active ChannelKind) *shared.DomainError {
	return shared.NewGuardViolation(RuleChannelSwitchNotAtomic,
		fmt.Sprintf("employee already has an active %s channel; use the channel switch operation", active))
}

// ErrRecordTransition reports an illegal record status change
func ErrRecordTransition(id uuid.UUID, from, to RecordStatus) *shared.DomainError {
	return shared.NewGuardViolation(RuleRecordStatusTransition,
		fmt.Sprintf("payroll record %s cannot move from %s to %s", id, from, to))
}

// ErrUntaggedDeduction rejects a deduction line without an explicit kind
func ErrUntaggedDeduction(name string) *shared.DomainError {
	return shared.NewValidationError(fmt.Sprintf("deduction %q has no statutory or custom tag", name))
}

// IsValidation reports whether err is a ValidationError
func IsValidation(err error) bool {
	return shared.HasCode(err, shared.CodeValidation)
}

// IsGuardViolation reports whether err is a GuardViolation
func IsGuardViolation(err error) bool {
	return shared.HasCode(err, shared.CodeGuardViolation)
}

// IsRemote reports whether err is a RemoteError
func IsRemote(err error) bool {
	return shared.HasCode(err, shared.CodeRemote)
}
