package payroll

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/hrpay/backend/internal/domain/payroll"
	"github.com/hrpay/backend/internal/domain/shared"
	"github.com/hrpay/backend/internal/infrastructure/telemetry"
)

// BatchStage names the workflow screen a selection belongs to
type BatchStage string

const (
	BatchStageReview   BatchStage = "review"
	BatchStagePayments BatchStage = "payments"
)

// ParseBatchStage parses a stage name
func ParseBatchStage(s string) (BatchStage, error) {
	switch BatchStage(strings.ToLower(strings.TrimSpace(s))) {
	case BatchStageReview:
		return BatchStageReview, nil
	case BatchStagePayments:
		return BatchStagePayments, nil
	}
	return "", shared.NewValidationError(fmt.Sprintf("unknown batch stage %q", s))
}

// EligibleStatus returns the record status a stage can act on
func (s BatchStage) EligibleStatus() payroll.RecordStatus {
	if s == BatchStagePayments {
		return payroll.RecordStatusApproved
	}
	return payroll.RecordStatusProcessed
}

// BatchDispatcher executes a dispatched selection. PeriodStateMachine implements it.
type BatchDispatcher interface {
	ApprovePeriod(ctx context.Context, businessID uuid.UUID, recordIDs []uuid.UUID, month, year int) ([]*payroll.PayrollRecord, error)
	ProcessPayments(ctx context.Context, businessID uuid.UUID, recordIDs []uuid.UUID, month, year int, idempotencyKey string) (*payroll.PaymentReport, error)
}

// DispatchResult holds what a dispatch produced: records for review, a report for payments
type DispatchResult struct {
	Stage   BatchStage
	Records []*payroll.PayrollRecord
	Report  *payroll.PaymentReport
}

// BatchSelectionCoordinator tracks the records an operator picked on one
// stage of one period and hands them to the state machine.
type BatchSelectionCoordinator struct {
	mu             sync.Mutex
	key            payroll.PeriodKey
	stage          BatchStage
	workflow       *PayrollWorkflowContext
	dispatcher     BatchDispatcher
	selected       map[uuid.UUID]struct{}
	order          []uuid.UUID
	idempotencyKey string
}

// NewBatchSelectionCoordinator creates an empty selection for a period and stage
func NewBatchSelectionCoordinator(
	key payroll.PeriodKey,
	stage BatchStage,
	workflow *PayrollWorkflowContext,
	dispatcher BatchDispatcher,
) *BatchSelectionCoordinator {
	return &BatchSelectionCoordinator{
		key:        key,
		stage:      stage,
		workflow:   workflow,
		dispatcher: dispatcher,
		selected:   make(map[uuid.UUID]struct{}),
	}
}

// Stage returns the stage of the selection
func (c *BatchSelectionCoordinator) Stage() BatchStage {
	return c.stage
}

// SetIdempotencyKey sets the key passed to ProcessPayments on dispatch
func (c *BatchSelectionCoordinator) SetIdempotencyKey(key string) {
	c.mu.Lock()
	c.idempotencyKey = key
	c.mu.Unlock()
}

// Toggle flips the selection of one record and reports whether it is now selected
func (c *BatchSelectionCoordinator) Toggle(id uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.selected[id]; ok {
		delete(c.selected, id)
		for i, v := range c.order {
			if v == id {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
		return false
	}
	c.selected[id] = struct{}{}
	c.order = append(c.order, id)
	return true
}

// SelectAll replaces the selection with every stage-eligible record that
// matches predicate. A nil predicate matches everything; the predicate can
// only narrow the eligible set.
func (c *BatchSelectionCoordinator) SelectAll(ctx context.Context, predicate func(*payroll.PayrollRecord) bool) (int, error) {
	snapshot, err := c.workflow.Snapshot(ctx, c.key)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
	for _, r := range snapshot.WithStatus(c.stage.EligibleStatus()) {
		if predicate != nil && !predicate(r) {
			continue
		}
		c.selected[r.ID] = struct{}{}
		c.order = append(c.order, r.ID)
	}
	return len(c.order), nil
}

// Clear empties the selection
func (c *BatchSelectionCoordinator) Clear() {
	c.mu.Lock()
	c.resetLocked()
	c.mu.Unlock()
}

// Selected returns the selected ids in selection order
func (c *BatchSelectionCoordinator) Selected() []uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uuid.UUID(nil), c.order...)
}

// Dispatch validates the selection against a fresh view of the period and
// runs the stage action. The selection is cleared only when the action succeeds.
func (c *BatchSelectionCoordinator) Dispatch(ctx context.Context) (*DispatchResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "batch_selection", "dispatch")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	telemetry.SetAttributes(span,
		telemetry.SpanAttrStage, string(c.stage),
		telemetry.SpanAttrPeriod, c.key.String(),
		telemetry.SpanAttrRecordCount, len(c.order),
	)

	if len(c.order) == 0 {
		return nil, shared.NewValidationError("no records selected for " + string(c.stage))
	}

	snapshot, err := c.workflow.Refresh(ctx, c.key)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	want := c.stage.EligibleStatus()
	var ineligible []string
	for _, id := range c.order {
		r, ok := snapshot.Record(id)
		if !ok || r.Status != want {
			ineligible = append(ineligible, id.String())
		}
	}
	if len(ineligible) > 0 {
		err := shared.NewValidationError(
			fmt.Sprintf("%d selected records are not eligible for %s", len(ineligible), c.stage),
			ineligible...,
		)
		telemetry.RecordError(span, err)
		return nil, err
	}

	ids := append([]uuid.UUID(nil), c.order...)
	result := &DispatchResult{Stage: c.stage}
	switch c.stage {
	case BatchStagePayments:
		result.Report, err = c.dispatcher.ProcessPayments(ctx, c.key.BusinessID, ids, c.key.Month, c.key.Year, c.idempotencyKey)
	default:
		result.Records, err = c.dispatcher.ApprovePeriod(ctx, c.key.BusinessID, ids, c.key.Month, c.key.Year)
	}
	if err != nil {
		telemetry.RecordError(span, err)
		return result, err
	}

	c.resetLocked()
	return result, nil
}

func (c *BatchSelectionCoordinator) resetLocked() {
	c.selected = make(map[uuid.UUID]struct{})
	c.order = nil
}
