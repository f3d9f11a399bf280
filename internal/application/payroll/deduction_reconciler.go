package payroll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hrpay/backend/internal/domain/payroll"
	"github.com/hrpay/backend/internal/domain/shared"
	"github.com/hrpay/backend/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// EmployeeLines holds one employee's allowances and statutory deductions for a
// period, resolved before the processing transaction starts.
type EmployeeLines struct {
	Employee      *payroll.Employee
	GrossSalary   decimal.Decimal
	TaxableIncome decimal.Decimal
	Allowances    []payroll.AllowanceLine
	Statutory     []payroll.DeductionLine
}

// Reconciliation is the output of one processing run, ready to be inserted.
type Reconciliation struct {
	Records      []*payroll.PayrollRecord
	Installments []*payroll.DeductionInstallment
	Deductions   []*payroll.CustomDeduction
}

// DeductionReconciler turns employees, settings and tax results into tagged
// deduction lines, and keeps custom deduction balances in step with the
// installment ledger.
type DeductionReconciler struct {
	txScope         TransactionScope
	employeeRepo    payroll.EmployeeRepository
	deductionRepo   payroll.CustomDeductionRepository
	installmentRepo payroll.InstallmentRepository
	taxCalc         payroll.TaxCalculator
	eventPublisher  shared.EventPublisher
	metrics         WorkflowMetrics
	taxConcurrency  int
	logger          *zap.Logger
}

// NewDeductionReconciler creates a new DeductionReconciler
func NewDeductionReconciler(
	txScope TransactionScope,
	repos Repositories,
	taxCalc payroll.TaxCalculator,
	logger *zap.Logger,
) *DeductionReconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeductionReconciler{
		txScope:         txScope,
		employeeRepo:    repos.Employees,
		deductionRepo:   repos.Deductions,
		installmentRepo: repos.Installments,
		taxCalc:         taxCalc,
		metrics:         noopMetrics{},
		taxConcurrency:  1,
		logger:          logger,
	}
}

// SetEventPublisher sets the event publisher for deduction events
func (r *DeductionReconciler) SetEventPublisher(publisher shared.EventPublisher) {
	r.eventPublisher = publisher
}

// SetMetrics sets the metrics sink for tax engine calls
func (r *DeductionReconciler) SetMetrics(m WorkflowMetrics) {
	if m != nil {
		r.metrics = m
	}
}

// SetTaxConcurrency bounds the number of concurrent tax engine calls
func (r *DeductionReconciler) SetTaxConcurrency(n int) {
	if n < 1 {
		n = 1
	}
	r.taxConcurrency = n
}

// ResolveLines computes allowances and fetches statutory amounts for every
// employee. Tax engine failures abort the whole run with a RemoteError.
func (r *DeductionReconciler) ResolveLines(
	ctx context.Context,
	key payroll.PeriodKey,
	settings *payroll.Settings,
	employees []*payroll.Employee,
) ([]EmployeeLines, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "deduction_reconciler", "resolve_lines")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrPeriod, key.String(),
		telemetry.SpanAttrRecordCount, len(employees),
	)

	kinds := settings.Tax.Kinds()
	lines := make([]EmployeeLines, len(employees))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.taxConcurrency)
	for i, e := range employees {
		allowances, taxableAllowances := settings.ResolveAllowances(e)
		lines[i] = EmployeeLines{
			Employee:      e,
			GrossSalary:   e.BasicSalary.Add(payroll.SumAllowances(allowances)),
			TaxableIncome: e.BasicSalary.Add(taxableAllowances),
			Allowances:    allowances,
		}
		if len(kinds) == 0 {
			continue
		}

		i := i
		g.Go(func() (err error) {
			telemetry.WithProfileLabels(gctx, func(ctx context.Context) {
				err = r.fetchStatutory(ctx, key, settings, kinds, &lines[i])
			}, telemetry.ProfileLabelOperation, "tax_calculation")
			return err
		})
	}
	if err := g.Wait(); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return lines, nil
}

func (r *DeductionReconciler) fetchStatutory(
	ctx context.Context,
	key payroll.PeriodKey,
	settings *payroll.Settings,
	kinds []payroll.StatutoryKind,
	lines *EmployeeLines,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	result, err := r.taxCalc.Calculate(ctx, payroll.TaxRequest{
		BusinessID:     key.BusinessID,
		EmployeeID:     lines.Employee.ID,
		Month:          key.Month,
		Year:           key.Year,
		BasicSalary:    lines.Employee.BasicSalary,
		GrossSalary:    lines.GrossSalary,
		TaxableIncome:  lines.TaxableIncome,
		Kinds:          kinds,
		PersonalRelief: settings.Tax.PersonalRelief,
	})
	r.metrics.RecordRemoteCall(ctx, payroll.CollaboratorTaxEngine, time.Since(start), err)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return asRemoteError(payroll.CollaboratorTaxEngine, err)
	}

	for _, kind := range kinds {
		amount, ok := result.Amounts[kind]
		if !ok || amount.IsZero() {
			continue
		}
		line, err := payroll.NewStatutoryLine(kind, amount)
		if err != nil {
			return shared.NewRemoteError(payroll.CollaboratorTaxEngine, err)
		}
		lines.Statutory = append(lines.Statutory, line)
	}
	if result.TaxableIncome.IsPositive() {
		lines.TaxableIncome = result.TaxableIncome
	}
	return nil
}

// BuildRecords amortizes active custom deductions into the resolved lines and
// creates one Processed record per employee. It must run inside the
// processing transaction; deductions are saved through repos as they change.
func (r *DeductionReconciler) BuildRecords(
	ctx context.Context,
	repos TransactionalRepositories,
	period *payroll.PayrollPeriod,
	settings *payroll.Settings,
	lines []EmployeeLines,
) (*Reconciliation, error) {
	key := period.Key()
	employeeIDs := make([]uuid.UUID, len(lines))
	for i, l := range lines {
		employeeIDs[i] = l.Employee.ID
	}

	active, err := repos.DeductionRepo().FindActive(ctx, key.BusinessID, employeeIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load active deductions: %w", err)
	}
	byEmployee := make(map[uuid.UUID][]*payroll.CustomDeduction, len(lines))
	for _, d := range active {
		byEmployee[d.EmployeeID] = append(byEmployee[d.EmployeeID], d)
	}

	out := &Reconciliation{Records: make([]*payroll.PayrollRecord, 0, len(lines))}
	for _, l := range lines {
		recordID := uuid.New()
		deductions := append([]payroll.DeductionLine(nil), l.Statutory...)

		for _, d := range byEmployee[l.Employee.ID] {
			if !d.AppliesTo(key) {
				continue
			}
			line, installment, err := d.ApplyInstallment(key, recordID)
			if err != nil {
				return nil, err
			}
			if err := repos.DeductionRepo().SaveWithLock(ctx, d); err != nil {
				return nil, fmt.Errorf("failed to save deduction %s: %w", d.ID, err)
			}
			deductions = append(deductions, line)
			out.Installments = append(out.Installments, installment)
			out.Deductions = append(out.Deductions, d)
		}

		record, err := payroll.NewPayrollRecord(payroll.RecordInput{
			ID:            recordID,
			EmployeeID:    l.Employee.ID,
			EmployeeName:  l.Employee.Name,
			PeriodID:      period.ID,
			Key:           key,
			BasicSalary:   l.Employee.BasicSalary,
			Allowances:    l.Allowances,
			Deductions:    deductions,
			TaxableIncome: l.TaxableIncome,
			Currency:      settings.Currency,
		})
		if err != nil {
			return nil, err
		}
		out.Records = append(out.Records, record)
	}
	return out, nil
}

// ReverseInstallments gives back the installments applied to superseded
// records, so reprocessing a period never charges an installment twice.
func (r *DeductionReconciler) ReverseInstallments(
	ctx context.Context,
	repos TransactionalRepositories,
	businessID uuid.UUID,
	recordIDs []uuid.UUID,
	at time.Time,
) (int, error) {
	if len(recordIDs) == 0 {
		return 0, nil
	}
	open, err := repos.InstallmentRepo().FindOpenByRecords(ctx, recordIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to load installments: %w", err)
	}
	if len(open) == 0 {
		return 0, nil
	}

	ids := make([]uuid.UUID, 0, len(open))
	for _, inst := range open {
		ids = append(ids, inst.DeductionID)
	}
	deductions, err := repos.DeductionRepo().FindByIDs(ctx, businessID, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to load deductions: %w", err)
	}

	reversed := make([]uuid.UUID, 0, len(open))
	for _, inst := range open {
		d, ok := deductions[inst.DeductionID]
		if !ok {
			return 0, fmt.Errorf("deduction %s of installment %s not found", inst.DeductionID, inst.ID)
		}
		if err := d.Restore(inst.Amount); err != nil {
			return 0, err
		}
		if err := repos.DeductionRepo().SaveWithLock(ctx, d); err != nil {
			return 0, fmt.Errorf("failed to restore deduction %s: %w", d.ID, err)
		}
		reversed = append(reversed, inst.ID)
	}
	if err := repos.InstallmentRepo().MarkReversed(ctx, reversed, at); err != nil {
		return 0, fmt.Errorf("failed to reverse installments: %w", err)
	}
	return len(reversed), nil
}

// AddCustomDeduction creates an active deduction for an employee
func (r *DeductionReconciler) AddCustomDeduction(
	ctx context.Context,
	businessID uuid.UUID,
	req AddCustomDeductionRequest,
) (*payroll.CustomDeduction, error) {
	typ, err := payroll.ParseCustomDeductionType(req.Type)
	if err != nil {
		return nil, err
	}
	deduction, err := payroll.NewCustomDeduction(businessID, payroll.CustomDeductionInput{
		EmployeeID:    req.EmployeeID,
		Description:   req.Description,
		Type:          typ,
		Amount:        req.Amount,
		MonthlyAmount: req.MonthlyAmount,
		StartDate:     req.StartDate,
		EndDate:       req.EndDate,
	})
	if err != nil {
		return nil, err
	}

	if _, err := r.employeeRepo.FindByID(ctx, businessID, req.EmployeeID); err != nil {
		return nil, err
	}
	if err := r.deductionRepo.Create(ctx, deduction); err != nil {
		return nil, fmt.Errorf("failed to create deduction: %w", err)
	}

	r.logger.Info("custom deduction created",
		zap.String("business_id", businessID.String()),
		zap.String("deduction_id", deduction.ID.String()),
		zap.String("employee_id", deduction.EmployeeID.String()),
		zap.String("amount", deduction.Amount.String()),
	)
	publishEvents(ctx, r.eventPublisher, r.logger, deduction)
	return deduction, nil
}

// UpdateDeductionStatus applies an HR status change
func (r *DeductionReconciler) UpdateDeductionStatus(
	ctx context.Context,
	businessID, deductionID uuid.UUID,
	status string,
) (*payroll.CustomDeduction, error) {
	to, err := payroll.ParseDeductionStatus(status)
	if err != nil {
		return nil, err
	}

	var deduction *payroll.CustomDeduction
	err = r.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		d, err := repos.DeductionRepo().FindByID(ctx, businessID, deductionID)
		if err != nil {
			return err
		}
		before := d.Version
		if err := d.ChangeStatus(to); err != nil {
			return err
		}
		if d.Version != before {
			if err := repos.DeductionRepo().SaveWithLock(ctx, d); err != nil {
				return err
			}
		}
		deduction = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	publishEvents(ctx, r.eventPublisher, r.logger, deduction)
	return deduction, nil
}

// ListCustomDeductions lists every deduction of an employee
func (r *DeductionReconciler) ListCustomDeductions(ctx context.Context, businessID, employeeID uuid.UUID) ([]*payroll.CustomDeduction, error) {
	if _, err := r.employeeRepo.FindByID(ctx, businessID, employeeID); err != nil {
		return nil, err
	}
	return r.deductionRepo.FindByEmployee(ctx, businessID, employeeID)
}

// Ledger returns the installment history of a deduction
func (r *DeductionReconciler) Ledger(ctx context.Context, businessID, deductionID uuid.UUID) (*payroll.CustomDeduction, []*payroll.DeductionInstallment, error) {
	d, err := r.deductionRepo.FindByID(ctx, businessID, deductionID)
	if err != nil {
		return nil, nil, err
	}
	installments, err := r.installmentRepo.FindByDeduction(ctx, deductionID)
	if err != nil {
		return nil, nil, err
	}
	return d, installments, nil
}

// asRemoteError keeps domain errors from adapters and wraps everything else.
func asRemoteError(collaborator string, err error) error {
	var de *shared.DomainError
	if errors.As(err, &de) {
		return err
	}
	return shared.NewRemoteError(collaborator, err)
}
