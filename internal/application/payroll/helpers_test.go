package payroll_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	apppayroll "github.com/hrpay/backend/internal/application/payroll"
	"github.com/hrpay/backend/internal/domain/payroll"
	"github.com/hrpay/backend/internal/domain/shared"
	"github.com/hrpay/backend/internal/infrastructure/persistence"
	"github.com/hrpay/backend/internal/infrastructure/persistence/models"
	"github.com/hrpay/backend/internal/infrastructure/taxengine"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// scriptedGateway accepts transfers unless the employee is scripted to be
// declined or to fail in transport.
type scriptedGateway struct {
	mu       sync.Mutex
	declined map[uuid.UUID]string
	broken   map[uuid.UUID]error
	calls    []payroll.TransferRequest
	// afterAccept and afterDecline run once the gateway has answered
	afterAccept  func(payroll.TransferRequest)
	afterDecline func(payroll.TransferRequest)
}

func newScriptedGateway() *scriptedGateway {
	return &scriptedGateway{
		declined: make(map[uuid.UUID]string),
		broken:   make(map[uuid.UUID]error),
	}
}

func (g *scriptedGateway) Transfer(_ context.Context, req payroll.TransferRequest) (*payroll.TransferResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, req)
	if err, ok := g.broken[req.EmployeeID]; ok {
		return nil, err
	}
	if reason, ok := g.declined[req.EmployeeID]; ok {
		if g.afterDecline != nil {
			g.afterDecline(req)
		}
		return &payroll.TransferResult{Accepted: false, Reason: reason}, nil
	}
	if g.afterAccept != nil {
		g.afterAccept(req)
	}
	return &payroll.TransferResult{Accepted: true, ExternalID: "TX-" + req.Reference[:8]}, nil
}

func (g *scriptedGateway) heal(employeeID uuid.UUID) {
	g.mu.Lock()
	delete(g.declined, employeeID)
	delete(g.broken, employeeID)
	g.mu.Unlock()
}

func (g *scriptedGateway) transfers() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func (g *scriptedGateway) amounts() []decimal.Decimal {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]decimal.Decimal, len(g.calls))
	for i, c := range g.calls {
		out[i] = c.Amount
	}
	return out
}

// recordingPublisher keeps every published event
type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (p *recordingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	p.events = append(p.events, events...)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) ofType(eventType string) []shared.DomainEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []shared.DomainEvent
	for _, e := range p.events {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	t          *testing.T
	ctx        context.Context
	db         *gorm.DB
	businessID uuid.UUID
	repos      apppayroll.Repositories
	employees  *apppayroll.EmployeeService
	binder     *apppayroll.PaymentChannelBinder
	reconciler *apppayroll.DeductionReconciler
	machine    *apppayroll.PeriodStateMachine
	gateway    *scriptedGateway
	events     *recordingPublisher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.PayrollModels()...))

	logger := zaptest.NewLogger(t)
	repos := persistence.NewPayrollRepositories(db)
	txScope := persistence.NewGormTransactionScope(db)
	events := &recordingPublisher{}
	gateway := newScriptedGateway()

	binder := apppayroll.NewPaymentChannelBinder(txScope, repos.Employees, logger)
	binder.SetEventPublisher(events)
	reconciler := apppayroll.NewDeductionReconciler(txScope, repos, taxengine.NewStubCalculator(), logger)
	reconciler.SetTaxConcurrency(4)
	reconciler.SetEventPublisher(events)
	workflow := apppayroll.NewPayrollWorkflowContext(repos.Periods, repos.Records)
	machine := apppayroll.NewPeriodStateMachine(txScope, repos, reconciler, binder, gateway, workflow, logger)
	machine.SetEventPublisher(events)

	return &harness{
		t:          t,
		ctx:        context.Background(),
		db:         db,
		businessID: uuid.New(),
		repos:      repos,
		employees:  apppayroll.NewEmployeeService(txScope, repos.Employees, logger),
		binder:     binder,
		reconciler: reconciler,
		machine:    machine,
		gateway:    gateway,
		events:     events,
	}
}

func (h *harness) hire(name string, basic int64) *payroll.Employee {
	h.t.Helper()
	e, err := h.employees.Create(h.ctx, h.businessID, apppayroll.CreateEmployeeRequest{
		Name:        name,
		BasicSalary: decimal.NewFromInt(basic),
	})
	require.NoError(h.t, err)
	return e
}

func (h *harness) withBank(e *payroll.Employee) {
	h.t.Helper()
	_, err := h.binder.SetBankChannel(h.ctx, h.businessID, e.ID, []payroll.BankAccount{{
		BankName:      "Equity",
		AccountNumber: "0123456789",
		AccountType:   payroll.BankAccountSavings,
		IsPrimary:     true,
	}})
	require.NoError(h.t, err)
}

func (h *harness) withWallet(e *payroll.Employee) {
	h.t.Helper()
	_, err := h.binder.SetWalletChannel(h.ctx, h.businessID, e.ID, "MPESA", "0712345678", true)
	require.NoError(h.t, err)
}

func (h *harness) process(month, year int) []*payroll.PayrollRecord {
	h.t.Helper()
	records, err := h.machine.ProcessPeriod(h.ctx, h.businessID, month, year, defaultSettings())
	require.NoError(h.t, err)
	return records
}

func (h *harness) approveAll(month, year int, records []*payroll.PayrollRecord) []*payroll.PayrollRecord {
	h.t.Helper()
	approved, err := h.machine.ApprovePeriod(h.ctx, h.businessID, ids(records), month, year)
	require.NoError(h.t, err)
	return approved
}

func (h *harness) record(id uuid.UUID) *payroll.PayrollRecord {
	h.t.Helper()
	r, err := h.machine.GetRecord(h.ctx, h.businessID, id)
	require.NoError(h.t, err)
	return r
}

func defaultSettings() *payroll.Settings {
	return &payroll.Settings{
		Currency: "KES",
		Tax: payroll.TaxSettings{
			PAYE:           true,
			NHIF:           true,
			NSSF:           true,
			PersonalRelief: true,
		},
		Allowances: []payroll.AllowanceDefinition{
			{Name: "house", Mode: payroll.AllowanceModeFixed, Value: decimal.NewFromInt(5000), Enabled: true, Taxable: true},
			{Name: "commuter", Mode: payroll.AllowanceModePercentage, Value: decimal.NewFromInt(5), Enabled: true},
			{Name: "airtime", Mode: payroll.AllowanceModeFixed, Value: decimal.NewFromInt(1000), Enabled: false},
		},
	}
}

func ids(records []*payroll.PayrollRecord) []uuid.UUID {
	out := make([]uuid.UUID, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func byEmployee(records []*payroll.PayrollRecord) map[uuid.UUID]*payroll.PayrollRecord {
	out := make(map[uuid.UUID]*payroll.PayrollRecord, len(records))
	for _, r := range records {
		out[r.EmployeeID] = r
	}
	return out
}

func outcomeOf(report *payroll.PaymentReport, recordID uuid.UUID) payroll.RecordOutcome {
	for _, o := range report.Outcomes {
		if o.RecordID == recordID {
			return o
		}
	}
	return payroll.RecordOutcome{}
}

func domainError(t *testing.T, err error) *shared.DomainError {
	t.Helper()
	var de *shared.DomainError
	require.True(t, errors.As(err, &de), "expected a domain error, got %v", err)
	return de
}
