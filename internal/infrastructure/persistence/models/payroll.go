package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/hrpay/backend/internal/domain/payroll"
	"github.com/hrpay/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// PayrollPeriodModel is the persistence model for a payroll period row.
// The row carries the lock flag that blocks reprocessing once a record is paid.
type PayrollPeriodModel struct {
	BaseModel
	TenantID     uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_payroll_period_key,priority:1"`
	Version      int        `gorm:"not null;default:1"`
	Month        int        `gorm:"not null;uniqueIndex:idx_payroll_period_key,priority:2"`
	Year         int        `gorm:"not null;uniqueIndex:idx_payroll_period_key,priority:3"`
	Locked       bool       `gorm:"not null;default:false"`
	LockedAt     *time.Time `gorm:"type:timestamp"`
	ProcessedAt  *time.Time `gorm:"type:timestamp"`
	RunCount     int        `gorm:"not null;default:0"`
	SettingsJSON string     `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (PayrollPeriodModel) TableName() string {
	return "payroll_periods"
}

// ToDomain converts the persistence model to a domain PayrollPeriod
func (m *PayrollPeriodModel) ToDomain() *payroll.PayrollPeriod {
	return &payroll.PayrollPeriod{
		TenantAggregateRoot: shared.TenantAggregateRoot{
			BaseAggregateRoot: shared.BaseAggregateRoot{
				BaseEntity: m.BaseModel.ToDomain(),
				Version:    m.Version,
			},
			TenantID: m.TenantID,
		},
		Month:        m.Month,
		Year:         m.Year,
		Locked:       m.Locked,
		LockedAt:     m.LockedAt,
		ProcessedAt:  m.ProcessedAt,
		RunCount:     m.RunCount,
		SettingsJSON: m.SettingsJSON,
	}
}

// PayrollPeriodModelFromDomain creates a persistence model from a domain PayrollPeriod
func PayrollPeriodModelFromDomain(p *payroll.PayrollPeriod) *PayrollPeriodModel {
	m := &PayrollPeriodModel{
		Month:        p.Month,
		Year:         p.Year,
		Locked:       p.Locked,
		LockedAt:     p.LockedAt,
		ProcessedAt:  p.ProcessedAt,
		RunCount:     p.RunCount,
		SettingsJSON: p.SettingsJSON,
		TenantID:     p.TenantID,
		Version:      p.Version,
	}
	m.FromDomainBaseEntity(p.BaseEntity)
	return m
}

// PayrollRecordModel is the persistence model for the PayrollRecord aggregate.
// Allowance and deduction lines are stored as JSON; the deduction tag travels
// with each line so categorisation never depends on the line name.
type PayrollRecordModel struct {
	TenantAggregateModel
	EmployeeID       uuid.UUID               `gorm:"type:uuid;not null;index:idx_payroll_record_employee"`
	EmployeeName     string                  `gorm:"type:varchar(200);not null"`
	PeriodID         uuid.UUID               `gorm:"type:uuid;not null;index"`
	Month            int                     `gorm:"not null;index:idx_payroll_record_period,priority:2"`
	Year             int                     `gorm:"not null;index:idx_payroll_record_period,priority:3"`
	BasicSalary      decimal.Decimal         `gorm:"type:decimal(18,2);not null"`
	Allowances       []payroll.AllowanceLine `gorm:"type:text;serializer:json"`
	Deductions       []payroll.DeductionLine `gorm:"type:text;serializer:json"`
	GrossSalary      decimal.Decimal         `gorm:"type:decimal(18,2);not null"`
	TaxableIncome    decimal.Decimal         `gorm:"type:decimal(18,2);not null"`
	NetSalary        decimal.Decimal         `gorm:"type:decimal(18,2);not null"`
	Currency         string                  `gorm:"type:varchar(3);not null"`
	Status           string                  `gorm:"type:varchar(20);not null;index"`
	FailureReason    string                  `gorm:"type:varchar(500)"`
	PaymentReference string                  `gorm:"type:varchar(100)"`
	ApprovedAt       *time.Time              `gorm:"type:timestamp"`
	PaidAt           *time.Time              `gorm:"type:timestamp"`
	SupersededAt     *time.Time              `gorm:"type:timestamp;index"`
}

// TableName returns the table name for GORM
func (PayrollRecordModel) TableName() string {
	return "payroll_records"
}

// ToDomain converts the persistence model to a domain PayrollRecord
func (m *PayrollRecordModel) ToDomain() *payroll.PayrollRecord {
	return &payroll.PayrollRecord{
		TenantAggregateRoot: m.ToDomainTenantAggregateRoot(),
		EmployeeID:          m.EmployeeID,
		EmployeeName:        m.EmployeeName,
		PeriodID:            m.PeriodID,
		Month:               m.Month,
		Year:                m.Year,
		BasicSalary:         m.BasicSalary,
		Allowances:          m.Allowances,
		Deductions:          m.Deductions,
		GrossSalary:         m.GrossSalary,
		TaxableIncome:       m.TaxableIncome,
		NetSalary:           m.NetSalary,
		Currency:            m.Currency,
		Status:              payroll.RecordStatus(m.Status),
		FailureReason:       m.FailureReason,
		PaymentReference:    m.PaymentReference,
		ApprovedAt:          m.ApprovedAt,
		PaidAt:              m.PaidAt,
		SupersededAt:        m.SupersededAt,
	}
}

// PayrollRecordModelFromDomain creates a persistence model from a domain PayrollRecord
func PayrollRecordModelFromDomain(r *payroll.PayrollRecord) *PayrollRecordModel {
	m := &PayrollRecordModel{
		EmployeeID:       r.EmployeeID,
		EmployeeName:     r.EmployeeName,
		PeriodID:         r.PeriodID,
		Month:            r.Month,
		Year:             r.Year,
		BasicSalary:      r.BasicSalary,
		Allowances:       r.Allowances,
		Deductions:       r.Deductions,
		GrossSalary:      r.GrossSalary,
		TaxableIncome:    r.TaxableIncome,
		NetSalary:        r.NetSalary,
		Currency:         r.Currency,
		Status:           string(r.Status),
		FailureReason:    r.FailureReason,
		PaymentReference: r.PaymentReference,
		ApprovedAt:       r.ApprovedAt,
		PaidAt:           r.PaidAt,
		SupersededAt:     r.SupersededAt,
	}
	m.FromDomainTenantAggregateRoot(r.TenantAggregateRoot)
	return m
}

// EmployeeModel is the persistence model for the Employee aggregate.
// Channel rows live in their own tables and are replaced on every save.
type EmployeeModel struct {
	TenantAggregateModel
	EmployeeNumber     string                     `gorm:"type:varchar(50);index"`
	Name               string                     `gorm:"type:varchar(200);not null"`
	Email              string                     `gorm:"type:varchar(200)"`
	BasicSalary        decimal.Decimal            `gorm:"type:decimal(18,2);not null"`
	Active             bool                       `gorm:"not null;index"`
	AllowanceOverrides map[string]decimal.Decimal `gorm:"type:text;serializer:json"`
	BankAccounts       []BankAccountModel         `gorm:"foreignKey:EmployeeID;references:ID"`
	Wallet             *WalletModel               `gorm:"foreignKey:EmployeeID;references:ID"`
}

// TableName returns the table name for GORM
func (EmployeeModel) TableName() string {
	return "employees"
}

// ToDomain converts the persistence model to a domain Employee
func (m *EmployeeModel) ToDomain() *payroll.Employee {
	e := &payroll.Employee{
		TenantAggregateRoot: m.ToDomainTenantAggregateRoot(),
		EmployeeNumber:      m.EmployeeNumber,
		Name:                m.Name,
		Email:               m.Email,
		BasicSalary:         m.BasicSalary,
		Active:              m.Active,
		AllowanceOverrides:  m.AllowanceOverrides,
	}
	if len(m.BankAccounts) > 0 {
		e.BankAccounts = make([]payroll.BankAccount, len(m.BankAccounts))
		for i := range m.BankAccounts {
			e.BankAccounts[i] = m.BankAccounts[i].ToDomain()
		}
	}
	if m.Wallet != nil {
		e.Wallet = m.Wallet.ToDomain()
	}
	return e
}

// EmployeeModelFromDomain creates a persistence model from a domain Employee
func EmployeeModelFromDomain(e *payroll.Employee) *EmployeeModel {
	m := &EmployeeModel{
		EmployeeNumber:     e.EmployeeNumber,
		Name:               e.Name,
		Email:              e.Email,
		BasicSalary:        e.BasicSalary,
		Active:             e.Active,
		AllowanceOverrides: e.AllowanceOverrides,
	}
	m.FromDomainTenantAggregateRoot(e.TenantAggregateRoot)
	m.BankAccounts = make([]BankAccountModel, len(e.BankAccounts))
	for i, a := range e.BankAccounts {
		m.BankAccounts[i] = BankAccountModelFromDomain(e, a)
		m.BankAccounts[i].Position = i
	}
	if e.Wallet != nil {
		m.Wallet = WalletModelFromDomain(e, e.Wallet)
	}
	return m
}

// BankAccountModel is one bank destination row of an employee
type BankAccountModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primary_key"`
	TenantID      uuid.UUID `gorm:"type:uuid;not null;index"`
	EmployeeID    uuid.UUID `gorm:"type:uuid;not null;index"`
	BankName      string    `gorm:"type:varchar(100);not null"`
	AccountNumber string    `gorm:"type:varchar(50);not null"`
	AccountType   string    `gorm:"type:varchar(20);not null"`
	IsPrimary     bool      `gorm:"not null;default:false"`
	Position      int       `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (BankAccountModel) TableName() string {
	return "employee_bank_accounts"
}

// ToDomain converts the row to a domain BankAccount
func (m *BankAccountModel) ToDomain() payroll.BankAccount {
	return payroll.BankAccount{
		ID:            m.ID,
		BankName:      m.BankName,
		AccountNumber: m.AccountNumber,
		AccountType:   payroll.BankAccountType(m.AccountType),
		IsPrimary:     m.IsPrimary,
	}
}

// BankAccountModelFromDomain creates a row for an employee's bank account
func BankAccountModelFromDomain(e *payroll.Employee, a payroll.BankAccount) BankAccountModel {
	return BankAccountModel{
		ID:            a.ID,
		TenantID:      e.TenantID,
		EmployeeID:    e.ID,
		BankName:      a.BankName,
		AccountNumber: a.AccountNumber,
		AccountType:   string(a.AccountType),
		IsPrimary:     a.IsPrimary,
	}
}

// WalletModel is the mobile wallet row of an employee (at most one)
type WalletModel struct {
	EmployeeID  uuid.UUID `gorm:"type:uuid;primary_key"`
	TenantID    uuid.UUID `gorm:"type:uuid;not null;index"`
	WalletID    string    `gorm:"type:varchar(100);not null"`
	PhoneNumber string    `gorm:"type:varchar(20);not null"`
	IsActive    bool      `gorm:"not null"`
}

// TableName returns the table name for GORM
func (WalletModel) TableName() string {
	return "employee_wallets"
}

// ToDomain converts the row to a domain Wallet
func (m *WalletModel) ToDomain() *payroll.Wallet {
	return &payroll.Wallet{
		WalletID:    m.WalletID,
		PhoneNumber: m.PhoneNumber,
		IsActive:    m.IsActive,
	}
}

// WalletModelFromDomain creates the wallet row of an employee
func WalletModelFromDomain(e *payroll.Employee, w *payroll.Wallet) *WalletModel {
	return &WalletModel{
		EmployeeID:  e.ID,
		TenantID:    e.TenantID,
		WalletID:    w.WalletID,
		PhoneNumber: w.PhoneNumber,
		IsActive:    w.IsActive,
	}
}

// CustomDeductionModel is the persistence model for the CustomDeduction aggregate
type CustomDeductionModel struct {
	TenantAggregateModel
	EmployeeID      uuid.UUID       `gorm:"type:uuid;not null;index"`
	Description     string          `gorm:"type:varchar(255);not null"`
	Type            string          `gorm:"type:varchar(30);not null"`
	Amount          decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	MonthlyAmount   decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	RemainingAmount decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	StartDate       time.Time       `gorm:"type:date;not null"`
	EndDate         *time.Time      `gorm:"type:date"`
	Status          string          `gorm:"type:varchar(20);not null;index"`
	CompletedAt     *time.Time      `gorm:"type:timestamp"`
}

// TableName returns the table name for GORM
func (CustomDeductionModel) TableName() string {
	return "custom_deductions"
}

// ToDomain converts the persistence model to a domain CustomDeduction
func (m *CustomDeductionModel) ToDomain() *payroll.CustomDeduction {
	return &payroll.CustomDeduction{
		TenantAggregateRoot: m.ToDomainTenantAggregateRoot(),
		EmployeeID:          m.EmployeeID,
		Description:         m.Description,
		Type:                payroll.CustomDeductionType(m.Type),
		Amount:              m.Amount,
		MonthlyAmount:       m.MonthlyAmount,
		RemainingAmount:     m.RemainingAmount,
		StartDate:           m.StartDate,
		EndDate:             m.EndDate,
		Status:              payroll.DeductionStatus(m.Status),
		CompletedAt:         m.CompletedAt,
	}
}

// CustomDeductionModelFromDomain creates a persistence model from a domain CustomDeduction
func CustomDeductionModelFromDomain(d *payroll.CustomDeduction) *CustomDeductionModel {
	m := &CustomDeductionModel{
		EmployeeID:      d.EmployeeID,
		Description:     d.Description,
		Type:            string(d.Type),
		Amount:          d.Amount,
		MonthlyAmount:   d.MonthlyAmount,
		RemainingAmount: d.RemainingAmount,
		StartDate:       d.StartDate,
		EndDate:         d.EndDate,
		Status:          string(d.Status),
		CompletedAt:     d.CompletedAt,
	}
	m.FromDomainTenantAggregateRoot(d.TenantAggregateRoot)
	return m
}

// DeductionInstallmentModel is one ledger row of an applied installment
type DeductionInstallmentModel struct {
	BaseModel
	TenantID    uuid.UUID       `gorm:"type:uuid;not null;index"`
	DeductionID uuid.UUID       `gorm:"type:uuid;not null;index"`
	EmployeeID  uuid.UUID       `gorm:"type:uuid;not null"`
	RecordID    uuid.UUID       `gorm:"type:uuid;not null;index"`
	Month       int             `gorm:"not null"`
	Year        int             `gorm:"not null"`
	Amount      decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	ReversedAt  *time.Time      `gorm:"type:timestamp"`
}

// TableName returns the table name for GORM
func (DeductionInstallmentModel) TableName() string {
	return "deduction_installments"
}

// ToDomain converts the row to a domain DeductionInstallment
func (m *DeductionInstallmentModel) ToDomain() *payroll.DeductionInstallment {
	return &payroll.DeductionInstallment{
		BaseEntity:  m.BaseModel.ToDomain(),
		TenantID:    m.TenantID,
		DeductionID: m.DeductionID,
		EmployeeID:  m.EmployeeID,
		RecordID:    m.RecordID,
		Month:       m.Month,
		Year:        m.Year,
		Amount:      m.Amount,
		ReversedAt:  m.ReversedAt,
	}
}

// DeductionInstallmentModelFromDomain creates a ledger row
func DeductionInstallmentModelFromDomain(i *payroll.DeductionInstallment) *DeductionInstallmentModel {
	m := &DeductionInstallmentModel{
		TenantID:    i.TenantID,
		DeductionID: i.DeductionID,
		EmployeeID:  i.EmployeeID,
		RecordID:    i.RecordID,
		Month:       i.Month,
		Year:        i.Year,
		Amount:      i.Amount,
		ReversedAt:  i.ReversedAt,
	}
	m.FromDomainBaseEntity(i.BaseEntity)
	return m
}

// EmployeeDocumentModel is the persistence model for an employee document
type EmployeeDocumentModel struct {
	TenantAggregateModel
	EmployeeID   uuid.UUID  `gorm:"type:uuid;not null;index"`
	Kind         string     `gorm:"type:varchar(20);not null"`
	FileName     string     `gorm:"type:varchar(255);not null"`
	ContentType  string     `gorm:"type:varchar(100);not null"`
	StorageKey   string     `gorm:"type:varchar(500);not null;uniqueIndex"`
	SizeBytes    int64      `gorm:"not null;default:0"`
	Status       string     `gorm:"type:varchar(20);not null"`
	RecordID     *uuid.UUID `gorm:"type:uuid;index"`
	RegisteredAt *time.Time `gorm:"type:timestamp"`
}

// TableName returns the table name for GORM
func (EmployeeDocumentModel) TableName() string {
	return "employee_documents"
}

// ToDomain converts the persistence model to a domain EmployeeDocument
func (m *EmployeeDocumentModel) ToDomain() *payroll.EmployeeDocument {
	return &payroll.EmployeeDocument{
		TenantAggregateRoot: m.ToDomainTenantAggregateRoot(),
		EmployeeID:          m.EmployeeID,
		Kind:                payroll.DocumentKind(m.Kind),
		FileName:            m.FileName,
		ContentType:         m.ContentType,
		StorageKey:          m.StorageKey,
		SizeBytes:           m.SizeBytes,
		Status:              payroll.DocumentStatus(m.Status),
		RecordID:            m.RecordID,
		RegisteredAt:        m.RegisteredAt,
	}
}

// EmployeeDocumentModelFromDomain creates a persistence model from a domain EmployeeDocument
func EmployeeDocumentModelFromDomain(d *payroll.EmployeeDocument) *EmployeeDocumentModel {
	m := &EmployeeDocumentModel{
		EmployeeID:   d.EmployeeID,
		Kind:         string(d.Kind),
		FileName:     d.FileName,
		ContentType:  d.ContentType,
		StorageKey:   d.StorageKey,
		SizeBytes:    d.SizeBytes,
		Status:       string(d.Status),
		RecordID:     d.RecordID,
		RegisteredAt: d.RegisteredAt,
	}
	m.FromDomainTenantAggregateRoot(d.TenantAggregateRoot)
	return m
}

// PayrollModels lists every payroll table for AutoMigrate in tests and dev setups
func PayrollModels() []any {
	return []any{
		&PayrollPeriodModel{},
		&PayrollRecordModel{},
		&EmployeeModel{},
		&BankAccountModel{},
		&WalletModel{},
		&CustomDeductionModel{},
		&DeductionInstallmentModel{},
		&EmployeeDocumentModel{},
	}
}
