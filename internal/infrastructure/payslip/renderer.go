package payslip

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/hrpay/backend/internal/domain/payroll"
	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
)

const (
	labelWidth  = 120.0
	amountWidth = 60.0
	rowHeight   = 7.0
)

// Renderer draws A4 payslips for paid payroll records
type Renderer struct {
	company string
	now     func() time.Time
}

// NewRenderer creates a renderer that prints company in the header
func NewRenderer(company string) *Renderer {
	if company == "" {
		company = "Payroll"
	}
	return &Renderer{company: company, now: time.Now}
}

// Render implements the payslip renderer used by the payslip publisher
func (r *Renderer) Render(record *payroll.PayrollRecord, employee *payroll.Employee) ([]byte, error) {
	if record == nil || employee == nil {
		return nil, errors.New("payslip: record and employee are required")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Payslip %s %04d-%02d", employee.Name, record.Year, record.Month), true)
	pdf.SetCreator(r.company, true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, r.company, "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 7, "Payslip for "+periodLabel(record.Month, record.Year), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 10)
	detail(pdf, "Employee", employee.Name)
	detail(pdf, "Employee No.", employee.EmployeeNumber)
	if employee.Email != "" {
		detail(pdf, "Email", employee.Email)
	}
	detail(pdf, "Payment reference", record.PaymentReference)
	if record.PaidAt != nil {
		detail(pdf, "Paid on", record.PaidAt.Format("2006-01-02"))
	}
	pdf.Ln(4)

	section(pdf, "Earnings")
	row(pdf, "Basic salary", record.BasicSalary, record.Currency)
	for _, a := range record.Allowances {
		row(pdf, a.Name, a.Amount, record.Currency)
	}
	total(pdf, "Gross salary", record.GrossSalary, record.Currency)
	pdf.Ln(3)

	section(pdf, "Deductions")
	deducted := decimal.Zero
	for _, d := range record.Deductions {
		row(pdf, d.Name, d.Amount, record.Currency)
		deducted = deducted.Add(d.Amount)
	}
	total(pdf, "Total deductions", deducted, record.Currency)
	pdf.Ln(3)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(labelWidth, rowHeight+2, "Net pay", "T", 0, "L", false, 0, "")
	pdf.CellFormat(amountWidth, rowHeight+2, money(record.NetSalary, record.Currency), "T", 1, "R", false, 0, "")

	pdf.SetY(-20)
	pdf.SetFont("Helvetica", "I", 8)
	pdf.CellFormat(0, 5, fmt.Sprintf("Generated %s  Record %s", r.now().UTC().Format(time.RFC3339), record.ID), "", 0, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("payslip: render: %w", err)
	}
	return buf.Bytes(), nil
}

func detail(pdf *gofpdf.Fpdf, label, value string) {
	pdf.CellFormat(45, 6, label+":", "", 0, "L", false, 0, "")
	pdf.CellFormat(0, 6, value, "", 1, "L", false, 0, "")
}

func section(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetFillColor(235, 235, 235)
	pdf.CellFormat(labelWidth+amountWidth, rowHeight, title, "", 1, "L", true, 0, "")
	pdf.SetFont("Helvetica", "", 10)
}

func row(pdf *gofpdf.Fpdf, label string, amount decimal.Decimal, currency string) {
	pdf.CellFormat(labelWidth, rowHeight, label, "", 0, "L", false, 0, "")
	pdf.CellFormat(amountWidth, rowHeight, money(amount, currency), "", 1, "R", false, 0, "")
}

func total(pdf *gofpdf.Fpdf, label string, amount decimal.Decimal, currency string) {
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(labelWidth, rowHeight, label, "T", 0, "L", false, 0, "")
	pdf.CellFormat(amountWidth, rowHeight, money(amount, currency), "T", 1, "R", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
}

func money(amount decimal.Decimal, currency string) string {
	if currency == "" {
		return amount.StringFixed(2)
	}
	return currency + " " + amount.StringFixed(2)
}

func periodLabel(month, year int) string {
	if month < 1 || month > 12 {
		return fmt.Sprintf("%04d-%02d", year, month)
	}
	return fmt.Sprintf("%s %d", time.Month(month), year)
}
