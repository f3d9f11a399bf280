// Package models holds the GORM row types of the payroll schema and their
// mappers to domain aggregates. Domain types carry no ORM tags; repositories
// read and write these rows and convert at the boundary.
//
// Tables:
//   - payroll_periods: one row per (business, month, year), the lock flag and status counts
//   - payroll_records: one employee's computed pay for a period, with its status history fields
//   - employees, employee_bank_accounts, employee_wallets: payees and their payment channel
//   - custom_deductions, deduction_installments: loans and advances recovered from net pay
//   - employee_documents: payslips and uploaded files kept in object storage
//
// The schema itself is owned by the SQL files under migrations/. PayrollModels
// lists the row types for AutoMigrate in tests that run on SQLite.
package models
