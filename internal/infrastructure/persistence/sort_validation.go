package persistence

import (
	"strings"

	"github.com/hrpay/backend/internal/domain/shared"
)

// Columns a list endpoint may order by. The name is interpolated into
// ORDER BY, so anything else falls back to the repository default.
var (
	employeeSortColumns = map[string]bool{
		"created_at":      true,
		"updated_at":      true,
		"name":            true,
		"employee_number": true,
		"basic_salary":    true,
	}
	recordSortColumns = map[string]bool{
		"created_at":    true,
		"employee_name": true,
		"net_salary":    true,
		"gross_salary":  true,
		"status":        true,
	}
)

// orderClause renders the ORDER BY term for a list filter. Without an explicit
// column the fallback sorts ascending; an explicit column sorts descending
// unless asc is requested.
func orderClause(f shared.Filter, allowed map[string]bool, fallback string) string {
	column := strings.TrimSpace(f.OrderBy)
	if column == "" {
		return fallback + " ASC"
	}
	if !allowed[column] {
		column = fallback
	}
	if strings.EqualFold(strings.TrimSpace(f.OrderDir), "asc") {
		return column + " ASC"
	}
	return column + " DESC"
}
