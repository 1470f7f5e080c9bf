package persistence

import (
	"strings"

	"github.com/erp/platform/internal/domain/shared"
	"gorm.io/gorm"
)

// listOrder whitelists the columns a listing may be ordered by.
// Requested names are matched exactly so they never reach SQL unvetted.
type listOrder struct {
	columns  map[string]bool
	fallback string
}

var (
	organizationOrder = listOrder{columns: OrganizationSortFields, fallback: "code"}
	entityOrder       = listOrder{columns: EntitySortFields, fallback: "created_at"}
	transactionOrder  = listOrder{columns: TransactionSortFields, fallback: "created_at"}
)

func (o listOrder) column(requested string) string {
	name := strings.TrimSpace(requested)
	if !o.columns[name] {
		return o.fallback
	}
	return name
}

// direction lists newest first unless ASC is asked for. The fallback column
// without an explicit direction lists ascending.
func (o listOrder) direction(requested, column string) string {
	switch strings.ToUpper(strings.TrimSpace(requested)) {
	case "ASC":
		return "ASC"
	case "":
		if column == o.fallback {
			return "ASC"
		}
	}
	return "DESC"
}

// clause renders the ORDER BY of filter with id as tie-breaker
func (o listOrder) clause(filter shared.Filter) string {
	col := o.column(filter.OrderBy)
	return col + " " + o.direction(filter.OrderDir, col) + ", id ASC"
}

// paginate orders query and applies the page window of filter
func (o listOrder) paginate(query *gorm.DB, filter shared.Filter) *gorm.DB {
	query = query.Order(o.clause(filter))
	if filter.PageSize > 0 {
		query = query.Offset(filter.Offset()).Limit(filter.PageSize)
	}
	return query
}
