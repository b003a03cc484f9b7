package export

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/solarvest/platform/internal/model"
)

// Dataset is the tabular result of an export query.
type Dataset struct {
	Columns []string
	Rows    [][]any
}

// dataset describes how one export type is selected.
type dataset struct {
	table   string
	columns []string
	// exprs holds SQL expressions for columns that need a cast; others select the column itself.
	exprs map[string]string
	// statusCol is the column the status filter applies to.
	statusCol string
}

var datasets = map[model.ExportType]dataset{
	model.ExportInvestors: {
		table:     "investors",
		columns:   []string{"id", "first_name", "last_name", "email", "phone", "type", "status", "kyc_status", "risk_profile", "country", "created_at"},
		statusCol: "status",
	},
	model.ExportInvestments: {
		table:   "investments",
		columns: []string{"id", "investor_id", "project_name", "amount", "currency", "expected_yield", "term_months", "start_date", "status", "paid_out", "created_at"},
		exprs: map[string]string{
			"amount":         "amount::float8",
			"expected_yield": "expected_yield::float8",
			"paid_out":       "paid_out::float8",
			"start_date":     "to_char(start_date, 'YYYY-MM-DD')",
		},
		statusCol: "status",
	},
	model.ExportTransactions: {
		table:   "transactions",
		columns: []string{"id", "reference", "investor_id", "investment_id", "type", "amount", "currency", "status", "due_date", "processed_at", "created_at"},
		exprs: map[string]string{
			"amount": "amount::float8",
		},
		statusCol: "status",
	},
	model.ExportApplications: {
		table:   "solar_applications",
		columns: []string{"id", "applicant_name", "applicant_email", "address", "property_type", "system_size_kw", "estimated_cost", "status", "submitted_at", "reviewed_at", "created_at"},
		exprs: map[string]string{
			"estimated_cost": "estimated_cost::float8",
		},
		statusCol: "status",
	},
	model.ExportCrmContacts: {
		table:   "crm_contacts",
		columns: []string{"id", "first_name", "last_name", "email", "phone", "company", "source", "status", "tags", "owner_id", "created_at"},
		exprs: map[string]string{
			"tags": "array_to_string(tags, ';')",
		},
		statusCol: "status",
	},
	model.ExportTickets: {
		table:     "tickets",
		columns:   []string{"id", "subject", "priority", "status", "category", "requester_email", "assigned_to", "due_at", "resolved_at", "created_at"},
		statusCol: "status",
	},
}

// query builds the tenant-scoped SELECT for an export type.
func (d dataset) query(tenantID string, f model.ExportFilters, limit int) (string, []any) {
	sel := make([]string, len(d.columns))
	for i, c := range d.columns {
		if e, ok := d.exprs[c]; ok {
			sel[i] = e + " AS " + c
		} else {
			sel[i] = c
		}
	}

	args := []any{tenantID}
	conds := []string{"tenant_id = $1", "NOT deleted"}
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add(d.statusCol+" = $%d", f.Status)
	}
	if f.CreatedFrom != nil {
		add("created_at >= $%d", *f.CreatedFrom)
	}
	if f.CreatedTo != nil {
		add("created_at < $%d", *f.CreatedTo)
	}
	args = append(args, limit)

	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY created_at, id LIMIT $%d",
		strings.Join(sel, ", "), d.table, strings.Join(conds, " AND "), len(args))
	return q, args
}

// SQLSource reads export rows from the operational database.
type SQLSource struct {
	db *sql.DB
}

// NewSQLSource creates a row source over db.
func NewSQLSource(db *sql.DB) *SQLSource {
	return &SQLSource{db: db}
}

// Fetch selects up to limit rows of the export type for a tenant.
func (s *SQLSource) Fetch(ctx context.Context, tenantID string, typ model.ExportType, f model.ExportFilters, limit int) (*Dataset, error) {
	d, ok := datasets[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, typ)
	}
	q, args := d.query(tenantID, f, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s rows: %w", typ, err)
	}
	defer rows.Close()

	out := &Dataset{Columns: d.columns, Rows: [][]any{}}
	for rows.Next() {
		vals := make([]any, len(d.columns))
		ptrs := make([]any, len(d.columns))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", typ, err)
		}
		for i, v := range vals {
			vals[i] = normalize(v)
		}
		out.Rows = append(out.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s rows: %w", typ, err)
	}
	return out, nil
}

// normalize maps driver values onto JSON-friendly types.
func normalize(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	default:
		return t
	}
}
