package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/solarvest/platform/internal/model"
)

// countable lists tables whose status column may be aggregated.
var countable = map[string]bool{
	"investors":          true,
	"investments":        true,
	"solar_applications": true,
	"transactions":       true,
	"kyc_documents":      true,
	"tickets":            true,
	"crm_contacts":       true,
}

// CountByStatus groups live rows of table by status. A non-nil period
// restricts rows to those created inside it.
func (r *Repository) CountByStatus(ctx context.Context, tenantID, table string, period *model.Period) ([]model.StatusCount, error) {
	if !countable[table] {
		return nil, fmt.Errorf("count by status: table %q not allowed", table)
	}
	w := tenantScope(tenantID)
	if period != nil {
		w.cmp("created_at", ">=", period.From)
		w.cmp("created_at", "<", period.To)
	}
	rows, err := r.db.Query(ctx,
		"SELECT status, COUNT(*) AS count FROM "+table+" "+w.sql()+" GROUP BY status ORDER BY status", w.args...)
	if err != nil {
		return nil, fmt.Errorf("count %s by status: %w", table, err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[model.StatusCount])
}

// InvestedTotals sums active and matured investments.
func (r *Repository) InvestedTotals(ctx context.Context, tenantID string) (total float64, active int64, err error) {
	err = r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)::float8,
			COUNT(*) FILTER (WHERE status = 'active')
		FROM investments
		WHERE tenant_id = $1 AND NOT deleted AND status IN ('active', 'matured')`, tenantID).Scan(&total, &active)
	if err != nil {
		return 0, 0, fmt.Errorf("invested totals: %w", err)
	}
	return total, active, nil
}

// MonthlyInvested returns one point per calendar month from since to now,
// including empty months.
func (r *Repository) MonthlyInvested(ctx context.Context, tenantID string, since time.Time) ([]model.MonthlyAmount, error) {
	rows, err := r.db.Query(ctx, `
		WITH months AS (
			SELECT generate_series(date_trunc('month', $2::timestamptz), date_trunc('month', now()), interval '1 month') AS m
		)
		SELECT to_char(months.m, 'YYYY-MM') AS month,
			COUNT(i.id) AS count,
			COALESCE(SUM(i.amount), 0)::float8 AS amount
		FROM months
		LEFT JOIN investments i
			ON i.tenant_id = $1 AND NOT i.deleted AND i.status <> 'cancelled'
			AND date_trunc('month', i.start_date::timestamptz) = months.m
		GROUP BY months.m
		ORDER BY months.m`, tenantID, since)
	if err != nil {
		return nil, fmt.Errorf("monthly invested: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[model.MonthlyAmount])
}

// TransactionTotals groups transactions in a period by "type" or "status".
// A non-empty status restricts the rows summed.
func (r *Repository) TransactionTotals(ctx context.Context, tenantID, groupBy string, period model.Period, status model.TransactionStatus) ([]model.AmountBreakdown, error) {
	if groupBy != "type" && groupBy != "status" {
		return nil, fmt.Errorf("transaction totals: cannot group by %q", groupBy)
	}
	w := tenantScope(tenantID)
	w.cmp("created_at", ">=", period.From)
	w.cmp("created_at", "<", period.To)
	eqIf(w, "status", status)
	rows, err := r.db.Query(ctx, `
		SELECT `+groupBy+` AS key, COUNT(*) AS count, COALESCE(SUM(amount), 0)::float8 AS amount
		FROM transactions `+w.sql()+`
		GROUP BY `+groupBy+` ORDER BY `+groupBy, w.args...)
	if err != nil {
		return nil, fmt.Errorf("transaction totals: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[model.AmountBreakdown])
}

// PendingKYCCount counts documents waiting for review.
func (r *Repository) PendingKYCCount(ctx context.Context, tenantID string) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM kyc_documents WHERE tenant_id = $1 AND NOT deleted AND status = 'pending'`,
		tenantID).Scan(&n)
	return n, err
}

// TicketLoad counts unresolved tickets and those past due at now.
func (r *Repository) TicketLoad(ctx context.Context, tenantID string, now time.Time) (open, overdue int64, err error) {
	err = r.db.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE due_at < $2)
		FROM tickets
		WHERE tenant_id = $1 AND NOT deleted AND status NOT IN ('resolved', 'closed')`,
		tenantID, now).Scan(&open, &overdue)
	if err != nil {
		return 0, 0, fmt.Errorf("ticket load: %w", err)
	}
	return open, overdue, nil
}

// MessageVolume counts inbound and outbound messages sent in a period.
func (r *Repository) MessageVolume(ctx context.Context, tenantID string, period model.Period) (inbound, outbound int64, err error) {
	err = r.db.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE direction = 'inbound'), COUNT(*) FILTER (WHERE direction = 'outbound')
		FROM crm_messages
		WHERE tenant_id = $1 AND sent_at >= $2 AND sent_at < $3`,
		tenantID, period.From, period.To).Scan(&inbound, &outbound)
	if err != nil {
		return 0, 0, fmt.Errorf("message volume: %w", err)
	}
	return inbound, outbound, nil
}

// AvgResponseSeconds averages reply delay for responses received in a period.
func (r *Repository) AvgResponseSeconds(ctx context.Context, tenantID string, period model.Period) (float64, error) {
	var avg float64
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(AVG(GREATEST(EXTRACT(EPOCH FROM responded_at - sent_at), 0)), 0)::float8
		FROM communication_responses
		WHERE tenant_id = $1 AND responded_at >= $2 AND responded_at < $3`,
		tenantID, period.From, period.To).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("avg response: %w", err)
	}
	return avg, nil
}

// AutomationTotals sums run and success counters across live automations.
func (r *Repository) AutomationTotals(ctx context.Context, tenantID string) (runs, successes int64, err error) {
	err = r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(run_count), 0)::bigint, COALESCE(SUM(success_count), 0)::bigint
		FROM crm_automations WHERE tenant_id = $1 AND NOT deleted`, tenantID).Scan(&runs, &successes)
	if err != nil {
		return 0, 0, fmt.Errorf("automation totals: %w", err)
	}
	return runs, successes, nil
}
