package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/solarvest/platform/internal/model"
)

// where accumulates AND-ed conditions with positional arguments.
type where struct {
	conds []string
	args  []any
}

// tenantScope starts a filter on live rows of one tenant.
func tenantScope(tenantID string) *where {
	w := &where{}
	w.eq("tenant_id", tenantID)
	w.raw("NOT deleted")
	return w
}

func (w *where) arg(v any) string {
	w.args = append(w.args, v)
	return fmt.Sprintf("$%d", len(w.args))
}

func (w *where) raw(cond string) {
	w.conds = append(w.conds, cond)
}

func (w *where) eq(col string, v any) {
	w.conds = append(w.conds, col+" = "+w.arg(v))
}

// eqIf adds col = v unless v is the zero string.
func eqIf[T ~string](w *where, col string, v T) {
	if v != "" {
		w.eq(col, string(v))
	}
}

func (w *where) cmp(col, op string, v any) {
	w.conds = append(w.conds, col+" "+op+" "+w.arg(v))
}

// search matches q case-insensitively against any of cols.
func (w *where) search(q string, cols ...string) {
	q = strings.TrimSpace(q)
	if q == "" {
		return
	}
	p := w.arg("%" + escapeLike(q) + "%")
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = c + " ILIKE " + p
	}
	w.conds = append(w.conds, "("+strings.Join(parts, " OR ")+")")
}

func (w *where) sql() string {
	if len(w.conds) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(w.conds, " AND ")
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// list runs a count and a page query over table.
func list[T any](ctx context.Context, db querier, table, cols string, w *where, orderBy string, p model.Page) ([]*T, int64, error) {
	var total int64
	if err := db.QueryRow(ctx, "SELECT COUNT(*) FROM "+table+" "+w.sql(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count %s: %w", table, err)
	}

	args := append(slices.Clone(w.args), p.Limit, p.Offset())
	q := fmt.Sprintf("SELECT %s FROM %s %s ORDER BY %s LIMIT $%d OFFSET $%d",
		cols, table, w.sql(), orderBy, len(w.args)+1, len(w.args)+2)

	items, err := all[T](ctx, db, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list %s: %w", table, err)
	}
	return items, total, nil
}

// all collects every row of q.
func all[T any](ctx context.Context, db querier, q string, args ...any) ([]*T, error) {
	rows, err := db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[T])
}

// one returns ErrNotFound when q yields no row.
func one[T any](ctx context.Context, db querier, q string, args ...any) (*T, error) {
	rows, err := db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	item, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[T])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return item, err
}

// softDelete flags a live row as deleted.
func softDelete(ctx context.Context, db querier, table, tenantID, id string) error {
	tag, err := db.Exec(ctx,
		"UPDATE "+table+" SET deleted = TRUE, deleted_at = now(), updated_at = now() WHERE tenant_id = $1 AND id = $2 AND NOT deleted",
		tenantID, id)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// execOne maps a zero-row update to ErrNotFound.
func execOne(ctx context.Context, db querier, op, q string, args ...any) error {
	tag, err := db.Exec(ctx, q, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// insert maps unique violations to ErrDuplicate.
func insert(ctx context.Context, db querier, op, q string, args ...any) error {
	if _, err := db.Exec(ctx, q, args...); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
