package repository

import (
	"context"
	"strings"

	"github.com/iliyamo/seat-booking/internal/model"
)

// EventSearchQuery defines filters & pagination for searching events.
type EventSearchQuery struct {
	Name          string // case-insensitive substring of the event name
	OnlyAvailable bool   // skip sold-out events
	Page          int    // 1-based
	PageSize      int
}

// Offset returns the number of rows skipped before the requested page.
func (q EventSearchQuery) Offset() int {
	if q.Page < 1 {
		return 0
	}
	return (q.Page - 1) * q.PageSize
}

// likePattern escapes LIKE wildcards in s and wraps it in %...%.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(s)) + "%"
}

// Search returns one page of matching events, newest first, together with
// the total number of matches.
func (r *EventRepo) Search(ctx context.Context, q EventSearchQuery) ([]model.Event, int64, error) {
	where := []string{}
	args := []any{}

	if q.Name != "" {
		where = append(where, "LOWER(name) LIKE ?")
		args = append(args, likePattern(q.Name))
	}
	if q.OnlyAvailable {
		where = append(where, "available_seats > 0")
	}

	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}

	ex := conn(ctx, r.db)
	var total int64
	if err := ex.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	dataSQL := `SELECT ` + eventColumns + ` FROM events WHERE ` + cond + `
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`
	argsData := append(append([]any{}, args...), q.PageSize, q.Offset())

	rows, err := ex.QueryContext(ctx, dataSQL, argsData...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]model.Event, 0, q.PageSize)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
