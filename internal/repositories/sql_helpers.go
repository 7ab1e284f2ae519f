package repositories

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

// whereBuilder collects positional conditions for the list queries.
type whereBuilder struct {
	conditions []string
	args       []interface{}
}

func (w *whereBuilder) add(format string, args ...interface{}) {
	placeholders := make([]interface{}, len(args))
	for i := range args {
		placeholders[i] = fmt.Sprintf("$%d", len(w.args)+i+1)
	}
	w.conditions = append(w.conditions, fmt.Sprintf(format, placeholders...))
	w.args = append(w.args, args...)
}

func (w *whereBuilder) writeTo(b *strings.Builder) {
	if len(w.conditions) > 0 {
		b.WriteString(" WHERE " + strings.Join(w.conditions, " AND "))
	}
}

// writePage appends LIMIT/OFFSET when a page size is set.
func (w *whereBuilder) writePage(b *strings.Builder, page, pageSize int) {
	if pageSize <= 0 {
		return
	}
	b.WriteString(fmt.Sprintf(" LIMIT $%d", len(w.args)+1))
	w.args = append(w.args, pageSize)
	if page > 1 {
		b.WriteString(fmt.Sprintf(" OFFSET $%d", len(w.args)+1))
		w.args = append(w.args, (page-1)*pageSize)
	}
}
