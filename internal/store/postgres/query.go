package postgres

import (
	"fmt"
	"strings"

	"github.com/abelprasad/CryptoBear/internal/domain"
)

// listQuery accumulates WHERE conditions with positional arguments.
type listQuery struct {
	conds []string
	args  []any
}

// where adds a condition; "?" in cond is replaced by the next placeholder.
func (q *listQuery) where(cond string, arg any) {
	q.args = append(q.args, arg)
	q.conds = append(q.conds, strings.Replace(cond, "?", fmt.Sprintf("$%d", len(q.args)), 1))
}

// build renders base + filters + ordering + paging from opts.
func (q *listQuery) build(base, timeCol string, opts domain.ListOpts) (string, []any) {
	if opts.Since != nil {
		q.where(timeCol+" >= ?", *opts.Since)
	}
	if opts.Until != nil {
		q.where(timeCol+" <= ?", *opts.Until)
	}

	var sb strings.Builder
	sb.WriteString(base)
	if len(q.conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(q.conds, " AND "))
	}
	sb.WriteString(" ORDER BY " + timeCol + " DESC")

	args := q.args
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		fmt.Fprintf(&sb, " OFFSET $%d", len(args))
	}
	return sb.String(), args
}
