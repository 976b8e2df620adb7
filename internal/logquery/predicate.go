package logquery

import (
	"strings"
)

// The clause builder assembles WHERE conditions as a small tree of
// predicate nodes instead of concatenated SQL strings. Rendering is the
// only place that knows dialect differences (ILIKE vs LIKE) and every
// user-supplied value becomes a ? bind argument, never inline text.

type pred interface {
	render(dialect string, sb *strings.Builder, args *[]any)
}

// and joins children with AND. Renders TRUE when empty.
type and []pred

// or joins children with OR. Renders FALSE when empty.
type or []pred

// not negates a child. An In child renders as NOT IN so the SQL stays
// readable in query logs.
type not struct{ p pred }

// in is col IN (...). An empty value list renders as IN (NULL), a
// predicate that matches nothing: an empty permitted-logger set must
// yield zero rows, not an unfiltered query.
type in struct {
	col  string
	vals []any
}

// like is a case-insensitive substring/pattern match on a column.
type like struct {
	col     string
	pattern string
}

// cmp is col <op> ?.
type cmp struct {
	col string
	op  string
	val any
}

// rawPred is an escape hatch for subquery fragments (context-table
// lookups). The fragment uses ? placeholders for its args.
type rawPred struct {
	sql  string
	args []any
}

func (p and) render(dialect string, sb *strings.Builder, args *[]any) {
	if len(p) == 0 {
		sb.WriteString("(1 = 1)")
		return
	}
	sb.WriteString("(")
	for i, child := range p {
		if i > 0 {
			sb.WriteString(" AND ")
		}
		child.render(dialect, sb, args)
	}
	sb.WriteString(")")
}

func (p or) render(dialect string, sb *strings.Builder, args *[]any) {
	if len(p) == 0 {
		sb.WriteString("(1 = 0)")
		return
	}
	sb.WriteString("(")
	for i, child := range p {
		if i > 0 {
			sb.WriteString(" OR ")
		}
		child.render(dialect, sb, args)
	}
	sb.WriteString(")")
}

func (p not) render(dialect string, sb *strings.Builder, args *[]any) {
	if inner, ok := p.p.(in); ok && len(inner.vals) > 0 {
		sb.WriteString(inner.col)
		sb.WriteString(" NOT IN (")
		for i, v := range inner.vals {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("?")
			*args = append(*args, v)
		}
		sb.WriteString(")")
		return
	}
	sb.WriteString("NOT ")
	var inner strings.Builder
	p.p.render(dialect, &inner, args)
	s := inner.String()
	if !strings.HasPrefix(s, "(") {
		sb.WriteString("(")
		sb.WriteString(s)
		sb.WriteString(")")
		return
	}
	sb.WriteString(s)
}

func (p in) render(_ string, sb *strings.Builder, args *[]any) {
	sb.WriteString(p.col)
	if len(p.vals) == 0 {
		sb.WriteString(" IN (NULL)")
		return
	}
	sb.WriteString(" IN (")
	for i, v := range p.vals {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("?")
		*args = append(*args, v)
	}
	sb.WriteString(")")
}

func (p like) render(dialect string, sb *strings.Builder, args *[]any) {
	sb.WriteString(p.col)
	if dialect == "postgres" {
		sb.WriteString(" ILIKE ?")
	} else {
		// sqlite LIKE is case-insensitive for ASCII by default, but has
		// no default escape character.
		sb.WriteString(` LIKE ? ESCAPE '\'`)
	}
	*args = append(*args, p.pattern)
}

func (p cmp) render(_ string, sb *strings.Builder, args *[]any) {
	sb.WriteString(p.col)
	sb.WriteString(" ")
	sb.WriteString(p.op)
	sb.WriteString(" ?")
	*args = append(*args, p.val)
}

func (p rawPred) render(_ string, sb *strings.Builder, args *[]any) {
	sb.WriteString("(")
	sb.WriteString(p.sql)
	sb.WriteString(")")
	*args = append(*args, p.args...)
}

// renderPreds renders an ordered predicate list AND-joined into one WHERE
// body plus its bind arguments.
func renderPreds(preds []pred, dialect string) (string, []any) {
	if len(preds) == 0 {
		return "(1 = 1)", nil
	}
	var sb strings.Builder
	var args []any
	for i, p := range preds {
		if i > 0 {
			sb.WriteString(" AND ")
		}
		p.render(dialect, &sb, &args)
	}
	return sb.String(), args
}

// likeContains wraps a term for substring matching, escaping LIKE
// metacharacters in the user's text.
func likeContains(term string) string {
	term = strings.ReplaceAll(term, `\`, `\\`)
	term = strings.ReplaceAll(term, "%", `\%`)
	term = strings.ReplaceAll(term, "_", `\_`)
	return "%" + term + "%"
}
