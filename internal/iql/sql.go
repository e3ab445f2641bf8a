package iql

import (
	"fmt"
	"strconv"
	"strings"
)

// priorityRankSQL maps the priority column to PriorityRank.
const priorityRankSQL = "(CASE LOWER(i.priority) " +
	"WHEN 'highest' THEN 5 WHEN 'high' THEN 4 WHEN 'medium' THEN 3 " +
	"WHEN 'low' THEN 2 WHEN 'lowest' THEN 1 ELSE 3 END)"

// keyNumberSQL extracts the numeric part of PROJECT-123 keys for ordering.
const keyNumberSQL = "CAST(SUBSTR(i.key, INSTR(i.key, '-') + 1) AS INTEGER)"

// DefaultOrderBy is used when a query has no ORDER BY clause.
const DefaultOrderBy = "i.updated_at DESC, i.key ASC"

var columns = map[string]string{
	"key":      "i.key",
	"project":  "i.project",
	"type":     "i.issue_type",
	"status":   "i.status",
	"summary":  "i.summary",
	"assignee": "i.assignee",
	"parent":   "i.parent_key",
	"epic":     "i.epic_key",
	"created":  "i.created_at",
	"updated":  "i.updated_at",
}

// SQLBuilder converts a query AST to a SQLite WHERE and ORDER BY clause
// over the issues table aliased as i.
type SQLBuilder struct {
	query  *Query
	params []any
}

// NewSQLBuilder creates a builder for the query.
func NewSQLBuilder(query *Query) *SQLBuilder {
	return &SQLBuilder{query: query}
}

// Build generates the SQL WHERE clause and ORDER BY.
func (b *SQLBuilder) Build() (whereClause string, orderBy string, params []any) {
	if b.query.Filter != nil {
		whereClause = b.buildExpr(b.query.Filter)
	}
	if len(b.query.OrderBy) > 0 {
		orderBy = b.buildOrderBy()
	}
	return whereClause, orderBy, b.params
}

func (b *SQLBuilder) buildExpr(expr Expr) string {
	switch e := expr.(type) {
	case *BinaryExpr:
		op := "AND"
		if e.Op == TokenOr {
			op = "OR"
		}
		return fmt.Sprintf("(%s %s %s)", b.buildExpr(e.Left), op, b.buildExpr(e.Right))
	case *NotExpr:
		return fmt.Sprintf("NOT (%s)", b.buildExpr(e.Expr))
	case *CompareExpr:
		return b.buildCompare(e)
	case *InExpr:
		return b.buildIn(e)
	case *EmptyExpr:
		return b.buildEmpty(e)
	}
	return ""
}

func (b *SQLBuilder) buildCompare(e *CompareExpr) string {
	switch e.Field {
	case "label":
		return b.buildLabelCompare(e)
	case "priority":
		b.params = append(b.params, PriorityRank[strings.ToLower(e.Value.String)])
		return fmt.Sprintf("%s %s ?", priorityRankSQL, opToSQL(e.Op))
	case "type":
		b.params = append(b.params, strings.ToLower(e.Value.String))
		return fmt.Sprintf("LOWER(i.issue_type) %s ?", opToSQL(e.Op))
	}

	column := columns[e.Field]

	if e.Value.Type == ValueDate && Fields[e.Field] == FieldDate {
		return fmt.Sprintf("datetime(%s) %s %s", column, opToSQL(e.Op), b.dateToSQL(e.Value.String))
	}

	// Nullable columns compare as empty strings so != matches unset values.
	if nullableFields[e.Field] {
		column = fmt.Sprintf("COALESCE(%s, '')", column)
	}

	switch e.Op {
	case TokenContains:
		b.params = append(b.params, "%"+e.Value.String+"%")
		return fmt.Sprintf("%s LIKE ?", column)
	case TokenNotContains:
		b.params = append(b.params, "%"+e.Value.String+"%")
		return fmt.Sprintf("%s NOT LIKE ?", column)
	}

	b.params = append(b.params, e.Value.String)
	return fmt.Sprintf("%s %s ? COLLATE NOCASE", column, opToSQL(e.Op))
}

func (b *SQLBuilder) buildLabelCompare(e *CompareExpr) string {
	switch e.Op {
	case TokenContains:
		b.params = append(b.params, "%"+e.Value.String+"%")
		return "i.key IN (SELECT issue_key FROM labels WHERE label LIKE ?)"
	case TokenNotContains:
		b.params = append(b.params, "%"+e.Value.String+"%")
		return "i.key NOT IN (SELECT issue_key FROM labels WHERE label LIKE ?)"
	case TokenNeq:
		b.params = append(b.params, e.Value.String)
		return "i.key NOT IN (SELECT issue_key FROM labels WHERE label = ? COLLATE NOCASE)"
	default:
		b.params = append(b.params, e.Value.String)
		return "i.key IN (SELECT issue_key FROM labels WHERE label = ? COLLATE NOCASE)"
	}
}

func (b *SQLBuilder) buildIn(e *InExpr) string {
	placeholders := make([]string, len(e.Values))
	for i, v := range e.Values {
		placeholders[i] = "?"
		switch e.Field {
		case "priority":
			b.params = append(b.params, PriorityRank[strings.ToLower(v.String)])
		case "type":
			b.params = append(b.params, strings.ToLower(v.String))
		default:
			b.params = append(b.params, v.String)
		}
	}
	list := strings.Join(placeholders, ", ")

	op := "IN"
	if e.Not {
		op = "NOT IN"
	}

	switch e.Field {
	case "label":
		return fmt.Sprintf("i.key %s (SELECT issue_key FROM labels WHERE label IN (%s))", op, list)
	case "priority":
		return fmt.Sprintf("%s %s (%s)", priorityRankSQL, op, list)
	case "type":
		return fmt.Sprintf("LOWER(i.issue_type) %s (%s)", op, list)
	}

	column := columns[e.Field]
	if nullableFields[e.Field] {
		column = fmt.Sprintf("COALESCE(%s, '')", column)
	}
	return fmt.Sprintf("%s COLLATE NOCASE %s (%s)", column, op, list)
}

func (b *SQLBuilder) buildEmpty(e *EmptyExpr) string {
	if e.Field == "label" {
		if e.Not {
			return "i.key IN (SELECT issue_key FROM labels)"
		}
		return "i.key NOT IN (SELECT issue_key FROM labels)"
	}
	column := columns[e.Field]
	if e.Not {
		return fmt.Sprintf("COALESCE(%s, '') != ''", column)
	}
	return fmt.Sprintf("COALESCE(%s, '') = ''", column)
}

func opToSQL(op TokenType) string {
	switch op {
	case TokenNeq:
		return "!="
	case TokenLt:
		return "<"
	case TokenGt:
		return ">"
	case TokenLte:
		return "<="
	case TokenGte:
		return ">="
	default:
		return "="
	}
}

// dateToSQL converts a validated date value to a SQL expression.
func (b *SQLBuilder) dateToSQL(date string) string {
	switch date {
	case "today":
		return "date('now')"
	case "yesterday":
		return "date('now', '-1 day')"
	}

	if relativeDate.MatchString(date) {
		amount := date[1 : len(date)-1]
		switch date[len(date)-1] {
		case 'd':
			return fmt.Sprintf("datetime('now', '-%s days')", amount)
		case 'w':
			weeks, _ := strconv.Atoi(amount)
			return fmt.Sprintf("datetime('now', '-%d days')", weeks*7)
		case 'h':
			return fmt.Sprintf("datetime('now', '-%s hours')", amount)
		case 'm':
			return fmt.Sprintf("datetime('now', '-%s minutes')", amount)
		}
	}

	b.params = append(b.params, date)
	return "?"
}

func (b *SQLBuilder) buildOrderBy() string {
	var parts []string
	for _, term := range b.query.OrderBy {
		dir := "ASC"
		if term.Desc {
			dir = "DESC"
		}
		switch term.Field {
		case "priority":
			parts = append(parts, fmt.Sprintf("%s %s", priorityRankSQL, dir))
		case "key":
			parts = append(parts, fmt.Sprintf("i.project %s, %s %s", dir, keyNumberSQL, dir))
		default:
			parts = append(parts, fmt.Sprintf("%s %s", columns[term.Field], dir))
		}
	}
	return strings.Join(parts, ", ")
}
