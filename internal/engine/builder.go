package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// quoteIdent backtick-quotes an identifier. Only identifiers that already
// passed the registry whitelist reach this point; the quoting guards
// against reserved words, not against hostile input.
func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "") + "`"
}

// Compile deterministically turns a validated plan into a parameterized
// query plus the positionally bound literal values. It cannot fail: every
// invariant is enforced at plan construction.
func Compile(p *QueryPlan) (string, []any) {
	var sb strings.Builder
	var args []any

	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(selectList(p), ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(quoteIdent(p.table.Name))

	args = appendWhere(&sb, p.filter, args)
	appendGroupOrder(&sb, p)

	sb.WriteString(" LIMIT ? OFFSET ?")
	args = append(args, p.pageSize, (p.page-1)*p.pageSize)

	return sb.String(), args
}

// CompileExport compiles the plan without pagination for full exports.
// limit of 0 means unbounded; a positive limit is bound as a parameter.
func CompileExport(p *QueryPlan, limit int) (string, []any) {
	var sb strings.Builder
	var args []any

	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(selectList(p), ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(quoteIdent(p.table.Name))

	args = appendWhere(&sb, p.filter, args)
	appendGroupOrder(&sb, p)

	if limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, limit)
	}
	return sb.String(), args
}

// CompileCount builds the parallel total-count query: identical filter, no
// sort or pagination. Grouped plans count result groups via a subquery.
func CompileCount(p *QueryPlan) (string, []any) {
	var sb strings.Builder
	var args []any

	if p.Aggregated() {
		group := groupSelectList(p)
		if len(group) == 0 {
			// A global aggregate collapses to exactly one result row.
			return "SELECT toUInt64(1)", nil
		}
		sb.WriteString("SELECT count() FROM (SELECT ")
		sb.WriteString(strings.Join(group, ", "))
		sb.WriteString(" FROM ")
		sb.WriteString(quoteIdent(p.table.Name))
		args = appendWhere(&sb, p.filter, args)
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(groupList(p), ", "))
		sb.WriteString(")")
		return sb.String(), args
	}

	sb.WriteString("SELECT count() FROM ")
	sb.WriteString(quoteIdent(p.table.Name))
	args = appendWhere(&sb, p.filter, args)
	return sb.String(), args
}

// appendGroupOrder writes the GROUP BY and ORDER BY clauses. Either clause
// is omitted when it has no keys: a global aggregate groups over the whole
// table and its single result row needs no ordering.
func appendGroupOrder(sb *strings.Builder, p *QueryPlan) {
	if p.Aggregated() {
		if group := groupList(p); len(group) > 0 {
			sb.WriteString(" GROUP BY ")
			sb.WriteString(strings.Join(group, ", "))
		}
	}
	if order := orderList(p); len(order) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(order, ", "))
	}
}

func appendWhere(sb *strings.Builder, filter *FilterGroup, args []any) []any {
	clause, filterArgs := compileGroup(filter)
	if clause != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(clause)
	}
	return append(args, filterArgs...)
}

func selectList(p *QueryPlan) []string {
	if p.Aggregated() {
		var parts []string
		if p.bucket != nil {
			parts = append(parts, bucketExpr(p.bucket)+" AS "+quoteIdent(TimeBucketAlias))
		}
		for _, g := range p.groupBy {
			parts = append(parts, quoteIdent(g))
		}
		for _, agg := range p.aggregates {
			parts = append(parts, aggregateExpr(agg)+" AS "+quoteIdent(agg.Alias))
		}
		return parts
	}
	if len(p.columns) == 0 {
		return []string{"*"}
	}
	parts := make([]string, len(p.columns))
	for i, c := range p.columns {
		parts[i] = quoteIdent(c)
	}
	return parts
}

// groupSelectList is the bare group-key select list used by the grouped
// count subquery.
func groupSelectList(p *QueryPlan) []string {
	var parts []string
	if p.bucket != nil {
		parts = append(parts, bucketExpr(p.bucket)+" AS "+quoteIdent(TimeBucketAlias))
	}
	for _, g := range p.groupBy {
		parts = append(parts, quoteIdent(g))
	}
	return parts
}

func groupList(p *QueryPlan) []string {
	var parts []string
	if p.bucket != nil {
		parts = append(parts, quoteIdent(TimeBucketAlias))
	}
	for _, g := range p.groupBy {
		parts = append(parts, quoteIdent(g))
	}
	return parts
}

// orderList builds the ORDER BY clause. Client sort keys come first; a
// deterministic tail is always appended so pagination is stable across
// pages: group keys for aggregated plans, the table's tiebreaker column
// otherwise. The appended key follows the last explicit direction.
func orderList(p *QueryPlan) []string {
	var parts []string
	seen := make(map[string]bool)
	lastDesc := false
	for _, s := range p.sorts {
		parts = append(parts, sortExpr(s.Field, s.Desc))
		seen[s.Field] = true
		lastDesc = s.Desc
	}

	if p.Aggregated() {
		for _, key := range p.GroupKeys() {
			if !seen[key] {
				parts = append(parts, sortExpr(key, lastDesc))
			}
		}
		return parts
	}

	if tb := p.table.Tiebreaker; tb != "" && !seen[tb] {
		parts = append(parts, sortExpr(tb, lastDesc))
	}
	return parts
}

func sortExpr(field string, desc bool) string {
	if desc {
		return quoteIdent(field) + " DESC"
	}
	return quoteIdent(field) + " ASC"
}

func bucketExpr(b *timeBucket) string {
	return timeFunctions[b.Granularity] + "(" + quoteIdent(b.Column) + ")"
}

// aggregateExpr compiles one aggregate. The quantile fraction is emitted
// inline as a literal because the store requires a constant there.
func aggregateExpr(agg AggregateSpec) string {
	switch agg.Func {
	case AggCount:
		return "count()"
	case AggQuantile:
		param := strconv.FormatFloat(agg.Param, 'g', -1, 64)
		return fmt.Sprintf("quantile(%s)(%s)", param, quoteIdent(agg.Field))
	default:
		return fmt.Sprintf("%s(%s)", agg.Func, quoteIdent(agg.Field))
	}
}

// compileGroup compiles a filter group into a parenthesized clause and its
// bound values in placeholder order. Empty and nil groups compile to "".
func compileGroup(group *FilterGroup) (string, []any) {
	if group == nil || len(group.Nodes) == 0 {
		return "", nil
	}
	var clauses []string
	var args []any
	for _, node := range group.Nodes {
		switch {
		case node.Condition != nil:
			clause, condArgs := compileCondition(node.Condition)
			if clause != "" {
				clauses = append(clauses, clause)
				args = append(args, condArgs...)
			}
		case node.Group != nil:
			clause, groupArgs := compileGroup(node.Group)
			if clause != "" {
				clauses = append(clauses, clause)
				args = append(args, groupArgs...)
			}
		}
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return "(" + strings.Join(clauses, " "+string(group.Logic)+" ") + ")", args
}

func compileCondition(cond *FilterCondition) (string, []any) {
	spec := operators[cond.Operator]
	ident := quoteIdent(cond.Field)
	switch spec.arity {
	case arityNone:
		return fmt.Sprintf(spec.fragment, ident), nil
	case arityMany:
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cond.Values)), ", ")
		return fmt.Sprintf(spec.fragment, ident, placeholders), cond.Values
	default:
		return fmt.Sprintf(spec.fragment, ident), cond.Values
	}
}
