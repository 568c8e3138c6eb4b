package core

import (
	"fmt"
	"strings"

	"github.com/sqlforge/sqlforge/internal/dialects"
	"github.com/sqlforge/sqlforge/internal/security"
)

// CompiledStatement is one (sql, bindings) pair. Truncate compiles to a
// sequence of these (e.g. a sequence reset followed by the truncate
// itself) rather than a single statement.
type CompiledStatement struct {
	SQL      string
	Bindings []interface{}
}

// Grammar compiles Builder IR into dialect-specific SQL. Each compile*
// method is a pure function of the Builder's IR; bindings are read
// straight off Builder.bindings (already accumulated, in append order, by
// the fluent calls that built the IR) rather than recomputed, per the
// "binding order = placeholder order" invariant.
type Grammar interface {
	CompileSelect(b *Builder) (string, []interface{}, error)
	// compileSelectSQL is CompileSelect's traversal without the final
	// placeholder renumbering pass. Every nested select (CTE, join-sub,
	// WhereIn/WhereExists sub-builder, union) must compile through this
	// instead of CompileSelect, so renumbering happens exactly once, over
	// the fully assembled outermost statement.
	compileSelectSQL(b *Builder) (string, []interface{}, error)
	CompileInsert(b *Builder, values []map[string]interface{}) (string, []interface{}, error)
	CompileInsertGetID(b *Builder, values map[string]interface{}, sequence string) (string, []interface{}, error)
	CompileInsertIgnore(b *Builder, values []map[string]interface{}) (string, []interface{}, error)
	CompileInsertIgnoreGetID(b *Builder, values map[string]interface{}, sequence string) (string, []interface{}, error)
	CompileUpdate(b *Builder, values map[string]interface{}) (string, []interface{}, error)
	CompileDelete(b *Builder) (string, []interface{}, error)
	CompileTruncate(b *Builder) ([]CompiledStatement, error)
	Wrap(identifier string) string
	Name() string
	// Dialect exposes the underlying dialect so callers can pre-evaluate an
	// Expression's own bindings (e.g. when appending one to a Builder's
	// bindings vector at clause-insertion time) without recompiling SQL.
	Dialect() dialects.Dialect
}

// BaseGrammar implements the traversal order, placeholder renumbering, and
// recursive sub-builder inlining shared by every dialect. Dialect-specific
// grammars embed BaseGrammar and override only the methods whose SQL
// genuinely differs (insert-ignore syntax, truncate, RETURNING support).
type BaseGrammar struct {
	dialect dialects.Dialect
}

// Name returns the underlying dialect's registered name.
func (g *BaseGrammar) Name() string { return g.dialect.Name() }

// Dialect returns the underlying dialect.
func (g *BaseGrammar) Dialect() dialects.Dialect { return g.dialect }

// Wrap quotes an identifier per dialect; "*" and parenthesized expressions
// pass through unquoted, and dotted identifiers are quoted part-by-part.
func (g *BaseGrammar) Wrap(identifier string) string { return g.wrap(identifier) }

func (g *BaseGrammar) wrap(identifier string) string {
	if identifier == "*" || strings.Contains(identifier, "(") {
		return identifier
	}
	if err := security.ValidateIdentifier(identifier); err != nil {
		panic("core: " + err.Error())
	}
	if idx := strings.Index(identifier, "."); idx >= 0 {
		return g.dialect.QuoteIdentifier(identifier[:idx]) + "." + g.wrap(identifier[idx+1:])
	}
	return g.dialect.QuoteIdentifier(identifier)
}

func (g *BaseGrammar) wrapTable(table string) string { return g.wrap(table) }

func (g *BaseGrammar) compileColumnList(columns []string) string {
	wrapped := make([]string, len(columns))
	for i, c := range columns {
		wrapped[i] = g.wrap(c)
	}
	return strings.Join(wrapped, ", ")
}

func (g *BaseGrammar) compileColumns(columns []string) string {
	if len(columns) == 0 {
		return "*"
	}
	return g.compileColumnList(columns)
}

func (g *BaseGrammar) compileAggregate(agg *AggregateClause) string {
	cols := g.compileColumnList(agg.Columns)
	if len(agg.Columns) == 1 && agg.Columns[0] == "*" {
		cols = "*"
	}
	return fmt.Sprintf("%s(%s) AS %s", agg.Function, cols, g.wrap("aggregate"))
}

func (g *BaseGrammar) compileOrders(orders []OrderClause) string {
	parts := make([]string, len(orders))
	for i, o := range orders {
		parts[i] = g.wrap(o.Column) + " " + strings.ToUpper(o.Direction)
	}
	return strings.Join(parts, ", ")
}

func (g *BaseGrammar) compileCTEs(ctes []cteClause) (string, error) {
	if len(ctes) == 0 {
		return "", nil
	}
	parts := make([]string, len(ctes))
	recursive := false
	for i, c := range ctes {
		innerSQL, _, err := c.Sub.grammar.compileSelectSQL(c.Sub)
		if err != nil {
			return "", err
		}
		parts[i] = g.wrap(c.Name) + " AS (" + innerSQL + ")"
		recursive = recursive || c.Recursive
	}
	kw := "WITH "
	if recursive {
		kw = "WITH RECURSIVE "
	}
	return kw + strings.Join(parts, ", "), nil
}

func (g *BaseGrammar) compileJoins(joins []*JoinClause) (string, error) {
	var sb strings.Builder
	for _, j := range joins {
		sb.WriteString(" ")
		sb.WriteString(j.Type)
		sb.WriteString(" JOIN ")
		if j.Sub != nil {
			innerSQL, _, err := j.Sub.grammar.compileSelectSQL(j.Sub)
			if err != nil {
				return "", err
			}
			sb.WriteString("(" + innerSQL + ") AS " + g.wrap(j.Alias))
		} else {
			sb.WriteString(g.wrapTable(j.Table))
		}
		if len(j.Ons) > 0 {
			onSQL, err := g.compileWheres(j.Ons)
			if err != nil {
				return "", err
			}
			sb.WriteString(" ON " + onSQL)
		}
	}
	return sb.String(), nil
}

func (g *BaseGrammar) compileBasicWhere(column, operator string, value interface{}) (string, error) {
	switch v := value.(type) {
	case rawColumn:
		return g.wrap(column) + " " + operator + " " + g.wrap(string(v)), nil
	case Expression:
		sql, _ := v.Build(g.dialect)
		if sql == "" {
			return "", nil
		}
		return g.wrap(column) + " " + operator + " (" + sql + ")", nil
	default:
		return g.wrap(column) + " " + operator + " ?", nil
	}
}

func (g *BaseGrammar) compileWherePredicate(w WherePredicate) (string, error) {
	switch w.Kind {
	case predicateBasic:
		return g.compileBasicWhere(w.Column, w.Operator, w.Value)

	case predicateNested:
		inner, err := g.compileWheres(w.Children)
		if err != nil || inner == "" {
			return "", err
		}
		return "(" + inner + ")", nil

	case predicateSub:
		innerSQL, _, err := w.Sub.grammar.compileSelectSQL(w.Sub)
		if err != nil {
			return "", err
		}
		return g.wrap(w.Column) + " " + w.Operator + " (" + innerSQL + ")", nil

	case predicateExists:
		innerSQL, _, err := w.Sub.grammar.compileSelectSQL(w.Sub)
		if err != nil {
			return "", err
		}
		kw := "EXISTS"
		if w.Not {
			kw = "NOT EXISTS"
		}
		return kw + " (" + innerSQL + ")", nil

	case predicateIn:
		if len(w.Values) == 0 {
			if w.Not {
				return "", nil
			}
			return "0=1", nil
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(w.Values)), ", ")
		kw := "IN"
		if w.Not {
			kw = "NOT IN"
		}
		return g.wrap(w.Column) + " " + kw + " (" + placeholders + ")", nil

	case predicateInSub:
		innerSQL, _, err := w.Sub.grammar.compileSelectSQL(w.Sub)
		if err != nil {
			return "", err
		}
		kw := "IN"
		if w.Not {
			kw = "NOT IN"
		}
		return g.wrap(w.Column) + " " + kw + " (" + innerSQL + ")", nil

	case predicateNull:
		kw := "IS NULL"
		if w.Not {
			kw = "IS NOT NULL"
		}
		return g.wrap(w.Column) + " " + kw, nil

	case predicateBetween:
		kw := "BETWEEN"
		if w.Not {
			kw = "NOT BETWEEN"
		}
		return g.wrap(w.Column) + " " + kw + " ? AND ?", nil

	case predicateRaw:
		return w.RawSQL, nil

	default:
		return "", fmt.Errorf("grammar: unrecognized where predicate")
	}
}

func (g *BaseGrammar) compileWheres(wheres []WherePredicate) (string, error) {
	parts := make([]string, 0, len(wheres))
	for _, w := range wheres {
		frag, err := g.compileWherePredicate(w)
		if err != nil {
			return "", err
		}
		if frag == "" {
			continue
		}
		if len(parts) == 0 {
			parts = append(parts, frag)
		} else {
			parts = append(parts, w.Bool+" "+frag)
		}
	}
	return strings.Join(parts, " "), nil
}

func (g *BaseGrammar) compileHavings(havings []HavingPredicate) (string, error) {
	parts := make([]string, 0, len(havings))
	for _, h := range havings {
		var frag string
		var err error
		switch h.Kind {
		case havingBasic:
			frag, err = g.compileBasicWhere(h.Column, h.Operator, h.Value)
		case havingRaw:
			frag = h.RawSQL
		}
		if err != nil {
			return "", err
		}
		if frag == "" {
			continue
		}
		if len(parts) == 0 {
			parts = append(parts, frag)
		} else {
			parts = append(parts, h.Bool+" "+frag)
		}
	}
	return strings.Join(parts, " "), nil
}

// renumberPlaceholders rewrites every literal "?" to the dialect's
// placeholder format, in left-to-right order. A no-op for dialects whose
// placeholder already is "?".
func (g *BaseGrammar) renumberPlaceholders(sql string) string {
	if g.dialect.Placeholder(1) == "?" {
		return sql
	}
	var sb strings.Builder
	n := 0
	for _, r := range sql {
		if r == '?' {
			n++
			sb.WriteString(g.dialect.Placeholder(n))
		} else {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func (g *BaseGrammar) appendReturning(sqlStr string, returning []string) (string, error) {
	if len(returning) == 0 {
		return sqlStr, nil
	}
	if !g.dialect.SupportsReturning() {
		return "", fmt.Errorf("grammar: %s RETURNING: %w", g.Name(), ErrUnsupportedFeature)
	}
	return sqlStr + " RETURNING " + g.compileColumnList(returning), nil
}

// CompileSelect traverses select/aggregate, from, joins, wheres, groups,
// havings, orders, limit, offset, unions, then the lock clause, in that
// canonical order, omitting any section whose IR field is unset, then
// renumbers the fully assembled statement's placeholders exactly once.
func (g *BaseGrammar) CompileSelect(b *Builder) (string, []interface{}, error) {
	sqlStr, bindings, err := g.compileSelectSQL(b)
	if err != nil {
		return "", nil, err
	}
	return g.renumberPlaceholders(sqlStr), bindings, nil
}

// compileSelectSQL is the traversal itself, left in "?" placeholder form.
// Nested selects (CTEs, join subqueries, WhereIn/WhereExists sub-builders,
// unions) compile through this so a single outer CompileSelect call owns
// the one renumbering pass over the whole assembled string; renumbering
// each nested select in isolation would restart placeholder numbering
// from 1 at every sub-builder, corrupting $n-style dialects whenever
// bindings exist both inside and outside the sub-builder.
func (g *BaseGrammar) compileSelectSQL(b *Builder) (string, []interface{}, error) {
	var sb strings.Builder

	withSQL, err := g.compileCTEs(b.ctes)
	if err != nil {
		return "", nil, err
	}
	if withSQL != "" {
		sb.WriteString(withSQL)
		sb.WriteString(" ")
	}

	sb.WriteString("SELECT ")
	if b.distinct {
		sb.WriteString("DISTINCT ")
	}
	if b.aggregateFn != nil {
		sb.WriteString(g.compileAggregate(b.aggregateFn))
	} else {
		sb.WriteString(g.compileColumns(b.columns))
	}

	sb.WriteString(" FROM ")
	sb.WriteString(g.wrapTable(b.from))

	joinSQL, err := g.compileJoins(b.joins)
	if err != nil {
		return "", nil, err
	}
	sb.WriteString(joinSQL)

	whereSQL, err := g.compileWheres(b.wheres)
	if err != nil {
		return "", nil, err
	}
	if whereSQL != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(whereSQL)
	}

	if len(b.groups) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(g.compileColumnList(b.groups))
	}

	havingSQL, err := g.compileHavings(b.havings)
	if err != nil {
		return "", nil, err
	}
	if havingSQL != "" {
		sb.WriteString(" HAVING ")
		sb.WriteString(havingSQL)
	}

	if len(b.orders) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(g.compileOrders(b.orders))
	}

	if b.limit > 0 {
		sb.WriteString(fmt.Sprintf(" LIMIT %d", b.limit))
	}
	if b.offset > 0 {
		sb.WriteString(fmt.Sprintf(" OFFSET %d", b.offset))
	}

	for _, u := range b.unions {
		unionSQL, _, err := u.Sub.grammar.compileSelectSQL(u.Sub)
		if err != nil {
			return "", nil, err
		}
		if u.All {
			sb.WriteString(" UNION ALL ")
		} else {
			sb.WriteString(" UNION ")
		}
		sb.WriteString(unionSQL)
	}

	if b.lockMode != "" && g.dialect.Name() != "sqlite" {
		sb.WriteString(" ")
		sb.WriteString(b.lockMode)
	}

	return sb.String(), b.bindings, nil
}

// compileInsertValues renders "<keyword> INTO table (cols) VALUES (...)"
// for a batch of same-shaped records. Records must share exactly the same
// column set; a mismatch is a programmer error and panics, mirroring the
// teacher's own batch-insert panic convention.
func (g *BaseGrammar) compileInsertValues(keyword, table string, values []map[string]interface{}) (string, []interface{}, error) {
	if len(values) == 0 {
		return "", nil, fmt.Errorf("grammar: CompileInsert: %w", ErrBadArgument)
	}

	keys := sortedKeys(values[0])
	cols := make([]string, len(keys))
	for i, k := range keys {
		cols[i] = g.wrap(k)
	}

	var bindings []interface{}
	rowPlaceholders := make([]string, len(values))
	for i, record := range values {
		if len(record) != len(keys) {
			panic(fmt.Sprintf("builder: batch insert record %d has %d columns, want %d", i, len(record), len(keys)))
		}
		ph := make([]string, len(keys))
		for j, k := range keys {
			val, ok := record[k]
			if !ok {
				panic(fmt.Sprintf("builder: batch insert record %d missing column %q", i, k))
			}
			if expr, isExpr := val.(Expression); isExpr {
				sql, exprArgs := expr.Build(g.dialect)
				ph[j] = sql
				bindings = append(bindings, exprArgs...)
			} else {
				ph[j] = "?"
				bindings = append(bindings, val)
			}
		}
		rowPlaceholders[i] = "(" + strings.Join(ph, ", ") + ")"
	}

	sqlStr := fmt.Sprintf("%s INTO %s (%s) VALUES %s",
		keyword, g.wrapTable(table), strings.Join(cols, ", "), strings.Join(rowPlaceholders, ", "))
	return sqlStr, bindings, nil
}

// CompileInsert compiles a (possibly multi-row) INSERT.
func (g *BaseGrammar) CompileInsert(b *Builder, values []map[string]interface{}) (string, []interface{}, error) {
	sqlStr, bindings, err := g.compileInsertValues("INSERT", b.from, values)
	if err != nil {
		return "", nil, err
	}
	sqlStr, err = g.appendReturning(sqlStr, b.returning)
	if err != nil {
		return "", nil, err
	}
	return g.renumberPlaceholders(sqlStr), bindings, nil
}

// CompileInsertGetID compiles a single-row insert tailored to request the
// generated key: a RETURNING clause on dialects that support it, otherwise
// left for the processor to read LastInsertId off the connection result.
func (g *BaseGrammar) CompileInsertGetID(b *Builder, values map[string]interface{}, sequence string) (string, []interface{}, error) {
	sqlStr, bindings, err := g.CompileInsert(b, []map[string]interface{}{values})
	if err != nil {
		return "", nil, err
	}
	if g.dialect.SupportsReturning() {
		sqlStr += " RETURNING " + g.wrap(sequence)
	}
	return sqlStr, bindings, nil
}

// CompileInsertIgnore has no dialect-independent rendering; concrete
// grammars override it.
func (g *BaseGrammar) CompileInsertIgnore(_ *Builder, _ []map[string]interface{}) (string, []interface{}, error) {
	return "", nil, fmt.Errorf("grammar: %s: %w", g.Name(), ErrUnsupportedFeature)
}

// CompileInsertIgnoreGetID has no dialect-independent rendering; concrete
// grammars override it.
func (g *BaseGrammar) CompileInsertIgnoreGetID(_ *Builder, _ map[string]interface{}, _ string) (string, []interface{}, error) {
	return "", nil, fmt.Errorf("grammar: %s: %w", g.Name(), ErrUnsupportedFeature)
}

// CompileUpdate prepends the update values (in sorted column order) to the
// existing where-bindings and compiles the UPDATE.
func (g *BaseGrammar) CompileUpdate(b *Builder, values map[string]interface{}) (string, []interface{}, error) {
	keys := sortedKeys(values)
	sets := make([]string, len(keys))
	var setBindings []interface{}
	for i, k := range keys {
		val := values[k]
		if expr, ok := val.(Expression); ok {
			sql, exprArgs := expr.Build(g.dialect)
			sets[i] = g.wrap(k) + " = " + sql
			setBindings = append(setBindings, exprArgs...)
		} else {
			sets[i] = g.wrap(k) + " = ?"
			setBindings = append(setBindings, val)
		}
	}

	whereSQL, err := g.compileWheres(b.wheres)
	if err != nil {
		return "", nil, err
	}

	sqlStr := fmt.Sprintf("UPDATE %s SET %s", g.wrapTable(b.from), strings.Join(sets, ", "))
	if whereSQL != "" {
		sqlStr += " WHERE " + whereSQL
	}
	sqlStr, err = g.appendReturning(sqlStr, b.returning)
	if err != nil {
		return "", nil, err
	}

	allBindings := append(setBindings, b.bindings...)
	return g.renumberPlaceholders(sqlStr), allBindings, nil
}

// CompileDelete compiles a DELETE over the accumulated WHERE IR.
func (g *BaseGrammar) CompileDelete(b *Builder) (string, []interface{}, error) {
	whereSQL, err := g.compileWheres(b.wheres)
	if err != nil {
		return "", nil, err
	}
	sqlStr := "DELETE FROM " + g.wrapTable(b.from)
	if whereSQL != "" {
		sqlStr += " WHERE " + whereSQL
	}
	sqlStr, err = g.appendReturning(sqlStr, b.returning)
	if err != nil {
		return "", nil, err
	}
	return g.renumberPlaceholders(sqlStr), b.bindings, nil
}

// CompileTruncate produces the dialect's default single TRUNCATE TABLE
// statement; dialects with richer semantics (sequence resets) override it.
func (g *BaseGrammar) CompileTruncate(b *Builder) ([]CompiledStatement, error) {
	return []CompiledStatement{{SQL: "TRUNCATE TABLE " + g.wrapTable(b.from)}}, nil
}

// NewGrammar returns the Grammar for a registered dialect name
// ("postgres", "mysql", "sqlite", and their aliases). Any other name
// returns ErrUnsupportedDialect.
func NewGrammar(dialectName string) (g Grammar, err error) {
	defer func() {
		if recover() != nil {
			g, err = nil, fmt.Errorf("grammar: %w: %s", ErrUnsupportedDialect, dialectName)
		}
	}()
	switch dialects.GetDialect(dialectName).Name() {
	case "postgres":
		return NewPostgresGrammar(), nil
	case "mysql":
		return NewMySQLGrammar(), nil
	case "sqlite":
		return NewSQLiteGrammar(), nil
	default:
		return nil, fmt.Errorf("grammar: %w: %s", ErrUnsupportedDialect, dialectName)
	}
}
