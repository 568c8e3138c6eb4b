package core

// JoinClause represents a single JOIN in a Builder's FROM clause. It carries
// its own slice of WherePredicate-shaped ON conditions so joins compile
// through the same basic/nested machinery as WHERE, just rendered with the
// ON keyword and without the leading "AND"/"OR" on the first condition.
type JoinClause struct {
	Type  string // "INNER", "LEFT", "RIGHT", "CROSS"
	Table string
	Alias string

	// Sub holds a Builder when the join target is a subquery rather than a
	// plain table name (Builder.JoinSub, which builds an INNER join).
	Sub *Builder

	Ons []WherePredicate
}

// newJoinClause starts a join against a table or aliased table.
func newJoinClause(joinType, table string) *JoinClause {
	return &JoinClause{Type: joinType, Table: table}
}

// On adds an AND-connected column-to-column ON condition.
func (j *JoinClause) On(first, operator, second string) *JoinClause {
	j.Ons = append(j.Ons, WherePredicate{
		Kind: predicateBasic, Bool: "AND",
		Column: first, Operator: operator, Value: rawColumn(second),
	})
	return j
}

// OrOn adds an OR-connected column-to-column ON condition.
func (j *JoinClause) OrOn(first, operator, second string) *JoinClause {
	j.Ons = append(j.Ons, WherePredicate{
		Kind: predicateBasic, Bool: "OR",
		Column: first, Operator: operator, Value: rawColumn(second),
	})
	return j
}

// Where adds an AND-connected ON condition whose right-hand side is a bound
// value rather than a column reference.
func (j *JoinClause) Where(column, operator string, value interface{}) *JoinClause {
	j.Ons = append(j.Ons, WherePredicate{
		Kind: predicateBasic, Bool: "AND", Column: column, Operator: operator, Value: value,
	})
	return j
}

// OrWhere is Where joined with OR.
func (j *JoinClause) OrWhere(column, operator string, value interface{}) *JoinClause {
	j.Ons = append(j.Ons, WherePredicate{
		Kind: predicateBasic, Bool: "OR", Column: column, Operator: operator, Value: value,
	})
	return j
}

// bindings returns, in insertion order, the bound values among this join's
// ON conditions (column-to-column conditions created by On/OrOn contribute
// nothing since their Value is a rawColumn marker, not a bound value).
func (j *JoinClause) bindings() []interface{} {
	var out []interface{}
	for _, on := range j.Ons {
		if _, isCol := on.Value.(rawColumn); isCol {
			continue
		}
		if _, isExpr := on.Value.(Expression); isExpr {
			continue
		}
		out = append(out, on.Value)
	}
	return out
}

// rawColumn marks a string as a column reference rather than a bound value,
// so the grammar renders it quoted and unparameterized on the right-hand
// side of an ON condition.
type rawColumn string
