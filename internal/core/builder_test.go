package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConnection records the last statement it was asked to execute,
// for terminal operations that need a Connection but not a real database.
type fakeConnection struct {
	lastSQL      string
	lastBindings []interface{}
	updateResult int64
}

func (f *fakeConnection) Select(ctx context.Context, sqlStr string, bindings []interface{}) ([]Row, error) {
	f.lastSQL, f.lastBindings = sqlStr, bindings
	return nil, nil
}

func (f *fakeConnection) Insert(ctx context.Context, sqlStr string, bindings []interface{}) (bool, error) {
	f.lastSQL, f.lastBindings = sqlStr, bindings
	return true, nil
}

func (f *fakeConnection) Update(ctx context.Context, sqlStr string, bindings []interface{}) (int64, error) {
	f.lastSQL, f.lastBindings = sqlStr, bindings
	return f.updateResult, nil
}

func (f *fakeConnection) Delete(ctx context.Context, sqlStr string, bindings []interface{}) (int64, error) {
	f.lastSQL, f.lastBindings = sqlStr, bindings
	return 0, nil
}

func (f *fakeConnection) Statement(ctx context.Context, sqlStr string, bindings []interface{}) (bool, error) {
	f.lastSQL, f.lastBindings = sqlStr, bindings
	return true, nil
}

func (f *fakeConnection) Raw(value interface{}) Expression { return NewExp("?", value) }
func (f *fakeConnection) GetName() string                  { return "fake" }
func (f *fakeConnection) GetCacheManager() Cache            { return nil }
func (f *fakeConnection) GetPaginator() PaginatorEnvironment { return nil }

func newTestBuilder() *Builder {
	return NewBuilder(&fakeConnection{}, NewSQLiteGrammar(), DefaultProcessor{})
}

// S1 simple select.
func TestScenario_SimpleSelect(t *testing.T) {
	b := newTestBuilder().From("users").Where("id", "=", 1)

	sqlStr, bindings, err := b.ToSQL()
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "users" WHERE "id" = ?`, sqlStr)
	assert.Equal(t, []interface{}{1}, bindings)
}

// S2 operator shortcut: where(col, value) behaves like where(col, '=', value).
func TestScenario_OperatorShortcut(t *testing.T) {
	b := newTestBuilder().From("users").Where("name", "Alice")

	sqlStr, bindings, err := b.ToSQL()
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "users" WHERE "name" = ?`, sqlStr)
	assert.Equal(t, []interface{}{"Alice"}, bindings)
}

// S3 nested or.
func TestScenario_NestedOr(t *testing.T) {
	b := newTestBuilder().From("users").Where("active", "=", 1).
		OrWhereGroup(func(sub *Builder) {
			sub.Where("age", ">", 18).Where("verified", "=", 1)
		})

	sqlStr, bindings, err := b.ToSQL()
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "users" WHERE "active" = ? OR ("age" > ? AND "verified" = ?)`, sqlStr)
	assert.Equal(t, []interface{}{1, 18, 1}, bindings)
}

// S4 whereIn with sub-select.
func TestScenario_WhereInSubSelect(t *testing.T) {
	b := newTestBuilder().From("a").WhereInSub("id", func(sub *Builder) {
		sub.From("b").Select("a_id").Where("ok", "=", 1)
	})

	sqlStr, bindings, err := b.ToSQL()
	require.NoError(t, err)
	assert.Contains(t, sqlStr, `"id" IN (SELECT "a_id" FROM "b" WHERE "ok" = ?)`)
	assert.Equal(t, []interface{}{1}, bindings)
}

// Postgres renumbers placeholders once, over the fully assembled outer
// statement, not once per sub-builder: bindings outside and inside the
// WhereInSub sub-select must land on consecutive, non-repeating $n.
func TestInvariant_PostgresRenumbersAcrossSubBuilderExactlyOnce(t *testing.T) {
	b := NewBuilder(&fakeConnection{}, NewPostgresGrammar(), DefaultProcessor{}).
		From("users").Where("active", "=", 1).
		WhereInSub("id", func(sub *Builder) {
			sub.From("b").Select("id").Where("ok", "=", 1)
		})

	sqlStr, bindings, err := b.ToSQL()
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT * FROM "users" WHERE "active" = $1 AND "id" IN (SELECT "id" FROM "b" WHERE "ok" = $2)`,
		sqlStr)
	assert.Equal(t, []interface{}{1, 1}, bindings)
}

// S5 batch insert.
func TestScenario_BatchInsert(t *testing.T) {
	b := newTestBuilder().From("t")
	grammar := NewSQLiteGrammar()

	sqlStr, bindings, err := grammar.CompileInsert(b, []map[string]interface{}{
		{"a": 1, "b": 2},
		{"a": 3, "b": 4},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, sqlStr)
	assert.Equal(t, []interface{}{1, 2, 3, 4}, bindings)
}

// S6 increment.
func TestScenario_Increment(t *testing.T) {
	conn := &fakeConnection{updateResult: 1}
	b := NewBuilder(conn, NewSQLiteGrammar(), DefaultProcessor{}).From("t").Where("id", "=", 7)

	affected, err := b.Increment(context.Background(), "hits", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)
	assert.Contains(t, conn.lastSQL, `"hits" = "hits" + 2`)
	assert.Contains(t, conn.lastSQL, `WHERE "id" = ?`)
	assert.Equal(t, []interface{}{7}, conn.lastBindings)
}

// S7 pagination preserves orders.
func TestScenario_PaginationPreservesOrders(t *testing.T) {
	b := newTestBuilder().From("x").OrderBy("x")

	_, err := b.getPaginationCount(context.Background())
	require.NoError(t, err)

	require.Len(t, b.orders, 1)
	assert.Equal(t, OrderClause{Column: "x", Direction: "asc"}, b.orders[0])
}

// Invariant 1: placeholder count equals binding count.
func TestInvariant_PlaceholderCountMatchesBindings(t *testing.T) {
	b := newTestBuilder().From("users").
		Where("id", "=", 1).
		WhereIn("status", "active", "pending").
		WhereBetween("age", 18, 65)

	sqlStr, bindings, err := b.ToSQL()
	require.NoError(t, err)

	placeholders := 0
	for _, c := range sqlStr {
		if c == '?' {
			placeholders++
		}
	}
	assert.Equal(t, len(bindings), placeholders)
}

// Invariant 2: Expression values never bind; they appear inline in SQL.
func TestInvariant_ExpressionValuesNeverBind(t *testing.T) {
	b := newTestBuilder().From("t").Where("created_at", "=", NewExp("NOW()"))

	sqlStr, bindings, err := b.ToSQL()
	require.NoError(t, err)
	assert.Contains(t, sqlStr, "NOW()")
	assert.Empty(t, bindings)
}

// Invariant 3: whereNested merges sub-bindings upward in insertion order.
func TestInvariant_WhereNestedMergesBindingsInOrder(t *testing.T) {
	b := newTestBuilder().From("t").Where("a", "=", 1)
	b.WhereGroup(func(sub *Builder) {
		sub.Where("b", "=", 2).Where("c", "=", 3)
	})

	_, bindings, err := b.ToSQL()
	require.NoError(t, err)
	assert.Equal(t, []interface{}{1, 2, 3}, bindings)
}

// Invariant 4: take(n) with n<=0 leaves limit unchanged.
func TestInvariant_TakeNonPositiveLeavesLimitUnchanged(t *testing.T) {
	b := newTestBuilder().From("t").Take(5)
	require.Equal(t, 5, b.limit)

	b.Take(0)
	assert.Equal(t, 5, b.limit)

	b.Take(-1)
	assert.Equal(t, 5, b.limit)
}

// Invariant 5: forPage sets offset/limit from page/perPage.
func TestInvariant_ForPageSetsOffsetAndLimit(t *testing.T) {
	b := newTestBuilder().From("t").ForPage(3, 10)
	assert.Equal(t, 20, b.offset)
	assert.Equal(t, 10, b.limit)
}

// Invariant 6: getPaginationCount restores orders afterward.
func TestInvariant_GetPaginationCountRestoresOrders(t *testing.T) {
	b := newTestBuilder().From("t").OrderBy("name", "desc")
	before := append([]OrderClause(nil), b.orders...)

	_, err := b.getPaginationCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before, b.orders)
}

// Invariant 7: where(c, v) and where(c, '=', v) produce identical IR.
func TestInvariant_OperatorShortcutProducesIdenticalIR(t *testing.T) {
	a := newTestBuilder().From("t").Where("name", "Alice")
	b := newTestBuilder().From("t").Where("name", "=", "Alice")

	aSQL, aBindings, errA := a.ToSQL()
	bSQL, bBindings, errB := b.ToSQL()
	require.NoError(t, errA)
	require.NoError(t, errB)
	assert.Equal(t, bSQL, aSQL)
	assert.Equal(t, bBindings, aBindings)
}

// Invariant 8: dynamic where matches the equivalent explicit chain.
func TestInvariant_DynamicWhereMatchesExplicitChain(t *testing.T) {
	dyn, err := newTestBuilder().From("t").WhereDynamic("FirstNameAndLastName", "a", "b")
	require.NoError(t, err)
	dynSQL, dynBindings, err := dyn.ToSQL()
	require.NoError(t, err)

	explicit := newTestBuilder().From("t").Where("first_name", "=", "a").Where("last_name", "=", "b")
	expSQL, expBindings, err := explicit.ToSQL()
	require.NoError(t, err)

	assert.Equal(t, expSQL, dynSQL)
	assert.Equal(t, expBindings, dynBindings)
}

// Invariant 9: aggregate is cleared after use; a subsequent compile has no aggregate.
func TestInvariant_AggregateIdempotence(t *testing.T) {
	conn := &fakeConnection{}
	b := NewBuilder(conn, NewSQLiteGrammar(), DefaultProcessor{}).From("t")

	_, err := b.Count(context.Background())
	require.NoError(t, err)
	assert.Contains(t, conn.lastSQL, "COUNT(*)")
	assert.Nil(t, b.aggregateFn)

	sqlStr, _, err := b.ToSQL()
	require.NoError(t, err)
	assert.NotContains(t, sqlStr, "COUNT(")
}

func TestBuilder_WhereBetweenBindsLowThenHigh(t *testing.T) {
	b := newTestBuilder().From("t").WhereBetween("age", 18, 65)

	sqlStr, bindings, err := b.ToSQL()
	require.NoError(t, err)
	assert.Contains(t, sqlStr, `"age" BETWEEN ? AND ?`)
	assert.Equal(t, []interface{}{18, 65}, bindings)
}

func TestBuilder_EmptyNestedGroupProducesNoClauseOrBindings(t *testing.T) {
	b := newTestBuilder().From("t").Where("a", "=", 1)
	b.WhereGroup(func(sub *Builder) {})

	sqlStr, bindings, err := b.ToSQL()
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "t" WHERE "a" = ?`, sqlStr)
	assert.Equal(t, []interface{}{1}, bindings)
}

func TestBuilder_UnknownIdentifierPanics(t *testing.T) {
	b := newTestBuilder().From("t; drop table users")
	assert.Panics(t, func() {
		_, _, _ = b.ToSQL()
	})
}
