package core

import (
	"testing"

	"github.com/sqlforge/sqlforge/internal/dialects"
	"github.com/stretchr/testify/assert"
)

func TestRawExp_Build(t *testing.T) {
	tests := []struct {
		name     string
		dialect  string
		sql      string
		args     []interface{}
		wantSQL  string
		wantArgs []interface{}
	}{
		{
			name:     "without args",
			dialect:  "postgres",
			sql:      "age > 18 AND status = 'active'",
			args:     nil,
			wantSQL:  "age > 18 AND status = 'active'",
			wantArgs: nil,
		},
		{
			name:     "with args",
			dialect:  "postgres",
			sql:      "age > ? AND status = ?",
			args:     []interface{}{18, "active"},
			wantSQL:  "age > ? AND status = ?",
			wantArgs: []interface{}{18, "active"},
		},
		{
			name:     "empty sql",
			dialect:  "postgres",
			sql:      "",
			args:     []interface{}{},
			wantSQL:  "",
			wantArgs: []interface{}{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp := NewExp(tt.sql, tt.args...)
			sql, args := exp.Build(dialects.GetDialect(tt.dialect))
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestRawExp_WithSubqueryArgs(t *testing.T) {
	dialect := dialects.GetDialect("postgres")

	exp := NewExp("total > (SELECT SUM(amount) FROM orders WHERE user_id = ?)", 123)
	sql, args := exp.Build(dialect)

	assert.Equal(t, "total > (SELECT SUM(amount) FROM orders WHERE user_id = ?)", sql)
	assert.Equal(t, []interface{}{123}, args)
}
