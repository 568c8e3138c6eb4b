package security

import "testing"

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name      string
		ident     string
		wantError bool
	}{
		{name: "bare_column", ident: "id", wantError: false},
		{name: "snake_case_column", ident: "first_name", wantError: false},
		{name: "leading_underscore", ident: "_internal", wantError: false},
		{name: "star", ident: "*", wantError: false},
		{name: "dotted_table_column", ident: "users.id", wantError: false},
		{name: "dotted_table_star", ident: "users.*", wantError: false},
		{name: "multi_segment", ident: "schema.users.id", wantError: false},

		{name: "empty", ident: "", wantError: true},
		{name: "trailing_dot", ident: "users.", wantError: true},
		{name: "leading_dot", ident: ".id", wantError: true},
		{name: "embedded_space", ident: "id ", wantError: true},
		{name: "stacked_query", ident: "id; DROP TABLE users", wantError: true},
		{name: "comment_injection", ident: "id-- ", wantError: true},
		{name: "leading_digit", ident: "1id", wantError: true},
		{name: "parenthesized", ident: "COUNT(id)", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIdentifier(tt.ident)
			if tt.wantError && err == nil {
				t.Errorf("ValidateIdentifier(%q) expected error but got none", tt.ident)
			}
			if !tt.wantError && err != nil {
				t.Errorf("ValidateIdentifier(%q) unexpected error: %v", tt.ident, err)
			}
		})
	}
}
