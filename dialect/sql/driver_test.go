package sql

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/loamdb/loam/dialect"
)

func TestIsValidIdentifier(t *testing.T) {
	for _, tt := range []struct {
		input string
		valid bool
	}{
		{"users", true},
		{"user_accounts", true},
		{"_private", true},
		{"public.users", true},
		{"Users2", true},
		{"", false},
		{"2users", false},
		{"users; DROP TABLE users", false},
		{"user-accounts", false},
		{strings.Repeat("a", 129), false},
	} {
		assert.Equal(t, tt.valid, isValidIdentifier(tt.input), "input %q", tt.input)
	}
}

func TestDriverDialect(t *testing.T) {
	// Instrumented drivers register under suffixed names; Dialect reports
	// the base dialect.
	for _, tt := range []struct {
		name string
		want string
	}{
		{"sqlite", dialect.SQLite},
		{"sqlite-tracing", dialect.SQLite},
		{"postgres", dialect.Postgres},
		{"mysql", dialect.MySQL},
	} {
		d := NewDriver(tt.name, Conn{})
		assert.Equal(t, tt.want, d.Dialect())
	}
}
