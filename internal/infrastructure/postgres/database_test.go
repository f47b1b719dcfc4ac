package postgres

import (
	"errors"
	"testing"

	"github.com/lib/pq"

	"fintrack/internal/shared/apperr"
)

func TestSanitizeQuery(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{
			name:  "placeholders kept",
			query: "SELECT * FROM expenses WHERE owner_id = $1 AND record_id = $12",
			want:  "SELECT * FROM expenses WHERE owner_id = $1 AND record_id = $12",
		},
		{
			name:  "string literal masked",
			query: "SELECT to_char(date, 'YYYY-MM-DD') FROM expenses WHERE category = 'it''s'",
			want:  "SELECT to_char(date, '?') FROM expenses WHERE category = '?'",
		},
		{
			name:  "numeric literal masked",
			query: "SELECT * FROM expenses WHERE amount > 12.50 LIMIT 10",
			want:  "SELECT * FROM expenses WHERE amount > ? LIMIT ?",
		},
		{
			name:  "identifiers with digits kept",
			query: "SELECT col1 FROM t2",
			want:  "SELECT col1 FROM t2",
		},
		{
			name:  "whitespace collapsed",
			query: "\n\t\tDELETE FROM expenses\n\t\tWHERE owner_id = $1\n",
			want:  "DELETE FROM expenses WHERE owner_id = $1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeQuery(tt.query); got != tt.want {
				t.Errorf("sanitizeQuery() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractSQLVerb(t *testing.T) {
	tests := map[string]string{
		"select 1":                     "SELECT",
		"\n\t\tUPDATE expenses SET x":  "UPDATE",
		"\n\t\tINSERT\nINTO expenses":  "INSERT",
		"COMMIT":                       "COMMIT",
	}
	for query, want := range tests {
		if got := extractSQLVerb(query); got != want {
			t.Errorf("extractSQLVerb(%q) = %q, want %q", query, got, want)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantAccess bool
	}{
		{name: "insufficient privilege", err: &pq.Error{Code: "42501"}, wantAccess: true},
		{name: "bad password", err: &pq.Error{Code: "28P01"}, wantAccess: true},
		{name: "unique violation", err: &pq.Error{Code: "23505"}, wantAccess: false},
		{name: "network", err: errors.New("connection refused"), wantAccess: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("failed", tt.err)
			if got := apperr.IsAccess(err); got != tt.wantAccess {
				t.Errorf("IsAccess() = %v, want %v", got, tt.wantAccess)
			}
			if !errors.Is(err, tt.err) {
				t.Error("classified error should wrap the driver error")
			}
		})
	}
}
