// Package postgres implements the expense record store on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
	"unicode"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var dbTracer = otel.Tracer("fintrack.db")

type DB struct {
	*sql.DB
}

type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func New(ctx context.Context, connStr string, pool PoolConfig) (*DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if pool.MaxOpenConns <= 0 {
		pool.MaxOpenConns = 25
	}
	if pool.MaxIdleConns <= 0 {
		pool.MaxIdleConns = 5
	}
	if pool.ConnMaxLifetime <= 0 {
		pool.ConnMaxLifetime = 5 * time.Minute
	}
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{db}, nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}

var dbQueryDuration, _ = otel.Meter("fintrack.db").Float64Histogram("fintrack.db.query.duration",
	metric.WithDescription("Postgres statement duration in seconds"),
	metric.WithUnit("s"),
)

// dbCall is one traced statement. end records the outcome on the span and
// the duration histogram.
type dbCall struct {
	ctx   context.Context
	span  trace.Span
	attrs attribute.Set
	start time.Time
}

func startCall(ctx context.Context, name, query string) *dbCall {
	attrs := attribute.NewSet(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", extractSQLVerb(query)),
	)
	ctx, span := dbTracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs.ToSlice()...),
		trace.WithAttributes(attribute.String("db.statement", sanitizeQuery(query))),
	)
	return &dbCall{ctx: ctx, span: span, attrs: attrs, start: time.Now()}
}

func (c *dbCall) end(err error) {
	if err != nil && err != sql.ErrNoRows {
		c.span.RecordError(err)
		c.span.SetStatus(codes.Error, err.Error())
	}
	dbQueryDuration.Record(c.ctx, time.Since(c.start).Seconds(), metric.WithAttributeSet(c.attrs))
	c.span.End()
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	call := startCall(ctx, "db.Query", query)
	rows, err := db.DB.QueryContext(call.ctx, query, args...)
	call.end(err)
	return rows, err
}

// tracedRow defers ending the call to Scan, where sql.Row reports its errors.
type tracedRow struct {
	row  *sql.Row
	call *dbCall
}

func (r *tracedRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if r.call != nil {
		r.call.end(err)
		r.call = nil
	}
	return err
}

func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *tracedRow {
	call := startCall(ctx, "db.QueryRow", query)
	return &tracedRow{row: db.DB.QueryRowContext(call.ctx, query, args...), call: call}
}

func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	call := startCall(ctx, "db.Exec", query)
	result, err := db.DB.ExecContext(call.ctx, query, args...)
	call.end(err)
	return result, err
}

// sanitizeQuery masks string and numeric literals so values never reach traces.
// $N placeholders are kept.
func sanitizeQuery(q string) string {
	q = strings.Join(strings.Fields(q), " ")

	var b strings.Builder
	b.Grow(len(q))

	i := 0
	for i < len(q) {
		ch := q[i]

		if ch == '\'' {
			b.WriteString("'?'")
			i++
			for i < len(q) {
				if q[i] == '\'' {
					if i+1 < len(q) && q[i+1] == '\'' {
						i += 2
						continue
					}
					i++
					break
				}
				i++
			}
			continue
		}

		if unicode.IsDigit(rune(ch)) && (i == 0 || !isIdentChar(q[i-1])) {
			b.WriteByte('?')
			for i < len(q) && (unicode.IsDigit(rune(q[i])) || q[i] == '.') {
				i++
			}
			continue
		}

		b.WriteByte(ch)
		i++
	}

	s := b.String()
	if len(s) > 256 {
		return s[:256] + "..."
	}
	return s
}

func isIdentChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' || c == '$'
}

func extractSQLVerb(q string) string {
	q = strings.TrimSpace(q)
	if idx := strings.IndexFunc(q, unicode.IsSpace); idx > 0 {
		return strings.ToUpper(q[:idx])
	}
	return strings.ToUpper(q)
}
