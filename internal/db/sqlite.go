package db

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"sync"
	"time"

	"github.com/metricsim/metricsim/internal/config"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	_ "modernc.org/sqlite"
)

// SQLiteProvider serializes writes with a lock because the driver allows
// a single writer at a time.
type SQLiteProvider struct {
	mu sync.RWMutex
	db *sql.DB
}

const configureSqliteStmt = `
	PRAGMA journal_mode = WAL;
	PRAGMA synchronous = normal;
	PRAGMA journal_size_limit = 6144000;
`

func RegisterSqliteFlags(flagSet *flag.FlagSet) {
	flagSet.StringVar(&config.DefaultConfig.Database.SQLite.DatabasePath, "sqlite-database-path", "metricsim.db", "Path to the sqlite database file.")
}

func newSqliteProvider(ctx context.Context) (Provider, error) {
	db, err := otelsql.Open("sqlite", config.DefaultConfig.Database.SQLite.DatabasePath, otelsql.WithAttributes(semconv.DBSystemSqlite))
	if err != nil {
		return nil, ConnectionError(err, "SQLite", "failed to open database")
	}

	if _, err := db.ExecContext(ctx, configureSqliteStmt); err != nil {
		return nil, ConnectionError(err, "SQLite", "failed to configure database")
	}

	if err := runMigrations(ctx, db, "sqlite"); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteProvider{
		db: db,
	}, nil
}

func (p *SQLiteProvider) WithDB(f func(db *sql.DB)) {
	f(p.db)
}

func (p *SQLiteProvider) Close() error {
	return p.db.Close()
}

func (p *SQLiteProvider) Insert(ctx context.Context, execs []Execution) error {
	if len(execs) == 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	query := fmt.Sprintf(
		"INSERT INTO executions (ts, job, exec_id, kind, status, duration_ms) VALUES %s",
		sqliteInsertPlaceholders(executionColumns, len(execs)),
	)

	if _, err := p.db.ExecContext(ctx, query, executionArgs(execs)...); err != nil {
		return QueryError(err, "insert executions", "")
	}
	return nil
}

func (p *SQLiteProvider) ListJobs(ctx context.Context) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	rows, err := p.db.QueryContext(ctx, "SELECT DISTINCT job FROM executions ORDER BY job")
	if err != nil {
		return nil, QueryError(err, "list jobs", "")
	}
	defer rows.Close()

	jobs := []string{}
	for rows.Next() {
		var job string
		if err := rows.Scan(&job); err != nil {
			return nil, ErrorWithOperation(err, "scanning job row")
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, ErrorWithOperation(err, "job row iteration")
	}
	return jobs, nil
}

func (p *SQLiteProvider) ListExecutions(ctx context.Context, params ListExecutionsParams) (*PagedResult, error) {
	if err := validateListParams(&params); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	where, args := buildExecutionFilter(params, func(int) string { return "?" })

	var total int
	countQuery := "SELECT COUNT(*) FROM executions" + where
	if err := p.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, QueryError(err, "count executions", "")
	}

	query := fmt.Sprintf(
		"SELECT ts, job, exec_id, kind, status, duration_ms FROM executions%s ORDER BY %s %s LIMIT ? OFFSET ?",
		where, params.SortBy, params.SortOrder,
	)
	args = append(args, params.PageSize, (params.Page-1)*params.PageSize)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, QueryError(err, "list executions", "")
	}
	defer rows.Close()

	records, err := scanExecutionRecords(rows)
	if err != nil {
		return nil, err
	}

	return &PagedResult{
		Total:      total,
		TotalPages: totalPages(total, params.PageSize),
		Data:       records,
	}, nil
}

func (p *SQLiteProvider) DeleteExecutionsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	res, err := p.db.ExecContext(ctx, "DELETE FROM executions WHERE ts < ?", cutoff)
	if err != nil {
		return 0, QueryError(err, "delete old executions", "")
	}
	return res.RowsAffected()
}

// buildExecutionFilter renders the WHERE clause shared by count and list
// queries. placeholderFn renders the dialect's positional placeholder.
func buildExecutionFilter(params ListExecutionsParams, placeholderFn func(int) string) (string, []interface{}) {
	clauses := []string{}
	args := []interface{}{}

	if params.Job != "" {
		args = append(args, params.Job)
		clauses = append(clauses, "job = "+placeholderFn(len(args)))
	}
	if params.Kind != "" {
		args = append(args, params.Kind)
		clauses = append(clauses, "kind = "+placeholderFn(len(args)))
	}

	if len(clauses) == 0 {
		return "", args
	}

	where := " WHERE " + clauses[0]
	for _, c := range clauses[1:] {
		where += " AND " + c
	}
	return where, args
}

func scanExecutionRecords(rows *sql.Rows) ([]ExecutionRecord, error) {
	records := []ExecutionRecord{}
	for rows.Next() {
		var r ExecutionRecord
		if err := rows.Scan(&r.TS, &r.Job, &r.ExecID, &r.Kind, &r.Status, &r.DurationMS); err != nil {
			return nil, ErrorWithOperation(err, "scanning execution row")
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, ErrorWithOperation(err, "execution row iteration")
	}
	return records, nil
}
