package db

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/metricsim/metricsim/internal/config"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

type PostGreSQLProvider struct {
	db *sql.DB
}

func (p *PostGreSQLProvider) WithDB(f func(db *sql.DB)) {
	f(p.db)
}

func RegisterPostGreSQLFlags(flagSet *flag.FlagSet) {
	flagSet.DurationVar(&config.DefaultConfig.Database.PostgreSQL.DialTimeout, "postgresql-dial-timeout", 5*time.Second, "Timeout to dial postgresql.")
	flagSet.StringVar(&config.DefaultConfig.Database.PostgreSQL.Addr, "postgresql-addr", "localhost", "Address of the postgresql server.")
	flagSet.IntVar(&config.DefaultConfig.Database.PostgreSQL.Port, "postgresql-port", 5432, "Port of the postgresql server.")
	flagSet.StringVar(&config.DefaultConfig.Database.PostgreSQL.User, "postgresql-user", os.Getenv("POSTGRESQL_USER"), "Username for the postgresql server, can also be set via POSTGRESQL_USER env var.")
	flagSet.StringVar(&config.DefaultConfig.Database.PostgreSQL.Password, "postgresql-password", os.Getenv("POSTGRESQL_PASSWORD"), "Password for the postgresql server, can also be set via POSTGRESQL_PASSWORD env var.")
	flagSet.StringVar(&config.DefaultConfig.Database.PostgreSQL.Database, "postgresql-database", os.Getenv("POSTGRESQL_DATABASE"), "Database for the postgresql server, can also be set via POSTGRESQL_DATABASE env var.")
	flagSet.StringVar(&config.DefaultConfig.Database.PostgreSQL.SSLMode, "postgresql-sslmode", "disable", "SSL mode for the postgresql server.")
}

func newPostGreSQLProvider(ctx context.Context) (Provider, error) {
	postgresConfig := config.DefaultConfig.Database.PostgreSQL

	psqlInfo := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d application_name=metricsim",
		postgresConfig.Addr,
		postgresConfig.Port,
		postgresConfig.User,
		postgresConfig.Password,
		postgresConfig.Database,
		postgresConfig.SSLMode,
		int(postgresConfig.DialTimeout.Seconds()),
	)

	db, err := otelsql.Open("postgres", psqlInfo, otelsql.WithAttributes(semconv.DBSystemPostgreSQL))
	if err != nil {
		return nil, ConnectionError(err, "PostgreSQL", "failed to open connection")
	}

	// Apply pool settings from config when provided; keep safe defaults otherwise
	if postgresConfig.MaxOpenConns > 0 {
		db.SetMaxOpenConns(postgresConfig.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(20)
	}
	if postgresConfig.MaxIdleConns > 0 {
		db.SetMaxIdleConns(postgresConfig.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(10)
	}
	if postgresConfig.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(postgresConfig.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, ConnectionError(err, "PostgreSQL", "failed to ping database")
	}

	if err := runMigrations(ctx, db, "postgresql"); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostGreSQLProvider{
		db: db,
	}, nil
}

func (p *PostGreSQLProvider) Close() error {
	return p.db.Close()
}

func (p *PostGreSQLProvider) Insert(ctx context.Context, execs []Execution) error {
	if len(execs) == 0 {
		return nil
	}

	query := fmt.Sprintf(
		"INSERT INTO executions (ts, job, exec_id, kind, status, duration_ms) VALUES %s",
		postgresInsertPlaceholders(executionColumns, len(execs)),
	)

	if _, err := p.db.ExecContext(ctx, query, executionArgs(execs)...); err != nil {
		return QueryError(err, "insert executions", "")
	}
	return nil
}

func (p *PostGreSQLProvider) ListJobs(ctx context.Context) ([]string, error) {
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

func (p *PostGreSQLProvider) ListExecutions(ctx context.Context, params ListExecutionsParams) (*PagedResult, error) {
	if err := validateListParams(&params); err != nil {
		return nil, err
	}

	placeholder := func(i int) string { return fmt.Sprintf("$%d", i) }
	where, args := buildExecutionFilter(params, placeholder)

	var total int
	countQuery := "SELECT COUNT(*) FROM executions" + where
	if err := p.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, QueryError(err, "count executions", "")
	}

	query := fmt.Sprintf(
		"SELECT ts, job, exec_id, kind, status, duration_ms FROM executions%s ORDER BY %s %s LIMIT %s OFFSET %s",
		where, params.SortBy, params.SortOrder,
		placeholder(len(args)+1), placeholder(len(args)+2),
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

func (p *PostGreSQLProvider) DeleteExecutionsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx, "DELETE FROM executions WHERE ts < $1", cutoff)
	if err != nil {
		return 0, QueryError(err, "delete old executions", "")
	}
	return res.RowsAffected()
}
