package db

import (
	"context"
	"database/sql"
	"time"
)

type Provider interface {
	WithDB(func(db *sql.DB))
	Insert(ctx context.Context, execs []Execution) error
	ListJobs(ctx context.Context) ([]string, error)
	ListExecutions(ctx context.Context, params ListExecutionsParams) (*PagedResult, error)
	DeleteExecutionsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}
