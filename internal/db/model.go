package db

import (
	"time"
)

type ExecutionKind string
type DatabaseProvider string

const (
	KindRequest ExecutionKind    = "request"
	KindJob     ExecutionKind    = "job"
	PostGreSQL  DatabaseProvider = "postgresql"
	SQLite      DatabaseProvider = "sqlite"
)

// Execution is one finished unit of simulated work: either a simulated
// request observation or a full batch job run.
type Execution struct {
	TS       time.Time
	Job      string
	ExecID   string
	Kind     ExecutionKind
	Status   string
	Duration time.Duration
}

type ListExecutionsParams struct {
	Job       string
	Kind      string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

type PagedResult struct {
	Total      int         `json:"total"`
	TotalPages int         `json:"totalPages"`
	Data       interface{} `json:"data"`
}

type ExecutionRecord struct {
	TS         time.Time `json:"ts"`
	Job        string    `json:"job"`
	ExecID     string    `json:"execId"`
	Kind       string    `json:"kind"`
	Status     string    `json:"status"`
	DurationMS int64     `json:"durationMs"`
}
