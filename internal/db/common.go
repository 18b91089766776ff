package db

import (
	"fmt"
	"strings"
)

const executionColumns = 6

// sortableColumns maps API sort keys to table columns. Anything outside
// this map is rejected before it reaches the query string.
var sortableColumns = map[string]string{
	"ts":       "ts",
	"job":      "job",
	"duration": "duration_ms",
	"status":   "status",
}

// validateListParams normalizes paging and sorting, rejecting unknown
// sort columns and orders so callers can never inject SQL through them.
func validateListParams(params *ListExecutionsParams) error {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 {
		params.PageSize = 25
	}
	if params.PageSize > 1000 {
		params.PageSize = 1000
	}

	if params.SortBy == "" {
		params.SortBy = "ts"
	}
	col, ok := sortableColumns[params.SortBy]
	if !ok {
		return ValidationError("sortBy", fmt.Sprintf("unknown column %q", params.SortBy))
	}
	params.SortBy = col

	switch strings.ToLower(params.SortOrder) {
	case "":
		params.SortOrder = "DESC"
	case "asc":
		params.SortOrder = "ASC"
	case "desc":
		params.SortOrder = "DESC"
	default:
		return ValidationError("sortOrder", fmt.Sprintf("unknown order %q", params.SortOrder))
	}

	if params.Kind != "" && params.Kind != string(KindRequest) && params.Kind != string(KindJob) {
		return ValidationError("kind", fmt.Sprintf("unknown kind %q", params.Kind))
	}
	return nil
}

// sqliteInsertPlaceholders builds "(?, ..., ?), (?, ..., ?)" for a
// multi-row insert.
func sqliteInsertPlaceholders(columns, rows int) string {
	row := "(" + strings.TrimSuffix(strings.Repeat("?, ", columns), ", ") + ")"
	all := make([]string, rows)
	for i := range all {
		all[i] = row
	}
	return strings.Join(all, ", ")
}

// postgresInsertPlaceholders builds "($1, ..., $n), ($n+1, ...)" for a
// multi-row insert.
func postgresInsertPlaceholders(columns, rows int) string {
	var sb strings.Builder
	for i := 0; i < rows; i++ {
		sb.WriteString("(")
		for j := 0; j < columns; j++ {
			fmt.Fprintf(&sb, "$%d", i*columns+j+1)
			if j < columns-1 {
				sb.WriteString(", ")
			}
		}
		sb.WriteString(")")
		if i < rows-1 {
			sb.WriteString(", ")
		}
	}
	return sb.String()
}

func executionArgs(execs []Execution) []interface{} {
	args := make([]interface{}, 0, len(execs)*executionColumns)
	for _, e := range execs {
		args = append(args, e.TS, e.Job, e.ExecID, string(e.Kind), e.Status, e.Duration.Milliseconds())
	}
	return args
}

func totalPages(total, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}
