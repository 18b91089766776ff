package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateListParams_Defaults(t *testing.T) {
	params := ListExecutionsParams{}
	require.NoError(t, validateListParams(&params))

	assert.Equal(t, 1, params.Page)
	assert.Equal(t, 25, params.PageSize)
	assert.Equal(t, "ts", params.SortBy)
	assert.Equal(t, "DESC", params.SortOrder)
}

func TestValidateListParams_MapsSortColumns(t *testing.T) {
	params := ListExecutionsParams{SortBy: "duration", SortOrder: "asc"}
	require.NoError(t, validateListParams(&params))

	assert.Equal(t, "duration_ms", params.SortBy)
	assert.Equal(t, "ASC", params.SortOrder)
}

func TestValidateListParams_CapsPageSize(t *testing.T) {
	params := ListExecutionsParams{PageSize: 100000}
	require.NoError(t, validateListParams(&params))
	assert.Equal(t, 1000, params.PageSize)
}

func TestValidateListParams_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		params ListExecutionsParams
	}{
		{"unknown sort column", ListExecutionsParams{SortBy: "exec_id"}},
		{"injected sort column", ListExecutionsParams{SortBy: "ts; DELETE FROM executions"}},
		{"unknown sort order", ListExecutionsParams{SortOrder: "sideways"}},
		{"unknown kind", ListExecutionsParams{Kind: "cron"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateListParams(&tt.params)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidQuery)
		})
	}
}

func TestInsertPlaceholders(t *testing.T) {
	assert.Equal(t, "(?, ?, ?)", sqliteInsertPlaceholders(3, 1))
	assert.Equal(t, "(?, ?), (?, ?)", sqliteInsertPlaceholders(2, 2))
	assert.Equal(t, "($1, $2, $3)", postgresInsertPlaceholders(3, 1))
	assert.Equal(t, "($1, $2), ($3, $4)", postgresInsertPlaceholders(2, 2))
}

func TestTotalPages(t *testing.T) {
	assert.Equal(t, 0, totalPages(0, 25))
	assert.Equal(t, 1, totalPages(1, 25))
	assert.Equal(t, 1, totalPages(25, 25))
	assert.Equal(t, 2, totalPages(26, 25))
	assert.Equal(t, 0, totalPages(10, 0))
}
