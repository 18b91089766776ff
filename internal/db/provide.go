package db

import (
	"context"
	"fmt"
)

func GetDbProvider(ctx context.Context, provider DatabaseProvider) (Provider, error) {
	switch provider {
	case PostGreSQL:
		return newPostGreSQLProvider(ctx)
	case SQLite:
		return newSqliteProvider(ctx)
	default:
		return nil, fmt.Errorf("invalid database provider: %q (supported: postgresql, sqlite)", provider)
	}
}
