// ABOUTME: Store constructor that picks a backend by driver name
// ABOUTME: sqlite (default) takes a file path, postgres takes a DSN

package store

import (
	"context"
	"fmt"
)

// Open returns a Store for the named driver. For sqlite, location is a file
// path or ":memory:"; for postgres it is a connection string.
func Open(ctx context.Context, driver, location string) (Store, error) {
	switch driver {
	case "", "sqlite":
		return NewSQLiteStore(location)
	case "postgres":
		return NewPostgresStore(ctx, location)
	default:
		return nil, fmt.Errorf("unsupported database driver %q (supported: sqlite, postgres)", driver)
	}
}
