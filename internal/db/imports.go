package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ResolveLatestImportDBName returns the db_name with the most recent imported_at
// from public.latest_successful_imports where db_name ILIKE '%city%'.
// meta must be connected to the cluster's 'postgres' database.
func ResolveLatestImportDBName(ctx context.Context, meta *sql.DB, city string) (string, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return "", fmt.Errorf("city is required")
	}
	q := `
SELECT db_name
FROM public.latest_successful_imports
WHERE db_name ILIKE '%' || $1 || '%'
ORDER BY imported_at DESC
LIMIT 1`
	var dbName sql.NullString
	if err := meta.QueryRowContext(ctx, q, city).Scan(&dbName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("no timetable database found for city like %q", city)
		}
		return "", fmt.Errorf("resolve import for %q: %w", city, err)
	}
	if !dbName.Valid || dbName.String == "" {
		return "", fmt.Errorf("empty db_name for city like %q", city)
	}
	return dbName.String, nil
}

// OpenCity connects to the latest imported database for city, using baseDSN
// for credentials and host. It returns the database handle and its name.
func OpenCity(ctx context.Context, baseDSN, city string) (*sql.DB, string, error) {
	rootDSN, err := WithDBName(baseDSN, "postgres")
	if err != nil {
		return nil, "", fmt.Errorf("invalid base DSN: %w", err)
	}
	meta, err := Open(rootDSN)
	if err != nil {
		return nil, "", fmt.Errorf("db open (meta): %w", err)
	}
	defer meta.Close()
	if err := Ping(ctx, meta); err != nil {
		return nil, "", fmt.Errorf("db ping (meta): %w", err)
	}
	name, err := ResolveLatestImportDBName(ctx, meta, city)
	if err != nil {
		return nil, "", err
	}
	dsn, err := WithDBName(baseDSN, name)
	if err != nil {
		return nil, "", err
	}
	conn, err := Open(dsn)
	if err != nil {
		return nil, "", fmt.Errorf("db open (%s): %w", name, err)
	}
	if err := Ping(ctx, conn); err != nil {
		conn.Close()
		return nil, "", fmt.Errorf("db ping (%s): %w", name, err)
	}
	return conn, name, nil
}
