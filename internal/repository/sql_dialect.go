package repository

import (
	"fmt"
	"strings"
	"time"

	"github.com/RealZimboGuy/leadflow/internal/config"
)

// placeholder returns the correct bind variable for the given index based on DB type.
// Postgres uses $1, $2... while MySQL and SQLite use ?
func placeholder(i int) string {
	if isPostgres() {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}

// placeholders returns n bind variables starting at index start, comma separated.
func placeholders(start, n int) string {
	pps := make([]string, 0, n)
	for i := 0; i < n; i++ {
		pps = append(pps, placeholder(start+i))
	}
	return strings.Join(pps, ", ")
}

func databaseType() string {
	return config.GetSystemSettingString(config.DATABASE_TYPE)
}

func isPostgres() bool { return databaseType() == config.DATABASE_TYPE_POSTGRES }
func isMysql() bool    { return databaseType() == config.DATABASE_TYPE_MYSQL }

func supportsReturning() bool {
	return isPostgres()
}

// formatDateInDatabase renders a time the way each driver stores it.
func formatDateInDatabase(t time.Time) string {
	switch databaseType() {
	case config.DATABASE_TYPE_SQLLITE:
		return t.UTC().Format("2006-01-02 15:04:05.000")
	case config.DATABASE_TYPE_MYSQL:
		return t.UTC().Format("2006-01-02 15:04:05.000000")
	}
	// PostgreSQL supports RFC3339
	return t.UTC().Format(time.RFC3339Nano)
}

// dateCompare returns a predicate comparing a datetime column with a bound
// parameter. SQLite stores TEXT so both sides are coerced via julianday().
func dateCompare(column, op, param string) string {
	if databaseType() == config.DATABASE_TYPE_SQLLITE {
		return fmt.Sprintf("julianday(%s) %s julianday(%s)", column, op, param)
	}
	return fmt.Sprintf("%s %s %s", column, op, param)
}

// insertIgnore builds an INSERT that silently skips rows violating a unique
// constraint. MySQL has no ON CONFLICT clause so it uses INSERT IGNORE.
func insertIgnore(table, columns, values string) string {
	if isMysql() {
		return "INSERT IGNORE INTO " + table + " (" + columns + ") VALUES (" + values + ")"
	}
	return "INSERT INTO " + table + " (" + columns + ") VALUES (" + values + ") ON CONFLICT DO NOTHING"
}

func int64Args(ids []int64) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
