package db

import (
	"fmt"
	"net/http"

	migrate "github.com/rubenv/sql-migrate"

	"github.com/innosystem/dispatch-platform-backend/db/migrations"
)

const migrationsTableName = "platform_migrations"

// Migrate applies count migrations in the given direction against the database
// at dbURL. It returns the number of migrations applied.
func Migrate(dbURL string, dir migrate.MigrationDirection, count int) (int, error) {
	dbConnectionPool, err := OpenDBConnectionPool(dbURL)
	if err != nil {
		return 0, fmt.Errorf("connecting to the database: %w", err)
	}
	defer dbConnectionPool.Close()

	ms := migrate.MigrationSet{TableName: migrationsTableName}
	m := migrate.HttpFileSystemMigrationSource{FileSystem: http.FS(migrations.FS)}
	return ms.ExecMax(dbConnectionPool.SqlDB(), dbConnectionPool.DriverName(), m, dir, count)
}

// MigrationRecords returns the applied migration rows, newest last.
func MigrationRecords(dbURL string) ([]*migrate.MigrationRecord, error) {
	dbConnectionPool, err := OpenDBConnectionPool(dbURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to the database: %w", err)
	}
	defer dbConnectionPool.Close()

	ms := migrate.MigrationSet{TableName: migrationsTableName}
	records, err := ms.GetMigrationRecords(dbConnectionPool.SqlDB(), dbConnectionPool.DriverName())
	if err != nil {
		return nil, fmt.Errorf("getting migration records: %w", err)
	}
	return records, nil
}
