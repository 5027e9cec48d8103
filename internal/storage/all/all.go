// Package all registers every storage backend and the SQL Server driver.
// Import it for side effects from main packages.
package all

import (
	_ "github.com/microsoft/go-mssqldb"

	_ "catalogetl/internal/storage/mssql"
	_ "catalogetl/internal/storage/postgres"
	_ "catalogetl/internal/storage/sqlite"
)
