package all

import (
	"database/sql"
	"strings"
	"testing"

	"catalogetl/internal/storage"
)

func TestBackendsRegistered(t *testing.T) {
	t.Parallel()

	if got := strings.Join(storage.Kinds(), ","); got != "mssql,postgres,sqlite" {
		t.Fatalf("Kinds()=%s", got)
	}

	found := false
	for _, d := range sql.Drivers() {
		if d == "sqlserver" {
			found = true
		}
	}
	if !found {
		t.Fatalf("sqlserver driver not registered: %v", sql.Drivers())
	}
}
