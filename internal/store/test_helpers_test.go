package store

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/condpush/internal/dialect"
	"github.com/roach88/condpush/internal/entity"
	"github.com/roach88/condpush/internal/schema"
	"github.com/roach88/condpush/internal/testutil"
)

// createTestStore creates a new file-backed store over the default model.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	opts = append([]Option{WithIDGenerator(testutil.NewSequentialIDs())}, opts...)
	s, err := Open(path, schema.Default(), opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// noScaleDialect is SQLite with datetime scale support switched off.
type noScaleDialect struct {
	dialect.SQLite
}

func (noScaleDialect) SupportsDateTimeScale() bool { return false }

// createTestIssues returns a client, a project and two issues referencing
// them, in save order.
func createTestIssues() (client, project, i1, i2 *entity.Instance) {
	client = entity.New("Client", "").Set("Name", "Alpha")
	project = entity.New("Project", "").Set("Name", "Apple")
	i1 = entity.New("Issue", "").Set("Name", "1").Set("Client", client).Set("Project", project)
	i2 = entity.New("Issue", "").Set("Name", "2").Set("Client", nil).Set("Project", project)
	return client, project, i1, i2
}

func getTableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()
	rows, err := db.Query("SELECT name FROM pragma_table_info(?) ORDER BY cid", table)
	if err != nil {
		t.Fatalf("table_info(%s) failed: %v", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan failed: %v", err)
		}
		cols = append(cols, name)
	}
	return cols
}

var testInstant = time.Date(2017, 10, 1, 12, 30, 45, 123456789, time.UTC)
