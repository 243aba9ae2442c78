// Package testdb opens throwaway in-memory databases for tests.
package testdb

import (
	"bytes"
	"database/sql"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/kuitang/epic-notes/internal/crypto"
	"github.com/kuitang/epic-notes/internal/db"
)

// MasterKey is the fixed master key used for in-memory test databases.
var MasterKey = bytes.Repeat([]byte{0x42}, crypto.MasterKeySize)

// NewInMemory creates an in-memory encrypted database. Each name is a separate
// database; connections with the same name share it.
func NewInMemory(name string) (*db.DB, error) {
	if name == "" {
		name = "test-" + uuid.NewString()
	}

	key := crypto.DeriveDatabaseKey(MasterKey, "notes", 1)
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma_key=x'%s'&_pragma_cipher_page_size=4096", name, hex.EncodeToString(key))

	sqlDB, err := sql.Open(db.SQLiteDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}

	// A single pinned connection keeps the in-memory database alive and
	// avoids shared-cache table locks between pooled connections.
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(0)

	var sqliteVersion string
	if err := sqlDB.QueryRow("SELECT sqlite_version()").Scan(&sqliteVersion); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to verify in-memory database: %w", err)
	}

	if err := applyFastSQLitePragmas(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to apply fast SQLite pragmas: %w", err)
	}

	if _, err := sqlDB.Exec(db.Schema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to initialize in-memory schema: %w", err)
	}

	return db.NewFromSQL(sqlDB), nil
}

// New opens a fresh in-memory database and closes it when the test ends.
func New(tb testing.TB) *db.DB {
	tb.Helper()
	d, err := NewInMemory("")
	if err != nil {
		tb.Fatalf("open test database: %v", err)
	}
	tb.Cleanup(func() { _ = d.Close() })
	return d
}

func applyFastSQLitePragmas(sqlDB *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=MEMORY",
		"PRAGMA synchronous=OFF",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA secure_delete=OFF",
	}
	for _, pragma := range pragmas {
		if _, err := sqlDB.Exec(pragma); err != nil {
			return err
		}
	}
	return nil
}
