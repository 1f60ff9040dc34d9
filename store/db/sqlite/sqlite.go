package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"
	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/hrygo/callsight/internal/profile"
	"github.com/hrygo/callsight/store"
)

// SQLite backs dev mode and driver tests. It has no change feed; callers
// fall back to invalidating their own writes only.

// ErrChangeFeedNotSupported is returned by WatchChatChanges.
var ErrChangeFeedNotSupported = store.ErrChangeFeedNotSupported

const pragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)"

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a new instance of the database using the SQLite driver.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	sqliteDB, err := sql.Open("sqlite", withPragmas(profile.DSN))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}
	if err := sqliteDB.Ping(); err != nil {
		sqliteDB.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	driver := DB{db: sqliteDB, profile: profile}
	return &driver, nil
}

// withPragmas appends connection pragmas so every pooled connection enforces
// foreign keys. The cascade from chat_sessions to chat_messages depends on it.
func withPragmas(dsn string) string {
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&" + pragmas
	}
	return dsn + "?" + pragmas
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (*DB) Dialect() string {
	return "sqlite"
}

func (d *DB) IsInitialized(ctx context.Context) (bool, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = 'chat_sessions')").Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "failed to check if database is initialized")
	}
	return exists, nil
}

func (*DB) WatchChatChanges(context.Context) (<-chan *store.ChatChange, error) {
	return nil, ErrChangeFeedNotSupported
}
