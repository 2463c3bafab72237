package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dotcommander/refresher/internal/app"
	_ "modernc.org/sqlite"
)

// EnvBusyTimeout overrides the SQLite busy_timeout, in milliseconds, for
// catalogs shared by several refresher runs.
const EnvBusyTimeout = "REFRESHER_BUSY_TIMEOUT_MS"

const (
	defaultBusyTimeoutMS = 5000
	maxBusyTimeoutMS     = 60000
)

// Pragmas is the connection state a catalog handle runs with.
type Pragmas struct {
	JournalMode   string `json:"journal_mode"`
	BusyTimeoutMS int    `json:"busy_timeout_ms"`
	ForeignKeys   bool   `json:"foreign_keys"`
	Synchronous   string `json:"synchronous"`
}

// InitDB opens the catalog at the resolved database path.
func InitDB() (*sql.DB, error) {
	dbPath, err := app.GetDBPath()
	if err != nil {
		return nil, err
	}
	return InitDBWithPath(dbPath)
}

// InitDBWithPath opens (creating if needed) the catalog at dbPath and
// applies pending migrations.
//
// A run drives the cleanup provider, every retry attempt and the event
// recorder from one dispatch loop, so the handle holds exactly one
// connection. Statements from the loop queue on it instead of contending
// for the write lock, a provider transaction never deadlocks against an
// event insert, and an in-memory catalog lives as long as the handle.
// Other processes sharing the file are absorbed by WAL and busy_timeout.
func InitDBWithPath(dbPath string) (*sql.DB, error) {
	if _, err := app.EnsureDBDir(dbPath); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", normalizeSQLiteDSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	for _, pragma := range catalogPragmas(busyTimeoutMS()) {
		if err := RetryWithBackoff(func() error {
			_, err := db.ExecContext(context.Background(), pragma)
			return err
		}); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	if err := RetryWithBackoff(func() error { return MigrateDB(db, dbPath) }); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

// catalogPragmas lists the per-connection settings in the order they must be
// applied: busy_timeout first so the WAL switch itself waits on other runs.
// synchronous=NORMAL is enough because events only describe the current run
// and a lost refresh stamp is redone by the next refresh.
func catalogPragmas(busyMS int) []string {
	return []string{
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyMS),
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA journal_mode=WAL",
	}
}

// busyTimeoutMS reads EnvBusyTimeout. Unparseable or non-positive values fall
// back to the default; values above a minute are clamped so an interrupted
// refresh cannot hang on a stuck writer.
func busyTimeoutMS() int {
	v := strings.TrimSpace(os.Getenv(EnvBusyTimeout))
	if v == "" {
		return defaultBusyTimeoutMS
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms <= 0 {
		return defaultBusyTimeoutMS
	}
	return min(ms, maxBusyTimeoutMS)
}

// ReadPragmas reports the settings the handle's connection is running with.
func ReadPragmas(db *sql.DB) (Pragmas, error) {
	var p Pragmas
	var fk, sync int
	ctx := context.Background()
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&p.JournalMode); err != nil {
		return Pragmas{}, fmt.Errorf("read journal_mode: %w", err)
	}
	if err := db.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&p.BusyTimeoutMS); err != nil {
		return Pragmas{}, fmt.Errorf("read busy_timeout: %w", err)
	}
	if err := db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk); err != nil {
		return Pragmas{}, fmt.Errorf("read foreign_keys: %w", err)
	}
	if err := db.QueryRowContext(ctx, "PRAGMA synchronous").Scan(&sync); err != nil {
		return Pragmas{}, fmt.Errorf("read synchronous: %w", err)
	}
	p.ForeignKeys = fk == 1
	p.Synchronous = synchronousName(sync)
	return p, nil
}

func synchronousName(level int) string {
	switch level {
	case 0:
		return "OFF"
	case 1:
		return "NORMAL"
	case 2:
		return "FULL"
	case 3:
		return "EXTRA"
	default:
		return strconv.Itoa(level)
	}
}

func normalizeSQLiteDSN(dbPath string) string {
	switch {
	case strings.HasPrefix(dbPath, "file:"):
		return dbPath
	case dbPath == ":memory:":
		return "file::memory:?cache=shared"
	default:
		return "file:" + dbPath + "?mode=rwc"
	}
}
