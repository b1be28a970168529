package credstore

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore keeps the token in a SQLite file so it survives restarts.
type SQLiteStore struct {
	db   *sql.DB
	slot string
}

// Compile-time check: SQLiteStore satisfies Store.
var _ Store = (*SQLiteStore)(nil)

// Open opens (or creates) the credential database at dir/credentials.db and
// binds the store to the named slot.
func Open(dir, slot string) (*SQLiteStore, error) {
	if slot == "" {
		return nil, errors.New("slot cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating credential dir %s: %w", dir, err)
	}

	dbPath := filepath.Join(dir, "credentials.db")
	if err := RunMigrations(dbPath); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening credential db: %w", err)
	}
	return &SQLiteStore{db: db, slot: slot}, nil
}

// RunMigrations applies all pending credential schema migrations to the
// SQLite file at dbPath.
func RunMigrations(dbPath string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, "sqlite://"+dbPath)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get() (string, error) {
	var token string
	err := s.db.QueryRow(`SELECT token FROM credentials WHERE slot = ?`, s.slot).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("reading credential: %w", err)
	}
	return token, nil
}

func (s *SQLiteStore) Set(token string) error {
	if token == "" {
		return errors.New("token cannot be empty")
	}
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO credentials (slot, token, stored_at) VALUES (?, ?, CURRENT_TIMESTAMP)`,
		s.slot, token,
	)
	if err != nil {
		return fmt.Errorf("storing credential: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM credentials WHERE slot = ?`, s.slot); err != nil {
		return fmt.Errorf("clearing credential: %w", err)
	}
	return nil
}

// Close closes the credential database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
