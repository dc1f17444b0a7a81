package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"saveswap/internal/database/migrations"
	"saveswap/internal/swap"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements swap.AccountStore and swap.ActivityLog using SQLite.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
}

// NewSQLiteDatabase opens the database at path and migrates it to the latest
// schema. path can be a file path or ":memory:" for an in-memory database.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	return &SQLiteDatabase{db: db, path: path}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured
// and migrated.
func NewSQLiteDatabaseFromDB(db *sql.DB) *SQLiteDatabase {
	return &SQLiteDatabase{db: db}
}

// OpenConnection opens and configures a SQLite database connection with appropriate PRAGMAs.
// path can be a file path or ":memory:" for in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every pooled connection to ":memory:" would get its own empty database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Backup and restore commands can run long; let a concurrent CLI
	// invocation wait for the write lock instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

const accountColumns = `id, name, backup_path, device_id, network_id, sus_level, has_error,
	owner, grp, mode, last_backup_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*swap.Account, error) {
	var (
		a                swap.Account
		owner, grp, mode sql.NullString
		lastBackupAt     sql.NullTime
	)
	err := row.Scan(&a.ID, &a.Name, &a.BackupPath, &a.DeviceID, &a.NetworkID, &a.SusLevel, &a.HasError,
		&owner, &grp, &mode, &lastBackupAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if owner.Valid && grp.Valid && mode.Valid {
		a.Ownership = &swap.FilePermissions{Owner: owner.String, Group: grp.String, Mode: mode.String}
	}
	if lastBackupAt.Valid {
		t := lastBackupAt.Time
		a.LastBackupAt = &t
	}
	return &a, nil
}

func ownershipColumns(p *swap.FilePermissions) (owner, grp, mode sql.NullString) {
	if p == nil {
		return
	}
	return sql.NullString{String: p.Owner, Valid: true},
		sql.NullString{String: p.Group, Valid: true},
		sql.NullString{String: p.Mode, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// Account operations

func (s *SQLiteDatabase) CreateAccount(ctx context.Context, account *swap.Account) (*swap.Account, error) {
	now := time.Now().UTC()
	owner, grp, mode := ownershipColumns(account.Ownership)

	res, err := s.db.ExecContext(ctx, `INSERT INTO accounts
		(name, backup_path, device_id, network_id, sus_level, has_error, owner, grp, mode, last_backup_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.Name, account.BackupPath, account.DeviceID, account.NetworkID, account.SusLevel, account.HasError,
		owner, grp, mode, nullTime(account.LastBackupAt), now, now)
	if err != nil {
		return nil, fmt.Errorf("inserting account: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading account id: %w", err)
	}
	return s.GetAccount(ctx, id)
}

func (s *SQLiteDatabase) GetAccount(ctx context.Context, id int64) (*swap.Account, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id = ?", id)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: id %d", swap.ErrAccountNotFound, id)
		}
		return nil, fmt.Errorf("finding account %d: %w", id, err)
	}
	return account, nil
}

func (s *SQLiteDatabase) FindAccountByName(ctx context.Context, name string) (*swap.Account, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+accountColumns+" FROM accounts WHERE name = ?", name)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: name %q", swap.ErrAccountNotFound, name)
		}
		return nil, fmt.Errorf("finding account %q: %w", name, err)
	}
	return account, nil
}

func (s *SQLiteDatabase) ListAccounts(ctx context.Context) ([]*swap.Account, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+accountColumns+" FROM accounts ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*swap.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning account: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	return accounts, nil
}

func (s *SQLiteDatabase) UpdateAccount(ctx context.Context, account *swap.Account) error {
	now := time.Now().UTC()
	owner, grp, mode := ownershipColumns(account.Ownership)

	res, err := s.db.ExecContext(ctx, `UPDATE accounts SET
		name = ?, backup_path = ?, device_id = ?, network_id = ?, sus_level = ?, has_error = ?,
		owner = ?, grp = ?, mode = ?, last_backup_at = ?, updated_at = ?
		WHERE id = ?`,
		account.Name, account.BackupPath, account.DeviceID, account.NetworkID, account.SusLevel, account.HasError,
		owner, grp, mode, nullTime(account.LastBackupAt), now, account.ID)
	if err != nil {
		return fmt.Errorf("updating account %d: %w", account.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: id %d", swap.ErrAccountNotFound, account.ID)
	}
	account.UpdatedAt = now
	return nil
}

func (s *SQLiteDatabase) DeleteAccount(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM accounts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting account %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: id %d", swap.ErrAccountNotFound, id)
	}
	return nil
}

// Activity log operations

func (s *SQLiteDatabase) Record(ctx context.Context, entry *swap.ActivityEntry) error {
	var accountID sql.NullInt64
	if entry.AccountID != nil {
		accountID = sql.NullInt64{Int64: *entry.AccountID, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO activity_log (id, logged_at, level, category, message, account_id)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Time.UTC(), string(entry.Level), entry.Category, entry.Message, accountID)
	if err != nil {
		return fmt.Errorf("recording activity: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) Recent(ctx context.Context, limit int) ([]*swap.ActivityEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, logged_at, level, category, message, account_id
		FROM activity_log ORDER BY logged_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing activity: %w", err)
	}
	defer rows.Close()

	var entries []*swap.ActivityEntry
	for rows.Next() {
		var (
			e         swap.ActivityEntry
			level     string
			accountID sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.Time, &level, &e.Category, &e.Message, &accountID); err != nil {
			return nil, fmt.Errorf("scanning activity: %w", err)
		}
		e.Level = swap.Level(level)
		if accountID.Valid {
			id := accountID.Int64
			e.AccountID = &id
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing activity: %w", err)
	}
	return entries, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	_, err := s.db.Exec("VACUUM INTO ?", destPath)
	if err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Compile-time checks that SQLiteDatabase implements the engine's store interfaces.
var (
	_ swap.AccountStore = (*SQLiteDatabase)(nil)
	_ swap.ActivityLog  = (*SQLiteDatabase)(nil)
)
