package infra

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	sqlcipher "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/eliteGoblin/focusd/timebank/internal/domain"
)

// Ensure sqlcipher driver is registered.
var _ = sqlcipher.ErrBusy

const (
	storeDBName = "timebank.db"
)

// EncryptedStore implements domain.ConfigStore, domain.ClassificationStore
// and domain.DaemonRegistry on a SQLCipher encrypted SQLite database.
//
// Writers in other processes (the CLI while the daemon runs) are serialized
// by SQLite's write lock; IMMEDIATE transactions take that lock up front so
// read-modify-write cycles cannot interleave.
type EncryptedStore struct {
	db     *sql.DB
	dbPath string
}

// NewEncryptedStore opens (or creates) the encrypted database in dataDir.
// The key is used as the SQLCipher passphrase via PRAGMA key.
func NewEncryptedStore(dataDir string, key []byte) (*EncryptedStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, storeDBName)
	keyHex := hex.EncodeToString(key)

	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096&_busy_timeout=5000&_txlock=immediate",
		dbPath, keyHex)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Verify the key by running a query
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	s := &EncryptedStore{
		db:     db,
		dbPath: dbPath,
	}

	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

func (s *EncryptedStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS classifications (
		app_id TEXT PRIMARY KEY,
		app_name TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL,
		added_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS daemon_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		pid INTEGER NOT NULL,
		started_at INTEGER NOT NULL,
		last_heartbeat INTEGER NOT NULL,
		app_version TEXT DEFAULT ''
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// storeErr tags err as a store failure.
func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}

// --- domain.ConfigStore implementation ---

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getValue(ctx context.Context, q queryer, key string) (string, bool, error) {
	var value string
	err := q.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *EncryptedStore) setValue(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO kv (key, value, updated_at) VALUES (?, ?, ?)`,
		key, value, time.Now().UnixMilli())
	return err
}

func (s *EncryptedStore) GetInt(ctx context.Context, key string, def int64) (int64, error) {
	raw, ok, err := getValue(ctx, s.db, key)
	if err != nil {
		return 0, storeErr("get "+key, err)
	}
	if !ok {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, storeErr("parse "+key, err)
	}
	return v, nil
}

func (s *EncryptedStore) SetInt(ctx context.Context, key string, value int64) error {
	if err := s.setValue(ctx, key, strconv.FormatInt(value, 10)); err != nil {
		return storeErr("set "+key, err)
	}
	return nil
}

// UpdateInt runs fn inside one IMMEDIATE transaction.
func (s *EncryptedStore) UpdateInt(ctx context.Context, key string, def int64, fn func(int64) (int64, bool)) (int64, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, storeErr("begin "+key, err)
	}
	defer tx.Rollback()

	current := def
	raw, ok, err := getValue(ctx, tx, key)
	if err != nil {
		return 0, false, storeErr("get "+key, err)
	}
	if ok {
		current, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, false, storeErr("parse "+key, err)
		}
	}

	next, apply := fn(current)
	if !apply {
		return current, false, nil
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO kv (key, value, updated_at) VALUES (?, ?, ?)`,
		key, strconv.FormatInt(next, 10), time.Now().UnixMilli()); err != nil {
		return current, false, storeErr("update "+key, err)
	}
	if err := tx.Commit(); err != nil {
		return current, false, storeErr("commit "+key, err)
	}
	return next, true, nil
}

func (s *EncryptedStore) GetFloat(ctx context.Context, key string, def float64) (float64, error) {
	raw, ok, err := getValue(ctx, s.db, key)
	if err != nil {
		return 0, storeErr("get "+key, err)
	}
	if !ok {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, storeErr("parse "+key, err)
	}
	return v, nil
}

func (s *EncryptedStore) SetFloat(ctx context.Context, key string, value float64) error {
	if err := s.setValue(ctx, key, strconv.FormatFloat(value, 'g', -1, 64)); err != nil {
		return storeErr("set "+key, err)
	}
	return nil
}

func (s *EncryptedStore) GetBool(ctx context.Context, key string, def bool) (bool, error) {
	raw, ok, err := getValue(ctx, s.db, key)
	if err != nil {
		return false, storeErr("get "+key, err)
	}
	if !ok {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, storeErr("parse "+key, err)
	}
	return v, nil
}

func (s *EncryptedStore) SetBool(ctx context.Context, key string, value bool) error {
	if err := s.setValue(ctx, key, strconv.FormatBool(value)); err != nil {
		return storeErr("set "+key, err)
	}
	return nil
}

// --- domain.ClassificationStore implementation ---

func (s *EncryptedStore) Get(ctx context.Context, appID string) (*domain.Classification, error) {
	var (
		c                  domain.Classification
		category           string
		addedAt, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT app_id, app_name, category, added_at, updated_at FROM classifications WHERE app_id = ?`,
		appID).Scan(&c.AppID, &c.AppName, &category, &addedAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrClassificationNotFound
	}
	if err != nil {
		return nil, storeErr("get classification", err)
	}
	c.Category = domain.Category(category)
	c.AddedAt = time.UnixMilli(addedAt)
	c.UpdatedAt = time.UnixMilli(updatedAt)
	return &c, nil
}

// Upsert inserts or replaces a classification. A zero AddedAt keeps the
// stored one, or becomes now for new records.
func (s *EncryptedStore) Upsert(ctx context.Context, c domain.Classification) error {
	now := time.Now()
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}
	var addedAt any
	if !c.AddedAt.IsZero() {
		addedAt = c.AddedAt.UnixMilli()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO classifications (app_id, app_name, category, added_at, updated_at)
		VALUES (?, ?, ?, COALESCE(?, ?), ?)
		ON CONFLICT(app_id) DO UPDATE SET
			app_name = excluded.app_name,
			category = excluded.category,
			added_at = COALESCE(?, classifications.added_at),
			updated_at = excluded.updated_at`,
		c.AppID, c.AppName, string(c.Category), addedAt, now.UnixMilli(), c.UpdatedAt.UnixMilli(), addedAt)
	if err != nil {
		return storeErr("upsert classification", err)
	}
	return nil
}

func (s *EncryptedStore) Delete(ctx context.Context, appID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM classifications WHERE app_id = ?`, appID); err != nil {
		return storeErr("delete classification", err)
	}
	return nil
}

func (s *EncryptedStore) List(ctx context.Context) ([]domain.Classification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT app_id, app_name, category, added_at, updated_at FROM classifications ORDER BY app_id`)
	if err != nil {
		return nil, storeErr("list classifications", err)
	}
	defer rows.Close()

	var out []domain.Classification
	for rows.Next() {
		var (
			c                  domain.Classification
			category           string
			addedAt, updatedAt int64
		)
		if err := rows.Scan(&c.AppID, &c.AppName, &category, &addedAt, &updatedAt); err != nil {
			return nil, storeErr("scan classification", err)
		}
		c.Category = domain.Category(category)
		c.AddedAt = time.UnixMilli(addedAt)
		c.UpdatedAt = time.UnixMilli(updatedAt)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list classifications", err)
	}
	return out, nil
}

// --- domain.DaemonRegistry implementation ---

// Register saves the daemon PID, replacing any previous entry.
func (s *EncryptedStore) Register(daemon domain.Daemon) error {
	now := time.Now().Unix()
	startedAt := daemon.StartedAt.Unix()
	if daemon.StartedAt.IsZero() {
		startedAt = now
	}

	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO daemon_state (id, pid, started_at, last_heartbeat, app_version)
		VALUES (1, ?, ?, ?, ?)`,
		daemon.PID, startedAt, now, daemon.AppVersion,
	)
	return err
}

// UpdateHeartbeat updates timestamp for liveness check.
func (s *EncryptedStore) UpdateHeartbeat() error {
	result, err := s.db.Exec(`UPDATE daemon_state SET last_heartbeat = ? WHERE id = 1`, time.Now().Unix())
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrDaemonNotRunning
	}
	return nil
}

// Current returns the registered daemon, nil when none.
func (s *EncryptedStore) Current() (*domain.RegistryEntry, error) {
	var entry domain.RegistryEntry
	err := s.db.QueryRow(
		`SELECT pid, started_at, last_heartbeat, app_version FROM daemon_state WHERE id = 1`,
	).Scan(&entry.PID, &entry.StartedAt, &entry.LastHeartbeat, &entry.AppVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Clear removes the daemon registration.
func (s *EncryptedStore) Clear() error {
	_, err := s.db.Exec(`DELETE FROM daemon_state`)
	return err
}

// Path returns the database file path.
func (s *EncryptedStore) Path() string {
	return s.dbPath
}

// Close releases the database connection.
func (s *EncryptedStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var (
	_ domain.ConfigStore         = (*EncryptedStore)(nil)
	_ domain.ClassificationStore = (*EncryptedStore)(nil)
	_ domain.DaemonRegistry      = (*EncryptedStore)(nil)
)
