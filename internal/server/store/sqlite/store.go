// Package sqlite реализует долговременный change store поверх SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/cobrain-app/cobrain-sync/internal/models"
	"github.com/cobrain-app/cobrain-sync/internal/server/store"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Store представляет SQLite реализацию change store.
type Store struct {
	db *sql.DB
}

// New создает SQLite change store по пути dbPath.
// Use ":memory:" for in-memory database (useful for testing).
func New(ctx context.Context, dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA busy_timeout = 5000;",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &Store{db: db}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// Close закрывает соединение с базой данных.
func (s *Store) Close() error {
	return s.db.Close()
}

// runMigrations выполняет миграции из embedded FS.
func (s *Store) runMigrations() error {
	goose.SetDialect("sqlite3")
	goose.SetBaseFS(embedMigrations)

	if err := goose.Up(s.db, "migrations"); err != nil {
		return fmt.Errorf("goose up failed: %w", err)
	}

	return nil
}

// Append реализует store.ChangeStore.Append.
// Версии присваиваются внутри транзакции: либо сохранен весь пакет,
// либо ничего — частичная запись не видна другим устройствам.
func (s *Store) Append(
	ctx context.Context,
	userID, deviceID string,
	changes []*models.Change,
) ([]*store.StoredChange, error) {
	if userID == "" {
		return nil, store.ErrEmptyUserID
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var version int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(server_version), 0) FROM server_changes WHERE user_id = ?`,
		userID,
	).Scan(&version)
	if err != nil {
		return nil, fmt.Errorf("failed to read latest version: %w", err)
	}

	now := time.Now().Unix()
	stored := make([]*store.StoredChange, 0, len(changes))

	for _, c := range changes {
		version++

		encoded, err := json.Marshal(c.Val)
		if err != nil {
			return nil, fmt.Errorf("failed to encode value: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO server_changes (
			     user_id, server_version, device_id,
			     tbl, pk, cid, val, col_version, db_version, site_id, cl, seq,
			     created_at
			 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			userID, version, deviceID,
			c.Table, c.PK, c.CID, string(encoded),
			int64(c.ColVersion), int64(c.DBVersion), c.SiteID, int64(c.CL), int64(c.Seq),
			now,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert change: %w", err)
		}

		stored = append(stored, &store.StoredChange{
			Change:        c.Clone(),
			UserID:        userID,
			DeviceID:      deviceID,
			ServerVersion: uint64(version),
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return stored, nil
}

// GetSince реализует store.ChangeStore.GetSince.
func (s *Store) GetSince(ctx context.Context, userID string, since uint64) ([]*store.StoredChange, error) {
	if userID == "" {
		return nil, store.ErrEmptyUserID
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT server_version, device_id, tbl, pk, cid, val,
		        col_version, db_version, site_id, cl, seq
		 FROM server_changes
		 WHERE user_id = ? AND server_version > ?
		 ORDER BY server_version ASC`,
		userID, int64(since),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query changes: %w", err)
	}
	defer rows.Close()

	result := make([]*store.StoredChange, 0)
	for rows.Next() {
		var (
			c       models.Change
			sc      store.StoredChange
			encoded string

			serverVersion, colVersion, dbVersion, cl, seq int64
		)

		err := rows.Scan(
			&serverVersion, &sc.DeviceID,
			&c.Table, &c.PK, &c.CID, &encoded,
			&colVersion, &dbVersion, &c.SiteID, &cl, &seq,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan change: %w", err)
		}

		if err := json.Unmarshal([]byte(encoded), &c.Val); err != nil {
			return nil, fmt.Errorf("failed to decode value: %w", err)
		}

		c.ColVersion = uint64(colVersion)
		c.DBVersion = uint64(dbVersion)
		c.CL = uint64(cl)
		c.Seq = uint64(seq)

		sc.Change = &c
		sc.UserID = userID
		sc.ServerVersion = uint64(serverVersion)

		result = append(result, &sc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate changes: %w", err)
	}

	return result, nil
}

// LatestVersion реализует store.ChangeStore.LatestVersion.
func (s *Store) LatestVersion(ctx context.Context, userID string) (uint64, error) {
	if userID == "" {
		return 0, store.ErrEmptyUserID
	}

	var version int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(server_version), 0) FROM server_changes WHERE user_id = ?`,
		userID,
	).Scan(&version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to read latest version: %w", err)
	}

	return uint64(version), nil
}
