// Package engine реализует локальный движок синхронизации: захват
// изменений локального хранилища и применение входящих изменений
// с разрешением конфликтов по правилу last-writer-wins на колонку.
package engine

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/cobrain-app/cobrain-sync/internal/crdt"
	"github.com/cobrain-app/cobrain-sync/internal/models"
	"github.com/cobrain-app/cobrain-sync/pkg/api"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Ключи служебной таблицы crdt_meta.
const (
	metaKeySiteID    = "site_id"
	metaKeyDBVersion = "db_version"
)

// DefaultSyncTables таблицы, отслеживаемые движком по умолчанию.
var DefaultSyncTables = []string{"notes", "entities", "reminders"}

// Ошибки движка.
var (
	// ErrNotFound запись для (table, pk, cid) не найдена
	ErrNotFound = errors.New("record not found")

	// ErrTableNotTracked таблица не входит в список синхронизируемых
	ErrTableNotTracked = errors.New("table is not tracked")
)

// SkippedChange описывает изменение, пропущенное при применении пакета,
// и причину пропуска.
type SkippedChange struct {
	Change *models.Change
	Reason string
}

// ApplyResult структурированный результат применения пакета изменений.
// Отдельные сбои не прерывают пакет: вызывающая сторона и тесты могут
// проверить частичный результат.
type ApplyResult struct {
	Skipped []SkippedChange // пропущенные изменения с причинами
	Applied int             // количество примененных изменений
}

// Engine связывает журнал изменений локального хранилища с транспортным
// форматом и владеет разрешением конфликтов. Все операции — синхронные
// транзакционные вызовы к встроенной БД; вызывающая сторона должна
// считать их блокирующими.
//
// Использование движка после Finalize и повторный Finalize — фатальная
// ошибка программиста (panic), не ошибка времени выполнения.
type Engine struct {
	db       *sql.DB
	clock    *crdt.Clock
	logger   *slog.Logger
	onChange func()
	tables   []string
	mu       sync.Mutex // сериализует записи и защищает finalized
	final    bool
}

// New открывает движок над SQLite базой по пути dbPath.
// tables задает список синхронизируемых таблиц (nil = DefaultSyncTables).
// Use ":memory:" for in-memory database (useful for testing).
func New(ctx context.Context, dbPath string, tables []string, logger *slog.Logger) (*Engine, error) {
	if tables == nil {
		tables = DefaultSyncTables
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite с WAL mode может поддерживать несколько читателей, но только одного писателя
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	e := &Engine{
		db:     db,
		logger: logger,
		tables: slices.Clone(tables),
	}

	if err := e.loadClock(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load clock state: %w", err)
	}

	return e, nil
}

// runMigrations выполняет миграции из embedded FS.
func runMigrations(db *sql.DB) error {
	goose.SetDialect("sqlite3")
	goose.SetBaseFS(embedMigrations)

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("goose up failed: %w", err)
	}

	return nil
}

// loadClock восстанавливает site_id и счетчик версий из crdt_meta,
// создавая их при первом открытии базы.
func (e *Engine) loadClock(ctx context.Context) error {
	siteID, err := e.metaGet(ctx, metaKeySiteID)
	if err != nil {
		return err
	}

	if siteID == nil {
		clock := crdt.NewClock()
		if err := e.metaSet(ctx, metaKeySiteID, clock.SiteID()); err != nil {
			return err
		}
		if err := e.metaSet(ctx, metaKeyDBVersion, encodeVersion(0)); err != nil {
			return err
		}
		e.clock = clock
		return nil
	}

	e.clock = crdt.NewClockWithSiteID(siteID)

	raw, err := e.metaGet(ctx, metaKeyDBVersion)
	if err != nil {
		return err
	}
	if raw != nil {
		e.clock.Set(decodeVersion(raw))
	}

	return nil
}

func (e *Engine) metaGet(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := e.db.QueryRowContext(ctx, `SELECT value FROM crdt_meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read meta %q: %w", key, err)
	}
	return value, nil
}

func (e *Engine) metaSet(ctx context.Context, key string, value []byte) error {
	_, err := e.db.ExecContext(ctx,
		`INSERT INTO crdt_meta (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to write meta %q: %w", key, err)
	}
	return nil
}

func encodeVersion(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func decodeVersion(raw []byte) uint64 {
	if len(raw) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(raw)
}

// usable паникует при использовании движка после Finalize.
// Вызывается под e.mu.
func (e *Engine) usable() {
	if e.final {
		panic("engine: used after Finalize")
	}
}

// checkUsable вариант usable для операций, не держащих e.mu.
func (e *Engine) checkUsable() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.usable()
}

// SiteID возвращает идентификатор этой реплики.
// Стабилен на все время жизни базы данных.
func (e *Engine) SiteID() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.usable()

	return e.clock.SiteID()
}

// SiteIDHex возвращает идентификатор реплики в hex представлении.
func (e *Engine) SiteIDHex() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.usable()

	return e.clock.SiteIDHex()
}

// CurrentVersion возвращает текущее значение локальных логических часов.
func (e *Engine) CurrentVersion(ctx context.Context) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.usable()

	return e.clock.Current()
}

// SyncTables возвращает список таблиц, участвующих в синхронизации.
// Служебные таблицы (crdt_*, goose_*) не попадают в список никогда.
func (e *Engine) SyncTables(ctx context.Context) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.usable()

	return slices.Clone(e.tables)
}

// OnChange регистрирует уведомление о локальной записи.
// Вызывается после коммита Set/SetRow без удержания внутренней
// блокировки: callback может синхронно обращаться к движку.
// Применение входящих изменений уведомлений не порождает.
func (e *Engine) OnChange(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.usable()

	e.onChange = fn
}

func (e *Engine) tracked(table string) bool {
	return slices.Contains(e.tables, table)
}

// Set записывает значение одной колонки. Версия колонки инкрементируется,
// изменению присваивается следующая db_version этой реплики.
func (e *Engine) Set(ctx context.Context, table string, pk []byte, cid string, val any) error {
	return e.SetRow(ctx, table, pk, []ColumnValue{{CID: cid, Val: val}})
}

// ColumnValue пара колонка/значение для SetRow.
type ColumnValue struct {
	Val any
	CID string
}

// SetRow записывает несколько колонок одной строки в одной транзакции.
// Все колонки получают одну db_version, порядок внутри транзакции
// фиксируется полем seq.
func (e *Engine) SetRow(ctx context.Context, table string, pk []byte, cols []ColumnValue) error {
	notify, err := e.setRow(ctx, table, pk, cols)
	if err != nil {
		return err
	}

	// Уведомление выполняется без e.mu: callback может синхронно
	// вызывать методы движка.
	if notify != nil {
		notify()
	}

	return nil
}

func (e *Engine) setRow(ctx context.Context, table string, pk []byte, cols []ColumnValue) (func(), error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.usable()

	if !e.tracked(table) {
		return nil, fmt.Errorf("%w: %s", ErrTableNotTracked, table)
	}
	if len(cols) == 0 {
		return nil, nil
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	dbVersion := e.clock.Tick()
	siteID := e.clock.SiteID()

	for seq, col := range cols {
		if err := e.writeColumn(ctx, tx, table, pk, col.CID, col.Val, dbVersion, uint64(seq), siteID); err != nil {
			e.clock.Set(dbVersion - 1)
			return nil, err
		}
	}

	if err := e.persistVersion(ctx, tx, dbVersion); err != nil {
		e.clock.Set(dbVersion - 1)
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		e.clock.Set(dbVersion - 1)
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return e.onChange, nil
}

// writeColumn выполняет локальную запись одной колонки внутри транзакции:
// читает текущую версию колонки, инкрементирует её и сохраняет значение.
func (e *Engine) writeColumn(
	ctx context.Context,
	tx *sql.Tx,
	table string,
	pk []byte,
	cid string,
	val any,
	dbVersion, seq uint64,
	siteID []byte,
) error {
	var colVersion uint64
	err := tx.QueryRowContext(ctx,
		`SELECT col_version FROM crdt_records WHERE tbl = ? AND pk = ? AND cid = ?`,
		table, pk, cid,
	).Scan(&colVersion)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to read column version: %w", err)
	}

	encoded, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("failed to encode value: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO crdt_records (tbl, pk, cid, val, col_version, db_version, site_id, cl, seq)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?)
		 ON CONFLICT (tbl, pk, cid) DO UPDATE SET
		     val = excluded.val,
		     col_version = excluded.col_version,
		     db_version = excluded.db_version,
		     site_id = excluded.site_id,
		     cl = excluded.cl,
		     seq = excluded.seq`,
		table, pk, cid, string(encoded), int64(colVersion+1), int64(dbVersion), siteID, int64(seq),
	)
	if err != nil {
		return fmt.Errorf("failed to write column: %w", err)
	}

	return nil
}

func (e *Engine) persistVersion(ctx context.Context, tx *sql.Tx, version uint64) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO crdt_meta (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		metaKeyDBVersion, encodeVersion(version),
	)
	if err != nil {
		return fmt.Errorf("failed to persist db_version: %w", err)
	}
	return nil
}

// Get возвращает текущее значение колонки.
// Возвращает ErrNotFound, если запись не существует.
func (e *Engine) Get(ctx context.Context, table string, pk []byte, cid string) (any, error) {
	e.checkUsable()

	var encoded string
	err := e.db.QueryRowContext(ctx,
		`SELECT val FROM crdt_records WHERE tbl = ? AND pk = ? AND cid = ?`,
		table, pk, cid,
	).Scan(&encoded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	var val any
	if err := json.Unmarshal([]byte(encoded), &val); err != nil {
		return nil, fmt.Errorf("failed to decode value: %w", err)
	}

	return val, nil
}

// ChangesSince возвращает все изменения с db_version > version,
// упорядоченные по возрастанию (db_version, seq). Один запрос внутри
// одного соединения — согласованный снимок, не зависящий от
// параллельных локальных записей.
func (e *Engine) ChangesSince(ctx context.Context, version uint64) ([]*models.Change, error) {
	e.checkUsable()

	rows, err := e.db.QueryContext(ctx,
		`SELECT tbl, pk, cid, val, col_version, db_version, site_id, cl, seq
		 FROM crdt_records
		 WHERE db_version > ?
		 ORDER BY db_version ASC, seq ASC`,
		int64(version),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query changes: %w", err)
	}
	defer rows.Close()

	var changes []*models.Change
	for rows.Next() {
		var (
			c       models.Change
			encoded string

			colVersion, dbVersion, cl, seq int64
		)

		err := rows.Scan(&c.Table, &c.PK, &c.CID, &encoded, &colVersion, &dbVersion, &c.SiteID, &cl, &seq)
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

		changes = append(changes, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate changes: %w", err)
	}

	return changes, nil
}

// ApplyChanges применяет пакет входящих изменений как одну локальную
// транзакцию. Сбой отдельного изменения не прерывает пакет: оно попадает
// в Skipped с причиной, остальные применяются. Изменение, чьи часы не
// доминируют над локальными, молча пропускается (уже сошлись или
// устарело) — это не ошибка.
func (e *Engine) ApplyChanges(ctx context.Context, changes []*models.Change) (*ApplyResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.usable()

	result := &ApplyResult{}
	if len(changes) == 0 {
		return result, nil
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	prevVersion := e.clock.Current()
	dbVersion := e.clock.Tick()
	applied := 0

	for _, c := range changes {
		ok, reason, err := e.applyOne(ctx, tx, c, dbVersion, uint64(applied))
		if err != nil {
			// Политика best-effort: одно битое изменение не должно
			// блокировать весь пакет.
			e.logger.Warn("Failed to apply change",
				"table", c.Table,
				"cid", c.CID,
				"error", err)
			result.Skipped = append(result.Skipped, SkippedChange{Change: c, Reason: err.Error()})
			continue
		}
		if !ok {
			result.Skipped = append(result.Skipped, SkippedChange{Change: c, Reason: reason})
			continue
		}
		applied++
	}

	if applied == 0 {
		// Ничего не записано: транзакция откатывается, часы возвращаются.
		e.clock.Set(prevVersion)
		return result, nil
	}

	if err := e.persistVersion(ctx, tx, dbVersion); err != nil {
		e.clock.Set(prevVersion)
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		e.clock.Set(prevVersion)
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	result.Applied = applied
	return result, nil
}

// applyOne применяет одно входящее изменение внутри транзакции.
// Возвращает (false, reason, nil) для молчаливого пропуска.
func (e *Engine) applyOne(
	ctx context.Context,
	tx *sql.Tx,
	c *models.Change,
	dbVersion, seq uint64,
) (bool, string, error) {
	if !e.tracked(c.Table) {
		return false, "", fmt.Errorf("%w: %s", ErrTableNotTracked, c.Table)
	}

	var (
		colVersion int64
		siteID     []byte
	)
	err := tx.QueryRowContext(ctx,
		`SELECT col_version, site_id FROM crdt_records WHERE tbl = ? AND pk = ? AND cid = ?`,
		c.Table, c.PK, c.CID,
	).Scan(&colVersion, &siteID)

	exists := true
	if errors.Is(err, sql.ErrNoRows) {
		exists = false
	} else if err != nil {
		return false, "", fmt.Errorf("failed to read local clock: %w", err)
	}

	if exists && !c.Dominates(uint64(colVersion), siteID) {
		return false, "superseded by local state", nil
	}

	encoded, err := json.Marshal(c.Val)
	if err != nil {
		return false, "", fmt.Errorf("failed to encode value: %w", err)
	}

	// Часы колонки берутся из входящего изменения, db_version — локальная:
	// счетчик версий у каждой реплики свой.
	_, err = tx.ExecContext(ctx,
		`INSERT INTO crdt_records (tbl, pk, cid, val, col_version, db_version, site_id, cl, seq)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (tbl, pk, cid) DO UPDATE SET
		     val = excluded.val,
		     col_version = excluded.col_version,
		     db_version = excluded.db_version,
		     site_id = excluded.site_id,
		     cl = excluded.cl,
		     seq = excluded.seq`,
		c.Table, c.PK, c.CID, string(encoded),
		int64(c.ColVersion), int64(dbVersion), c.SiteID, int64(c.CL), int64(seq),
	)
	if err != nil {
		return false, "", fmt.Errorf("failed to write change: %w", err)
	}

	return true, "", nil
}

// Serialize кодирует изменения в транспортный вид.
func (e *Engine) Serialize(changes []*models.Change) []api.SerializedChange {
	return models.SerializeChanges(changes)
}

// Deserialize декодирует изменения из транспортного вида.
// Serialize и Deserialize — точные обратные операции.
func (e *Engine) Deserialize(serialized []api.SerializedChange) ([]*models.Change, error) {
	return models.DeserializeChanges(serialized)
}

// Finalize освобождает ресурсы журнала изменений. Должен быть вызван
// ровно один раз, строго до Close. Повторный вызов — panic.
func (e *Engine) Finalize() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.final {
		panic("engine: Finalize called twice")
	}

	e.final = true
	e.onChange = nil
}

// Close закрывает базу данных. Вызывается после Finalize.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.final {
		panic("engine: Close called before Finalize")
	}

	return e.db.Close()
}
