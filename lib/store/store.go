// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

// Package store persists benchmark records in SQLite. Three tables
// hold everything: tasks and methods are content-addressed by
// fingerprint (inserting the same value twice writes one row), runs
// are keyed by random id and mutate as outcomes arrive.
//
// Payloads are stored as compressed JSON blobs, optionally sealed
// with XChaCha20-Poly1305 when an encryption key is configured. Each
// row remembers its own codec, so compression settings can change
// without migrating existing data.
//
// The typed accessors decode records through a suite's registries.
// Tooling that has no suite — listing, export, deletion — works on
// raw rows instead and never decodes.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/crucible-foundation/crucible/lib/bench"
	"github.com/crucible-foundation/crucible/lib/family"
	"github.com/crucible-foundation/crucible/lib/fingerprint"
	"github.com/crucible-foundation/crucible/lib/plain"
	"github.com/crucible-foundation/crucible/lib/sqlitepool"
)

// DefaultDir is the directory holding database files when Options.Dir
// is empty, relative to the working directory.
const DefaultDir = ".crucible"

// ErrNotFound is returned when no record has the requested id.
var ErrNotFound = errors.New("record not found")

// errNoSuite guards the typed accessors on a store opened without a
// suite.
var errNoSuite = errors.New("store was opened without a suite; typed access unavailable")

// sealedFlag marks a codec column value whose blob is encrypted. The
// low bits carry the CompressionTag.
const sealedFlag int64 = 0x80

// storeSchema creates the record tables. Applied per connection; all
// statements are idempotent.
const storeSchema = `
	CREATE TABLE IF NOT EXISTS tasks (
		id         TEXT PRIMARY KEY,
		type       TEXT NOT NULL,
		codec      INTEGER NOT NULL,
		data       BLOB NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS methods (
		id         TEXT PRIMARY KEY,
		type       TEXT NOT NULL,
		codec      INTEGER NOT NULL,
		data       BLOB NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS runs (
		id         TEXT PRIMARY KEY,
		task       TEXT NOT NULL,
		method     TEXT NOT NULL,
		status     TEXT NOT NULL,
		type       TEXT NOT NULL,
		codec      INTEGER NOT NULL,
		result     BLOB NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_task ON runs(task);
	CREATE INDEX IF NOT EXISTS idx_runs_method ON runs(method);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
`

// Options configures Open. The zero value works for a suite-owned
// store: the database lands in DefaultDir under a name derived from
// the suite, compressed with zstd, unencrypted.
type Options struct {
	// Dir is the directory holding database files. Created if
	// missing, along with a .gitignore that keeps stores out of
	// version control. Defaults to DefaultDir.
	Dir string

	// Path overrides the database file location entirely. When set,
	// Dir is ignored and no suite is needed to derive a filename.
	Path string

	// Compression names the algorithm for payload blobs: "none",
	// "lz4", or "zstd". Empty selects zstd. Rows remember their own
	// tag, so changing this on an existing store only affects new
	// writes.
	Compression string

	// Key enables at-rest encryption when non-nil. Must be exactly
	// KeySize bytes and uniformly random. A store written with a key
	// cannot be read without it.
	Key []byte

	// PoolSize is the SQLite connection count. Zero picks the
	// sqlitepool default.
	PoolSize int

	// Logger receives operational messages. Nil discards them.
	Logger *slog.Logger
}

// Store is a handle on one suite's database. Safe for concurrent use.
type Store struct {
	suite       *sqliteSuite
	pool        *sqlitepool.Pool
	logger      *slog.Logger
	compression CompressionTag
	keys        *keySet // nil when the store is unencrypted

	// cacheMu guards the read-through caches below. Tasks and
	// methods are content-addressed and therefore immutable, so a
	// cached value never goes stale. Runs mutate and are never
	// cached.
	cacheMu sync.RWMutex
	tasks   map[fingerprint.ID]bench.Task
	methods map[fingerprint.ID]bench.Method
}

// sqliteSuite bundles what the store needs from a suite, so the rest
// of the file reads uniformly whether or not one was provided.
type sqliteSuite struct {
	name     string
	tasks    *family.Registry[bench.Task]
	methods  *family.Registry[bench.Method]
	outcomes *family.Registry[bench.Outcome]
}

// Open opens the store, creating the database file and schema on
// first use. The suite provides the registries used by the typed
// accessors; it may be nil for raw access (listing, export, deletion
// without decoding), in which case Path must be set.
func Open(suite *bench.Suite, options Options) (*Store, error) {
	path := options.Path
	if path == "" {
		if suite == nil {
			return nil, fmt.Errorf("store: Path is required when no suite is given")
		}
		dir := options.Dir
		if dir == "" {
			dir = DefaultDir
		}
		if err := prepareDir(dir); err != nil {
			return nil, err
		}
		path = filepath.Join(dir, databaseFileName(suite.Name()))
	}

	compression, err := ParseCompressionTag(options.Compression)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	var keys *keySet
	if options.Key != nil {
		keys, err = newKeySet(options.Key)
		if err != nil {
			return nil, fmt.Errorf("store: %w", err)
		}
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     path,
		PoolSize: options.PoolSize,
		Logger:   logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, storeSchema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	store := &Store{
		pool:        pool,
		logger:      logger,
		compression: compression,
		keys:        keys,
		tasks:       make(map[fingerprint.ID]bench.Task),
		methods:     make(map[fingerprint.ID]bench.Method),
	}
	if suite != nil {
		store.suite = &sqliteSuite{
			name:     suite.Name(),
			tasks:    suite.Tasks(),
			methods:  suite.Methods(),
			outcomes: suite.Outcomes(),
		}
	}

	logger.Info("store opened",
		"path", path,
		"compression", compression.String(),
		"sealed", keys != nil,
	)
	return store, nil
}

// Close closes the connection pool and zeroes the encryption key.
func (store *Store) Close() error {
	err := store.pool.Close()
	if store.keys != nil {
		store.keys.close()
	}
	return err
}

// prepareDir creates the store directory and drops a .gitignore in it
// so database files never land in version control. An existing
// .gitignore is left alone.
func prepareDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("store: creating %s: %w", dir, err)
	}
	ignorePath := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(ignorePath); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(ignorePath, []byte("*\n"), 0o644); err != nil {
			return fmt.Errorf("store: writing %s: %w", ignorePath, err)
		}
	}
	return nil
}

// databaseFileName maps a suite name to a database filename. Suite
// names are display strings; anything outside [a-z0-9._-] becomes a
// hyphen so the result is safe on every filesystem.
func databaseFileName(suiteName string) string {
	var builder strings.Builder
	for _, r := range strings.ToLower(suiteName) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			builder.WriteByte(byte(r))
		default:
			builder.WriteByte('-')
		}
	}
	name := strings.Trim(builder.String(), "-")
	if name == "" {
		name = "suite"
	}
	return name + ".db"
}

// encodePayload renders a plain value as JSON, compresses it, and
// seals it when a key is configured. Returns the blob and the value
// for the row's codec column.
func (store *Store) encodePayload(payload plain.Value, recordID string) ([]byte, int64, error) {
	text, err := plain.ToJSON(payload)
	if err != nil {
		return nil, 0, err
	}
	blob, tag, err := packBlob(text, store.compression)
	if err != nil {
		return nil, 0, err
	}
	codec := int64(tag)
	if store.keys != nil {
		sealedBlob, err := store.keys.seal(blob, recordID)
		if err != nil {
			return nil, 0, err
		}
		blob = sealedBlob
		codec |= sealedFlag
	}
	return blob, codec, nil
}

// decodePayload reverses encodePayload down to the JSON text. Typed
// accessors parse the text; raw accessors hand it out as is.
func (store *Store) decodePayload(blob []byte, codec int64, recordID string) ([]byte, error) {
	if codec&sealedFlag != 0 {
		if store.keys == nil {
			return nil, fmt.Errorf("record %s is sealed and no encryption key is configured", recordID)
		}
		opened, err := store.keys.open(blob, recordID)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", recordID, err)
		}
		blob = opened
		codec &^= sealedFlag
	}
	if codec < int64(CompressionNone) || codec > int64(CompressionZstd) {
		return nil, fmt.Errorf("record %s has unknown codec %d", recordID, codec)
	}
	return unpackBlob(blob, CompressionTag(codec))
}

// RawRecord is a stored task or method row with the payload
// decompressed (and unsealed) but not decoded. Raw rows are what
// suite-agnostic tooling operates on.
type RawRecord struct {
	ID      string
	Label   string // registry label from the type column
	Payload []byte // JSON text
	Created time.Time
}

// recordColumns is the column list every task/method SELECT uses, in
// the order scanRecord expects.
const recordColumns = "id, type, codec, data, created_at"

// scanRecord reads one task or method row.
// Columns: id(0), type(1), codec(2), data(3), created_at(4).
func (store *Store) scanRecord(stmt *sqlite.Stmt) (RawRecord, error) {
	id := stmt.ColumnText(0)
	blob := make([]byte, stmt.ColumnLen(3))
	stmt.ColumnBytes(3, blob)

	payload, err := store.decodePayload(blob, stmt.ColumnInt64(2), id)
	if err != nil {
		return RawRecord{}, err
	}
	return RawRecord{
		ID:      id,
		Label:   stmt.ColumnText(1),
		Payload: payload,
		Created: time.UnixMilli(stmt.ColumnInt64(4)),
	}, nil
}

// insertRecord writes a content-addressed row, ignoring duplicates:
// the id is a fingerprint of the payload, so an existing row already
// holds identical content.
func (store *Store) insertRecord(ctx context.Context, table, id, label string, payload plain.Value) error {
	blob, codec, err := store.encodePayload(payload, id)
	if err != nil {
		return fmt.Errorf("store: encoding %s payload: %w", id, err)
	}

	conn, err := store.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer store.pool.Put(conn)

	query := "INSERT OR IGNORE INTO " + table + " (id, type, codec, data, created_at) VALUES (?, ?, ?, ?, ?)"
	err = sqlitex.ExecuteTransient(conn, query, &sqlitex.ExecOptions{
		Args: []any{id, label, codec, blob, time.Now().UnixMilli()},
	})
	if err != nil {
		return fmt.Errorf("store: inserting into %s: %w", table, err)
	}
	return nil
}

// getRawRecord fetches one task or method row by id.
func (store *Store) getRawRecord(ctx context.Context, table, id string) (RawRecord, error) {
	conn, err := store.pool.Take(ctx)
	if err != nil {
		return RawRecord{}, fmt.Errorf("store: %w", err)
	}
	defer store.pool.Put(conn)

	var record RawRecord
	found := false
	query := "SELECT " + recordColumns + " FROM " + table + " WHERE id = ?"
	err = sqlitex.ExecuteTransient(conn, query, &sqlitex.ExecOptions{
		Args: []any{id},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			scanned, err := store.scanRecord(stmt)
			if err != nil {
				return err
			}
			record = scanned
			found = true
			return nil
		},
	})
	if err != nil {
		return RawRecord{}, fmt.Errorf("store: reading %s %s: %w", table, id, err)
	}
	if !found {
		return RawRecord{}, fmt.Errorf("store: %s %s: %w", strings.TrimSuffix(table, "s"), id, ErrNotFound)
	}
	return record, nil
}

// listRawRecords returns every row of a task or method table in
// insertion order.
func (store *Store) listRawRecords(ctx context.Context, table string) ([]RawRecord, error) {
	conn, err := store.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	defer store.pool.Put(conn)

	var records []RawRecord
	query := "SELECT " + recordColumns + " FROM " + table + " ORDER BY created_at, id"
	err = sqlitex.ExecuteTransient(conn, query, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			record, err := store.scanRecord(stmt)
			if err != nil {
				return err
			}
			records = append(records, record)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: listing %s: %w", table, err)
	}
	return records, nil
}

// ListRawTasks returns every task row without decoding.
func (store *Store) ListRawTasks(ctx context.Context) ([]RawRecord, error) {
	return store.listRawRecords(ctx, "tasks")
}

// ListRawMethods returns every method row without decoding.
func (store *Store) ListRawMethods(ctx context.Context) ([]RawRecord, error) {
	return store.listRawRecords(ctx, "methods")
}

// GetRawTask fetches one task row without decoding.
func (store *Store) GetRawTask(ctx context.Context, id string) (RawRecord, error) {
	return store.getRawRecord(ctx, "tasks", id)
}

// GetRawMethod fetches one method row without decoding.
func (store *Store) GetRawMethod(ctx context.Context, id string) (RawRecord, error) {
	return store.getRawRecord(ctx, "methods", id)
}

// TaskRecord is a stored task with its identity and typed value.
type TaskRecord struct {
	ID      fingerprint.ID
	Label   string
	Task    bench.Task
	Created time.Time
}

// MethodRecord is a stored method with its identity and typed value.
type MethodRecord struct {
	ID      fingerprint.ID
	Label   string
	Method  bench.Method
	Created time.Time
}

// PutTask stores a task and returns its content fingerprint. Storing
// the same task twice writes one row and returns the same id.
func (store *Store) PutTask(ctx context.Context, task bench.Task) (fingerprint.ID, error) {
	if store.suite == nil {
		return "", fmt.Errorf("store: %w", errNoSuite)
	}
	label, payload, err := store.suite.tasks.Encode(task)
	if err != nil {
		return "", fmt.Errorf("store: encoding task: %w", err)
	}
	id, err := fingerprint.New(label, payload)
	if err != nil {
		return "", fmt.Errorf("store: fingerprinting task: %w", err)
	}
	if err := store.insertRecord(ctx, "tasks", string(id), label, payload); err != nil {
		return "", err
	}

	store.cacheMu.Lock()
	store.tasks[id] = task
	store.cacheMu.Unlock()
	return id, nil
}

// PutMethod stores a method and returns its content fingerprint.
func (store *Store) PutMethod(ctx context.Context, method bench.Method) (fingerprint.ID, error) {
	if store.suite == nil {
		return "", fmt.Errorf("store: %w", errNoSuite)
	}
	label, payload, err := store.suite.methods.Encode(method)
	if err != nil {
		return "", fmt.Errorf("store: encoding method: %w", err)
	}
	id, err := fingerprint.New(label, payload)
	if err != nil {
		return "", fmt.Errorf("store: fingerprinting method: %w", err)
	}
	if err := store.insertRecord(ctx, "methods", string(id), label, payload); err != nil {
		return "", err
	}

	store.cacheMu.Lock()
	store.methods[id] = method
	store.cacheMu.Unlock()
	return id, nil
}

// GetTask loads a task by fingerprint. Rows are immutable, so hits
// are served from an in-memory cache after the first read.
func (store *Store) GetTask(ctx context.Context, id fingerprint.ID) (bench.Task, error) {
	if store.suite == nil {
		return nil, fmt.Errorf("store: %w", errNoSuite)
	}
	store.cacheMu.RLock()
	task, cached := store.tasks[id]
	store.cacheMu.RUnlock()
	if cached {
		return task, nil
	}

	raw, err := store.getRawRecord(ctx, "tasks", string(id))
	if err != nil {
		return nil, err
	}
	record, err := store.decodeTask(raw)
	if err != nil {
		return nil, err
	}
	return record.Task, nil
}

// GetMethod loads a method by fingerprint.
func (store *Store) GetMethod(ctx context.Context, id fingerprint.ID) (bench.Method, error) {
	if store.suite == nil {
		return nil, fmt.Errorf("store: %w", errNoSuite)
	}
	store.cacheMu.RLock()
	method, cached := store.methods[id]
	store.cacheMu.RUnlock()
	if cached {
		return method, nil
	}

	raw, err := store.getRawRecord(ctx, "methods", string(id))
	if err != nil {
		return nil, err
	}
	record, err := store.decodeMethod(raw)
	if err != nil {
		return nil, err
	}
	return record.Method, nil
}

// ListTasks returns every stored task, decoded, in insertion order.
func (store *Store) ListTasks(ctx context.Context) ([]TaskRecord, error) {
	if store.suite == nil {
		return nil, fmt.Errorf("store: %w", errNoSuite)
	}
	raw, err := store.ListRawTasks(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]TaskRecord, 0, len(raw))
	for _, row := range raw {
		record, err := store.decodeTask(row)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// ListMethods returns every stored method, decoded, in insertion
// order.
func (store *Store) ListMethods(ctx context.Context) ([]MethodRecord, error) {
	if store.suite == nil {
		return nil, fmt.Errorf("store: %w", errNoSuite)
	}
	raw, err := store.ListRawMethods(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]MethodRecord, 0, len(raw))
	for _, row := range raw {
		record, err := store.decodeMethod(row)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// decodeTask turns a raw row into its typed record, filling the
// cache.
func (store *Store) decodeTask(raw RawRecord) (TaskRecord, error) {
	id, err := fingerprint.Parse(raw.ID)
	if err != nil {
		return TaskRecord{}, fmt.Errorf("store: task id %q: %w", raw.ID, err)
	}

	store.cacheMu.RLock()
	task, cached := store.tasks[id]
	store.cacheMu.RUnlock()

	if !cached {
		payload, err := plain.FromJSON(raw.Payload)
		if err != nil {
			return TaskRecord{}, fmt.Errorf("store: task %s: %w", id, err)
		}
		task, err = store.suite.tasks.Decode(raw.Label, payload)
		if err != nil {
			return TaskRecord{}, fmt.Errorf("store: task %s: %w", id, err)
		}
		store.cacheMu.Lock()
		store.tasks[id] = task
		store.cacheMu.Unlock()
	}

	return TaskRecord{ID: id, Label: raw.Label, Task: task, Created: raw.Created}, nil
}

// decodeMethod turns a raw row into its typed record, filling the
// cache.
func (store *Store) decodeMethod(raw RawRecord) (MethodRecord, error) {
	id, err := fingerprint.Parse(raw.ID)
	if err != nil {
		return MethodRecord{}, fmt.Errorf("store: method id %q: %w", raw.ID, err)
	}

	store.cacheMu.RLock()
	method, cached := store.methods[id]
	store.cacheMu.RUnlock()

	if !cached {
		payload, err := plain.FromJSON(raw.Payload)
		if err != nil {
			return MethodRecord{}, fmt.Errorf("store: method %s: %w", id, err)
		}
		method, err = store.suite.methods.Decode(raw.Label, payload)
		if err != nil {
			return MethodRecord{}, fmt.Errorf("store: method %s: %w", id, err)
		}
		store.cacheMu.Lock()
		store.methods[id] = method
		store.cacheMu.Unlock()
	}

	return MethodRecord{ID: id, Label: raw.Label, Method: method, Created: raw.Created}, nil
}

// RawRun is a stored run row with the result payload decompressed but
// not decoded.
type RawRun struct {
	ID      string
	Task    string
	Method  string
	Status  string
	Label   string // outcome label; empty while no outcome is recorded
	Result  []byte // JSON text; "null" while no outcome is recorded
	Created time.Time
	Updated time.Time
}

// RunRecord is a stored run with its outcome decoded.
type RunRecord struct {
	Run     bench.Run
	Created time.Time
	Updated time.Time
}

// RunFilter narrows ListRuns and ListRawRuns. Zero-valued fields are
// not applied.
type RunFilter struct {
	Task   fingerprint.ID // runs of this task
	Method fingerprint.ID // runs of this method
	Status bench.Status   // runs currently in this status
	Limit  int            // maximum rows; 0 is unlimited
}

// runColumns is the column list every run SELECT uses, in the order
// scanRun expects.
const runColumns = "id, task, method, status, type, codec, result, created_at, updated_at"

// scanRun reads one run row.
// Columns: id(0), task(1), method(2), status(3), type(4), codec(5),
// result(6), created_at(7), updated_at(8).
func (store *Store) scanRun(stmt *sqlite.Stmt) (RawRun, error) {
	id := stmt.ColumnText(0)
	blob := make([]byte, stmt.ColumnLen(6))
	stmt.ColumnBytes(6, blob)

	result, err := store.decodePayload(blob, stmt.ColumnInt64(5), id)
	if err != nil {
		return RawRun{}, err
	}
	return RawRun{
		ID:      id,
		Task:    stmt.ColumnText(1),
		Method:  stmt.ColumnText(2),
		Status:  stmt.ColumnText(3),
		Label:   stmt.ColumnText(4),
		Result:  result,
		Created: time.UnixMilli(stmt.ColumnInt64(7)),
		Updated: time.UnixMilli(stmt.ColumnInt64(8)),
	}, nil
}

// PutRun inserts or updates a run. The task and method fingerprints
// and the creation time are fixed on first insert; status, outcome,
// and update time follow the run's current state.
func (store *Store) PutRun(ctx context.Context, run bench.Run) error {
	if store.suite == nil {
		return fmt.Errorf("store: %w", errNoSuite)
	}
	if run.ID == "" {
		return fmt.Errorf("store: run has no id")
	}

	label := ""
	var payload plain.Value
	if run.Outcome != nil {
		var err error
		label, payload, err = store.suite.outcomes.Encode(run.Outcome)
		if err != nil {
			return fmt.Errorf("store: encoding outcome for run %s: %w", run.ID, err)
		}
	}
	blob, codec, err := store.encodePayload(payload, run.ID)
	if err != nil {
		return fmt.Errorf("store: encoding result for run %s: %w", run.ID, err)
	}

	conn, err := store.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer store.pool.Put(conn)

	now := time.Now().UnixMilli()
	err = sqlitex.Execute(conn, `
		INSERT INTO runs (id, task, method, status, type, codec, result, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			type = excluded.type,
			codec = excluded.codec,
			result = excluded.result,
			updated_at = excluded.updated_at`,
		&sqlitex.ExecOptions{
			Args: []any{
				run.ID,
				string(run.Task),
				string(run.Method),
				string(run.Status()),
				label,
				codec,
				blob,
				now,
				now,
			},
		})
	if err != nil {
		return fmt.Errorf("store: writing run %s: %w", run.ID, err)
	}
	return nil
}

// GetRawRun fetches one run row without decoding.
func (store *Store) GetRawRun(ctx context.Context, id string) (RawRun, error) {
	conn, err := store.pool.Take(ctx)
	if err != nil {
		return RawRun{}, fmt.Errorf("store: %w", err)
	}
	defer store.pool.Put(conn)

	run, found, err := store.rawRunOn(conn, id)
	if err != nil {
		return RawRun{}, err
	}
	if !found {
		return RawRun{}, fmt.Errorf("store: run %s: %w", id, ErrNotFound)
	}
	return run, nil
}

func (store *Store) rawRunOn(conn *sqlite.Conn, id string) (RawRun, bool, error) {
	var run RawRun
	found := false
	err := sqlitex.Execute(conn, "SELECT "+runColumns+" FROM runs WHERE id = ?",
		&sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				scanned, err := store.scanRun(stmt)
				if err != nil {
					return err
				}
				run = scanned
				found = true
				return nil
			},
		})
	if err != nil {
		return RawRun{}, false, fmt.Errorf("store: reading run %s: %w", id, err)
	}
	return run, found, nil
}

// GetRun fetches one run with its outcome decoded.
func (store *Store) GetRun(ctx context.Context, id string) (RunRecord, error) {
	if store.suite == nil {
		return RunRecord{}, fmt.Errorf("store: %w", errNoSuite)
	}
	raw, err := store.GetRawRun(ctx, id)
	if err != nil {
		return RunRecord{}, err
	}
	return store.decodeRun(raw)
}

// ListRawRuns returns run rows matching the filter, oldest first,
// without decoding outcomes.
func (store *Store) ListRawRuns(ctx context.Context, filter RunFilter) ([]RawRun, error) {
	conn, err := store.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	defer store.pool.Put(conn)

	var conditions []string
	var args []any

	if filter.Task != "" {
		conditions = append(conditions, "task = ?")
		args = append(args, string(filter.Task))
	}
	if filter.Method != "" {
		conditions = append(conditions, "method = ?")
		args = append(args, string(filter.Method))
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := "SELECT " + runColumns + " FROM runs"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	var runs []RawRun
	err = sqlitex.ExecuteTransient(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			run, err := store.scanRun(stmt)
			if err != nil {
				return err
			}
			runs = append(runs, run)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: listing runs: %w", err)
	}
	return runs, nil
}

// ListRuns returns runs matching the filter with outcomes decoded,
// oldest first.
func (store *Store) ListRuns(ctx context.Context, filter RunFilter) ([]RunRecord, error) {
	if store.suite == nil {
		return nil, fmt.Errorf("store: %w", errNoSuite)
	}
	raw, err := store.ListRawRuns(ctx, filter)
	if err != nil {
		return nil, err
	}
	records := make([]RunRecord, 0, len(raw))
	for _, row := range raw {
		record, err := store.decodeRun(row)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// decodeRun turns a raw run row into its typed record. An empty
// outcome label means the run has not reported yet; the outcome stays
// nil and the run derives StatusRunning.
func (store *Store) decodeRun(raw RawRun) (RunRecord, error) {
	taskID, err := fingerprint.Parse(raw.Task)
	if err != nil {
		return RunRecord{}, fmt.Errorf("store: run %s task id %q: %w", raw.ID, raw.Task, err)
	}
	methodID, err := fingerprint.Parse(raw.Method)
	if err != nil {
		return RunRecord{}, fmt.Errorf("store: run %s method id %q: %w", raw.ID, raw.Method, err)
	}

	run := bench.Run{ID: raw.ID, Task: taskID, Method: methodID}
	if raw.Label != "" {
		payload, err := plain.FromJSON(raw.Result)
		if err != nil {
			return RunRecord{}, fmt.Errorf("store: run %s result: %w", raw.ID, err)
		}
		outcome, err := store.suite.outcomes.Decode(raw.Label, payload)
		if err != nil {
			return RunRecord{}, fmt.Errorf("store: run %s outcome: %w", raw.ID, err)
		}
		run.Outcome = outcome
	}

	return RunRecord{Run: run, Created: raw.Created, Updated: raw.Updated}, nil
}

// deleteBatchSize caps ids per DELETE statement. SQLite's default
// parameter limit is 999; 128 keeps statements short and memory flat.
const deleteBatchSize = 128

// DeleteRuns removes runs by id, returning how many rows were
// deleted. Unknown ids are ignored.
func (store *Store) DeleteRuns(ctx context.Context, ids []string) (int, error) {
	return store.deleteByID(ctx, "runs", ids)
}

// DeleteTasks removes tasks by fingerprint, returning how many rows
// were deleted. Runs referencing a deleted task keep their
// fingerprint column; they simply no longer resolve.
func (store *Store) DeleteTasks(ctx context.Context, ids []string) (int, error) {
	deleted, err := store.deleteByID(ctx, "tasks", ids)
	if err != nil {
		return deleted, err
	}
	store.cacheMu.Lock()
	for _, id := range ids {
		delete(store.tasks, fingerprint.ID(id))
	}
	store.cacheMu.Unlock()
	return deleted, nil
}

// DeleteMethods removes methods by fingerprint, returning how many
// rows were deleted.
func (store *Store) DeleteMethods(ctx context.Context, ids []string) (int, error) {
	deleted, err := store.deleteByID(ctx, "methods", ids)
	if err != nil {
		return deleted, err
	}
	store.cacheMu.Lock()
	for _, id := range ids {
		delete(store.methods, fingerprint.ID(id))
	}
	store.cacheMu.Unlock()
	return deleted, nil
}

func (store *Store) deleteByID(ctx context.Context, table string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	conn, err := store.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("store: %w", err)
	}
	defer store.pool.Put(conn)

	deleted := 0
	for start := 0; start < len(ids); start += deleteBatchSize {
		batch := ids[start:min(start+deleteBatchSize, len(ids))]

		placeholders := strings.Repeat("?, ", len(batch)-1) + "?"
		query := "DELETE FROM " + table + " WHERE id IN (" + placeholders + ")"
		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}
		if err := sqlitex.ExecuteTransient(conn, query, &sqlitex.ExecOptions{Args: args}); err != nil {
			return deleted, fmt.Errorf("store: deleting from %s: %w", table, err)
		}
		deleted += conn.Changes()
	}
	return deleted, nil
}

// Stats summarizes the store for dashboards and status output.
type Stats struct {
	Tasks   int64
	Methods int64
	Runs    int64

	// ByStatus counts runs per status column value.
	ByStatus map[bench.Status]int64

	// DatabaseSizeBytes is page_count × page_size of the SQLite file.
	DatabaseSizeBytes int64
}

// Stats returns current record counts and the database file size.
func (store *Store) Stats(ctx context.Context) (Stats, error) {
	conn, err := store.pool.Take(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("store: stats: %w", err)
	}
	defer store.pool.Put(conn)

	stats := Stats{ByStatus: make(map[bench.Status]int64)}

	for _, table := range []string{"tasks", "methods", "runs"} {
		count, err := tableRowCount(conn, table)
		if err != nil {
			return stats, err
		}
		switch table {
		case "tasks":
			stats.Tasks = count
		case "methods":
			stats.Methods = count
		case "runs":
			stats.Runs = count
		}
	}

	err = sqlitex.Execute(conn, "SELECT status, COUNT(*) FROM runs GROUP BY status",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				stats.ByStatus[bench.Status(stmt.ColumnText(0))] = stmt.ColumnInt64(1)
				return nil
			},
		})
	if err != nil {
		return stats, fmt.Errorf("store: stats by status: %w", err)
	}

	// Database size via page_count * page_size.
	err = sqlitex.Execute(conn, "SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				stats.DatabaseSizeBytes = stmt.ColumnInt64(0)
				return nil
			},
		})
	if err != nil {
		return stats, fmt.Errorf("store: database size: %w", err)
	}

	return stats, nil
}

func tableRowCount(conn *sqlite.Conn, table string) (int64, error) {
	var count int64
	query := "SELECT COUNT(*) FROM " + table
	err := sqlitex.ExecuteTransient(conn, query, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			count = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("store: count %s: %w", table, err)
	}
	return count, nil
}
