// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides the SQLite connection pool under the
// benchmark store.
//
// It wraps zombiezen.com/go/sqlite with fixed defaults: WAL journal
// mode, NORMAL synchronous, memory-mapped reads, and a busy timeout
// for write contention. The store is the system of record for tasks,
// methods, and runs, so journal_mode=WAL plus synchronous=NORMAL is
// the deliberate durability point: transactions survive a process
// crash, and a benchmark interrupted by a power failure loses at most
// its most recent run updates, all of which are reproducible.
//
// The pool is built on sqlitex.Pool, which manages a fixed-size set
// of connections. Callers [Pool.Take] a connection, perform work, and
// [Pool.Put] it back. Connections are not safe for concurrent use;
// each goroutine holds its own for the duration of its work.
//
// # Pragmas
//
// Every connection is initialized with:
//
//   - journal_mode=WAL: concurrent readers and a single writer. The
//     dashboard reads while a worker writes run updates.
//   - synchronous=NORMAL: see above.
//   - busy_timeout=5000: wait up to 5 seconds for a write lock
//     instead of returning SQLITE_BUSY immediately.
//   - foreign_keys=OFF: the store manages referential integrity
//     itself; runs reference tasks by fingerprint, and deletion
//     batches are ordered explicitly.
//   - cache_size=-8192: 8 MB page cache per connection.
//   - mmap_size=268435456: 256 MB memory-mapped I/O for reads.
//   - temp_store=MEMORY: temporary tables and indexes in memory.
//
// # Usage
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:   filepath.Join(dir, "root-finding.db"),
//	    Logger: logger,
//	    OnConnect: func(conn *sqlite.Conn) error {
//	        return sqlitex.ExecuteScript(conn, schema, nil)
//	    },
//	})
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	conn, err := pool.Take(ctx)
//	if err != nil {
//	    return err
//	}
//	defer pool.Put(conn)
//
// The package stays thin on purpose: standard pragmas and the
// underlying zombiezen types, no query builder. The store writes SQL,
// uses sqlitex.Execute for cached statements, and manages transactions
// with sqlitex.ImmediateTransaction.
package sqlitepool
