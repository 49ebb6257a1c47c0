// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/crucible-foundation/crucible/lib/fingerprint"
	"github.com/crucible-foundation/crucible/lib/plain"
	"github.com/crucible-foundation/crucible/lib/sealed"
)

// exportFormat is the manifest format version. Bumped when the archive
// layout changes incompatibly; Import refuses archives from the future.
const exportFormat = 1

// manifestName is the first entry of every archive.
const manifestName = "crucible-export.json"

// ErrConflict is returned by Import when an incoming record collides
// with an existing id but carries different content.
var ErrConflict = errors.New("record conflicts with existing content")

// exportManifest describes an archive. It rides as the first tar entry
// so tooling can identify a bundle without reading record files.
type exportManifest struct {
	Format     int    `json:"format"`
	Suite      string `json:"suite,omitempty"`
	ExportedAt string `json:"exported_at"`
	Tasks      int    `json:"tasks"`
	Methods    int    `json:"methods"`
	Runs       int    `json:"runs"`
}

// exportedRecord is the archive form of a task or method row. Data is
// the payload JSON exactly as stored, so fingerprints recompute
// identically on import.
type exportedRecord struct {
	ID      string          `json:"id"`
	Label   string          `json:"type"`
	Created int64           `json:"created_at"`
	Data    json.RawMessage `json:"data"`
}

// exportedRun is the archive form of a run row.
type exportedRun struct {
	ID      string          `json:"id"`
	Task    string          `json:"task"`
	Method  string          `json:"method"`
	Status  string          `json:"status"`
	Label   string          `json:"type,omitempty"`
	Created int64           `json:"created_at"`
	Updated int64           `json:"updated_at"`
	Result  json.RawMessage `json:"result"`
}

// ExportOptions selects what goes into an archive. Zero-valued fields
// widen the selection: nil id lists export everything in the table, a
// zero RunFilter exports every run.
type ExportOptions struct {
	// Tasks restricts the exported tasks to these fingerprints. Nil
	// exports all tasks.
	Tasks []string

	// Methods restricts the exported methods to these fingerprints.
	// Nil exports all methods.
	Methods []string

	// Runs filters the exported runs.
	Runs RunFilter

	// Recipients are age public keys. When non-empty the archive is
	// sealed so only the named recipients can read it.
	Recipients []string
}

// ExportSummary reports what an Export wrote.
type ExportSummary struct {
	Tasks   int
	Methods int
	Runs    int
}

// ImportOptions configures Import.
type ImportOptions struct {
	// PrivateKey is the age identity for sealed archives. Empty means
	// the archive is expected to be plain.
	PrivateKey string
}

// ImportSummary reports what an Import did. Skipped counts records
// whose id already existed with identical content.
type ImportSummary struct {
	Tasks   int
	Methods int
	Runs    int
	Skipped int
}

// Export writes selected records to destination as a zstd-compressed
// tar archive, sealed with age when recipients are given. The archive
// is self-describing: a manifest entry, then one JSON file per record
// under tasks/, methods/, and runs/.
//
// Export reads raw rows and never decodes payloads, so it works on a
// store opened without a suite.
func (store *Store) Export(ctx context.Context, destination io.Writer, options ExportOptions) (ExportSummary, error) {
	tasks, err := store.selectRecords(ctx, "tasks", options.Tasks)
	if err != nil {
		return ExportSummary{}, err
	}
	methods, err := store.selectRecords(ctx, "methods", options.Methods)
	if err != nil {
		return ExportSummary{}, err
	}
	runs, err := store.ListRawRuns(ctx, options.Runs)
	if err != nil {
		return ExportSummary{}, err
	}

	sink := destination
	var sealer io.WriteCloser
	if len(options.Recipients) > 0 {
		sealer, err = sealed.NewWriter(destination, options.Recipients)
		if err != nil {
			return ExportSummary{}, fmt.Errorf("store: export: %w", err)
		}
		sink = sealer
	}

	compressor, err := zstd.NewWriter(sink)
	if err != nil {
		return ExportSummary{}, fmt.Errorf("store: export: %w", err)
	}
	archive := tar.NewWriter(compressor)

	suiteName := ""
	if store.suite != nil {
		suiteName = store.suite.name
	}
	manifest := exportManifest{
		Format:     exportFormat,
		Suite:      suiteName,
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Tasks:      len(tasks),
		Methods:    len(methods),
		Runs:       len(runs),
	}
	if err := writeArchiveJSON(archive, manifestName, manifest); err != nil {
		return ExportSummary{}, err
	}

	for _, record := range tasks {
		if err := writeArchiveJSON(archive, "tasks/"+record.ID+".json", recordToExport(record)); err != nil {
			return ExportSummary{}, err
		}
	}
	for _, record := range methods {
		if err := writeArchiveJSON(archive, "methods/"+record.ID+".json", recordToExport(record)); err != nil {
			return ExportSummary{}, err
		}
	}
	for _, run := range runs {
		if err := writeArchiveJSON(archive, "runs/"+run.ID+".json", runToExport(run)); err != nil {
			return ExportSummary{}, err
		}
	}

	if err := archive.Close(); err != nil {
		return ExportSummary{}, fmt.Errorf("store: export: closing archive: %w", err)
	}
	if err := compressor.Close(); err != nil {
		return ExportSummary{}, fmt.Errorf("store: export: closing compressor: %w", err)
	}
	if sealer != nil {
		if err := sealer.Close(); err != nil {
			return ExportSummary{}, fmt.Errorf("store: export: sealing: %w", err)
		}
	}

	summary := ExportSummary{Tasks: len(tasks), Methods: len(methods), Runs: len(runs)}
	store.logger.Info("store exported",
		"tasks", summary.Tasks,
		"methods", summary.Methods,
		"runs", summary.Runs,
		"sealed", sealer != nil,
	)
	return summary, nil
}

// selectRecords lists raw rows of a table, optionally narrowed to an
// id set. Unknown ids are an error: an export that silently drops a
// requested record is worse than one that fails.
func (store *Store) selectRecords(ctx context.Context, table string, ids []string) ([]RawRecord, error) {
	if ids == nil {
		return store.listRawRecords(ctx, table)
	}
	records := make([]RawRecord, 0, len(ids))
	for _, id := range ids {
		record, err := store.getRawRecord(ctx, table, id)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

func recordToExport(record RawRecord) exportedRecord {
	return exportedRecord{
		ID:      record.ID,
		Label:   record.Label,
		Created: record.Created.UnixMilli(),
		Data:    json.RawMessage(record.Payload),
	}
}

func runToExport(run RawRun) exportedRun {
	return exportedRun{
		ID:      run.ID,
		Task:    run.Task,
		Method:  run.Method,
		Status:  run.Status,
		Label:   run.Label,
		Created: run.Created.UnixMilli(),
		Updated: run.Updated.UnixMilli(),
		Result:  json.RawMessage(run.Result),
	}
}

// writeArchiveJSON marshals value and writes it as one tar entry.
func writeArchiveJSON(archive *tar.Writer, name string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("store: export: encoding %s: %w", name, err)
	}
	header := &tar.Header{
		Name: name,
		Mode: 0o644,
		Size: int64(len(data)),
	}
	if err := archive.WriteHeader(header); err != nil {
		return fmt.Errorf("store: export: writing %s header: %w", name, err)
	}
	if _, err := archive.Write(data); err != nil {
		return fmt.Errorf("store: export: writing %s: %w", name, err)
	}
	return nil
}

// Import reads an archive produced by Export and inserts its records.
// Content-addressed records (tasks, methods) are verified against
// their claimed fingerprints and skipped when already present. Runs
// are skipped when an identical row exists and refused with
// ErrConflict when the id exists with different content.
//
// Import works on a store opened without a suite; payloads are parsed
// as plain values but never decoded into Go types.
func (store *Store) Import(ctx context.Context, source io.Reader, options ImportOptions) (ImportSummary, error) {
	stream := source
	if options.PrivateKey != "" {
		unsealed, err := sealed.NewReader(source, options.PrivateKey)
		if err != nil {
			return ImportSummary{}, fmt.Errorf("store: import: %w", err)
		}
		stream = unsealed
	}

	decompressor, err := zstd.NewReader(stream)
	if err != nil {
		return ImportSummary{}, fmt.Errorf("store: import: %w", err)
	}
	defer decompressor.Close()
	archive := tar.NewReader(decompressor)

	summary := ImportSummary{}
	sawManifest := false
	for {
		header, err := archive.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return summary, fmt.Errorf("store: import: reading archive: %w", err)
		}
		data, err := io.ReadAll(archive)
		if err != nil {
			return summary, fmt.Errorf("store: import: reading %s: %w", header.Name, err)
		}

		switch {
		case header.Name == manifestName:
			var manifest exportManifest
			if err := json.Unmarshal(data, &manifest); err != nil {
				return summary, fmt.Errorf("store: import: parsing manifest: %w", err)
			}
			if manifest.Format > exportFormat {
				return summary, fmt.Errorf("store: import: archive format %d is newer than supported %d", manifest.Format, exportFormat)
			}
			sawManifest = true

		case hasDir(header.Name, "tasks"):
			imported, err := store.importRecord(ctx, "tasks", header.Name, data)
			if err != nil {
				return summary, err
			}
			if imported {
				summary.Tasks++
			} else {
				summary.Skipped++
			}

		case hasDir(header.Name, "methods"):
			imported, err := store.importRecord(ctx, "methods", header.Name, data)
			if err != nil {
				return summary, err
			}
			if imported {
				summary.Methods++
			} else {
				summary.Skipped++
			}

		case hasDir(header.Name, "runs"):
			imported, err := store.importRun(ctx, header.Name, data)
			if err != nil {
				return summary, err
			}
			if imported {
				summary.Runs++
			} else {
				summary.Skipped++
			}

		default:
			// Unknown entries are tolerated so older binaries can read
			// archives with additive extensions.
			continue
		}
	}
	if !sawManifest {
		return summary, fmt.Errorf("store: import: archive has no %s entry", manifestName)
	}

	store.logger.Info("store imported",
		"tasks", summary.Tasks,
		"methods", summary.Methods,
		"runs", summary.Runs,
		"skipped", summary.Skipped,
	)
	return summary, nil
}

// hasDir reports whether a tar entry name lives under dir/.
func hasDir(name, dir string) bool {
	return strings.HasPrefix(name, dir+"/") && len(name) > len(dir)+1
}

// importRecord inserts one content-addressed row. The claimed id must
// match the fingerprint recomputed from the record's label and
// payload; a mismatch means the archive was corrupted or tampered
// with. Returns false when the id already exists (identical content by
// construction).
func (store *Store) importRecord(ctx context.Context, table, entryName string, data []byte) (bool, error) {
	var record exportedRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return false, fmt.Errorf("store: import: parsing %s: %w", entryName, err)
	}

	payload, err := plain.FromJSON(record.Data)
	if err != nil {
		return false, fmt.Errorf("store: import: %s payload: %w", entryName, err)
	}
	recomputed, err := fingerprint.New(record.Label, payload)
	if err != nil {
		return false, fmt.Errorf("store: import: fingerprinting %s: %w", entryName, err)
	}
	if string(recomputed) != record.ID {
		return false, fmt.Errorf("store: import: %s claims id %s but content fingerprints to %s: %w",
			entryName, record.ID, recomputed, ErrConflict)
	}

	if _, err := store.getRawRecord(ctx, table, record.ID); err == nil {
		return false, nil // identical content already present
	} else if !errors.Is(err, ErrNotFound) {
		return false, err
	}

	blob, codec, err := store.encodePayload(payload, record.ID)
	if err != nil {
		return false, fmt.Errorf("store: import: encoding %s: %w", entryName, err)
	}

	conn, err := store.pool.Take(ctx)
	if err != nil {
		return false, fmt.Errorf("store: %w", err)
	}
	defer store.pool.Put(conn)

	query := "INSERT OR IGNORE INTO " + table + " (id, type, codec, data, created_at) VALUES (?, ?, ?, ?, ?)"
	err = sqlitex.ExecuteTransient(conn, query, &sqlitex.ExecOptions{
		Args: []any{record.ID, record.Label, codec, blob, record.Created},
	})
	if err != nil {
		return false, fmt.Errorf("store: import: inserting into %s: %w", table, err)
	}
	return true, nil
}

// importRun inserts one run row, preserving archive timestamps. An
// existing identical row is skipped; an existing differing row is a
// conflict.
func (store *Store) importRun(ctx context.Context, entryName string, data []byte) (bool, error) {
	var run exportedRun
	if err := json.Unmarshal(data, &run); err != nil {
		return false, fmt.Errorf("store: import: parsing %s: %w", entryName, err)
	}
	if run.ID == "" {
		return false, fmt.Errorf("store: import: %s has no run id", entryName)
	}

	resultText := []byte("null")
	if len(run.Result) > 0 {
		resultText = []byte(run.Result)
	}
	payload, err := plain.FromJSON(resultText)
	if err != nil {
		return false, fmt.Errorf("store: import: %s result: %w", entryName, err)
	}

	conn, err := store.pool.Take(ctx)
	if err != nil {
		return false, fmt.Errorf("store: %w", err)
	}
	defer store.pool.Put(conn)

	existing, found, err := store.rawRunOn(conn, run.ID)
	if err != nil {
		return false, err
	}
	if found {
		if sameRun(existing, run, resultText) {
			return false, nil
		}
		return false, fmt.Errorf("store: import: run %s exists with different content: %w", run.ID, ErrConflict)
	}

	blob, codec, err := store.encodePayload(payload, run.ID)
	if err != nil {
		return false, fmt.Errorf("store: import: encoding %s: %w", entryName, err)
	}

	err = sqlitex.Execute(conn, `
		INSERT INTO runs (id, task, method, status, type, codec, result, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				run.ID, run.Task, run.Method, run.Status, run.Label,
				codec, blob, run.Created, run.Updated,
			},
		})
	if err != nil {
		return false, fmt.Errorf("store: import: inserting run %s: %w", run.ID, err)
	}
	return true, nil
}

// sameRun compares an existing row against an incoming archive record.
// Result JSON is compared through canonical plain bytes so formatting
// differences (stored compact vs archive pretty) don't read as
// conflicts.
func sameRun(existing RawRun, incoming exportedRun, incomingResult []byte) bool {
	if existing.Task != incoming.Task ||
		existing.Method != incoming.Method ||
		existing.Status != incoming.Status ||
		existing.Label != incoming.Label {
		return false
	}
	existingCanonical, err := canonicalJSON(existing.Result)
	if err != nil {
		return false
	}
	incomingCanonical, err := canonicalJSON(incomingResult)
	if err != nil {
		return false
	}
	return bytes.Equal(existingCanonical, incomingCanonical)
}

func canonicalJSON(text []byte) ([]byte, error) {
	value, err := plain.FromJSON(text)
	if err != nil {
		return nil, err
	}
	return plain.Canonical(value)
}
