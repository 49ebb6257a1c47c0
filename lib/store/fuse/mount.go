// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package fuse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"syscall"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/crucible-foundation/crucible/lib/store"
)

// Options configures the FUSE mount.
type Options struct {
	// Mountpoint is the directory where the filesystem is mounted.
	// Created if it does not exist.
	Mountpoint string

	// Store provides the record rows. A store opened without a suite
	// works: the mount never decodes payloads.
	Store *store.Store

	// AllowOther permits other users (including root) to access the
	// mount. Requires user_allow_other in /etc/fuse.conf.
	AllowOther bool

	// Logger receives diagnostic messages. If nil, errors go to
	// stderr.
	Logger *slog.Logger
}

// Mount mounts the store filesystem at the configured mountpoint. The
// caller must call Unmount on the returned Server when done.
func Mount(options Options) (*fuse.Server, error) {
	if options.Mountpoint == "" {
		return nil, fmt.Errorf("mountpoint is required")
	}
	if options.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
	}

	if err := os.MkdirAll(options.Mountpoint, 0o755); err != nil {
		return nil, fmt.Errorf("creating mountpoint %s: %w", options.Mountpoint, err)
	}

	root := &rootNode{options: &options}

	entryTimeout := 1 * time.Second
	attrTimeout := 1 * time.Second
	negativeTimeout := 100 * time.Millisecond

	server, err := gofuse.Mount(options.Mountpoint, root, &gofuse.Options{
		EntryTimeout:    &entryTimeout,
		AttrTimeout:     &attrTimeout,
		NegativeTimeout: &negativeTimeout,
		MountOptions: fuse.MountOptions{
			FsName:     "crucible-store",
			Name:       "crucible",
			AllowOther: options.AllowOther,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mounting FUSE filesystem at %s: %w", options.Mountpoint, err)
	}

	options.Logger.Info("store filesystem mounted", "mountpoint", options.Mountpoint)
	return server, nil
}

// rootNode is the filesystem root. It has one child directory per
// record table: "tasks", "methods", and "runs".
type rootNode struct {
	gofuse.Inode
	options *Options
}

var _ gofuse.InodeEmbedder = (*rootNode)(nil)
var _ gofuse.NodeOnAdder = (*rootNode)(nil)

func (root *rootNode) OnAdd(ctx context.Context) {
	for _, table := range storeTables(root.options) {
		child := root.NewPersistentInode(ctx, table, gofuse.StableAttr{Mode: syscall.S_IFDIR})
		root.AddChild(table.name, child, true)
	}
}

// listFunc returns the ids of every row in one table.
type listFunc func(ctx context.Context) ([]string, error)

// getFunc renders one row as file content with its modification time.
type getFunc func(ctx context.Context, id string) ([]byte, time.Time, error)

// storeTables builds the three directory nodes backed by the store's
// raw accessors. Tasks and methods are content-addressed and never
// change once written; runs mutate in place until they reach a
// terminal status.
func storeTables(options *Options) []*tableNode {
	records := options.Store
	return []*tableNode{
		{
			options: options,
			name:    "tasks",
			stable:  true,
			list: func(ctx context.Context) ([]string, error) {
				return recordIDs(records.ListRawTasks(ctx))
			},
			get: func(ctx context.Context, id string) ([]byte, time.Time, error) {
				record, err := records.GetRawTask(ctx, id)
				if err != nil {
					return nil, time.Time{}, err
				}
				content, err := renderRecord(record)
				return content, record.Created, err
			},
		},
		{
			options: options,
			name:    "methods",
			stable:  true,
			list: func(ctx context.Context) ([]string, error) {
				return recordIDs(records.ListRawMethods(ctx))
			},
			get: func(ctx context.Context, id string) ([]byte, time.Time, error) {
				record, err := records.GetRawMethod(ctx, id)
				if err != nil {
					return nil, time.Time{}, err
				}
				content, err := renderRecord(record)
				return content, record.Created, err
			},
		},
		{
			options: options,
			name:    "runs",
			list: func(ctx context.Context) ([]string, error) {
				runs, err := records.ListRawRuns(ctx, store.RunFilter{})
				if err != nil {
					return nil, err
				}
				ids := make([]string, len(runs))
				for i, run := range runs {
					ids[i] = run.ID
				}
				return ids, nil
			},
			get: func(ctx context.Context, id string) ([]byte, time.Time, error) {
				run, err := records.GetRawRun(ctx, id)
				if err != nil {
					return nil, time.Time{}, err
				}
				content, err := renderRun(run)
				return content, run.Updated, err
			},
		},
	}
}

// recordIDs projects a raw listing onto its id column.
func recordIDs(records []store.RawRecord, err error) ([]string, error) {
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(records))
	for i, record := range records {
		ids[i] = record.ID
	}
	return ids, nil
}

// recordView is the file content for one task or method.
type recordView struct {
	ID      string          `json:"id"`
	Label   string          `json:"type"`
	Created string          `json:"created_at"`
	Data    json.RawMessage `json:"data"`
}

func renderRecord(record store.RawRecord) ([]byte, error) {
	content, err := json.MarshalIndent(recordView{
		ID:      record.ID,
		Label:   record.Label,
		Created: record.Created.UTC().Format(time.RFC3339),
		Data:    json.RawMessage(record.Payload),
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("rendering record %s: %w", record.ID, err)
	}
	return append(content, '\n'), nil
}

// runView is the file content for one run.
type runView struct {
	ID      string          `json:"id"`
	Task    string          `json:"task"`
	Method  string          `json:"method"`
	Status  string          `json:"status"`
	Label   string          `json:"type,omitempty"`
	Result  json.RawMessage `json:"result"`
	Created string          `json:"created_at"`
	Updated string          `json:"updated_at"`
}

func renderRun(run store.RawRun) ([]byte, error) {
	content, err := json.MarshalIndent(runView{
		ID:      run.ID,
		Task:    run.Task,
		Method:  run.Method,
		Status:  run.Status,
		Label:   run.Label,
		Result:  json.RawMessage(run.Result),
		Created: run.Created.UTC().Format(time.RFC3339),
		Updated: run.Updated.UTC().Format(time.RFC3339),
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("rendering run %s: %w", run.ID, err)
	}
	return append(content, '\n'), nil
}

// tableNode is one record table presented as a flat directory of
// "<id>.json" files.
type tableNode struct {
	gofuse.Inode
	options *Options
	name    string
	stable  bool // content-addressed table whose rows never change
	list    listFunc
	get     getFunc
}

var _ gofuse.InodeEmbedder = (*tableNode)(nil)
var _ gofuse.NodeLookuper = (*tableNode)(nil)
var _ gofuse.NodeReaddirer = (*tableNode)(nil)
var _ gofuse.NodeCreater = (*tableNode)(nil)
var _ gofuse.NodeMkdirer = (*tableNode)(nil)
var _ gofuse.NodeUnlinker = (*tableNode)(nil)
var _ gofuse.NodeRenamer = (*tableNode)(nil)

func (table *tableNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	id, isJSON := strings.CutSuffix(name, ".json")
	if !isJSON || id == "" {
		return nil, syscall.ENOENT
	}

	content, modified, err := table.get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, syscall.ENOENT
		}
		table.options.Logger.Error("record lookup failed",
			"table", table.name,
			"id", id,
			"error", err,
		)
		return nil, syscall.EIO
	}

	node := &recordFileNode{content: content, modified: modified, stable: table.stable}
	child := table.NewPersistentInode(ctx, node, gofuse.StableAttr{Mode: syscall.S_IFREG})
	out.Mode = syscall.S_IFREG | 0o444
	out.Size = uint64(len(content))
	return child, 0
}

func (table *tableNode) Readdir(ctx context.Context) (gofuse.DirStream, syscall.Errno) {
	ids, err := table.list(ctx)
	if err != nil {
		table.options.Logger.Error("directory listing failed",
			"table", table.name,
			"error", err,
		)
		return nil, syscall.EIO
	}

	entries := make([]fuse.DirEntry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, fuse.DirEntry{
			Name: id + ".json",
			Mode: syscall.S_IFREG,
		})
	}
	return &sliceDirStream{entries: entries}, 0
}

func (table *tableNode) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*gofuse.Inode, gofuse.FileHandle, uint32, syscall.Errno) {
	return nil, nil, 0, syscall.EROFS
}

func (table *tableNode) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	return nil, syscall.EROFS
}

func (table *tableNode) Unlink(ctx context.Context, name string) syscall.Errno {
	return syscall.EROFS
}

func (table *tableNode) Rename(ctx context.Context, name string, newParent gofuse.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	return syscall.EROFS
}

// recordFileNode serves one rendered record. Content is materialized
// at lookup time and fixed for the life of the inode; the one-second
// entry timeout bounds how long a mutated run row can be served stale.
type recordFileNode struct {
	gofuse.Inode
	content  []byte
	modified time.Time
	stable   bool
}

var _ gofuse.InodeEmbedder = (*recordFileNode)(nil)
var _ gofuse.NodeGetattrer = (*recordFileNode)(nil)
var _ gofuse.NodeOpener = (*recordFileNode)(nil)
var _ gofuse.NodeReader = (*recordFileNode)(nil)
var _ gofuse.NodeSetattrer = (*recordFileNode)(nil)

func (node *recordFileNode) Getattr(ctx context.Context, f gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = syscall.S_IFREG | 0o444
	out.Size = uint64(len(node.content))
	out.SetTimes(nil, &node.modified, nil)
	return 0
}

func (node *recordFileNode) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	// Reject anything that isn't a read.
	if flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		return nil, 0, syscall.EROFS
	}

	// Content-addressed records are immutable, so the kernel page
	// cache stays valid across opens. Run files mutate in place;
	// leaving the flag off makes each fresh open re-read.
	if node.stable {
		return nil, fuse.FOPEN_KEEP_CACHE, 0
	}
	return nil, 0, 0
}

func (node *recordFileNode) Read(ctx context.Context, f gofuse.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	if off < 0 || off >= int64(len(node.content)) {
		return fuse.ReadResultData(nil), 0
	}
	end := off + int64(len(dest))
	if end > int64(len(node.content)) {
		end = int64(len(node.content))
	}
	return fuse.ReadResultData(node.content[off:end]), 0
}

func (node *recordFileNode) Setattr(ctx context.Context, f gofuse.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	return syscall.EROFS
}

// sliceDirStream implements fs.DirStream from a slice of entries.
type sliceDirStream struct {
	entries []fuse.DirEntry
	index   int
}

func (s *sliceDirStream) HasNext() bool {
	return s.index < len(s.entries)
}

func (s *sliceDirStream) Next() (fuse.DirEntry, syscall.Errno) {
	if s.index >= len(s.entries) {
		return fuse.DirEntry{}, syscall.EINVAL
	}
	entry := s.entries[s.index]
	s.index++
	return entry, 0
}

func (s *sliceDirStream) Close() {}
