// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package dashui

import (
	"encoding/binary"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// watchStore starts an inotify watcher on the store file and returns
// a channel that receives a nudge whenever another process writes to
// it. The consumer reloads from the database; the watcher carries no
// data. The cleanup function stops the watcher and closes the
// inotify fd.
//
// The watch goes on the parent directory, not the file: SQLite in WAL
// mode appends to <name>-wal and checkpoints back into <name>, and a
// directory watch sees both names (plus an atomic replace of the
// database, which creates a new inode a file-level watch would lose).
// Events whose name does not start with the database filename are
// ignored.
func watchStore(path string) (<-chan struct{}, func(), error) {
	absolutePath, err := filepath.Abs(path)
	if err != nil {
		return nil, nil, err
	}
	directory := filepath.Dir(absolutePath)
	filename := filepath.Base(absolutePath)

	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return nil, nil, err
	}
	_, err = unix.InotifyAddWatch(fd, directory, unix.IN_MODIFY|unix.IN_CLOSE_WRITE|unix.IN_MOVED_TO)
	if err != nil {
		unix.Close(fd)
		return nil, nil, err
	}

	// Capacity 1: a nudge that arrives while one is already pending
	// adds nothing, the reload will see both writes.
	nudges := make(chan struct{}, 1)
	stop := make(chan struct{})
	go watchLoop(fd, filename, nudges, stop)

	stopped := false
	cleanup := func() {
		if stopped {
			return
		}
		stopped = true
		close(stop)
	}
	return nudges, cleanup, nil
}

// watchLoop polls the inotify fd, filters events down to the store
// file, and coalesces bursts into single nudges.
//
// Uses poll(2) with a 100ms timeout so the stop channel is checked
// promptly. After a matching event it sleeps 50ms and drains the fd:
// a batch of run updates from one worker lands as one nudge.
func watchLoop(fd int, filename string, nudges chan<- struct{}, stop <-chan struct{}) {
	defer unix.Close(fd)

	buffer := make([]byte, 4096)

	for {
		select {
		case <-stop:
			return
		default:
		}

		descriptors := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		count, err := unix.Poll(descriptors, 100)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			// Fatal poll error. The dashboard degrades to tick-only
			// refresh.
			return
		}
		if count == 0 {
			continue
		}

		read, err := unix.Read(fd, buffer)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				continue
			}
			return
		}
		if !eventsTouchFile(buffer[:read], filename) {
			continue
		}

		time.Sleep(50 * time.Millisecond)
		drainEvents(fd, buffer)

		select {
		case nudges <- struct{}{}:
		default:
		}
	}
}

// eventsTouchFile reports whether any inotify event in the buffer
// names the store file or one of its sidecars (-wal, -shm). Event
// layout from inotify(7):
//
//	struct inotify_event {
//	    int32_t  wd;     // offset 0
//	    uint32_t mask;   // offset 4
//	    uint32_t cookie; // offset 8
//	    uint32_t len;    // offset 12
//	    char     name[]; // offset 16, null-padded to alignment
//	};
func eventsTouchFile(buffer []byte, filename string) bool {
	offset := 0
	for offset+unix.SizeofInotifyEvent <= len(buffer) {
		nameLength := int(binary.NativeEndian.Uint32(buffer[offset+12 : offset+16]))
		eventSize := unix.SizeofInotifyEvent + nameLength
		if offset+eventSize > len(buffer) {
			break
		}

		if nameLength > 0 {
			raw := buffer[offset+unix.SizeofInotifyEvent : offset+eventSize]
			if strings.HasPrefix(nullTerminated(raw), filename) {
				return true
			}
		}
		offset += eventSize
	}
	return false
}

// nullTerminated cuts a null-padded byte slice at the first zero.
func nullTerminated(data []byte) string {
	for index, value := range data {
		if value == 0 {
			return string(data[:index])
		}
	}
	return string(data)
}

// drainEvents discards queued inotify events after the debounce
// sleep. EAGAIN means the queue is empty.
func drainEvents(fd int, buffer []byte) {
	for {
		if _, err := unix.Read(fd, buffer); err != nil {
			return
		}
	}
}
