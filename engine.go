// Package logkv is an embedded, single-process, on-disk ordered key-value
// store built around a log-structured design: writes land synchronously in
// an append-only dirty log and an in-memory memtable, and once the memtable
// grows past a threshold it is flushed as a key-sorted, immutable segment
// file. Segments are periodically compacted pairwise, newer value winning
// on duplicate keys. See SPEC_FULL.md for the full design.
package logkv

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/go-logkv/logkv/internal/memtable"
)

const maxFieldLen = math.MaxUint32

// DB represents a logkv database rooted at a single directory on disk.
//
// DB is not safe for concurrent use: spec.md §5 assigns all internal
// ordering guarantees to a single caller, and an embedder sharing a DB
// across goroutines must serialize access itself (see
// engine_concurrency_test.go for the pattern).
type DB struct {
	path string
	cfg  Config

	dirty    *dirtyLog
	memtable *memtable.Memtable

	// segments is ordered oldest (written earliest, front) to newest (back).
	segments []*segment
}

// Open opens the database directory at path, creating it if absent, and
// replays the dirty log to rebuild the memtable. Existing segment-<N> files
// are enumerated in ascending N order and attached to the segment list.
func Open(path string, options ...ConfigOption) (*DB, error) {
	cfg := Config{
		dirtyThreshold: DefaultDirtyThreshold,
		mergeThreshold: DefaultMergeThreshold,
		logger:         zap.NewNop().Sugar(),
	}
	for _, opt := range options {
		opt(&cfg)
	}

	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, &IOError{Op: "create database dir", Err: err}
	}

	segments, err := openExistingSegments(path)
	if err != nil {
		return nil, &IOError{Op: "enumerate segments", Err: err}
	}

	dirty, err := openDirtyLog(filepath.Join(path, "dirty"))
	if err != nil {
		return nil, &IOError{Op: "open dirty log", Err: err}
	}

	mem := memtable.New()
	if err := replay(dirty, mem); err != nil {
		dirty.close()
		return nil, &IOError{Op: "replay dirty log", Err: err}
	}

	cfg.logger.Infow("database opened",
		"path", path,
		"recoveredKeys", mem.Len(),
		"segments", len(segments),
	)

	return &DB{
		path:     path,
		cfg:      cfg,
		dirty:    dirty,
		memtable: mem,
		segments: segments,
	}, nil
}

// openExistingSegments globs segment-<N> files under dir and opens them in
// ascending N order, oldest first.
func openExistingSegments(dir string) ([]*segment, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var ids []int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		id, ok := parseSegmentID(e.Name())
		if !ok {
			continue
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)

	segments := make([]*segment, 0, len(ids))
	for _, id := range ids {
		seg, err := openSegmentForRead(dir, id)
		if err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}
	return segments, nil
}

// parseSegmentID reports whether name has the form "segment-N" and, if so,
// returns N.
func parseSegmentID(name string) (int, bool) {
	const prefix = "segment-"
	if !strings.HasPrefix(name, prefix) {
		return 0, false
	}
	id, err := strconv.Atoi(name[len(prefix):])
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}

// replay rebuilds mem from every whole record in dirty, in arrival order.
func replay(dirty *dirtyLog, mem *memtable.Memtable) error {
	return dirty.iterateFromStart(func(e dirtyLogEntry) error {
		mem.Set(e.key, e.offset)
		return nil
	})
}

// Add writes key/value to the database: first to the dirty log (so the
// write survives a crash before the memtable is touched), then into the
// memtable. If the memtable now holds strictly more than the configured
// dirty threshold of distinct keys, it is flushed to a new segment.
func (db *DB) Add(key, value []byte) error {
	if len(key) > maxFieldLen {
		return &KeyTooLargeError{Len: len(key)}
	}
	if len(value) > maxFieldLen {
		return &ValueTooLargeError{Len: len(value)}
	}

	offset, err := db.dirty.append(key, value)
	if err != nil {
		return &IOError{Op: "append to dirty log", Err: err}
	}
	db.memtable.Set(key, offset)

	if db.memtable.Len() > db.cfg.dirtyThreshold {
		if err := db.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the latest value for key, or ok=false if key was never added.
// The memtable is probed first; on a miss the segment list is scanned from
// newest to oldest, since add may overwrite a key already present in an
// older segment and the segment list is append-ordered, not merge-ordered.
func (db *DB) Get(key []byte) (value []byte, ok bool, err error) {
	if offset, found := db.memtable.Get(key); found {
		value, err := db.dirty.readValueAt(offset, len(key))
		if err != nil {
			return nil, false, &IOError{Op: "read value from dirty log", Err: err}
		}
		return value, true, nil
	}

	var scratch []byte
	for i := len(db.segments) - 1; i >= 0; i-- {
		value, found, err := db.segments[i].lookup(key, &scratch)
		if err != nil {
			return nil, false, err
		}
		if found {
			return value, true, nil
		}
	}
	return nil, false, nil
}

// Flush streams the memtable out to a new sorted segment and truncates the
// dirty log. It is never a no-op: an empty memtable still produces an
// (empty) segment file — callers normally rely on Add's threshold check
// rather than calling Flush directly.
func (db *DB) Flush() error {
	tmp, err := os.CreateTemp(db.path, "segment-tmp-")
	if err != nil {
		return &IOError{Op: "create flush temp file", Err: err}
	}
	tmpPath := tmp.Name()

	if err := db.writeSortedSegment(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return &IOError{Op: "write flush segment", Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return &IOError{Op: "close flush segment", Err: err}
	}

	nextID := 0
	if n := len(db.segments); n > 0 {
		nextID = db.segments[n-1].id + 1
	}
	finalPath := filepath.Join(db.path, segmentFileName(nextID))
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return &PersistError{Op: "rename flush segment", Err: err}
	}

	db.memtable.Clear()
	if err := db.dirty.truncate(); err != nil {
		return &IOError{Op: "truncate dirty log", Err: err}
	}

	seg, err := openSegmentForRead(db.path, nextID)
	if err != nil {
		return &IOError{Op: "reopen flushed segment", Err: err}
	}
	db.segments = append(db.segments, seg)

	db.cfg.logger.Infow("memtable flushed", "segment", nextID)

	if len(db.segments) > db.cfg.mergeThreshold {
		if err := db.mergeOldestTwo(); err != nil {
			return err
		}
	}
	return nil
}

// writeSortedSegment streams the memtable's (key, value) pairs, in
// ascending key order, to w. The value for each key is re-read from the
// dirty log at its recorded offset.
func (db *DB) writeSortedSegment(w *os.File) error {
	var ascendErr error
	db.memtable.Ascend(func(key []byte, offset uint64) bool {
		value, err := db.dirty.readValueAt(offset, len(key))
		if err != nil {
			ascendErr = err
			return false
		}
		if err := writeEntry(w, key, value); err != nil {
			ascendErr = err
			return false
		}
		return true
	})
	return ascendErr
}

// mergeOldestTwo pops the two oldest segments from the front of the segment
// list and compacts them into one, which takes the older segment's id and
// is pushed back to the front. Net effect: the segment list shrinks by one.
func (db *DB) mergeOldestTwo() error {
	if len(db.segments) < 2 {
		return nil
	}
	old, newer := db.segments[0], db.segments[1]

	tmp, err := os.CreateTemp(db.path, "segment-tmp-")
	if err != nil {
		return &IOError{Op: "create merge temp file", Err: err}
	}
	tmpPath := tmp.Name()

	if err := mergeSegments(tmp, newer, old); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return &IOError{Op: "merge segments", Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return &IOError{Op: "close merge temp file", Err: err}
	}

	if err := old.close(); err != nil {
		os.Remove(tmpPath)
		return &IOError{Op: "close old segment", Err: err}
	}
	if err := newer.close(); err != nil {
		os.Remove(tmpPath)
		return &IOError{Op: "close newer segment", Err: err}
	}

	finalPath := filepath.Join(db.path, segmentFileName(old.id))
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return &PersistError{Op: "rename merged segment", Err: err}
	}

	merged, err := openSegmentForRead(db.path, old.id)
	if err != nil {
		return &IOError{Op: "reopen merged segment", Err: err}
	}

	remaining := make([]*segment, 0, len(db.segments)-1)
	remaining = append(remaining, merged)
	remaining = append(remaining, db.segments[2:]...)
	db.segments = remaining

	db.cfg.logger.Infow("segments merged", "resultSegment", old.id, "remaining", len(db.segments))
	return nil
}

// Close releases every file handle held by the database. It performs no
// implicit flush: every Add already wrote its bytes before returning, so
// there is nothing buffered to lose.
func (db *DB) Close() error {
	var firstErr error
	if err := db.dirty.close(); err != nil {
		firstErr = err
	}
	for _, seg := range db.segments {
		if err := seg.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return &IOError{Op: "close database", Err: firstErr}
	}
	return nil
}

// dump renders the memtable's key count and the raw bytes of the dirty log
// and of every segment file, used only by tests inspecting database state.
func (db *DB) dump() (string, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "memtable keys: %d\n", db.memtable.Len())

	if _, err := db.dirty.f.Seek(0, 0); err != nil {
		return "", err
	}
	dirtyBytes, err := os.ReadFile(db.dirty.f.Name())
	if err != nil {
		return "", err
	}
	fmt.Fprintf(&b, "dirty: %v\n", dirtyBytes)

	for _, seg := range db.segments {
		raw, err := seg.dump()
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "segment %d: %v\n", seg.id, raw)
	}
	return b.String(), nil
}
