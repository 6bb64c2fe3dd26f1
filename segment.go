package logkv

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// segment wraps an immutable file holding entries sorted strictly
// ascending by key, each key appearing at most once. Segments are produced
// by flush or by merge and are scanned linearly: they're read sequentially
// and assumed to be looked at only a handful of times before compaction.
type segment struct {
	id   int
	path string
	f    *os.File
}

// segmentFileName returns the on-disk name of segment id, e.g. "segment-3".
func segmentFileName(id int) string {
	return "segment-" + strconv.Itoa(id)
}

// openSegmentForRead opens an existing segment file for random reads.
func openSegmentForRead(dir string, id int) (*segment, error) {
	path := filepath.Join(dir, segmentFileName(id))
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &segment{id: id, path: path, f: f}, nil
}

// close releases the segment's file handle.
func (s *segment) close() error {
	return s.f.Close()
}

// lookup linearly scans the segment from offset 0 looking for key, reusing
// scratch as its key buffer. It returns the matching value and true on a
// hit, or false on reaching end of file.
func (s *segment) lookup(key []byte, scratch *[]byte) ([]byte, bool, error) {
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return nil, false, err
	}
	r := bufio.NewReader(s.f)

	for {
		if err := readLengthPrefixed(r, scratch); err != nil {
			if err == ErrUnexpectedEnd {
				return nil, false, nil
			}
			return nil, false, err
		}

		if bytes.Equal(key, *scratch) {
			var value []byte
			if err := readLengthPrefixed(r, &value); err != nil {
				return nil, false, fmt.Errorf("logkv: corrupt segment %s: %w", s.path, err)
			}
			return value, true, nil
		}

		if err := skipLengthPrefixed(r); err != nil {
			return nil, false, fmt.Errorf("logkv: corrupt segment %s: %w", s.path, err)
		}
	}
}

// dump reads the whole segment file into memory. Diagnostic use only, e.g.
// from tests asserting on exact on-disk bytes.
func (s *segment) dump() ([]byte, error) {
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return io.ReadAll(s.f)
}
