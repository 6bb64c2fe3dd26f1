package logkv

import (
	"io"
	"os"
)

// dirtyLog is the append-only write-ahead file described in spec.md §4.2:
// every add is framed and appended here before the memtable is updated, and
// its contents are the sole source of truth when recovering a memtable on
// Open. It is also read from directly to serve Get for keys that are still
// only in the dirty log (not yet flushed to a segment).
type dirtyLog struct {
	f *os.File
}

// openDirtyLog opens (or creates) the dirty log file for read+write.
func openDirtyLog(path string) (*dirtyLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	return &dirtyLog{f: f}, nil
}

// append seeks to the end of the log, writes the framed record, and
// returns the offset of the first byte written — the canonical record
// address the memtable stores for this key.
func (d *dirtyLog) append(key, value []byte) (uint64, error) {
	offset, err := d.f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if err := writeEntry(d.f, key, value); err != nil {
		return 0, err
	}
	return uint64(offset), nil
}

// readValueAt seeks past a record's key header and key bytes and reads its
// value as a length-prefixed payload.
func (d *dirtyLog) readValueAt(offset uint64, keyLen int) ([]byte, error) {
	pos := int64(offset) + lengthPrefixSize + int64(keyLen)
	if _, err := d.f.Seek(pos, io.SeekStart); err != nil {
		return nil, err
	}
	var value []byte
	if err := readLengthPrefixed(d.f, &value); err != nil {
		return nil, err
	}
	return value, nil
}

// truncate resets the dirty log to length 0, performed immediately after a
// successful flush.
func (d *dirtyLog) truncate() error {
	if err := d.f.Truncate(0); err != nil {
		return err
	}
	_, err := d.f.Seek(0, io.SeekStart)
	return err
}

// dirtyLogEntry is one record yielded by iterateFromStart during replay.
type dirtyLogEntry struct {
	offset   uint64
	key      []byte
	valueLen int
}

// iterateFromStart scans the log from offset 0, invoking fn for every
// record with its starting offset, key and value length, advancing a
// running position counter. Used only during Open's recovery pass. A clean
// ErrUnexpectedEnd at a record boundary ends iteration normally; one found
// mid-record is returned to the caller as a recovery failure.
func (d *dirtyLog) iterateFromStart(fn func(dirtyLogEntry) error) error {
	if _, err := d.f.Seek(0, io.SeekStart); err != nil {
		return err
	}

	var pos uint64
	var key, value []byte
	for {
		keyLen, err := readUint32(d.f)
		if err != nil {
			if err == ErrUnexpectedEnd {
				return nil
			}
			return err
		}

		// Mid-record from here on: the key header was read successfully so
		// this stream was committed to a whole record.
		key = make([]byte, keyLen)
		if _, err := io.ReadFull(d.f, key); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return ErrUnexpectedEnd
			}
			return err
		}

		if err := readLengthPrefixed(d.f, &value); err != nil {
			return err
		}
		valueLen := len(value)

		entry := dirtyLogEntry{offset: pos, key: append([]byte(nil), key...), valueLen: valueLen}
		if err := fn(entry); err != nil {
			return err
		}

		pos += 2*lengthPrefixSize + uint64(keyLen) + uint64(valueLen)
	}
}

// close releases the dirty log's file handle.
func (d *dirtyLog) close() error {
	return d.f.Close()
}
