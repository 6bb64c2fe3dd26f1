package logkv

import (
	"encoding/binary"
	"io"
)

// lengthPrefixSize is the width in bytes of a big-endian entry length header.
const lengthPrefixSize = 4

// writeEntry emits len32(key) || key || len32(value) || value, where len32
// is a 4-byte big-endian unsigned length. There is no separator or terminator.
func writeEntry(w io.Writer, key, value []byte) error {
	if err := writeLengthPrefixed(w, key); err != nil {
		return err
	}
	return writeLengthPrefixed(w, value)
}

// writeLengthPrefixed emits a single len32(payload) || payload field.
func writeLengthPrefixed(w io.Writer, payload []byte) error {
	var hdr [lengthPrefixSize]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))

	ew := &errWriter{Writer: w}
	ew.Write(hdr[:])
	ew.Write(payload)
	return ew.err
}

// readUint32 reads a bare 4-byte big-endian length. It is used by the
// replay and merge loops to distinguish a clean end of stream at a record
// boundary from a truncated record: both cases return ErrUnexpectedEnd,
// and it is the caller's job to know which position it was reading from.
func readUint32(r io.Reader) (uint32, error) {
	var hdr [lengthPrefixSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return 0, ErrUnexpectedEnd
		}
		return 0, err
	}
	return binary.BigEndian.Uint32(hdr[:]), nil
}

// readLengthPrefixed reads a 4-byte length n followed by exactly n bytes,
// replacing *buf's prior contents. A 0-length payload is a legal, successful
// zero-byte read. The buffer grows with ordinary make, never with
// uninitialized memory.
func readLengthPrefixed(r io.Reader, buf *[]byte) error {
	n, err := readUint32(r)
	if err != nil {
		return err
	}

	if cap(*buf) < int(n) {
		*buf = make([]byte, n)
	} else {
		*buf = (*buf)[:n]
	}

	if n == 0 {
		return nil
	}
	if _, err := io.ReadFull(r, *buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return ErrUnexpectedEnd
		}
		return err
	}
	return nil
}

// skipLengthPrefixed discards a length-prefixed payload without retaining
// it, used when the reader cannot or should not seek.
func skipLengthPrefixed(r io.Reader) error {
	n, err := readUint32(r)
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	copied, err := io.CopyN(io.Discard, r, int64(n))
	if err != nil || copied != int64(n) {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return ErrUnexpectedEnd
		}
		if err != nil {
			return err
		}
		return ErrUnexpectedEnd
	}
	return nil
}
