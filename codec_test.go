package logkv

import (
	"bytes"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestWriteEntry(t *testing.T) {
	tests := map[string]struct {
		key, value []byte
		want       []byte
	}{
		"name=Bob": {
			key:   []byte("name"),
			value: []byte("Bob"),
			want:  []byte{0, 0, 0, 4, 'n', 'a', 'm', 'e', 0, 0, 0, 3, 'B', 'o', 'b'},
		},
		"empty key": {
			key:   []byte{},
			value: []byte("riengue"),
			want:  []byte{0, 0, 0, 0, 0, 0, 0, 7, 'r', 'i', 'e', 'n', 'g', 'u', 'e'},
		},
		"empty value": {
			key:   []byte("riengue"),
			value: []byte{},
			want:  []byte{0, 0, 0, 7, 'r', 'i', 'e', 'n', 'g', 'u', 'e', 0, 0, 0, 0},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			var out bytes.Buffer
			if err := writeEntry(&out, tc.key, tc.value); err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tc.want, out.Bytes()); diff != "" {
				t.Fatalf("writeEntry() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReadLengthPrefixedRoundTrip(t *testing.T) {
	tests := map[string][]byte{
		"plain": []byte("hello world"),
		"empty": {},
		"binary": {0x00, 0xff, 0x01, 0xfe},
	}

	for name, payload := range tests {
		t.Run(name, func(t *testing.T) {
			var out bytes.Buffer
			if err := writeLengthPrefixed(&out, payload); err != nil {
				t.Fatal(err)
			}

			var got []byte
			if err := readLengthPrefixed(&out, &got); err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(payload, got, cmpEmptyAsNil()); diff != "" {
				t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReadLengthPrefixedReusesBuffer(t *testing.T) {
	var out bytes.Buffer
	if err := writeLengthPrefixed(&out, []byte("short")); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 0, 64)
	if err := readLengthPrefixed(&out, &buf); err != nil {
		t.Fatal(err)
	}
	if string(buf) != "short" {
		t.Fatalf("got %q, want %q", buf, "short")
	}
}

func TestReadLengthPrefixedUnexpectedEnd(t *testing.T) {
	tests := map[string]io.Reader{
		"empty stream":      bytes.NewReader(nil),
		"truncated header":  bytes.NewReader([]byte{0, 0}),
		"truncated payload": bytes.NewReader([]byte{0, 0, 0, 10, 'a', 'b'}),
	}

	for name, r := range tests {
		t.Run(name, func(t *testing.T) {
			var buf []byte
			err := readLengthPrefixed(r, &buf)
			if err != ErrUnexpectedEnd {
				t.Fatalf("got %v, want ErrUnexpectedEnd", err)
			}
		})
	}
}

func TestSkipLengthPrefixed(t *testing.T) {
	var out bytes.Buffer
	if err := writeEntry(&out, []byte("key"), []byte("value")); err != nil {
		t.Fatal(err)
	}

	if err := skipLengthPrefixed(&out); err != nil {
		t.Fatal(err)
	}

	var value []byte
	if err := readLengthPrefixed(&out, &value); err != nil {
		t.Fatal(err)
	}
	if string(value) != "value" {
		t.Fatalf("got %q, want %q", value, "value")
	}
}

func TestReadUint32EndOfStreamIsUnexpectedEnd(t *testing.T) {
	_, err := readUint32(bytes.NewReader(nil))
	if err != ErrUnexpectedEnd {
		t.Fatalf("got %v, want ErrUnexpectedEnd", err)
	}
}

// cmpEmptyAsNil treats a nil slice and an empty, non-nil slice as equal,
// since readLengthPrefixed leaves a nil buffer nil for a zero-length payload
// while the literal empty test fixture is a non-nil, empty slice.
func cmpEmptyAsNil() cmp.Option {
	return cmp.Comparer(func(a, b []byte) bool {
		return bytes.Equal(a, b)
	})
}
