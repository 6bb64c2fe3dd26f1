package logkv

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDirtyLogAppendAndReadValueAt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dirty")
	d, err := openDirtyLog(path)
	if err != nil {
		t.Fatal(err)
	}
	defer d.close()

	off1, err := d.append([]byte("hello"), []byte("world"))
	if err != nil {
		t.Fatal(err)
	}
	off2, err := d.append([]byte("tamo"), []byte("world"))
	if err != nil {
		t.Fatal(err)
	}
	if off1 != 0 || off2 != 18 {
		t.Fatalf("offsets = %d, %d, want 0, 18", off1, off2)
	}

	value, err := d.readValueAt(off1, len("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if string(value) != "world" {
		t.Fatalf("readValueAt(off1) = %q, want %q", value, "world")
	}

	value, err = d.readValueAt(off2, len("tamo"))
	if err != nil {
		t.Fatal(err)
	}
	if string(value) != "world" {
		t.Fatalf("readValueAt(off2) = %q, want %q", value, "world")
	}
}

func TestDirtyLogTruncate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dirty")
	d, err := openDirtyLog(path)
	if err != nil {
		t.Fatal(err)
	}
	defer d.close()

	if _, err := d.append([]byte("k"), []byte("v")); err != nil {
		t.Fatal(err)
	}
	if err := d.truncate(); err != nil {
		t.Fatal(err)
	}

	off, err := d.append([]byte("k2"), []byte("v2"))
	if err != nil {
		t.Fatal(err)
	}
	if off != 0 {
		t.Fatalf("offset after truncate = %d, want 0", off)
	}
}

func TestDirtyLogIterateFromStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dirty")
	d, err := openDirtyLog(path)
	if err != nil {
		t.Fatal(err)
	}
	defer d.close()

	if _, err := d.append([]byte("hello"), []byte("world")); err != nil {
		t.Fatal(err)
	}
	if _, err := d.append([]byte("tamo"), []byte("world")); err != nil {
		t.Fatal(err)
	}

	var got []dirtyLogEntry
	err = d.iterateFromStart(func(e dirtyLogEntry) error {
		got = append(got, e)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	want := []dirtyLogEntry{
		{offset: 0, key: []byte("hello"), valueLen: 5},
		{offset: 18, key: []byte("tamo"), valueLen: 5},
	}
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(dirtyLogEntry{})); diff != "" {
		t.Fatalf("iterateFromStart() mismatch (-want +got):\n%s", diff)
	}
}

func TestDirtyLogIterateFromStartEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dirty")
	d, err := openDirtyLog(path)
	if err != nil {
		t.Fatal(err)
	}
	defer d.close()

	var got []dirtyLogEntry
	err = d.iterateFromStart(func(e dirtyLogEntry) error {
		got = append(got, e)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("iterateFromStart() on empty log = %v, want none", got)
	}
}
