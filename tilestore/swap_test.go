package tilestore

import (
	"errors"
	"os"
	"testing"
)

func TestMemorySwap(t *testing.T) {
	m := NewMemorySwap()

	a, err := m.Put([]byte("first"))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	b, _ := m.Put([]byte("second"))
	if a == b {
		t.Fatalf("Put() returned duplicate slot %d", a)
	}
	if m.Bytes() != 11 || m.Len() != 2 {
		t.Errorf("Bytes() = %d, Len() = %d, want 11, 2", m.Bytes(), m.Len())
	}

	got, err := m.Get(b)
	if err != nil || string(got) != "second" {
		t.Errorf("Get() = %q, %v", got, err)
	}

	m.Free(a)
	m.Free(a)
	if _, err := m.Get(a); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(freed) error = %v, want ErrNotFound", err)
	}

	_ = m.Close()
	if _, err := m.Put(nil); !errors.Is(err, ErrSwapClosed) {
		t.Errorf("Put() after Close error = %v, want ErrSwapClosed", err)
	}
}

func TestFileSwap(t *testing.T) {
	f, err := NewFileSwap(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSwap() error = %v", err)
	}

	records := [][]byte{[]byte("alpha"), make([]byte, 5000), []byte("c")}
	slots := make([]Slot, len(records))
	for i, rec := range records {
		slots[i], err = f.Put(rec)
		if err != nil {
			t.Fatalf("Put(%d) error = %v", i, err)
		}
	}

	for i := len(records) - 1; i >= 0; i-- {
		got, err := f.Get(slots[i])
		if err != nil {
			t.Fatalf("Get(%d) error = %v", i, err)
		}
		if string(got) != string(records[i]) {
			t.Errorf("Get(%d) returned wrong record", i)
		}
	}

	f.Free(slots[1])
	total, garbage := f.Size()
	if total != 5006 || garbage != 5000 {
		t.Errorf("Size() = %d, %d, want 5006, 5000", total, garbage)
	}
	if _, err := f.Get(slots[1]); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(freed) error = %v, want ErrNotFound", err)
	}

	path := f.Path()
	if err := f.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("swap file still exists after Close: %v", err)
	}
	if _, err := f.Get(slots[0]); !errors.Is(err, ErrSwapClosed) {
		t.Errorf("Get() after Close error = %v, want ErrSwapClosed", err)
	}
	if err := f.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
