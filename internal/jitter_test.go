package internal

import (
	"errors"
	"testing"
)

func TestJitterCollectorRead(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping timing test in short mode")
	}

	j, err := NewJitterCollector()
	if err != nil {
		t.Fatalf("NewJitterCollector() failed: %v", err)
	}

	a := make([]byte, 40)
	n, err := j.Read(a)
	if errors.Is(err, ErrJitterStuck) {
		t.Skip("timer too coarse on this machine")
	}
	if err != nil || n != len(a) {
		t.Fatalf("Read() = %d, %v", n, err)
	}

	b := make([]byte, 40)
	if _, err := j.Read(b); err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	if string(a) == string(b) {
		t.Error("consecutive reads returned the same data")
	}
}

func TestJitterCollectorStuckTimer(t *testing.T) {
	j, err := NewJitterCollector()
	if err != nil {
		t.Fatal(err)
	}
	j.now = func() int64 { return 42 }
	j.prev = 42

	if _, err := j.Read(make([]byte, 32)); !errors.Is(err, ErrJitterStuck) {
		t.Errorf("Read() error = %v, want %v", err, ErrJitterStuck)
	}
}
