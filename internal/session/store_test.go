package session

import (
	"errors"
	"testing"
	"time"

	"github.com/andresvega/loaderd/internal/domain"
)

func TestCreateAndGet(t *testing.T) {
	s := NewStore(0)
	sess := s.Create("data.csv", "uploads/abc.csv", []string{"a", "b"}, []domain.Row{{"a": "1"}})

	if sess.ID == "" {
		t.Fatal("session id not assigned")
	}

	got, err := s.Get(sess.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.StorageKey != "uploads/abc.csv" {
		t.Errorf("storage key = %q", got.StorageKey)
	}
	if len(got.Columns) != 2 {
		t.Errorf("columns = %v", got.Columns)
	}
}

func TestGetUnknown(t *testing.T) {
	s := NewStore(0)
	if _, err := s.Get("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("got %v, want ErrSessionNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	s := NewStore(0)
	sess := s.Create("f.csv", "k", nil, nil)
	s.Delete(sess.ID)
	if _, err := s.Get(sess.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Error("deleted session still resolvable")
	}
	// Deleting again is a no-op.
	s.Delete(sess.ID)
}

func TestExpiry(t *testing.T) {
	s := NewStore(10 * time.Millisecond)
	sess := s.Create("f.csv", "k", nil, nil)

	if _, err := s.Get(sess.ID); err != nil {
		t.Fatalf("fresh session not resolvable: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	if _, err := s.Get(sess.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Error("expired session still resolvable")
	}
}

func TestSweep(t *testing.T) {
	s := NewStore(10 * time.Millisecond)
	s.Create("a.csv", "k1", nil, nil)
	s.Create("b.csv", "k2", nil, nil)

	time.Sleep(20 * time.Millisecond)
	fresh := s.Create("c.csv", "k3", nil, nil)

	if removed := s.Sweep(); removed != 2 {
		t.Errorf("swept %d, want 2", removed)
	}
	if _, err := s.Get(fresh.ID); err != nil {
		t.Errorf("fresh session swept: %v", err)
	}
}
