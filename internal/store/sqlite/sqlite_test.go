package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"billbook/internal/store"
	"billbook/internal/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := Open(filepath.Join(t.TempDir(), "billbook.db"))
		if err != nil {
			t.Fatalf("open sqlite store: %v", err)
		}
		return s
	})
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "billbook.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	err = s.Update(context.Background(), func(tx store.Tx) error {
		return tx.Put(store.Templates, "t1", map[string]string{"name": "rent"})
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	var got map[string]string
	err = s.View(context.Background(), func(tx store.Tx) error {
		return tx.Get(store.Templates, "t1", &got)
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if got["name"] != "rent" {
		t.Fatalf("unexpected record after reopen: %v", got)
	}
}
