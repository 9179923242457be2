// Package storetest is the shared conformance suite for store.Store
// implementations. Both backends run it, so their behavior cannot
// drift apart.
package storetest

import (
	"context"
	"errors"
	"testing"

	"billbook/internal/store"
)

type record struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// Run exercises the full Store contract against the implementation
// returned by open.
func Run(t *testing.T, open func(t *testing.T) store.Store) {
	t.Helper()

	t.Run("get put roundtrip", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		ctx := context.Background()

		err := s.Update(ctx, func(tx store.Tx) error {
			return tx.Put(store.Templates, "a", record{Name: "rent", Value: 1})
		})
		if err != nil {
			t.Fatalf("update: %v", err)
		}

		var got record
		err = s.View(ctx, func(tx store.Tx) error {
			return tx.Get(store.Templates, "a", &got)
		})
		if err != nil {
			t.Fatalf("view: %v", err)
		}
		if got.Name != "rent" || got.Value != 1 {
			t.Fatalf("unexpected record: %+v", got)
		}
	})

	t.Run("get missing returns ErrNotFound", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		err := s.View(context.Background(), func(tx store.Tx) error {
			var out record
			return tx.Get(store.Templates, "absent", &out)
		})
		if !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("put replaces existing record", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		ctx := context.Background()

		for _, v := range []int{1, 2} {
			err := s.Update(ctx, func(tx store.Tx) error {
				return tx.Put(store.Templates, "a", record{Name: "rent", Value: v})
			})
			if err != nil {
				t.Fatalf("update: %v", err)
			}
		}

		var got record
		if err := s.View(ctx, func(tx store.Tx) error {
			return tx.Get(store.Templates, "a", &got)
		}); err != nil {
			t.Fatalf("view: %v", err)
		}
		if got.Value != 2 {
			t.Fatalf("expected replaced value 2, got %d", got.Value)
		}
	})

	t.Run("delete removes and tolerates absent", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		ctx := context.Background()

		err := s.Update(ctx, func(tx store.Tx) error {
			if err := tx.Put(store.Instances, "x", record{Name: "x"}); err != nil {
				return err
			}
			if err := tx.Delete(store.Instances, "x"); err != nil {
				return err
			}
			return tx.Delete(store.Instances, "never-existed")
		})
		if err != nil {
			t.Fatalf("update: %v", err)
		}

		err = s.View(ctx, func(tx store.Tx) error {
			var out record
			return tx.Get(store.Instances, "x", &out)
		})
		if !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected ErrNotFound after delete, got %v", err)
		}
	})

	t.Run("scan visits records in id order", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		ctx := context.Background()

		err := s.Update(ctx, func(tx store.Tx) error {
			for _, id := range []string{"c", "a", "b"} {
				if err := tx.Put(store.PaymentEvents, id, record{Name: id}); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			t.Fatalf("update: %v", err)
		}

		var seen []string
		err = s.View(ctx, func(tx store.Tx) error {
			return tx.Scan(store.PaymentEvents, func(id string, _ []byte) error {
				seen = append(seen, id)
				return nil
			})
		})
		if err != nil {
			t.Fatalf("view: %v", err)
		}
		want := []string{"a", "b", "c"}
		if len(seen) != len(want) {
			t.Fatalf("expected %v, got %v", want, seen)
		}
		for i := range want {
			if seen[i] != want[i] {
				t.Fatalf("expected %v, got %v", want, seen)
			}
		}
	})

	t.Run("scan is scoped to one collection", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		ctx := context.Background()

		err := s.Update(ctx, func(tx store.Tx) error {
			if err := tx.Put(store.Templates, "t1", record{}); err != nil {
				return err
			}
			return tx.Put(store.SinkingFunds, "f1", record{})
		})
		if err != nil {
			t.Fatalf("update: %v", err)
		}

		count := 0
		err = s.View(ctx, func(tx store.Tx) error {
			return tx.Scan(store.Templates, func(string, []byte) error {
				count++
				return nil
			})
		})
		if err != nil {
			t.Fatalf("view: %v", err)
		}
		if count != 1 {
			t.Fatalf("expected 1 template record, saw %d", count)
		}
	})

	t.Run("failed update leaves no partial state", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		ctx := context.Background()

		boom := errors.New("boom")
		err := s.Update(ctx, func(tx store.Tx) error {
			if err := tx.Put(store.Templates, "half", record{Name: "written"}); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected fn error to propagate, got %v", err)
		}

		err = s.View(ctx, func(tx store.Tx) error {
			var out record
			return tx.Get(store.Templates, "half", &out)
		})
		if !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("aborted write must not be visible, got %v", err)
		}
	})

	t.Run("view rejects writes", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		ctx := context.Background()

		err := s.Update(ctx, func(tx store.Tx) error {
			return tx.Put(store.Templates, "keep", record{Name: "rent", Value: 1})
		})
		if err != nil {
			t.Fatalf("update: %v", err)
		}

		err = s.View(ctx, func(tx store.Tx) error {
			return tx.Put(store.Templates, "sneak", record{Name: "nope"})
		})
		if err == nil {
			t.Fatal("Put inside View must fail")
		}
		err = s.View(ctx, func(tx store.Tx) error {
			return tx.Delete(store.Templates, "keep")
		})
		if err == nil {
			t.Fatal("Delete inside View must fail")
		}

		err = s.View(ctx, func(tx store.Tx) error {
			var out record
			if err := tx.Get(store.Templates, "keep", &out); err != nil {
				return err
			}
			var sneaked record
			if err := tx.Get(store.Templates, "sneak", &sneaked); !errors.Is(err, store.ErrNotFound) {
				t.Fatalf("rejected Put must leave nothing behind, got %v", err)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("view: %v", err)
		}
	})

	t.Run("reset drops every collection", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		ctx := context.Background()

		err := s.Update(ctx, func(tx store.Tx) error {
			for _, c := range store.Collections {
				if err := tx.Put(c, "id", record{}); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			t.Fatalf("update: %v", err)
		}

		if err := s.Reset(ctx); err != nil {
			t.Fatalf("reset: %v", err)
		}

		err = s.View(ctx, func(tx store.Tx) error {
			for _, c := range store.Collections {
				ids, err := store.IDs(tx, c)
				if err != nil {
					return err
				}
				if len(ids) != 0 {
					t.Fatalf("collection %s not empty after reset: %v", c, ids)
				}
			}
			return nil
		})
		if err != nil {
			t.Fatalf("view: %v", err)
		}
	})

	t.Run("write during scan of same collection", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		ctx := context.Background()

		err := s.Update(ctx, func(tx store.Tx) error {
			for _, id := range []string{"a", "b"} {
				if err := tx.Put(store.Instances, id, record{Name: id}); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			t.Fatalf("seed: %v", err)
		}

		// Collect-then-write is how the engine cascades deletes.
		err = s.Update(ctx, func(tx store.Tx) error {
			ids, err := store.IDs(tx, store.Instances)
			if err != nil {
				return err
			}
			for _, id := range ids {
				if err := tx.Delete(store.Instances, id); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			t.Fatalf("update: %v", err)
		}

		var left []string
		err = s.View(ctx, func(tx store.Tx) error {
			var err error
			left, err = store.IDs(tx, store.Instances)
			return err
		})
		if err != nil {
			t.Fatalf("view: %v", err)
		}
		if len(left) != 0 {
			t.Fatalf("expected empty collection, got %v", left)
		}
	})
}
