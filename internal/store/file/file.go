// Package file implements the store.Store interface as whole-document
// single-blob persistence: every collection lives in one JSON file that
// is rewritten atomically on each committed transaction.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"billbook/internal/store"
)

type document map[string]map[string]json.RawMessage

type Store struct {
	mu   sync.RWMutex
	path string
	doc  document
}

// Open loads (creating if needed) the blob at path. A corrupt or
// unparseable blob is treated as a recoverable condition: the store
// falls back to a freshly initialized empty state instead of failing,
// and the degraded recovery is logged.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	s := &Store{path: path, doc: document{}}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// Fresh store
	case err != nil:
		return nil, fmt.Errorf("read data file: %w", err)
	case len(data) > 0:
		var doc document
		if jsonErr := json.Unmarshal(data, &doc); jsonErr != nil {
			slog.Error("Persisted snapshot is corrupt, resetting to empty state",
				"path", path, "error", jsonErr)
			if err := s.flush(); err != nil {
				return nil, fmt.Errorf("reinitialize corrupt data file: %w", err)
			}
		} else {
			s.doc = doc
		}
	}

	return s, nil
}

func (s *Store) Close() error { return nil }

func (s *Store) View(ctx context.Context, fn func(store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&tx{doc: s.doc, readOnly: true})
}

// Update runs fn against a copy-on-write view of the document. The
// mutated copy replaces the live one only after it has been durably
// written, so a failure mid-command leaves no partial state.
func (s *Store) Update(ctx context.Context, fn func(store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.doc.clone()
	if err := fn(&tx{doc: working}); err != nil {
		return err
	}

	prev := s.doc
	s.doc = working
	if err := s.flush(); err != nil {
		s.doc = prev
		return fmt.Errorf("persist data file: %w", err)
	}
	return nil
}

func (s *Store) Reset(ctx context.Context) error {
	return s.Update(ctx, func(t store.Tx) error {
		for _, c := range store.Collections {
			if err := store.Clear(t, c); err != nil {
				return err
			}
		}
		return nil
	})
}

// flush writes the document to a temp file and renames it into place.
// Callers hold s.mu.
func (s *Store) flush() error {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace data file: %w", err)
	}
	return nil
}

func (d document) clone() document {
	out := make(document, len(d))
	for collection, records := range d {
		copied := make(map[string]json.RawMessage, len(records))
		for id, data := range records {
			copied[id] = data
		}
		out[collection] = copied
	}
	return out
}

type tx struct {
	doc      document
	readOnly bool
}

var errReadOnly = errors.New("write in read-only transaction")

func (t *tx) Get(collection, id string, out any) error {
	data, ok := t.doc[collection][id]
	if !ok {
		return store.ErrNotFound
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return nil
}

func (t *tx) Put(collection, id string, v any) error {
	if t.readOnly {
		return errReadOnly
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	if t.doc[collection] == nil {
		t.doc[collection] = map[string]json.RawMessage{}
	}
	t.doc[collection][id] = data
	return nil
}

func (t *tx) Delete(collection, id string) error {
	if t.readOnly {
		return errReadOnly
	}
	delete(t.doc[collection], id)
	return nil
}

func (t *tx) Scan(collection string, fn func(id string, data []byte) error) error {
	records := t.doc[collection]
	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := fn(id, records[id]); err != nil {
			return err
		}
	}
	return nil
}
