// Package store defines the transactional key-collection persistence
// abstraction the ledger engine runs against. Two interchangeable
// backends implement it: an indexed sqlite store and a whole-document
// file store. The engine is written once against this interface, so
// both backends behave identically by construction; the storetest
// package holds the conformance suite both must pass.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Collection names. Every persisted entity lives in exactly one of
// these.
const (
	Templates      = "templates"
	Instances      = "instances"
	PaymentEvents  = "payment_events"
	InstanceEvents = "instance_events"
	SinkingFunds   = "sinking_funds"
	SinkingEvents  = "sinking_events"
	MonthSettings  = "month_settings"
	Settings       = "settings"
)

// Collections lists every known collection, in backup-schema order.
var Collections = []string{
	Templates,
	Instances,
	PaymentEvents,
	InstanceEvents,
	SinkingFunds,
	SinkingEvents,
	MonthSettings,
	Settings,
}

// ErrNotFound is returned by Tx.Get when no record exists for the key.
var ErrNotFound = errors.New("record not found")

// Tx is a transaction over the collections. All writes made through a
// Tx commit together or not at all.
type Tx interface {
	// Get decodes the record at (collection, id) into out, or returns
	// ErrNotFound.
	Get(collection, id string, out any) error
	// Put stores v, JSON-encoded, at (collection, id), replacing any
	// existing record.
	Put(collection, id string, v any) error
	// Delete removes the record at (collection, id). Deleting an absent
	// record is not an error.
	Delete(collection, id string) error
	// Scan invokes fn for every record in the collection, in id order.
	// fn must not write to the transaction.
	Scan(collection string, fn func(id string, data []byte) error) error
}

// Store is the persistence engine. A single externally-visible command
// maps to a single Update call, so a storage failure mid-command leaves
// no partial state behind.
type Store interface {
	// View runs fn in a read-only transaction.
	View(ctx context.Context, fn func(Tx) error) error
	// Update runs fn in a writable transaction, committing only when fn
	// returns nil.
	Update(ctx context.Context, fn func(Tx) error) error
	// Reset drops every record in every collection.
	Reset(ctx context.Context) error
	Close() error
}

// List decodes every record of a collection into a slice.
func List[T any](tx Tx, collection string) ([]T, error) {
	var out []T
	err := tx.Scan(collection, func(id string, data []byte) error {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("decode %s/%s: %w", collection, id, err)
		}
		out = append(out, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// IDs collects every record id of a collection.
func IDs(tx Tx, collection string) ([]string, error) {
	var out []string
	err := tx.Scan(collection, func(id string, _ []byte) error {
		out = append(out, id)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Clear deletes every record of a collection. Ids are collected before
// deleting so backends may hold cursors open during Scan.
func Clear(tx Tx, collection string) error {
	ids, err := IDs(tx, collection)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := tx.Delete(collection, id); err != nil {
			return err
		}
	}
	return nil
}
