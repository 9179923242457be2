// Package engine implements the ledger engine: template-to-instance
// materialization, the payment accounting view, the sinking-fund
// projector and the transactional action dispatcher. It is written once
// against the store.Store abstraction and never caches entities beyond
// a single request.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"billbook/internal/core"
	"billbook/internal/store"
)

// AuditPublisher receives a notification after a command has been
// durably committed. Implementations must never fail the request; a
// publish error is logged and dropped.
type AuditPublisher interface {
	PublishAction(ctx context.Context, action, entityKind, entityID string) error
}

// Engine is the ledger engine. All entry points serialize month
// materialization through a per-(year, month) single-flight group, so
// no two ensure-month passes for the same month interleave.
type Engine struct {
	store     store.Store
	logger    *slog.Logger
	publisher AuditPublisher
	now       func() time.Time
	months    singleflight.Group
}

// New creates an engine over the given store.
func New(s store.Store) *Engine {
	return &Engine{
		store:  s,
		logger: slog.Default(),
		now:    time.Now,
	}
}

// SetLogger replaces the engine logger.
func (e *Engine) SetLogger(l *slog.Logger) {
	if l != nil {
		e.logger = l
	}
}

// SetPublisher attaches an optional audit publisher.
func (e *Engine) SetPublisher(p AuditPublisher) { e.publisher = p }

// SetClock overrides the time source. Test hook.
func (e *Engine) SetClock(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// Store exposes the underlying store for backup and reset paths.
func (e *Engine) Store() store.Store { return e.store }

func (e *Engine) today() core.Date {
	t := e.now().UTC()
	return core.NewDate(t.Year(), int(t.Month()), t.Day())
}

func newID() string { return uuid.NewString() }

func monthKey(year, month int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}

func validateMonth(year, month int) error {
	if year < 1 || year > 9999 {
		return core.InvalidField("year", "must be a four-digit year")
	}
	if !core.ValidMonth(month) {
		return core.InvalidField("month", "must be between 1 and 12")
	}
	return nil
}

func (e *Engine) publish(ctx context.Context, action, entityKind, entityID string) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.PublishAction(ctx, action, entityKind, entityID); err != nil {
		e.logger.Warn("Failed to publish audit message",
			"action", action, "entity", entityKind, "id", entityID, "error", err)
	}
}

// Typed record accessors. Store-level not-found becomes a domain
// NotFoundError; anything else is a storage failure.

func getTemplate(tx store.Tx, id string) (core.Template, error) {
	var t core.Template
	if err := tx.Get(store.Templates, id, &t); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return core.Template{}, core.NotFound("template", id)
		}
		return core.Template{}, core.StorageFailure("get template", err)
	}
	return t, nil
}

func getInstance(tx store.Tx, id string) (core.Instance, error) {
	var i core.Instance
	if err := tx.Get(store.Instances, id, &i); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return core.Instance{}, core.NotFound("instance", id)
		}
		return core.Instance{}, core.StorageFailure("get instance", err)
	}
	return i, nil
}

func getFund(tx store.Tx, id string) (core.SinkingFund, error) {
	var f core.SinkingFund
	if err := tx.Get(store.SinkingFunds, id, &f); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return core.SinkingFund{}, core.NotFound("sinking fund", id)
		}
		return core.SinkingFund{}, core.StorageFailure("get sinking fund", err)
	}
	return f, nil
}

func getPayment(tx store.Tx, id string) (core.PaymentEvent, error) {
	var p core.PaymentEvent
	if err := tx.Get(store.PaymentEvents, id, &p); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return core.PaymentEvent{}, core.NotFound("payment", id)
		}
		return core.PaymentEvent{}, core.StorageFailure("get payment", err)
	}
	return p, nil
}

func putRecord(tx store.Tx, collection, id string, v any) error {
	if err := tx.Put(collection, id, v); err != nil {
		return core.StorageFailure("put "+collection, err)
	}
	return nil
}

func deleteRecord(tx store.Tx, collection, id string) error {
	if err := tx.Delete(collection, id); err != nil {
		return core.StorageFailure("delete "+collection, err)
	}
	return nil
}

func listAll[T any](tx store.Tx, collection string) ([]T, error) {
	out, err := store.List[T](tx, collection)
	if err != nil {
		return nil, core.StorageFailure("scan "+collection, err)
	}
	return out, nil
}

// instancesForMonth returns every instance materialized in (year, month).
func instancesForMonth(tx store.Tx, year, month int) ([]core.Instance, error) {
	all, err := listAll[core.Instance](tx, store.Instances)
	if err != nil {
		return nil, err
	}
	out := make([]core.Instance, 0, len(all))
	for _, i := range all {
		if i.Year == year && i.Month == month {
			out = append(out, i)
		}
	}
	return out, nil
}

// paymentsByInstance groups every payment event by instance id.
func paymentsByInstance(tx store.Tx) (map[string][]core.PaymentEvent, error) {
	all, err := listAll[core.PaymentEvent](tx, store.PaymentEvents)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]core.PaymentEvent, len(all))
	for _, p := range all {
		out[p.InstanceID] = append(out[p.InstanceID], p)
	}
	return out, nil
}

// sinkingEventsByFund groups every sinking event by fund id.
func sinkingEventsByFund(tx store.Tx) (map[string][]core.SinkingEvent, error) {
	all, err := listAll[core.SinkingEvent](tx, store.SinkingEvents)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]core.SinkingEvent, len(all))
	for _, ev := range all {
		out[ev.FundID] = append(out[ev.FundID], ev)
	}
	return out, nil
}

// getSettings loads process-wide settings, falling back to defaults for
// a fresh store.
func getSettings(tx store.Tx) (core.Settings, error) {
	var s core.Settings
	if err := tx.Get(store.Settings, "settings", &s); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return core.DefaultSettings(), nil
		}
		return core.Settings{}, core.StorageFailure("get settings", err)
	}
	s.Normalize()
	return s, nil
}

func putSettings(tx store.Tx, s core.Settings) error {
	s.Normalize()
	return putRecord(tx, store.Settings, "settings", s)
}

// getMonthSettings loads the cash-start record for a month, or a zero
// one when absent.
func getMonthSettings(tx store.Tx, year, month int) (core.MonthSettings, error) {
	var ms core.MonthSettings
	if err := tx.Get(store.MonthSettings, monthKey(year, month), &ms); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return core.MonthSettings{Year: year, Month: month}, nil
		}
		return core.MonthSettings{}, core.StorageFailure("get month settings", err)
	}
	return ms, nil
}

// appendAudit records one append-only audit entry for an instance.
func appendAudit(tx store.Tx, instanceID string, typ core.AuditEventType, detail map[string]any, at time.Time) error {
	ev := core.InstanceEvent{
		ID:         newID(),
		InstanceID: instanceID,
		Type:       typ,
		Detail:     detail,
		CreatedAt:  at,
	}
	return putRecord(tx, store.InstanceEvents, ev.ID, ev)
}
