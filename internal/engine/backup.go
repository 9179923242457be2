package engine

import (
	"context"
	"time"

	"billbook/internal/core"
	"billbook/internal/store"
)

// AppVersion is stamped into exported snapshots.
const AppVersion = "1.0.0"

// SchemaVersion identifies the snapshot layout. Bump when a collection
// is added or a field changes meaning.
const SchemaVersion = 2

// Snapshot is the full-state backup document. Every collection is
// exported; import tolerates missing arrays so older snapshots restore
// cleanly.
type Snapshot struct {
	App            string               `json:"app"`
	AppVersion     string               `json:"app_version"`
	SchemaVersion  int                  `json:"schema_version"`
	ExportedAt     time.Time            `json:"exported_at"`
	Templates      []core.Template      `json:"templates"`
	Instances      []core.Instance      `json:"instances"`
	PaymentEvents  []core.PaymentEvent  `json:"payment_events"`
	InstanceEvents []core.InstanceEvent `json:"instance_events"`
	SinkingFunds   []core.SinkingFund   `json:"sinking_funds"`
	SinkingEvents  []core.SinkingEvent  `json:"sinking_events"`
	MonthSettings  []core.MonthSettings `json:"month_settings"`
	Settings       core.Settings        `json:"settings"`
}

// Export reads every collection in one consistent view and returns the
// snapshot document.
func (e *Engine) Export(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{
		App:           "billbook",
		AppVersion:    AppVersion,
		SchemaVersion: SchemaVersion,
		ExportedAt:    e.now().UTC(),
	}
	err := e.store.View(ctx, func(tx store.Tx) error {
		var err error
		if snap.Templates, err = listAll[core.Template](tx, store.Templates); err != nil {
			return err
		}
		if snap.Instances, err = listAll[core.Instance](tx, store.Instances); err != nil {
			return err
		}
		if snap.PaymentEvents, err = listAll[core.PaymentEvent](tx, store.PaymentEvents); err != nil {
			return err
		}
		if snap.InstanceEvents, err = listAll[core.InstanceEvent](tx, store.InstanceEvents); err != nil {
			return err
		}
		if snap.SinkingFunds, err = listAll[core.SinkingFund](tx, store.SinkingFunds); err != nil {
			return err
		}
		if snap.SinkingEvents, err = listAll[core.SinkingEvent](tx, store.SinkingEvents); err != nil {
			return err
		}
		if snap.MonthSettings, err = listAll[core.MonthSettings](tx, store.MonthSettings); err != nil {
			return err
		}
		snap.Settings, err = getSettings(tx)
		return err
	})
	if err != nil {
		return Snapshot{}, core.StorageFailure("export backup", err)
	}
	if snap.Templates == nil {
		snap.Templates = []core.Template{}
	}
	if snap.Instances == nil {
		snap.Instances = []core.Instance{}
	}
	if snap.PaymentEvents == nil {
		snap.PaymentEvents = []core.PaymentEvent{}
	}
	if snap.InstanceEvents == nil {
		snap.InstanceEvents = []core.InstanceEvent{}
	}
	if snap.SinkingFunds == nil {
		snap.SinkingFunds = []core.SinkingFund{}
	}
	if snap.SinkingEvents == nil {
		snap.SinkingEvents = []core.SinkingEvent{}
	}
	if snap.MonthSettings == nil {
		snap.MonthSettings = []core.MonthSettings{}
	}
	return snap, nil
}

// Import replaces the entire store contents with the snapshot, in one
// transaction. Records missing an id or created_at get fresh ones;
// records the snapshot does not carry at all default to empty
// collections. A failure during import leaves the previous state
// untouched.
func (e *Engine) Import(ctx context.Context, snap Snapshot) error {
	now := e.now().UTC()
	err := e.store.Update(ctx, func(tx store.Tx) error {
		for _, c := range store.Collections {
			if err := store.Clear(tx, c); err != nil {
				return err
			}
		}
		for _, t := range snap.Templates {
			if t.ID == "" {
				t.ID = newID()
			}
			if t.CreatedAt.IsZero() {
				t.CreatedAt = now
			}
			if t.UpdatedAt.IsZero() {
				t.UpdatedAt = t.CreatedAt
			}
			if err := putRecord(tx, store.Templates, t.ID, t); err != nil {
				return err
			}
		}
		for _, i := range snap.Instances {
			if i.ID == "" {
				i.ID = newID()
			}
			if i.CreatedAt.IsZero() {
				i.CreatedAt = now
			}
			if i.UpdatedAt.IsZero() {
				i.UpdatedAt = i.CreatedAt
			}
			if i.Status == "" {
				i.Status = core.StatusPending
			}
			if err := putRecord(tx, store.Instances, i.ID, i); err != nil {
				return err
			}
		}
		for _, p := range snap.PaymentEvents {
			if p.ID == "" {
				p.ID = newID()
			}
			if p.CreatedAt.IsZero() {
				p.CreatedAt = now
			}
			if err := putRecord(tx, store.PaymentEvents, p.ID, p); err != nil {
				return err
			}
		}
		for _, ev := range snap.InstanceEvents {
			if ev.ID == "" {
				ev.ID = newID()
			}
			if ev.CreatedAt.IsZero() {
				ev.CreatedAt = now
			}
			if err := putRecord(tx, store.InstanceEvents, ev.ID, ev); err != nil {
				return err
			}
		}
		for _, f := range snap.SinkingFunds {
			if f.ID == "" {
				f.ID = newID()
			}
			if f.CreatedAt.IsZero() {
				f.CreatedAt = now
			}
			if f.UpdatedAt.IsZero() {
				f.UpdatedAt = f.CreatedAt
			}
			if err := putRecord(tx, store.SinkingFunds, f.ID, f); err != nil {
				return err
			}
		}
		for _, ev := range snap.SinkingEvents {
			if ev.ID == "" {
				ev.ID = newID()
			}
			if ev.CreatedAt.IsZero() {
				ev.CreatedAt = now
			}
			if err := putRecord(tx, store.SinkingEvents, ev.ID, ev); err != nil {
				return err
			}
		}
		for _, ms := range snap.MonthSettings {
			if err := validateMonth(ms.Year, ms.Month); err != nil {
				return err
			}
			if err := putRecord(tx, store.MonthSettings, monthKey(ms.Year, ms.Month), ms); err != nil {
				return err
			}
		}
		s := snap.Settings
		if s.DefaultSort == "" && s.DueSoonDays == 0 && s.DefaultView == "" && len(s.Categories) == 0 {
			s = core.DefaultSettings()
		}
		return putSettings(tx, s)
	})
	if err != nil {
		return core.StorageFailure("import backup", err)
	}
	e.logger.Info("Imported backup",
		"templates", len(snap.Templates),
		"instances", len(snap.Instances),
		"payments", len(snap.PaymentEvents),
		"funds", len(snap.SinkingFunds))
	e.publish(ctx, "IMPORT_BACKUP", "store", "")
	return nil
}
