package engine

import (
	"context"
	"time"

	"billbook/internal/core"
	"billbook/internal/store"
)

// EnsureMonth guarantees that (year, month) is materialized: every
// active template has its instance for the month and every active
// auto-contributing fund has its contribution recorded. Every month
// read calls this first; it is idempotent by the (template_id, year,
// month) uniqueness check, and concurrent callers for the same month
// collapse into one pass through the single-flight group.
func (e *Engine) EnsureMonth(ctx context.Context, year, month int) error {
	if err := validateMonth(year, month); err != nil {
		return err
	}
	_, err, _ := e.months.Do(monthKey(year, month), func() (any, error) {
		err := e.store.Update(ctx, func(tx store.Tx) error {
			if err := materializeMonth(tx, year, month, e.now().UTC()); err != nil {
				return err
			}
			return autoContributeMonth(tx, year, month)
		})
		if err != nil {
			return nil, core.StorageFailure("ensure month", err)
		}
		return nil, nil
	})
	return err
}

// materializeMonth creates the missing instance for every active
// template. Existing instances are never touched here; snapshot
// overwrites happen only through applyTemplateToMonth.
func materializeMonth(tx store.Tx, year, month int, now time.Time) error {
	templates, err := listAll[core.Template](tx, store.Templates)
	if err != nil {
		return err
	}
	existing, err := instancesForMonth(tx, year, month)
	if err != nil {
		return err
	}
	byTemplate := make(map[string]struct{}, len(existing))
	for _, i := range existing {
		byTemplate[i.TemplateID] = struct{}{}
	}

	for _, t := range templates {
		if !t.Active {
			continue
		}
		if _, ok := byTemplate[t.ID]; ok {
			continue
		}
		inst := core.Instance{
			ID:         newID(),
			TemplateID: t.ID,
			Year:       year,
			Month:      month,
			Status:     core.StatusPending,
			Note:       t.DefaultNote,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		inst.Snapshot(t)
		if err := putRecord(tx, store.Instances, inst.ID, inst); err != nil {
			return err
		}
		detail := map[string]any{"template_id": t.ID, "year": year, "month": month}
		if err := appendAudit(tx, inst.ID, core.AuditCreated, detail, now); err != nil {
			return err
		}
	}
	return nil
}

// autoContributeMonth records one contribution dated the first of the
// month for every active auto-contributing fund that does not already
// have one in that month. The existence check is what makes repeated
// invocation idempotent; callers must come through EnsureMonth so no
// two passes for the same month interleave.
func autoContributeMonth(tx store.Tx, year, month int) error {
	funds, err := listAll[core.SinkingFund](tx, store.SinkingFunds)
	if err != nil {
		return err
	}
	eventsByFund, err := sinkingEventsByFund(tx)
	if err != nil {
		return err
	}
	ref := core.NewDate(year, month, 1)

	for _, f := range funds {
		if !f.Active || !f.AutoContribute {
			continue
		}
		events := eventsByFund[f.ID]
		already := false
		for _, ev := range events {
			if ev.Type == core.Contribution && ev.Date.InMonth(year, month) {
				already = true
				break
			}
		}
		if already {
			continue
		}
		contrib := ProjectFund(f, fundBalance(events), ref).MonthlyContrib
		if !contrib.IsPositive() {
			continue
		}
		ev := core.SinkingEvent{
			ID:        newID(),
			FundID:    f.ID,
			Type:      core.Contribution,
			Amount:    contrib,
			Date:      ref,
			Note:      "auto contribution",
			CreatedAt: ref.Time,
		}
		if err := putRecord(tx, store.SinkingEvents, ev.ID, ev); err != nil {
			return err
		}
	}
	return nil
}

// applyTemplateToMonth ensures the month is materialized and then
// overwrites the snapshot fields of the template's instance from the
// current template state. This is the only path by which a template
// edit reaches an already-materialized instance, and it is invoked
// explicitly, never implicitly on read.
func applyTemplateToMonth(tx store.Tx, t core.Template, year, month int, now time.Time) error {
	if !t.Active {
		return nil
	}
	if err := materializeMonth(tx, year, month, now); err != nil {
		return err
	}
	instances, err := instancesForMonth(tx, year, month)
	if err != nil {
		return err
	}
	for _, inst := range instances {
		if inst.TemplateID != t.ID {
			continue
		}
		before := map[string]any{
			"name": inst.Name, "category": inst.Category,
			"amount": inst.Amount, "due_date": inst.DueDate.String(),
			"autopay": inst.Autopay, "essential": inst.Essential,
		}
		inst.Snapshot(t)
		inst.UpdatedAt = now
		if err := putRecord(tx, store.Instances, inst.ID, inst); err != nil {
			return err
		}
		after := map[string]any{
			"name": inst.Name, "category": inst.Category,
			"amount": inst.Amount, "due_date": inst.DueDate.String(),
			"autopay": inst.Autopay, "essential": inst.Essential,
		}
		return appendAudit(tx, inst.ID, core.AuditEdited,
			map[string]any{"before": before, "after": after}, now)
	}
	return nil
}

// deleteTemplateFrom removes the template and cascades to its instances
// at or after the cutoff (all instances when cutoff is nil), deleting
// their payment events with them. Instances strictly before the cutoff,
// and their payments, stay untouched. Audit entries are append-only and
// survive the cascade.
func deleteTemplateFrom(tx store.Tx, templateID string, cutoff *MonthRef) error {
	if err := deleteRecord(tx, store.Templates, templateID); err != nil {
		return err
	}
	instances, err := listAll[core.Instance](tx, store.Instances)
	if err != nil {
		return err
	}
	payments, err := listAll[core.PaymentEvent](tx, store.PaymentEvents)
	if err != nil {
		return err
	}

	doomed := make(map[string]struct{})
	for _, inst := range instances {
		if inst.TemplateID != templateID {
			continue
		}
		if cutoff != nil && !core.MonthOnOrAfter(inst.Year, inst.Month, cutoff.Year, cutoff.Month) {
			continue
		}
		doomed[inst.ID] = struct{}{}
		if err := deleteRecord(tx, store.Instances, inst.ID); err != nil {
			return err
		}
	}
	for _, p := range payments {
		if _, ok := doomed[p.InstanceID]; ok {
			if err := deleteRecord(tx, store.PaymentEvents, p.ID); err != nil {
				return err
			}
		}
	}
	return nil
}
