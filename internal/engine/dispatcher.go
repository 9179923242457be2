package engine

import (
	"context"
	"strings"
	"time"

	"billbook/internal/core"
	"billbook/internal/store"
)

// Dispatch validates and executes one command. Validation happens
// before any write; every command's mutations run in a single store
// transaction, so a storage failure mid-command leaves no partial
// state. The updated, accounting-attached entity is returned.
func (e *Engine) Dispatch(ctx context.Context, a Action) (any, error) {
	result, kind, id, err := e.dispatch(ctx, a)
	if err != nil {
		return nil, err
	}
	e.logger.Info("Dispatched action", "action", string(a.Type), "entity", kind, "id", id)
	e.publish(ctx, string(a.Type), kind, id)
	return result, nil
}

func (e *Engine) dispatch(ctx context.Context, a Action) (result any, kind, id string, err error) {
	switch a.Type {
	case ActionMarkPaid:
		return e.markPaid(ctx, a.Payload)
	case ActionMarkPending:
		return e.markPending(ctx, a.Payload)
	case ActionSkipInstance:
		return e.skipInstance(ctx, a.Payload)
	case ActionAddPayment:
		return e.addPayment(ctx, a.Payload)
	case ActionUndoPayment:
		return e.undoPayment(ctx, a.Payload)
	case ActionUpdateInstanceFields:
		return e.updateInstanceFields(ctx, a.Payload)
	case ActionCreateTemplate:
		return e.createTemplate(ctx, a.Payload)
	case ActionUpdateTemplate:
		return e.updateTemplate(ctx, a.Payload)
	case ActionArchiveTemplate:
		return e.archiveTemplate(ctx, a.Payload)
	case ActionDeleteTemplate:
		return e.deleteTemplate(ctx, a.Payload)
	case ActionApplyTemplates:
		return e.applyTemplates(ctx, a.Payload)
	case ActionSetCashStart:
		return e.setCashStart(ctx, a.Payload)
	case ActionCreateFund:
		return e.createFund(ctx, a.Payload)
	case ActionUpdateFund:
		return e.updateFund(ctx, a.Payload)
	case ActionArchiveFund:
		return e.archiveFund(ctx, a.Payload)
	case ActionDeleteFund:
		return e.deleteFund(ctx, a.Payload)
	case ActionAddSinkingEvent:
		return e.addSinkingEvent(ctx, a.Payload)
	case ActionMarkFundPaid:
		return e.markFundPaid(ctx, a.Payload)
	case ActionGenerateMonth:
		return e.generateMonth(ctx, a.Payload)
	default:
		return nil, "", "", core.Invalidf("unknown action type %q", a.Type)
	}
}

// update wraps a command body in one store transaction, converting raw
// storage failures into StorageError.
func (e *Engine) update(ctx context.Context, op string, fn func(tx store.Tx, now time.Time) error) error {
	now := e.now().UTC()
	err := e.store.Update(ctx, func(tx store.Tx) error {
		return fn(tx, now)
	})
	if err != nil {
		return core.StorageFailure(op, err)
	}
	return nil
}

// markPaid finishes the balance: whatever remains due is recorded as
// one payment event, then the instance is marked paid. No exact prior
// payment sum is required.
func (e *Engine) markPaid(ctx context.Context, raw []byte) (any, string, string, error) {
	p, err := decodePayload[markPaidPayload](raw)
	if err != nil {
		return nil, "", "", err
	}
	if err := p.validate(); err != nil {
		return nil, "", "", err
	}
	paidDate, _ := parseOptionalDate("paid_date", p.PaidDate)
	if paidDate.IsZero() {
		paidDate = e.today()
	}

	var view InstanceView
	err = e.update(ctx, "mark paid", func(tx store.Tx, now time.Time) error {
		inst, err := getInstance(tx, p.InstanceID)
		if err != nil {
			return err
		}
		attached, err := attachOne(tx, inst)
		if err != nil {
			return err
		}
		if attached.AmountRemaining.IsPositive() {
			pay := core.PaymentEvent{
				ID:         newID(),
				InstanceID: inst.ID,
				Amount:     attached.AmountRemaining,
				PaidDate:   paidDate,
				CreatedAt:  now,
			}
			if err := putRecord(tx, store.PaymentEvents, pay.ID, pay); err != nil {
				return err
			}
		}
		before := inst.Status
		inst.Status = core.StatusPaid
		inst.PaidDate = paidDate
		inst.UpdatedAt = now
		if err := putRecord(tx, store.Instances, inst.ID, inst); err != nil {
			return err
		}
		if err := appendAudit(tx, inst.ID, core.AuditMarkedDone, map[string]any{
			"before": string(before), "after": string(inst.Status),
			"paid_date": paidDate.String(),
		}, now); err != nil {
			return err
		}
		view, err = attachOne(tx, inst)
		return err
	})
	if err != nil {
		return nil, "", "", err
	}
	return view, "instance", p.InstanceID, nil
}

// markPending resets the instance to pending, clearing paid_date.
// Recorded payments are kept; use UNDO_PAYMENT to remove them.
func (e *Engine) markPending(ctx context.Context, raw []byte) (any, string, string, error) {
	p, err := decodePayload[markPendingPayload](raw)
	if err != nil {
		return nil, "", "", err
	}
	if p.InstanceID == "" {
		return nil, "", "", core.InvalidField("instance_id", "is required")
	}

	var view InstanceView
	err = e.update(ctx, "mark pending", func(tx store.Tx, now time.Time) error {
		inst, err := getInstance(tx, p.InstanceID)
		if err != nil {
			return err
		}
		before := inst.Status
		inst.Status = core.StatusPending
		inst.PaidDate = core.Date{}
		inst.UpdatedAt = now
		if err := putRecord(tx, store.Instances, inst.ID, inst); err != nil {
			return err
		}
		typ := core.AuditStatusChanged
		if before == core.StatusSkipped {
			typ = core.AuditUnskipped
		}
		if err := appendAudit(tx, inst.ID, typ, map[string]any{
			"before": string(before), "after": string(inst.Status),
		}, now); err != nil {
			return err
		}
		view, err = attachOne(tx, inst)
		return err
	})
	if err != nil {
		return nil, "", "", err
	}
	return view, "instance", p.InstanceID, nil
}

func (e *Engine) skipInstance(ctx context.Context, raw []byte) (any, string, string, error) {
	p, err := decodePayload[skipInstancePayload](raw)
	if err != nil {
		return nil, "", "", err
	}
	if p.InstanceID == "" {
		return nil, "", "", core.InvalidField("instance_id", "is required")
	}

	var view InstanceView
	err = e.update(ctx, "skip instance", func(tx store.Tx, now time.Time) error {
		inst, err := getInstance(tx, p.InstanceID)
		if err != nil {
			return err
		}
		before := inst.Status
		inst.Status = core.StatusSkipped
		inst.PaidDate = core.Date{}
		inst.UpdatedAt = now
		if err := putRecord(tx, store.Instances, inst.ID, inst); err != nil {
			return err
		}
		if err := appendAudit(tx, inst.ID, core.AuditSkipped, map[string]any{
			"before": string(before), "after": string(inst.Status),
		}, now); err != nil {
			return err
		}
		view, err = attachOne(tx, inst)
		return err
	})
	if err != nil {
		return nil, "", "", err
	}
	return view, "instance", p.InstanceID, nil
}

// addPayment records one partial or full payment. When the remainder
// reaches zero the instance flips to paid so status and paid_date stay
// consistent with the derived amounts.
func (e *Engine) addPayment(ctx context.Context, raw []byte) (any, string, string, error) {
	p, err := decodePayload[addPaymentPayload](raw)
	if err != nil {
		return nil, "", "", err
	}
	if err := p.validate(); err != nil {
		return nil, "", "", err
	}
	paidDate, _ := parseOptionalDate("paid_date", p.PaidDate)
	if paidDate.IsZero() {
		paidDate = e.today()
	}

	var view InstanceView
	err = e.update(ctx, "add payment", func(tx store.Tx, now time.Time) error {
		inst, err := getInstance(tx, p.InstanceID)
		if err != nil {
			return err
		}
		pay := core.PaymentEvent{
			ID:         newID(),
			InstanceID: inst.ID,
			Amount:     p.Amount,
			PaidDate:   paidDate,
			CreatedAt:  now,
		}
		if err := pay.Validate(); err != nil {
			return err
		}
		if err := putRecord(tx, store.PaymentEvents, pay.ID, pay); err != nil {
			return err
		}
		attached, err := attachOne(tx, inst)
		if err != nil {
			return err
		}
		if attached.AmountRemaining.IsZero() && inst.Status != core.StatusPaid {
			inst.Status = core.StatusPaid
			inst.PaidDate = paidDate
		}
		inst.UpdatedAt = now
		if err := putRecord(tx, store.Instances, inst.ID, inst); err != nil {
			return err
		}
		if err := appendAudit(tx, inst.ID, core.AuditLogUpdate, map[string]any{
			"amount": p.Amount, "paid_date": paidDate.String(),
		}, now); err != nil {
			return err
		}
		view, err = attachOne(tx, inst)
		return err
	})
	if err != nil {
		return nil, "", "", err
	}
	return view, "instance", p.InstanceID, nil
}

// undoPayment removes one payment event and re-derives the instance
// totals; a paid instance with a reopened balance drops back to
// pending.
func (e *Engine) undoPayment(ctx context.Context, raw []byte) (any, string, string, error) {
	p, err := decodePayload[undoPaymentPayload](raw)
	if err != nil {
		return nil, "", "", err
	}
	if p.PaymentID == "" {
		return nil, "", "", core.InvalidField("payment_id", "is required")
	}

	var view InstanceView
	var instanceID string
	err = e.update(ctx, "undo payment", func(tx store.Tx, now time.Time) error {
		pay, err := getPayment(tx, p.PaymentID)
		if err != nil {
			return err
		}
		instanceID = pay.InstanceID
		if err := deleteRecord(tx, store.PaymentEvents, pay.ID); err != nil {
			return err
		}
		inst, err := getInstance(tx, pay.InstanceID)
		if err != nil {
			return err
		}
		attached, err := attachOne(tx, inst)
		if err != nil {
			return err
		}
		if inst.Status == core.StatusPaid && attached.AmountRemaining.IsPositive() {
			inst.Status = core.StatusPending
			inst.PaidDate = core.Date{}
		}
		inst.UpdatedAt = now
		if err := putRecord(tx, store.Instances, inst.ID, inst); err != nil {
			return err
		}
		if err := appendAudit(tx, inst.ID, core.AuditUpdateRemoved, map[string]any{
			"payment_id": pay.ID, "amount": pay.Amount,
		}, now); err != nil {
			return err
		}
		view, err = attachOne(tx, inst)
		return err
	})
	if err != nil {
		return nil, "", "", err
	}
	return view, "instance", instanceID, nil
}

// UndoAllPayments clears every payment for an instance and resets it to
// pending. Backs the /instances/{id}/undo-paid endpoint.
func (e *Engine) UndoAllPayments(ctx context.Context, instanceID string) (InstanceView, error) {
	if instanceID == "" {
		return InstanceView{}, core.InvalidField("instance_id", "is required")
	}
	var view InstanceView
	err := e.update(ctx, "undo all payments", func(tx store.Tx, now time.Time) error {
		inst, err := getInstance(tx, instanceID)
		if err != nil {
			return err
		}
		payments, err := paymentsByInstance(tx)
		if err != nil {
			return err
		}
		for _, pay := range payments[inst.ID] {
			if err := deleteRecord(tx, store.PaymentEvents, pay.ID); err != nil {
				return err
			}
		}
		before := inst.Status
		inst.Status = core.StatusPending
		inst.PaidDate = core.Date{}
		inst.UpdatedAt = now
		if err := putRecord(tx, store.Instances, inst.ID, inst); err != nil {
			return err
		}
		if err := appendAudit(tx, inst.ID, core.AuditUpdateRemoved, map[string]any{
			"before": string(before), "after": string(inst.Status),
			"cleared_payments": len(payments[inst.ID]),
		}, now); err != nil {
			return err
		}
		view, err = attachOne(tx, inst)
		return err
	})
	if err != nil {
		return InstanceView{}, err
	}
	e.publish(ctx, "UNDO_PAID", "instance", instanceID)
	return view, nil
}

func (e *Engine) updateInstanceFields(ctx context.Context, raw []byte) (any, string, string, error) {
	p, err := decodePayload[updateInstancePayload](raw)
	if err != nil {
		return nil, "", "", err
	}
	if err := p.validate(); err != nil {
		return nil, "", "", err
	}

	var view InstanceView
	err = e.update(ctx, "update instance", func(tx store.Tx, now time.Time) error {
		inst, err := getInstance(tx, p.InstanceID)
		if err != nil {
			return err
		}
		before := inst

		if p.Name != nil {
			inst.Name = strings.TrimSpace(*p.Name)
		}
		if p.Category != nil {
			inst.Category = strings.TrimSpace(*p.Category)
		}
		if p.Amount != nil {
			inst.Amount = *p.Amount
		}
		if p.DueDate != nil {
			d, _ := parseOptionalDate("due_date", *p.DueDate)
			inst.DueDate = d
		}
		if p.Autopay != nil {
			inst.Autopay = *p.Autopay
		}
		if p.Essential != nil {
			inst.Essential = *p.Essential
		}
		if p.Note != nil {
			inst.Note = *p.Note
		}
		if p.Status != nil {
			inst.Status = core.InstanceStatus(*p.Status)
		}
		paidDateSet := false
		if p.PaidDate != nil {
			d, _ := parseOptionalDate("paid_date", *p.PaidDate)
			inst.PaidDate = d
			paidDateSet = !d.IsZero()
		}

		// Keep status and paid_date consistent: paid implies a date,
		// pending and skipped imply none unless one was set explicitly.
		if inst.Status == core.StatusPaid && inst.PaidDate.IsZero() {
			inst.PaidDate = e.today()
		}
		if inst.Status != core.StatusPaid && !paidDateSet {
			inst.PaidDate = core.Date{}
		}
		inst.UpdatedAt = now

		if err := putRecord(tx, store.Instances, inst.ID, inst); err != nil {
			return err
		}
		if err := auditInstanceEdit(tx, before, inst, p, now); err != nil {
			return err
		}
		view, err = attachOne(tx, inst)
		return err
	})
	if err != nil {
		return nil, "", "", err
	}
	return view, "instance", p.InstanceID, nil
}

// auditInstanceEdit classifies a field update for the audit log: a
// status flip and a note change get their dedicated event types, any
// other change is a plain edit.
func auditInstanceEdit(tx store.Tx, before, after core.Instance, p updateInstancePayload, now time.Time) error {
	if p.Status != nil && before.Status != after.Status {
		typ := core.AuditStatusChanged
		switch after.Status {
		case core.StatusSkipped:
			typ = core.AuditSkipped
		case core.StatusPending:
			if before.Status == core.StatusSkipped {
				typ = core.AuditUnskipped
			}
		}
		if err := appendAudit(tx, after.ID, typ, map[string]any{
			"before": string(before.Status), "after": string(after.Status),
		}, now); err != nil {
			return err
		}
	}
	if p.Note != nil && before.Note != after.Note {
		if err := appendAudit(tx, after.ID, core.AuditNoteUpdated, map[string]any{
			"before": before.Note, "after": after.Note,
		}, now); err != nil {
			return err
		}
	}
	if p.Name != nil || p.Category != nil || p.Amount != nil || p.DueDate != nil ||
		p.Autopay != nil || p.Essential != nil {
		return appendAudit(tx, after.ID, core.AuditEdited, map[string]any{
			"before": map[string]any{
				"name": before.Name, "category": before.Category,
				"amount": before.Amount, "due_date": before.DueDate.String(),
			},
			"after": map[string]any{
				"name": after.Name, "category": after.Category,
				"amount": after.Amount, "due_date": after.DueDate.String(),
			},
		}, now)
	}
	return nil
}

func (e *Engine) createTemplate(ctx context.Context, raw []byte) (any, string, string, error) {
	p, err := decodePayload[createTemplatePayload](raw)
	if err != nil {
		return nil, "", "", err
	}

	t := core.Template{
		ID:              newID(),
		Name:            strings.TrimSpace(p.Name),
		Category:        strings.TrimSpace(p.Category),
		AmountDefault:   p.AmountDefault,
		DueDay:          p.DueDay,
		Autopay:         p.Autopay,
		Essential:       true,
		Active:          true,
		DefaultNote:     p.DefaultNote,
		PayeeKey:        p.PayeeKey,
		AmountTolerance: p.AmountTolerance,
	}
	if p.Essential != nil {
		t.Essential = *p.Essential
	}
	if p.Active != nil {
		t.Active = *p.Active
	}
	if err := t.Validate(); err != nil {
		return nil, "", "", err
	}
	if p.Year != 0 || p.Month != 0 {
		if err := validateMonth(p.Year, p.Month); err != nil {
			return nil, "", "", err
		}
	}

	err = e.update(ctx, "create template", func(tx store.Tx, now time.Time) error {
		t.CreatedAt = now
		t.UpdatedAt = now
		if err := putRecord(tx, store.Templates, t.ID, t); err != nil {
			return err
		}
		if p.Year != 0 || p.Month != 0 {
			return applyTemplateToMonth(tx, t, p.Year, p.Month, now)
		}
		return nil
	})
	if err != nil {
		return nil, "", "", err
	}
	return t, "template", t.ID, nil
}

// updateTemplate mutates the template and, when a month is named,
// re-applies the snapshot to that month's instance. Past instances are
// never touched implicitly.
func (e *Engine) updateTemplate(ctx context.Context, raw []byte) (any, string, string, error) {
	p, err := decodePayload[updateTemplatePayload](raw)
	if err != nil {
		return nil, "", "", err
	}
	if p.TemplateID == "" {
		return nil, "", "", core.InvalidField("template_id", "is required")
	}
	if p.Year != 0 || p.Month != 0 {
		if err := validateMonth(p.Year, p.Month); err != nil {
			return nil, "", "", err
		}
	}

	var t core.Template
	err = e.update(ctx, "update template", func(tx store.Tx, now time.Time) error {
		var err error
		t, err = getTemplate(tx, p.TemplateID)
		if err != nil {
			return err
		}
		if p.Name != nil {
			t.Name = strings.TrimSpace(*p.Name)
		}
		if p.Category != nil {
			t.Category = strings.TrimSpace(*p.Category)
		}
		if p.AmountDefault != nil {
			t.AmountDefault = *p.AmountDefault
		}
		if p.DueDay != nil {
			t.DueDay = *p.DueDay
		}
		if p.Autopay != nil {
			t.Autopay = *p.Autopay
		}
		if p.Essential != nil {
			t.Essential = *p.Essential
		}
		if p.Active != nil {
			t.Active = *p.Active
		}
		if p.DefaultNote != nil {
			t.DefaultNote = *p.DefaultNote
		}
		if p.PayeeKey != nil {
			t.PayeeKey = *p.PayeeKey
		}
		if p.AmountTolerance != nil {
			t.AmountTolerance = *p.AmountTolerance
		}
		if err := t.Validate(); err != nil {
			return err
		}
		t.UpdatedAt = now
		if err := putRecord(tx, store.Templates, t.ID, t); err != nil {
			return err
		}
		if p.Year != 0 || p.Month != 0 {
			return applyTemplateToMonth(tx, t, p.Year, p.Month, now)
		}
		return nil
	})
	if err != nil {
		return nil, "", "", err
	}
	return t, "template", t.ID, nil
}

// archiveTemplate stops future materialization without deleting
// history.
func (e *Engine) archiveTemplate(ctx context.Context, raw []byte) (any, string, string, error) {
	p, err := decodePayload[templateIDPayload](raw)
	if err != nil {
		return nil, "", "", err
	}
	if p.TemplateID == "" {
		return nil, "", "", core.InvalidField("template_id", "is required")
	}

	var t core.Template
	err = e.update(ctx, "archive template", func(tx store.Tx, now time.Time) error {
		var err error
		t, err = getTemplate(tx, p.TemplateID)
		if err != nil {
			return err
		}
		t.Active = false
		t.UpdatedAt = now
		return putRecord(tx, store.Templates, t.ID, t)
	})
	if err != nil {
		return nil, "", "", err
	}
	return t, "template", t.ID, nil
}

func (e *Engine) deleteTemplate(ctx context.Context, raw []byte) (any, string, string, error) {
	p, err := decodePayload[deleteTemplatePayload](raw)
	if err != nil {
		return nil, "", "", err
	}
	if p.TemplateID == "" {
		return nil, "", "", core.InvalidField("template_id", "is required")
	}
	var cutoff *MonthRef
	if p.Year != 0 || p.Month != 0 {
		if err := validateMonth(p.Year, p.Month); err != nil {
			return nil, "", "", err
		}
		cutoff = &MonthRef{Year: p.Year, Month: p.Month}
	}

	err = e.update(ctx, "delete template", func(tx store.Tx, now time.Time) error {
		if _, err := getTemplate(tx, p.TemplateID); err != nil {
			return err
		}
		return deleteTemplateFrom(tx, p.TemplateID, cutoff)
	})
	if err != nil {
		return nil, "", "", err
	}
	return map[string]any{"deleted": p.TemplateID}, "template", p.TemplateID, nil
}

// applyTemplates re-applies every active template's snapshot to the
// named month.
func (e *Engine) applyTemplates(ctx context.Context, raw []byte) (any, string, string, error) {
	p, err := decodePayload[monthPayload](raw)
	if err != nil {
		return nil, "", "", err
	}
	if err := validateMonth(p.Year, p.Month); err != nil {
		return nil, "", "", err
	}

	var views []InstanceView
	err = e.update(ctx, "apply templates", func(tx store.Tx, now time.Time) error {
		templates, err := listAll[core.Template](tx, store.Templates)
		if err != nil {
			return err
		}
		for _, t := range templates {
			if err := applyTemplateToMonth(tx, t, p.Year, p.Month, now); err != nil {
				return err
			}
		}
		instances, err := instancesForMonth(tx, p.Year, p.Month)
		if err != nil {
			return err
		}
		views, err = attachPayments(tx, instances)
		return err
	})
	if err != nil {
		return nil, "", "", err
	}
	sortInstances(views)
	return views, "month", monthKey(p.Year, p.Month), nil
}

func (e *Engine) setCashStart(ctx context.Context, raw []byte) (any, string, string, error) {
	p, err := decodePayload[setCashStartPayload](raw)
	if err != nil {
		return nil, "", "", err
	}
	if err := validateMonth(p.Year, p.Month); err != nil {
		return nil, "", "", err
	}
	if p.Amount.Cents < 0 {
		return nil, "", "", core.InvalidField("amount", "must not be negative")
	}

	ms := core.MonthSettings{Year: p.Year, Month: p.Month, CashStart: p.Amount}
	err = e.update(ctx, "set cash start", func(tx store.Tx, now time.Time) error {
		return putRecord(tx, store.MonthSettings, monthKey(p.Year, p.Month), ms)
	})
	if err != nil {
		return nil, "", "", err
	}
	return ms, "month_settings", monthKey(p.Year, p.Month), nil
}

func (e *Engine) createFund(ctx context.Context, raw []byte) (any, string, string, error) {
	p, err := decodePayload[createFundPayload](raw)
	if err != nil {
		return nil, "", "", err
	}
	due, err := parseOptionalDate("due_date", p.DueDate)
	if err != nil {
		return nil, "", "", err
	}

	f := core.SinkingFund{
		ID:             newID(),
		Name:           strings.TrimSpace(p.Name),
		Category:       strings.TrimSpace(p.Category),
		TargetAmount:   p.TargetAmount,
		DueDate:        due,
		Cadence:        p.Cadence,
		Essential:      p.Essential,
		Active:         true,
		AutoContribute: p.AutoContribute,
	}
	if p.Active != nil {
		f.Active = *p.Active
	}
	if err := f.Validate(); err != nil {
		return nil, "", "", err
	}

	err = e.update(ctx, "create fund", func(tx store.Tx, now time.Time) error {
		f.CreatedAt = now
		f.UpdatedAt = now
		return putRecord(tx, store.SinkingFunds, f.ID, f)
	})
	if err != nil {
		return nil, "", "", err
	}
	return ProjectFund(f, core.Money{}, e.monthStart()), "sinking_fund", f.ID, nil
}

func (e *Engine) updateFund(ctx context.Context, raw []byte) (any, string, string, error) {
	p, err := decodePayload[updateFundPayload](raw)
	if err != nil {
		return nil, "", "", err
	}
	if p.FundID == "" {
		return nil, "", "", core.InvalidField("fund_id", "is required")
	}
	if p.DueDate != nil {
		if _, err := parseOptionalDate("due_date", *p.DueDate); err != nil {
			return nil, "", "", err
		}
	}

	var view FundView
	err = e.update(ctx, "update fund", func(tx store.Tx, now time.Time) error {
		f, err := getFund(tx, p.FundID)
		if err != nil {
			return err
		}
		if p.Name != nil {
			f.Name = strings.TrimSpace(*p.Name)
		}
		if p.Category != nil {
			f.Category = strings.TrimSpace(*p.Category)
		}
		if p.TargetAmount != nil {
			f.TargetAmount = *p.TargetAmount
		}
		if p.DueDate != nil {
			d, _ := parseOptionalDate("due_date", *p.DueDate)
			f.DueDate = d
		}
		if p.Cadence != nil {
			f.Cadence = *p.Cadence
		}
		if p.Essential != nil {
			f.Essential = *p.Essential
		}
		if p.Active != nil {
			f.Active = *p.Active
		}
		if p.AutoContribute != nil {
			f.AutoContribute = *p.AutoContribute
		}
		if err := f.Validate(); err != nil {
			return err
		}
		f.UpdatedAt = now
		if err := putRecord(tx, store.SinkingFunds, f.ID, f); err != nil {
			return err
		}
		view, err = e.projectFundTx(tx, f)
		return err
	})
	if err != nil {
		return nil, "", "", err
	}
	return view, "sinking_fund", p.FundID, nil
}

func (e *Engine) archiveFund(ctx context.Context, raw []byte) (any, string, string, error) {
	p, err := decodePayload[fundIDPayload](raw)
	if err != nil {
		return nil, "", "", err
	}
	if p.FundID == "" {
		return nil, "", "", core.InvalidField("fund_id", "is required")
	}

	var view FundView
	err = e.update(ctx, "archive fund", func(tx store.Tx, now time.Time) error {
		f, err := getFund(tx, p.FundID)
		if err != nil {
			return err
		}
		f.Active = false
		f.UpdatedAt = now
		if err := putRecord(tx, store.SinkingFunds, f.ID, f); err != nil {
			return err
		}
		view, err = e.projectFundTx(tx, f)
		return err
	})
	if err != nil {
		return nil, "", "", err
	}
	return view, "sinking_fund", p.FundID, nil
}

// deleteFund removes the fund and its entire event history.
func (e *Engine) deleteFund(ctx context.Context, raw []byte) (any, string, string, error) {
	p, err := decodePayload[fundIDPayload](raw)
	if err != nil {
		return nil, "", "", err
	}
	if p.FundID == "" {
		return nil, "", "", core.InvalidField("fund_id", "is required")
	}

	err = e.update(ctx, "delete fund", func(tx store.Tx, now time.Time) error {
		if _, err := getFund(tx, p.FundID); err != nil {
			return err
		}
		if err := deleteRecord(tx, store.SinkingFunds, p.FundID); err != nil {
			return err
		}
		events, err := sinkingEventsByFund(tx)
		if err != nil {
			return err
		}
		for _, ev := range events[p.FundID] {
			if err := deleteRecord(tx, store.SinkingEvents, ev.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, "", "", err
	}
	return map[string]any{"deleted": p.FundID}, "sinking_fund", p.FundID, nil
}

func (e *Engine) addSinkingEvent(ctx context.Context, raw []byte) (any, string, string, error) {
	p, err := decodePayload[addSinkingEventPayload](raw)
	if err != nil {
		return nil, "", "", err
	}
	if err := p.validate(); err != nil {
		return nil, "", "", err
	}
	date, _ := parseOptionalDate("date", p.Date)

	var view FundView
	err = e.update(ctx, "add sinking event", func(tx store.Tx, now time.Time) error {
		f, err := getFund(tx, p.FundID)
		if err != nil {
			return err
		}
		ev := core.SinkingEvent{
			ID:        newID(),
			FundID:    f.ID,
			Type:      core.SinkingEventType(p.Type),
			Amount:    p.Amount,
			Date:      date,
			Note:      p.Note,
			CreatedAt: now,
		}
		if err := ev.Validate(); err != nil {
			return err
		}
		if err := putRecord(tx, store.SinkingEvents, ev.ID, ev); err != nil {
			return err
		}
		view, err = e.projectFundTx(tx, f)
		return err
	})
	if err != nil {
		return nil, "", "", err
	}
	return view, "sinking_fund", p.FundID, nil
}

// markFundPaid records a withdrawal for the requested (or full target)
// amount and rolls the fund's due date forward by one cadence cycle.
// This is how a recurring fund resets after its bill is paid. The
// rollover happens even on partial withdrawal amounts.
func (e *Engine) markFundPaid(ctx context.Context, raw []byte) (any, string, string, error) {
	p, err := decodePayload[markFundPaidPayload](raw)
	if err != nil {
		return nil, "", "", err
	}
	if p.FundID == "" {
		return nil, "", "", core.InvalidField("fund_id", "is required")
	}
	if p.Amount != nil && !p.Amount.IsPositive() {
		return nil, "", "", core.InvalidField("amount", "must be greater than zero")
	}
	date, err := parseOptionalDate("date", p.Date)
	if err != nil {
		return nil, "", "", err
	}
	if date.IsZero() {
		date = e.today()
	}

	var view FundView
	err = e.update(ctx, "mark fund paid", func(tx store.Tx, now time.Time) error {
		f, err := getFund(tx, p.FundID)
		if err != nil {
			return err
		}
		amount := f.TargetAmount
		if p.Amount != nil {
			amount = *p.Amount
		}
		if !amount.IsPositive() {
			return core.InvalidField("amount", "must be greater than zero")
		}
		ev := core.SinkingEvent{
			ID:        newID(),
			FundID:    f.ID,
			Type:      core.Withdrawal,
			Amount:    amount,
			Date:      date,
			Note:      "fund paid",
			CreatedAt: now,
		}
		if err := putRecord(tx, store.SinkingEvents, ev.ID, ev); err != nil {
			return err
		}
		if !f.DueDate.IsZero() {
			y, m := core.AddMonths(f.DueDate.Year(), f.DueDate.Month(), f.CadenceMonths())
			day := core.ClampDay(f.DueDate.Day(), y, m)
			f.DueDate = core.NewDate(y, m, day)
		}
		f.UpdatedAt = now
		if err := putRecord(tx, store.SinkingFunds, f.ID, f); err != nil {
			return err
		}
		view, err = e.projectFundTx(tx, f)
		return err
	})
	if err != nil {
		return nil, "", "", err
	}
	return view, "sinking_fund", p.FundID, nil
}

// generateMonth is the explicit materialization command. It goes
// through EnsureMonth so it shares the single-flight guard with lazy
// reads.
func (e *Engine) generateMonth(ctx context.Context, raw []byte) (any, string, string, error) {
	p, err := decodePayload[monthPayload](raw)
	if err != nil {
		return nil, "", "", err
	}
	views, err := e.MonthInstances(ctx, p.Year, p.Month)
	if err != nil {
		return nil, "", "", err
	}
	return views, "month", monthKey(p.Year, p.Month), nil
}

// projectFundTx projects a fund against the current month using the
// freshest event history in the transaction.
func (e *Engine) projectFundTx(tx store.Tx, f core.SinkingFund) (FundView, error) {
	events, err := sinkingEventsByFund(tx)
	if err != nil {
		return FundView{}, err
	}
	return ProjectFund(f, fundBalance(events[f.ID]), e.monthStart()), nil
}

func (e *Engine) monthStart() core.Date {
	t := e.now().UTC()
	return core.NewDate(t.Year(), int(t.Month()), 1)
}
