package engine

import (
	"context"
	"math"
	"sort"
	"strings"

	"billbook/internal/core"
	"billbook/internal/store"
)

// MonthRef names one (year, month) pair.
type MonthRef struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// InstanceView is an instance augmented with its derived payment
// amounts. Paid and remaining are a pure function of store state at
// read time, so amount_paid + amount_remaining always equals the
// amount due.
type InstanceView struct {
	core.Instance
	AmountPaid      core.Money `json:"amount_paid"`
	AmountRemaining core.Money `json:"amount_remaining"`
}

// Summary is the month-level accounting roll-up. Money is accumulated
// in cents and divided only for the daily/weekly output figures.
type Summary struct {
	Year            int        `json:"year"`
	Month           int        `json:"month"`
	Required        core.Money `json:"required"`
	Paid            core.Money `json:"paid"`
	Remaining       core.Money `json:"remaining"`
	CashStart       core.Money `json:"cash_start"`
	NeedDailyExact  float64    `json:"need_daily_exact"`
	NeedWeeklyExact float64    `json:"need_weekly_exact"`
	FreeForMonth    bool       `json:"free_for_month"`
}

// attachPayments joins instances with their payment events.
func attachPayments(tx store.Tx, instances []core.Instance) ([]InstanceView, error) {
	payments, err := paymentsByInstance(tx)
	if err != nil {
		return nil, err
	}
	views := make([]InstanceView, 0, len(instances))
	for _, inst := range instances {
		var paid core.Money
		for _, p := range payments[inst.ID] {
			paid = paid.Add(p.Amount)
		}
		views = append(views, InstanceView{
			Instance:        inst,
			AmountPaid:      paid,
			AmountRemaining: inst.Amount.Sub(paid),
		})
	}
	return views, nil
}

// attachOne joins a single instance with its payments.
func attachOne(tx store.Tx, inst core.Instance) (InstanceView, error) {
	views, err := attachPayments(tx, []core.Instance{inst})
	if err != nil {
		return InstanceView{}, err
	}
	return views[0], nil
}

// computeSummary accumulates the month roll-up over the given views.
// Skipped instances are excluded entirely; essentialsOnly restricts the
// roll-up to essential instances. free_for_month holds when something
// was required, nothing remains, and no unpaid non-skipped instance is
// overdue relative to today.
func computeSummary(views []InstanceView, essentialsOnly bool, year, month int, today core.Date, cashStart core.Money) Summary {
	s := Summary{Year: year, Month: month, CashStart: cashStart}

	overdue := false
	for _, v := range views {
		if v.Status == core.StatusSkipped {
			continue
		}
		if essentialsOnly && !v.Essential {
			continue
		}
		s.Required = s.Required.Add(v.Amount)
		s.Paid = s.Paid.Add(v.AmountPaid)
		s.Remaining = s.Remaining.Add(v.AmountRemaining)
		if v.Status != core.StatusPaid && !v.DueDate.IsZero() && v.DueDate.Before(today.Time) {
			overdue = true
		}
	}

	// Both figures round the exact quotient, not each other, so the
	// weekly number never inherits the daily one's rounding error.
	days := core.DaysInMonth(year, month)
	exact := float64(s.Required.Cents) / 100 / float64(days)
	s.NeedDailyExact = round2(exact)
	s.NeedWeeklyExact = round2(exact * 7)
	s.FreeForMonth = s.Required.IsPositive() && s.Remaining.IsZero() && !overdue
	return s
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// MonthInstances materializes (year, month) if needed and returns its
// accounting-attached instances, ordered by due date then name.
func (e *Engine) MonthInstances(ctx context.Context, year, month int) ([]InstanceView, error) {
	if err := e.EnsureMonth(ctx, year, month); err != nil {
		return nil, err
	}
	var views []InstanceView
	err := e.store.View(ctx, func(tx store.Tx) error {
		instances, err := instancesForMonth(tx, year, month)
		if err != nil {
			return err
		}
		views, err = attachPayments(tx, instances)
		return err
	})
	if err != nil {
		return nil, core.StorageFailure("read month", err)
	}
	sortInstances(views)
	return views, nil
}

func sortInstances(views []InstanceView) {
	sort.SliceStable(views, func(i, j int) bool {
		a, b := views[i], views[j]
		if !a.DueDate.Equal(b.DueDate.Time) {
			return a.DueDate.Before(b.DueDate.Time)
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	})
}

// MonthSummary materializes the month and computes its roll-up.
func (e *Engine) MonthSummary(ctx context.Context, year, month int, essentialsOnly bool) (Summary, error) {
	if err := e.EnsureMonth(ctx, year, month); err != nil {
		return Summary{}, err
	}
	var summary Summary
	err := e.store.View(ctx, func(tx store.Tx) error {
		instances, err := instancesForMonth(tx, year, month)
		if err != nil {
			return err
		}
		views, err := attachPayments(tx, instances)
		if err != nil {
			return err
		}
		ms, err := getMonthSettings(tx, year, month)
		if err != nil {
			return err
		}
		summary = computeSummary(views, essentialsOnly, year, month, e.today(), ms.CashStart)
		return nil
	})
	if err != nil {
		return Summary{}, core.StorageFailure("read summary", err)
	}
	return summary, nil
}

// MonthPayments returns the month's payment events, most recent paid
// date first.
func (e *Engine) MonthPayments(ctx context.Context, year, month int) ([]core.PaymentEvent, error) {
	if err := e.EnsureMonth(ctx, year, month); err != nil {
		return nil, err
	}
	var out []core.PaymentEvent
	err := e.store.View(ctx, func(tx store.Tx) error {
		all, err := listAll[core.PaymentEvent](tx, store.PaymentEvents)
		if err != nil {
			return err
		}
		for _, p := range all {
			if p.PaidDate.InMonth(year, month) {
				out = append(out, p)
			}
		}
		return nil
	})
	if err != nil {
		return nil, core.StorageFailure("read payments", err)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[j].PaidDate.Before(out[i].PaidDate.Time)
	})
	return out, nil
}

// Templates lists all templates, name-sorted case-insensitively.
func (e *Engine) Templates(ctx context.Context) ([]core.Template, error) {
	var out []core.Template
	err := e.store.View(ctx, func(tx store.Tx) error {
		var err error
		out, err = listAll[core.Template](tx, store.Templates)
		return err
	})
	if err != nil {
		return nil, core.StorageFailure("list templates", err)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

// InstanceEvents returns the append-only audit log for one instance,
// oldest first.
func (e *Engine) InstanceEvents(ctx context.Context, instanceID string) ([]core.InstanceEvent, error) {
	var out []core.InstanceEvent
	err := e.store.View(ctx, func(tx store.Tx) error {
		if _, err := getInstance(tx, instanceID); err != nil {
			return err
		}
		all, err := listAll[core.InstanceEvent](tx, store.InstanceEvents)
		if err != nil {
			return err
		}
		for _, ev := range all {
			if ev.InstanceID == instanceID {
				out = append(out, ev)
			}
		}
		return nil
	})
	if err != nil {
		return nil, core.StorageFailure("read instance events", err)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// GetSettings returns process-wide settings.
func (e *Engine) GetSettings(ctx context.Context) (core.Settings, error) {
	var s core.Settings
	err := e.store.View(ctx, func(tx store.Tx) error {
		var err error
		s, err = getSettings(tx)
		return err
	})
	if err != nil {
		return core.Settings{}, core.StorageFailure("read settings", err)
	}
	return s, nil
}

// PutSettings replaces process-wide settings.
func (e *Engine) PutSettings(ctx context.Context, s core.Settings) (core.Settings, error) {
	if s.DueSoonDays < 1 || s.DueSoonDays > 31 {
		return core.Settings{}, core.InvalidField("due_soon_days", "must be between 1 and 31")
	}
	s.Normalize()
	err := e.store.Update(ctx, func(tx store.Tx) error {
		return putSettings(tx, s)
	})
	if err != nil {
		return core.Settings{}, core.StorageFailure("write settings", err)
	}
	return s, nil
}
