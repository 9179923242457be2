package engine

import (
	"context"
	"sort"
	"strings"

	"billbook/internal/core"
	"billbook/internal/store"
)

// FundView is a sinking fund with its projected schedule for a
// reference month.
type FundView struct {
	core.SinkingFund
	Balance         core.Money      `json:"balance"`
	MonthsRemaining int             `json:"months_remaining"`
	MonthlyContrib  core.Money      `json:"monthly_contrib"`
	ExpectedSaved   core.Money      `json:"expected_saved"`
	Status          core.FundStatus `json:"status"`
	ProgressRatio   float64         `json:"progress_ratio"`
}

// fundBalance derives the balance from event history: contributions
// minus withdrawals, never stored.
func fundBalance(events []core.SinkingEvent) core.Money {
	var cents int64
	for _, ev := range events {
		switch ev.Type {
		case core.Contribution:
			cents += ev.Amount.Cents
		case core.Withdrawal:
			cents -= ev.Amount.Cents
		}
	}
	return core.Money{Cents: cents}
}

// ProjectFund computes the fund's contribution schedule and status
// against ref, the first day of the queried month.
func ProjectFund(f core.SinkingFund, balance core.Money, ref core.Date) FundView {
	v := FundView{SinkingFund: f, Balance: balance}

	target := f.TargetAmount
	v.MonthsRemaining = core.MonthsRemaining(ref, f.DueDate)

	if target.IsPositive() && balance.Less(target) && v.MonthsRemaining > 0 {
		v.MonthlyContrib = core.Money{
			Cents: divHalfUp(target.Cents-balance.Cents, int64(v.MonthsRemaining)),
		}
	}

	if !f.DueDate.IsZero() {
		cycle := f.CadenceMonths()
		elapsed := cycle - v.MonthsRemaining
		if elapsed < 0 {
			elapsed = 0
		}
		if elapsed > cycle {
			elapsed = cycle
		}
		v.ExpectedSaved = core.Money{
			Cents: divHalfUp(target.Cents*int64(elapsed), int64(cycle)),
		}
	}

	// The one-cent tolerance on "behind" absorbs rounding noise in the
	// expected-saved figure. A fund without a due date has no schedule
	// to fall behind: it just accumulates until the target is met.
	switch {
	case f.DueDate.IsZero():
		if target.IsPositive() && !balance.Less(target) {
			v.Status = core.FundReady
		} else {
			v.Status = core.FundOnTrack
		}
	case v.MonthsRemaining == 0:
		v.Status = core.FundDue
	case !balance.Less(target):
		v.Status = core.FundReady
	case balance.Cents+1 < v.ExpectedSaved.Cents:
		v.Status = core.FundBehind
	default:
		v.Status = core.FundOnTrack
	}

	if target.IsZero() {
		// A zero target is complete by definition; avoid dividing by it.
		v.ProgressRatio = 1
	} else {
		v.ProgressRatio = float64(balance.Cents) / float64(target.Cents)
	}
	return v
}

// divHalfUp divides num by den with half-up rounding. den must be
// positive; a non-positive numerator yields zero.
func divHalfUp(num, den int64) int64 {
	if num <= 0 || den <= 0 {
		return 0
	}
	return (2*num + den) / (2 * den)
}

// SinkingFunds materializes the month (which records any pending auto
// contributions) and returns the projected view of every fund,
// name-sorted. Inactive funds are included only on request.
func (e *Engine) SinkingFunds(ctx context.Context, year, month int, includeInactive bool) ([]FundView, error) {
	if err := e.EnsureMonth(ctx, year, month); err != nil {
		return nil, err
	}
	var views []FundView
	err := e.store.View(ctx, func(tx store.Tx) error {
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
			if !f.Active && !includeInactive {
				continue
			}
			views = append(views, ProjectFund(f, fundBalance(eventsByFund[f.ID]), ref))
		}
		return nil
	})
	if err != nil {
		return nil, core.StorageFailure("read sinking funds", err)
	}
	sort.SliceStable(views, func(i, j int) bool {
		return strings.ToLower(views[i].Name) < strings.ToLower(views[j].Name)
	})
	return views, nil
}
