package engine

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"billbook/internal/core"
	"billbook/internal/store"
	filestore "billbook/internal/store/file"
)

// testNow is the fixed clock for all engine tests: mid-June 2026.
var testNow = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	st, err := filestore.Open(filepath.Join(t.TempDir(), "billbook.json"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	e := New(st)
	e.SetClock(func() time.Time { return testNow })
	return e
}

func mustDispatch(t *testing.T, e *Engine, typ ActionType, payload map[string]any) any {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	result, err := e.Dispatch(context.Background(), Action{Type: typ, Payload: raw})
	if err != nil {
		t.Fatalf("Dispatch(%s) error = %v", typ, err)
	}
	return result
}

func dispatchErr(t *testing.T, e *Engine, typ ActionType, payload map[string]any) error {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	_, err = e.Dispatch(context.Background(), Action{Type: typ, Payload: raw})
	return err
}

func createTemplate(t *testing.T, e *Engine, name string, amount float64, dueDay int) core.Template {
	t.Helper()
	result := mustDispatch(t, e, ActionCreateTemplate, map[string]any{
		"name":           name,
		"category":       "bills",
		"amount_default": amount,
		"due_day":        dueDay,
	})
	tmpl, ok := result.(core.Template)
	if !ok {
		t.Fatalf("CREATE_TEMPLATE result = %T, want core.Template", result)
	}
	return tmpl
}

func monthInstances(t *testing.T, e *Engine, year, month int) []InstanceView {
	t.Helper()
	views, err := e.MonthInstances(context.Background(), year, month)
	if err != nil {
		t.Fatalf("MonthInstances(%d, %d) error = %v", year, month, err)
	}
	return views
}

func TestEnsureMonth_Idempotent(t *testing.T) {
	e := newTestEngine(t)
	createTemplate(t, e, "Rent", 1200, 1)
	createTemplate(t, e, "Power", 80, 15)

	first := monthInstances(t, e, 2026, 6)
	if len(first) != 2 {
		t.Fatalf("first read created %d instances, want 2", len(first))
	}

	second := monthInstances(t, e, 2026, 6)
	if len(second) != 2 {
		t.Fatalf("second read has %d instances, want 2", len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("instance %d id changed between reads: %s vs %s", i, first[i].ID, second[i].ID)
		}
	}
}

func TestMaterialize_ClampsDueDayToMonthLength(t *testing.T) {
	e := newTestEngine(t)
	createTemplate(t, e, "Rent", 50, 31)

	views := monthInstances(t, e, 2026, 2)
	if len(views) != 1 {
		t.Fatalf("got %d instances, want 1", len(views))
	}
	if got := views[0].DueDate.String(); got != "2026-02-28" {
		t.Errorf("due date = %s, want 2026-02-28", got)
	}
}

func TestMaterialize_SkipsInactiveTemplates(t *testing.T) {
	e := newTestEngine(t)
	tmpl := createTemplate(t, e, "Gym", 30, 5)
	mustDispatch(t, e, ActionArchiveTemplate, map[string]any{"template_id": tmpl.ID})

	views := monthInstances(t, e, 2026, 6)
	if len(views) != 0 {
		t.Fatalf("archived template materialized %d instances, want 0", len(views))
	}
}

func TestPaymentConservation(t *testing.T) {
	e := newTestEngine(t)
	createTemplate(t, e, "Power", 100, 10)
	inst := monthInstances(t, e, 2026, 6)[0]

	check := func(v InstanceView) {
		t.Helper()
		if v.AmountPaid.Add(v.AmountRemaining) != v.Amount {
			t.Errorf("paid %s + remaining %s != amount %s",
				v.AmountPaid, v.AmountRemaining, v.Amount)
		}
	}

	result := mustDispatch(t, e, ActionAddPayment, map[string]any{
		"instance_id": inst.ID, "amount": 30, "paid_date": "2026-06-05",
	})
	v := result.(InstanceView)
	check(v)
	if v.AmountPaid.Cents != 3000 || v.AmountRemaining.Cents != 7000 {
		t.Errorf("after first payment: paid %s remaining %s, want 30.00/70.00", v.AmountPaid, v.AmountRemaining)
	}

	result = mustDispatch(t, e, ActionAddPayment, map[string]any{
		"instance_id": inst.ID, "amount": 25.5, "paid_date": "2026-06-08",
	})
	check(result.(InstanceView))

	// Undo the first payment and re-check conservation.
	payments, err := e.MonthPayments(context.Background(), 2026, 6)
	if err != nil {
		t.Fatalf("MonthPayments error = %v", err)
	}
	if len(payments) != 2 {
		t.Fatalf("got %d payments, want 2", len(payments))
	}
	result = mustDispatch(t, e, ActionUndoPayment, map[string]any{"payment_id": payments[1].ID})
	v = result.(InstanceView)
	check(v)
	if v.AmountPaid.Cents != 2550 {
		t.Errorf("after undo: paid = %s, want 25.50", v.AmountPaid)
	}
}

func TestMarkPaid_ZeroesRemaining(t *testing.T) {
	e := newTestEngine(t)
	createTemplate(t, e, "Internet", 60, 20)
	inst := monthInstances(t, e, 2026, 6)[0]

	// A partial payment first; MARK_PAID must finish the rest.
	mustDispatch(t, e, ActionAddPayment, map[string]any{
		"instance_id": inst.ID, "amount": 20, "paid_date": "2026-06-02",
	})
	result := mustDispatch(t, e, ActionMarkPaid, map[string]any{"instance_id": inst.ID})
	v := result.(InstanceView)

	if !v.AmountRemaining.IsZero() {
		t.Errorf("remaining = %s, want 0.00", v.AmountRemaining)
	}
	if v.Status != core.StatusPaid {
		t.Errorf("status = %s, want paid", v.Status)
	}
	if v.PaidDate.IsZero() {
		t.Error("paid_date should be set")
	}
	if v.AmountPaid != v.Amount {
		t.Errorf("paid = %s, want full amount %s", v.AmountPaid, v.Amount)
	}
}

func TestMarkPaid_AlreadySettledAddsNoPayment(t *testing.T) {
	e := newTestEngine(t)
	createTemplate(t, e, "Water", 40, 12)
	inst := monthInstances(t, e, 2026, 6)[0]

	mustDispatch(t, e, ActionAddPayment, map[string]any{
		"instance_id": inst.ID, "amount": 40, "paid_date": "2026-06-03",
	})
	mustDispatch(t, e, ActionMarkPaid, map[string]any{"instance_id": inst.ID})

	payments, err := e.MonthPayments(context.Background(), 2026, 6)
	if err != nil {
		t.Fatalf("MonthPayments error = %v", err)
	}
	if len(payments) != 1 {
		t.Errorf("got %d payments, want 1 (no zero-amount remainder event)", len(payments))
	}
}

func TestAddPayment_FullAmountFlipsToPaid(t *testing.T) {
	e := newTestEngine(t)
	createTemplate(t, e, "Phone", 25, 7)
	inst := monthInstances(t, e, 2026, 6)[0]

	result := mustDispatch(t, e, ActionAddPayment, map[string]any{
		"instance_id": inst.ID, "amount": 25, "paid_date": "2026-06-07",
	})
	v := result.(InstanceView)
	if v.Status != core.StatusPaid {
		t.Errorf("status = %s, want paid after full payment", v.Status)
	}
	if v.PaidDate.String() != "2026-06-07" {
		t.Errorf("paid_date = %s, want 2026-06-07", v.PaidDate)
	}
}

func TestUndoPayment_ReopensInstance(t *testing.T) {
	e := newTestEngine(t)
	createTemplate(t, e, "Phone", 25, 7)
	inst := monthInstances(t, e, 2026, 6)[0]

	mustDispatch(t, e, ActionAddPayment, map[string]any{
		"instance_id": inst.ID, "amount": 25, "paid_date": "2026-06-07",
	})
	payments, _ := e.MonthPayments(context.Background(), 2026, 6)
	result := mustDispatch(t, e, ActionUndoPayment, map[string]any{"payment_id": payments[0].ID})

	v := result.(InstanceView)
	if v.Status != core.StatusPending {
		t.Errorf("status = %s, want pending after undo", v.Status)
	}
	if !v.PaidDate.IsZero() {
		t.Errorf("paid_date = %s, want cleared", v.PaidDate)
	}
	if v.AmountRemaining != v.Amount {
		t.Errorf("remaining = %s, want full amount", v.AmountRemaining)
	}
}

func TestUndoAllPayments(t *testing.T) {
	e := newTestEngine(t)
	createTemplate(t, e, "Power", 100, 10)
	inst := monthInstances(t, e, 2026, 6)[0]

	mustDispatch(t, e, ActionAddPayment, map[string]any{
		"instance_id": inst.ID, "amount": 60, "paid_date": "2026-06-05",
	})
	mustDispatch(t, e, ActionAddPayment, map[string]any{
		"instance_id": inst.ID, "amount": 40, "paid_date": "2026-06-09",
	})

	v, err := e.UndoAllPayments(context.Background(), inst.ID)
	if err != nil {
		t.Fatalf("UndoAllPayments error = %v", err)
	}
	if !v.AmountPaid.IsZero() || v.Status != core.StatusPending {
		t.Errorf("after undo-all: paid %s status %s, want 0.00/pending", v.AmountPaid, v.Status)
	}
	payments, _ := e.MonthPayments(context.Background(), 2026, 6)
	if len(payments) != 0 {
		t.Errorf("got %d payments, want 0", len(payments))
	}
}

func TestSkipInstance_ExcludedFromSummary(t *testing.T) {
	e := newTestEngine(t)
	createTemplate(t, e, "Rent", 1000, 1)
	tmpl2 := createTemplate(t, e, "Gym", 30, 5)
	_ = tmpl2
	views := monthInstances(t, e, 2026, 6)

	var gym InstanceView
	for _, v := range views {
		if v.Name == "Gym" {
			gym = v
		}
	}
	mustDispatch(t, e, ActionSkipInstance, map[string]any{"instance_id": gym.ID})

	summary, err := e.MonthSummary(context.Background(), 2026, 6, false)
	if err != nil {
		t.Fatalf("MonthSummary error = %v", err)
	}
	if summary.Required.Cents != 100000 {
		t.Errorf("required = %s, want 1000.00 (skipped instance excluded)", summary.Required)
	}
}

func TestMonthSummary(t *testing.T) {
	e := newTestEngine(t)
	createTemplate(t, e, "Rent", 1000, 1)
	createTemplate(t, e, "Power", 200, 20)
	views := monthInstances(t, e, 2026, 6)

	mustDispatch(t, e, ActionSetCashStart, map[string]any{
		"year": 2026, "month": 6, "amount": 1500,
	})
	// Rent is due the 1st, already past the fixed clock of June 15, so
	// the month is not free until it is paid.
	summary, err := e.MonthSummary(context.Background(), 2026, 6, false)
	if err != nil {
		t.Fatalf("MonthSummary error = %v", err)
	}
	if summary.Required.Cents != 120000 {
		t.Errorf("required = %s, want 1200.00", summary.Required)
	}
	if summary.CashStart.Cents != 150000 {
		t.Errorf("cash_start = %s, want 1500.00", summary.CashStart)
	}
	if summary.NeedDailyExact != 40.0 {
		t.Errorf("need_daily_exact = %v, want 40 (1200 over 30 days)", summary.NeedDailyExact)
	}
	if summary.FreeForMonth {
		t.Error("free_for_month should be false while payments remain")
	}

	for _, v := range views {
		mustDispatch(t, e, ActionMarkPaid, map[string]any{
			"instance_id": v.ID, "paid_date": "2026-06-14",
		})
	}
	summary, err = e.MonthSummary(context.Background(), 2026, 6, false)
	if err != nil {
		t.Fatalf("MonthSummary error = %v", err)
	}
	if !summary.Remaining.IsZero() {
		t.Errorf("remaining = %s, want 0.00", summary.Remaining)
	}
	if !summary.FreeForMonth {
		t.Error("free_for_month should be true once everything is paid")
	}
}

func TestMonthSummary_WeeklyNeedFromExactQuotient(t *testing.T) {
	e := newTestEngine(t)
	createTemplate(t, e, "Power", 100, 10)

	// 100.00 over February's 28 days does not terminate: the exact
	// daily need is 3.5714... Weekly must come from that quotient, not
	// from the rounded 3.57 (which would give 24.99).
	summary, err := e.MonthSummary(context.Background(), 2026, 2, false)
	if err != nil {
		t.Fatalf("MonthSummary error = %v", err)
	}
	if summary.NeedDailyExact != 3.57 {
		t.Errorf("need_daily_exact = %v, want 3.57", summary.NeedDailyExact)
	}
	if summary.NeedWeeklyExact != 25.0 {
		t.Errorf("need_weekly_exact = %v, want 25", summary.NeedWeeklyExact)
	}
}

func TestTemplateEditIsolation(t *testing.T) {
	e := newTestEngine(t)
	tmpl := createTemplate(t, e, "Insurance", 50, 10)

	may := monthInstances(t, e, 2026, 5)
	if may[0].Amount.Cents != 5000 {
		t.Fatalf("may amount = %s, want 50.00", may[0].Amount)
	}

	// Edit the template amount and reapply to June only.
	mustDispatch(t, e, ActionUpdateTemplate, map[string]any{
		"template_id":    tmpl.ID,
		"amount_default": 75,
		"year":           2026,
		"month":          6,
	})

	june := monthInstances(t, e, 2026, 6)
	if june[0].Amount.Cents != 7500 {
		t.Errorf("june amount = %s, want 75.00 after reapply", june[0].Amount)
	}
	mayAfter := monthInstances(t, e, 2026, 5)
	if mayAfter[0].Amount.Cents != 5000 {
		t.Errorf("may amount = %s, want 50.00 untouched by the edit", mayAfter[0].Amount)
	}
}

func TestCascadeDeleteBoundary(t *testing.T) {
	e := newTestEngine(t)
	tmpl := createTemplate(t, e, "Streaming", 15, 1)

	may := monthInstances(t, e, 2026, 5)[0]
	june := monthInstances(t, e, 2026, 6)[0]
	mustDispatch(t, e, ActionAddPayment, map[string]any{
		"instance_id": may.ID, "amount": 15, "paid_date": "2026-05-01",
	})
	mustDispatch(t, e, ActionAddPayment, map[string]any{
		"instance_id": june.ID, "amount": 15, "paid_date": "2026-06-01",
	})

	mustDispatch(t, e, ActionDeleteTemplate, map[string]any{
		"template_id": tmpl.ID, "year": 2026, "month": 6,
	})

	ctx := context.Background()
	err := e.Store().View(ctx, func(tx store.Tx) error {
		if _, err := getInstance(tx, june.ID); err == nil {
			t.Error("june instance should be deleted")
		}
		if _, err := getInstance(tx, may.ID); err != nil {
			t.Errorf("may instance should survive: %v", err)
		}
		payments, err := store.List[core.PaymentEvent](tx, store.PaymentEvents)
		if err != nil {
			return err
		}
		if len(payments) != 1 || payments[0].InstanceID != may.ID {
			t.Errorf("got %d payments, want only may's to survive", len(payments))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestSinkingFundProjection(t *testing.T) {
	e := newTestEngine(t)

	// 1200 target due in the 12th month from the June reference.
	result := mustDispatch(t, e, ActionCreateFund, map[string]any{
		"name":          "Car insurance",
		"target_amount": 1200,
		"due_date":      "2027-05-01",
		"cadence":       "yearly",
	})
	fund := result.(FundView)
	if fund.MonthsRemaining != 12 {
		t.Fatalf("months_remaining = %d, want 12", fund.MonthsRemaining)
	}
	if fund.MonthlyContrib.Cents != 10000 {
		t.Errorf("monthly_contrib = %s, want 100.00", fund.MonthlyContrib)
	}

	result = mustDispatch(t, e, ActionAddSinkingEvent, map[string]any{
		"fund_id": fund.ID,
		"type":    "CONTRIBUTION",
		"amount":  1200,
		"date":    "2026-06-15",
	})
	fund = result.(FundView)
	if fund.Status != core.FundReady {
		t.Errorf("status = %s, want ready", fund.Status)
	}
	if !fund.MonthlyContrib.IsZero() {
		t.Errorf("monthly_contrib = %s, want 0.00", fund.MonthlyContrib)
	}
	if fund.ProgressRatio != 1.0 {
		t.Errorf("progress_ratio = %v, want 1", fund.ProgressRatio)
	}
}

func TestSinkingFund_DueAndBehind(t *testing.T) {
	e := newTestEngine(t)

	due := mustDispatch(t, e, ActionCreateFund, map[string]any{
		"name":          "Past due",
		"target_amount": 300,
		"due_date":      "2026-05-01",
		"cadence":       "quarterly",
	}).(FundView)
	if due.Status != core.FundDue {
		t.Errorf("status = %s, want due for an elapsed due date", due.Status)
	}

	// Yearly fund three payable months from its due date with nothing
	// saved: nine cycle months have elapsed, so 9/12 of target is expected.
	behind := mustDispatch(t, e, ActionCreateFund, map[string]any{
		"name":          "Behind fund",
		"target_amount": 1200,
		"due_date":      "2026-08-01",
		"cadence":       "yearly",
	}).(FundView)
	if behind.Status != core.FundBehind {
		t.Errorf("status = %s, want behind", behind.Status)
	}
	if behind.ExpectedSaved.Cents != 90000 {
		t.Errorf("expected_saved = %s, want 900.00", behind.ExpectedSaved)
	}
}

func TestSinkingFund_NoDueDate(t *testing.T) {
	e := newTestEngine(t)

	fund := mustDispatch(t, e, ActionCreateFund, map[string]any{
		"name":          "Rainy day",
		"target_amount": 500,
		"cadence":       "yearly",
	}).(FundView)
	if fund.Status != core.FundOnTrack {
		t.Errorf("status = %s, want on_track for a fund with no due date", fund.Status)
	}
	if fund.MonthsRemaining != 0 || !fund.MonthlyContrib.IsZero() {
		t.Errorf("schedule = %d months / %s, want none without a due date",
			fund.MonthsRemaining, fund.MonthlyContrib)
	}
	if !fund.ExpectedSaved.IsZero() {
		t.Errorf("expected_saved = %s, want 0.00 without a due date", fund.ExpectedSaved)
	}

	result := mustDispatch(t, e, ActionAddSinkingEvent, map[string]any{
		"fund_id": fund.ID, "type": "CONTRIBUTION", "amount": 500, "date": "2026-06-15",
	})
	if got := result.(FundView); got.Status != core.FundReady {
		t.Errorf("status = %s, want ready once the target is met", got.Status)
	}
}

func TestAutoContribute_OncePerMonth(t *testing.T) {
	e := newTestEngine(t)
	fund := mustDispatch(t, e, ActionCreateFund, map[string]any{
		"name":            "Vacation",
		"target_amount":   600,
		"due_date":        "2026-12-01",
		"cadence":         "6",
		"auto_contribute": true,
	}).(FundView)

	views, err := e.SinkingFunds(context.Background(), 2026, 6, false)
	if err != nil {
		t.Fatalf("SinkingFunds error = %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("got %d funds, want 1", len(views))
	}
	firstBalance := views[0].Balance

	if !firstBalance.IsPositive() {
		t.Fatal("auto contribution should have been recorded on first month read")
	}

	// A second read of the same month must not contribute again.
	views, err = e.SinkingFunds(context.Background(), 2026, 6, false)
	if err != nil {
		t.Fatalf("SinkingFunds error = %v", err)
	}
	if views[0].Balance != firstBalance {
		t.Errorf("balance changed on second read: %s -> %s", firstBalance, views[0].Balance)
	}
	_ = fund
}

func TestMarkFundPaid_RollsDueDateForward(t *testing.T) {
	e := newTestEngine(t)
	fund := mustDispatch(t, e, ActionCreateFund, map[string]any{
		"name":          "Quarterly tax",
		"target_amount": 900,
		"due_date":      "2026-09-15",
		"cadence":       "quarterly",
	}).(FundView)

	mustDispatch(t, e, ActionAddSinkingEvent, map[string]any{
		"fund_id": fund.ID, "type": "CONTRIBUTION", "amount": 900, "date": "2026-06-15",
	})
	result := mustDispatch(t, e, ActionMarkFundPaid, map[string]any{
		"fund_id": fund.ID, "date": "2026-09-15",
	})
	v := result.(FundView)

	if v.DueDate.String() != "2026-12-15" {
		t.Errorf("due_date = %s, want 2026-12-15 after one quarterly cycle", v.DueDate)
	}
	if !v.Balance.IsZero() {
		t.Errorf("balance = %s, want 0.00 after full withdrawal", v.Balance)
	}
}

func TestDispatch_ValidationDoesNotMutate(t *testing.T) {
	e := newTestEngine(t)
	createTemplate(t, e, "Rent", 1000, 1)
	inst := monthInstances(t, e, 2026, 6)[0]

	err := dispatchErr(t, e, ActionAddPayment, map[string]any{
		"instance_id": inst.ID, "amount": 0,
	})
	var ve *core.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error = %v, want ValidationError", err)
	}

	payments, _ := e.MonthPayments(context.Background(), 2026, 6)
	if len(payments) != 0 {
		t.Errorf("rejected command recorded %d payments, want 0", len(payments))
	}
}

func TestDispatch_UnknownAction(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Dispatch(context.Background(), Action{Type: "EXPLODE", Payload: []byte(`{}`)})
	var ve *core.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error = %v, want ValidationError for unknown action", err)
	}
}

func TestDispatch_NotFound(t *testing.T) {
	e := newTestEngine(t)
	err := dispatchErr(t, e, ActionMarkPaid, map[string]any{"instance_id": "missing"})
	var nf *core.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("error = %v, want NotFoundError", err)
	}
}

func TestInstanceEvents_AuditTrail(t *testing.T) {
	e := newTestEngine(t)
	createTemplate(t, e, "Power", 100, 10)
	inst := monthInstances(t, e, 2026, 6)[0]

	mustDispatch(t, e, ActionUpdateInstanceFields, map[string]any{
		"instance_id": inst.ID, "note": "call provider",
	})
	mustDispatch(t, e, ActionMarkPaid, map[string]any{"instance_id": inst.ID})

	events, err := e.InstanceEvents(context.Background(), inst.ID)
	if err != nil {
		t.Fatalf("InstanceEvents error = %v", err)
	}
	if len(events) < 3 {
		t.Fatalf("got %d audit events, want at least created+note_updated+marked_done", len(events))
	}
	if events[0].Type != core.AuditCreated {
		t.Errorf("first event = %s, want created", events[0].Type)
	}
	types := map[core.AuditEventType]bool{}
	for _, ev := range events {
		types[ev.Type] = true
	}
	if !types[core.AuditNoteUpdated] || !types[core.AuditMarkedDone] {
		t.Errorf("audit trail missing expected entries: %v", types)
	}
}

func TestGenerateMonth_ReturnsInstances(t *testing.T) {
	e := newTestEngine(t)
	createTemplate(t, e, "Rent", 1000, 1)

	result := mustDispatch(t, e, ActionGenerateMonth, map[string]any{"year": 2026, "month": 7})
	views, ok := result.([]InstanceView)
	if !ok {
		t.Fatalf("GENERATE_MONTH result = %T, want []InstanceView", result)
	}
	if len(views) != 1 {
		t.Errorf("got %d instances, want 1", len(views))
	}
}

func TestBackupRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	createTemplate(t, e, "Rent", 1000, 1)
	createTemplate(t, e, "Power", 120, 15)
	inst := monthInstances(t, e, 2026, 6)[0]
	mustDispatch(t, e, ActionAddPayment, map[string]any{
		"instance_id": inst.ID, "amount": 500, "paid_date": "2026-06-02",
	})
	mustDispatch(t, e, ActionCreateFund, map[string]any{
		"name": "Tax", "target_amount": 900, "due_date": "2026-12-01", "cadence": "yearly",
	})

	ctx := context.Background()
	snap, err := e.Export(ctx)
	if err != nil {
		t.Fatalf("Export error = %v", err)
	}

	if err := e.Store().Reset(ctx); err != nil {
		t.Fatalf("Reset error = %v", err)
	}
	if err := e.Import(ctx, snap); err != nil {
		t.Fatalf("Import error = %v", err)
	}

	restored, err := e.Export(ctx)
	if err != nil {
		t.Fatalf("re-export error = %v", err)
	}

	if len(restored.Templates) != len(snap.Templates) ||
		len(restored.Instances) != len(snap.Instances) ||
		len(restored.PaymentEvents) != len(snap.PaymentEvents) ||
		len(restored.SinkingFunds) != len(snap.SinkingFunds) {
		t.Fatalf("restored counts differ: %d/%d/%d/%d vs %d/%d/%d/%d",
			len(restored.Templates), len(restored.Instances),
			len(restored.PaymentEvents), len(restored.SinkingFunds),
			len(snap.Templates), len(snap.Instances),
			len(snap.PaymentEvents), len(snap.SinkingFunds))
	}

	ids := func(s Snapshot) map[string]bool {
		out := map[string]bool{}
		for _, i := range s.Instances {
			out[i.ID] = true
		}
		return out
	}
	want := ids(snap)
	for id := range ids(restored) {
		if !want[id] {
			t.Errorf("restored instance id %s not in original export", id)
		}
	}

	total := func(s Snapshot) int64 {
		var cents int64
		for _, p := range s.PaymentEvents {
			cents += p.Amount.Cents
		}
		return cents
	}
	if total(restored) != total(snap) {
		t.Errorf("payment totals differ: %d vs %d", total(restored), total(snap))
	}
}

func TestImport_DefaultsMissingFields(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	snap := Snapshot{
		Templates: []core.Template{{
			Name: "Imported", AmountDefault: core.Money{Cents: 2000}, DueDay: 5, Active: true,
		}},
	}
	if err := e.Import(ctx, snap); err != nil {
		t.Fatalf("Import error = %v", err)
	}

	templates, err := e.Templates(ctx)
	if err != nil {
		t.Fatalf("Templates error = %v", err)
	}
	if len(templates) != 1 {
		t.Fatalf("got %d templates, want 1", len(templates))
	}
	if templates[0].ID == "" {
		t.Error("imported template should have a regenerated id")
	}
	if templates[0].CreatedAt.IsZero() {
		t.Error("imported template should have a regenerated created_at")
	}

	settings, err := e.GetSettings(ctx)
	if err != nil {
		t.Fatalf("GetSettings error = %v", err)
	}
	if settings.DueSoonDays != 7 {
		t.Errorf("due_soon_days = %d, want default 7", settings.DueSoonDays)
	}
}

func TestSettings_RoundTrip(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	saved, err := e.PutSettings(ctx, core.Settings{
		DefaultSort: "name",
		DueSoonDays: 10,
		DefaultView: "month",
		Categories:  []string{"housing", "housing", "food"},
	})
	if err != nil {
		t.Fatalf("PutSettings error = %v", err)
	}
	if len(saved.Categories) != 2 {
		t.Errorf("categories = %v, want deduplicated to 2", saved.Categories)
	}

	got, err := e.GetSettings(ctx)
	if err != nil {
		t.Fatalf("GetSettings error = %v", err)
	}
	if got.DefaultSort != "name" || got.DueSoonDays != 10 {
		t.Errorf("settings = %+v, want sort=name due_soon_days=10", got)
	}

	if _, err := e.PutSettings(ctx, core.Settings{DueSoonDays: 99}); err == nil {
		t.Error("out-of-range due_soon_days should be rejected")
	}
}
