package core

import (
	"strconv"
	"strings"
	"time"
)

// InstanceStatus is the lifecycle state of a bill instance.
type InstanceStatus string

const (
	StatusPending InstanceStatus = "pending"
	StatusPaid    InstanceStatus = "paid"
	StatusSkipped InstanceStatus = "skipped"
)

// Valid reports whether the status is one of the three known states.
func (s InstanceStatus) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusSkipped:
		return true
	}
	return false
}

// SinkingEventType distinguishes contributions from withdrawals.
type SinkingEventType string

const (
	Contribution SinkingEventType = "CONTRIBUTION"
	Withdrawal   SinkingEventType = "WITHDRAWAL"
)

// Valid reports whether the event type is known.
func (t SinkingEventType) Valid() bool {
	return t == Contribution || t == Withdrawal
}

// AuditEventType names a mutation recorded in the instance audit log.
type AuditEventType string

const (
	AuditCreated       AuditEventType = "created"
	AuditEdited        AuditEventType = "edited"
	AuditStatusChanged AuditEventType = "status_changed"
	AuditSkipped       AuditEventType = "skipped"
	AuditUnskipped     AuditEventType = "unskipped"
	AuditNoteUpdated   AuditEventType = "note_updated"
	AuditMarkedDone    AuditEventType = "marked_done"
	AuditLogUpdate     AuditEventType = "log_update"
	AuditUpdateRemoved AuditEventType = "update_removed"
)

// FundStatus is the projected health of a sinking fund for a month.
type FundStatus string

const (
	FundDue     FundStatus = "due"
	FundReady   FundStatus = "ready"
	FundBehind  FundStatus = "behind"
	FundOnTrack FundStatus = "on_track"
)

// Template is a recurring bill definition from which monthly instances
// are generated. Archiving (Active=false) stops future materialization
// without deleting history.
type Template struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Category        string    `json:"category,omitempty"`
	AmountDefault   Money     `json:"amount_default"`
	DueDay          int       `json:"due_day"`
	Autopay         bool      `json:"autopay"`
	Essential       bool      `json:"essential"`
	Active          bool      `json:"active"`
	DefaultNote     string    `json:"default_note,omitempty"`
	PayeeKey        string    `json:"payee_key,omitempty"`
	AmountTolerance Money     `json:"amount_tolerance,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Validate checks the template invariants.
func (t Template) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return InvalidField("name", "must not be empty")
	}
	if t.DueDay < 1 || t.DueDay > 31 {
		return InvalidField("due_day", "must be between 1 and 31")
	}
	if t.AmountDefault.Cents < 0 {
		return InvalidField("amount_default", "must not be negative")
	}
	return nil
}

// Instance is one template's occurrence in one (year, month). The
// name/category/amount/autopay/essential fields are snapshot copies
// taken from the template at materialization time, so later template
// edits never change past months unless explicitly reapplied.
type Instance struct {
	ID         string         `json:"id"`
	TemplateID string         `json:"template_id"`
	Year       int            `json:"year"`
	Month      int            `json:"month"`
	Name       string         `json:"name"`
	Category   string         `json:"category,omitempty"`
	Amount     Money          `json:"amount"`
	Autopay    bool           `json:"autopay"`
	Essential  bool           `json:"essential"`
	DueDate    Date           `json:"due_date"`
	Status     InstanceStatus `json:"status"`
	PaidDate   Date           `json:"paid_date,omitempty"`
	Note       string         `json:"note,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Snapshot copies the template's snapshot fields onto the instance and
// recomputes the due date from the clamped due day.
func (i *Instance) Snapshot(t Template) {
	i.Name = t.Name
	i.Category = t.Category
	i.Amount = t.AmountDefault
	i.Autopay = t.Autopay
	i.Essential = t.Essential
	i.DueDate = NewDate(i.Year, i.Month, ClampDay(t.DueDay, i.Year, i.Month))
}

// PaymentEvent is an atomic partial or full payment against an
// instance. Paid and remaining amounts are always derived from the sum
// of events, never stored.
type PaymentEvent struct {
	ID         string    `json:"id"`
	InstanceID string    `json:"instance_id"`
	Amount     Money     `json:"amount"`
	PaidDate   Date      `json:"paid_date"`
	CreatedAt  time.Time `json:"created_at"`
}

// Validate checks the payment invariants.
func (p PaymentEvent) Validate() error {
	if p.InstanceID == "" {
		return InvalidField("instance_id", "must not be empty")
	}
	if !p.Amount.IsPositive() {
		return InvalidField("amount", "must be greater than zero")
	}
	if p.PaidDate.IsZero() {
		return InvalidField("paid_date", "must be a valid date")
	}
	return nil
}

// InstanceEvent is an append-only audit record of a mutation on an
// instance, carrying a structured before/after detail map.
type InstanceEvent struct {
	ID         string         `json:"id"`
	InstanceID string         `json:"instance_id"`
	Type       AuditEventType `json:"type"`
	Detail     map[string]any `json:"detail,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// SinkingFund is a savings goal accumulated toward a future lump
// payment. Its balance is always re-derived from events.
type SinkingFund struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Category       string    `json:"category,omitempty"`
	TargetAmount   Money     `json:"target_amount"`
	DueDate        Date      `json:"due_date"`
	Cadence        string    `json:"cadence"`
	Essential      bool      `json:"essential"`
	Active         bool      `json:"active"`
	AutoContribute bool      `json:"auto_contribute"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Validate checks the fund invariants.
func (f SinkingFund) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return InvalidField("name", "must not be empty")
	}
	if f.TargetAmount.Cents < 0 {
		return InvalidField("target_amount", "must not be negative")
	}
	if !validCadence(f.Cadence) {
		return InvalidField("cadence", "must be quarterly, yearly or a month count of at least 1")
	}
	return nil
}

func validCadence(c string) bool {
	switch strings.ToLower(strings.TrimSpace(c)) {
	case "quarterly", "yearly":
		return true
	}
	n, err := strconv.Atoi(strings.TrimSpace(c))
	return err == nil && n >= 1
}

// CadenceMonths resolves the fund's cadence to months per cycle:
// quarterly is 3, yearly is 12, otherwise the stored explicit count
// with a minimum of 1.
func (f SinkingFund) CadenceMonths() int {
	switch strings.ToLower(strings.TrimSpace(f.Cadence)) {
	case "quarterly":
		return 3
	case "yearly":
		return 12
	}
	n, err := strconv.Atoi(strings.TrimSpace(f.Cadence))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// SinkingEvent is a contribution to or withdrawal from a fund.
type SinkingEvent struct {
	ID        string           `json:"id"`
	FundID    string           `json:"fund_id"`
	Type      SinkingEventType `json:"type"`
	Amount    Money            `json:"amount"`
	Date      Date             `json:"date"`
	Note      string           `json:"note,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// Validate checks the sinking-event invariants.
func (e SinkingEvent) Validate() error {
	if e.FundID == "" {
		return InvalidField("fund_id", "must not be empty")
	}
	if !e.Type.Valid() {
		return InvalidField("type", "must be CONTRIBUTION or WITHDRAWAL")
	}
	if !e.Amount.IsPositive() {
		return InvalidField("amount", "must be greater than zero")
	}
	if e.Date.IsZero() {
		return InvalidField("date", "must be a valid date")
	}
	return nil
}

// MonthSettings holds the per-(year, month) starting cash figure.
// Upsert-only, keyed by the pair.
type MonthSettings struct {
	Year      int   `json:"year"`
	Month     int   `json:"month"`
	CashStart Money `json:"cash_start"`
}

// Settings is the process-wide configuration.
type Settings struct {
	DefaultSort string   `json:"default_sort"`
	DueSoonDays int      `json:"due_soon_days"`
	DefaultView string   `json:"default_view"`
	Categories  []string `json:"categories"`
}

// DefaultSettings returns the settings used for a fresh store.
func DefaultSettings() Settings {
	return Settings{
		DefaultSort: "due_date",
		DueSoonDays: 7,
		DefaultView: "month",
	}
}

// Normalize clamps out-of-range values and deduplicates categories
// while preserving their order.
func (s *Settings) Normalize() {
	if s.DefaultSort == "" {
		s.DefaultSort = "due_date"
	}
	if s.DueSoonDays < 1 {
		s.DueSoonDays = 1
	}
	if s.DueSoonDays > 31 {
		s.DueSoonDays = 31
	}
	if s.DefaultView == "" {
		s.DefaultView = "month"
	}
	seen := map[string]struct{}{}
	out := make([]string, 0, len(s.Categories))
	for _, c := range s.Categories {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	s.Categories = out
}
