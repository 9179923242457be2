package engine

import (
	"encoding/json"
	"fmt"

	"billbook/internal/core"
)

// ActionType names one command in the closed dispatch set.
type ActionType string

const (
	ActionMarkPaid             ActionType = "MARK_PAID"
	ActionMarkPending          ActionType = "MARK_PENDING"
	ActionSkipInstance         ActionType = "SKIP_INSTANCE"
	ActionAddPayment           ActionType = "ADD_PAYMENT"
	ActionUndoPayment          ActionType = "UNDO_PAYMENT"
	ActionUpdateInstanceFields ActionType = "UPDATE_INSTANCE_FIELDS"
	ActionCreateTemplate       ActionType = "CREATE_TEMPLATE"
	ActionUpdateTemplate       ActionType = "UPDATE_TEMPLATE"
	ActionArchiveTemplate      ActionType = "ARCHIVE_TEMPLATE"
	ActionDeleteTemplate       ActionType = "DELETE_TEMPLATE"
	ActionApplyTemplates       ActionType = "APPLY_TEMPLATES"
	ActionSetCashStart         ActionType = "SET_CASH_START"
	ActionCreateFund           ActionType = "CREATE_FUND"
	ActionUpdateFund           ActionType = "UPDATE_FUND"
	ActionArchiveFund          ActionType = "ARCHIVE_FUND"
	ActionDeleteFund           ActionType = "DELETE_FUND"
	ActionAddSinkingEvent      ActionType = "ADD_SINKING_EVENT"
	ActionMarkFundPaid         ActionType = "MARK_FUND_PAID"
	ActionGenerateMonth        ActionType = "GENERATE_MONTH"
)

// Action is one dispatched command: a type tag plus its payload.
type Action struct {
	Type    ActionType      `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// decodePayload decodes an action payload, reporting malformed input as
// a validation error so it never reaches the store.
func decodePayload[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, core.Invalid("missing payload")
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, core.Invalidf("invalid payload: %v", err)
	}
	return v, nil
}

// parseOptionalDate validates a payload date string, where empty means
// absent.
func parseOptionalDate(field, s string) (core.Date, error) {
	if s == "" {
		return core.Date{}, nil
	}
	d, err := core.ParseDate(s)
	if err != nil {
		return core.Date{}, core.InvalidField(field, "must be a valid YYYY-MM-DD date")
	}
	return d, nil
}

type markPaidPayload struct {
	InstanceID string `json:"instance_id"`
	PaidDate   string `json:"paid_date"`
}

func (p markPaidPayload) validate() error {
	if p.InstanceID == "" {
		return core.InvalidField("instance_id", "is required")
	}
	_, err := parseOptionalDate("paid_date", p.PaidDate)
	return err
}

type markPendingPayload struct {
	InstanceID string `json:"instance_id"`
}

type skipInstancePayload struct {
	InstanceID string `json:"instance_id"`
}

type addPaymentPayload struct {
	InstanceID string     `json:"instance_id"`
	Amount     core.Money `json:"amount"`
	PaidDate   string     `json:"paid_date"`
}

func (p addPaymentPayload) validate() error {
	if p.InstanceID == "" {
		return core.InvalidField("instance_id", "is required")
	}
	if !p.Amount.IsPositive() {
		return core.InvalidField("amount", "must be greater than zero")
	}
	_, err := parseOptionalDate("paid_date", p.PaidDate)
	return err
}

type undoPaymentPayload struct {
	PaymentID string `json:"payment_id"`
}

type updateInstancePayload struct {
	InstanceID string      `json:"instance_id"`
	Name       *string     `json:"name"`
	Category   *string     `json:"category"`
	Amount     *core.Money `json:"amount"`
	DueDate    *string     `json:"due_date"`
	Status     *string     `json:"status"`
	PaidDate   *string     `json:"paid_date"`
	Note       *string     `json:"note"`
	Autopay    *bool       `json:"autopay"`
	Essential  *bool       `json:"essential"`
}

func (p updateInstancePayload) validate() error {
	if p.InstanceID == "" {
		return core.InvalidField("instance_id", "is required")
	}
	if p.Name != nil && *p.Name == "" {
		return core.InvalidField("name", "must not be empty")
	}
	if p.Amount != nil && p.Amount.Cents < 0 {
		return core.InvalidField("amount", "must not be negative")
	}
	if p.DueDate != nil {
		if _, err := parseOptionalDate("due_date", *p.DueDate); err != nil {
			return err
		}
	}
	if p.Status != nil && !core.InstanceStatus(*p.Status).Valid() {
		return core.InvalidField("status", "must be pending, paid or skipped")
	}
	if p.PaidDate != nil && *p.PaidDate != "" {
		if _, err := parseOptionalDate("paid_date", *p.PaidDate); err != nil {
			return err
		}
	}
	return nil
}

type createTemplatePayload struct {
	Name            string     `json:"name"`
	Category        string     `json:"category"`
	AmountDefault   core.Money `json:"amount_default"`
	DueDay          int        `json:"due_day"`
	Autopay         bool       `json:"autopay"`
	Essential       *bool      `json:"essential"`
	Active          *bool      `json:"active"`
	DefaultNote     string     `json:"default_note"`
	PayeeKey        string     `json:"payee_key"`
	AmountTolerance core.Money `json:"amount_tolerance"`
	Year            int        `json:"year"`
	Month           int        `json:"month"`
}

type updateTemplatePayload struct {
	TemplateID      string      `json:"template_id"`
	Name            *string     `json:"name"`
	Category        *string     `json:"category"`
	AmountDefault   *core.Money `json:"amount_default"`
	DueDay          *int        `json:"due_day"`
	Autopay         *bool       `json:"autopay"`
	Essential       *bool       `json:"essential"`
	Active          *bool       `json:"active"`
	DefaultNote     *string     `json:"default_note"`
	PayeeKey        *string     `json:"payee_key"`
	AmountTolerance *core.Money `json:"amount_tolerance"`
	Year            int         `json:"year"`
	Month           int         `json:"month"`
}

type templateIDPayload struct {
	TemplateID string `json:"template_id"`
}

type deleteTemplatePayload struct {
	TemplateID string `json:"template_id"`
	Year       int    `json:"year"`
	Month      int    `json:"month"`
}

type monthPayload struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

type setCashStartPayload struct {
	Year   int        `json:"year"`
	Month  int        `json:"month"`
	Amount core.Money `json:"amount"`
}

type createFundPayload struct {
	Name           string     `json:"name"`
	Category       string     `json:"category"`
	TargetAmount   core.Money `json:"target_amount"`
	DueDate        string     `json:"due_date"`
	Cadence        string     `json:"cadence"`
	Essential      bool       `json:"essential"`
	Active         *bool      `json:"active"`
	AutoContribute bool       `json:"auto_contribute"`
}

type updateFundPayload struct {
	FundID         string      `json:"fund_id"`
	Name           *string     `json:"name"`
	Category       *string     `json:"category"`
	TargetAmount   *core.Money `json:"target_amount"`
	DueDate        *string     `json:"due_date"`
	Cadence        *string     `json:"cadence"`
	Essential      *bool       `json:"essential"`
	Active         *bool       `json:"active"`
	AutoContribute *bool       `json:"auto_contribute"`
}

type fundIDPayload struct {
	FundID string `json:"fund_id"`
}

type addSinkingEventPayload struct {
	FundID string     `json:"fund_id"`
	Type   string     `json:"type"`
	Amount core.Money `json:"amount"`
	Date   string     `json:"date"`
	Note   string     `json:"note"`
}

func (p addSinkingEventPayload) validate() error {
	if p.FundID == "" {
		return core.InvalidField("fund_id", "is required")
	}
	if !core.SinkingEventType(p.Type).Valid() {
		return core.InvalidField("type", "must be CONTRIBUTION or WITHDRAWAL")
	}
	if !p.Amount.IsPositive() {
		return core.InvalidField("amount", "must be greater than zero")
	}
	if p.Date == "" {
		return core.InvalidField("date", "is required")
	}
	_, err := parseOptionalDate("date", p.Date)
	return err
}

type markFundPaidPayload struct {
	FundID string      `json:"fund_id"`
	Amount *core.Money `json:"amount"`
	Date   string      `json:"date"`
}

func (a Action) String() string {
	return fmt.Sprintf("action %s", a.Type)
}
