package core

import (
	"reflect"
	"testing"
)

func TestInstance_Snapshot(t *testing.T) {
	tmpl := Template{
		Name:          "Rent",
		Category:      "housing",
		AmountDefault: Money{Cents: 120000},
		DueDay:        31,
		Autopay:       true,
		Essential:     true,
	}

	inst := Instance{Year: 2026, Month: 2}
	inst.Snapshot(tmpl)

	if inst.Name != "Rent" || inst.Category != "housing" {
		t.Errorf("snapshot fields = %q/%q, want Rent/housing", inst.Name, inst.Category)
	}
	if inst.Amount.Cents != 120000 {
		t.Errorf("Amount = %d, want 120000", inst.Amount.Cents)
	}
	if !inst.Autopay || !inst.Essential {
		t.Error("autopay and essential should be copied")
	}
	// February has no day 31
	if inst.DueDate.String() != "2026-02-28" {
		t.Errorf("DueDate = %s, want 2026-02-28", inst.DueDate)
	}
}

func TestTemplate_Validate(t *testing.T) {
	valid := Template{Name: "Power", AmountDefault: Money{Cents: 4500}, DueDay: 15}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid template rejected: %v", err)
	}

	tests := []struct {
		name string
		mod  func(*Template)
	}{
		{"empty name", func(t *Template) { t.Name = "  " }},
		{"due day zero", func(t *Template) { t.DueDay = 0 }},
		{"due day too large", func(t *Template) { t.DueDay = 32 }},
		{"negative amount", func(t *Template) { t.AmountDefault = Money{Cents: -1} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl := valid
			tt.mod(&tmpl)
			if err := tmpl.Validate(); err == nil {
				t.Error("Validate() expected error, got nil")
			}
		})
	}
}

func TestSinkingFund_CadenceMonths(t *testing.T) {
	tests := []struct {
		cadence string
		want    int
	}{
		{"quarterly", 3},
		{"Quarterly", 3},
		{"yearly", 12},
		{"6", 6},
		{"1", 1},
		{"0", 1},
		{"garbage", 1},
		{"", 1},
	}
	for _, tt := range tests {
		f := SinkingFund{Cadence: tt.cadence}
		if got := f.CadenceMonths(); got != tt.want {
			t.Errorf("CadenceMonths(%q) = %d, want %d", tt.cadence, got, tt.want)
		}
	}
}

func TestSinkingFund_Validate(t *testing.T) {
	valid := SinkingFund{Name: "Insurance", TargetAmount: Money{Cents: 120000}, Cadence: "yearly"}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid fund rejected: %v", err)
	}
	invalid := valid
	invalid.Cadence = "sometimes"
	if err := invalid.Validate(); err == nil {
		t.Error("invalid cadence accepted")
	}
}

func TestSettings_Normalize(t *testing.T) {
	s := Settings{
		DueSoonDays: 99,
		Categories:  []string{"housing", " utilities ", "housing", "", "food"},
	}
	s.Normalize()

	if s.DueSoonDays != 31 {
		t.Errorf("DueSoonDays = %d, want 31", s.DueSoonDays)
	}
	if s.DefaultSort != "due_date" || s.DefaultView != "month" {
		t.Errorf("defaults not applied: sort=%q view=%q", s.DefaultSort, s.DefaultView)
	}
	want := []string{"housing", "utilities", "food"}
	if !reflect.DeepEqual(s.Categories, want) {
		t.Errorf("Categories = %v, want %v", s.Categories, want)
	}
}
