package core

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseMoney(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{"integer", "12", 1200, false},
		{"two decimals", "12.34", 1234, false},
		{"comma separator", "12,34", 1234, false},
		{"one decimal", "12.5", 1250, false},
		{"third decimal rounds down", "12.344", 1234, false},
		{"third decimal rounds up", "12.345", 1235, false},
		{"zero", "0", 0, false},
		{"zero decimal", "0.00", 0, false},
		{"leading dot", ".50", 50, false},
		{"whitespace trimmed", " 7.25 ", 725, false},
		{"empty", "", 0, true},
		{"negative", "-5", 0, true},
		{"plus sign", "+5", 0, true},
		{"letters", "abc", 0, true},
		{"two dots", "1.2.3", 0, true},
		{"mixed digits", "12a.34", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMoney(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAmount) {
					t.Fatalf("ParseMoney(%q) error = %v, want ErrInvalidAmount", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseMoney(%q) unexpected error: %v", tt.input, err)
			}
			if got.Cents != tt.want {
				t.Errorf("ParseMoney(%q) = %d cents, want %d", tt.input, got.Cents, tt.want)
			}
		})
	}
}

func TestMoney_SubClampsAtZero(t *testing.T) {
	got := Money{Cents: 500}.Sub(Money{Cents: 800})
	if got.Cents != 0 {
		t.Errorf("Sub below zero = %d, want 0", got.Cents)
	}
	got = Money{Cents: 800}.Sub(Money{Cents: 500})
	if got.Cents != 300 {
		t.Errorf("Sub = %d, want 300", got.Cents)
	}
}

func TestMoney_String(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{0, "0.00"},
		{5, "0.05"},
		{1234, "12.34"},
		{120000, "1200.00"},
		{-1234, "-12.34"},
	}
	for _, tt := range tests {
		if got := (Money{Cents: tt.cents}).String(); got != tt.want {
			t.Errorf("Money{%d}.String() = %q, want %q", tt.cents, got, tt.want)
		}
	}
}

func TestMoney_JSON(t *testing.T) {
	data, err := json.Marshal(Money{Cents: 1234})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != "12.34" {
		t.Errorf("marshal = %s, want 12.34", data)
	}

	var m Money
	if err := json.Unmarshal([]byte("12.34"), &m); err != nil {
		t.Fatalf("unmarshal number: %v", err)
	}
	if m.Cents != 1234 {
		t.Errorf("unmarshal number = %d cents, want 1234", m.Cents)
	}

	if err := json.Unmarshal([]byte(`"7,50"`), &m); err != nil {
		t.Fatalf("unmarshal quoted string: %v", err)
	}
	if m.Cents != 750 {
		t.Errorf("unmarshal string = %d cents, want 750", m.Cents)
	}

	if err := json.Unmarshal([]byte("null"), &m); err != nil {
		t.Fatalf("unmarshal null: %v", err)
	}
	if m.Cents != 0 {
		t.Errorf("unmarshal null = %d cents, want 0", m.Cents)
	}
}
