package core

import (
	"encoding/json"
	"testing"
)

func TestParseDecimalToCents(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half-up rounding
		{" 2.50 ", 250, true},
		{"-1", 0, false},
		{"0", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseDecimalToCents(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestParseBudgetToCents(t *testing.T) {
	if got, err := ParseBudgetToCents("0"); err != nil || got != 0 {
		t.Fatalf("expected zero budget to be accepted, got %d (err=%v)", got, err)
	}
	if got, err := ParseBudgetToCents("450,5"); err != nil || got != 45050 {
		t.Fatalf("expected 45050, got %d (err=%v)", got, err)
	}
	if _, err := ParseBudgetToCents("-3"); err != ErrInvalidBudget {
		t.Fatalf("expected ErrInvalidBudget, got %v", err)
	}
}

func TestMoneyString(t *testing.T) {
	cases := map[int64]string{
		0:     "0.00",
		5:     "0.05",
		1234:  "12.34",
		-50:   "-0.50",
		10000: "100.00",
	}
	for cents, want := range cases {
		if got := (Money{Cents: cents}).String(); got != want {
			t.Errorf("Money{%d}.String() = %q, want %q", cents, got, want)
		}
	}
}

func TestMoneyJSONIsCents(t *testing.T) {
	b, err := json.Marshal(struct {
		Amount Money `json:"amountCents"`
	}{Money{Cents: 1999}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"amountCents":1999}` {
		t.Fatalf("unexpected JSON %s", b)
	}

	var m Money
	if err := json.Unmarshal([]byte("250"), &m); err != nil || m.Cents != 250 {
		t.Fatalf("unmarshal = %d, %v", m.Cents, err)
	}
	if err := json.Unmarshal([]byte(`"x"`), &m); err == nil {
		t.Fatalf("expected error for non-integer cents")
	}
}
