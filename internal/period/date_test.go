package period

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"2024-02-29", true},
		{"2024-12-31", true},
		{"2023-02-29", false},
		{"2024-04-31", false},
		{"2024-13-01", false},
		{"2024-00-10", false},
		{"2024-3-10", false},
		{"2024/03/10", false},
		{"+024-03-10", false},
		{"", false},
	}
	for _, tc := range cases {
		_, err := ParseDate(tc.in)
		if tc.ok && err != nil {
			t.Fatalf("%q expected ok, got %v", tc.in, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidDate) {
			t.Fatalf("%q expected ErrInvalidDate, got %v", tc.in, err)
		}
	}
}

func TestDateStringPadsParts(t *testing.T) {
	if got := NewDate(987, time.March, 5).String(); got != "0987-03-05" {
		t.Fatalf("String() = %q", got)
	}
}

func TestAddDaysAcrossBoundaries(t *testing.T) {
	cases := []struct {
		from string
		n    int
		want string
	}{
		{"2024-02-28", 1, "2024-02-29"},
		{"2024-02-29", 1, "2024-03-01"},
		{"2024-12-31", 1, "2025-01-01"},
		{"2024-01-01", -1, "2023-12-31"},
		{"2024-03-31", 30, "2024-04-30"},
	}
	for _, tc := range cases {
		if got := d(tc.from).AddDays(tc.n).String(); got != tc.want {
			t.Errorf("%s + %d = %s, want %s", tc.from, tc.n, got, tc.want)
		}
	}
}

func TestCompare(t *testing.T) {
	a, b := d("2024-01-31"), d("2024-02-01")
	if !a.Before(b) || b.Before(a) || !b.After(a) || a.Compare(a) != 0 {
		t.Fatalf("unexpected ordering between %s and %s", a, b)
	}
}

func TestRangeJSON(t *testing.T) {
	r := Compute(d("2024-03-10"), 15)
	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"startDate":"2024-02-15","endDate":"2024-03-14"}` {
		t.Fatalf("unexpected JSON %s", b)
	}

	var back Range
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back != r {
		t.Fatalf("round trip = %s, want %s", back, r)
	}

	if err := json.Unmarshal([]byte(`{"startDate":"2024-02-30","endDate":"2024-03-14"}`), &back); err == nil {
		t.Fatalf("expected error for impossible date")
	}
}
