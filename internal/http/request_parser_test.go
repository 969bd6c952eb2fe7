package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"budget/internal/core"
	"budget/internal/period"
)

func TestParseSpendingFilter(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		wantErr   bool
		wantRange string
		wantCat   int64
		wantLimit int
	}{
		{"empty", "", false, "", 0, 0},
		{"range", "start=2024-02-15&end=2024-03-14", false, "2024-02-15..2024-03-14", 0, 0},
		{"single day range", "start=2024-03-01&end=2024-03-01", false, "2024-03-01..2024-03-01", 0, 0},
		{"category and limit", "categoryId=7&limit=20", false, "", 7, 20},
		{"start without end", "start=2024-03-01", true, "", 0, 0},
		{"end before start", "start=2024-03-10&end=2024-03-01", true, "", 0, 0},
		{"invalid start", "start=2024-02-31&end=2024-03-01", true, "", 0, 0},
		{"zero category", "categoryId=0", true, "", 0, 0},
		{"negative member", "memberId=-3", true, "", 0, 0},
		{"limit too big", "limit=501", true, "", 0, 0},
		{"limit not a number", "limit=all", true, "", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, _ := url.ParseQuery(tt.query)
			f, err := parseSpendingFilter(q)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseSpendingFilter(%q) error = %v, wantErr %v", tt.query, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			gotRange := ""
			if f.Range != nil {
				gotRange = f.Range.String()
			}
			if gotRange != tt.wantRange || f.CategoryID != tt.wantCat || f.Limit != tt.wantLimit {
				t.Errorf("filter = range %q cat %d limit %d", gotRange, f.CategoryID, f.Limit)
			}
		})
	}
}

func TestParseDateQueryWrapsInvalidDate(t *testing.T) {
	_, err := parseDateQuery(url.Values{"date": {"2023-02-29"}}, "date")
	if !errors.Is(err, period.ErrInvalidDate) {
		t.Fatalf("error = %v, want ErrInvalidDate", err)
	}
	d, err := parseDateQuery(url.Values{}, "date")
	if err != nil || !d.IsZero() {
		t.Fatalf("absent date = %v, %v", d, err)
	}
}

func TestParsePathID(t *testing.T) {
	for _, v := range []string{"", "0", "-1", "abc", "1.5"} {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.SetPathValue("id", v)
		if _, err := parsePathID(r, "id"); !errors.Is(err, errBadRequest) {
			t.Errorf("parsePathID(%q) error = %v", v, err)
		}
	}
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.SetPathValue("id", "42")
	if id, err := parsePathID(r, "id"); err != nil || id != 42 {
		t.Errorf("parsePathID(42) = %d, %v", id, err)
	}
}

func TestFlexString(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{`"15"`, "15", false},
		{`15`, "15", false},
		{`12.5`, "12.5", false},
		{`""`, "", false},
		{`true`, "", true},
		{`[1]`, "", true},
	}
	for _, tt := range tests {
		var f flexString
		err := json.Unmarshal([]byte(tt.in), &f)
		if (err != nil) != tt.wantErr {
			t.Errorf("Unmarshal(%s) error = %v", tt.in, err)
			continue
		}
		if string(f) != tt.want {
			t.Errorf("Unmarshal(%s) = %q, want %q", tt.in, f, tt.want)
		}
	}
}

func TestSpendingRequestAmount(t *testing.T) {
	cents := int64(250)
	tests := []struct {
		name    string
		req     spendingRequest
		want    int64
		wantErr error
	}{
		{"cents win over decimal", spendingRequest{AmountCents: &cents, Amount: "9.99", CategoryID: 1}, 250, nil},
		{"decimal comma", spendingRequest{Amount: "3,5", CategoryID: 1}, 350, nil},
		{"missing", spendingRequest{CategoryID: 1}, 0, core.ErrInvalidAmount},
		{"zero decimal", spendingRequest{Amount: "0.00", CategoryID: 1}, 0, core.ErrInvalidAmount},
		{"bad date", spendingRequest{Date: "yesterday", Amount: "1"}, 0, period.ErrInvalidDate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sp, err := tt.req.toSpending()
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil || sp.Amount.Cents != tt.want {
				t.Fatalf("toSpending() = %d, %v", sp.Amount.Cents, err)
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"object", `{"name": "x"}`, false},
		{"empty", ``, true},
		{"unknown field", `{"name": "x", "other": 1}`, true},
		{"two objects", `{"name": "x"} {"name": "y"}`, true},
		{"too large", `{"name": "` + strings.Repeat("a", maxBodyBytes) + `"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst subcategoryRequest
			err := decodeJSON(httptest.NewRecorder(), r, &dst)
			if (err != nil) != tt.wantErr {
				t.Fatalf("decodeJSON error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errBadRequest) {
				t.Errorf("error %v does not wrap errBadRequest", err)
			}
		})
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct{ in, want string }{
		{"  Groceries  ", "Groceries"},
		{"line\x00break", "linebreak"},
		{"tab\tkept", "tab\tkept"},
		{"\x07bell", "bell"},
	}
	for _, tt := range tests {
		if got := sanitizeInput(tt.in); got != tt.want {
			t.Errorf("sanitizeInput(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
