package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"budget/internal/core"
	"budget/internal/period"
	"budget/internal/services"
	"budget/internal/storage"
)

const (
	maxBodyBytes     = 1 << 20
	maxSpendingLimit = 500
)

// errBadRequest marks malformed requests: bad JSON, bad ids, bad query values.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// parseDateQuery reads an optional YYYY-MM-DD query value. An absent value
// yields the zero Date.
func parseDateQuery(query url.Values, name string) (period.Date, error) {
	v := strings.TrimSpace(query.Get(name))
	if v == "" {
		return period.Date{}, nil
	}
	d, err := period.ParseDate(v)
	if err != nil {
		return period.Date{}, fmt.Errorf("%s: %w", name, err)
	}
	return d, nil
}

// parseIDQuery reads an optional positive id from the query string.
func parseIDQuery(query url.Values, name string) (int64, error) {
	v := strings.TrimSpace(query.Get(name))
	if v == "" {
		return 0, nil
	}
	return parseID(name, v)
}

// parsePathID reads the {name} wildcard of a route pattern as a positive id.
func parsePathID(r *http.Request, name string) (int64, error) {
	return parseID(name, r.PathValue(name))
}

func parseID(name, v string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("%s must be a positive integer, got %q", name, v)
	}
	return id, nil
}

// parseSpendingFilter builds a listing filter from the query string. The
// range is left nil when neither start nor end is given.
// parseRangeQuery reads ?start= and ?end=. Both or neither must be given;
// neither yields a nil range.
func parseRangeQuery(query url.Values) (*period.Range, error) {
	start, err := parseDateQuery(query, "start")
	if err != nil {
		return nil, err
	}
	end, err := parseDateQuery(query, "end")
	if err != nil {
		return nil, err
	}
	switch {
	case start.IsZero() && end.IsZero():
		return nil, nil
	case start.IsZero() || end.IsZero():
		return nil, badRequest("start and end must be given together")
	case start.After(end):
		return nil, badRequest("start %s is after end %s", start, end)
	}
	return &period.Range{Start: start, End: end}, nil
}

func parseSpendingFilter(query url.Values) (storage.SpendingFilter, error) {
	var (
		f   storage.SpendingFilter
		err error
	)
	if f.Range, err = parseRangeQuery(query); err != nil {
		return f, err
	}

	if f.CategoryID, err = parseIDQuery(query, "categoryId"); err != nil {
		return f, err
	}
	if f.MemberID, err = parseIDQuery(query, "memberId"); err != nil {
		return f, err
	}

	if v := strings.TrimSpace(query.Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxSpendingLimit {
			return f, badRequest("limit must be between 1 and %d, got %q", maxSpendingLimit, v)
		}
		f.Limit = n
	}
	return f, nil
}

// decodeJSON reads a single JSON object from the request body into dst.
// Unknown fields and trailing data are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return badRequest("request body is empty")
		case errors.As(err, &maxErr):
			return badRequest("request body exceeds %d bytes", maxErr.Limit)
		default:
			return badRequest("invalid JSON body: %v", err)
		}
	}
	if dec.More() {
		return badRequest("request body must contain a single JSON object")
	}
	return nil
}

// flexString accepts a JSON string or number and keeps its text form, so
// {"value": 15} and {"value": "15"} mean the same.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected a string or a number, got %s", b)
	}
	*f = flexString(n.String())
	return nil
}

type settingRequest struct {
	Value *flexString `json:"value"`
}

// amountInput accepts an amount either as integer cents or as a decimal
// string such as "12.34" or "12,34".
type amountInput struct {
	Cents   *int64
	Decimal flexString
}

func (a amountInput) cents(parse func(string) (int64, error)) (int64, bool, error) {
	if a.Cents != nil {
		return *a.Cents, true, nil
	}
	if strings.TrimSpace(string(a.Decimal)) == "" {
		return 0, false, nil
	}
	cents, err := parse(string(a.Decimal))
	if err != nil {
		return 0, true, err
	}
	return cents, true, nil
}

type spendingRequest struct {
	Date            string     `json:"date"`
	AmountCents     *int64     `json:"amountCents"`
	Amount          flexString `json:"amount"`
	Description     string     `json:"description"`
	CategoryID      int64      `json:"categoryId"`
	SubcategoryID   *int64     `json:"subcategoryId"`
	PaymentMethodID *int64     `json:"paymentMethodId"`
	MemberID        *int64     `json:"memberId"`
}

func (req spendingRequest) toSpending() (core.Spending, error) {
	sp := core.Spending{
		Description:     sanitizeInput(req.Description),
		CategoryID:      req.CategoryID,
		SubcategoryID:   req.SubcategoryID,
		PaymentMethodID: req.PaymentMethodID,
		MemberID:        req.MemberID,
	}

	if v := strings.TrimSpace(req.Date); v != "" {
		d, err := period.ParseDate(v)
		if err != nil {
			return core.Spending{}, fmt.Errorf("date: %w", err)
		}
		sp.Date = d
	}

	cents, ok, err := amountInput{Cents: req.AmountCents, Decimal: req.Amount}.cents(core.ParseDecimalToCents)
	if err != nil {
		return core.Spending{}, err
	}
	if !ok {
		return core.Spending{}, fmt.Errorf("%w: amount is required", core.ErrInvalidAmount)
	}
	sp.Amount = core.Money{Cents: cents}
	return sp, nil
}

type categoryRequest struct {
	Name               string     `json:"name"`
	MonthlyBudgetCents *int64     `json:"monthlyBudgetCents"`
	MonthlyBudget      flexString `json:"monthlyBudget"`
	CreatedBy          *int64     `json:"createdBy"`
}

func (req categoryRequest) toCategory() (core.Category, error) {
	c := core.Category{
		Name:      sanitizeInput(req.Name),
		CreatedBy: req.CreatedBy,
	}
	cents, _, err := amountInput{Cents: req.MonthlyBudgetCents, Decimal: req.MonthlyBudget}.cents(core.ParseBudgetToCents)
	if err != nil {
		return core.Category{}, err
	}
	c.MonthlyBudget = core.Money{Cents: cents}
	return c, nil
}

type subcategoryRequest struct {
	Name string `json:"name"`
}

type paymentMethodRequest struct {
	Name string `json:"name"`
	Icon string `json:"icon"`
}

type memberRequest struct {
	Username string    `json:"username"`
	Role     core.Role `json:"role"`
}

// memberUpdateRequest leaves absent fields unchanged.
type memberUpdateRequest struct {
	Username *string    `json:"username"`
	Role     *core.Role `json:"role"`
}

func (req memberUpdateRequest) toUpdate() services.MemberUpdate {
	u := services.MemberUpdate{Role: req.Role}
	if req.Username != nil {
		name := sanitizeInput(*req.Username)
		u.Username = &name
	}
	return u
}

type defaultPaymentMethodRequest struct {
	PaymentMethodID int64 `json:"paymentMethodId"`
}

// sanitizeInput drops control characters other than tab and newlines and
// trims the result.
func sanitizeInput(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s))
}
