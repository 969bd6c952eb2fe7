package core

import (
	"strings"
	"testing"
	"time"

	"budget/internal/period"
)

func TestMoneyValidate(t *testing.T) {
	if err := (Money{Cents: 1}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Money{Cents: 0}).Validate(); err == nil {
		t.Fatalf("expected error for zero")
	}
}

func TestSpendingValidate(t *testing.T) {
	good := Spending{
		Date:        period.NewDate(2025, time.January, 1),
		Amount:      Money{Cents: 100},
		Description: "groceries",
		CategoryID:  1,
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	undated := good
	undated.Date = period.Date{}
	if err := undated.Validate(); err != nil {
		t.Fatalf("expected zero date to be accepted, got %v", err)
	}

	bads := []struct {
		name string
		mod  func(*Spending)
		want error
	}{
		{"impossible date", func(s *Spending) { s.Date = period.NewDate(2025, time.February, 30) }, ErrInvalidDate},
		{"zero amount", func(s *Spending) { s.Amount = Money{} }, ErrInvalidAmount},
		{"negative amount", func(s *Spending) { s.Amount = Money{Cents: -5} }, ErrInvalidAmount},
		{"no category", func(s *Spending) { s.CategoryID = 0 }, ErrMissingCategory},
		{"long description", func(s *Spending) { s.Description = strings.Repeat("x", 201) }, ErrDescriptionTooLong},
	}
	for _, tc := range bads {
		t.Run(tc.name, func(t *testing.T) {
			s := good
			tc.mod(&s)
			if err := s.Validate(); err != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestCategoryValidate(t *testing.T) {
	if err := (Category{Name: "Food", MonthlyBudget: Money{Cents: 0}}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Category{Name: "  "}).Validate(); err != ErrEmptyName {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}
	if err := (Category{Name: strings.Repeat("n", 101)}).Validate(); err != ErrNameTooLong {
		t.Fatalf("expected ErrNameTooLong, got %v", err)
	}
	if err := (Category{Name: "Food", MonthlyBudget: Money{Cents: -1}}).Validate(); err != ErrInvalidBudget {
		t.Fatalf("expected ErrInvalidBudget, got %v", err)
	}
}

func TestMemberValidate(t *testing.T) {
	if err := (Member{Username: "anna", Role: RoleAdmin}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Member{Username: "anna", Role: "owner"}).Validate(); err != ErrInvalidRole {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
	if err := (Member{Role: RoleMember}).Validate(); err != ErrEmptyName {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}
}

func TestSubcategoryValidate(t *testing.T) {
	if err := (Subcategory{Name: "Bakery"}).Validate(); err != ErrMissingCategory {
		t.Fatalf("expected ErrMissingCategory, got %v", err)
	}
	if err := (Subcategory{CategoryID: 2, Name: "Bakery"}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
}

func TestPeriodStatsOverBudget(t *testing.T) {
	stats := PeriodStats{Categories: []CategoryStat{
		{Name: "Food", MonthlyBudget: Money{Cents: 100}, Remaining: Money{Cents: -1}},
		{Name: "Fun", MonthlyBudget: Money{Cents: 100}, Remaining: Money{Cents: 10}},
		{Name: "Misc", MonthlyBudget: Money{}, Remaining: Money{Cents: -500}},
	}}
	over := stats.OverBudget()
	if len(over) != 1 || over[0].Name != "Food" {
		t.Fatalf("unexpected over-budget categories: %+v", over)
	}
}
