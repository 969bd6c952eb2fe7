package core

import (
	"errors"
	"strings"
	"time"

	"budget/internal/period"
)

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

const (
	maxNameLength        = 100
	maxDescriptionLength = 200
)

type (
	Role string

	Money struct {
		Cents int64
	}

	Setting struct {
		Key       string    `json:"key"`
		Value     string    `json:"value"`
		UpdatedAt time.Time `json:"updatedAt"`
	}

	Member struct {
		ID        int64     `json:"id"`
		Username  string    `json:"username"`
		Role      Role      `json:"role"`
		CreatedAt time.Time `json:"createdAt"`
	}

	Category struct {
		ID            int64     `json:"id"`
		Name          string    `json:"name"`
		MonthlyBudget Money     `json:"monthlyBudgetCents"`
		CreatedBy     *int64    `json:"createdBy,omitempty"`
		CreatedAt     time.Time `json:"createdAt"`
	}

	Subcategory struct {
		ID         int64  `json:"id"`
		CategoryID int64  `json:"categoryId"`
		Name       string `json:"name"`
	}

	PaymentMethod struct {
		ID        int64  `json:"id"`
		Name      string `json:"name"`
		Icon      string `json:"icon,omitempty"`
		IsDefault bool   `json:"isDefault"`
	}

	Spending struct {
		ID              int64       `json:"id"`
		Date            period.Date `json:"date"`
		Amount          Money       `json:"amountCents"`
		Description     string      `json:"description"`
		CategoryID      int64       `json:"categoryId"`
		CategoryName    string      `json:"categoryName,omitempty"`
		SubcategoryID   *int64      `json:"subcategoryId,omitempty"`
		SubcategoryName string      `json:"subcategoryName,omitempty"`
		PaymentMethodID *int64      `json:"paymentMethodId,omitempty"`
		MemberID        *int64      `json:"memberId,omitempty"`
		MemberName      string      `json:"memberName,omitempty"`
		CreatedAt       time.Time   `json:"createdAt"`
	}
)

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidBudget      = errors.New("monthly budget must be a non-negative amount")
	ErrInvalidDate        = errors.New("invalid date")
	ErrEmptyName          = errors.New("empty name")
	ErrNameTooLong        = errors.New("name too long (max 100 characters)")
	ErrDescriptionTooLong = errors.New("description too long (max 200 characters)")
	ErrMissingCategory    = errors.New("category is required")
	ErrInvalidRole        = errors.New("role must be admin or member")
)

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (r Role) Validate() error {
	switch r {
	case RoleAdmin, RoleMember:
		return nil
	default:
		return ErrInvalidRole
	}
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	if len(name) > maxNameLength {
		return ErrNameTooLong
	}
	return nil
}

func (m Member) Validate() error {
	if err := validateName(m.Username); err != nil {
		return err
	}
	return m.Role.Validate()
}

func (c Category) Validate() error {
	if err := validateName(c.Name); err != nil {
		return err
	}
	if c.MonthlyBudget.Cents < 0 {
		return ErrInvalidBudget
	}
	return nil
}

func (s Subcategory) Validate() error {
	if s.CategoryID <= 0 {
		return ErrMissingCategory
	}
	return validateName(s.Name)
}

func (p PaymentMethod) Validate() error {
	return validateName(p.Name)
}

// Validate checks the spending fields that do not need storage lookups.
// A zero Date is accepted; callers default it to today.
func (s Spending) Validate() error {
	if !s.Date.IsZero() && !s.Date.IsValid() {
		return ErrInvalidDate
	}
	if err := s.Amount.Validate(); err != nil {
		return err
	}
	if s.CategoryID <= 0 {
		return ErrMissingCategory
	}
	if len(s.Description) > maxDescriptionLength {
		return ErrDescriptionTooLong
	}
	return nil
}
