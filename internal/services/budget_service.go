package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"budget/internal/cache"
	"budget/internal/core"
	"budget/internal/log"
	"budget/internal/period"
	"budget/internal/storage"
)

var (
	// ErrValidation marks errors caused by bad input rather than a failure.
	ErrValidation          = errors.New("validation failed")
	ErrUnknownCategory     = errors.New("category does not exist")
	ErrUnknownSubcategory  = errors.New("subcategory does not exist")
	ErrSubcategoryMismatch = errors.New("subcategory does not belong to category")
	ErrUnknownMember       = errors.New("member does not exist")
	ErrUnknownPayment      = errors.New("payment method does not exist")
	ErrLastAdmin           = errors.New("at least one admin must remain")
	ErrNoMemberChanges     = errors.New("no fields to update")
)

// Reasons attached to stats invalidation events.
const (
	ReasonSpendingCreated    = "spending.created"
	ReasonSpendingDeleted    = "spending.deleted"
	ReasonCategoryCreated    = "category.created"
	ReasonCategoryUpdated    = "category.updated"
	ReasonCategoryDeleted    = "category.deleted"
	ReasonSubcategoryDeleted = "subcategory.deleted"
	ReasonMemberDeleted      = "member.deleted"
)

// StartDaySource supplies the configured month start day.
type StartDaySource interface {
	MonthStartDay(ctx context.Context) period.StartDay
}

// StatsNotifier tells other instances that their cached stats are stale.
type StatsNotifier interface {
	PublishStatsInvalidated(ctx context.Context, reason string) error
}

// PeriodInfo is a budget period as reported to clients.
type PeriodInfo struct {
	period.Range
	Label    string          `json:"label"`
	StartDay period.StartDay `json:"monthStartDay"`
}

func newPeriodInfo(r period.Range, s period.StartDay) PeriodInfo {
	return PeriodInfo{Range: r, Label: r.Label(), StartDay: s}
}

// SpendingList is one page of spendings with the total of every spending
// matching the filter, not only those on the page.
type SpendingList struct {
	Period    period.Range    `json:"period"`
	Spendings []core.Spending `json:"spendings"`
	Total     core.Money      `json:"totalCents"`
}

// BudgetService ties the configured start day, the period calculator and
// storage together.
type BudgetService struct {
	storage  *storage.SQLiteRepository
	settings StartDaySource
	stats    *cache.LRUCache[core.PeriodStats]
	notifier StatsNotifier
	logger   *log.Logger
	events   *log.StructuredLogger
	now      func() time.Time

	// statsLoaded runs between the stats query and caching its result.
	statsLoaded func()
}

func NewBudgetService(repo *storage.SQLiteRepository, settings StartDaySource, stats *cache.LRUCache[core.PeriodStats], logger *log.Logger) *BudgetService {
	if logger == nil {
		logger = log.New(log.Config{Handler: slog.Default().Handler()})
	}
	logger = logger.WithComponent(log.ComponentBudget)
	return &BudgetService{
		storage:  repo,
		settings: settings,
		stats:    stats,
		logger:   logger,
		events:   log.NewStructuredLogger(logger),
		now:      time.Now,
	}
}

// WithClock replaces the time source used for "today".
func (s *BudgetService) WithClock(now func() time.Time) *BudgetService {
	s.now = now
	return s
}

// SetNotifier attaches the peer notifier once the message bus is connected.
func (s *BudgetService) SetNotifier(n StatsNotifier) {
	s.notifier = n
}

func (s *BudgetService) today() period.Date {
	return period.DateOf(s.now())
}

// CurrentPeriod returns the period containing today.
func (s *BudgetService) CurrentPeriod(ctx context.Context) PeriodInfo {
	return s.PeriodFor(ctx, s.today())
}

// PeriodFor returns the period containing d under the configured start day.
func (s *BudgetService) PeriodFor(ctx context.Context, d period.Date) PeriodInfo {
	day := s.settings.MonthStartDay(ctx)
	return newPeriodInfo(period.Compute(d, day), day)
}

// Preview computes the period containing d under a proposed start day, so a
// settings change can be shown before it is saved. A zero d means today.
func (s *BudgetService) Preview(d period.Date, day period.StartDay) (PeriodInfo, error) {
	if err := day.Validate(); err != nil {
		return PeriodInfo{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if d.IsZero() {
		d = s.today()
	}
	return newPeriodInfo(period.Compute(d, day), day), nil
}

// Stats reports spending against budget for every category in the period
// containing d. Results are cached per period until a write purges them.
func (s *BudgetService) Stats(ctx context.Context, d period.Date) (core.PeriodStats, error) {
	if d.IsZero() {
		d = s.today()
	}
	info := s.PeriodFor(ctx, d)
	return s.statsFor(ctx, info)
}

// StatsForRange reports spending against budget between two arbitrary dates.
func (s *BudgetService) StatsForRange(ctx context.Context, rng period.Range) (core.PeriodStats, error) {
	if rng.Start.After(rng.End) {
		return core.PeriodStats{}, fmt.Errorf("%w: start %s is after end %s", ErrValidation, rng.Start, rng.End)
	}
	return s.statsFor(ctx, newPeriodInfo(rng, s.settings.MonthStartDay(ctx)))
}

func (s *BudgetService) statsFor(ctx context.Context, info PeriodInfo) (core.PeriodStats, error) {
	key := info.Range.String()

	var gen uint64
	if s.stats != nil {
		if cached, ok := s.stats.Get(key); ok {
			s.logger.DebugContext(ctx, "Stats served from cache", "period", key)
			return cached, nil
		}
		gen = s.stats.Generation()
	}

	categories, err := s.storage.CategoryStats(ctx, info.Range)
	if err != nil {
		return core.PeriodStats{}, fmt.Errorf("load category stats: %w", err)
	}
	if s.statsLoaded != nil {
		s.statsLoaded()
	}

	stats := core.PeriodStats{
		Period:     info.Range,
		Label:      info.Label,
		StartDay:   info.StartDay,
		Categories: categories,
	}
	if stats.Categories == nil {
		stats.Categories = []core.CategoryStat{}
	}
	for _, c := range categories {
		stats.TotalSpent = stats.TotalSpent.Add(c.TotalSpent)
		stats.TotalBudget = stats.TotalBudget.Add(c.MonthlyBudget)
	}

	if s.stats != nil && !s.stats.SetIfGeneration(key, stats, gen) {
		s.logger.DebugContext(ctx, "Stats not cached, purged while loading", "period", key)
	}
	return stats, nil
}

// ListSpendings lists spendings, limited to the current period when the
// filter carries no range. The range used is returned alongside.
func (s *BudgetService) ListSpendings(ctx context.Context, f storage.SpendingFilter) (SpendingList, error) {
	if f.Range == nil {
		current := s.CurrentPeriod(ctx).Range
		f.Range = &current
	}
	out := SpendingList{Period: *f.Range}

	list, err := s.storage.ListSpendings(ctx, f)
	if err != nil {
		return out, fmt.Errorf("list spendings: %w", err)
	}
	if out.Total, err = s.storage.SumSpendings(ctx, f); err != nil {
		return out, fmt.Errorf("total spendings: %w", err)
	}
	if list == nil {
		list = []core.Spending{}
	}
	out.Spendings = list
	return out, nil
}

// AddSpending validates sp against its references and stores it. A zero
// date is recorded as today.
func (s *BudgetService) AddSpending(ctx context.Context, sp core.Spending) (core.Spending, error) {
	sp.Description = strings.TrimSpace(sp.Description)
	if err := sp.Validate(); err != nil {
		return core.Spending{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if sp.Date.IsZero() {
		sp.Date = s.today()
	}

	if err := s.checkReferences(ctx, sp); err != nil {
		return core.Spending{}, err
	}

	created, err := s.storage.CreateSpending(ctx, sp)
	if err != nil {
		return core.Spending{}, fmt.Errorf("save spending: %w", err)
	}
	s.purgeStats(ctx, ReasonSpendingCreated)

	s.events.LogSpendingCreated(ctx, created.ID, created.Description, created.Amount.Cents, created.CategoryID, created.Date.String())
	return created, nil
}

func (s *BudgetService) checkReferences(ctx context.Context, sp core.Spending) error {
	if _, err := s.storage.GetCategory(ctx, sp.CategoryID); err != nil {
		return referenceError(err, ErrUnknownCategory, sp.CategoryID)
	}
	if sp.SubcategoryID != nil {
		sub, err := s.storage.GetSubcategory(ctx, *sp.SubcategoryID)
		if err != nil {
			return referenceError(err, ErrUnknownSubcategory, *sp.SubcategoryID)
		}
		if sub.CategoryID != sp.CategoryID {
			return fmt.Errorf("%w: %w: subcategory %d, category %d", ErrValidation, ErrSubcategoryMismatch, sub.ID, sp.CategoryID)
		}
	}
	if sp.MemberID != nil {
		if _, err := s.storage.GetMember(ctx, *sp.MemberID); err != nil {
			return referenceError(err, ErrUnknownMember, *sp.MemberID)
		}
	}
	if sp.PaymentMethodID != nil {
		if _, err := s.storage.GetPaymentMethod(ctx, *sp.PaymentMethodID); err != nil {
			return referenceError(err, ErrUnknownPayment, *sp.PaymentMethodID)
		}
	}
	return nil
}

func referenceError(err, unknown error, id int64) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %w: %d", ErrValidation, unknown, id)
	}
	return fmt.Errorf("check reference %d: %w", id, err)
}

func (s *BudgetService) DeleteSpending(ctx context.Context, id int64) error {
	if err := s.storage.DeleteSpending(ctx, id); err != nil {
		return err
	}
	s.purgeStats(ctx, ReasonSpendingDeleted)
	return nil
}

func (s *BudgetService) ListCategories(ctx context.Context) ([]core.Category, error) {
	list, err := s.storage.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []core.Category{}
	}
	return list, nil
}

func (s *BudgetService) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	if err := c.Validate(); err != nil {
		return core.Category{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if c.CreatedBy != nil {
		if _, err := s.storage.GetMember(ctx, *c.CreatedBy); err != nil {
			return core.Category{}, referenceError(err, ErrUnknownMember, *c.CreatedBy)
		}
	}
	created, err := s.storage.CreateCategory(ctx, c)
	if err != nil {
		return core.Category{}, err
	}
	s.purgeStats(ctx, ReasonCategoryCreated)
	return created, nil
}

func (s *BudgetService) UpdateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	if err := c.Validate(); err != nil {
		return core.Category{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	updated, err := s.storage.UpdateCategory(ctx, c)
	if err != nil {
		return core.Category{}, err
	}
	s.purgeStats(ctx, ReasonCategoryUpdated)
	return updated, nil
}

func (s *BudgetService) DeleteCategory(ctx context.Context, id int64) error {
	if err := s.storage.DeleteCategory(ctx, id); err != nil {
		return err
	}
	s.purgeStats(ctx, ReasonCategoryDeleted)
	return nil
}

// ListSubcategories returns ErrNotFound when the category itself is missing.
// A non-empty search narrows the list to names containing it.
func (s *BudgetService) ListSubcategories(ctx context.Context, categoryID int64, search string) ([]core.Subcategory, error) {
	if _, err := s.storage.GetCategory(ctx, categoryID); err != nil {
		return nil, err
	}
	list, err := s.storage.ListSubcategories(ctx, categoryID, strings.TrimSpace(search))
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []core.Subcategory{}
	}
	return list, nil
}

func (s *BudgetService) CreateSubcategory(ctx context.Context, sub core.Subcategory) (core.Subcategory, error) {
	sub.Name = strings.TrimSpace(sub.Name)
	if err := sub.Validate(); err != nil {
		return core.Subcategory{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if _, err := s.storage.GetCategory(ctx, sub.CategoryID); err != nil {
		return core.Subcategory{}, err
	}
	return s.storage.CreateSubcategory(ctx, sub)
}

func (s *BudgetService) DeleteSubcategory(ctx context.Context, id int64) error {
	if err := s.storage.DeleteSubcategory(ctx, id); err != nil {
		return err
	}
	s.purgeStats(ctx, ReasonSubcategoryDeleted)
	return nil
}

func (s *BudgetService) ListPaymentMethods(ctx context.Context) ([]core.PaymentMethod, error) {
	list, err := s.storage.ListPaymentMethods(ctx)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []core.PaymentMethod{}
	}
	return list, nil
}

func (s *BudgetService) CreatePaymentMethod(ctx context.Context, p core.PaymentMethod) (core.PaymentMethod, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.Icon = strings.TrimSpace(p.Icon)
	if err := p.Validate(); err != nil {
		return core.PaymentMethod{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return s.storage.CreatePaymentMethod(ctx, p)
}

func (s *BudgetService) UpdatePaymentMethod(ctx context.Context, p core.PaymentMethod) (core.PaymentMethod, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.Icon = strings.TrimSpace(p.Icon)
	if err := p.Validate(); err != nil {
		return core.PaymentMethod{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return s.storage.UpdatePaymentMethod(ctx, p)
}

// DefaultPaymentMethod reports false when no method is marked default.
func (s *BudgetService) DefaultPaymentMethod(ctx context.Context) (core.PaymentMethod, bool, error) {
	p, err := s.storage.DefaultPaymentMethod(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return core.PaymentMethod{}, false, nil
	}
	if err != nil {
		return core.PaymentMethod{}, false, err
	}
	return p, true, nil
}

// SetDefaultPaymentMethod makes id the household default, replacing any
// previous one.
func (s *BudgetService) SetDefaultPaymentMethod(ctx context.Context, id int64) (core.PaymentMethod, error) {
	if id <= 0 {
		return core.PaymentMethod{}, fmt.Errorf("%w: payment method id is required", ErrValidation)
	}
	return s.storage.SetDefaultPaymentMethod(ctx, id)
}

func (s *BudgetService) DeletePaymentMethod(ctx context.Context, id int64) error {
	return s.storage.DeletePaymentMethod(ctx, id)
}

func (s *BudgetService) ListMembers(ctx context.Context) ([]core.Member, error) {
	list, err := s.storage.ListMembers(ctx)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []core.Member{}
	}
	return list, nil
}

// CreateMember stores a member; the role defaults to member.
func (s *BudgetService) CreateMember(ctx context.Context, m core.Member) (core.Member, error) {
	m.Username = strings.TrimSpace(m.Username)
	if m.Role == "" {
		m.Role = core.RoleMember
	}
	if err := m.Validate(); err != nil {
		return core.Member{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return s.storage.CreateMember(ctx, m)
}

// MemberUpdate carries the member fields to change. Nil fields are kept.
type MemberUpdate struct {
	Username *string
	Role     *core.Role
}

// UpdateMember applies u to member id. Demoting the last admin fails with
// ErrLastAdmin.
func (s *BudgetService) UpdateMember(ctx context.Context, id int64, u MemberUpdate) (core.Member, error) {
	if u.Username == nil && u.Role == nil {
		return core.Member{}, fmt.Errorf("%w: %w", ErrValidation, ErrNoMemberChanges)
	}
	current, err := s.storage.GetMember(ctx, id)
	if err != nil {
		return core.Member{}, err
	}

	next := current
	if u.Username != nil {
		next.Username = strings.TrimSpace(*u.Username)
	}
	if u.Role != nil {
		next.Role = *u.Role
	}
	if err := next.Validate(); err != nil {
		return core.Member{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if current.Role == core.RoleAdmin && next.Role != core.RoleAdmin {
		if err := s.requireOtherAdmin(ctx); err != nil {
			return core.Member{}, err
		}
	}
	return s.storage.UpdateMember(ctx, next)
}

// DeleteMember removes a member while keeping their spendings. The last
// admin cannot be deleted.
func (s *BudgetService) DeleteMember(ctx context.Context, id int64) error {
	m, err := s.storage.GetMember(ctx, id)
	if err != nil {
		return err
	}
	if m.Role == core.RoleAdmin {
		if err := s.requireOtherAdmin(ctx); err != nil {
			return err
		}
	}
	if err := s.storage.DeleteMember(ctx, id); err != nil {
		return err
	}
	s.purgeStats(ctx, ReasonMemberDeleted)
	return nil
}

func (s *BudgetService) requireOtherAdmin(ctx context.Context) error {
	n, err := s.storage.CountAdmins(ctx)
	if err != nil {
		return err
	}
	if n <= 1 {
		return fmt.Errorf("%w: %w", ErrValidation, ErrLastAdmin)
	}
	return nil
}

// PurgeStats drops every cached stats result without notifying peers. It
// handles invalidation events from other instances.
func (s *BudgetService) PurgeStats(ctx context.Context) {
	if s.stats == nil {
		return
	}
	if n := s.stats.Size(); n > 0 {
		s.logger.DebugContext(ctx, "Stats cache purged", log.FieldRemovedCount, n)
	}
	s.stats.Purge()
}

// purgeStats drops local stats after a write and tells peers to do the same.
// A notifier failure is logged; peers then catch up when their entries expire.
func (s *BudgetService) purgeStats(ctx context.Context, reason string) {
	s.PurgeStats(ctx)
	if s.notifier == nil {
		return
	}
	if err := s.notifier.PublishStatsInvalidated(ctx, reason); err != nil {
		s.logger.WarnContext(ctx, "Failed to notify peers of stats invalidation",
			log.FieldError, err,
			"reason", reason)
	}
}

// Close closes the underlying storage.
func (s *BudgetService) Close() error {
	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			return fmt.Errorf("close budget service: %w", err)
		}
	}
	return nil
}
