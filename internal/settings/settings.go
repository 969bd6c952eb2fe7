// Package settings owns the application settings and the cached month start
// day every period calculation reads.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"budget/internal/cache"
	"budget/internal/core"
	"budget/internal/period"
	"budget/internal/storage"
)

const (
	KeyMonthStartDay     = "month_start_day"
	DefaultMonthStartDay = "1"
	DefaultCacheTTL      = time.Minute
)

var ErrInvalidSetting = errors.New("invalid setting")

// ValidationError reports a rejected setting value.
type ValidationError struct {
	Key string
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid value for %s: %v", e.Key, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Store is the persistence the service needs.
type Store interface {
	GetSetting(ctx context.Context, key string) (core.Setting, error)
	UpsertSetting(ctx context.Context, key, value string) (core.Setting, error)
	ListSettings(ctx context.Context) ([]core.Setting, error)
}

// Notifier tells other instances that a setting changed.
type Notifier interface {
	PublishSettingChanged(ctx context.Context, key, value string) error
}

// Change is a settings change announced by some instance.
type Change struct {
	Key    string
	Value  string
	Origin string
}

type Options struct {
	CacheTTL   time.Duration
	Notifier   Notifier
	InstanceID string
	Logger     *slog.Logger
	Now        func() time.Time
}

type Service struct {
	store      Store
	startDay   *cache.Value[period.StartDay]
	notifier   Notifier
	instanceID string
	logger     *slog.Logger
}

func NewService(store Store, opts Options) *Service {
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	startDay := cache.NewValue[period.StartDay](ttl)
	if opts.Now != nil {
		startDay.WithClock(opts.Now)
	}
	return &Service{
		store:      store,
		startDay:   startDay,
		notifier:   opts.Notifier,
		instanceID: opts.InstanceID,
		logger:     logger,
	}
}

// SetNotifier attaches the notifier once the message bus is connected.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// MonthStartDay returns the configured start day. It never fails: a missing
// or invalid stored value is treated as the default, and a storage error
// yields the default without being cached.
func (s *Service) MonthStartDay(ctx context.Context) period.StartDay {
	day, err := s.startDay.Get(ctx, s.loadStartDay)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to load month start day, using default",
			"error", err,
			"default", int(period.DefaultStartDay))
		return period.DefaultStartDay
	}
	return day
}

func (s *Service) loadStartDay(ctx context.Context) (period.StartDay, error) {
	setting, err := s.store.GetSetting(ctx, KeyMonthStartDay)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return period.DefaultStartDay, nil
		}
		return 0, fmt.Errorf("load %s: %w", KeyMonthStartDay, err)
	}

	day, err := period.ParseStartDay(setting.Value)
	if err != nil {
		s.logger.WarnContext(ctx, "Stored month start day is invalid, using default",
			"value", setting.Value,
			"error", err)
		return period.DefaultStartDay, nil
	}
	return day, nil
}

// All returns every stored setting keyed by name, with the start day
// defaulted when it has never been written.
func (s *Service) All(ctx context.Context) (map[string]string, error) {
	list, err := s.store.ListSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	out := make(map[string]string, len(list)+1)
	for _, st := range list {
		out[st.Key] = st.Value
	}
	if _, ok := out[KeyMonthStartDay]; !ok {
		out[KeyMonthStartDay] = DefaultMonthStartDay
	}
	return out, nil
}

// Update validates and stores a setting. Changing the start day drops the
// cached value immediately and announces the change to other instances.
func (s *Service) Update(ctx context.Context, key, value string) (core.Setting, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return core.Setting{}, fmt.Errorf("%w: key is required", ErrInvalidSetting)
	}

	value = strings.TrimSpace(value)
	if key == KeyMonthStartDay {
		day, err := period.ParseStartDay(value)
		if err != nil {
			return core.Setting{}, &ValidationError{Key: key, Err: err}
		}
		value = fmt.Sprint(int(day))
	}

	saved, err := s.store.UpsertSetting(ctx, key, value)
	if err != nil {
		return core.Setting{}, fmt.Errorf("update setting %s: %w", key, err)
	}

	if key == KeyMonthStartDay {
		s.startDay.Invalidate()
		s.logger.InfoContext(ctx, "Month start day changed, cache invalidated", "value", value)

		if s.notifier != nil {
			if err := s.notifier.PublishSettingChanged(ctx, key, value); err != nil {
				s.logger.WarnContext(ctx, "Failed to announce setting change",
					"key", key,
					"error", err)
			}
		}
	}

	return saved, nil
}

// HandleSettingChanged applies a change announced by another instance.
func (s *Service) HandleSettingChanged(ctx context.Context, c Change) error {
	if c.Origin != "" && c.Origin == s.instanceID {
		return nil
	}
	if c.Key != KeyMonthStartDay {
		return nil
	}

	s.startDay.Invalidate()
	s.logger.InfoContext(ctx, "Month start day changed on another instance, cache invalidated",
		"value", c.Value,
		"origin", c.Origin)
	return nil
}

// InvalidateCache drops the cached start day.
func (s *Service) InvalidateCache() {
	s.startDay.Invalidate()
}

// CleanExpired lets the cache manager sweep the start day value.
func (s *Service) CleanExpired() int {
	return s.startDay.CleanExpired()
}
