// Package quota tracks per-provider daily usage. Each provider has one record
// that is hydrated from a durable store keyed by calendar day and reset when a
// day boundary is crossed.
package quota

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/blueberrycongee/chatrelay/internal/metrics"
	"github.com/blueberrycongee/chatrelay/pkg/types"
)

const (
	keyPrefix           = "quota:"
	dateLayout          = "2006-01-02"
	defaultStoreTimeout = 2 * time.Second
)

// Defaults are the catalog values a record is always synchronized with.
type Defaults struct {
	DailyLimit  *int
	DisplayName string
	Icon        string
}

// Catalog supplies defaults and the set of configured providers.
type Catalog interface {
	QuotaDefaults(provider string) (Defaults, bool)
	Configured() []string
}

// Record is the persisted quota state of one provider.
type Record struct {
	DailyLimit  *int      `json:"daily_limit"`
	Used        int       `json:"used"`
	ResetAt     time.Time `json:"reset_at"`
	LastError   string    `json:"last_error,omitempty"`
	DisplayName string    `json:"display_name"`
	Icon        string    `json:"icon,omitempty"`
}

type slot struct {
	mu     sync.Mutex
	record *Record
}

// Ledger owns the quota records. Operations on one provider are serialized by
// that provider's mutex, so increments are never lost within a process.
type Ledger struct {
	store        Store
	catalog      Catalog
	logger       *slog.Logger
	now          func() time.Time
	loc          *time.Location
	storeTimeout time.Duration

	mu    sync.Mutex
	slots map[string]*slot
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithLocation sets the timezone whose calendar days delimit quota periods.
func WithLocation(loc *time.Location) Option {
	return func(l *Ledger) {
		if loc != nil {
			l.loc = loc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithStoreTimeout bounds each store operation.
func WithStoreTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.storeTimeout = d
		}
	}
}

// NewLedger creates a ledger over store.
func NewLedger(store Store, catalog Catalog, opts ...Option) *Ledger {
	l := &Ledger{
		store:        store,
		catalog:      catalog,
		logger:       slog.Default(),
		now:          time.Now,
		loc:          time.Local,
		storeTimeout: defaultStoreTimeout,
		slots:        make(map[string]*slot),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Key returns the store key of provider for the calendar day of t.
func (l *Ledger) Key(provider string, t time.Time) string {
	return keyPrefix + provider + ":" + t.In(l.loc).Format(dateLayout)
}

func (l *Ledger) slot(provider string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[provider]
	if !ok {
		s = &slot{}
		l.slots[provider] = s
	}
	return s
}

// CheckStatus hydrates the provider's record, applies the day reset and
// returns a snapshot.
func (l *Ledger) CheckStatus(ctx context.Context, provider string) types.QuotaView {
	s := l.slot(provider)
	s.mu.Lock()
	defer s.mu.Unlock()

	now := l.now()
	l.hydrate(ctx, provider, s, now)
	l.applyReset(provider, s.record, now)
	return view(provider, s.record)
}

// RecordOutcome counts a successful call or stores the failure class, then
// persists the record under today's key. Store failures are logged only.
// Persistence is not aborted by cancellation of ctx.
func (l *Ledger) RecordOutcome(ctx context.Context, provider string, success bool, errorClass string) types.QuotaView {
	ctx = context.WithoutCancel(ctx)

	s := l.slot(provider)
	s.mu.Lock()
	defer s.mu.Unlock()

	now := l.now()
	l.hydrate(ctx, provider, s, now)
	l.applyReset(provider, s.record, now)

	if success {
		s.record.Used++
		s.record.LastError = ""
	} else {
		s.record.LastError = errorClass
	}
	metrics.SetQuotaUsed(provider, s.record.Used)

	l.persist(ctx, provider, s.record, now)
	return view(provider, s.record)
}

// AllStatuses returns the status of every configured provider.
func (l *Ledger) AllStatuses(ctx context.Context) map[string]types.QuotaView {
	out := make(map[string]types.QuotaView)
	for _, id := range l.catalog.Configured() {
		out[id] = l.CheckStatus(ctx, id)
	}
	return out
}

// hydrate initializes the record on first access, merges the stored copy for
// today and re-synchronizes catalog fields. Caller holds s.mu.
func (l *Ledger) hydrate(ctx context.Context, provider string, s *slot, now time.Time) {
	def, ok := l.catalog.QuotaDefaults(provider)
	if !ok {
		def = Defaults{DisplayName: provider}
	}
	if s.record == nil {
		s.record = &Record{}
	}

	if stored, err := l.load(ctx, provider, now); err != nil {
		metrics.RecordStoreError("get")
		l.logger.Warn("quota store read failed", "provider", provider, "error", err)
	} else if stored != nil {
		s.record.Used = stored.Used
		s.record.LastError = stored.LastError
		if !stored.ResetAt.IsZero() {
			s.record.ResetAt = stored.ResetAt
		}
	}

	s.record.DailyLimit = def.DailyLimit
	s.record.DisplayName = def.DisplayName
	s.record.Icon = def.Icon
	if s.record.ResetAt.IsZero() {
		s.record.ResetAt = l.nextDayStart(now)
	}
	if s.record.Used < 0 {
		s.record.Used = 0
	}
}

// applyReset zeroes the record when the period closed by ResetAt belongs to
// an earlier calendar day and ResetAt has passed.
func (l *Ledger) applyReset(provider string, r *Record, now time.Time) {
	periodDay := r.ResetAt.Add(-time.Nanosecond).In(l.loc).Format(dateLayout)
	today := now.In(l.loc).Format(dateLayout)
	if periodDay == today || now.Before(r.ResetAt) {
		return
	}
	l.logger.Info("quota reset", "provider", provider, "previous_used", r.Used)
	r.Used = 0
	r.LastError = ""
	r.ResetAt = l.nextDayStart(now)
}

func (l *Ledger) nextDayStart(t time.Time) time.Time {
	t = t.In(l.loc)
	return time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, l.loc)
}

func (l *Ledger) load(ctx context.Context, provider string, now time.Time) (*Record, error) {
	if l.store == nil {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()

	data, err := l.store.Get(ctx, l.Key(provider, now))
	if err != nil || data == nil {
		return nil, err
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode quota record: %w", err)
	}
	return &r, nil
}

func (l *Ledger) persist(ctx context.Context, provider string, r *Record, now time.Time) {
	if l.store == nil {
		return
	}
	data, err := json.Marshal(r)
	if err != nil {
		l.logger.Error("quota record encode failed", "provider", provider, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()
	if err := l.store.Put(ctx, l.Key(provider, now), data); err != nil {
		metrics.RecordStoreError("put")
		l.logger.Warn("quota store write failed", "provider", provider, "error", err)
	}
}

func view(provider string, r *Record) types.QuotaView {
	v := types.QuotaView{
		Provider:    provider,
		Used:        r.Used,
		ResetAt:     r.ResetAt,
		LastError:   r.LastError,
		DisplayName: r.DisplayName,
		Icon:        r.Icon,
		CanUse:      r.DailyLimit == nil || r.Used < *r.DailyLimit,
	}
	if r.DailyLimit != nil {
		limit := *r.DailyLimit
		v.DailyLimit = &limit
	}
	return v
}
