/**
 * @description
 * Daily quota ledger for all external services.
 * Gates every outbound call against a per-(service, calendar day) budget.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9: atomic per-day counters
 * - gorm.io/gorm: append-only audit log (api_usage_logs)
 *
 * @notes
 * - Reservation is pessimistic: the counter is incremented before the call
 *   is attempted, and never rolled back on downstream failure. Upstream
 *   providers charge for failed and throttled requests too, and keeping the
 *   counter monotonic makes concurrent reservation race-free.
 * - Reset is lazy: the date is part of the Redis key, so the first check on
 *   a new day starts from a fresh counter. No background job needed.
 */

package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/helvinmg/crowdpulse/internal/logger"
	"github.com/helvinmg/crowdpulse/internal/models"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// counterTTL keeps spent counters around long enough for audit, then expires them.
const counterTTL = 48 * time.Hour

// ServiceUsage is one service's standing for the current date.
type ServiceUsage struct {
	Used        int     `json:"used"`
	Limit       int     `json:"limit"`
	Remaining   int     `json:"remaining"`
	Blocked     bool    `json:"blocked"`
	PercentUsed float64 `json:"percent_used"`
}

// Summary aggregates every service's usage for one calendar date.
type Summary struct {
	Date       string                  `json:"date"`
	Services   map[string]ServiceUsage `json:"services"`
	AnyBlocked bool                    `json:"any_blocked"`
}

// Ledger tracks daily API usage per external service.
type Ledger struct {
	redis  *redis.Client
	db     *gorm.DB
	limits map[string]int
	now    func() time.Time
}

// NewLedger builds a ledger over the given Redis counters and audit DB.
// db may be nil, in which case audit logging is skipped (tests).
func NewLedger(rdb *redis.Client, db *gorm.DB, limits map[string]int) *Ledger {
	return &Ledger{
		redis:  rdb,
		db:     db,
		limits: limits,
		now:    time.Now,
	}
}

func (l *Ledger) key(service string, date string) string {
	return fmt.Sprintf("quota:%s:%s", date, service)
}

func (l *Ledger) today() string {
	return l.now().UTC().Format("2006-01-02")
}

// Limit returns the configured daily limit for a service (0 if unknown).
func (l *Ledger) Limit(service string) int {
	return l.limits[service]
}

// Reserve atomically claims one call from today's budget. It returns false
// when the service is over its daily limit; the claim is not rolled back
// even if the downstream call later fails.
func (l *Ledger) Reserve(ctx context.Context, service string) (bool, error) {
	limit, ok := l.limits[service]
	if !ok || limit <= 0 {
		return false, fmt.Errorf("no quota configured for service %q", service)
	}

	key := l.key(service, l.today())
	used, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("quota reserve failed for %s: %w", service, err)
	}
	if used == 1 {
		// First call of the day created the counter
		l.redis.Expire(ctx, key, counterTTL)
	}

	if used > int64(limit) {
		logger.Error("API LIMIT REACHED: %s — %d/%d used today. Call BLOCKED.", service, limit, limit)
		l.appendAudit(service, "", models.UsageStatusBlocked, 0, 0, "daily quota exceeded", limit, limit)
		return false, nil
	}

	pct := float64(used) / float64(limit) * 100
	if pct >= 80 {
		logger.Error("API USAGE: %s — %d/%d (%.0f%%) used today", service, used, limit, pct)
	} else {
		logger.Info("API call: %s — %d/%d (%.0f%%) used today", service, used, limit, pct)
	}
	return true, nil
}

// RecordOutcome appends the result of a reserved call to the audit log.
// The audit entry is written even if the daily counter cannot be read;
// its count is then zero rather than lost.
func (l *Ledger) RecordOutcome(ctx context.Context, service, endpoint, status string, latency time.Duration, records int, errMsg string) {
	used, err := l.usedToday(ctx, service)
	if err != nil {
		logger.Error("Could not read daily usage for %s audit entry: %v", service, err)
	}
	l.appendAudit(service, endpoint, status, latency, records, errMsg, used, l.limits[service])
}

// Usage returns today's call count for a service, clamped to the limit for display.
func (l *Ledger) Usage(ctx context.Context, service string) (int, error) {
	used, err := l.usedToday(ctx, service)
	if err != nil {
		return 0, err
	}
	if limit := l.limits[service]; used > limit {
		return limit, nil
	}
	return used, nil
}

// Remaining returns today's remaining budget for a service.
func (l *Ledger) Remaining(ctx context.Context, service string) (int, error) {
	used, err := l.usedToday(ctx, service)
	if err != nil {
		return 0, err
	}
	rem := l.limits[service] - used
	if rem < 0 {
		rem = 0
	}
	return rem, nil
}

// Blocked reports whether the service has exhausted today's budget.
// Blocked status is sticky until the date rolls over.
func (l *Ledger) Blocked(ctx context.Context, service string) (bool, error) {
	used, err := l.usedToday(ctx, service)
	if err != nil {
		return false, err
	}
	return used >= l.limits[service], nil
}

// GetSummary reports every configured service's usage for today.
func (l *Ledger) GetSummary(ctx context.Context) (*Summary, error) {
	summary := &Summary{
		Date:     l.today(),
		Services: make(map[string]ServiceUsage, len(l.limits)),
	}
	for service, limit := range l.limits {
		used, err := l.usedToday(ctx, service)
		if err != nil {
			return nil, err
		}
		blocked := used >= limit
		if used > limit {
			used = limit
		}
		remaining := limit - used
		pct := 0.0
		if limit > 0 {
			pct = float64(used) / float64(limit) * 100
		}
		summary.Services[service] = ServiceUsage{
			Used:        used,
			Limit:       limit,
			Remaining:   remaining,
			Blocked:     blocked,
			PercentUsed: pct,
		}
		if blocked {
			summary.AnyBlocked = true
		}
	}
	return summary, nil
}

func (l *Ledger) usedToday(ctx context.Context, service string) (int, error) {
	val, err := l.redis.Get(ctx, l.key(service, l.today())).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("quota read failed for %s: %w", service, err)
	}
	return val, nil
}

func (l *Ledger) appendAudit(service, endpoint, status string, latency time.Duration, records int, errMsg string, dailyCount, dailyLimit int) {
	if l.db == nil {
		return
	}
	entry := models.APIUsageLog{
		Service:        service,
		Endpoint:       endpoint,
		Status:         status,
		ResponseTimeMs: float64(latency.Microseconds()) / 1000.0,
		RecordsFetched: records,
		ErrorMessage:   errMsg,
		DailyCount:     dailyCount,
		DailyLimit:     dailyLimit,
	}
	if err := l.db.Create(&entry).Error; err != nil {
		logger.Error("Could not append usage audit entry for %s: %v", service, err)
	}
}
