package xapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"threadsmith/internal/logging"
	"threadsmith/internal/metrics"
)

// Governor serializes outbound calls against the account's quota. Two tiers:
// a header-driven wait until the reset epoch the API published for an
// endpoint, and a fixed-interval floor (rate.Limiter, one call per interval)
// when no endpoint signal exists. The floor assumes the tightest global
// quota tier, which is deliberate.
//
// Single-threaded caller model: the reset map is not guarded by a mutex. A
// multi-account design needs one Governor per account.
type Governor struct {
	interval time.Duration
	resets   map[string]time.Time
	floor    *rate.Limiter

	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	onWait func(key string, d time.Duration, until time.Time)
}

func NewGovernor(interval time.Duration) *Governor {
	return &Governor{
		interval: interval,
		resets:   make(map[string]time.Time),
		floor:    rate.NewLimiter(rate.Every(interval), 1),
		now:      time.Now,
		sleep:    sleepCtx,
		onWait:   reportWait,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func reportWait(key string, d time.Duration, until time.Time) {
	logging.Info("rate_limit_wait", map[string]any{
		"endpoint": key,
		"wait":     fmt.Sprintf("%.1f minutes (%.0fs)", d.Minutes(), d.Seconds()),
		"resumes":  until.Format("15:04:05"),
	})
}

// SetWaitReporter overrides how waits are announced (e.g. console countdown).
func (g *Governor) SetWaitReporter(f func(key string, d time.Duration, until time.Time)) {
	if f != nil {
		g.onWait = f
	}
}

// Acquire blocks until one call on key is permitted. Exactly one request may
// be made per successful return. The wait is cancellable via ctx.
func (g *Governor) Acquire(ctx context.Context, key string) error {
	if reset, ok := g.resets[key]; ok {
		if d := reset.Sub(g.now()); d > 0 {
			g.onWait(key, d, reset)
			metrics.ObserveQuotaWait(key, d)
			if err := g.sleep(ctx, d); err != nil {
				return err
			}
		}
		delete(g.resets, key)
		// A header-driven call is still a call; the floor restarts here so
		// the next unsignalled call waits a full interval from this one.
		g.restartFloor()
		return nil
	}

	r := g.floor.ReserveN(g.now(), 1)
	if d := r.DelayFrom(g.now()); d > 0 {
		g.onWait(key, d, g.now().Add(d))
		metrics.ObserveQuotaWait(key, d)
		if err := g.sleep(ctx, d); err != nil {
			r.CancelAt(g.now())
			return err
		}
	}
	return nil
}

// restartFloor rebuilds the interval floor with its token already spent.
// Header-driven calls bypass the limiter, and Allow cannot be trusted to
// spend a token on their behalf when the previous call left none.
func (g *Governor) restartFloor() {
	g.floor = rate.NewLimiter(rate.Every(g.interval), 1)
	g.floor.ReserveN(g.now(), 1)
}

// Observe records quota headers from a response, success or not, so an
// exhausted endpoint seeds the wait for its next Acquire.
func (g *Governor) Observe(key string, h http.Header) {
	rem := h.Get("x-rate-limit-remaining")
	if rem == "" {
		return
	}
	remaining, err := strconv.Atoi(rem)
	if err != nil {
		return
	}
	reset, _ := strconv.ParseInt(h.Get("x-rate-limit-reset"), 10, 64)
	if remaining == 0 && reset > 0 {
		g.resets[key] = time.Unix(reset, 0)
	}
}

// SeedDefault stores a conservative reset one interval out, used when a 429
// arrives without usable headers. An existing header-driven reset wins.
func (g *Governor) SeedDefault(key string) {
	if _, ok := g.resets[key]; !ok {
		g.resets[key] = g.now().Add(g.interval)
	}
}

func (g *Governor) resetTime(key string) (time.Time, bool) {
	t, ok := g.resets[key]
	return t, ok
}
