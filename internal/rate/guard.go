package rate

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"
)

const defaultCooldown = time.Minute

// RateLimitError is returned when the guard blocks a call locally instead of
// letting it hit the provider.
type RateLimitError struct {
	Provider string
	Reason   string
	RetryAt  time.Time
}

func (e RateLimitError) Error() string {
	if e.RetryAt.IsZero() {
		return fmt.Sprintf("%s rate limited: %s", e.Provider, e.Reason)
	}
	return fmt.Sprintf("%s rate limited: %s (retry at %s)", e.Provider, e.Reason, e.RetryAt.UTC().Format(time.RFC3339))
}

// Decision is the outcome of a ShouldCall check.
type Decision struct {
	Allowed bool
	Reason  string
	RetryAt time.Time
}

type bucket struct {
	capacity int
	tokens   float64
	window   Window
	last     time.Time
}

func (b *bucket) refill(now time.Time) {
	elapsed := now.Sub(b.last)
	if elapsed <= 0 {
		return
	}
	rate := float64(b.capacity) / b.window.duration().Seconds()
	b.tokens += elapsed.Seconds() * rate
	if b.tokens > float64(b.capacity) {
		b.tokens = float64(b.capacity)
	}
	b.last = now
}

// Guard enforces the declared budget plus server-imposed cooldowns.
type Guard struct {
	decl Declaration

	mu       sync.Mutex
	buckets  []*bucket
	cooldown time.Time
}

func NewGuard(decl Declaration) *Guard {
	g := &Guard{decl: decl}
	for window, limit := range decl.Limits() {
		g.buckets = append(g.buckets, &bucket{
			capacity: limit,
			tokens:   float64(limit),
			window:   window,
			last:     time.Now(),
		})
	}
	return g
}

// ShouldCall consumes one token from every window, or explains the block.
func (g *Guard) ShouldCall(now time.Time) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	if now.Before(g.cooldown) {
		blockedTotal.WithLabelValues(g.decl.ProviderName(), "cooldown").Inc()
		return Decision{Reason: "server cooldown", RetryAt: g.cooldown}
	}
	cooldownActive.WithLabelValues(g.decl.ProviderName()).Set(0)

	for _, b := range g.buckets {
		b.refill(now)
		if b.tokens < 1 {
			blockedTotal.WithLabelValues(g.decl.ProviderName(), b.window.String()).Inc()
			deficit := 1 - b.tokens
			rate := float64(b.capacity) / b.window.duration().Seconds()
			wait := time.Duration(deficit / rate * float64(time.Second))
			return Decision{
				Reason:  fmt.Sprintf("%s budget exhausted", b.window),
				RetryAt: now.Add(wait),
			}
		}
	}
	for _, b := range g.buckets {
		b.tokens--
	}
	return Decision{Allowed: true}
}

// RecordResponse applies server-imposed limits: a 429 starts a cooldown
// honoring Retry-After when present.
func (g *Guard) RecordResponse(status int, header http.Header) {
	if status != http.StatusTooManyRequests {
		return
	}
	wait := defaultCooldown
	if raw := header.Get("Retry-After"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			wait = time.Duration(secs) * time.Second
		}
	}
	g.mu.Lock()
	g.cooldown = time.Now().Add(wait)
	g.mu.Unlock()
	cooldownActive.WithLabelValues(g.decl.ProviderName()).Set(1)
}

type roundTripper struct {
	base  http.RoundTripper
	guard *Guard
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	decision := rt.guard.ShouldCall(time.Now())
	if !decision.Allowed {
		return nil, RateLimitError{
			Provider: rt.guard.decl.ProviderName(),
			Reason:   decision.Reason,
			RetryAt:  decision.RetryAt,
		}
	}

	resp, err := rt.base.RoundTrip(req)
	if err != nil {
		return resp, err
	}
	rt.guard.RecordResponse(resp.StatusCode, resp.Header)
	return resp, nil
}

// WrapHTTP wraps an http.Client with rate-limit enforcement. Clients without
// declared limits are returned unchanged.
func WrapHTTP(decl Declaration, base *http.Client) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	if !decl.HasLimits() {
		return base
	}
	client := *base
	transport := client.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	client.Transport = &roundTripper{
		base:  transport,
		guard: NewGuard(decl),
	}
	return &client
}
