package anchor

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// GuardOptions tunes Guarded.
type GuardOptions struct {
	Timeout         time.Duration
	MaxRetries      int
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// Guarded bounds every call to the wrapped backend by Timeout, retries
// transient failures inside that budget and trips a circuit breaker after
// BreakerFailures consecutive failures.
type Guarded struct {
	next    Anchorer
	name    string
	opts    GuardOptions
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewGuarded wraps next. A zero Timeout is replaced with DefaultTimeout.
func NewGuarded(name string, next Anchorer, opts GuardOptions, logger *zap.Logger) *Guarded {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerCooldown <= 0 {
		opts.BreakerCooldown = 30 * time.Second
	}
	log := logger.With(zap.String("anchor_backend", name))
	settings := gobreaker.Settings{
		Name:        "anchor-" + name,
		MaxRequests: 1,
		Timeout:     opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			// A refused fingerprint says nothing about ledger health.
			return err == nil || KindOf(err) == KindRejected || KindOf(err) == KindCanceled
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Anchor circuit breaker state change", zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}
	return &Guarded{
		next:    next,
		name:    name,
		opts:    opts,
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  log,
	}
}

// State exposes the breaker state for health reporting.
func (g *Guarded) State() gobreaker.State {
	return g.breaker.State()
}

func (g *Guarded) Anchor(ctx context.Context, fingerprint string) (Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()

	var (
		receipt Receipt
		lastErr error
	)
	operation := func() error {
		out, err := g.breaker.Execute(func() (interface{}, error) {
			return g.next.Anchor(ctx, fingerprint)
		})
		if err != nil {
			lastErr = err
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}
			var aerr *Error
			if errors.As(err, &aerr) && !aerr.Retryable() {
				return backoff.Permanent(err)
			}
			g.logger.Debug("Anchor attempt failed", zap.Error(err))
			return err
		}
		receipt = out.(Receipt)
		return nil
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 50 * time.Millisecond
	expBackoff.MaxInterval = g.opts.Timeout / 4
	expBackoff.MaxElapsedTime = g.opts.Timeout

	policy := backoff.WithContext(backoff.WithMaxRetries(expBackoff, uint64(g.opts.MaxRetries)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return Receipt{}, g.classify(ctx, err, lastErr)
	}
	return receipt, nil
}

func (g *Guarded) classify(ctx context.Context, err, lastErr error) error {
	if lastErr == nil {
		lastErr = err
	}
	if errors.Is(lastErr, gobreaker.ErrOpenState) || errors.Is(lastErr, gobreaker.ErrTooManyRequests) {
		return &Error{Backend: g.name, Kind: KindCircuitOpen, Err: lastErr}
	}
	if cerr := contextError(g.name, ctx); cerr != nil {
		return cerr
	}
	var aerr *Error
	if errors.As(lastErr, &aerr) {
		return aerr
	}
	return &Error{Backend: g.name, Kind: KindUnavailable, Err: lastErr}
}
