package anchor

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout bounds a single anchoring call, retries included.
const DefaultTimeout = 3 * time.Second

// Config selects and tunes the ledger backend.
type Config struct {
	Backend         string        `yaml:"backend"`
	URL             string        `yaml:"url"`
	APIKey          string        `yaml:"api_key"`
	PolicyOID       string        `yaml:"policy_oid"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxRetries      int           `yaml:"max_retries"`
	BreakerFailures uint32        `yaml:"breaker_failures"`
	BreakerCooldown time.Duration `yaml:"breaker_cooldown"`
}

// Validate checks that the selected backend has what it needs.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendLocal:
	case BackendHTTP, BackendTSA:
		if c.URL == "" {
			return fmt.Errorf("anchor: backend %q requires url", c.Backend)
		}
		if c.Backend == BackendTSA && strings.TrimSpace(c.PolicyOID) != "" {
			if _, err := parseOID(c.PolicyOID); err != nil {
				return fmt.Errorf("anchor: %w", err)
			}
		}
	default:
		return fmt.Errorf("anchor: unknown backend %q", c.Backend)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("anchor: timeout must be positive")
	}
	return nil
}

// New builds the configured backend wrapped in Guarded.
func New(cfg Config, logger *zap.Logger) (*Guarded, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var backend Anchorer
	switch cfg.Backend {
	case BackendLocal:
		backend = NewLocal()
	case BackendHTTP:
		backend = NewHTTPClient(cfg.URL, cfg.APIKey, cfg.Timeout)
	case BackendTSA:
		backend = NewTSAClient(cfg.URL, cfg.PolicyOID, cfg.Timeout)
	}
	logger.Info("Anchor backend configured",
		zap.String("backend", cfg.Backend),
		zap.Duration("timeout", cfg.Timeout),
		zap.Int("max_retries", cfg.MaxRetries))

	return NewGuarded(cfg.Backend, backend, GuardOptions{
		Timeout:         cfg.Timeout,
		MaxRetries:      cfg.MaxRetries,
		BreakerFailures: cfg.BreakerFailures,
		BreakerCooldown: cfg.BreakerCooldown,
	}, logger), nil
}
