package guardrail

import (
	"time"

	"github.com/erp/platform/internal/domain/posting"
	"github.com/erp/platform/internal/domain/smartcode"
	"github.com/shopspring/decimal"
)

// Config tunes the default pipeline
type Config struct {
	BalanceTolerance decimal.Decimal
	LookupTimeout    time.Duration
}

// DefaultConfig returns the default pipeline configuration
func DefaultConfig() Config {
	return Config{
		BalanceTolerance: posting.DefaultTolerance,
		LookupTimeout:    DefaultLookupTimeout,
	}
}

// DefaultChecks returns the standard pipeline in evaluation order
func DefaultChecks(reg *smartcode.Registry, resolver ReferenceResolver, cfg Config) []Check {
	return []Check{
		ActorCheck{},
		SmartCodeCheck{Registry: reg},
		FieldTypeCheck{},
		LineSequenceCheck{},
		TenantIsolationCheck{Resolver: resolver, Timeout: cfg.LookupTimeout},
		BalanceCheck{Registry: reg, DefaultTolerance: cfg.BalanceTolerance},
	}
}

// NewDefaultEngine builds the standard pipeline
func NewDefaultEngine(reg *smartcode.Registry, resolver ReferenceResolver, cfg Config, opts ...Option) *Engine {
	return NewEngine(DefaultChecks(reg, resolver, cfg), opts...)
}
