// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package health

import (
	"context"

	"github.com/ManuGH/chrono/internal/resilience"
)

// Pinger is implemented by the session and recovery stores.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker reports a store unhealthy when its Ping fails.
type PingChecker struct {
	name string
	p    Pinger
}

// NewPingChecker creates a checker around p.
func NewPingChecker(name string, p Pinger) *PingChecker {
	return &PingChecker{name: name, p: p}
}

func (c *PingChecker) Name() string { return c.name }

func (c *PingChecker) Check(ctx context.Context) CheckResult {
	if err := c.p.Ping(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy, Message: "reachable"}
}

// BreakerChecker reports the session writer's circuit breaker. An open
// breaker means sessions are being dropped, which degrades the service
// without making it unready: timers keep running.
type BreakerChecker struct {
	name  string
	state func() resilience.State
}

// NewBreakerChecker creates a checker for a breaker state accessor.
func NewBreakerChecker(name string, state func() resilience.State) *BreakerChecker {
	return &BreakerChecker{name: name, state: state}
}

func (c *BreakerChecker) Name() string { return c.name }

func (c *BreakerChecker) Check(context.Context) CheckResult {
	switch s := c.state(); s {
	case resilience.StateClosed:
		return CheckResult{Status: StatusHealthy, Message: string(s)}
	default:
		return CheckResult{Status: StatusDegraded, Message: "circuit " + string(s)}
	}
}
