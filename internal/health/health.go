// Package health runs readiness probes against backing dependencies.
package health

import (
	"context"
	"sync"
	"time"
)

type CheckResult struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

type Checker interface {
	Check(ctx context.Context) CheckResult
}

type checkerFunc struct {
	name string
	fn   func(ctx context.Context) error
}

func (c checkerFunc) Check(ctx context.Context) CheckResult {
	if err := c.fn(ctx); err != nil {
		return CheckResult{Name: c.name, Healthy: false, Error: err.Error()}
	}
	return CheckResult{Name: c.name, Healthy: true}
}

// CheckFunc adapts a plain ping function into a Checker.
func CheckFunc(name string, fn func(ctx context.Context) error) Checker {
	return checkerFunc{name: name, fn: fn}
}

// ProbeRunner evaluates all checkers with a shared timeout and caches the
// verdict briefly, so aggressive orchestrator probing does not hammer the
// dependencies themselves.
type ProbeRunner struct {
	timeout  time.Duration
	cacheTTL time.Duration
	checkers []Checker

	mu            sync.Mutex
	cachedAt      time.Time
	cachedReady   bool
	cachedResults []CheckResult
}

func NewProbeRunner(timeout, cacheTTL time.Duration, checkers ...Checker) *ProbeRunner {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &ProbeRunner{timeout: timeout, cacheTTL: cacheTTL, checkers: checkers}
}

func (p *ProbeRunner) Ready(ctx context.Context) (bool, []CheckResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cacheTTL > 0 && time.Since(p.cachedAt) < p.cacheTTL && p.cachedResults != nil {
		return p.cachedReady, p.cachedResults
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ready := true
	results := make([]CheckResult, 0, len(p.checkers))
	for _, c := range p.checkers {
		res := c.Check(ctx)
		if !res.Healthy {
			ready = false
		}
		results = append(results, res)
	}

	p.cachedAt = time.Now()
	p.cachedReady = ready
	p.cachedResults = results
	return ready, results
}
