// Package health runs the status checks behind the status command and the
// readiness endpoint.
package health

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds a single check.
const DefaultTimeout = 5 * time.Second

// Check is one named probe. A nil error means healthy; detail is shown
// either way.
type Check struct {
	Name string
	Fn   func(ctx context.Context) (detail string, err error)
}

// Result is the outcome of one check.
type Result struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// Run executes checks concurrently, each bounded by timeout, and returns
// results in the order given.
func Run(ctx context.Context, timeout time.Duration, checks ...Check) []Result {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	results := make([]Result, len(checks))
	var g errgroup.Group
	for i, c := range checks {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan Result, 1)
			go func() {
				detail, err := c.Fn(cctx)
				r := Result{Name: c.Name, OK: err == nil, Detail: detail}
				if err != nil {
					r.Detail = err.Error()
				}
				done <- r
			}()
			select {
			case r := <-done:
				results[i] = r
			case <-cctx.Done():
				results[i] = Result{Name: c.Name, Detail: fmt.Sprintf("timed out after %s", timeout)}
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// AllOK reports whether every result passed.
func AllOK(results []Result) bool {
	for _, r := range results {
		if !r.OK {
			return false
		}
	}
	return true
}

// Pinger is anything with a context-free liveness probe, such as the index.
type Pinger interface {
	Ping() error
}

// ContextPinger is a liveness probe that honours a context.
type ContextPinger interface {
	Ping(ctx context.Context) error
}

// WritableDir checks that dir exists and accepts new files.
func WritableDir(name, dir string) Check {
	return Check{Name: name, Fn: func(context.Context) (string, error) {
		info, err := os.Stat(dir)
		if err != nil {
			return "", err
		}
		if !info.IsDir() {
			return "", fmt.Errorf("%s is not a directory", dir)
		}
		f, err := os.CreateTemp(dir, ".lettamem-probe-*")
		if err != nil {
			return "", fmt.Errorf("not writable: %w", err)
		}
		f.Close()
		_ = os.Remove(f.Name())
		abs, _ := filepath.Abs(dir)
		return abs, nil
	}}
}

// Ping wraps a Pinger.
func Ping(name string, p Pinger) Check {
	return Check{Name: name, Fn: func(context.Context) (string, error) {
		if err := p.Ping(); err != nil {
			return "", err
		}
		return "reachable", nil
	}}
}

// PingContext wraps a ContextPinger.
func PingContext(name, target string, p ContextPinger) Check {
	return Check{Name: name, Fn: func(ctx context.Context) (string, error) {
		if err := p.Ping(ctx); err != nil {
			return "", fmt.Errorf("%s: %w", target, err)
		}
		return target, nil
	}}
}

// Configured checks that a secret is set without revealing it.
func Configured(name, value string) Check {
	return Check{Name: name, Fn: func(context.Context) (string, error) {
		if value == "" {
			return "", errors.New("not configured")
		}
		return "configured", nil
	}}
}
