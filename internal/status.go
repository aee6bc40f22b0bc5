package internal

import (
	"context"
	"time"

	"github.com/starford/lettamem/internal/health"
)

// StatusChecks returns the checks reported by the status command. The
// Letta check is skipped when client construction failed; a failing entry
// takes its place.
func (rt *Runtime) StatusChecks() []health.Check {
	checks := []health.Check{
		health.WritableDir("records", rt.Config.Records.Path),
		health.Ping("index", rt.Index),
		health.Ping("conversations", rt.Conversations),
	}
	if client, err := rt.Config.LettaClient(); err == nil {
		checks = append(checks, health.PingContext("letta", rt.Config.Letta.URL, client))
	} else {
		checks = append(checks, health.Check{Name: "letta", Fn: func(context.Context) (string, error) {
			return "", err
		}})
	}
	return append(checks, health.Configured("gemini_api_key", rt.Config.Gemini.APIKey))
}

// ReadyChecks are the local checks behind /health/ready.
func (rt *Runtime) ReadyChecks() []health.Check {
	return []health.Check{
		health.WritableDir("records", rt.Config.Records.Path),
		health.Ping("index", rt.Index),
	}
}

// Status runs StatusChecks with the configured Letta timeout.
func (rt *Runtime) Status(ctx context.Context) []health.Result {
	timeout := rt.Config.Letta.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return health.Run(ctx, timeout, rt.StatusChecks()...)
}
