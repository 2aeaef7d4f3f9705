package redact

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/local/redactor/internal/metrics"
)

// Step is one named strategy in a fallback chain.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// Attempt records one strategy that was tried.
type Attempt struct {
	Strategy string `json:"strategy"`
	Error    string `json:"error,omitempty"`
}

// Outcome reports which strategy ran and everything tried before it.
type Outcome struct {
	Ran      string    `json:"ran"`
	Attempts []Attempt `json:"attempts"`
	Warnings []string  `json:"warnings,omitempty"`
}

// Chain runs steps in order until one succeeds. A fatal error stops the
// chain; any other error moves on to the next step and becomes a warning.
type Chain []Step

func (c Chain) Run(ctx context.Context) (Outcome, error) {
	var out Outcome
	var last error
	for i, s := range c {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		err := s.Run(ctx)
		a := Attempt{Strategy: s.Name}
		if err == nil {
			out.Attempts = append(out.Attempts, a)
			out.Ran = s.Name
			return out, nil
		}
		a.Error = err.Error()
		out.Attempts = append(out.Attempts, a)
		last = err
		if IsFatal(err) || i == len(c)-1 {
			break
		}
		next := c[i+1].Name
		ev := log.Warn()
		if IsFallback(err) {
			ev = log.Info()
		}
		ev.Err(err).Str("from", s.Name).Str("to", next).Msg("strategy failed, falling back")
		metrics.IncFallback(s.Name, next)
		out.Warnings = append(out.Warnings, fmt.Sprintf("%s failed: %v; fell back to %s", s.Name, err, next))
	}
	if last == nil {
		last = fmt.Errorf("empty strategy chain")
	}
	return out, last
}
