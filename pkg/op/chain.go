package op

import (
	"context"
	"log/slog"

	"github.com/datarightlab/fapi-op/pkg/oidc"
)

// Step is a single named validation over a context value of type C.
// A nil return means the step passed.
type Step[C any] struct {
	Name  string
	Check ValidationCheck
	Run   func(context.Context, C) *oidc.Error
}

// Group is an ordered set of steps. A group marked CascadeStop stops
// executing its remaining steps after the first failure. A group with
// DependsOn set is skipped entirely unless the named group passed.
type Group[C any] struct {
	Name        string
	DependsOn   string
	CascadeStop bool
	Steps       []Step[C]
}

// Outcome is the terminal result of a chain run: the failing step's
// check for audit routing plus the OAuth error returned to the caller.
type Outcome struct {
	Check ValidationCheck
	Err   *oidc.Error
}

// Chain executes groups of validation steps in declaration order.
//
// The failure hook runs exactly once with the first failing step's outcome;
// the success hook runs exactly once when every executed group passed.
// Hooks emit audit events and must never fail the request: panics are
// recovered and logged.
type Chain[C any] struct {
	Groups    []Group[C]
	OnFailure func(context.Context, Outcome)
	OnSuccess func(context.Context)
	Logger    *slog.Logger
}

// Run executes the chain over v and returns the first failure, or nil.
func (c *Chain[C]) Run(ctx context.Context, v C) *oidc.Error {
	var failed Outcome
	passed := make(map[string]bool, len(c.Groups))

	for _, group := range c.Groups {
		if group.DependsOn != "" && !passed[group.DependsOn] {
			continue
		}
		groupOK := true
		for _, step := range group.Steps {
			err := step.Run(ctx, v)
			if err == nil {
				continue
			}
			groupOK = false
			if failed.Err == nil {
				failed = Outcome{Check: step.Check, Err: err}
			}
			if group.CascadeStop {
				break
			}
		}
		passed[group.Name] = groupOK
	}

	if failed.Err != nil {
		c.runHook(ctx, "failure", func(ctx context.Context) {
			if c.OnFailure != nil {
				c.OnFailure(ctx, failed)
			}
		})
		return failed.Err
	}
	c.runHook(ctx, "success", func(ctx context.Context) {
		if c.OnSuccess != nil {
			c.OnSuccess(ctx)
		}
	})
	return nil
}

// runHook shields the validation result from misbehaving hooks.
func (c *Chain[C]) runHook(ctx context.Context, kind string, hook func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			logger := c.Logger
			if logger == nil {
				logger = slog.Default()
			}
			logger.ErrorContext(ctx, "validation hook panicked", "hook", kind, "recovered", r)
		}
	}()
	hook(ctx)
}
