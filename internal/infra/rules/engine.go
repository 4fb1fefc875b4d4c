// Package rules provides a generic ordered-rule executor. Rules run in
// ascending Order; ties are broken by registration order, so a fixed rule
// set always processes a context the same way.
package rules

import (
	"context"
	"sort"

	"go.uber.org/zap"
)

// Rule is one predicate+action step of a pipeline. A rule whose Matches
// returns false is skipped for that context. An error from Apply aborts the
// remaining pipeline for the context and propagates to the caller unchanged.
type Rule[C any] interface {
	Name() string
	Order() int
	Matches(c C) bool
	Apply(ctx context.Context, c C) error
}

type Engine[C any] struct {
	rules  []Rule[C]
	logger *zap.Logger
}

func NewEngine[C any](logger *zap.Logger, rules ...Rule[C]) *Engine[C] {
	if logger == nil {
		logger = zap.NewNop()
	}
	ordered := append([]Rule[C](nil), rules...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Order() < ordered[j].Order()
	})
	return &Engine[C]{
		rules:  ordered,
		logger: logger.Named("rules"),
	}
}

// Run executes the rule pipeline against c. Cancellation is checked before
// every rule and propagates exactly like a rule fault.
func (e *Engine[C]) Run(ctx context.Context, c C) error {
	for _, rule := range e.rules {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !rule.Matches(c) {
			continue
		}
		if err := rule.Apply(ctx, c); err != nil {
			e.logger.Debug("rule failed", zap.String("rule", rule.Name()), zap.Error(err))
			return err
		}
	}
	return nil
}

// Rules returns the execution order, mainly for diagnostics and tests.
func (e *Engine[C]) Rules() []Rule[C] {
	return append([]Rule[C](nil), e.rules...)
}
