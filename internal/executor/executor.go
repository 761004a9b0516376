// Package executor performs auto-trigger actions and keeps their audit
// trail.
package executor

import (
	"context"
	"errors"

	"github.com/wfce/gmgn-filter/internal/autotrigger"
	"github.com/wfce/gmgn-filter/internal/config"
	"github.com/wfce/gmgn-filter/internal/logging"
	"github.com/wfce/gmgn-filter/internal/model"
)

// ErrAlreadyExecuted is returned when the audit log already holds a
// successful action for the target.
var ErrAlreadyExecuted = errors.New("executor: target already executed")

// Compile-time interface satisfaction checks
var (
	_ autotrigger.Executor = DryRun{}
	_ autotrigger.Executor = (*Webhook)(nil)
	_ autotrigger.Executor = (*Audited)(nil)
)

// DryRun logs the target and reports success.
type DryRun struct{}

func (DryRun) Execute(ctx context.Context, t model.Target) error {
	logging.Info("dry run action", "token", t.Identity.String(), "key", t.Key, "distinct", t.Distinct)
	return ctx.Err()
}

// New returns the executor selected by cfg.
func New(cfg config.AutoBuyConfig) (autotrigger.Executor, error) {
	if cfg.DryRun {
		return DryRun{}, nil
	}
	if cfg.Webhook == "" {
		return nil, errors.New("executor: webhook is required when dry_run is off")
	}
	return NewWebhook(cfg.Webhook, cfg.WebhookToken), nil
}
