package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/wfce/gmgn-filter/internal/autotrigger"
	"github.com/wfce/gmgn-filter/internal/logging"
	"github.com/wfce/gmgn-filter/internal/model"
	"github.com/wfce/gmgn-filter/internal/store"
)

// recordTimeout bounds the audit write, which runs after the action's own
// deadline may have passed.
const recordTimeout = 2 * time.Second

// ActionStore persists action outcomes. *store.Store satisfies it.
type ActionStore interface {
	RecordAction(ctx context.Context, a store.Action) (string, error)
	HasSucceeded(ctx context.Context, id model.Identity) (bool, error)
}

// Audited wraps an executor and writes one actions row per attempt. Live
// targets that already succeeded in an earlier run are refused, so the
// in-memory purchased set survives restarts.
type Audited struct {
	next   autotrigger.Executor
	store  ActionStore
	dryRun bool
}

// NewAudited wraps next. dryRun marks the rows it writes.
func NewAudited(next autotrigger.Executor, st ActionStore, dryRun bool) *Audited {
	return &Audited{next: next, store: st, dryRun: dryRun}
}

func (a *Audited) Execute(ctx context.Context, t model.Target) error {
	if !a.dryRun {
		done, err := a.store.HasSucceeded(ctx, t.Identity)
		switch {
		case err != nil:
			logging.Warn("audit lookup failed", "token", t.Identity.Short(), "error", err)
		case done:
			return fmt.Errorf("%s: %w", t.Identity, ErrAlreadyExecuted)
		}
	}

	execErr := a.next.Execute(ctx, t)

	act := store.Action{
		Identity: t.Identity,
		Key:      t.Key,
		Distinct: t.Distinct,
		OK:       execErr == nil,
		DryRun:   a.dryRun,
	}
	if execErr != nil {
		act.Error = execErr.Error()
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if _, err := a.store.RecordAction(rctx, act); err != nil {
		logging.Warn("record action failed", "token", t.Identity.Short(), "error", err)
	}
	return execErr
}
