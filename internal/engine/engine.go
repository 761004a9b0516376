// Package engine runs the detection loop. A single goroutine owns every
// index, lock and history; triggers, feed snapshots, action results and
// timer expiries all reach it as events on one channel.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/wfce/gmgn-filter/internal/autotrigger"
	"github.com/wfce/gmgn-filter/internal/config"
	"github.com/wfce/gmgn-filter/internal/feed"
	"github.com/wfce/gmgn-filter/internal/grouping"
	"github.com/wfce/gmgn-filter/internal/hysteresis"
	"github.com/wfce/gmgn-filter/internal/leader"
	"github.com/wfce/gmgn-filter/internal/logging"
	"github.com/wfce/gmgn-filter/internal/metrics"
	"github.com/wfce/gmgn-filter/internal/model"
	"github.com/wfce/gmgn-filter/internal/otel"
	"github.com/wfce/gmgn-filter/internal/scheduler"
	"github.com/wfce/gmgn-filter/internal/stats"
)

const (
	// DefaultSweepInterval is the period of lock and history maintenance.
	DefaultSweepInterval = 5 * time.Second

	// DefaultSnapshotTimeout bounds one feed read.
	DefaultSnapshotTimeout = 2 * time.Second

	eventQueueSize = 256
)

var errNoExecutor = errors.New("no executor configured")

// Recorder receives statistics events. *stats.Aggregator satisfies it.
type Recorder interface {
	Record(kind stats.Kind)
}

// Options wires the engine to its collaborators. Only Source is required.
type Options struct {
	Source    feed.Source
	Presenter Presenter
	Executor  autotrigger.Executor
	Stats     Recorder
	Clock     clockwork.Clock
	Events    *otel.Logger
	Metrics   *metrics.Metrics

	Debounce        scheduler.Debounce
	SweepInterval   time.Duration
	SnapshotTimeout time.Duration
}

// burst tracks one debounced trigger source.
type burst struct {
	count int
	seq   uint64
	timer clockwork.Timer
}

// Engine classifies feed items and drives auto-trigger actions.
// Everything below events is owned by the Run goroutine.
type Engine struct {
	opts   Options
	clock  clockwork.Clock
	events chan event
	quit   chan struct{}

	cfg       *config.Config
	sched     *scheduler.Scheduler
	lock      *hysteresis.Lock
	auto      *autotrigger.Engine
	columns   map[string]*columnState
	bursts    map[scheduler.Source]*burst
	scanTimer clockwork.Timer
	epoch     uint64
	scans     int
	lastScan  time.Time
}

// New validates cfg and builds an engine. Call Run to start it.
func New(cfg *config.Config, opts Options) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Source == nil {
		return nil, errors.New("engine: feed source is required")
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Debounce == (scheduler.Debounce{}) {
		opts.Debounce = scheduler.DefaultDebounce()
	}
	if opts.Debounce.Heartbeat <= 0 {
		opts.Debounce.Heartbeat = scheduler.DefaultDebounce().Heartbeat
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.SnapshotTimeout <= 0 {
		opts.SnapshotTimeout = DefaultSnapshotTimeout
	}

	c := *cfg
	e := &Engine{
		opts:    opts,
		clock:   opts.Clock,
		events:  make(chan event, eventQueueSize),
		quit:    make(chan struct{}),
		cfg:     &c,
		sched:   scheduler.New(c.MinScanInterval),
		lock:    hysteresis.New(c.LockDuration),
		auto:    autotrigger.New(c.AutoTrigger()),
		columns: make(map[string]*columnState),
		bursts:  make(map[scheduler.Source]*burst),
	}
	return e, nil
}

// Trigger reports that the feed may have changed. Safe from any goroutine.
func (e *Engine) Trigger(src scheduler.Source) {
	e.post(evTrigger{src: src})
}

// Reset clears all loop state and starts over.
func (e *Engine) Reset() {
	e.post(evReset{})
}

// UpdateConfig swaps the configuration. A new config always implies a
// full reset; a disabled config stops scanning after the reset.
func (e *Engine) UpdateConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	c := *cfg
	e.post(evConfig{cfg: &c})
}

// Status asks the loop for a summary.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	reply := make(chan Status, 1)
	select {
	case e.events <- evStatus{reply: reply}:
	case <-e.quit:
		return Status{}, errors.New("engine stopped")
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
	select {
	case st := <-reply:
		return st, nil
	case <-e.quit:
		return Status{}, errors.New("engine stopped")
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

// post delivers ev unless the loop has exited.
func (e *Engine) post(ev event) bool {
	select {
	case e.events <- ev:
		return true
	case <-e.quit:
		return false
	}
}

// Run processes events until ctx is cancelled. It must be called once.
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.quit)

	heartbeat := e.clock.NewTicker(e.opts.Debounce.Heartbeat)
	defer heartbeat.Stop()
	sweep := e.clock.NewTicker(e.opts.SweepInterval)
	defer sweep.Stop()

	logging.Info("engine started", "enabled", e.cfg.Enabled, "match", e.cfg.MatchMode, "show", e.cfg.ShowMode)
	e.onTrigger(ctx, scheduler.SourceManual)

	for {
		select {
		case <-ctx.Done():
			e.stopTimers()
			logging.Info("engine stopped", "scans", e.scans)
			return nil
		case <-heartbeat.Chan():
			e.onTrigger(ctx, scheduler.SourceHeartbeat)
		case <-sweep.Chan():
			e.sweep()
		case ev := <-e.events:
			e.handle(ctx, ev)
		}
	}
}

func (e *Engine) handle(ctx context.Context, ev event) {
	switch ev := ev.(type) {
	case evTrigger:
		e.onTrigger(ctx, ev.src)
	case evDebounced:
		e.onDebounced(ctx, ev)
	case evScanDue:
		if ev.epoch == e.epoch {
			e.scanTimer = nil
			e.startScan(ctx)
		}
	case evSnapshot:
		e.onSnapshot(ctx, ev)
	case evActionDone:
		e.onActionDone(ev)
	case evLockRelease:
		if ev.epoch == e.epoch {
			e.auto.Release()
		}
	case evReset:
		e.reset(ctx, "manual")
	case evConfig:
		e.applyConfig(ctx, ev.cfg)
	case evStatus:
		ev.reply <- e.status()
	default:
		logging.Warn("engine: unknown event", "type", fmt.Sprintf("%T", ev))
	}
}

func (e *Engine) onTrigger(ctx context.Context, src scheduler.Source) {
	if !e.cfg.Enabled {
		return
	}
	b := e.bursts[src]
	if b == nil {
		b = &burst{}
		e.bursts[src] = b
	}
	delay := e.opts.Debounce.Delay(src, b.count+1)
	if delay <= 0 {
		e.schedule(ctx, src.String(), e.sched.Trigger(e.clock.Now()))
		return
	}

	b.count++
	b.seq++
	if b.timer != nil {
		b.timer.Stop()
	}
	seq, epoch := b.seq, e.epoch
	b.timer = e.clock.AfterFunc(delay, func() {
		e.post(evDebounced{src: src, seq: seq, epoch: epoch})
	})
}

func (e *Engine) onDebounced(ctx context.Context, ev evDebounced) {
	b := e.bursts[ev.src]
	if ev.epoch != e.epoch || b == nil || ev.seq != b.seq {
		return
	}
	b.count = 0
	b.timer = nil
	e.schedule(ctx, ev.src.String(), e.sched.Trigger(e.clock.Now()))
}

// schedule carries out a scheduler plan. label names the cause for
// metrics.
func (e *Engine) schedule(ctx context.Context, label string, plan scheduler.Plan) {
	e.opts.Metrics.Trigger(label, plan.Action.String())
	switch plan.Action {
	case scheduler.RunNow:
		e.startScan(ctx)
	case scheduler.RunAfter:
		if e.scanTimer != nil {
			e.scanTimer.Stop()
		}
		epoch := e.epoch
		e.scanTimer = e.clock.AfterFunc(plan.Delay, func() {
			e.post(evScanDue{epoch: epoch})
		})
	}
}

// startScan reads the feed off-loop; the result comes back as
// evSnapshot stamped with the scan generation.
func (e *Engine) startScan(ctx context.Context) {
	gen, ok := e.sched.Begin()
	if !ok {
		return
	}
	started := e.clock.Now()
	e.opts.Events.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindScanStart, Comp: "engine", Gen: gen})

	src, timeout := e.opts.Source, e.opts.SnapshotTimeout
	go func() {
		sctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		snap, err := src.Snapshot(sctx)
		e.post(evSnapshot{gen: gen, snap: snap, err: err, started: started})
	}()
}

func (e *Engine) onSnapshot(ctx context.Context, ev evSnapshot) {
	if !e.sched.IsCurrent(ev.gen) {
		e.opts.Metrics.ScanStale()
		e.opts.Events.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindScanStale, Comp: "engine", Gen: ev.gen})
		return
	}

	now := e.clock.Now()
	switch {
	case errors.Is(ev.err, feed.ErrNoSnapshot):
		logging.Debug("feed has no snapshot yet")
	case ev.err != nil:
		e.opts.Metrics.ScanFailed()
		e.opts.Events.Emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindScanError, Comp: "engine", Gen: ev.gen, Err: ev.err.Error()})
		logging.Warn("feed snapshot failed", "gen", ev.gen, "error", ev.err)
	default:
		items := 0
		for _, col := range ev.snap.Columns {
			e.scanColumn(ctx, now, ev.gen, col)
			items += len(col.Items)
		}
		e.scans++
		e.lastScan = now
		dur := now.Sub(ev.started)
		e.opts.Metrics.ScanCompleted(dur.Seconds())
		e.opts.Events.Emit(otel.Event{
			Level: otel.LevelDebug,
			Kind:  otel.KindScanComplete,
			Comp:  "engine",
			Gen:   ev.gen,
			Dur:   dur,
			Count: items,
		})
	}

	if plan, ok := e.sched.Finish(now, ev.gen); ok {
		e.schedule(ctx, "followup", plan)
	}
}

func (e *Engine) column(id string) *columnState {
	st, ok := e.columns[id]
	if !ok {
		st = &columnState{known: make(map[model.Identity]struct{})}
		e.columns[id] = st
	}
	return st
}

// scanColumn classifies one column, feeds new primary-column items to
// auto-trigger, publishes the column's render index and presents the
// frame.
func (e *Engine) scanColumn(ctx context.Context, now time.Time, gen uint64, col feed.Column) {
	st := e.column(col.ID)
	opts := e.cfg.LeaderOptions()

	items := make([]model.Item, len(col.Items))
	for i, it := range col.Items {
		it.Keys = grouping.Keys(it.Symbol, it.Name, e.cfg.MatchMode)
		items[i] = it
	}

	build := st.buf.Build(items, opts)
	observe := col.Primary && st.scanned && e.cfg.AutoBuy.Enabled
	known := make(map[model.Identity]struct{}, len(items))
	decisions := make([]Decision, 0, len(items))

	for _, it := range items {
		d := e.decide(now, gen, col.ID, it, build, opts)
		decisions = append(decisions, d)

		known[it.Identity] = struct{}{}
		if _, seen := st.known[it.Identity]; !seen && observe {
			e.observe(ctx, now, it)
		}
	}

	st.known = known
	st.scanned = true
	render := st.buf.Publish()

	if e.opts.Presenter != nil {
		e.opts.Presenter.Present(Frame{
			Column:     col.ID,
			Primary:    col.Primary,
			Generation: gen,
			At:         now,
			Decisions:  decisions,
			Index:      render,
		})
	}
}

// decide computes the stabilized classification and hide flag of it.
func (e *Engine) decide(now time.Time, gen uint64, column string, it model.Item, build *leader.Index, opts leader.Options) Decision {
	d := Decision{Item: it}
	if len(it.Keys) == 0 {
		return d
	}

	computed := true
	if opts.Comparable(it) {
		computed = build.IsFirst(it.Identity, it.Keys)
	}

	isFirst, outcome, _ := e.lock.Classify(now, it.Identity, it.Keys, computed, build)
	if isFirst {
		d.Class = First
	} else {
		d.Class = Duplicate
		if rec, ok := build.Rival(it.Identity, it.Keys); ok {
			l := rec.Leader
			d.Leader = &l
		}
	}

	if outcome == hysteresis.Retained {
		d.Retained = true
		e.opts.Metrics.LockRetained()
		e.opts.Events.Emit(otel.Event{
			Level:  otel.LevelDebug,
			Kind:   otel.KindLockRetained,
			Comp:   "engine",
			Gen:    gen,
			Column: column,
			Token:  it.Identity.String(),
		})
		logging.Debug("lock retained first", "token", it.Identity.Short(), "column", column)
	}

	d.Hide = hide(e.cfg.ShowMode, d.Class, build.InDupGroup(it.Keys))

	if otel.TraceEnabled() {
		e.opts.Events.Emit(otel.Event{
			Level:  otel.LevelDebug,
			Kind:   otel.KindDecision,
			Comp:   "engine",
			Gen:    gen,
			Column: column,
			Token:  it.Identity.String(),
			Extra: map[string]any{
				"class":    d.Class.String(),
				"hide":     d.Hide,
				"retained": d.Retained,
				"keys":     it.Keys,
			},
		})
	}
	return d
}

// hide applies the show mode. inDup reports whether any of the item's
// keys has two or more contenders in the current scan.
func hide(mode config.ShowMode, class Class, inDup bool) bool {
	if class == Unclassified {
		return false
	}
	switch mode {
	case config.ShowOnlyFirst:
		return class != First
	case config.ShowOnlyDup:
		return class == First
	case config.ShowHideNonDupFirst:
		return !inDup
	}
	return false
}

// observe feeds a new item to auto-trigger and launches the action when
// an episode fires.
func (e *Engine) observe(ctx context.Context, now time.Time, it model.Item) {
	out := e.auto.Observe(now, it)
	if out == nil {
		return
	}

	if e.opts.Stats != nil {
		e.opts.Stats.Record(stats.KindDetection)
	}
	t := out.Target
	ev := otel.Event{
		Comp:  "autotrigger",
		Token: t.Identity.String(),
		Key:   t.Key,
		Count: t.Distinct,
	}

	if !out.Fire() {
		e.opts.Metrics.Episode(string(out.Skip))
		ev.Level, ev.Kind, ev.Msg = otel.LevelInfo, otel.KindTriggerSkip, string(out.Skip)
		e.opts.Events.Emit(ev)
		logging.Info("auto-trigger skipped", "key", t.Key, "token", t.Identity.Short(), "reason", out.Skip)
		return
	}

	e.opts.Metrics.Episode("fire")
	ev.Level, ev.Kind = otel.LevelInfo, otel.KindTriggerFire
	e.opts.Events.Emit(ev)
	logging.Info("auto-trigger fired", "key", t.Key, "token", t.Identity.Short(), "distinct", t.Distinct)

	exec, timeout, epoch := e.opts.Executor, e.cfg.AutoBuy.Timeout, e.epoch
	go func() {
		var err error
		if exec == nil {
			err = errNoExecutor
		} else {
			err = autotrigger.Invoke(ctx, exec, t, timeout)
		}
		e.post(evActionDone{epoch: epoch, target: t, err: err})
	}()
}

func (e *Engine) onActionDone(ev evActionDone) {
	ok := ev.err == nil
	stale := ev.epoch != e.epoch
	// The purchased set belongs to the epoch that fired the action; a
	// reset since then already discarded it.
	if !stale {
		e.auto.Complete(ev.target, ok)
	}
	e.opts.Metrics.Action(ok)

	oe := otel.Event{Comp: "autotrigger", Token: ev.target.Identity.String(), Key: ev.target.Key}
	if ok {
		if e.opts.Stats != nil {
			e.opts.Stats.Record(stats.KindAutoBuy)
		}
		oe.Level, oe.Kind = otel.LevelInfo, otel.KindActionOK
		logging.Info("action succeeded", "token", ev.target.Identity.Short(), "key", ev.target.Key)
	} else {
		oe.Level, oe.Kind, oe.Err = otel.LevelError, otel.KindActionFail, ev.err.Error()
		logging.Error("action failed", "token", ev.target.Identity.Short(), "key", ev.target.Key, "error", ev.err)
	}
	e.opts.Events.Emit(oe)

	// A reset already released the lock this action held.
	if stale {
		return
	}
	cooldown := e.cfg.AutoBuy.Cooldown
	if cooldown <= 0 {
		e.auto.Release()
		return
	}
	epoch := e.epoch
	e.clock.AfterFunc(cooldown, func() {
		e.post(evLockRelease{epoch: epoch})
	})
}

func (e *Engine) sweep() {
	now := e.clock.Now()
	locks := e.lock.Sweep(now)
	hist := e.auto.Sweep(now)
	if locks > 0 || hist > 0 {
		logging.Debug("sweep", "locks", locks, "histories", hist)
	}
}

func (e *Engine) stopTimers() {
	if e.scanTimer != nil {
		e.scanTimer.Stop()
		e.scanTimer = nil
	}
	for _, b := range e.bursts {
		if b.timer != nil {
			b.timer.Stop()
		}
	}
	e.bursts = make(map[scheduler.Source]*burst)
}

// reset drops every index, lock, history and set. In-flight scans become
// stale and pending timers are ignored through the epoch.
func (e *Engine) reset(ctx context.Context, reason string) {
	e.epoch++
	e.sched.Invalidate()
	e.stopTimers()
	e.lock.Reset()
	e.auto.Reset()

	now := e.clock.Now()
	for id, st := range e.columns {
		st.buf.Reset()
		if e.opts.Presenter != nil {
			e.opts.Presenter.Present(Frame{Column: id, Generation: e.sched.Current(), At: now})
		}
	}
	e.columns = make(map[string]*columnState)

	e.opts.Metrics.Reset()
	e.opts.Events.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindEngineReset, Comp: "engine", Msg: reason, Gen: e.sched.Current()})
	logging.Info("engine reset", "reason", reason, "epoch", e.epoch)

	e.onTrigger(ctx, scheduler.SourceManual)
}

func (e *Engine) applyConfig(ctx context.Context, cfg *config.Config) {
	if err := cfg.Validate(); err != nil {
		e.opts.Events.Error(otel.KindError, "engine", err)
		logging.Warn("rejected config update", "error", err)
		return
	}
	e.cfg = cfg
	e.sched.SetMinInterval(cfg.MinScanInterval)
	e.lock = hysteresis.New(cfg.LockDuration)
	e.auto = autotrigger.New(cfg.AutoTrigger())

	e.opts.Events.Emit(otel.Event{
		Level: otel.LevelInfo,
		Kind:  otel.KindConfigReload,
		Comp:  "engine",
		Extra: map[string]any{
			"enabled":  cfg.Enabled,
			"match":    string(cfg.MatchMode),
			"show":     string(cfg.ShowMode),
			"auto_buy": cfg.AutoBuy.Enabled,
		},
	})
	e.reset(ctx, "config")
}

func (e *Engine) status() Status {
	return Status{
		Enabled:     e.cfg.Enabled,
		AutoBuy:     e.cfg.AutoBuy.Enabled,
		State:       e.sched.State(),
		Generation:  e.sched.Current(),
		Epoch:       e.epoch,
		Columns:     len(e.columns),
		Locks:       e.lock.Len(),
		Scans:       e.scans,
		LastScan:    e.lastScan,
		AutoTrigger: e.auto.Stats(),
	}
}
