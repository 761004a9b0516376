package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wfce/gmgn-filter/internal/config"
	"github.com/wfce/gmgn-filter/internal/engine"
	"github.com/wfce/gmgn-filter/internal/executor"
	"github.com/wfce/gmgn-filter/internal/feed"
	"github.com/wfce/gmgn-filter/internal/logging"
	"github.com/wfce/gmgn-filter/internal/metrics"
	"github.com/wfce/gmgn-filter/internal/otel"
	"github.com/wfce/gmgn-filter/internal/scheduler"
	"github.com/wfce/gmgn-filter/internal/stats"
	"github.com/wfce/gmgn-filter/internal/ui"
)

var runFlags struct {
	replay      string
	interval    time.Duration
	loop        bool
	headless    bool
	metricsAddr string
	trace       bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the filter against a recorded feed",
	Long: `Replays a JSONL feed recording frame by frame, classifying every
column as the frames change. Without --headless the result is shown in a
terminal UI; with it, frame summaries go to the log on stderr.

Auto-buy only considers tokens that appear after the first scan of the
primary column. Tokens already listed when the run starts seed the known
set and never fire an action.`,
	RunE: runSniper,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.replay, "replay", "", "JSONL feed recording to replay")
	f.DurationVar(&runFlags.interval, "interval", time.Second, "time between replayed frames")
	f.BoolVar(&runFlags.loop, "loop", false, "restart the recording when it ends")
	f.BoolVar(&runFlags.headless, "headless", false, "log frames instead of starting the UI")
	f.StringVar(&runFlags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	f.BoolVar(&runFlags.trace, "trace", false, "emit a trace event for every decision")
	runCmd.MarkFlagRequired("replay")
}

func runSniper(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	level := logging.ParseLevel(cfg.Log.Level)
	if runFlags.headless {
		logging.InitWriter(os.Stderr, level)
	} else if err := logging.Init(level); err != nil {
		return err
	}
	defer logging.Close()

	if runFlags.trace {
		otel.SetTraceEnabled(true)
	}

	events, eventsPath, err := otel.OpenFile(eventsDir())
	if err != nil {
		return err
	}
	defer events.Close()
	ring := otel.NewRingBuffer(otel.DefaultRingSize)
	events.SetRingBuffer(ring)
	events.Info(otel.KindStartup, "main", "session started")
	logging.Info("events", "path", eventsPath, "session", events.SessionID())

	st, err := openStore(cfg)
	if err != nil {
		events.Error(otel.KindError, "main", err)
		return err
	}
	defer st.Close()

	m := metrics.New()
	agg := stats.NewAggregator(st,
		stats.WithDelay(cfg.Storage.StatsDelay),
		stats.WithFlushFunc(func(c stats.Counters, err error) {
			if err != nil {
				m.FlushFailed()
				events.Error(otel.KindStatsError, "stats", err)
				logging.Warn("stats flush failed", "err", err)
				return
			}
			events.Emit(otel.Event{
				Kind:  otel.KindStatsFlush,
				Comp:  "stats",
				Count: int(c.Detections + c.AutoBuys),
			})
		}),
	)

	frames, err := feed.LoadFrames(runFlags.replay)
	if err != nil {
		return err
	}
	replay := feed.NewReplay(frames, runFlags.interval, runFlags.loop)

	exec, err := executor.New(cfg.AutoBuy)
	if err != nil {
		return err
	}
	audited := executor.NewAudited(exec, st, cfg.AutoBuy.DryRun)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var eng *engine.Engine
	var program *tea.Program
	var presenter engine.Presenter
	if runFlags.headless {
		presenter = engine.PresenterFunc(logFrame)
	} else {
		app := ui.NewApp(ui.Actions{
			Rescan: func() tea.Cmd {
				return func() tea.Msg {
					eng.Trigger(scheduler.SourceManual)
					return nil
				}
			},
			Reset: func() tea.Cmd {
				return func() tea.Msg {
					eng.Reset()
					return nil
				}
			},
			Status: func() tea.Cmd {
				return func() tea.Msg {
					sctx, scancel := context.WithTimeout(ctx, time.Second)
					defer scancel()
					status, err := eng.Status(sctx)
					return ui.StatusMsg{Status: status, Err: err}
				}
			},
		}, ring)
		program = tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
		presenter = ui.NewPresenter(program.Send)
	}

	eng, err = engine.New(cfg, engine.Options{
		Source:    replay,
		Presenter: presenter,
		Executor:  audited,
		Stats:     agg,
		Events:    events,
		Metrics:   m,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eng.Run(gctx)
	})
	g.Go(func() error {
		err := replay.Run(gctx, func() { eng.Trigger(scheduler.SourceMutation) })
		if err == nil || isShutdown(err) {
			return nil
		}
		return fmt.Errorf("replay: %w", err)
	})
	g.Go(func() error {
		err := config.Watch(gctx, configPath, func(next *config.Config) {
			logging.Info("config changed", "path", configPath)
			eng.UpdateConfig(next)
		})
		if err != nil && !isShutdown(err) {
			// Hot reload is optional; keep running without it.
			logging.Warn("config watch stopped", "err", err)
		}
		return nil
	})
	if runFlags.metricsAddr != "" {
		srv := &http.Server{Addr: runFlags.metricsAddr, Handler: metricsMux(m)}
		g.Go(func() error {
			logging.Info("serving metrics", "addr", runFlags.metricsAddr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer scancel()
			return srv.Shutdown(sctx)
		})
	}
	if program != nil {
		g.Go(func() error {
			defer cancel()
			_, err := program.Run()
			if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return fmt.Errorf("ui: %w", err)
			}
			return nil
		})
	}

	err = g.Wait()

	cctx, ccancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer ccancel()
	if cerr := agg.Close(cctx); cerr != nil {
		logging.Error("final stats flush failed", "err", cerr)
	}
	events.Info(otel.KindShutdown, "main", "session ended")
	return err
}

func metricsMux(m *metrics.Metrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return mux
}

// logFrame is the headless presenter.
func logFrame(f engine.Frame) {
	var first, dup, hidden int
	for _, d := range f.Decisions {
		switch d.Class {
		case engine.First:
			first++
		case engine.Duplicate:
			dup++
		}
		if d.Hide {
			hidden++
		}
	}
	logging.Info("frame",
		"column", f.Column,
		"gen", f.Generation,
		"items", len(f.Decisions),
		"first", first,
		"dup", dup,
		"hidden", hidden,
	)
}
