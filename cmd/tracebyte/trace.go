package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yousuf/tracebyte/internal/front"
	"github.com/yousuf/tracebyte/internal/protocol"
	"github.com/yousuf/tracebyte/internal/tracer"
)

var (
	traceTabID         int
	traceOuterWindowID int
	traceLogMethod     string
	traceValues        bool
	traceReturns       bool
	traceDuration      time.Duration
)

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Trace the thread of a tab",
	Long: `Starts a tracing session on a tab's target and prints every actor event
as a JSON line until the duration elapses or the command is interrupted,
then stops the session. The selected tab is traced unless --tab-id or
--outer-window-id picks another one.

Example:
  tracebyte trace --url http://localhost:3000 --log-method profiler --duration 10s`,
	RunE: runTrace,
}

func init() {
	f := traceCmd.Flags()
	f.IntVar(&traceTabID, "tab-id", 0, "trace the tab with this id")
	f.IntVar(&traceOuterWindowID, "outer-window-id", 0, "trace the tab whose top-level window has this id")
	f.StringVar(&traceLogMethod, "log-method", "", "stdout, console, debugger-sidebar or profiler (default from the server)")
	f.BoolVar(&traceValues, "values", false, "record function arguments and return values")
	f.BoolVar(&traceReturns, "returns", false, "record function exits")
	f.DurationVar(&traceDuration, "duration", 0, "stop after this long (default: until interrupted)")
}

func tabFilter(cmd *cobra.Command) *front.TabFilter {
	switch {
	case cmd.Flags().Changed("outer-window-id"):
		return &front.TabFilter{OuterWindowID: &traceOuterWindowID}
	case cmd.Flags().Changed("tab-id"):
		return &front.TabFilter{TabID: &traceTabID}
	default:
		return nil
	}
}

func runTrace(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	box, err := openRemote(ctx)
	if err != nil {
		return err
	}
	defer box.Close()

	tab, err := box.Root.GetTab(ctx, tabFilter(cmd))
	if err != nil {
		return fmt.Errorf("failed to find tab: %w", err)
	}
	target, err := tab.GetTarget(ctx)
	if err != nil {
		return fmt.Errorf("failed to get target of %s: %w", tab.URL(), err)
	}

	var mu sync.Mutex
	enc := json.NewEncoder(cmd.OutOrStdout())
	unsubscribe := box.Client.Subscribe(func(ev protocol.Packet) {
		if ev.From() == target.ActorID() {
			mu.Lock()
			_ = enc.Encode(ev)
			mu.Unlock()
		}
	})
	defer unsubscribe()

	t := target.Tracer()
	opts := tracer.StartOptions{
		LogMethod:           tracer.LogMethod(traceLogMethod),
		TraceValues:         traceValues,
		TraceFunctionReturn: traceReturns,
	}
	if err := t.StartTracing(ctx, opts); err != nil {
		return fmt.Errorf("failed to start tracing: %w", err)
	}
	logger.Info("tracing " + tab.URL())

	if traceDuration > 0 {
		select {
		case <-time.After(traceDuration):
		case <-ctx.Done():
		}
	} else {
		<-ctx.Done()
	}

	// the session must be stopped even after an interrupt
	stopCtx := cmd.Context()
	if err := t.StopTracing(stopCtx); err != nil {
		return fmt.Errorf("failed to stop tracing: %w", err)
	}
	profile, err := t.GetProfile(stopCtx)
	if err != nil {
		return err
	}
	if profile != nil {
		mu.Lock()
		defer mu.Unlock()
		return enc.Encode(map[string]any{"profile": profile})
	}
	return nil
}
