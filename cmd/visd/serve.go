// ABOUTME: serve subcommand
// ABOUTME: Runs the event loop, visualization output, host pipeline and optional status, mDNS and TUI
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Sendspin/sendspin-vis/internal/config"
	"github.com/Sendspin/sendspin-vis/internal/discovery"
	"github.com/Sendspin/sendspin-vis/internal/event"
	"github.com/Sendspin/sendspin-vis/internal/host"
	"github.com/Sendspin/sendspin-vis/internal/logging"
	"github.com/Sendspin/sendspin-vis/internal/metrics"
	"github.com/Sendspin/sendspin-vis/internal/source"
	"github.com/Sendspin/sendspin-vis/internal/status"
	"github.com/Sendspin/sendspin-vis/internal/tui"
	"github.com/Sendspin/sendspin-vis/internal/version"
	"github.com/Sendspin/sendspin-vis/internal/visualization"
)

const tuiRefresh = 500 * time.Millisecond

type serveOptions struct {
	tui     bool
	logFile string
}

func newServeCommand(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the visualization server",
		Long:  "Listen for visualization clients and play an audio file or test tone into the output until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root, cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runServe(ctx, cfg, opts)
		},
	}

	addConfigFlags(cmd.Flags())
	cmd.Flags().BoolVar(&opts.tui, "tui", false, "Show a live status view instead of streaming logs")
	cmd.Flags().StringVar(&opts.logFile, "log-file", "visd.log", "Log file used while the TUI is shown")

	return cmd
}

// serveLogger logs to stderr, or to a file while the TUI owns the terminal
func serveLogger(cfg *config.Config, opts *serveOptions) (*slog.Logger, func(), error) {
	if !opts.tui {
		logger, err := logging.Init(cfg.Log)
		return logger, func() {}, err
	}

	f, err := os.OpenFile(opts.logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		return nil, nil, fmt.Errorf("error opening log file: %w", err)
	}
	logger, err := logging.New(cfg.Log, f)
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	slog.SetDefault(logger)
	return logger, func() { _ = f.Close() }, nil
}

func runServe(ctx context.Context, cfg *config.Config, opts *serveOptions) error {
	logger, closeLog, err := serveLogger(cfg, opts)
	if err != nil {
		return err
	}
	defer closeLog()

	logger.Info("starting", "version", version.String())

	m, err := metrics.New()
	if err != nil {
		return err
	}

	src, err := source.Open(cfg.Audio.Source, cfg.Audio.SampleRate, cfg.Audio.Channels, logging.Module(logger, "source"))
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	loop := event.NewLoop(logging.Module(logger, "event"))
	go loop.Run()
	defer func() {
		loop.Stop()
		<-loop.Done()
	}()

	out, err := visualization.NewOutput(loop, cfg.Visualization, logger, m)
	if err != nil {
		return err
	}
	// Runs before the loop is stopped so teardown is dispatched onto it
	defer out.Destroy()

	pipeline, err := host.New(out, src, host.Config{BitDepth: cfg.Audio.BitDepth, SampleRate: cfg.Audio.SampleRate}, logging.Module(logger, "host"))
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	gctx, cancel := context.WithCancel(gctx)
	defer cancel()

	g.Go(func() error {
		// Ending playback ends the daemon
		defer cancel()
		return pipeline.Run(gctx)
	})

	if cfg.Status.Enabled {
		api := status.New(out, m, logging.Module(logger, "status"))
		g.Go(func() error {
			return api.ListenAndServe(gctx, cfg.Status.Listen)
		})
	}

	if cfg.MDNS.Enabled {
		g.Go(func() error {
			return advertise(gctx, out, cfg.MDNS.Name, logging.Module(logger, "discovery"))
		})
	}

	if opts.tui {
		title, _, _ := src.Metadata()
		runTUI(gctx, g, cancel, out, cfg.MDNS.Name, title)
	}

	err = g.Wait()
	logger.Info("stopped", "chunks", pipeline.Chunks(), "bytes", pipeline.Bytes())
	return err
}

// runTUI starts the status view and its refresh goroutine. Quitting the
// view cancels the daemon.
func runTUI(ctx context.Context, g *errgroup.Group, cancel context.CancelFunc, out *visualization.Output, name, title string) {
	view := tui.New(name)

	g.Go(func() error {
		defer cancel()
		return view.Run()
	})

	g.Go(func() error {
		defer view.Stop()

		ticker := time.NewTicker(tuiRefresh)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-view.QuitChan():
				cancel()
				return nil
			case <-ticker.C:
				view.Update(tui.Status{Name: name, AudioTitle: title, Output: out.Stats()})
			}
		}
	})
}

// advertise waits for the output to listen on TCP, then publishes its port
// until ctx is done
func advertise(ctx context.Context, out *visualization.Output, name string, logger *slog.Logger) error {
	port, err := waitForPort(ctx, out, 50*time.Millisecond)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		logger.Warn("mDNS advertisement skipped", "error", err)
		return nil
	}

	mgr := discovery.NewManager(discovery.Config{ServiceName: name, Port: port}, logger)
	if err := mgr.Advertise(); err != nil {
		logger.Warn("mDNS advertisement failed", "error", err)
		return nil
	}
	<-ctx.Done()
	mgr.Stop()
	return nil
}

// waitForPort polls the output until it is listening and returns its TCP
// port. Unix socket listeners have no port to advertise.
func waitForPort(ctx context.Context, out *visualization.Output, every time.Duration) (int, error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		if st := out.Stats(); st.Listening {
			return portOf(st.Addr)
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
		}
	}
}

func portOf(addr string) (int, error) {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("no TCP port in %q: %w", addr, err)
	}
	return strconv.Atoi(p)
}
