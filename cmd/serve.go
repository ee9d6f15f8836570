package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rogersnm/skillmap/internal/adapter"
	"github.com/rogersnm/skillmap/internal/lifecycle"
	"github.com/rogersnm/skillmap/internal/model"
	"github.com/rogersnm/skillmap/internal/notify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve store requests over stdio or HTTP",
	Long: `Serve answers store requests until interrupted.

Without an HTTP address it reads one JSON request per line from stdin and
writes one JSON response per line to stdout, returning when stdin closes.
With --http (or http.addr in config.yaml) it listens for POST /rpc and also
serves /trees, /events, /healthz and /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if local == nil {
			return fmt.Errorf("serve needs a local store; drop --remote")
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := lifecycle.Activate(ctx, local.repo, cfg.DefaultTree, logger.Named("lifecycle")); err != nil {
			return err
		}
		local.collector.WatchCacheSize(local.summaries.Len)

		addr, _ := cmd.Flags().GetString("http")
		if addr == "" {
			addr = cfg.HTTP.Addr
		}
		if stdio, _ := cmd.Flags().GetBool("stdio"); stdio {
			addr = ""
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		g, gctx := errgroup.WithContext(ctx)
		if err := startRefresh(gctx, g); err != nil {
			return err
		}

		g.Go(func() error {
			defer cancel()
			if addr == "" {
				logger.Info("serving stdio")
				return local.adapter.ServeStream(gctx, cmd.InOrStdin(), cmd.OutOrStdout())
			}
			return serveHTTP(gctx, cmd, addr)
		})
		return g.Wait()
	},
}

// startRefresh keeps the summary cache in step with writes made by other
// processes: redis events from other origins and, when enabled, file changes
// under the data directory. Redis events are re-published on the local hub
// so /events clients see them too.
func startRefresh(ctx context.Context, g *errgroup.Group) error {
	refresher := lifecycle.NewRefresher(local.repo, logger.Named("refresh"))

	if local.redis != nil {
		events, err := local.redis.Subscribe(ctx)
		if err != nil {
			logger.Warn("redis subscription unavailable", zap.Error(err))
		} else {
			g.Go(func() error {
				for ev := range events {
					refresher.Apply(ctx, ev)
					_ = local.hub.Publish(ctx, ev)
				}
				return nil
			})
		}
	}

	if cfg.Notify.Watch {
		w, err := notify.NewWatcher(local.baseDir, logger.Named("watcher"))
		if err != nil {
			return err
		}
		if err := w.Start(); err != nil {
			return err
		}
		g.Go(func() error {
			<-ctx.Done()
			w.Stop()
			return nil
		})
		g.Go(func() error {
			refresher.Run(ctx, w.Events)
			return nil
		})
	}
	return nil
}

func serveHTTP(ctx context.Context, cmd *cobra.Command, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler: adapter.NewHTTPHandler(local.adapter, adapter.HTTPOptions{
			AllowedOrigins: cfg.HTTP.AllowedOrigins,
			Metrics:        local.collector,
			Summaries:      local.repo,
			Events:         local.hub,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		// Request contexts end with ctx so /events streams let Shutdown finish.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Serving on http://%s\n", ln.Addr())
	logger.Info("serving http", zap.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print change events from other processes as JSON lines",
	RunE: func(cmd *cobra.Command, args []string) error {
		if local == nil {
			return fmt.Errorf("watch needs a local store; drop --remote")
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		w, err := notify.NewWatcher(local.baseDir, logger.Named("watcher"))
		if err != nil {
			return err
		}
		if err := w.Start(); err != nil {
			return err
		}
		defer w.Stop()

		var remote <-chan model.Event
		if local.redis != nil {
			if remote, err = local.redis.Subscribe(ctx); err != nil {
				logger.Warn("redis subscription unavailable", zap.Error(err))
			}
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		files := w.Events
		for files != nil || remote != nil {
			var ev model.Event
			var ok bool
			select {
			case <-ctx.Done():
				return nil
			case ev, ok = <-files:
				if !ok {
					files = nil
					continue
				}
			case ev, ok = <-remote:
				if !ok {
					remote = nil
					continue
				}
			}
			if err := enc.Encode(ev); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("http", "", "listen address for HTTP, e.g. 127.0.0.1:8787")
	serveCmd.Flags().Bool("stdio", false, "serve stdio even when http.addr is configured")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
}
