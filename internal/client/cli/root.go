package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func (a *App) getStatus() string {
	s := ""
	if u := a.session.Username(); u != "" {
		s = u + " "
	}
	s += string(a.Mode())
	if scope := a.session.Scope(); scope.IncidentID != 0 {
		s += " " + scope.String()
	}
	return fmt.Sprintf("(%s)", s)
}

// Run recovers interrupted pushes, starts the background loops and blocks
// in the REPL until the user exits. Everything is shut down on return.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if _, err := a.orch.Recover(ctx); err != nil {
		_ = a.close()
		return fmt.Errorf("recover: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.loop.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		a.StartOnlineStatusWatcher(gctx, a.config.OnlineCheckInterval)
		return nil
	})
	g.Go(func() error {
		a.StartPolling(gctx, a.config.PollInterval)
		return nil
	})
	if a.config.MetricsAddr != "" {
		g.Go(func() error {
			return a.serveMetrics(gctx, a.config.MetricsAddr)
		})
	}

	a.Root(gctx)

	a.layers.m.Stop(ctx)
	cancel()
	err := g.Wait()
	return errors.Join(err, a.close())
}

// Root prints the banner, resumes a stored session and runs the REPL.
func (a *App) Root(ctx context.Context) {
	fmt.Fprintln(a.out, "Welcome to fieldsync (type 'help' for commands)")

	if a.session.IsAuthenticated() {
		fmt.Fprintln(a.out, "Resuming session of", a.session.Username())
		a.resume(ctx)
	} else if err := a.Login(ctx); err != nil {
		fmt.Fprintln(a.out, "Error:", err)
	}

	runREPL(ctx, a, a.getStatus, bufio.NewScanner(os.Stdin))
}

// StartOnlineStatusWatcher probes the server every interval. Coming back
// online flushes local changes (see orchestrator.Probe).
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	a.orch.Probe(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.orch.Probe(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// StartPolling refreshes the selected scope every interval while online.
func (a *App) StartPolling(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if a.orch.Online() {
				a.orch.RefreshAll(ctx)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	a.logger.Info(ctx, "serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
