package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"sync"

	"github.com/dmitrijs2005/fieldsync/internal/client/client"
	"github.com/dmitrijs2005/fieldsync/internal/client/config"
	"github.com/dmitrijs2005/fieldsync/internal/client/models"
	"github.com/dmitrijs2005/fieldsync/internal/client/orchestrator"
	"github.com/dmitrijs2005/fieldsync/internal/client/render"
	"github.com/dmitrijs2005/fieldsync/internal/client/scheduler"
	"github.com/dmitrijs2005/fieldsync/internal/client/session"
	"github.com/dmitrijs2005/fieldsync/internal/client/store"
	"github.com/dmitrijs2005/fieldsync/internal/client/workers"
	"github.com/dmitrijs2005/fieldsync/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	store    *store.Store
	session  *session.Session
	remote   client.Client
	sched    *scheduler.Scheduler
	orch     *orchestrator.Orchestrator
	loop     *render.Loop
	layers   *mapLayers
	registry *prometheus.Registry

	reader *bufio.Reader
	out    io.Writer

	modeMu sync.Mutex
	mode   Mode
}

// NewApp opens the local database and connects the sync stack to the
// server named in c.
func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	st, err := store.Open(ctx, c.DBPath, logger)
	if err != nil {
		logger.Error(ctx, "error initializing database", "error", err)
		return nil, err
	}

	sess, err := session.Load(ctx, st.Metadata())
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	remote, err := client.NewGRPCClient(c.ServerEndpointAddr, c.RequestTimeout, sess)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return newApp(c, st, sess, remote, logger), nil
}

func newApp(c *config.Config, st *store.Store, sess *session.Session, remote client.Client, logger logging.Logger) *App {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	sched := scheduler.New(scheduler.Config{
		DBWorkers:      c.DBWorkers,
		NetworkWorkers: c.NetworkWorkers,
		RetryAttempts:  c.RetryAttempts,
		RetryBase:      c.RetryBase,
		RetryMax:       c.RetryMax,
		IsTransient:    client.IsTransient,
	}, scheduler.NewMetrics(registry), logger)

	notFound := func(err error) bool { return errors.Is(err, client.ErrNotFound) }
	w := workers.New(st, remote, notFound, logger)
	orch := orchestrator.New(st, sess, sched, w, remote, logger)

	loop := render.NewLoop(logger)

	a := &App{
		config:   c,
		logger:   logger.With("module", "cli"),
		store:    st,
		session:  sess,
		remote:   remote,
		sched:    sched,
		orch:     orch,
		loop:     loop,
		layers:   newMapLayers(st, loop, logger),
		registry: registry,
		reader:   bufio.NewReader(os.Stdin),
		out:      os.Stdout,
		mode:     ModeOffline,
	}

	orch.OnScopeChange(func(ctx context.Context, scope models.Scope) {
		a.layers.m.SetScope(ctx, scope)
	})
	orch.OnOnlineChange(func(online bool) {
		if online {
			a.setMode(ModeOnline)
		} else {
			a.setMode(ModeOffline)
		}
	})
	return a
}

func (a *App) Mode() Mode {
	a.modeMu.Lock()
	defer a.modeMu.Unlock()
	return a.mode
}

func (a *App) setMode(mode Mode) {
	a.modeMu.Lock()
	defer a.modeMu.Unlock()
	if a.mode != mode {
		a.mode = mode
		a.logger.Info(context.Background(), "switched mode", "mode", string(mode))
	}
}

func (a *App) isLoggedIn() bool {
	return a.session.IsAuthenticated()
}

// close releases everything NewApp opened. The scheduler is closed first so
// no job touches the store after it is gone.
func (a *App) close() error {
	schedErr := a.sched.Close()
	a.loop.Close()
	return errors.Join(schedErr, a.remote.Close(), a.store.Close())
}
