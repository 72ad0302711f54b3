// Package app wires the service components together: document store,
// Mountain Project client, importer, job queue, drop-directory watcher,
// and the HTTP surface.
package app

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"ticklog/internal/config"
	"ticklog/internal/httpapi"
	"ticklog/internal/importer"
	"ticklog/internal/metrics"
	"ticklog/internal/mpapi"
	"ticklog/internal/queue"
	"ticklog/internal/store"
	"ticklog/internal/watch"
)

type App struct {
	cfg      config.Config
	store    *store.Store
	metrics  *metrics.Metrics
	importer *importer.Importer
	queue    *queue.Queue
	watcher  *watch.Watcher
	mux      *http.ServeMux
}

func New(cfg config.Config) (*App, error) {
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	m := metrics.New()
	im := importer.New(st, mpapi.NewClient(cfg.APIBaseURL), m, cfg.SnapshotBatchSize)
	q := queue.New(cfg.JobQueueSize, cfg.WorkerCount, time.Duration(cfg.JobTimeoutSec)*time.Second)

	a := &App{cfg: cfg, store: st, metrics: m, importer: im, queue: q}
	if cfg.EnableWatcher {
		a.watcher = watch.New(cfg.DropDir, a.enqueueSnapshot)
	}
	a.mux = http.NewServeMux()
	httpapi.NewRouter(cfg, st, im, q, m).Register(a.mux)
	return a, nil
}

// enqueueSnapshot hands a dropped snapshot file to the job queue. The
// file is renamed out of the drop directory only after a successful
// import so failures stay visible on disk.
func (a *App) enqueueSnapshot(path string) bool {
	work := func(ctx context.Context) error {
		if _, err := a.importer.ImportSnapshot(ctx, path); err != nil {
			return err
		}
		return watch.MarkDone(path)
	}
	return a.queue.Enqueue(queue.Job{
		ID:       uuid.NewString(),
		Source:   "watch",
		Work:     work,
		OnFinish: a.metrics.RecordJobCompletion,
	})
}

// Run starts the workers, the watcher, and the HTTP server, and blocks
// until ctx is done or the server fails.
func (a *App) Run(ctx context.Context) error {
	a.queue.Start(ctx)
	if a.watcher != nil {
		if err := a.watcher.Start(ctx); err != nil {
			return err
		}
	}
	srv := &http.Server{Addr: a.cfg.HTTPPort, Handler: a.mux}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()
	log.Printf("http listening on %s", a.cfg.HTTPPort)
	err := srv.ListenAndServe()
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.queue.Stop(stopCtx)
	return err
}

func (a *App) Close() error { return a.store.Close() }

func (a *App) Store() *store.Store          { return a.store }
func (a *App) Importer() *importer.Importer { return a.importer }
func (a *App) Mux() *http.ServeMux          { return a.mux }
