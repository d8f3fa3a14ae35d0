package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coinwatch/config"
	"coinwatch/internal/monitor/credentials"
	"coinwatch/internal/monitor/poller"
	"coinwatch/internal/monitor/recorder"
	"coinwatch/internal/monitor/snapshotstore"
	"coinwatch/internal/monitor/trade"
	"coinwatch/internal/monitor/view"
	"coinwatch/internal/relay"
	"coinwatch/internal/tui"
	"coinwatch/logger"
	"coinwatch/pkg/coinmonitor"
	"coinwatch/pkg/storage/kv"
	"coinwatch/pkg/storage/postgres"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	// viper config
	cfg := config.Load()
	if cfg.UI.Enabled {
		// the dashboard owns the terminal, logs go to the file only
		cfg.Log.Quiet = true
	}

	// zap logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}

	if err := run(cfg, log); err != nil {
		log.Error("dashboard failed", zap.Error(err))
		_ = log.Sync()
		fmt.Fprintln(os.Stderr, "dashboard failed:", err)
		os.Exit(1)
	}
	_ = log.Sync()
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pg *postgres.PostgresClient
	if cfg.Storage.Driver == "postgres" || cfg.Storage.RecordDB {
		client, err := postgres.InitializeAndMigrate(cfg.Postgres, cfg.Log.Environment, cfg.Storage.CreateDB)
		if err != nil {
			return errors.Wrap(err, "postgres")
		}
		defer client.Close()
		pg = client
	}

	prefs, closePrefs, err := openPreferences(cfg.Storage, pg)
	if err != nil {
		return err
	}
	defer closePrefs()

	controller := view.NewController(prefs, log.Named("view"))
	if err := controller.Restore(); err != nil {
		log.Warn("starting without a saved selection", zap.Error(err))
	}
	creds := credentials.NewStore(prefs)

	client := coinmonitor.NewRESTClient(cfg.Backend.BaseURL, cfg.Backend.Timeout)
	composer := trade.NewComposer(client, creds, log.Named("trade"))
	store := snapshotstore.New()
	p := poller.New(client, store, controller.Selected, poller.Options{Interval: cfg.Poller.Interval}, log.Named("poller"))
	defer p.Stop()

	g, gctx := errgroup.WithContext(ctx)
	var sinks []func(*snapshotstore.State)

	var rec *recorder.Recorder
	if cfg.Storage.RecordDB {
		rec = recorder.New(pg, uuid.NewString(), 0, log.Named("recorder"))
		rec.StartWorker(gctx)
		log.Info("recording ticks", zap.String("run_id", rec.RunID()))
		sinks = append(sinks, rec.Record)
	}

	var rel *relay.Server
	if cfg.Relay.Enabled {
		rel = relay.New(log.Named("relay"))
		g.Go(func() error {
			return rel.ListenAndServe(gctx, cfg.Relay.Addr)
		})
	}

	if cfg.UI.Enabled {
		deps := tui.Deps{
			Controller:  controller,
			Store:       store,
			Refresher:   p,
			Composer:    composer,
			Admin:       client,
			Credentials: creds,
			Logger:      log.Named("tui"),
		}
		if rel != nil {
			deps.OnProjection = publisher(rel, log)
		}
		program := tea.NewProgram(tui.New(deps), tea.WithAltScreen(), tea.WithContext(gctx))
		sinks = append(sinks, tui.StateCallback(program.Send))

		g.Go(func() error {
			_, err := program.Run()
			// leaving the dashboard shuts everything down
			stop()
			if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return errors.Wrap(err, "dashboard")
			}
			return nil
		})
	} else {
		log.Info("running headless", zap.Bool("relay", rel != nil), zap.Bool("record_db", rec != nil))
		if rel != nil {
			publish := publisher(rel, log)
			sinks = append(sinks, func(st *snapshotstore.State) {
				publish(controller.Project(st.Instruments))
			})
		}
		g.Go(func() error {
			<-gctx.Done()
			return nil
		})
	}

	if err := p.Start(gctx, fanOut(sinks)); err != nil {
		return errors.Wrap(err, "start poller")
	}
	log.Info("polling started",
		zap.String("backend", cfg.Backend.BaseURL),
		zap.Duration("interval", cfg.Poller.Interval),
		zap.String("selected", controller.Selected()),
	)

	err = g.Wait()
	p.Stop()
	if rec != nil {
		rec.Wait()
	}
	log.Info("shutdown complete")
	return err
}

// openPreferences returns the store backing the selection and credentials.
func openPreferences(cfg config.StorageConfig, pg *postgres.PostgresClient) (kv.Store, func(), error) {
	switch cfg.Driver {
	case "badger", "":
		db, err := kv.OpenBadger(cfg.Path)
		if err != nil {
			return nil, nil, errors.Wrap(err, "open badger")
		}
		return db, func() { _ = db.Close() }, nil
	case "postgres":
		return pg.Preferences(2 * time.Second), func() {}, nil
	case "memory":
		return kv.NewMemoryStore(), func() {}, nil
	default:
		return nil, nil, errors.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func publisher(rel *relay.Server, log *zap.Logger) func(view.Projection) {
	return func(proj view.Projection) {
		if err := rel.Publish(proj); err != nil {
			log.Warn("relay publish failed", zap.Error(err))
		}
	}
}

func fanOut(sinks []func(*snapshotstore.State)) func(*snapshotstore.State) {
	return func(st *snapshotstore.State) {
		for _, sink := range sinks {
			sink(st)
		}
	}
}
