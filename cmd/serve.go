package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/andreasstove999/ecommerce-system/services/inventory-tracker-go/internal/config"
	"github.com/andreasstove999/ecommerce-system/services/inventory-tracker-go/internal/db"
	"github.com/andreasstove999/ecommerce-system/services/inventory-tracker-go/internal/events"
	httpapi "github.com/andreasstove999/ecommerce-system/services/inventory-tracker-go/internal/http"
	"github.com/andreasstove999/ecommerce-system/services/inventory-tracker-go/internal/inventory"
	"github.com/andreasstove999/ecommerce-system/services/inventory-tracker-go/internal/sequence"
)

const amqpDialTimeout = 10 * time.Second

type store struct {
	repo inventory.Repository
	// nil on SQLite, which has no event_sequence table
	seq   events.Sequencer
	close func()
}

func openStore(ctx context.Context, cfg config.Config, logger logrus.FieldLogger) (store, error) {
	if cfg.Driver() == config.DriverPostgres {
		pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
		if err != nil {
			return store{}, fmt.Errorf("db connect: %w", err)
		}
		if cfg.RunMigrations {
			if err := db.RunMigrations(cfg.DatabaseDSN, logger); err != nil {
				pool.Close()
				return store{}, fmt.Errorf("db migrate: %w", err)
			}
		}
		return store{
			repo:  inventory.NewPostgresRepository(pool),
			seq:   sequence.NewCounter(pool),
			close: pool.Close,
		}, nil
	}

	gdb, err := db.OpenSQLite(cfg.SQLitePath(), cfg.RunMigrations, logger)
	if err != nil {
		return store{}, err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return store{}, err
	}
	return store{
		repo:  inventory.NewGormRepository(gdb),
		close: func() { _ = sqlDB.Close() },
	}, nil
}

func serve(ctx context.Context, cfg config.Config, logger *logrus.Logger) error {
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()
	logger.WithField("driver", cfg.Driver()).Info("store opened")

	var pub inventory.EventPublisher
	if cfg.PublishEvents {
		conn, err := events.Dial(cfg.AMQPURL, amqpDialTimeout)
		if err != nil {
			return fmt.Errorf("amqp connect: %w", err)
		}
		defer conn.Close()

		p, err := events.NewPublisher(conn, events.PublisherOptions{Sequencer: st.seq})
		if err != nil {
			return fmt.Errorf("amqp publisher: %w", err)
		}
		defer p.Close()
		pub = p
		logger.WithField("exchange", events.EventsExchange).Info("publishing domain events")
	}

	svc := inventory.NewService(st.repo, pub, logger)
	h := httpapi.NewHandler(svc, logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(h, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", cfg.HTTPAddr).Info("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
