package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/andreasstove999/ecommerce-system/services/inventory-tracker-go/internal/config"
	"github.com/andreasstove999/ecommerce-system/services/inventory-tracker-go/internal/db"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "inventory-tracker",
		Short:        "Product and stock-location inventory HTTP service",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap(configPath)
			if err != nil {
				return err
			}
			if err := serve(cmd.Context(), cfg, logger); err != nil {
				logger.WithError(err).Error("server stopped")
				return err
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CONFIG_FILE"), "path to a YAML config file")

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create the inventory schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap(configPath)
			if err != nil {
				return err
			}
			return migrateSchema(cfg, logger)
		},
	})

	return root
}

func bootstrap(configPath string) (config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, newLogger(cfg), nil
}

func newLogger(cfg config.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	// validated by config.Load
	level, _ := logrus.ParseLevel(cfg.LogLevel)
	logger.SetLevel(level)
	return logger
}

func migrateSchema(cfg config.Config, logger *logrus.Logger) error {
	if cfg.Driver() == config.DriverPostgres {
		return db.RunMigrations(cfg.DatabaseDSN, logger)
	}

	gdb, err := db.OpenSQLite(cfg.SQLitePath(), true, logger)
	if err != nil {
		return err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
