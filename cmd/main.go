package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/KAsare1/telecare-server/cmd/api"
	"github.com/KAsare1/telecare-server/cmd/config"
	"github.com/KAsare1/telecare-server/cmd/utils"
	"github.com/KAsare1/telecare-server/db"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "telecare-server",
		Short:        "Appointment scheduling and call signaling server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(clearCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update database tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			return withDatabase(cfg, logger, func(conn *gorm.DB) error {
				return db.Migrate(conn, logger)
			})
		},
	}
}

func clearCmd() *cobra.Command {
	var (
		yes    bool
		tables string
	)
	cmd := &cobra.Command{
		Use:   "clear-db",
		Short: "Drop database tables",
		Long:  "Drop the named tables, or every table when --tables is empty. Known tables: " + strings.Join(db.TableNames(), ", "),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}

			if !yes {
				fmt.Fprint(cmd.OutOrStdout(), "Are you sure you want to clear the database? (yes/no): ")
				answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if strings.TrimSpace(answer) != "yes" {
					logger.Info().Msg("database clearing cancelled")
					return nil
				}
			}

			return withDatabase(cfg, logger, func(conn *gorm.DB) error {
				return db.Clear(conn, splitTableNames(tables), logger)
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	cmd.Flags().StringVar(&tables, "tables", "", "comma separated table names")
	return cmd
}

func setup() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("load config: %w", err)
	}
	return cfg, utils.NewLogger(cfg.LogLevel, cfg.IsDev()), nil
}

func withDatabase(cfg *config.Config, logger zerolog.Logger, fn func(*gorm.DB) error) error {
	conn, err := db.NewPSQLStorage(cfg, logger)
	if err != nil {
		return fmt.Errorf("database initialization: %w", err)
	}
	defer func() {
		if err := db.Close(conn); err != nil {
			logger.Warn().Err(err).Msg("closing database")
		}
		logger.Info().Msg("database connection closed")
	}()
	return fn(conn)
}

func runServer() error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Store == config.StoreMemory {
		return api.NewAPIServer(cfg, nil, logger).Run(ctx)
	}

	return withDatabase(cfg, logger, func(conn *gorm.DB) error {
		logger.Info().Msg("connected to the database")
		if cfg.IsDev() {
			if err := db.Migrate(conn, logger); err != nil {
				return err
			}
		}
		return api.NewAPIServer(cfg, conn, logger).Run(ctx)
	})
}

func splitTableNames(tableNames string) []string {
	var out []string
	for _, name := range strings.Split(tableNames, ",") {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}
