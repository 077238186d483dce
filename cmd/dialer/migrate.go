package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"outbound-dialer/internal/config"
	"outbound-dialer/pkg/logger"
	"outbound-dialer/pkg/utils"

	"github.com/spf13/cobra"
)

//go:embed schema.sql
var schemaSQL string

var migratePrint bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	Long:  "Creates the campaigns, leads, dialer_calls and audit_events tables if they do not exist.",
	RunE:  runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&migratePrint, "print", false, "print the schema instead of applying it")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if migratePrint {
		_, err := fmt.Fprint(cmd.OutOrStdout(), schemaSQL)
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.App.Env, cfg.App.LogLevel)
	slog.SetDefault(log)

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	db, err := utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{MaxOpenConns: 1})
	if err != nil {
		return fmt.Errorf("postgres init: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	log.Info("schema applied", "db", cfg.DB.Name)
	return nil
}
