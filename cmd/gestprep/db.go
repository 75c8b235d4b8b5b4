// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	xglog "github.com/ManuGH/gestprep/internal/log"
	"github.com/ManuGH/gestprep/internal/persistence/sqlite"
)

var verifyMode string

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database maintenance",
}

var dbVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the database for corruption",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		if verifyMode != "quick" && verifyMode != "full" {
			return fmt.Errorf("invalid --mode %q (want quick or full)", verifyMode)
		}
		path := dataPath(cfg, cfg.Database.Path)
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("database: %w", err)
		}

		problems, err := sqlite.VerifyIntegrity(path, verifyMode)
		if err != nil {
			return err
		}
		logger := xglog.WithComponent("db")
		if len(problems) > 0 {
			for _, p := range problems {
				fmt.Fprintln(cmd.ErrOrStderr(), p)
			}
			logger.Error().Str("event", "db.corrupt").Str("path", path).Int("problems", len(problems)).Msg("integrity check failed")
			return errors.New("database integrity check failed")
		}
		logger.Info().Str("event", "db.verified").Str("path", path).Str("mode", verifyMode).Msg("database is healthy")
		fmt.Fprintln(cmd.OutOrStdout(), "ok")
		return nil
	},
}

func init() {
	dbVerifyCmd.Flags().StringVar(&verifyMode, "mode", "quick", "check mode: quick or full")
	dbCmd.AddCommand(dbVerifyCmd)
}
