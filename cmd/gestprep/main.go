// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command gestprep runs the stock management backend and its frontend
// gateway.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ManuGH/gestprep/internal/config"
	xglog "github.com/ManuGH/gestprep/internal/log"
	"github.com/ManuGH/gestprep/internal/version"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "gestprep",
	Short: "Spare-parts stock management backend",
	Long: `gestprep serves the inventory API (sites, units, equipment, articles,
stock movements, documents and accounts) over HTTPS, and a gateway that
forwards frontend requests to it through an ordered rewrite table.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.String())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("GESTPREP_CONFIG"), "path to config file (YAML)")
	rootCmd.AddCommand(serveCmd, gatewayCmd, seedCmd, gencertCmd, dbCmd, versionCmd)
}

// loadConfig resolves the configuration and configures the global logger
// from it.
func loadConfig() (config.AppConfig, *config.Loader, error) {
	loader := config.NewLoader(configPath, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		return config.AppConfig{}, nil, err
	}
	xglog.Configure(xglog.Config{Level: cfg.LogLevel, Version: version.Version})
	return cfg, loader, nil
}

// dataPath resolves a relative path against the data directory.
func dataPath(cfg config.AppConfig, p string) string {
	if p == "" || filepath.IsAbs(p) || cfg.DataDir == "" {
		return p
	}
	return filepath.Join(cfg.DataDir, p)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
