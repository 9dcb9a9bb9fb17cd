// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the harmonizer CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/record-harmonizer/internal/logging"
	"github.com/pdiddy/record-harmonizer/internal/secrets"
	"github.com/pdiddy/record-harmonizer/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// cfg and logger are populated before any subcommand runs.
var (
	cfg    types.Config
	logger = zap.NewNop()
)

// envKeys are the settings that can be overridden with HARMONIZER_* variables.
var envKeys = []string{
	"pipeline.policy", "pipeline.run_timeout", "pipeline.finalizer_timeout",
	"collaborators.timeout", "collaborators.retries", "collaborators.backoff",
	"ingest.pdf_image", "ingest.image_ocr_image",
	"ingest.s3_region", "ingest.s3_endpoint", "ingest.s3_access_key", "ingest.s3_secret_key",
	"structure.backend", "structure.model", "structure.api_key",
	"narrative.backend", "narrative.model", "narrative.api_key",
	"store.dir", "store.cache", "store.archive",
	"log.level", "log.format",
	"batch.concurrency",
}

var rootCmd = &cobra.Command{
	Use:   "harmonizer",
	Short: "Harmonize a patient's medical documents into one summary report",
	Long: `harmonizer reads lab reports, clinician notes, and scans for one patient,
standardizes them into structured records, places them on a timeline,
flags conflicting medications and unexplained lab results, and writes a
plain-language summary report.

The pipeline runs fully offline by default. Set structure.backend and
narrative.backend to "claude" to use the Claude API instead of the built-in
rules and templates.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		l, err := logging.New(c.Log)
		if err != nil {
			return err
		}

		secretsDir, _ := cmd.Flags().GetString("secrets-dir")
		s, err := secrets.Load(secretsDir, l)
		if err != nil {
			return err
		}
		s.Apply(&c)
		if len(s) > 0 {
			l.Debug("secrets loaded", zap.Int("count", len(s)))
		}

		cfg, logger = c, l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Flag defaults mirror DefaultConfig: viper falls back to a bound
	// flag's default when no other source sets the key.
	def := types.DefaultConfig()
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./harmonizer.yaml or ~/.config/harmonizer/config.yaml)")
	pf.String("secrets-dir", ".secrets", "directory of credential files")
	pf.String("log-level", def.Log.Level, "log level: debug, info, warn, error")
	pf.String("log-format", def.Log.Format, "log format: console or json")
	pf.String("store-dir", def.Store.Dir, "directory holding harmonizer.db")
	pf.Bool("cache", def.Store.Cache, "cache collaborator responses in the store")
	pf.Bool("archive", def.Store.Archive, "archive every run in the store")

	bindFlag("log.level", pf.Lookup("log-level"))
	bindFlag("log.format", pf.Lookup("log-format"))
	bindFlag("store.dir", pf.Lookup("store-dir"))
	bindFlag("store.cache", pf.Lookup("cache"))
	bindFlag("store.archive", pf.Lookup("archive"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("harmonizer")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "harmonizer"))
		}
	}

	viper.SetEnvPrefix("HARMONIZER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	for _, k := range envKeys {
		_ = viper.BindEnv(k)
	}

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig overlays the config file, environment, and bound flags on
// the defaults.
func loadConfig() (types.Config, error) {
	c := types.DefaultConfig()
	if err := viper.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("reading configuration: %w", err)
	}
	return c, nil
}

func bindFlag(key string, f *pflag.Flag) {
	if err := viper.BindPFlag(key, f); err != nil {
		panic(fmt.Sprintf("binding flag %s: %v", f.Name, err))
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
