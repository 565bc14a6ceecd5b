package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	config "benchrun/configs"
	"benchrun/pkg/bootstrap"
	"benchrun/pkg/executor"
)

var (
	outputFormat string
	artifactsDir string
	cfgFile      string

	cfg *config.Config

	// newFacade is swapped in tests.
	newFacade = func(c *config.Config) executor.Facade { return bootstrap.Facade(c) }
)

// newRootCmd builds the command tree. Parsed flag state lives on the
// returned commands, so every invocation gets a fresh tree.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "benchrun",
		Short: "Run Go benchmarks from source files, URLs or a service",
		Long: `benchrun runs benchmark functions from Go test source locally, or serves
the run API with an in-process worker and scheduler.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg = config.LoadConfig()
			if err := initConfig(cfg); err != nil {
				return err
			}
			if artifactsDir != "" {
				cfg.ArtifactsPath = artifactsDir
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.benchrun/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "table", "output format: table or json")
	rootCmd.PersistentFlags().StringVar(&artifactsDir, "artifacts", "", "artifacts directory (default from BENCHRUN_ARTIFACTS)")

	rootCmd.AddCommand(newRunCmd(), newServeCmd(), newTokenCmd())
	return rootCmd
}

// Execute runs the root command until it finishes or the process is signalled.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return newRootCmd().ExecuteContext(ctx)
}

// fileKeys maps config file keys to the environment variable that overrides
// them and the field they fill.
func fileKeys(c *config.Config) []struct {
	key, env string
	dst      *string
} {
	return []struct {
		key, env string
		dst      *string
	}{
		{"artifacts_path", "BENCHRUN_ARTIFACTS", &c.ArtifactsPath},
		{"dynamic_source", "BENCHRUN_DYNAMIC_SOURCE", &c.DynamicSource},
		{"api_port", "API_PORT", &c.APIPort},
		{"jwt_secret", "JWT_SECRET", &c.JWTSecret},
		{"jwt_issuer", "JWT_ISSUER", &c.JWTIssuer},
		{"report_dir", "REPORT_DIR", &c.ReportDir},
		{"report_bucket", "REPORT_BUCKET", &c.ReportBucket},
		{"log_level", "LOG_LEVEL", &c.LogLevel},
		{"log_encoding", "LOG_ENCODING", &c.LogEncoding},
	}
}

// initConfig reads the config file into c. Environment variables win over
// the file and flags win over both. A missing default file is not an error.
func initConfig(c *config.Config) error {
	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		v.AddConfigPath(filepath.Join(home, ".benchrun"))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}

	for _, k := range fileKeys(c) {
		if _, set := os.LookupEnv(k.env); set || !v.IsSet(k.key) {
			continue
		}
		*k.dst = v.GetString(k.key)
	}
	c.DynamicSource = strings.ToLower(c.DynamicSource)
	return nil
}

// IsJSONOutput returns true if JSON output is requested
func IsJSONOutput() bool {
	return outputFormat == "json"
}
