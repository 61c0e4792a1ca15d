package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Lowy-zhangtian/-audit-tool/internal/model"
)

// Version is set at build time with -ldflags
var Version = "v0.3.0"

var (
	cfgFile   string
	logFormat string
	logLevel  string
	verbose   bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "auditreview",
	Short: "auditreview - compliance review of financial reports and vouchers",
	Long: `auditreview merges structured audit exports with fields extracted from
attached documents, checks every report against a configurable rule set and,
when a language model is configured, adds a narrative risk assessment.

Each report gets one merged verdict: the rules it failed plus the model's
assessment, joined on report id.

Findings are review aids. They do not replace an auditor's judgement.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "auditreview %s\n", Version)
	},
}

// envKeys are the config keys that can be set through AUDITREVIEW_* variables,
// e.g. AUDITREVIEW_LLM_PROVIDER=openai
var envKeys = []string{
	"llm.provider", "llm.model", "llm.api_key", "llm.base_url", "llm.timeout",
	"llm.requests_per_second", "llm.http_proxy", "llm.https_proxy", "llm.no_proxy",
	"analysis.enabled", "analysis.concurrency", "analysis.knowledge", "analysis.template",
	"cache.enabled", "cache.dir",
	"export.bom", "export.delimiter",
	"logging.format", "logging.level",
	"nats.url", "nats.subject",
	"metrics.textfile",
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.auditreview/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Bind flags to viper
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		viper.AddConfigPath(filepath.Join(home, ".auditreview"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// AUDITREVIEW_LLM_PROVIDER -> llm.provider
	viper.SetEnvPrefix("AUDITREVIEW")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	for _, key := range envKeys {
		_ = viper.BindEnv(key)
	}

	err := viper.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	switch {
	case err == nil:
		if verbose {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
		}
	case !errors.As(err, &notFound):
		fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
	}
}

// loadConfig layers the config file, environment and bound flags over the defaults
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}
