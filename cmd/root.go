package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/deploymenttheory/go-flash-composer/internal/common/fsutil"
	"github.com/deploymenttheory/go-flash-composer/internal/config"
	"github.com/deploymenttheory/go-flash-composer/internal/logger"
)

var cfgFile string

// flagKeys maps command flags onto configuration keys. Flags missing from
// the running command are skipped.
var flagKeys = map[string]string{
	"debug":        "debug",
	"log-format":   "log_format",
	"log-file":     "log_file",
	"strict":       "build.strict",
	"format":       "build.format",
	"record-width": "build.record_width",
	"output-dir":   "build.output_dir",
	"split":        "build.split",
	"compress":     "build.compress",
	"digest":       "build.digest",
	"parallelism":  "build.parallelism",
	"json":         "data.json",
	"http":         "data.http",
}

// rootCmd represents the base CLI command
var rootCmd = &cobra.Command{
	Use:   config.AppName,
	Short: "Build flash memory blocks from layout files",
	Long: `flash-composer assembles fixed-address flash blocks from TOML, YAML or JSON
layout files, fills named fields from a JSON document or an HTTP endpoint,
appends a CRC and writes the result as Intel HEX or Motorola S-Record.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, err := fsutil.ExpandTilde(cfgFile)
		if err != nil {
			return err
		}
		if err := config.Initialize(path); err != nil {
			return err
		}

		// CLI flags override config settings
		v := config.Viper()
		for name, key := range flagKeys {
			if flag := cmd.Flags().Lookup(name); flag != nil {
				if err := v.BindPFlag(key, flag); err != nil {
					return err
				}
			}
		}
		if err := config.Reload(); err != nil {
			return err
		}

		quiet, _ := cmd.Flags().GetBool("quiet")
		return logger.InitLogger(logger.LoggerConfig{
			Debug:     config.Instance.Debug,
			LogFormat: config.Instance.LogFormat,
			LogFile:   config.Instance.LogFile,
			Quiet:     quiet,
		})
	},
}

// Execute runs the root command and prints every error it returns.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		logger.LogDebug("Command execution failed", map[string]interface{}{"error": err.Error()})
		for _, e := range multierr.Errors(err) {
			fmt.Fprintf(os.Stderr, "error: %v\n", e)
		}
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is search in standard locations)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("log-format", "human", "Log format: json or human")
	rootCmd.PersistentFlags().String("log-file", "", "Also write logs to this file")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Suppress all output except errors")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(versionCmd)
}
