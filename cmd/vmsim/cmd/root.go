// Package cmd provides the command-line interface of vmsim.
package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/tebeka/atexit"
)

// EnvPrefix prefixes the environment variables that provide flag defaults.
// Flag --swap-file is read from VMSIM_SWAP_FILE.
const EnvPrefix = "VMSIM_"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "vmsim",
	Short: "vmsim exercises a demand-paged virtual memory manager.",
	Long: `vmsim runs simulated user processes on a machine with little ` +
		`physical memory, so that pages are faulted in, evicted, swapped ` +
		`and written back. Flags can also be set with VMSIM_* environment ` +
		`variables or in a .env file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		envFile, _ := cmd.Flags().GetString("env-file")
		if err := loadEnv(envFile); err != nil {
			return err
		}

		if err := applyEnv(cmd.Flags()); err != nil {
			return err
		}

		level, _ := cmd.Flags().GetString("log-level")
		return setUpLogger(level)
	},
}

func init() {
	rootCmd.PersistentFlags().String("env-file", ".env",
		"File to load VMSIM_* variables from.")
	rootCmd.PersistentFlags().String("log-level", "info",
		"Log level: debug, info, warn or error.")
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}

func loadEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return err
}

// applyEnv sets every flag that was not given on the command line from its
// environment variable, if there is one.
func applyEnv(flags *pflag.FlagSet) error {
	var err error

	flags.VisitAll(func(f *pflag.Flag) {
		if err != nil || f.Changed {
			return
		}

		name := EnvPrefix +
			strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))

		value, found := os.LookupEnv(name)
		if !found {
			return
		}

		if setErr := flags.Set(f.Name, value); setErr != nil {
			err = fmt.Errorf("%s: %w", name, setErr)
		}
	})

	return err
}

func setUpLogger(level string) error {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("log level %q: %w", level, err)
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: l,
	})
	slog.SetDefault(slog.New(handler))

	return nil
}
