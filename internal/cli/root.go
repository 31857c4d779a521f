// Package cli implements the uploader command line client.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/labstack/gommon/log"
	"github.com/spf13/cobra"

	"github.com/filedrop/uploader/internal/config"
	"github.com/filedrop/uploader/internal/logging"
)

// app holds state shared by every subcommand of one invocation
type app struct {
	version    string
	configPath string
	logLevel   string

	cfg *config.AppConfig
	log *log.Logger
}

// NewRootCmd builds the uploader command tree.
func NewRootCmd(version string) *cobra.Command {
	a := &app{version: version}

	rootCmd := &cobra.Command{
		Use:           "uploader",
		Short:         "Validate and upload files to a receiver",
		Long:          "Command line client that validates files and uploads them with the standard, chunked or websocket strategy",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", defaultConfigPath(),
		"Path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "",
		"Log level (debug, info, warn, error, off); overrides the config file")

	rootCmd.AddCommand(newSendCmd(a))
	rootCmd.AddCommand(newListCmd(a))
	rootCmd.AddCommand(newRemoveCmd(a))
	rootCmd.AddCommand(newVersionCmd(a))

	return rootCmd
}

// Execute runs the uploader command with os.Args.
func Execute(version string) error {
	return NewRootCmd(version).Execute()
}

func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level := cfg.Logging.Level
	if a.logLevel != "" {
		if _, err := logging.ParseLevel(a.logLevel); err != nil {
			return err
		}
		level = a.logLevel
	}
	a.log = logging.NewWithOutput("uploader", level, cmd.ErrOrStderr())
	return nil
}

func defaultConfigPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "uploader", "config.yaml")
	}
	return "uploader.yaml"
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the client version",
		Args:  cobra.NoArgs,
		// Skip config loading.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "uploader %s\n", a.version)
			return nil
		},
	}
}
