package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Atharva-Kanherkar/ropy/internal/config"
	"github.com/Atharva-Kanherkar/ropy/internal/printer"
)

var (
	version string
	commit  string
	date    string

	configPath string
	socketPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ropy",
	Short: "ropy - clipboard history",
	Long: `ropy keeps a bounded history of everything you copy (text, images and
file lists) and lets you put any past entry back on the clipboard.

Run "ropy daemon" in your session; the other commands talk to it over a
Unix socket.`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	// Silence Cobra's default error and usage printing
	// We print formatted colored errors directly in the printer package
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/ropy/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "", "daemon socket path (overrides config)")
}

// loadConfig reads the config file named by --config, or the default locations.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, printer.Error(
			"Invalid configuration",
			err.Error(),
			[]string{"Fix the YAML in the config file, or pass --config with another file."},
		)
	}

	if socketPath != "" {
		cfg.SocketPath = socketPath
	}
	return cfg, nil
}
