// Package cli implements the crimecastctl operator commands.
package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/crimecast/pkg/logger"
)

const (
	defaultServer  = "http://localhost:8000"
	defaultTimeout = 10 * time.Second
)

// Version info (set from main)
var Version = "dev"

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	server  string
	timeout time.Duration
	jsonOut bool
	verbose bool
}

// NewRootCommand builds the crimecastctl command tree.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "crimecastctl",
		Short: "Operate the crimecast prediction service",
		Long: `crimecastctl predicts yearly crime counts for Pernambuco municipalities,
either locally from a model artifact or through a running crimecast server,
and inspects, reloads and load-tests that server.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level := "warn"
			if opts.verbose {
				level = "debug"
			}
			return logger.Init(logger.WithLevel(level), logger.WithOutput(cmd.ErrOrStderr()))
		},
	}

	root.PersistentFlags().StringVarP(&opts.server, "server", "s", defaultServer, "crimecast server base URL")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", defaultTimeout, "HTTP request timeout")
	root.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "output in JSON format")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "verbose output")

	root.AddCommand(
		newPredictCmd(opts),
		newInspectCmd(opts),
		newHealthCmd(opts),
		newReloadCmd(opts),
		newMunicipalitiesCmd(opts),
		newLoadtestCmd(opts),
	)
	return root
}

// Execute runs the root command
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
