package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"echotree/infrastructure/configuration"
	"echotree/infrastructure/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	EnvFiles []string
}

// NewRootCommand creates the echotree command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "echotree",
		Short: "EchoTree - schedule and cross-post articles to social platforms",
		Long: `EchoTree stores scheduled posts and delivers them to the configured
Twitter/X, Mastodon, Bluesky and LinkedIn accounts.

"serve" runs the HTTP API and, when enabled, the in-process sweep scheduler.
"publish" runs a single sweep and is meant to be driven by an external cron.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// OS env still takes precedence over the files.
			configuration.LoadEnvFromFile(opts.EnvFiles...)
			configuration.Reload()
			if opts.Verbose {
				logger.SetLevel(logrus.DebugLevel)
			}
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringSliceVar(&opts.EnvFiles, "env-file", []string{"config.env", ".env"}, "KEY=VALUE files loaded before the config is resolved")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewPublishCommand(opts))
	cmd.AddCommand(NewPublishPostCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))
	cmd.AddCommand(NewEncryptCommand(opts))

	return cmd
}

// Execute runs the root command against os.Args.
func Execute() error {
	return NewRootCommand().Execute()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
