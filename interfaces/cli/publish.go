package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"echotree/infrastructure/configuration"
)

// NewPublishCommand runs one sweep over the due posts and prints the report.
func NewPublishCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "publish",
		Short: "Publish every scheduled post that is due",
		Long: `Run a single sweep over scheduled posts whose time has come.

Only one sweep runs at a time. When another process holds the publish lock
the report says lock_acquired=false and nothing is sent.

Example (crontab):
  * * * * * cd /srv/echotree && ./echotree publish`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := Bootstrap(cmd.Context(), configuration.C)
			if err != nil {
				return err
			}
			defer app.Close()

			report, err := app.Publish.PublishDue(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
}

// NewPublishPostCommand publishes one post regardless of its schedule.
func NewPublishPostCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "publish-post <post-id>",
		Short: "Publish a single post now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid post id %q", args[0])
			}
			app, err := Bootstrap(cmd.Context(), configuration.C)
			if err != nil {
				return err
			}
			defer app.Close()

			report, err := app.Publish.PublishPost(cmd.Context(), id)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
}
