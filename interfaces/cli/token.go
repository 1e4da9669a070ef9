package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"echotree/infrastructure/configuration"
	"echotree/infrastructure/utils"
)

type TokenOptions struct {
	*RootOptions
	Subject string
	TTL     time.Duration
	Secret  string
}

// NewTokenCommand mints a bearer token for the API. Each token carries its own session id.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TokenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Generate an API bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := opts.Secret
			if secret == "" {
				secret = configuration.C.App.SecretKey
			}
			tok, err := issueToken(opts.Subject, secret, opts.TTL, utils.GetCurrentTime())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}

	cmd.Flags().StringVar(&opts.Subject, "sub", "operator", "token subject (user id)")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", 30*24*time.Hour, "token lifetime; 0 for no expiry")
	cmd.Flags().StringVar(&opts.Secret, "secret", "", "signing key (defaults to SECRET_KEY)")
	return cmd
}

func issueToken(subject, secret string, ttl time.Duration, now time.Time) (string, error) {
	if secret == "" {
		return "", errors.New("no signing key: set SECRET_KEY or pass --secret")
	}
	if subject == "" {
		return "", errors.New("subject must not be empty")
	}
	claims := utils.SessionClaims(subject, uuid.NewString(), now, ttl)
	return utils.GenerateToken(claims, secret)
}
