package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"echotree/infrastructure/configuration"
	"echotree/infrastructure/crypto"
)

type EncryptOptions struct {
	*RootOptions
	GenerateKey bool
}

// NewEncryptCommand seals a credential with ECHOTREE_SECRET_KEY, or prints a fresh key.
func NewEncryptCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EncryptOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "encrypt [plaintext]",
		Short: "Encrypt a platform credential for storage",
		Long: `Encrypt a credential with ECHOTREE_SECRET_KEY. The plaintext is read
from the argument, or from the first line of stdin when no argument is given.

Use --generate-key to print a new random key instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if opts.GenerateKey {
				key, err := crypto.GenerateKey()
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, key)
				return err
			}

			codec, err := crypto.NewCodec(configuration.C.Crypto.SecretKey)
			if err != nil {
				return fmt.Errorf("ECHOTREE_SECRET_KEY: %w", err)
			}
			plaintext, err := readPlaintext(cmd, args)
			if err != nil {
				return err
			}
			blob, err := codec.Encrypt(plaintext)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(out, blob)
			return err
		},
	}

	cmd.Flags().BoolVar(&opts.GenerateKey, "generate-key", false, "print a new base64 secret key and exit")
	return cmd
}

func readPlaintext(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		return "", errors.New("nothing to encrypt")
	}
	return line, nil
}
