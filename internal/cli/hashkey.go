package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"parts-tracker/pkg/utils"
)

// NewHashKeyCommand prints a bcrypt hash suitable for API_KEY_HASH.
func NewHashKeyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "hash-key [key]",
		Short: "Hash an API key for API_KEY_HASH",
		Long: `Hash an API key with bcrypt so the server can be configured with
API_KEY_HASH instead of the plain key. Reads the key from stdin when no
argument is given.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			var key string
			if len(args) == 1 {
				key = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return out.Fail(err)
				}
				key = line
			}
			key = strings.TrimSpace(key)
			if key == "" {
				return out.Fail(WrapExitError(ExitCommandError, "empty key", nil))
			}

			hash, err := utils.HashKey(key)
			if err != nil {
				return out.Fail(err)
			}
			return out.Success(map[string]string{"hash": hash}, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, hash)
				return err
			})
		},
	}
}
