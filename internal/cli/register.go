package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/infobase/internal/thing"
)

// RegisterOptions holds flags for the register command.
type RegisterOptions struct {
	*RootOptions
	Password    string
	DisplayName string
}

// NewRegisterCommand creates the register command.
func NewRegisterCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RegisterOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "register <site> <username> <email>",
		Short: "Register a user account",
		Long: `Register a user account on a site. The user's thing is created at
/user/<username> with the account's credentials stored alongside.

Exit codes:
  0 - Account registered
  1 - Rejected (username or email taken, invalid username)
  2 - Command error`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Password == "" {
				return NewExitError(ExitCommandError, "--password is required")
			}

			e, err := openEnv(opts.RootOptions, cmd)
			if err != nil {
				return err
			}
			defer e.close()

			site, err := e.site(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			var data thing.Data
			if opts.DisplayName != "" {
				data = thing.Data{"displayname": opts.DisplayName}
			}
			acct, err := site.AccountManager().Register(cmd.Context(), args[1], args[2], opts.Password, data)
			if err != nil {
				return e.out.Fail("registration failed", err)
			}

			return e.out.Success(acct, func(w io.Writer) {
				fmt.Fprintf(w, "✓ registered %s\n", acct.Key)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Password, "password", "", "account password (required)")
	cmd.Flags().StringVar(&opts.DisplayName, "display-name", "", "display name of the user")
	return cmd
}
