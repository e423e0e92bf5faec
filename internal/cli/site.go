package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/infobase/internal/config"
)

// CreateOptions holds flags for the create command.
type CreateOptions struct {
	*RootOptions
	AdminPassword string
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CreateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create <site>",
		Short: "Create and bootstrap a site",
		Long: `Create a new site and seed it with the baseline types, the admin and
useradmin accounts and their usergroups.

Exit codes:
  0 - Site created
  1 - Site already exists
  2 - Command error

Example:
  infobase create wiki --data-dir ./data --admin-password s3cret`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.AdminPassword, "admin-password", "", "password of the seeded accounts (overrides config)")
	return cmd
}

func runCreate(opts *CreateOptions, name string, cmd *cobra.Command) error {
	e, err := openEnv(opts.RootOptions, cmd, func(cfg *config.Config) {
		if opts.AdminPassword != "" {
			cfg.AdminPassword = opts.AdminPassword
		}
	})
	if err != nil {
		return err
	}
	defer e.close()

	site, err := e.ib.Create(cmd.Context(), name)
	if err != nil {
		return e.out.Fail("failed to create site", err)
	}

	data := map[string]any{"site": site.Name(), "created": true}
	return e.out.Success(data, func(w io.Writer) {
		fmt.Fprintf(w, "✓ created site %s\n", site.Name())
	})
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <site>",
		Short: "Delete a site and its storage",
		Long: `Delete a site. Deleting a site that does not exist is not an error;
the output reports whether it existed.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer e.close()

			existed, err := e.ib.Delete(cmd.Context(), args[0])
			if err != nil {
				return e.out.Fail("failed to delete site", err)
			}

			data := map[string]any{"site": args[0], "existed": existed}
			return e.out.Success(data, func(w io.Writer) {
				if existed {
					fmt.Fprintf(w, "✓ deleted site %s\n", args[0])
				} else {
					fmt.Fprintf(w, "site %s did not exist\n", args[0])
				}
			})
		},
	}
}

// GetOptions holds flags for the get command.
type GetOptions struct {
	*RootOptions
	Revision int
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "get <site> <key>",
		Short: "Print the document of a thing",
		Example: `  infobase get wiki /type/page
  infobase get wiki /k1 --revision 2 --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(opts.RootOptions, cmd)
			if err != nil {
				return err
			}
			defer e.close()

			site, err := e.site(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			t, err := site.Get(cmd.Context(), args[1], opts.Revision)
			if err != nil {
				return e.out.Fail("failed to read thing", err)
			}
			if t == nil {
				msg := fmt.Sprintf("thing %s not found", args[1])
				if outErr := e.out.Error("NOT_FOUND", msg, nil); outErr != nil {
					return outErr
				}
				return NewExitError(ExitFailure, msg)
			}

			doc := t.Document()
			return e.out.Success(doc, func(w io.Writer) {
				printJSON(w, doc)
			})
		},
	}

	cmd.Flags().IntVar(&opts.Revision, "revision", 0, "revision to read (0 = latest)")
	return cmd
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
