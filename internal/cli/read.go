package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// QueryOptions holds flags for permission-sensitive reads.
type QueryOptions struct {
	*RootOptions
	As string
}

// NewThingsCommand creates the things command.
func NewThingsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "things <site> <query-json>",
		Short: "List keys matching a things query",
		Example: `  infobase things wiki '{"type": "/type/page", "limit": 10}'
  infobase things wiki '{"type": "/type/user", "sort": "-key"}'`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := parseQuery(args[1])
			if err != nil {
				return err
			}

			e, err := openEnv(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer e.close()

			site, err := e.site(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			keys, err := site.Things(cmd.Context(), q)
			if err != nil {
				return e.out.Fail("things query failed", err)
			}
			if keys == nil {
				keys = []string{}
			}
			return e.out.Success(keys, func(w io.Writer) {
				for _, k := range keys {
					fmt.Fprintln(w, k)
				}
			})
		},
	}
}

// NewVersionsCommand creates the versions command.
func NewVersionsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "versions <site> <query-json>",
		Short: "List history rows matching a versions query",
		Example: `  infobase versions wiki '{"key": "/k1"}'
  infobase versions wiki '{"author": "/user/admin", "limit": 5}'`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := parseQuery(args[1])
			if err != nil {
				return err
			}

			e, err := openEnv(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer e.close()

			site, err := e.site(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			versions, err := site.Versions(cmd.Context(), q)
			if err != nil {
				return e.out.Fail("versions query failed", err)
			}
			return e.out.Success(versions, func(w io.Writer) {
				for _, v := range versions {
					fmt.Fprintf(w, "%s@%d\t%s\t%s\t%s\n", v.Key, v.Revision,
						v.Created.UTC().Format("2006-01-02T15:04:05Z"), v.Author, v.Comment)
				}
			})
		},
	}
}

// NewPermissionsCommand creates the permissions command.
func NewPermissionsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "permissions <site> <key>",
		Short:         "Report whether a user may modify a key",
		Example:       `  infobase permissions wiki /people/alice/notes --as alice`,
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

			perms, err := site.GetPermissions(requestContext(cmd.Context(), opts.As), args[1])
			if err != nil {
				return e.out.Fail("permission check failed", err)
			}
			return e.out.Success(perms, func(w io.Writer) {
				fmt.Fprintf(w, "write: %t\nadmin: %t\n", perms.Write, perms.Admin)
			})
		},
	}

	cmd.Flags().StringVar(&opts.As, "as", "", "acting user (username or /user/ key)")
	return cmd
}

// EventsOptions holds flags for the events command.
type EventsOptions struct {
	*RootOptions
	After int64
	Limit int
}

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EventsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "events <site>",
		Short: "Print the persisted events of a site",
		Long: `Print events recorded by the event log, oldest first.

The event log must be enabled in configuration (event_log.enabled or
INFOBASE_EVENT_LOG=true).`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(opts.RootOptions, cmd)
			if err != nil {
				return err
			}
			defer e.close()

			if e.events == nil {
				msg := "event log is disabled"
				if outErr := e.out.Error("EVENT_LOG_DISABLED", msg, nil); outErr != nil {
					return outErr
				}
				return NewExitError(ExitCommandError, msg)
			}

			records, err := e.events.Read(cmd.Context(), args[0], opts.After, opts.Limit)
			if err != nil {
				return e.out.Fail("failed to read events", err)
			}
			return e.out.Success(records, func(w io.Writer) {
				for _, r := range records {
					ev := r.Event
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", r.Seq, ev.Name(), ev.Key(), ev.Author())
				}
			})
		},
	}

	cmd.Flags().Int64Var(&opts.After, "after", 0, "only events with a sequence number greater than this")
	cmd.Flags().IntVar(&opts.Limit, "limit", 100, "maximum number of events")
	return cmd
}

// parseQuery decodes a JSON object argument.
func parseQuery(arg string) (map[string]any, error) {
	var q map[string]any
	if err := json.Unmarshal([]byte(arg), &q); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to parse query", err)
	}
	if q == nil {
		q = map[string]any{}
	}
	return q, nil
}
