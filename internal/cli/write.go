package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/infobase/internal/infobase"
	"github.com/roach88/infobase/internal/thing"
)

// WriteCmdOptions holds flags shared by write and save.
type WriteCmdOptions struct {
	*RootOptions
	As      string
	Comment string
}

// NewWriteCommand creates the write command.
func NewWriteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WriteCmdOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "write <site> <file|->",
		Short: "Apply a write query",
		Long: `Apply a write query read from a JSON file or stdin.

The query is an object or a list of objects. Each object carries a key and
may carry a type; nested objects with a key are written too.

Exit codes:
  0 - Write applied (possibly with nothing changed)
  1 - Write rejected (permission, validation)
  2 - Command error

Example:
  echo '{"key": "/k1", "type": {"key": "/type/page"}, "title": "hello"}' \
    | infobase write wiki - --as admin`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWrite(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.As, "as", "", "acting user (username or /user/ key)")
	cmd.Flags().StringVar(&opts.Comment, "comment", "", "change comment")
	return cmd
}

func runWrite(opts *WriteCmdOptions, siteName, path string, cmd *cobra.Command) error {
	raw, err := readInput(cmd, path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read query", err)
	}
	q, err := thing.DecodeValue(raw)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to parse query", err)
	}

	e, err := openEnv(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer e.close()

	site, err := e.site(cmd.Context(), siteName)
	if err != nil {
		return err
	}

	ctx := requestContext(cmd.Context(), opts.As)
	res, err := site.Write(ctx, q, infobase.WriteOptions{Comment: opts.Comment})
	if err != nil {
		return e.out.Fail("write failed", err)
	}

	e.out.VerboseLog("wrote %d created, %d updated", len(res.Created), len(res.Updated))
	return e.out.Success(res, func(w io.Writer) {
		if len(res.Created) == 0 && len(res.Updated) == 0 {
			fmt.Fprintln(w, "nothing changed")
			return
		}
		if len(res.Created) > 0 {
			fmt.Fprintf(w, "created: %s\n", strings.Join(res.Created, ", "))
		}
		if len(res.Updated) > 0 {
			fmt.Fprintf(w, "updated: %s\n", strings.Join(res.Updated, ", "))
		}
	})
}

// NewSaveCommand creates the save command.
func NewSaveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WriteCmdOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "save <site> <key> <file|->",
		Short: "Replace the document of a thing",
		Long: `Replace the whole document stored under key with a JSON document read
from a file or stdin. The document must carry a type.

Saving a document identical to the stored one changes nothing.`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSave(opts, args[0], args[1], args[2], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.As, "as", "", "acting user (username or /user/ key)")
	cmd.Flags().StringVar(&opts.Comment, "comment", "", "change comment")
	return cmd
}

func runSave(opts *WriteCmdOptions, siteName, key, path string, cmd *cobra.Command) error {
	raw, err := readInput(cmd, path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read document", err)
	}
	doc, err := thing.DecodeData(raw)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to parse document", err)
	}

	e, err := openEnv(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer e.close()

	site, err := e.site(cmd.Context(), siteName)
	if err != nil {
		return err
	}

	ctx := requestContext(cmd.Context(), opts.As)
	res, err := site.Save(ctx, key, doc, infobase.WriteOptions{Comment: opts.Comment})
	if err != nil {
		return e.out.Fail("save failed", err)
	}

	data := map[string]any{"key": key, "changed": res != nil}
	if res != nil {
		data["revision"] = res.Revision
	}
	return e.out.Success(data, func(w io.Writer) {
		if res == nil {
			fmt.Fprintf(w, "%s unchanged\n", key)
			return
		}
		fmt.Fprintf(w, "✓ saved %s at revision %d\n", key, res.Revision)
	})
}
