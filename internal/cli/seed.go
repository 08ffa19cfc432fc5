package cli

import (
	"bytes"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/mnemosyne/internal/seed"
)

// NewSeedCommand creates the seed command group.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Exchange document and claim snapshots",
		Long: `Export and import snapshots of document metadata and claims. Snapshots
carry no blob bytes and no ledgers; an import re-indexes documents by
metadata only.`,
	}

	cmd.AddCommand(newSeedExportCommand(rootOpts))
	cmd.AddCommand(newSeedImportCommand(rootOpts))
	return cmd
}

// SeedOptions holds flags for the seed commands.
type SeedOptions struct {
	*RootOptions
	Output string
	As     string // payload format; empty means infer from the file name
}

func newSeedExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a snapshot of every document and claim",
		Example: `  mnemosyne seed export > seed.json
  mnemosyne seed export -o seed.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, "seed.export", func(s *session) error {
				format, err := payloadFormat(opts.As, opts.Output)
				if err != nil {
					return err
				}
				snap, err := s.app.Seed.Export(s.ctx)
				if err != nil {
					return err
				}

				var buf bytes.Buffer
				if err := seed.Encode(&buf, snap, format); err != nil {
					return WrapExitError(ExitCommandError, "encode snapshot", err)
				}
				if opts.Output == "" {
					_, err := s.out.Writer.Write(buf.Bytes())
					return err
				}
				if err := os.WriteFile(opts.Output, buf.Bytes(), 0o644); err != nil {
					return WrapExitError(ExitCommandError, "write snapshot", err)
				}
				s.out.VerboseLog("wrote %d documents and %d claims", len(snap.Documents), len(snap.Claims))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write to a file instead of stdout")
	cmd.Flags().StringVar(&opts.As, "as", "", "payload format (json|yaml); inferred from --output")
	return cmd
}

func newSeedImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Load a snapshot",
		Long: `Load a snapshot. The whole payload is validated before anything is written.

In dedup mode (the default) claims whose text is already present are
skipped. In append mode every claim is inserted. Claims whose row id is
taken get a new id; the remap is reported.`,
		Example: `  mnemosyne seed import seed.json
  mnemosyne seed import seed.yaml --import-mode append`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, "seed.import", func(s *session) error {
				return runSeedImport(s, opts, args[0], cmd.InOrStdin())
			})
		},
	}

	cmd.Flags().StringVar(&opts.As, "as", "", "payload format (json|yaml); inferred from the file name")
	cmd.Flags().String("import-mode", "", "claim import mode (dedup|append)")
	return cmd
}

func runSeedImport(s *session, opts *SeedOptions, path string, stdin io.Reader) error {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "read snapshot", err)
	}

	format, err := payloadFormat(opts.As, path)
	if err != nil {
		return err
	}
	snap, err := seed.Decode(raw, format)
	if err != nil {
		return err
	}
	res, err := s.app.Seed.Import(s.ctx, snap)
	if err != nil {
		return err
	}
	return s.out.Print(res, func(w io.Writer) {
		fmt.Fprintf(w, "imported %d documents and %d claims (%s mode, %d deduplicated)\n",
			res.Documents, res.Claims, s.app.Seed.Mode(), res.Deduplicated)
		for _, from := range slices.Sorted(maps.Keys(res.ClaimIDRemap)) {
			fmt.Fprintf(w, "  claim %d -> %d\n", from, res.ClaimIDRemap[from])
		}
	})
}

// payloadFormat picks the snapshot format from an explicit name or, failing
// that, from the file extension.
func payloadFormat(explicit, path string) (seed.Format, error) {
	if explicit != "" {
		return seed.ParseFormat(explicit)
	}
	if path == "" || path == "-" {
		return seed.FormatJSON, nil
	}
	return seed.FormatForPath(path), nil
}
