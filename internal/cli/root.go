package cli

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/mnemosyne/internal/app"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string
	Metrics    bool

	// IDs names each command invocation in logs and JSON responses.
	IDs IDGenerator

	// AppOptions are passed to app.New for every command.
	AppOptions []app.Option
}

// IDGenerator produces operation ids.
type IDGenerator interface {
	Generate() string
}

// UUIDGenerator produces random UUIDv4 operation ids.
type UUIDGenerator struct{}

// Generate returns a new UUID string.
func (UUIDGenerator) Generate() string {
	return uuid.NewString()
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the mnemosyne CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{IDs: UUIDGenerator{}})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	if opts.IDs == nil {
		opts.IDs = UUIDGenerator{}
	}

	cmd := &cobra.Command{
		Use:   "mnemosyne",
		Short: "Content-addressed document store with crowd-verified claims",
		Long: `Mnemosyne stores documents by the SHA-256 of their bytes, indexes them for
full-text search, and records claims about them. Claims are verified by
votes: once a claim's net tally reaches the quorum it is promoted to the
append-only verified ledger. Reviewers may also decide a claim outright.

Configuration is read from mnemosyne.yaml, MNEMOSYNE_* environment
variables and the flags below, in increasing precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitFailure, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	// Global flags. Flags named after config keys override them.
	pf := cmd.PersistentFlags()
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	pf.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	pf.StringVar(&opts.ConfigFile, "config", "", "config file (default ./mnemosyne.yaml if present)")
	pf.BoolVar(&opts.Metrics, "metrics", false, "print counters to stderr after the command")
	pf.String("data-dir", "", "root of the database, blobs and ledgers (default \"data\")")
	pf.String("log-level", "", "log level (debug|info|warn|error)")
	pf.String("vote-policy", "", "tally policy (permissive|latest-per-voter)")
	pf.Int("quorum", 0, "net votes needed to promote a claim (default 3)")

	cmd.AddCommand(NewIngestCommand(opts))
	cmd.AddCommand(NewDocCommand(opts))
	cmd.AddCommand(NewSearchCommand(opts))
	cmd.AddCommand(NewAskCommand(opts))
	cmd.AddCommand(NewLedgerCommand(opts))
	cmd.AddCommand(NewClaimCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
