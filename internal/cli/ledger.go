package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/mnemosyne/internal/ir"
	"github.com/roach88/mnemosyne/internal/ledger"
)

// LedgerOptions holds flags for the ledger commands.
type LedgerOptions struct {
	*RootOptions
	Limit int
}

// NewLedgerCommand creates the ledger command group.
func NewLedgerCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Read the append-only ledgers",
		Long: `Read the append-only ledgers. Streams: raw, verified, claims, votes.

Each stream is a JSONL file with one canonical JSON record per line.`,
	}

	cmd.AddCommand(newLedgerScanCommand(rootOpts))
	cmd.AddCommand(newLedgerFindCommand(rootOpts))
	return cmd
}

func newLedgerScanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LedgerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scan <stream>",
		Short: "Print the records of a stream in append order",
		Example: `  mnemosyne ledger scan verified
  mnemosyne ledger scan votes --limit 20 --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, "ledger.scan", func(s *session) error {
				stream, err := ir.ParseStream(args[0])
				if err != nil {
					return err
				}
				records := []ledger.Record{}
				for rec, err := range s.app.Ledger.Scan(s.ctx, stream) {
					if err != nil {
						return err
					}
					records = append(records, rec)
					if opts.Limit > 0 && len(records) >= opts.Limit {
						break
					}
				}
				return s.out.Print(records, func(w io.Writer) { writeRecords(w, records) })
			})
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "stop after this many records (0 for all)")
	return cmd
}

func newLedgerFindCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "find <stream> <cid>",
		Short:   "Print the first record of a stream that names a cid",
		Example: `  mnemosyne ledger find raw 2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, "ledger.find", func(s *session) error {
				stream, err := ir.ParseStream(args[0])
				if err != nil {
					return err
				}
				rec, ok, err := s.app.Ledger.FindByCID(s.ctx, stream, args[1])
				if err != nil {
					return err
				}
				if !ok {
					return ir.NotFound("ledger record", args[1])
				}
				return s.out.Print(rec, func(w io.Writer) { writeRecords(w, []ledger.Record{rec}) })
			})
		},
	}
}

// writeRecords prints records one canonical line each, as stored.
func writeRecords(w io.Writer, records []ledger.Record) {
	for _, rec := range records {
		line, err := ir.MarshalCanonical(rec)
		if err != nil {
			fmt.Fprintf(w, "<unprintable record: %v>\n", err)
			continue
		}
		fmt.Fprintln(w, string(line))
	}
}
