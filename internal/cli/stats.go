package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/mnemosyne/internal/ir"
)

var claimStatuses = []ir.Status{ir.StatusPending, ir.StatusVerified, ir.StatusContested, ir.StatusRejected}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count documents, claims and ledger records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, "stats", func(s *session) error {
				st, err := s.app.Stats(s.ctx)
				if err != nil {
					return err
				}
				return s.out.Print(st, func(w io.Writer) {
					fmt.Fprintf(w, "documents: %d\n", st.Documents)
					fmt.Fprintln(w, "claims:")
					for _, status := range claimStatuses {
						fmt.Fprintf(w, "  %-9s %d\n", status, st.Claims[status])
					}
					fmt.Fprintln(w, "ledger:")
					for _, stream := range ir.Streams {
						fmt.Fprintf(w, "  %-9s %d\n", stream, st.Ledger[stream])
					}
					fmt.Fprintf(w, "quorum: %d (%s)\n", st.Quorum, st.VotePolicy)
				})
			})
		},
	}
}
