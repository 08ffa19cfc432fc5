package cli

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/mnemosyne/internal/ir"
	"github.com/roach88/mnemosyne/internal/verify"
)

// NewClaimCommand creates the claim command group.
func NewClaimCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "claim",
		Short: "Propose, vote on and decide claims",
		Long: `Claims are textual assertions about documents. A claim is identified by
"clm_" plus a digest of its text, or by its integer row id.`,
	}

	cmd.AddCommand(newClaimProposeCommand(rootOpts))
	cmd.AddCommand(newClaimVoteCommand(rootOpts))
	cmd.AddCommand(newClaimDecideCommand(rootOpts))
	cmd.AddCommand(newClaimTallyCommand(rootOpts))
	cmd.AddCommand(newClaimGetCommand(rootOpts))
	cmd.AddCommand(newClaimListCommand(rootOpts))
	return cmd
}

// ProposeOptions holds flags for claim propose.
type ProposeOptions struct {
	*RootOptions
	CID     string
	Sources []string
}

// proposeView is the claim propose JSON payload.
type proposeView struct {
	Claim   ir.Claim `json:"claim"`
	Created bool     `json:"created"`
}

func newClaimProposeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ProposeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "propose <text>...",
		Short: "Propose a claim",
		Long: `Propose a claim. Proposing text that was already proposed returns the
existing claim unchanged.`,
		Example: `  mnemosyne claim propose "Water boils at 100C" --cid <cid> --source textbook`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, "claim.propose", func(s *session) error {
				c, created, err := s.app.Claims.Propose(s.ctx, strings.Join(args, " "), opts.CID, opts.Sources)
				if err != nil {
					return err
				}
				return s.out.Print(proposeView{Claim: c, Created: created}, func(w io.Writer) {
					verb := "proposed"
					if !created {
						verb = "exists"
					}
					fmt.Fprintf(w, "%s %s (id %d, %s)\n", verb, c.ClaimID, c.ID, c.Status)
				})
			})
		},
	}

	cmd.Flags().StringVar(&opts.CID, "cid", "", "cid of the document the claim is about")
	cmd.Flags().StringArrayVar(&opts.Sources, "source", nil, "supporting source (repeatable)")
	return cmd
}

// VoteOptions holds flags for claim vote.
type VoteOptions struct {
	*RootOptions
	Value    int
	Decision string
	Voter    string
}

func newClaimVoteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VoteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "vote <claim>",
		Short: "Vote on a claim",
		Long: `Record a vote of +1 or -1. Give either --value or --decision; decision
words include approve/reject, yes/no and upvote/downvote.

The claim is promoted to the verified ledger once its net tally reaches
the quorum. Promotion happens at most once.`,
		Example: `  mnemosyne claim vote clm_570eb14867a88e1e --decision approve --voter alice
  mnemosyne claim vote 12 --value -1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var value *int
			if cmd.Flags().Changed("value") {
				value = &opts.Value
			}
			return withApp(rootOpts, cmd, "claim.vote", func(s *session) error {
				res, err := s.app.Engine.CastVote(s.ctx, verify.VoteRequest{
					ClaimRef: args[0],
					Input:    verify.InputFrom(value, opts.Decision),
					Voter:    opts.Voter,
				})
				if err != nil {
					return err
				}
				return s.out.Print(res, func(w io.Writer) {
					fmt.Fprintf(w, "%+d by %s on %s: %s\n", res.Vote.Value, res.Vote.Voter, res.Claim.ClaimID, res.Tally)
					if res.Promoted {
						fmt.Fprintln(w, "promoted to the verified ledger")
					}
				})
			})
		},
	}

	cmd.Flags().IntVar(&opts.Value, "value", 0, "vote value, +1 or -1")
	cmd.Flags().StringVar(&opts.Decision, "decision", "", "decision word (approve|reject|yes|no...)")
	cmd.Flags().StringVar(&opts.Voter, "voter", "", "voter name (default anon)")
	return cmd
}

// DecideOptions holds flags for claim decide.
type DecideOptions struct {
	*RootOptions
	Reviewer string
	Notes    string
}

func newClaimDecideCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DecideOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "decide <claim> <verified|contested|rejected>",
		Short: "Apply a reviewer decision",
		Long: `Set a claim's status outright and append a DECISION record to the
verified ledger. Votes are not consulted.`,
		Example: `  mnemosyne claim decide 3 contested --reviewer dana --notes "needs a source"`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, "claim.decide", func(s *session) error {
				c, err := s.app.Engine.SetClaimStatus(s.ctx, args[0], opts.Reviewer, args[1], opts.Notes)
				if err != nil {
					return err
				}
				return s.out.Print(c, func(w io.Writer) {
					fmt.Fprintf(w, "%s is now %s\n", c.ClaimID, c.Status)
				})
			})
		},
	}

	cmd.Flags().StringVar(&opts.Reviewer, "reviewer", "", "reviewer name (default anon)")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "reviewer notes")
	return cmd
}

// TallyOptions holds flags for claim tally.
type TallyOptions struct {
	*RootOptions
	History bool
}

// tallyView is the claim tally JSON payload.
type tallyView struct {
	ClaimID string    `json:"claim_id"`
	Policy  string    `json:"policy"`
	Tally   ir.Tally  `json:"tally"`
	Voters  []string  `json:"voters"`
	Votes   []ir.Vote `json:"votes,omitempty"`
}

func newClaimTallyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TallyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "tally <claim>",
		Short: "Replay the votes for a claim",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, "claim.tally", func(s *session) error {
				c, err := s.app.Claims.Get(s.ctx, args[0])
				if err != nil {
					return err
				}
				t, err := s.app.Claims.Tally(s.ctx, c.ClaimID)
				if err != nil {
					return err
				}
				voters, err := s.app.Claims.Voters(s.ctx, c.ClaimID)
				if err != nil {
					return err
				}
				view := tallyView{
					ClaimID: c.ClaimID,
					Policy:  string(s.app.Claims.Policy()),
					Tally:   t,
					Voters:  voters.ToSlice(),
				}
				slices.Sort(view.Voters)
				if opts.History {
					if view.Votes, err = s.app.Claims.History(s.ctx, c.ClaimID); err != nil {
						return err
					}
				}
				return s.out.Print(view, func(w io.Writer) {
					fmt.Fprintf(w, "%s: %s (%s, %d voters)\n", c.ClaimID, t, view.Policy, len(view.Voters))
					for _, v := range view.Votes {
						fmt.Fprintf(w, "  %s %+d %s\n", ir.FormatTime(v.TS), v.Value, v.Voter)
					}
				})
			})
		},
	}

	cmd.Flags().BoolVar(&opts.History, "history", false, "include every vote in append order")
	return cmd
}

func newClaimGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <claim>",
		Short: "Show a claim",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, "claim.get", func(s *session) error {
				c, err := s.app.Claims.Get(s.ctx, args[0])
				if err != nil {
					return err
				}
				return s.out.Print(c, func(w io.Writer) { writeClaim(w, c) })
			})
		},
	}
}

// ListOptions holds flags for claim list.
type ListOptions struct {
	*RootOptions
	Limit int
}

func newClaimListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List claims, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, "claim.list", func(s *session) error {
				claims, err := s.app.Claims.List(s.ctx, opts.Limit)
				if err != nil {
					return err
				}
				return s.out.Print(claims, func(w io.Writer) {
					if len(claims) == 0 {
						fmt.Fprintln(w, "No claims.")
						return
					}
					for _, c := range claims {
						fmt.Fprintf(w, "%4d  %s  %-9s  %s\n", c.ID, c.ClaimID, c.Status, c.Text)
					}
				})
			})
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of claims (0 for all)")
	return cmd
}

func writeClaim(w io.Writer, c ir.Claim) {
	fmt.Fprintf(w, "id:       %d\n", c.ID)
	fmt.Fprintf(w, "claim id: %s\n", c.ClaimID)
	fmt.Fprintf(w, "text:     %s\n", c.Text)
	if c.CID != "" {
		fmt.Fprintf(w, "cid:      %s\n", c.CID)
	}
	if len(c.Sources) > 0 {
		fmt.Fprintf(w, "sources:  %s\n", strings.Join(c.Sources, ", "))
	}
	fmt.Fprintf(w, "method:   %s\n", c.Method)
	fmt.Fprintf(w, "status:   %s\n", c.Status)
	if c.Promoted {
		fmt.Fprintf(w, "promoted: %s\n", ir.FormatTime(c.PromotedAt))
	}
	fmt.Fprintf(w, "proposed: %s\n", ir.FormatTime(c.TS))
}
