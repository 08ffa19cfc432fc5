package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/mnemosyne/internal/ingest"
	"github.com/roach88/mnemosyne/internal/ir"
	"github.com/roach88/mnemosyne/internal/ledger"
	"github.com/roach88/mnemosyne/internal/verify"
)

// IngestOptions holds flags for the ingest command.
type IngestOptions struct {
	*RootOptions
	Title       string
	Description string
	License     string
	Name        string // filename used for classification when reading stdin
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IngestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Store, index and record a document",
		Long: `Store a file under the SHA-256 of its bytes, index its text and append an
INGEST record to the raw ledger. Ingesting identical bytes again yields the
same cid and replaces the metadata.

Use "-" to read from stdin; --name then supplies the filename used to
classify the content.

Examples:
  mnemosyne ingest notes.md --title "Field notes"
  cat scan.pdf | mnemosyne ingest - --name scan.pdf --license CC0-1.0`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, "ingest", func(s *session) error {
				return runIngest(s, opts, args[0], cmd.InOrStdin())
			})
		},
	}

	cmd.Flags().StringVar(&opts.Title, "title", "", "document title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "document description")
	cmd.Flags().StringVar(&opts.License, "license", "", "license identifier (default "+ingest.DefaultLicense+")")
	cmd.Flags().StringVar(&opts.Name, "name", "", "filename to classify by (defaults to the file's base name)")

	return cmd
}

func runIngest(s *session, opts *IngestOptions, path string, stdin io.Reader) error {
	var (
		data []byte
		err  error
	)
	name := opts.Name
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
		if name == "" {
			name = filepath.Base(path)
		}
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "read input", err)
	}

	doc, err := s.app.Ingest.Ingest(s.ctx, ingest.Upload{
		Filename:    name,
		Data:        data,
		Title:       opts.Title,
		Description: opts.Description,
		License:     opts.License,
	})
	if err != nil {
		return err
	}
	return s.out.Print(doc, func(w io.Writer) {
		fmt.Fprintln(w, doc.CID)
		s.out.VerboseLog("stored %d bytes as %s at %s", len(data), doc.ContentType, doc.Path)
	})
}

// DocOptions holds flags for the doc command.
type DocOptions struct {
	*RootOptions
	Raw        bool
	Provenance bool
}

// docView is the doc command's JSON payload.
type docView struct {
	ir.Document
	Provenance *provenanceView `json:"provenance,omitempty"`
}

type provenanceView struct {
	Stream ir.Stream     `json:"stream"`
	Record ledger.Record `json:"record"`
}

// NewDocCommand creates the doc command.
func NewDocCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DocOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "doc <cid>",
		Short: "Show a document's metadata or bytes",
		Long: `Show the metadata of a stored document.

--raw writes the stored bytes to stdout instead. --provenance adds the
first ledger record that mentions the cid, raw ledger first.

Examples:
  mnemosyne doc 2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824
  mnemosyne doc <cid> --raw > copy.bin`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, "doc", func(s *session) error {
				return runDoc(s, opts, args[0])
			})
		},
	}

	cmd.Flags().BoolVar(&opts.Raw, "raw", false, "write the stored bytes to stdout")
	cmd.Flags().BoolVar(&opts.Provenance, "provenance", false, "include the ledger record for the cid")

	return cmd
}

func runDoc(s *session, opts *DocOptions, cid string) error {
	if opts.Raw {
		data, err := s.app.Ingest.Fetch(s.ctx, cid)
		if err != nil {
			return err
		}
		_, err = s.out.Writer.Write(data)
		return err
	}

	doc, err := s.app.Ingest.Document(s.ctx, cid)
	if err != nil {
		return err
	}
	view := docView{Document: doc}
	if opts.Provenance {
		rec, stream, err := s.app.Ingest.Provenance(s.ctx, cid)
		switch {
		case err == nil:
			view.Provenance = &provenanceView{Stream: stream, Record: rec}
		case !ir.IsNotFound(err):
			return err
		}
	}

	return s.out.Print(view, func(w io.Writer) {
		fmt.Fprintf(w, "cid:          %s\n", doc.CID)
		fmt.Fprintf(w, "title:        %s\n", doc.Title)
		if doc.Description != "" {
			fmt.Fprintf(w, "description:  %s\n", doc.Description)
		}
		fmt.Fprintf(w, "content type: %s\n", doc.ContentType)
		fmt.Fprintf(w, "license:      %s\n", doc.License)
		fmt.Fprintf(w, "path:         %s\n", doc.Path)
		fmt.Fprintf(w, "ingested at:  %s\n", ir.FormatTime(doc.IngestedAt))
		if view.Provenance != nil {
			fmt.Fprintf(w, "provenance:   %s %s\n", view.Provenance.Stream, view.Provenance.Record.Str("kind"))
		}
	})
}

// QueryOptions holds flags for the search and ask commands.
type QueryOptions struct {
	*RootOptions
	Limit int
}

// NewSearchCommand creates the search command.
func NewSearchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "search <query>...",
		Short: "Full-text search over titles, descriptions and text",
		Long: `Search the document index. The query uses SQLite FTS4 MATCH syntax.
Hits come back in index order; no match is not an error.

Examples:
  mnemosyne search boiling point
  mnemosyne search 'water NOT ice' --limit 20`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, "search", func(s *session) error {
				hits, err := s.app.Ingest.Search(s.ctx, strings.Join(args, " "), opts.Limit)
				if err != nil {
					return err
				}
				return s.out.Print(hits, func(w io.Writer) {
					if len(hits) == 0 {
						fmt.Fprintln(w, "No matches.")
						return
					}
					for _, h := range hits {
						fmt.Fprintf(w, "%s  %s\n", h.CID, h.Title)
						if h.Snippet != "" {
							fmt.Fprintf(w, "    %s\n", h.Snippet)
						}
					}
				})
			})
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of hits (default 10)")
	return cmd
}

// NewAskCommand creates the ask command.
func NewAskCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ask <question>...",
		Short: "Search and rank sources backed by verified claims first",
		Long: `Answer a question with citations. Documents cited by a verified claim are
listed before the others; search order is kept within each group.

Example:
  mnemosyne ask boiling point of water`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, "ask", func(s *session) error {
				ans, err := s.app.Engine.Ask(s.ctx, strings.Join(args, " "), opts.Limit)
				if err != nil {
					return err
				}
				return s.out.Print(ans, func(w io.Writer) { writeAnswer(w, ans) })
			})
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 0, fmt.Sprintf("maximum number of citations (default %d)", verify.DefaultAskLimit))
	return cmd
}

func writeAnswer(w io.Writer, ans verify.Answer) {
	fmt.Fprintln(w, ans.Answer)
	for i, c := range ans.Citations {
		mark := " "
		if c.Verified {
			mark = "✓"
		}
		fmt.Fprintf(w, "%d. [%s] %s  %s\n", i+1, mark, c.CID, c.Title)
	}
}
