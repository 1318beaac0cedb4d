package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/dgnsrekt/pagecast/internal/document"
	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/truncate"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	findQuery    string
	outlineWidth uint

	faint = lipgloss.NewStyle().Faint(true).Render

	pagesCmd = &cobra.Command{
		Use:     "pages FILE",
		Short:   "List the pages of a document",
		Long:    paragraph(fmt.Sprintf("\n%s the pages pagecast would read, titled by their first line. Pages without text are marked.", keyword("List"))),
		Example: paragraph("pagecast pages paper.pdf\npagecast pages notes.md --find methods"),
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveDocument(args[0])
			if err != nil {
				return err
			}
			strategy, err := document.ParseStrategy(viper.GetString("store"))
			if err != nil {
				return err //nolint:wrapcheck
			}
			store, err := document.Open(path, strategy)
			if err != nil {
				return fmt.Errorf("unable to open document: %w", err)
			}
			defer store.Close() //nolint:errcheck

			w := outlineWidth
			if w == 0 {
				w = width
			}
			return printOutline(cmd.OutOrStdout(), store, findQuery, int(w)) //nolint:gosec
		},
	}
)

// printOutline writes a header and one line per page. A query limits the
// listing to matching pages, best match first. Lines are cut at width when
// it is positive.
func printOutline(w io.Writer, s document.Store, query string, width int) error {
	var (
		entries []document.Entry
		err     error
	)
	if query != "" {
		entries, err = document.FindPages(s, query)
	} else {
		entries, err = document.Outline(s)
	}
	if err != nil {
		return fmt.Errorf("unable to read pages: %w", err)
	}

	doc := s.Document()
	noun := "pages"
	if doc.TotalPages == 1 {
		noun = "page"
	}
	fmt.Fprintf(w, "%s  %s %s\n", keyword(filepath.Base(doc.Path)), humanize.Comma(int64(doc.TotalPages)), noun)

	if query != "" && len(entries) == 0 {
		fmt.Fprintf(w, "no page matches %q\n", query)
		return nil
	}

	for _, e := range entries {
		title := e.Title
		if title == "" {
			title = faint("(no text)")
		}
		line := fmt.Sprintf("%4d  %s", e.Page+1, title)
		if width > 0 {
			line = truncate.StringWithTail(line, uint(width), "…") //nolint:gosec
		}
		fmt.Fprintln(w, line)
	}
	return nil
}
