package document

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// splitMarkdown turns a Markdown source into speakable pages. Thematic breaks
// delimit pages; a document without breaks is split before every H1/H2
// heading instead. Code and raw HTML are not spoken.
func splitMarkdown(src []byte) []string {
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	breakOnRules := false
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if n.Kind() == ast.KindThematicBreak {
			breakOnRules = true
			break
		}
	}

	var (
		pages []string
		cur   strings.Builder
	)
	flush := func() {
		pages = append(pages, cur.String())
		cur.Reset()
	}

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch {
		case n.Kind() == ast.KindThematicBreak:
			flush()
			continue
		case !breakOnRules && n.Kind() == ast.KindHeading:
			if h := n.(*ast.Heading); h.Level <= 2 && strings.TrimSpace(cur.String()) != "" {
				flush()
			}
		}
		writeBlock(&cur, n, src)
	}
	flush()

	return pages
}

func writeBlock(b *strings.Builder, block ast.Node, src []byte) {
	_ = ast.Walk(block, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch n := n.(type) {
		case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			if !entering {
				return ast.WalkContinue, nil
			}
			b.Write(n.Value(src))
			if n.SoftLineBreak() || n.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			if entering {
				b.Write(n.Value)
			}
		case *ast.AutoLink:
			if entering {
				b.Write(n.Label(src))
			}
			return ast.WalkSkipChildren, nil
		}
		if !entering && n.Type() == ast.TypeBlock {
			b.WriteString("\n\n")
		}
		return ast.WalkContinue, nil
	})
}
