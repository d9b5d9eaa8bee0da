// Package markdown provides a Normaliser for Markdown files. Documents are
// parsed with goldmark and rendered back to plain text: formatting markers
// are dropped while code, link text and table cells are kept as content.
package markdown

import (
	"context"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles Markdown documents.
type Normaliser struct {
	md goldmark.Markdown
}

// New creates a new Markdown normaliser.
func New() *Normaliser {
	return &Normaliser{md: goldmark.New(goldmark.WithExtensions(extension.Table))}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"text/markdown", "text/x-markdown"}
}

// SupportedExtensions returns the file extensions this normaliser handles.
func (n *Normaliser) SupportedExtensions() []string {
	return []string{".md", ".markdown"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50
}

// Normalise converts a markdown document to a single plain text document.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	content, heading := n.render(raw.Content)
	title := raw.Title()
	if heading != "" {
		title = heading
	}

	doc := raw.NewDocument(raw.URI, title, content, "markdown")
	return &driven.NormaliseResult{Documents: []domain.Document{doc}}, nil
}

var frontMatter = regexp.MustCompile(`(?s)\A---\r?\n.*?\r?\n---\r?\n`)

// render parses source and returns its plain text and the text of the
// first level-one heading.
func (n *Normaliser) render(source []byte) (string, string) {
	src := frontMatter.ReplaceAll(source, nil)
	root := n.md.Parser().Parse(text.NewReader(src))

	w := &textWriter{}
	var (
		title        string
		headingStart int
	)
	_ = ast.Walk(root, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			switch node := node.(type) {
			case *ast.Heading:
				if title == "" && node.Level == 1 {
					title = strings.TrimSpace(w.String()[headingStart:])
				}
				w.breakLines(2)
			case *ast.Paragraph, *ast.List, *ast.Blockquote, *extast.Table:
				w.breakLines(2)
			case *ast.TextBlock, *ast.ListItem, *extast.TableHeader, *extast.TableRow:
				w.breakLines(1)
			case *extast.TableCell:
				if node.NextSibling() != nil {
					w.writeString(" | ")
				}
			}
			return ast.WalkContinue, nil
		}

		switch node := node.(type) {
		case *ast.Heading:
			headingStart = w.Len()
		case *ast.Text:
			w.write(node.Segment.Value(src))
			if node.SoftLineBreak() || node.HardLineBreak() {
				w.breakLines(1)
			}
		case *ast.String:
			w.write(node.Value)
		case *ast.AutoLink:
			w.write(node.Label(src))
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := node.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				w.write(seg.Value(src))
			}
			w.breakLines(2)
			return ast.WalkSkipChildren, nil
		case *ast.HTMLBlock, *ast.RawHTML, *ast.ThematicBreak:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	return strings.TrimSpace(w.String()), title
}

// textWriter builds the rendered text and tracks trailing newlines so
// nested blocks never stack blank lines.
type textWriter struct {
	b        strings.Builder
	trailing int
}

func (w *textWriter) String() string { return w.b.String() }
func (w *textWriter) Len() int       { return w.b.Len() }

func (w *textWriter) write(p []byte) { w.writeString(string(p)) }

func (w *textWriter) writeString(s string) {
	if s == "" {
		return
	}
	w.b.WriteString(s)
	trimmed := strings.TrimRight(s, "\n")
	if trimmed == "" {
		w.trailing += len(s)
		return
	}
	w.trailing = len(s) - len(trimmed)
}

// breakLines ends the current line so at least n newlines trail the text.
// Nothing is written before the first content.
func (w *textWriter) breakLines(n int) {
	if w.Len() == 0 {
		return
	}
	for w.trailing < n {
		w.writeString("\n")
	}
}
