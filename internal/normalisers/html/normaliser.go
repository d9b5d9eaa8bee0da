package html

import (
	"context"
	"html"
	"regexp"
	"strings"

	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles HTML documents.
type Normaliser struct{}

// New creates a new HTML normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"text/html", "application/xhtml+xml"}
}

// SupportedExtensions returns the file extensions this normaliser handles.
func (n *Normaliser) SupportedExtensions() []string {
	return []string{".html", ".htm", ".xhtml"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50
}

// Normalise converts an HTML document to a single plain text document.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	source := string(raw.Content)
	title := raw.Title()
	if m := titleTag.FindStringSubmatch(source); len(m) > 1 {
		if t := strings.TrimSpace(html.UnescapeString(m[1])); t != "" {
			title = t
		}
	}

	doc := raw.NewDocument(raw.URI, title, stripHTML(source), "html")
	return &driven.NormaliseResult{Documents: []domain.Document{doc}}, nil
}

var titleTag = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

// replacement is one rewrite step applied to the markup.
type replacement struct {
	re   *regexp.Regexp
	with string
}

// steps are applied in order before tags are stripped. Each element is
// removed by its own pattern so a close tag only ends its own element.
var steps = []replacement{
	{regexp.MustCompile(`(?is)<head\b[^>]*>.*?</head>`), ""},
	{regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script>`), ""},
	{regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style>`), ""},
	{regexp.MustCompile(`(?is)<noscript\b[^>]*>.*?</noscript>`), ""},
	{regexp.MustCompile(`(?is)<svg\b[^>]*>.*?</svg>`), ""},
	{regexp.MustCompile(`(?is)<template\b[^>]*>.*?</template>`), ""},
	{regexp.MustCompile(`(?s)<!--.*?-->`), ""},
	{regexp.MustCompile(`(?i)<(p|div|h[1-6]|li|tr|blockquote|pre|table|section|article|header|footer)[^>]*>`), "\n"},
	{regexp.MustCompile(`(?i)</(p|div|h[1-6]|li|tr|blockquote|pre|table|section|article|header|footer)>`), "\n"},
	{regexp.MustCompile(`(?i)<(br|hr)\s*/?>`), "\n"},
	{regexp.MustCompile(`(?i)</t[dh]>`), " "},
	{regexp.MustCompile(`<[^>]+>`), ""},
}

var multiSpaces = regexp.MustCompile(`[ \t\p{Zs}]+`)

// stripHTML removes markup and returns readable text, one block per line.
func stripHTML(content string) string {
	for _, s := range steps {
		content = s.re.ReplaceAllString(content, s.with)
	}
	content = html.UnescapeString(content)
	content = multiSpaces.ReplaceAllString(content, " ")

	lines := strings.Split(content, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
