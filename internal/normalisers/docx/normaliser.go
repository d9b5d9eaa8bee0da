// Package docx provides a Normaliser for Office Open XML word documents.
package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// MIMEType is the content type of DOCX files.
const MIMEType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// Normaliser handles DOCX documents.
type Normaliser struct{}

// New creates a new DOCX normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{MIMEType}
}

// SupportedExtensions returns the file extensions this normaliser handles.
func (n *Normaliser) SupportedExtensions() []string {
	return []string{".docx"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 60
}

// Normalise extracts the body text of a DOCX archive, one line per paragraph.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	archive, err := zip.NewReader(bytes.NewReader(raw.Content), int64(len(raw.Content)))
	if err != nil {
		return nil, fmt.Errorf("%w: not a docx archive: %v", domain.ErrInvalidInput, err)
	}

	body, err := readEntry(archive, "word/document.xml")
	if err != nil {
		return nil, err
	}
	content, err := extractText(body)
	if err != nil {
		return nil, fmt.Errorf("%w: parse document.xml: %v", domain.ErrInvalidInput, err)
	}

	title := raw.Title()
	if core, err := readEntry(archive, "docProps/core.xml"); err == nil {
		if t := coreTitle(core); t != "" {
			title = t
		}
	}

	doc := raw.NewDocument(raw.URI, title, content, "docx")
	return &driven.NormaliseResult{Documents: []domain.Document{doc}}, nil
}

func readEntry(archive *zip.Reader, name string) ([]byte, error) {
	f, err := archive.Open(name)
	if err != nil {
		return nil, fmt.Errorf("%w: missing %s", domain.ErrInvalidInput, name)
	}
	defer f.Close()
	return io.ReadAll(f)
}

// extractText walks the WordprocessingML token stream. Text runs are
// concatenated, tabs and breaks are kept, and paragraphs end with a newline.
func extractText(data []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var b strings.Builder
	inText := false

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}

		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br", "cr":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteByte('\n')
			case "tc":
				b.WriteByte('\t')
			}
		case xml.CharData:
			if inText {
				b.Write(el)
			}
		}
	}

	lines := strings.Split(b.String(), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}

func coreTitle(data []byte) string {
	var core struct {
		Title string `xml:"title"`
	}
	if err := xml.Unmarshal(data, &core); err != nil {
		return ""
	}
	return strings.TrimSpace(core.Title)
}
