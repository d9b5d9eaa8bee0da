package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driving"
)

// separator follows every answer.
const separator = "*********************************"

// Labels of the chat transcript.
const (
	userPrompt     = "User> "
	assistantLabel = "AI Assistant: "
	chatBanner     = "Chatbot initialized. Type '%s' to quit."
)

// theme is the colour palette of the terminal output.
type theme struct {
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Muted     lipgloss.Color
	Success   lipgloss.Color
	Warning   lipgloss.Color
	Error     lipgloss.Color
}

func defaultTheme() theme {
	return theme{
		Primary:   lipgloss.Color("#7C3AED"), // Purple
		Secondary: lipgloss.Color("#06B6D4"), // Cyan
		Muted:     lipgloss.Color("#6C7086"), // Medium gray
		Success:   lipgloss.Color("#A6E3A1"), // Green
		Warning:   lipgloss.Color("#F9E2AF"), // Yellow
		Error:     lipgloss.Color("#F38BA8"), // Red
	}
}

// styles renders transcript and report lines. Colours are dropped when
// the writer is not a terminal.
type styles struct {
	Title   lipgloss.Style
	Prompt  lipgloss.Style
	Label   lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	t := defaultTheme()
	return styles{
		Title:   r.NewStyle().Foreground(t.Primary).Bold(true),
		Prompt:  r.NewStyle().Foreground(t.Secondary).Bold(true),
		Label:   r.NewStyle().Foreground(t.Primary).Bold(true),
		Muted:   r.NewStyle().Foreground(t.Muted),
		Success: r.NewStyle().Foreground(t.Success),
		Warning: r.NewStyle().Foreground(t.Warning),
		Error:   r.NewStyle().Foreground(t.Error),
	}
}

// reply renders an answer or a failure message after the assistant label.
func (s styles) reply(r driving.Reply) string {
	text := r.Text
	if r.Failed {
		text = s.Warning.Render(text)
	}
	return s.Label.Render(assistantLabel) + text
}

// sources renders the chunks an answer was grounded on.
func (s styles) sources(chunks []domain.RetrievedChunk) string {
	if len(chunks) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(s.Muted.Render("Sources:"))
	for i, c := range chunks {
		name := c.Source
		if page, ok := c.Metadata[domain.MetaPageNumber]; ok {
			name = fmt.Sprintf("%s (page %v)", name, page)
		}
		b.WriteString("\n")
		b.WriteString(s.Muted.Render(fmt.Sprintf("  [%d] %s  %.3f", i+1, name, c.Score)))
	}
	return b.String()
}

// report renders the summary of an ingestion run.
func (s styles) report(r *domain.IngestReport) string {
	var b strings.Builder
	summary := fmt.Sprintf("Indexed %d of %d files: %d chunks, %d records in %s",
		r.Indexed, r.Files, r.Chunks, r.Records, r.Duration.Round(time.Millisecond))
	b.WriteString(s.Success.Render(summary))

	var extra []string
	if r.Skipped > 0 {
		extra = append(extra, fmt.Sprintf("%d unchanged", r.Skipped))
	}
	if r.Removed > 0 {
		extra = append(extra, fmt.Sprintf("%d removed", r.Removed))
	}
	if len(r.Failed) > 0 {
		extra = append(extra, fmt.Sprintf("%d failed", len(r.Failed)))
	}
	if len(extra) > 0 {
		b.WriteString(s.Muted.Render(" (" + strings.Join(extra, ", ") + ")"))
	}

	for _, f := range r.Failed {
		b.WriteString("\n")
		b.WriteString(s.Error.Render(fmt.Sprintf("  ✗ %s: %v", f.Path, f.Err)))
	}
	return b.String()
}

// check renders one health check line.
func (s styles) check(component, target, detail string, err error) string {
	line := fmt.Sprintf("%-10s %s", component, target)
	if err != nil {
		return s.Error.Render("✗ "+line) + "\n    " + err.Error()
	}
	if detail != "" {
		line += " (" + detail + ")"
	}
	return s.Success.Render("✓ " + line)
}
