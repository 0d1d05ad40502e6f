// Package render draws session snapshots for a terminal.
package render

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
	"golang.org/x/term"

	"github.com/rbright/resq/internal/fsm"
	"github.com/rbright/resq/internal/session"
)

const (
	defaultWidth = 80
	maxWidth     = 100

	noLocations    = "No locations mentioned yet..."
	pendingSummary = "Generating summary of the conversation..."
	clearScreen    = "\x1b[H\x1b[2J"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#2563EB"))
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F3F4F6"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
	bulletStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#60A5FA"))
	keywordStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#93C5FD"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#EF4444"))
	speakStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
)

var phaseLabels = map[fsm.Phase]string{
	fsm.PhaseIdle:       "Press Enter to talk to RES-Q",
	fsm.PhaseListening:  "Listening...",
	fsm.PhaseProcessing: "Processing...",
	fsm.PhaseResponding: "Responding",
	fsm.PhaseErrored:    "Something went wrong",
}

// Frame renders snap as plain terminal text wrapped to width.
func Frame(snap session.Snapshot, width int) string {
	if width <= 0 {
		width = defaultWidth
	}
	width = min(width, maxWidth)

	var b strings.Builder
	b.WriteString(titleStyle.Render("RES-Q"))
	b.WriteString("  ")
	b.WriteString(phaseLabels[snap.Phase])
	if snap.IsSpeaking {
		b.WriteString("  ")
		b.WriteString(speakStyle.Render("((( speaking )))"))
	}
	b.WriteString("\n")

	if snap.Error != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render("! " + wrap(snap.Error.Message, width-2)))
		b.WriteString("\n")
	}

	if snap.Transcript != "" {
		section(&b, "You:", wrap(snap.Transcript, width))
	}

	if !showsConversation(snap) {
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("[enter] talk  [q] end call"))
		b.WriteString("\n")
		return b.String()
	}

	response := ""
	if snap.ResponseVisible {
		response = wrap(snap.ResponseText, width)
	}
	section(&b, "Response:", response)

	section(&b, "Locations:", locations(snap, width))
	section(&b, "Summary & Keywords:", summary(snap, width))

	b.WriteString("\n")
	b.WriteString(dimStyle.Render("[enter] talk  [q] end call"))
	b.WriteString("\n")
	return b.String()
}

func showsConversation(snap session.Snapshot) bool {
	return snap.Phase == fsm.PhaseResponding ||
		snap.ResponseVisible ||
		snap.LocationsVisible ||
		snap.SummaryVisible
}

func section(b *strings.Builder, heading, body string) {
	b.WriteString("\n")
	b.WriteString(headingStyle.Render(heading))
	b.WriteString("\n")
	if body != "" {
		b.WriteString(body)
		b.WriteString("\n")
	}
}

func locations(snap session.Snapshot, width int) string {
	if !snap.LocationsVisible || len(snap.Locations) == 0 {
		return dimStyle.Render(wrap(noLocations, width))
	}
	lines := make([]string, 0, len(snap.Locations))
	for _, loc := range snap.Locations {
		lines = append(lines, bulletStyle.Render("•")+" "+wrap(loc, width-2))
	}
	return strings.Join(lines, "\n")
}

func summary(snap session.Snapshot, width int) string {
	if !snap.SummaryVisible || snap.Summary == "" {
		return dimStyle.Render(wrap(pendingSummary, width))
	}
	out := wrap(snap.Summary, width)
	if len(snap.Keywords) > 0 {
		tags := make([]string, 0, len(snap.Keywords))
		for _, kw := range snap.Keywords {
			tags = append(tags, keywordStyle.Render("#"+kw))
		}
		out += "\n" + wrap(strings.Join(tags, " "), width)
	}
	return out
}

func wrap(text string, width int) string {
	if width <= 0 {
		return text
	}
	return wordwrap.String(strings.TrimSpace(text), width)
}

// TerminalWidth reports f's column count, or a default when f is not a terminal.
func TerminalWidth(f *os.File) int {
	if f == nil {
		return defaultWidth
	}
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil || w <= 0 {
		return defaultWidth
	}
	return w
}

// View redraws the latest snapshot on a writer, skipping unchanged frames.
type View struct {
	out   io.Writer
	width int
	clear bool

	mu   sync.Mutex
	last string
}

// NewView builds a View. When out is a terminal each frame replaces the last.
func NewView(out io.Writer) *View {
	v := &View{out: out, width: defaultWidth}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		v.clear = true
		v.width = TerminalWidth(f)
	}
	return v
}

// Update draws snap when it changes what is shown.
func (v *View) Update(snap session.Snapshot) {
	frame := Frame(snap, v.width)

	v.mu.Lock()
	defer v.mu.Unlock()
	if frame == v.last {
		return
	}
	v.last = frame
	if v.clear {
		_, _ = io.WriteString(v.out, clearScreen)
	} else {
		_, _ = io.WriteString(v.out, "\n")
	}
	_, _ = io.WriteString(v.out, frame)
}
