package render

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

type theme struct {
	frame     lipgloss.Style
	title     lipgloss.Style
	badge     lipgloss.Style
	agent     lipgloss.Style
	player    lipgloss.Style
	card      lipgloss.Style
	muted     lipgloss.Style
	notice    lipgloss.Style
	statusFor map[string]lipgloss.Style
}

func newTheme() theme {
	cyan := lipgloss.Color("#22d3ee")
	purple := lipgloss.Color("#c084fc")
	red := lipgloss.Color("#f87171")
	slate := lipgloss.Color("#64748b")
	amber := lipgloss.Color("#fbbf24")
	text := lipgloss.Color("#f1f5f9")

	return theme{
		frame: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(slate).
			Padding(0, 1),
		title: lipgloss.NewStyle().Foreground(cyan).Bold(true),
		badge: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#0f172a")).
			Background(amber).
			Bold(true).
			Padding(0, 1),
		agent:  lipgloss.NewStyle().Foreground(text),
		player: lipgloss.NewStyle().Foreground(purple).Italic(true),
		card: lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(amber).
			Padding(0, 1),
		muted:  lipgloss.NewStyle().Foreground(slate),
		notice: lipgloss.NewStyle().Foreground(red).Bold(true),
		statusFor: map[string]lipgloss.Style{
			StatusRecording:  lipgloss.NewStyle().Foreground(red).Bold(true),
			StatusThinking:   lipgloss.NewStyle().Foreground(purple).Bold(true),
			StatusSpeaking:   lipgloss.NewStyle().Foreground(cyan).Bold(true),
			StatusConnecting: lipgloss.NewStyle().Foreground(amber),
		},
	}
}

func (t theme) status(label string) lipgloss.Style {
	if s, ok := t.statusFor[label]; ok {
		return s
	}
	return t.muted
}

// Terminal prints screens to a writer, one block per update.
type Terminal struct {
	mu    sync.Mutex
	w     io.Writer
	theme theme
	last  uint64
}

// NewTerminal returns a presenter writing to w.
func NewTerminal(w io.Writer) *Terminal {
	return &Terminal{w: w, theme: newTheme()}
}

// Present prints s unless a newer screen was already printed.
func (t *Terminal) Present(s Screen) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s.Seq != 0 && s.Seq <= t.last {
		return
	}
	t.last = s.Seq
	fmt.Fprintln(t.w, t.Format(s))
}

// Format renders s as a styled block.
func (t *Terminal) Format(s Screen) string {
	th := t.theme
	var b strings.Builder

	header := th.title.Render(strings.ToUpper(string(s.View.Skin)))
	if s.View.RoundBadge.Visible {
		header += "  " + th.badge.Render(s.View.RoundBadge.Text)
	}
	b.WriteString(header + "\n")

	if s.View.Scenario.Visible {
		b.WriteString(th.card.Render(s.View.Scenario.Text) + "\n")
	}
	if s.AgentText != "" {
		b.WriteString(th.agent.Render(s.AgentText) + "\n")
	}
	if s.PlayerText != "" {
		b.WriteString(th.player.Render("you: "+s.PlayerText) + "\n")
	}

	t.formatPanels(&b, s.View)

	if s.Notice != "" {
		b.WriteString(th.notice.Render(s.Notice) + "\n")
	}

	mic := s.Mic.Glyph
	if !s.Mic.Enabled {
		mic = th.muted.Render(mic)
	}
	b.WriteString(mic + "  " + th.status(s.Status).Render(s.Status))

	return th.frame.Render(b.String())
}

func (t *Terminal) formatPanels(b *strings.Builder, v View) {
	th := t.theme

	for _, l := range v.Transcript {
		b.WriteString(th.muted.Render(l.Role+": ") + l.Content + "\n")
	}

	if w := v.Wellness; w != nil {
		fmt.Fprintf(b, "mood %s  energy %s\n", w.Mood, w.Energy)
		for _, g := range w.Goals {
			b.WriteString("  - " + g + "\n")
		}
	}

	if sp := v.Shop; sp != nil {
		for _, p := range sp.Products {
			line := p.Name + "  " + p.Price
			if p.Details != "" {
				line += th.muted.Render("  " + p.Details)
			}
			b.WriteString(line + "\n")
		}
		if len(sp.Cart) > 0 {
			b.WriteString(th.title.Render("cart") + "\n")
			for _, c := range sp.Cart {
				fmt.Fprintf(b, "  %d x %s %s\n", c.Quantity, c.Name, c.Price)
			}
		}
		if o := sp.Order; o != nil {
			var ob strings.Builder
			fmt.Fprintf(&ob, "order %s (%s)\n", o.ID, o.Status)
			for _, l := range o.Lines {
				ob.WriteString(l + "\n")
			}
			ob.WriteString("total " + o.Total)
			b.WriteString(th.card.Render(ob.String()) + "\n")
		}
	}
}
