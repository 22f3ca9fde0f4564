package tui

import (
	"fmt"
	"strings"
)

// View renders the progress view.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.theme.Title.Render("🧾 Discovering bills"))
	b.WriteString("\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n\n")
	b.WriteString(m.bar.ViewAs(float64(m.last.Progress) / 100))
	b.WriteString("\n")

	if len(m.log) > 0 {
		b.WriteString("\n")
		for _, line := range m.log {
			b.WriteString(m.theme.StatusPending.Render("  " + line))
			b.WriteString("\n")
		}
	}

	if m.done {
		b.WriteString("\n")
		b.WriteString(m.resultView())
	}

	b.WriteString("\n")
	b.WriteString(m.help.View(m.keymap))
	b.WriteString("\n")
	return b.String()
}

func (m Model) statusLine() string {
	switch {
	case m.done && m.err != nil && m.result == nil:
		return m.theme.StatusError.Render("✗ " + m.err.Error())
	case m.done:
		return m.theme.StatusSuccess.Render("✓ " + m.last.Message)
	case m.canceling:
		return m.spinner.View() + " " + m.theme.StatusWarning.Render("canceling, waiting for running sources...")
	default:
		return fmt.Sprintf("%s %s %s",
			m.spinner.View(),
			m.theme.Bold.Render(string(m.last.Step)),
			m.theme.Subtitle.Render(m.last.Message))
	}
}

func (m Model) resultView() string {
	r := m.result
	if r == nil {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d bills found, %d duplicates merged, %d subscriptions",
		r.Stats.TotalBillsFound, r.Stats.DuplicatesFound, r.Stats.SubscriptionsFound)

	if r.Canceled {
		b.WriteString("\n" + m.theme.StatusWarning.Render("Run canceled; results are partial."))
	}
	if m.err != nil {
		b.WriteString("\n" + m.theme.StatusError.Render(m.err.Error()))
	}
	if n := len(r.Errors); n > 0 {
		b.WriteString("\n" + m.theme.StatusWarning.Render(fmt.Sprintf("%d problem(s)", n)))
		if m.showErrors {
			for _, e := range r.Errors {
				b.WriteString("\n  " + m.theme.Subtitle.Render(e))
			}
		}
	}
	return m.theme.RoundedBox.Render(b.String())
}
