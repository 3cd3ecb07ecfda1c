// Package display provides terminal formatting for mailtriage output.
package display

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/daviddao/mailtriage/internal/types"
)

var (
	// Styles
	Muted    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
	Dim      = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ca3af"))
	Bold     = lipgloss.NewStyle().Bold(true)
	Success  = lipgloss.NewStyle().Foreground(lipgloss.Color("#16a34a"))
	ErrStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#dc2626"))

	UrgentStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#dc2626"))
	AttentionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#d97706"))
	InfoStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#2563eb"))
	NoiseStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ca3af"))
)

// Tier groups categories by how soon they need a look.
type Tier int

const (
	TierInfo Tier = iota
	TierUrgent
	TierAttention
	TierNoise
)

// CategoryTier returns the display tier for a category.
func CategoryTier(c types.Category) Tier {
	switch c {
	case types.CategoryActionRequired, types.CategoryDeadlineApproaching, types.CategoryPhishing:
		return TierUrgent
	case types.CategoryMeeting, types.CategoryFollowUp, types.CategoryBilling, types.CategoryUnrecognizedSender:
		return TierAttention
	case types.CategorySpam, types.CategoryPromotional, types.CategoryOther:
		return TierNoise
	default:
		return TierInfo
	}
}

// CategoryDot returns a colored dot for a category.
func CategoryDot(c types.Category) string {
	switch CategoryTier(c) {
	case TierUrgent:
		return UrgentStyle.Render("●")
	case TierAttention:
		return AttentionStyle.Render("○")
	case TierNoise:
		return NoiseStyle.Render("◌")
	default:
		return InfoStyle.Render("·")
	}
}

// CategoryLabel returns the category name padded to width and styled by tier.
func CategoryLabel(c types.Category, width int) string {
	label := fmt.Sprintf("%-*s", width, string(c))
	switch CategoryTier(c) {
	case TierUrgent:
		return UrgentStyle.Render(label)
	case TierAttention:
		return AttentionStyle.Render(label)
	case TierNoise:
		return NoiseStyle.Render(label)
	default:
		return InfoStyle.Render(label)
	}
}

// CategoryBadge prints a styled category label.
func CategoryBadge(c types.Category) string {
	return CategoryDot(c) + " " + CategoryLabel(c, 0)
}

// AccountLabel returns a short label for an account.
// Derives the label from the domain (e.g., "user@example.com" -> "example").
func AccountLabel(account string) string {
	if idx := strings.Index(account, "@"); idx > 0 {
		domain := account[idx+1:]
		if dotIdx := strings.Index(domain, "."); dotIdx > 0 {
			return domain[:dotIdx]
		}
		return domain
	}
	return account
}

// Truncate shortens a string to maxLen runes, adding ellipsis if needed.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// SuccessMsg writes a green checkmark + message.
func SuccessMsg(w io.Writer, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(w, Success.Render("✓")+" "+msg)
}

// ErrorMsg writes a red X + message.
func ErrorMsg(w io.Writer, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(w, ErrStyle.Render("✗")+" "+msg)
}

// Header writes a section header.
func Header(w io.Writer, title string) {
	fmt.Fprintln(w, Bold.Render(title))
}

// SubHeader writes a dim subsection label.
func SubHeader(w io.Writer, title string) {
	fmt.Fprintln(w, Muted.Render(title))
}

const categoryWidth = 26

// MessageLine formats one outcome as a single row.
func MessageLine(o types.MessageOutcome) string {
	subject := o.Subject
	if subject == "" {
		subject = Dim.Render("(no subject)")
	} else {
		subject = Truncate(subject, 60)
	}

	if o.Category == "" {
		return fmt.Sprintf("  %s %-*s %s  %s",
			ErrStyle.Render("✗"), categoryWidth, "", Muted.Render(o.ID), ErrStyle.Render(o.Error))
	}

	mark := Success.Render("✓")
	switch {
	case o.Error != "":
		mark = ErrStyle.Render("✗")
	case !o.Labeled:
		mark = Dim.Render("-")
	}
	line := fmt.Sprintf("  %s %s %s %s  %s",
		mark, CategoryDot(o.Category), CategoryLabel(o.Category, categoryWidth), Muted.Render(o.ID), subject)
	if o.Error != "" {
		line += "  " + ErrStyle.Render(o.Error)
	}
	return line
}

// Summary writes a run summary: one row per message, then the totals.
func Summary(w io.Writer, s *types.RunSummary) {
	Header(w, "Triage run "+s.RunID)
	SubHeader(w, fmt.Sprintf("window %s · %d unread", s.Window, s.Found))
	if len(s.Messages) > 0 {
		fmt.Fprintln(w)
	}
	for _, o := range s.Messages {
		fmt.Fprintln(w, MessageLine(o))
	}

	fmt.Fprintln(w)
	totals := fmt.Sprintf("%d processed, %d labeled", s.Processed, s.Labeled)
	if s.Failed > 0 {
		totals += ", " + ErrStyle.Render(fmt.Sprintf("%d failed", s.Failed))
	}
	fmt.Fprintln(w, totals)

	counts := CategoryCounts(s.Messages)
	for _, c := range types.AllLabels() {
		if n := counts[c]; n > 0 {
			fmt.Fprintf(w, "  %s %s %d\n", CategoryDot(c), CategoryLabel(c, categoryWidth), n)
		}
	}
}

// CategoryCounts tallies outcomes per category, skipping unfetched messages.
func CategoryCounts(outcomes []types.MessageOutcome) map[types.Category]int {
	counts := make(map[types.Category]int)
	for _, o := range outcomes {
		if o.Category != "" {
			counts[o.Category]++
		}
	}
	return counts
}
