package ui

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/fleetdash/internal/entity"
	"github.com/five82/fleetdash/internal/workspace"
)

const (
	statusWidth   = 13
	categoryWidth = 14
	dueWidth      = 10
	severityWidth = 8
	markerWidth   = 2
	minNameWidth  = 12
)

// renderHeader renders the title bar: collection tabs, save indicator and
// connection state.
func (m Model) renderHeader() string {
	styles := m.theme.Styles()

	parts := []string{styles.Logo.Render("fleetdash")}
	for i, kind := range m.kinds {
		label := string(kind)
		if m.hasUnsaved(kind) {
			label += "*"
		}
		if i == m.tab {
			parts = append(parts, styles.AccentText.Bold(true).Underline(true).Render(label))
		} else {
			parts = append(parts, styles.MutedText.Render(label))
		}
	}

	parts = append(parts, styles.SaveStyle(m.save.Phase).Render(m.save.Label()))
	if m.source != workspace.SourceRemote {
		parts = append(parts, styles.WarningText.Render("from "+m.source.String()))
	}
	if m.status.IsOffline() {
		parts = append(parts, styles.DangerText.Render("OFFLINE"))
	} else if !m.status.LastRefresh.IsZero() {
		parts = append(parts, styles.FaintText.Render("refreshed "+m.status.LastRefresh.Format("15:04:05")))
	}

	return styles.Header.Width(m.width).Render(strings.Join(parts, "  "))
}

// tableHeight is the number of rows available for entities.
func (m Model) tableHeight() int {
	// header, column titles, footer summary, footer message
	return max(m.height-4, 1)
}

// renderTable renders column titles and the visible slice of rows.
func (m Model) renderTable() string {
	styles := m.theme.Styles()
	nameWidth := max(m.width-markerWidth-statusWidth-categoryWidth-dueWidth-severityWidth-6, minNameWidth)

	var b strings.Builder
	titles := formatColumns("", "Name", "Status", "Category", "Due", "Severity", nameWidth)
	b.WriteString(styles.MutedText.Bold(true).Render(titles))

	if len(m.rows) == 0 {
		msg := "No items"
		if !m.criteria.IsZero() {
			msg = "No items match the current filters"
		}
		b.WriteString("\n")
		b.WriteString(lipgloss.Place(m.width, m.tableHeight(), lipgloss.Center, lipgloss.Center, styles.MutedText.Render(msg)))
		return b.String()
	}

	start, end := visibleRange(m.selectedRow, len(m.rows), m.tableHeight())
	now := time.Now()
	for i := start; i < end; i++ {
		r := m.rows[i]
		marker := ""
		if r.dirty {
			marker = "●"
		}
		line := formatColumns(marker, r.Name, r.Status.Label(), m.engine.CategoryOf(r.Entity), formatDue(r.Entity), string(r.Severity), nameWidth)
		b.WriteString("\n")
		switch {
		case i == m.selectedRow:
			b.WriteString(styles.Selected.Width(m.width).Render(line))
		case r.IsOverdue(now):
			b.WriteString(styles.DangerText.Render(line))
		default:
			b.WriteString(styles.Text.Render(line))
		}
	}
	for i := end - start; i < m.tableHeight(); i++ {
		b.WriteString("\n")
	}
	return b.String()
}

// renderFooter renders the summary line and either the search box or the last
// action message.
func (m Model) renderFooter() string {
	styles := m.theme.Styles()
	sum := m.view.Summary

	parts := []string{
		fmt.Sprintf("%d of %d", len(m.rows), m.total),
		fmt.Sprintf("overdue %d", sum.Overdue),
		fmt.Sprintf("critical %d", sum.Critical),
		"sort " + m.criteria.Sort.Label(),
	}
	if label := statusFilterLabel(m.criteria.Statuses); label != "" {
		parts = append(parts, "status "+label)
	}
	if m.criteria.OverdueOnly {
		parts = append(parts, "overdue only")
	}
	if m.criteria.Search != "" && !m.searching {
		parts = append(parts, "search /"+m.criteria.Search+"/")
	}
	summary := styles.Footer.Width(m.width).Render(strings.Join(parts, " · "))

	var second string
	switch {
	case m.searching:
		second = m.search.View()
	case m.message != "" && m.messageErr:
		second = styles.DangerText.Render(m.message)
	case m.message != "":
		second = styles.SuccessText.Render(m.message)
	default:
		second = styles.FaintText.Render("? help · / search · o sort · f status · s save · q quit")
	}
	return summary + "\n" + second
}

func statusFilterLabel(statuses []entity.Status) string {
	if len(statuses) == 0 {
		return ""
	}
	labels := make([]string, 0, len(statuses))
	for _, s := range statuses {
		labels = append(labels, s.Label())
	}
	return strings.Join(labels, "/")
}

// visibleRange returns the window of rows to draw so that selected is shown.
func visibleRange(selected, count, height int) (int, int) {
	if count <= height {
		return 0, count
	}
	start := selected - height/2
	if start < 0 {
		start = 0
	}
	if start+height > count {
		start = count - height
	}
	return start, start + height
}

func formatColumns(marker, name, status, category, due, severity string, nameWidth int) string {
	return strings.Join([]string{
		padRight(marker, markerWidth),
		padRight(truncate(name, nameWidth), nameWidth),
		padRight(truncate(status, statusWidth), statusWidth),
		padRight(truncate(category, categoryWidth), categoryWidth),
		padRight(due, dueWidth),
		padRight(truncate(severity, severityWidth), severityWidth),
	}, " ")
}

func formatDue(e entity.Entity) string {
	if e.DueDate == nil {
		return "-"
	}
	return e.DueDate.Format("2006-01-02")
}

// truncate shortens s to width runes, marking the cut with an ellipsis.
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	runes := []rune(s)
	if width == 1 {
		return "…"
	}
	return string(runes[:width-1]) + "…"
}

func padRight(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}
