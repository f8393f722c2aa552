package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/teemow/healthcal/internal/backend"
	"github.com/teemow/healthcal/internal/calendar"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	medicalStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("170")).Padding(0, 1)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true)
)

const whenLayout = "Mon 2006-01-02 15:04"

// renderEvents prints events as a table, highlighting medical ones.
func renderEvents(w io.Writer, events []calendar.EventSummary) {
	if len(events) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No events found."))
		return
	}

	rows := make([][]string, 0, len(events))
	for _, ev := range events {
		when := ev.Start.Format(whenLayout)
		if ev.AllDay {
			when = ev.Start.Format("Mon 2006-01-02") + " (all day)"
		}
		rows = append(rows, []string{when, ev.Summary, string(ev.Kind), ev.Location, ev.ID})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("WHEN", "SUMMARY", "KIND", "LOCATION", "ID").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if events[row].Medical {
				return medicalStyle
			}
			return cellStyle
		})
	fmt.Fprintln(w, t.Render())
}

// renderBatch prints the per-event outcome of a batch create.
func renderBatch(w io.Writer, result calendar.BatchResult) {
	rows := make([][]string, 0, len(result.Results))
	for _, r := range result.Results {
		detail := r.ID
		if r.Error != "" {
			detail = r.Error
		}
		rows = append(rows, []string{fmt.Sprint(r.Index + 1), r.Summary, r.Status, detail})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("#", "SUMMARY", "STATUS", "ID / ERROR").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 2 {
				if result.Results[row].Error != "" {
					return errorStyle.Padding(0, 1)
				}
				return okStyle.Padding(0, 1)
			}
			return cellStyle
		})
	fmt.Fprintln(w, t.Render())
	fmt.Fprintf(w, "%d of %d events created, %d failed\n",
		result.SuccessfulEvents, result.TotalEvents, result.FailedEvents)
}

// renderMedications prints the medications the backend extracted.
func renderMedications(w io.Writer, meds []backend.Medication) {
	if len(meds) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No medications found."))
		return
	}

	rows := make([][]string, 0, len(meds))
	for _, m := range meds {
		rows = append(rows, []string{m.Name, m.Status, m.Frequency, strings.Join(m.Times, ", ")})
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("MEDICATION", "STATUS", "FREQUENCY", "TIMES").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	fmt.Fprintln(w, t.Render())
}

// renderCalendars prints the calendar list.
func renderCalendars(w io.Writer, cals []calendar.CalendarInfo) {
	if len(cals) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No calendars found."))
		return
	}
	rows := make([][]string, 0, len(cals))
	for _, c := range cals {
		name := c.Summary
		if c.Primary {
			name += " (primary)"
		}
		rows = append(rows, []string{name, c.AccessRole, c.TimeZone, c.ID})
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("CALENDAR", "ACCESS", "TIME ZONE", "ID").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	fmt.Fprintln(w, t.Render())
}

// renderKeyValues prints aligned label: value lines.
func renderKeyValues(w io.Writer, pairs [][2]string) {
	width := 0
	for _, p := range pairs {
		width = max(width, lipgloss.Width(p[0]))
	}
	label := lipgloss.NewStyle().Bold(true).Width(width + 2)
	for _, p := range pairs {
		fmt.Fprintln(w, lipgloss.JoinHorizontal(lipgloss.Top, label.Render(p[0]+":"), p[1]))
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
