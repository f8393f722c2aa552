package calendar_tools

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	gcal "google.golang.org/api/calendar/v3"

	"github.com/teemow/healthcal/internal/calendar"
	"github.com/teemow/healthcal/internal/server"
)

const notAuthenticatedMessage = `Google Calendar is not authorized.

Run "healthcal auth login" in a terminal to open the Google consent page.
The token is stored locally and refreshed automatically afterwards.`

// RegisterCalendarTools registers the calendar tools with the MCP server.
// Tools that change the calendar are only registered when the server is
// not read-only.
func RegisterCalendarTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	if sc == nil || sc.Session() == nil {
		return errors.New("server context has no session")
	}

	registerAuthTools(s, sc)
	registerEventTools(s, sc)
	registerMedicationTools(s, sc)
	registerHealthTools(s, sc)
	return nil
}

// calendarError turns a calendar client error into a tool error result.
func calendarError(action string, err error) *mcp.CallToolResult {
	if errors.Is(err, calendar.ErrNoToken) || errors.Is(err, calendar.ErrUnauthorized) {
		return mcp.NewToolResultError(notAuthenticatedMessage)
	}
	return mcp.NewToolResultError(fmt.Sprintf("Failed to %s: %v", action, err))
}

// formatEvents renders events the way the list tools return them.
func formatEvents(events []*gcal.Event) string {
	if len(events) == 0 {
		return "No events found."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d events:\n\n", len(events))
	for i, summary := range calendar.ToEventSummaries(events) {
		fmt.Fprintf(&b, "%d. %s\n", i+1, summary.Summary)
		fmt.Fprintf(&b, "   ID: %s\n", summary.ID)
		if summary.AllDay {
			fmt.Fprintf(&b, "   Date: %s (all day)\n", summary.Start.Format("2006-01-02"))
		} else {
			fmt.Fprintf(&b, "   Start: %s\n", summary.Start.Format(time.RFC3339))
			fmt.Fprintf(&b, "   End: %s\n", summary.End.Format(time.RFC3339))
		}
		if summary.Location != "" {
			fmt.Fprintf(&b, "   Location: %s\n", summary.Location)
		}
		if summary.Medical {
			fmt.Fprintf(&b, "   Medical: %s\n", summary.Kind)
		}
		b.WriteString("\n")
	}
	return b.String()
}
