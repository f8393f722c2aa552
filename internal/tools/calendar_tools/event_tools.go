package calendar_tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	gcal "google.golang.org/api/calendar/v3"

	"github.com/teemow/healthcal/internal/calendar"
	"github.com/teemow/healthcal/internal/instrumentation"
	"github.com/teemow/healthcal/internal/server"
	"github.com/teemow/healthcal/internal/tools/batch"
	"github.com/teemow/healthcal/internal/tools/common"
)

func registerEventTools(s *mcpserver.MCPServer, sc *server.ServerContext) {
	listEventsTool := mcp.NewTool("calendar_list_events",
		mcp.WithDescription("List events from the primary calendar within a time range, ordered by start time"),
		mcp.WithString("timeMin",
			mcp.Description("Start of the range (RFC3339 or YYYY-MM-DD). Defaults to now."),
		),
		mcp.WithString("timeMax",
			mcp.Description("End of the range (RFC3339 or YYYY-MM-DD). Defaults to seven days after timeMin."),
		),
		mcp.WithNumber("maxResults",
			mcp.Description("Maximum number of events to return (default: 50)"),
		),
		mcp.WithBoolean("medicalOnly",
			mcp.Description("Only return appointments, medication and health reminders"),
		),
	)
	s.AddTool(listEventsTool, common.InstrumentedToolHandlerWithService("calendar_list_events",
		instrumentation.ServiceCalendar, instrumentation.OperationList, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListEvents(ctx, request, sc)
		}))

	monthEventsTool := mcp.NewTool("calendar_month_events",
		mcp.WithDescription("List all events of one calendar month"),
		mcp.WithString("month",
			mcp.Description("Month as YYYY-MM. Defaults to the current month."),
		),
		mcp.WithBoolean("medicalOnly",
			mcp.Description("Only return appointments, medication and health reminders"),
		),
	)
	s.AddTool(monthEventsTool, common.InstrumentedToolHandlerWithService("calendar_month_events",
		instrumentation.ServiceCalendar, instrumentation.OperationList, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleMonthEvents(ctx, request, sc)
		}))

	listCalendarsTool := mcp.NewTool("calendar_list_calendars",
		mcp.WithDescription("List the calendars on the user's calendar list with their access role"),
	)
	s.AddTool(listCalendarsTool, common.InstrumentedToolHandlerWithService("calendar_list_calendars",
		instrumentation.ServiceCalendar, instrumentation.OperationList, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListCalendars(ctx, sc)
		}))

	if sc.ReadOnly() {
		return
	}

	createEventsTool := mcp.NewTool("calendar_create_events",
		mcp.WithDescription("Create one or more events in the primary calendar. Events are created one after another; a failing event does not stop the rest."),
		mcp.WithString("events",
			mcp.Required(),
			mcp.Description(`JSON array of Google Calendar event resources, e.g. [{"summary":"Dentist","start":{"dateTime":"2025-03-10T09:00:00+01:00"},"end":{"dateTime":"2025-03-10T10:00:00+01:00"}}]`),
		),
	)
	s.AddTool(createEventsTool, common.InstrumentedToolHandlerWithService("calendar_create_events",
		instrumentation.ServiceCalendar, instrumentation.OperationCreate, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleCreateEvents(ctx, request, sc)
		}))

	deleteEventTool := mcp.NewTool("calendar_delete_event",
		mcp.WithDescription("Delete one or more events from the primary calendar"),
		mcp.WithString("eventIds",
			mcp.Required(),
			mcp.Description(`Event ID, or a JSON array of event IDs (e.g. ["abc123", "def456"])`),
		),
	)
	s.AddTool(deleteEventTool, common.InstrumentedToolHandlerWithService("calendar_delete_event",
		instrumentation.ServiceCalendar, instrumentation.OperationDelete, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleDeleteEvents(ctx, request, sc)
		}))
}

func handleListEvents(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	timeMin, err := common.TimeArg(args, "timeMin", time.Now())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid timeMin: %v", err)), nil
	}
	timeMax, err := common.TimeArg(args, "timeMax", timeMin.AddDate(0, 0, 7))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid timeMax: %v", err)), nil
	}
	if !timeMax.After(timeMin) {
		return mcp.NewToolResultError("timeMax must be after timeMin"), nil
	}
	maxResults := common.IntArg(args, "maxResults", calendar.DefaultMaxResults)

	events, err := sc.Calendar().GetEvents(ctx, timeMin, timeMax, maxResults)
	if err != nil {
		return calendarError("list events", err), nil
	}
	if common.BoolArg(args, "medicalOnly", false) {
		events = calendar.FilterEvents(events, calendar.IsMedicalEvent)
	}
	return mcp.NewToolResultText(formatEvents(events)), nil
}

func handleMonthEvents(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	month := time.Now()
	if v, ok := common.StringArg(args, "month"); ok {
		parsed, err := time.ParseInLocation("2006-01", v, time.Local)
		if err != nil {
			return mcp.NewToolResultError("month must be YYYY-MM"), nil
		}
		month = parsed
	}

	events, err := sc.Calendar().GetMonthEvents(ctx, month)
	if err != nil {
		return calendarError("list month events", err), nil
	}
	if common.BoolArg(args, "medicalOnly", false) {
		events = calendar.FilterEvents(events, calendar.IsMedicalEvent)
	}
	return mcp.NewToolResultText(formatEvents(events)), nil
}

func handleCreateEvents(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	events, err := parseEvents(request.GetArguments()["events"])
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := sc.Calendar().CreateEvents(ctx, events)
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	if result.SuccessfulEvents == 0 {
		return mcp.NewToolResultError(string(out)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// parseEvents accepts the events argument as a JSON string or as an
// already decoded array.
func parseEvents(raw interface{}) ([]*gcal.Event, error) {
	var data []byte
	switch v := raw.(type) {
	case nil:
		return nil, fmt.Errorf("events is required")
	case string:
		data = []byte(v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("invalid events: %w", err)
		}
		data = encoded
	}

	var events []*gcal.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("events must be a JSON array of event objects: %w", err)
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("events cannot be empty")
	}
	return events, nil
}

func handleDeleteEvents(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	ids, err := batch.ParseStringOrArray(request.GetArguments()["eventIds"], "eventIds")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	results := batch.ProcessBatch(ctx, ids, func(ctx context.Context, id string) (string, error) {
		if err := sc.Calendar().DeleteEvent(ctx, id); err != nil {
			return "", err
		}
		return "deleted", nil
	})

	summary := batch.Summarize(results)
	if summary.Successful == 0 {
		return mcp.NewToolResultError(batch.FormatResults(results)), nil
	}
	return mcp.NewToolResultText(batch.FormatResults(results)), nil
}

func handleListCalendars(ctx context.Context, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	cals, err := sc.Calendar().ListCalendars(ctx)
	if err != nil {
		return calendarError("list calendars", err), nil
	}
	if len(cals) == 0 {
		return mcp.NewToolResultText("No calendars found."), nil
	}
	out, err := json.MarshalIndent(cals, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode calendars: %v", err)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}
