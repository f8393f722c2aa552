package calendar_tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/healthcal/internal/backend"
	"github.com/teemow/healthcal/internal/instrumentation"
	"github.com/teemow/healthcal/internal/server"
	"github.com/teemow/healthcal/internal/tools/common"
)

func registerMedicationTools(s *mcpserver.MCPServer, sc *server.ServerContext) {
	extractTool := mcp.NewTool("calendar_extract_medications",
		mcp.WithDescription("Ask the health backend which medications appear in the uploaded documents"),
	)
	s.AddTool(extractTool, common.InstrumentedToolHandlerWithService("calendar_extract_medications",
		instrumentation.ServiceBackend, instrumentation.OperationExtract, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleExtractMedications(ctx, sc)
		}))

	if sc.ReadOnly() {
		return
	}

	syncTool := mcp.NewTool("calendar_sync_medications",
		mcp.WithDescription("Create medication reminder events in the primary calendar from the health backend's schedule"),
		mcp.WithString("startDate",
			mcp.Description("First day of reminders (YYYY-MM-DD). Defaults to today."),
		),
		mcp.WithNumber("durationDays",
			mcp.Description(fmt.Sprintf("Number of days to schedule (default: %d)", backend.DefaultDurationDays)),
		),
	)
	s.AddTool(syncTool, common.InstrumentedToolHandlerWithService("calendar_sync_medications",
		instrumentation.ServiceCalendar, instrumentation.OperationCreate, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSyncMedications(ctx, request, sc)
		}))
}

func handleExtractMedications(ctx context.Context, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	res, err := sc.Backend().ExtractMedications(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to extract medications: %v", err)), nil
	}
	if len(res.Medications) == 0 {
		return mcp.NewToolResultText("No medications found."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d medications (%d active, %d discontinued):\n\n",
		len(res.Medications), res.Summary.TotalActive, res.Summary.TotalDiscontinued)
	for i, med := range res.Medications {
		fmt.Fprintf(&b, "%d. %s [%s]\n", i+1, med.Name, med.Status)
		if med.Frequency != "" {
			fmt.Fprintf(&b, "   Frequency: %s\n", med.Frequency)
		}
		if len(med.Times) > 0 {
			fmt.Fprintf(&b, "   Times: %s\n", strings.Join(med.Times, ", "))
		}
		if med.Notes != "" {
			fmt.Fprintf(&b, "   Notes: %s\n", med.Notes)
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

func handleSyncMedications(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	var start time.Time
	if v, ok := common.StringArg(args, "startDate"); ok {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return mcp.NewToolResultError("startDate must be YYYY-MM-DD"), nil
		}
		start = parsed
	}
	days := common.IntArg(args, "durationDays", backend.DefaultDurationDays)

	res, err := sc.Backend().MedicationCalendarEvents(ctx, start, days)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get medication schedule: %v", err)), nil
	}
	if len(res.Events) == 0 {
		return mcp.NewToolResultText("The backend returned no medication events to create."), nil
	}

	result := sc.Calendar().CreateEvents(ctx, res.Events)
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	if result.SuccessfulEvents == 0 {
		return mcp.NewToolResultError(string(out)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}
