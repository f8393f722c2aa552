package calendar_tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/healthcal/internal/backend"
	"github.com/teemow/healthcal/internal/instrumentation"
	"github.com/teemow/healthcal/internal/server"
	"github.com/teemow/healthcal/internal/tools/common"
)

// registerHealthTools exposes the backend's document and chat endpoints.
// Uploading reads files on the server host and clearing history deletes
// data, so both need a writable server.
func registerHealthTools(s *mcpserver.MCPServer, sc *server.ServerContext) {
	documentArg := mcp.WithString("document",
		mcp.Required(),
		mcp.Description("OCR document as JSON, as returned by health_upload_document"),
	)

	insightsTool := mcp.NewTool("health_insights",
		mcp.WithDescription("Generate plain-language health insights from an OCR document"),
		documentArg,
	)
	s.AddTool(insightsTool, common.InstrumentedToolHandlerWithService("health_insights",
		instrumentation.ServiceBackend, instrumentation.OperationGenerate, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGenerate(ctx, request, sc.Backend().HealthInsights, false)
		}))

	recommendationsTool := mcp.NewTool("health_recommendations",
		mcp.WithDescription("Generate prioritized health recommendations from an OCR document"),
		documentArg,
	)
	s.AddTool(recommendationsTool, common.InstrumentedToolHandlerWithService("health_recommendations",
		instrumentation.ServiceBackend, instrumentation.OperationGenerate, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGenerate(ctx, request, sc.Backend().HealthRecommendations, true)
		}))

	chatTool := mcp.NewTool("health_chat",
		mcp.WithDescription("Ask the backend's health assistant a question"),
		mcp.WithString("message",
			mcp.Required(),
			mcp.Description("The question"),
		),
		mcp.WithBoolean("includeHealthContext",
			mcp.Description("Include the user's stored health insights (default: true)"),
		),
	)
	s.AddTool(chatTool, common.InstrumentedToolHandlerWithService("health_chat",
		instrumentation.ServiceBackend, instrumentation.OperationChat, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleChat(ctx, request, sc)
		}))

	historyTool := mcp.NewTool("health_chat_history",
		mcp.WithDescription("Show stored messages of the health assistant conversation"),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Messages per page, 1 to %d (default: %d)", backend.MaxHistoryLimit, backend.DefaultHistoryLimit)),
		),
		mcp.WithNumber("offset",
			mcp.Description("Messages to skip"),
		),
	)
	s.AddTool(historyTool, common.InstrumentedToolHandlerWithService("health_chat_history",
		instrumentation.ServiceBackend, instrumentation.OperationList, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleChatHistory(ctx, request, sc)
		}))

	if sc.ReadOnly() {
		return
	}

	uploadTool := mcp.NewTool("health_upload_document",
		mcp.WithDescription("Send a PDF on this host to the backend for OCR and return the extracted document"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path of the PDF file"),
		),
	)
	s.AddTool(uploadTool, common.InstrumentedToolHandlerWithService("health_upload_document",
		instrumentation.ServiceBackend, instrumentation.OperationUpload, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleUploadDocument(ctx, request, sc)
		}))

	clearTool := mcp.NewTool("health_clear_chat_history",
		mcp.WithDescription("Delete the stored health assistant conversation"),
	)
	s.AddTool(clearTool, common.InstrumentedToolHandlerWithService("health_clear_chat_history",
		instrumentation.ServiceBackend, instrumentation.OperationDelete, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			res, err := sc.Backend().ClearChatHistory(ctx, sessionToken(sc))
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("Failed to clear chat history: %v", err)), nil
			}
			return mcp.NewToolResultText(res.Message), nil
		}))
}

func sessionToken(sc *server.ServerContext) string {
	return sc.Session().Config.Backend.SessionToken
}

type generateFunc func(ctx context.Context, document json.RawMessage) (*backend.InsightsResult, error)

func handleGenerate(ctx context.Context, request mcp.CallToolRequest, generate generateFunc, recommendations bool) (*mcp.CallToolResult, error) {
	doc, ok := common.StringArg(request.GetArguments(), "document")
	if !ok {
		return mcp.NewToolResultError("document is required"), nil
	}
	res, err := generate(ctx, json.RawMessage(doc))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to generate: %v", err)), nil
	}

	items := res.Data.Insights
	if recommendations {
		items = res.Data.Recommendations
	}
	if len(items) == 0 {
		return mcp.NewToolResultText("Nothing was generated."), nil
	}
	var b strings.Builder
	for i, it := range items {
		fmt.Fprintf(&b, "%d. %s", i+1, it.Title)
		if it.Priority != "" {
			fmt.Fprintf(&b, " [%s]", it.Priority)
		}
		fmt.Fprintf(&b, "\n   %s\n", it.Description)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func handleChat(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	message, ok := common.StringArg(args, "message")
	if !ok {
		return mcp.NewToolResultError("message is required"), nil
	}
	reply, err := sc.Backend().SendChat(ctx, sessionToken(sc), message, common.BoolArg(args, "includeHealthContext", true))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to send message: %v", err)), nil
	}
	if reply.Response == "" {
		return mcp.NewToolResultError(fmt.Sprintf("The assistant did not answer: %s", reply.Message)), nil
	}
	return mcp.NewToolResultText(reply.Response), nil
}

func handleChatHistory(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	h, err := sc.Backend().ChatHistory(ctx, sessionToken(sc),
		common.IntArg(args, "limit", backend.DefaultHistoryLimit), common.IntArg(args, "offset", 0))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get chat history: %v", err)), nil
	}
	if len(h.Messages) == 0 {
		return mcp.NewToolResultText("No messages."), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d messages:\n\n", len(h.Messages), h.Total)
	for _, m := range h.Messages {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func handleUploadDocument(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	path, ok := common.StringArg(request.GetArguments(), "path")
	if !ok {
		return mcp.NewToolResultError("path is required"), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to open document: %v", err)), nil
	}
	defer f.Close()

	res, err := sc.Backend().UploadDocument(ctx, path, f)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to upload document: %v", err)), nil
	}
	return mcp.NewToolResultText(string(res.Data)), nil
}
