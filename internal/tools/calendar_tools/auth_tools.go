package calendar_tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/healthcal/internal/server"
	"github.com/teemow/healthcal/internal/tools/common"
)

func registerAuthTools(s *mcpserver.MCPServer, sc *server.ServerContext) {
	statusTool := mcp.NewTool("calendar_auth_status",
		mcp.WithDescription("Report whether a Google Calendar token is stored and still valid"),
	)
	s.AddTool(statusTool, common.InstrumentedToolHandler("calendar_auth_status", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleAuthStatus(ctx, sc)
		}))
}

func handleAuthStatus(ctx context.Context, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	sess := sc.Session()
	rec, err := sess.Tokens.GetStoredToken(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to read token storage: %v", err)), nil
	}
	if rec == nil {
		return mcp.NewToolResultText(notAuthenticatedMessage), nil
	}

	var b strings.Builder
	if sess.Tokens.IsTokenExpired(rec) {
		b.WriteString("Token expired")
		if rec.RefreshToken != "" {
			b.WriteString(" (will be refreshed on the next calendar request)")
		}
		b.WriteString("\n")
	} else {
		b.WriteString("Authenticated\n")
	}
	fmt.Fprintf(&b, "Expires: %s\n", rec.Expiry().Format(time.RFC3339))
	fmt.Fprintf(&b, "Refresh token: %t\n", rec.RefreshToken != "")
	if rec.Scope != "" {
		fmt.Fprintf(&b, "Scope: %s\n", rec.Scope)
	}
	return mcp.NewToolResultText(b.String()), nil
}
