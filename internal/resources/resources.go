package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/healthcal/internal/calendar"
	"github.com/teemow/healthcal/internal/server"
)

// Resource URIs.
const (
	AuthStatusURI     = "healthcal://auth/status"
	UpcomingEventsURI = "healthcal://events/upcoming"
	BackendHealthURI  = "healthcal://backend/health"
)

// upcomingWindow is how far ahead the upcoming events resource looks.
const upcomingWindow = 7 * 24 * time.Hour

// RegisterCalendarResources registers read-only JSON resources describing
// the current authorization, the coming week of medical events and the
// backend's health.
func RegisterCalendarResources(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	authResource := mcp.NewResource(
		AuthStatusURI,
		"Calendar Authorization",
		mcp.WithResourceDescription("Whether a Google Calendar token is stored and when it expires"),
		mcp.WithMIMEType("application/json"),
	)
	s.AddResource(authResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleAuthStatus(ctx, request, sc)
	})

	upcomingResource := mcp.NewResource(
		UpcomingEventsURI,
		"Upcoming Medical Events",
		mcp.WithResourceDescription("Appointments, medication and health reminders in the next seven days"),
		mcp.WithMIMEType("application/json"),
	)
	s.AddResource(upcomingResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleUpcomingEvents(ctx, request, sc)
	})

	backendResource := mcp.NewResource(
		BackendHealthURI,
		"Health Backend Status",
		mcp.WithResourceDescription("Reachability of the medication backend"),
		mcp.WithMIMEType("application/json"),
	)
	s.AddResource(backendResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleBackendHealth(ctx, request, sc)
	})

	return nil
}

func handleAuthStatus(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	sess := sc.Session()
	rec, err := sess.Tokens.GetStoredToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read token: %w", err)
	}

	data := map[string]interface{}{
		"authenticated": false,
		"flowState":     string(sess.Flow.State()),
	}
	if rec != nil {
		data["authenticated"] = !sess.Tokens.IsTokenExpired(rec)
		data["expiresAt"] = rec.Expiry().Format(time.RFC3339)
		data["hasRefreshToken"] = rec.RefreshToken != ""
		data["scope"] = rec.Scope
	}
	return jsonContents(request.Params.URI, data)
}

func handleUpcomingEvents(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	now := sc.Session().Tokens.Now()
	events, err := sc.Calendar().GetEvents(ctx, now, now.Add(upcomingWindow), 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list upcoming events: %w", err)
	}

	summaries := calendar.ToEventSummaries(calendar.FilterEvents(events, calendar.IsMedicalEvent))
	return jsonContents(request.Params.URI, map[string]interface{}{
		"from":   now.Format(time.RFC3339),
		"to":     now.Add(upcomingWindow).Format(time.RFC3339),
		"count":  len(summaries),
		"events": summaries,
	})
}

func handleBackendHealth(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	data := map[string]interface{}{"url": sc.Backend().BaseURL()}
	status, err := sc.Backend().Health(ctx)
	if err != nil {
		data["status"] = "unreachable"
		data["error"] = err.Error()
	} else {
		data["status"] = status.Status
		data["message"] = status.Message
	}
	return jsonContents(request.Params.URI, data)
}

func jsonContents(uri string, data interface{}) ([]mcp.ResourceContents, error) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(jsonData),
		},
	}, nil
}
