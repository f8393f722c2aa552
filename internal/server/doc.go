// Package server puts a session.Session behind HTTP for the serve command.
//
// Routes (write routes only with --yolo):
//
//	GET    /healthz /readyz /healthz/detailed
//	GET    <redirect path>              OAuth callback
//	GET    /api/auth/status
//	POST   /api/auth/login              starts the browser flow on this host
//	POST   /api/auth/cancel             abandons that flow
//	POST   /api/auth/logout /api/auth/refresh
//	GET    /api/events /api/events/month
//	POST   /api/events                  batch create
//	DELETE /api/events/{id}
//	GET    /api/medications
//	POST   /api/medications/sync
//	*      /mcp                         MCP streamable HTTP, when enabled
//
// Prometheus metrics are served by MetricsServer on their own listener.
package server
