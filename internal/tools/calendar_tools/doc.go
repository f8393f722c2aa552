// Package calendar_tools exposes the Google Calendar client as MCP tools.
//
// Read tools (auth status, event listing, month view, medication
// extraction) are always registered. Tools that create or delete events
// are registered only when the server runs with writes enabled.
package calendar_tools
