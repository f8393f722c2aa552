// Package cmd implements the healthcal command-line interface.
//
// Commands:
//   - auth: log in to Google Calendar, inspect, refresh or clear the stored token
//   - events: list, create and delete calendar events
//   - meds: sync medication reminders from the health backend
//   - serve: run the MCP server (stdio) or the HTTP API with MCP mounted
//   - generate-docs: print markdown documentation for the MCP tools
//   - version: print the version
package cmd
