// Package resources exposes read-only MCP resources: the calendar
// authorization state, the coming week's medical events and the health
// backend's status. Each resource is served as JSON.
package resources
