// Package batch holds the helpers shared by tools that act on several
// calendar events in one call: parsing an ID-or-IDs argument, running an
// operation per ID without aborting on the first failure, and rendering
// the aggregated outcome.
package batch
