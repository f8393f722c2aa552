// Package backend is a client for the health backend that extracts
// medications from uploaded documents and turns them into calendar events.
//
// Every request carries an X-Request-ID header. Error responses of the
// form {"error": "..."} are returned as *APIError.
package backend
