package backend

import (
	"encoding/json"
	"fmt"

	calendar "google.golang.org/api/calendar/v3"
)

// Medication statuses reported by the backend.
const (
	MedicationActive       = "active"
	MedicationDiscontinued = "discontinued"
)

// Medication is one medication extracted from uploaded documents.
type Medication struct {
	Name      string   `json:"name"`
	Status    string   `json:"status"`
	Timing    []string `json:"timing,omitempty"`
	Times     []string `json:"times,omitempty"`
	Frequency string   `json:"frequency,omitempty"`
	Notes     string   `json:"notes,omitempty"`
	// SourceOCRID is kept raw; the backend does not fix its type.
	SourceOCRID json.RawMessage `json:"source_ocr_id,omitempty"`
	SourceDate  string          `json:"source_date,omitempty"`
}

// MedicationSummary groups medications by status.
type MedicationSummary struct {
	TotalActive             int             `json:"total_active"`
	TotalDiscontinued       int             `json:"total_discontinued"`
	ActiveMedications       []Medication    `json:"active_medications"`
	DiscontinuedMedications []Medication    `json:"discontinued_medications"`
	NextDoseTimes           json.RawMessage `json:"next_dose_times,omitempty"`
	Summary                 string          `json:"summary"`
}

// ExtractResult is the response of GET /api/medications/extract.
type ExtractResult struct {
	Success        bool              `json:"success"`
	Medications    []Medication      `json:"medications"`
	Summary        MedicationSummary `json:"summary"`
	TotalExtracted int               `json:"total_extracted"`
}

// CalendarEventsRequest is the body of POST /api/medications/calendar-events.
type CalendarEventsRequest struct {
	// StartDate is YYYY-MM-DD; empty lets the backend pick today.
	StartDate    string `json:"start_date,omitempty"`
	DurationDays int    `json:"duration_days"`
}

// CalendarEventsResult carries Google event payloads built from the
// active medications.
type CalendarEventsResult struct {
	Success      bool              `json:"success"`
	Message      string            `json:"message"`
	Events       []*calendar.Event `json:"events"`
	Medications  []Medication      `json:"medications"`
	Summary      MedicationSummary `json:"summary"`
	Instructions string            `json:"instructions,omitempty"`
}

// ClearResult is the response of the clear-next-week endpoint.
type ClearResult struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	EventsCleared int    `json:"events_cleared"`
}

// HealthStatus is the response of GET /api/health.
type HealthStatus struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// OCRResult is the response of the PDF upload. Data is the OCR document
// as the backend structures it; it is passed back verbatim to the insight
// endpoints.
type OCRResult struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Insight is one generated insight or recommendation.
type Insight struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	// Priority is set on recommendations only.
	Priority string `json:"priority,omitempty"`
}

// InsightsResult is the response of both insight endpoints. Insights is
// filled by get-health-insights, Recommendations by
// get-health-recommendations.
type InsightsResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		Insights        []Insight `json:"insights,omitempty"`
		Recommendations []Insight `json:"recommendations,omitempty"`
	} `json:"data"`
}

// ChatRequest is the body of POST /api/chat/health-chat.
type ChatRequest struct {
	Message              string `json:"message"`
	IncludeHealthContext bool   `json:"include_health_context"`
}

// ChatReply is the assistant's answer.
type ChatReply struct {
	Success               bool   `json:"success"`
	Response              string `json:"response"`
	Message               string `json:"message"`
	HealthContextIncluded bool   `json:"health_context_included"`
}

// ChatMessage is one stored message.
type ChatMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at,omitempty"`
}

// ChatHistory is one page of stored messages.
type ChatHistory struct {
	Success  bool          `json:"success"`
	Messages []ChatMessage `json:"messages"`
	Total    int           `json:"total"`
	Limit    int           `json:"limit"`
	Offset   int           `json:"offset"`
}

// StatusResult is the generic success/message response.
type StatusResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// User is a backend account.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	CreatedAt string `json:"created_at,omitempty"`
}

// RegisterRequest is the body of POST /api/auth/register.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResult is returned by register and login. AccessToken is the
// backend session token, sent as a bearer on chat and session calls.
type AuthResult struct {
	Message     string `json:"message"`
	User        User   `json:"user"`
	AccessToken string `json:"access_token"`
}

// SessionInfo is the response of GET /api/auth/session.
type SessionInfo struct {
	Message string `json:"message"`
	User    User   `json:"user"`
}

// APIError is a non-2xx backend response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend error: status %d", e.Status)
	}
	return fmt.Sprintf("backend error (status %d): %s", e.Status, e.Message)
}
