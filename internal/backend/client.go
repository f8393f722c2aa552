package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	calendar "google.golang.org/api/calendar/v3"

	"github.com/teemow/healthcal/internal/instrumentation"
	"github.com/teemow/healthcal/internal/logging"
)

// DefaultBaseURL is where the health backend listens by default.
const DefaultBaseURL = "http://localhost:5005"

// RequestIDHeader carries a per-request correlation id.
const RequestIDHeader = "X-Request-ID"

// DefaultDurationDays is how many days of medication events are requested.
const DefaultDurationDays = 7

// Client talks to the health backend's JSON API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	policy     *bluemonday.Policy
	logger     logging.Logger
	metrics    *instrumentation.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a backend client. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		policy:  bluemonday.StrictPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	c.logger = logging.OrDefault(c.logger)
	return c
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ExtractMedications returns the medications found in uploaded documents.
func (c *Client) ExtractMedications(ctx context.Context) (*ExtractResult, error) {
	var out ExtractResult
	if err := c.do(ctx, instrumentation.OperationExtract, http.MethodGet, "/api/medications/extract", nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MedicationCalendarEvents asks the backend for medication reminder events
// starting at startDate for durationDays days. Text fields of the returned
// events are stripped of markup.
func (c *Client) MedicationCalendarEvents(ctx context.Context, startDate time.Time, durationDays int) (*CalendarEventsResult, error) {
	if durationDays <= 0 {
		durationDays = DefaultDurationDays
	}
	req := CalendarEventsRequest{DurationDays: durationDays}
	if !startDate.IsZero() {
		req.StartDate = startDate.Format("2006-01-02")
	}

	var out CalendarEventsResult
	if err := c.do(ctx, instrumentation.OperationList, http.MethodPost, "/api/medications/calendar-events", req, "", &out); err != nil {
		return nil, err
	}
	if out.Events == nil {
		out.Events = []*calendar.Event{}
	}
	for _, ev := range out.Events {
		c.sanitizeEvent(ev)
	}
	return &out, nil
}

// ClearNextWeekMedicalDates asks the backend to delete medical events in
// the next seven days, using accessToken against the user's calendar.
func (c *Client) ClearNextWeekMedicalDates(ctx context.Context, accessToken string) (*ClearResult, error) {
	if accessToken == "" {
		return nil, errors.New("access token is required")
	}
	var out ClearResult
	if err := c.do(ctx, instrumentation.OperationDelete, http.MethodDelete, "/api/calendar/clear-next-week-medical-dates", nil, accessToken, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health checks that the backend is up.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	var out HealthStatus
	if err := c.do(ctx, instrumentation.OperationHealth, http.MethodGet, "/api/health", nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) sanitizeEvent(ev *calendar.Event) {
	if ev == nil {
		return
	}
	ev.Summary = c.sanitize(ev.Summary)
	ev.Description = c.sanitize(ev.Description)
	ev.Location = c.sanitize(ev.Location)
}

// sanitize strips all markup and returns plain text.
func (c *Client) sanitize(s string) string {
	if s == "" {
		return s
	}
	return html.UnescapeString(c.policy.Sanitize(s))
}

func (c *Client) do(ctx context.Context, operation, method, path string, body any, bearer string, out any) error {
	var (
		reader      io.Reader
		contentType string
	)
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
		contentType = "application/json"
	}
	return c.send(ctx, operation, method, path, contentType, reader, bearer, out)
}

// send performs one request and decodes a 2xx JSON body into out. Error
// statuses become an *APIError carrying the backend's error or message.
func (c *Client) send(ctx context.Context, operation, method, path, contentType string, body io.Reader, bearer string, out any) (err error) {
	ctx, span := instrumentation.StartClientSpan(ctx, instrumentation.ServiceBackend, operation)
	start := time.Now()
	defer func() {
		status := instrumentation.StatusSuccess
		if err != nil {
			status = instrumentation.StatusError
		}
		c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceBackend, operation, status, time.Since(start))
		instrumentation.EndSpan(span, err)
	}()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set(RequestIDHeader, requestID)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("backend request failed", logging.Operation(operation), "request_id", requestID, logging.Err(err))
		return fmt.Errorf("backend request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read backend response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &payload) == nil {
			apiErr.Message = payload.Error
			if apiErr.Message == "" {
				apiErr.Message = payload.Message
			}
		}
		c.logger.Warn("backend returned error status",
			logging.Operation(operation), "request_id", requestID, "http_status", resp.StatusCode, logging.Err(apiErr))
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode backend response: %w", err)
	}
	return nil
}
