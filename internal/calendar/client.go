package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/teemow/healthcal/internal/google"
	"github.com/teemow/healthcal/internal/instrumentation"
	"github.com/teemow/healthcal/internal/logging"
	"github.com/teemow/healthcal/internal/token"
)

const (
	// DefaultEndpoint is the Calendar API base URL.
	DefaultEndpoint = "https://www.googleapis.com/calendar/v3/"

	// DefaultCalendarID is the calendar every operation targets.
	DefaultCalendarID = "primary"

	// DefaultMaxResults is used when GetEvents is called with maxResults <= 0.
	DefaultMaxResults = 50

	// DefaultWriteRate limits batch writes to this many events per second.
	DefaultWriteRate = 5
)

// Client reads and writes events on the user's primary calendar using the
// stored access token. A 401 triggers exactly one refresh and one retry.
type Client struct {
	tokens     google.TokenProvider
	httpClient *http.Client
	endpoint   string
	calendarID string
	limiter    *rate.Limiter
	logger     logging.Logger
	metrics    *instrumentation.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint overrides the Calendar API base URL.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) { c.endpoint = endpoint }
}

// WithCalendarID targets a calendar other than the primary one.
func WithCalendarID(id string) Option {
	return func(c *Client) { c.calendarID = id }
}

// WithHTTPClient sets the base client. Its transport is wrapped with the
// bearer token for every request.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithWriteRate sets the batch write rate in events per second. A value
// <= 0 disables limiting.
func WithWriteRate(perSecond float64) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a Calendar client that authorizes with tokens.
func NewClient(tokens google.TokenProvider, opts ...Option) *Client {
	c := &Client{
		tokens:     tokens,
		endpoint:   DefaultEndpoint,
		calendarID: DefaultCalendarID,
		limiter:    rate.NewLimiter(rate.Limit(DefaultWriteRate), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = google.NewHTTPClient()
	}
	c.logger = logging.OrDefault(c.logger)
	return c
}

// service builds a Calendar service that sends rec's access token as is.
func (c *Client) service(ctx context.Context, rec *token.TokenRecord) (*calendar.Service, error) {
	base := c.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	hc := &http.Client{
		Timeout: c.httpClient.Timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{
				AccessToken: rec.AccessToken,
				TokenType:   "Bearer",
			}),
			Base: base,
		},
	}
	svc, err := calendar.NewService(ctx, option.WithHTTPClient(hc), option.WithEndpoint(c.endpoint))
	if err != nil {
		return nil, fmt.Errorf("failed to create Calendar service: %w", err)
	}
	return svc, nil
}

// call runs fn with an authorized service. On a 401 it refreshes the token
// once and runs fn again; any further failure is returned.
func (c *Client) call(ctx context.Context, operation string, fn func(*calendar.Service) error) (err error) {
	ctx, span := instrumentation.StartClientSpan(ctx, instrumentation.ServiceCalendar, operation)
	start := time.Now()
	defer func() {
		status := instrumentation.StatusSuccess
		if err != nil {
			status = instrumentation.StatusError
		}
		c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceCalendar, operation, status, time.Since(start))
		instrumentation.EndSpan(span, err)
	}()

	err = c.attempt(ctx, fn)
	if !errors.Is(err, ErrUnauthorized) {
		return err
	}

	c.logger.Info("calendar request unauthorized, refreshing token", logging.Operation(operation))
	span.SetAttributes(attribute.Bool(instrumentation.SpanAttrRetried, true))
	if !c.tokens.RefreshToken(ctx) {
		c.logger.Warn("token refresh failed", logging.Operation(operation))
		return err
	}
	return c.attempt(ctx, fn)
}

func (c *Client) attempt(ctx context.Context, fn func(*calendar.Service) error) error {
	rec, err := c.tokens.GetStoredToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to read token: %w", err)
	}
	if rec == nil {
		return ErrNoToken
	}
	svc, err := c.service(ctx, rec)
	if err != nil {
		return err
	}
	return classify(fn(svc))
}

// classify maps Calendar API errors onto HTTPError and ErrNetwork.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = strings.TrimSpace(apiErr.Body)
		}
		return &HTTPError{Status: apiErr.Code, Message: msg}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrNetwork, err)
}

// GetEvents returns single-occurrence events between timeMin and timeMax
// ordered by start time, following pages until maxResults events are
// collected. maxResults <= 0 means DefaultMaxResults.
func (c *Client) GetEvents(ctx context.Context, timeMin, timeMax time.Time, maxResults int) ([]*calendar.Event, error) {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	var events []*calendar.Event
	err := c.call(ctx, instrumentation.OperationList, func(svc *calendar.Service) error {
		events = make([]*calendar.Event, 0)
		pageToken := ""
		for len(events) < maxResults {
			call := svc.Events.List(c.calendarID).
				Context(ctx).
				TimeMin(timeMin.Format(time.RFC3339)).
				TimeMax(timeMax.Format(time.RFC3339)).
				MaxResults(int64(maxResults - len(events))).
				SingleEvents(true).
				OrderBy("startTime")
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}

			page, err := call.Do()
			if err != nil {
				return err
			}
			events = append(events, page.Items...)
			if page.NextPageToken == "" {
				break
			}
			pageToken = page.NextPageToken
		}
		if len(events) > maxResults {
			events = events[:maxResults]
		}
		return nil
	})
	if err != nil {
		c.logger.Warn("failed to fetch calendar events", logging.Operation("calendar.list"), logging.Err(err))
		return nil, err
	}

	c.logger.Debug("fetched calendar events", logging.Operation("calendar.list"), "count", len(events))
	return events, nil
}

// ListCalendars returns the calendars on the user's calendar list, all
// pages included.
func (c *Client) ListCalendars(ctx context.Context) ([]CalendarInfo, error) {
	var out []CalendarInfo
	err := c.call(ctx, instrumentation.OperationList, func(svc *calendar.Service) error {
		out = make([]CalendarInfo, 0)
		return svc.CalendarList.List().Context(ctx).Pages(ctx, func(page *calendar.CalendarList) error {
			for _, entry := range page.Items {
				out = append(out, CalendarInfo{
					ID:         entry.Id,
					Summary:    entry.Summary,
					TimeZone:   entry.TimeZone,
					AccessRole: entry.AccessRole,
					Primary:    entry.Primary,
				})
			}
			return nil
		})
	})
	if err != nil {
		c.logger.Warn("failed to list calendars", logging.Operation("calendar.list_calendars"), logging.Err(err))
		return nil, err
	}
	return out, nil
}

// MonthRange returns the first instant of month's month through 23:59:59
// of its last day, in month's location.
func MonthRange(month time.Time) (time.Time, time.Time) {
	y, m, _ := month.Date()
	loc := month.Location()
	start := time.Date(y, m, 1, 0, 0, 0, 0, loc)
	end := time.Date(y, m+1, 0, 23, 59, 59, 0, loc)
	return start, end
}

// GetMonthEvents returns the events of the month containing month.
func (c *Client) GetMonthEvents(ctx context.Context, month time.Time) ([]*calendar.Event, error) {
	start, end := MonthRange(month)
	return c.GetEvents(ctx, start, end, DefaultMaxResults)
}

// CreateEvent inserts event and returns the created event.
func (c *Client) CreateEvent(ctx context.Context, event *calendar.Event) (*calendar.Event, error) {
	var created *calendar.Event
	err := c.call(ctx, instrumentation.OperationCreate, func(svc *calendar.Service) error {
		var err error
		created, err = svc.Events.Insert(c.calendarID, event).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// CreateEvents writes events one at a time and reports the outcome of
// each. A failing event never stops the batch.
func (c *Client) CreateEvents(ctx context.Context, events []*calendar.Event) BatchResult {
	ctx, span := instrumentation.StartSpan(ctx, "calendar.create_events",
		attribute.Int(instrumentation.SpanAttrEventCount, len(events)))
	defer span.End()

	result := BatchResult{
		TotalEvents: len(events),
		Results:     make([]EventResult, 0, len(events)),
	}

	for i, event := range events {
		if event == nil {
			result.Results = append(result.Results, EventResult{Index: i, Status: EventStatusFailed, Error: errNullEvent.Error()})
			result.FailedEvents++
			c.logger.Warn("skipping null event", logging.Operation("calendar.create"), "index", i)
			continue
		}
		res := EventResult{Index: i, Summary: event.Summary}

		err := c.limiter.Wait(ctx)
		var created *calendar.Event
		if err == nil {
			created, err = c.CreateEvent(ctx, event)
		}

		if err != nil {
			res.Status = EventStatusFailed
			res.Error = err.Error()
			result.FailedEvents++
			c.logger.Warn("failed to create event", logging.Operation("calendar.create"), "index", i, logging.Err(err))
		} else {
			res.Status = EventStatusSuccess
			res.ID = created.Id
			result.SuccessfulEvents++
		}
		result.Results = append(result.Results, res)
	}

	c.metrics.RecordBatchEvents(ctx, instrumentation.StatusSuccess, result.SuccessfulEvents)
	c.metrics.RecordBatchEvents(ctx, instrumentation.StatusError, result.FailedEvents)
	c.logger.Info("batch event creation finished",
		logging.Operation("calendar.create_events"),
		"total", result.TotalEvents,
		"successful", result.SuccessfulEvents,
		"failed", result.FailedEvents)

	return result
}

// CreateEventFromInput builds an event from input and creates it.
func (c *Client) CreateEventFromInput(ctx context.Context, input EventInput) (*EventSummary, error) {
	created, err := c.CreateEvent(ctx, BuildEvent(input))
	if err != nil {
		return nil, err
	}
	summary := ToEventSummary(created)
	return &summary, nil
}

// UpdateEvent applies the fields set in input to an existing event.
func (c *Client) UpdateEvent(ctx context.Context, eventID string, input EventInput) (*EventSummary, error) {
	var updated *calendar.Event
	err := c.call(ctx, instrumentation.OperationUpdate, func(svc *calendar.Service) error {
		existing, err := svc.Events.Get(c.calendarID, eventID).Context(ctx).Do()
		if err != nil {
			return err
		}
		applyInput(existing, input)
		updated, err = svc.Events.Update(c.calendarID, eventID, existing).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	summary := ToEventSummary(updated)
	return &summary, nil
}

// DeleteEvent deletes a calendar event.
func (c *Client) DeleteEvent(ctx context.Context, eventID string) error {
	return c.call(ctx, instrumentation.OperationDelete, func(svc *calendar.Service) error {
		return svc.Events.Delete(c.calendarID, eventID).Context(ctx).Do()
	})
}
