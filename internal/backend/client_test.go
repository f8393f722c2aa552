package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/healthcal/internal/logging"
)

func newTestBackend(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", WithHTTPClient(srv.Client()), WithLogger(logging.Discard()))
}

func TestExtractMedications(t *testing.T) {
	c := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/medications/extract", r.URL.Path)
		_, err := uuid.Parse(r.Header.Get(RequestIDHeader))
		assert.NoError(t, err, "request id is a uuid")

		_, _ = w.Write([]byte(`{
			"success": true,
			"medications": [
				{"name": "Metformin", "status": "active", "times": ["08:00", "20:00"], "frequency": "2x daily", "source_ocr_id": 12},
				{"name": "Aspirin", "status": "discontinued"}
			],
			"summary": {"total_active": 1, "total_discontinued": 1, "summary": "1 active medications, 1 discontinued"},
			"total_extracted": 2
		}`))
	})

	res, err := c.ExtractMedications(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.TotalExtracted)
	require.Len(t, res.Medications, 2)
	assert.Equal(t, MedicationActive, res.Medications[0].Status)
	assert.Equal(t, []string{"08:00", "20:00"}, res.Medications[0].Times)
	assert.JSONEq(t, "12", string(res.Medications[0].SourceOCRID))
	assert.Equal(t, 1, res.Summary.TotalActive)
}

func TestMedicationCalendarEvents_SendsRangeAndSanitizes(t *testing.T) {
	var got CalendarEventsRequest
	c := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_, _ = w.Write([]byte(`{
			"success": true,
			"message": "Created 1 calendar events for 1 medications",
			"events": [{
				"summary": "💊 <b>Metformin</b>",
				"description": "Medication: Metformin<script>alert(1)</script>\nFrequency: 2x daily",
				"start": {"dateTime": "2026-03-10T08:00:00", "timeZone": "UTC"},
				"end": {"dateTime": "2026-03-10T08:15:00", "timeZone": "UTC"}
			}]
		}`))
	})

	res, err := c.MedicationCalendarEvents(context.Background(), time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC), 0)
	require.NoError(t, err)

	assert.Equal(t, "2026-03-10", got.StartDate)
	assert.Equal(t, DefaultDurationDays, got.DurationDays)

	require.Len(t, res.Events, 1)
	ev := res.Events[0]
	assert.Equal(t, "💊 Metformin", ev.Summary)
	assert.NotContains(t, ev.Description, "<script>")
	assert.Contains(t, ev.Description, "Frequency: 2x daily")
	assert.Equal(t, "2026-03-10T08:00:00", ev.Start.DateTime)
}

func TestMedicationCalendarEvents_NoEventsIsEmptySlice(t *testing.T) {
	c := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success": true}`))
	})

	res, err := c.MedicationCalendarEvents(context.Background(), time.Time{}, 3)
	require.NoError(t, err)
	assert.NotNil(t, res.Events)
	assert.Empty(t, res.Events)
}

func TestClearNextWeekMedicalDates(t *testing.T) {
	c := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/calendar/clear-next-week-medical-dates", r.URL.Path)
		assert.Equal(t, "Bearer access-123", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"success": true, "message": "Cleared 3 medical events", "events_cleared": 3}`))
	})

	res, err := c.ClearNextWeekMedicalDates(context.Background(), "access-123")
	require.NoError(t, err)
	assert.Equal(t, 3, res.EventsCleared)

	_, err = c.ClearNextWeekMedicalDates(context.Background(), "")
	assert.Error(t, err)
}

func TestAPIError(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
	}{
		{name: "error body", status: http.StatusNotFound, body: `{"error": "No medications found in OCR data"}`, wantMessage: "No medications found in OCR data"},
		{name: "non json body", status: http.StatusBadGateway, body: `upstream down`, wantMessage: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.ExtractMedications(context.Background())
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.wantMessage, apiErr.Message)
		})
	}
}

func TestHealth(t *testing.T) {
	c := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/health", r.URL.Path)
		_, _ = w.Write([]byte(`{"status": "healthy", "message": "Flask server is running"}`))
	})

	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", h.Status)
}

func TestNewClient_DefaultBaseURL(t *testing.T) {
	assert.Equal(t, DefaultBaseURL, NewClient("").BaseURL())
	assert.Equal(t, "http://backend:5005", NewClient("http://backend:5005/").BaseURL())
}
