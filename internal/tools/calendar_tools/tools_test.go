package calendar_tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gcal "google.golang.org/api/calendar/v3"

	"github.com/teemow/healthcal/internal/calendar"
	"github.com/teemow/healthcal/internal/config"
	"github.com/teemow/healthcal/internal/logging"
	"github.com/teemow/healthcal/internal/server"
	"github.com/teemow/healthcal/internal/session"
	"github.com/teemow/healthcal/internal/token"
	"github.com/teemow/healthcal/internal/tools/common"
)

type fakeCalendar struct {
	mu       sync.Mutex
	events   []*gcal.Event
	inserted []string
	deleted  []string
}

func (f *fakeCalendar) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer good-token" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"code":401,"message":"Invalid Credentials"}}`))
		return
	}

	if r.URL.Path == "/users/me/calendarList" {
		_ = json.NewEncoder(w).Encode(gcal.CalendarList{Items: []*gcal.CalendarListEntry{
			{Id: "primary", Summary: "me@example.com", AccessRole: "owner", Primary: true},
		}})
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/calendars/primary/events")
	switch {
	case rest == "" && r.Method == http.MethodGet:
		_ = json.NewEncoder(w).Encode(gcal.Events{Items: f.events})
	case rest == "" && r.Method == http.MethodPost:
		var ev gcal.Event
		_ = json.NewDecoder(r.Body).Decode(&ev)
		if ev.Summary == "reject" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":400,"message":"Bad Request"}}`))
			return
		}
		ev.Id = "new-" + ev.Summary
		f.inserted = append(f.inserted, ev.Summary)
		_ = json.NewEncoder(w).Encode(ev)
	case r.Method == http.MethodDelete:
		id := strings.TrimPrefix(rest, "/")
		if id == "missing" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":404,"message":"Not Found"}}`))
			return
		}
		f.deleted = append(f.deleted, id)
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

type toolFixture struct {
	mcp      *mcpserver.MCPServer
	sess     *session.Session
	calendar *fakeCalendar
}

func newToolFixture(t *testing.T, readOnly bool, backendHandler http.HandlerFunc) *toolFixture {
	t.Helper()

	cal := &fakeCalendar{events: []*gcal.Event{
		{Id: "e1", Summary: "Cardiology appointment", Start: &gcal.EventDateTime{DateTime: "2026-03-02T09:00:00Z"}, End: &gcal.EventDateTime{DateTime: "2026-03-02T10:00:00Z"}},
		{Id: "e2", Summary: "Team lunch", Location: "Cafe", Start: &gcal.EventDateTime{DateTime: "2026-03-03T12:00:00Z"}, End: &gcal.EventDateTime{DateTime: "2026-03-03T13:00:00Z"}},
	}}
	calSrv := httptest.NewServer(cal)
	t.Cleanup(calSrv.Close)

	if backendHandler == nil {
		backendHandler = func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNotFound) }
	}
	backendSrv := httptest.NewServer(backendHandler)
	t.Cleanup(backendSrv.Close)

	cfg := config.Default()
	cfg.Storage.Type = token.BackendMemory
	cfg.Google.RedirectURL = "http://127.0.0.1:0/oauth-callback"
	cfg.Google.CalendarEndpoint = calSrv.URL + "/"
	cfg.Google.TokenURL = calSrv.URL + "/token"
	cfg.Backend.URL = backendSrv.URL
	cfg.Calendar.WriteRate = 0

	sess, err := session.New(context.Background(), cfg, session.WithLogger(logging.Discard()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Close() })

	sc := server.NewServerContext(context.Background(), sess, readOnly)
	t.Cleanup(func() { _ = sc.Shutdown() })

	s := mcpserver.NewMCPServer("healthcal-test", "test", mcpserver.WithToolCapabilities(true))
	require.NoError(t, RegisterCalendarTools(s, sc))
	return &toolFixture{mcp: s, sess: sess, calendar: cal}
}

func (f *toolFixture) login(t *testing.T) {
	t.Helper()
	_, err := f.sess.Tokens.StoreToken(context.Background(), token.TokenResponse{
		AccessToken:  "good-token",
		RefreshToken: "refresh",
		ExpiresIn:    3600,
		TokenType:    "Bearer",
		Scope:        strings.Join(calendarScopes(), " "),
	})
	require.NoError(t, err)
}

func calendarScopes() []string {
	return []string{"https://www.googleapis.com/auth/calendar.readonly", "https://www.googleapis.com/auth/calendar.events"}
}

func (f *toolFixture) call(t *testing.T, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	tool, ok := f.mcp.ListTools()[name]
	require.True(t, ok, "tool %s not registered", name)

	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	result, err := tool.Handler(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func toolNames(s *mcpserver.MCPServer) []string {
	var names []string
	for name := range s.ListTools() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func TestRegisterCalendarTools(t *testing.T) {
	readOnly := newToolFixture(t, true, nil)
	assert.Equal(t, []string{
		"calendar_auth_status",
		"calendar_extract_medications",
		"calendar_list_calendars",
		"calendar_list_events",
		"calendar_month_events",
		"health_chat",
		"health_chat_history",
		"health_insights",
		"health_recommendations",
	}, toolNames(readOnly.mcp))

	writable := newToolFixture(t, false, nil)
	assert.Equal(t, []string{
		"calendar_auth_status",
		"calendar_create_events",
		"calendar_delete_event",
		"calendar_extract_medications",
		"calendar_list_calendars",
		"calendar_list_events",
		"calendar_month_events",
		"calendar_sync_medications",
		"health_chat",
		"health_chat_history",
		"health_clear_chat_history",
		"health_insights",
		"health_recommendations",
		"health_upload_document",
	}, toolNames(writable.mcp))
}

func TestRegisterCalendarTools_NoSession(t *testing.T) {
	s := mcpserver.NewMCPServer("healthcal-test", "test")
	sc := server.NewServerContext(context.Background(), nil, true)
	assert.Error(t, RegisterCalendarTools(s, sc))
}

func TestAuthStatusTool(t *testing.T) {
	f := newToolFixture(t, true, nil)

	result := f.call(t, "calendar_auth_status", nil)
	assert.False(t, result.IsError)
	assert.Contains(t, common.ResultText(result), "not authorized")

	f.login(t)
	result = f.call(t, "calendar_auth_status", nil)
	text := common.ResultText(result)
	assert.Contains(t, text, "Authenticated")
	assert.Contains(t, text, "Refresh token: true")
	assert.NotContains(t, text, "good-token")
}

func TestListEventsTool(t *testing.T) {
	f := newToolFixture(t, true, nil)

	result := f.call(t, "calendar_list_events", map[string]interface{}{"timeMin": "2026-03-01", "timeMax": "2026-03-08"})
	assert.True(t, result.IsError)
	assert.Contains(t, common.ResultText(result), "healthcal auth login")

	f.login(t)
	result = f.call(t, "calendar_list_events", map[string]interface{}{"timeMin": "2026-03-01", "timeMax": "2026-03-08"})
	require.False(t, result.IsError, common.ResultText(result))
	text := common.ResultText(result)
	assert.Contains(t, text, "Found 2 events")
	assert.Contains(t, text, "Cardiology appointment")
	assert.Contains(t, text, "Location: Cafe")

	result = f.call(t, "calendar_list_events", map[string]interface{}{
		"timeMin":     "2026-03-01",
		"timeMax":     "2026-03-08",
		"medicalOnly": true,
	})
	text = common.ResultText(result)
	assert.Contains(t, text, "Found 1 events")
	assert.NotContains(t, text, "Team lunch")
	assert.Contains(t, text, "Medical: "+string(calendar.KindAppointment))
}

func TestListEventsTool_InvalidArguments(t *testing.T) {
	f := newToolFixture(t, true, nil)
	f.login(t)

	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{name: "bad timeMin", args: map[string]interface{}{"timeMin": "soon"}, want: "Invalid timeMin"},
		{name: "bad timeMax", args: map[string]interface{}{"timeMax": "later"}, want: "Invalid timeMax"},
		{name: "inverted range", args: map[string]interface{}{"timeMin": "2026-03-08", "timeMax": "2026-03-01"}, want: "timeMax must be after timeMin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := f.call(t, "calendar_list_events", tt.args)
			assert.True(t, result.IsError)
			assert.Contains(t, common.ResultText(result), tt.want)
		})
	}
}

func TestMonthEventsTool(t *testing.T) {
	f := newToolFixture(t, true, nil)
	f.login(t)

	result := f.call(t, "calendar_month_events", map[string]interface{}{"month": "2026-03"})
	require.False(t, result.IsError, common.ResultText(result))
	assert.Contains(t, common.ResultText(result), "Found 2 events")

	result = f.call(t, "calendar_month_events", map[string]interface{}{"month": "March"})
	assert.True(t, result.IsError)
}

func TestCreateEventsTool(t *testing.T) {
	f := newToolFixture(t, false, nil)
	f.login(t)

	events := `[
		{"summary":"Dentist","start":{"dateTime":"2026-03-10T09:00:00Z"},"end":{"dateTime":"2026-03-10T10:00:00Z"}},
		{"summary":"reject","start":{"dateTime":"2026-03-11T09:00:00Z"},"end":{"dateTime":"2026-03-11T10:00:00Z"}}
	]`
	result := f.call(t, "calendar_create_events", map[string]interface{}{"events": events})
	require.False(t, result.IsError, common.ResultText(result))

	var batchResult calendar.BatchResult
	require.NoError(t, json.Unmarshal([]byte(common.ResultText(result)), &batchResult))
	assert.Equal(t, 2, batchResult.TotalEvents)
	assert.Equal(t, 1, batchResult.SuccessfulEvents)
	assert.Equal(t, 1, batchResult.FailedEvents)
	assert.Equal(t, []string{"Dentist"}, f.calendar.inserted)
}

func TestCreateEventsTool_InvalidInput(t *testing.T) {
	f := newToolFixture(t, false, nil)
	f.login(t)

	for _, events := range []interface{}{nil, "not json", "[]"} {
		result := f.call(t, "calendar_create_events", map[string]interface{}{"events": events})
		assert.True(t, result.IsError)
	}
	assert.Empty(t, f.calendar.inserted)
}

func TestDeleteEventTool(t *testing.T) {
	f := newToolFixture(t, false, nil)
	f.login(t)

	result := f.call(t, "calendar_delete_event", map[string]interface{}{"eventIds": `["e1", "missing"]`})
	require.False(t, result.IsError, common.ResultText(result))
	text := common.ResultText(result)
	assert.Contains(t, text, `"successful": 1`)
	assert.Contains(t, text, `"failed": 1`)
	assert.Equal(t, []string{"e1"}, f.calendar.deleted)

	result = f.call(t, "calendar_delete_event", map[string]interface{}{"eventIds": "missing"})
	assert.True(t, result.IsError)
}

func TestSyncMedicationsTool(t *testing.T) {
	var gotBody map[string]interface{}
	f := newToolFixture(t, false, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/medications/calendar-events" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"events":[
			{"summary":"💊 <b>Metformin</b>","start":{"dateTime":"2026-03-10T08:00:00Z"},"end":{"dateTime":"2026-03-10T08:15:00Z"}}
		]}`))
	})
	f.login(t)

	result := f.call(t, "calendar_sync_medications", map[string]interface{}{"startDate": "2026-03-10", "durationDays": float64(3)})
	require.False(t, result.IsError, common.ResultText(result))
	assert.Equal(t, "2026-03-10", gotBody["start_date"])
	assert.Equal(t, float64(3), gotBody["duration_days"])
	assert.Equal(t, []string{"💊 Metformin"}, f.calendar.inserted)
}

func TestExtractMedicationsTool(t *testing.T) {
	f := newToolFixture(t, true, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"medications":[
			{"name":"Metformin","status":"active","frequency":"twice daily","times":["08:00","20:00"]}
		],"summary":{"total_active":1,"total_discontinued":0},"total_extracted":1}`))
	})

	result := f.call(t, "calendar_extract_medications", nil)
	require.False(t, result.IsError, common.ResultText(result))
	text := common.ResultText(result)
	assert.Contains(t, text, "Metformin [active]")
	assert.Contains(t, text, "Times: 08:00, 20:00")
}

func TestExtractMedicationsTool_BackendError(t *testing.T) {
	f := newToolFixture(t, true, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"database unavailable"}`))
	})

	result := f.call(t, "calendar_extract_medications", nil)
	assert.True(t, result.IsError)
	assert.Contains(t, common.ResultText(result), "database unavailable")
}
