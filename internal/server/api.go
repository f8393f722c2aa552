package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	gcal "google.golang.org/api/calendar/v3"

	"github.com/teemow/healthcal/internal/backend"
	"github.com/teemow/healthcal/internal/calendar"
	"github.com/teemow/healthcal/internal/logging"
	"github.com/teemow/healthcal/internal/oauthflow"
)

// maxBatchBody caps the request body of batch endpoints.
const maxBatchBody = 1 << 20

// DefaultLoginTimeout ends a browser flow started by POST /api/auth/login
// that the user never completes.
const DefaultLoginTimeout = 10 * time.Minute

// AuthStatusResponse is returned by GET /api/auth/status.
type AuthStatusResponse struct {
	Authenticated   bool       `json:"authenticated"`
	HasRefreshToken bool       `json:"hasRefreshToken"`
	ExpiresAt       *time.Time `json:"expiresAt,omitempty"`
	FlowState       string     `json:"flowState"`
}

// EventsResponse wraps listed events.
type EventsResponse struct {
	Events []calendar.EventSummary `json:"events"`
	Count  int                     `json:"count"`
}

// CreateEventsRequest is the body of POST /api/events.
type CreateEventsRequest struct {
	Events []*gcal.Event `json:"events"`
}

// MedicationSyncRequest is the optional body of POST /api/medications/sync.
type MedicationSyncRequest struct {
	// StartDate is YYYY-MM-DD; empty means today.
	StartDate    string `json:"startDate,omitempty"`
	DurationDays int    `json:"durationDays,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// API serves the calendar HTTP endpoints.
type API struct {
	sc     *ServerContext
	health *HealthChecker
	logger logging.Logger

	loginTimeout time.Duration
	flowMu       sync.Mutex
	cancelFlow   context.CancelFunc
	flowDone     chan struct{}
}

// NewAPI creates the HTTP API over sc.
func NewAPI(sc *ServerContext, health *HealthChecker) *API {
	return &API{
		sc:           sc,
		health:       health,
		logger:       logging.OrDefault(sc.Session().Logger),
		loginTimeout: DefaultLoginTimeout,
	}
}

// Routes builds the chi router. Write routes are only mounted when the
// server is not read-only. The OAuth callback is served at the redirect
// path so the same listener can complete the authorization flow.
func (a *API) Routes() chi.Router {
	sess := a.sc.Session()

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(instrumentationMiddleware(sess.Metrics, a.logger))

	a.health.RegisterHealthEndpoints(r)
	r.Method(http.MethodGet, sess.Callback.Path(), sess.Callback)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Get("/status", a.authStatus)
			r.Post("/login", a.login)
			r.Post("/cancel", a.cancelLogin)
			r.Post("/logout", a.logout)
			r.Post("/refresh", a.refresh)
		})

		r.Route("/events", func(r chi.Router) {
			r.Get("/", a.listEvents)
			r.Get("/month", a.monthEvents)
			if !a.sc.ReadOnly() {
				r.Post("/", a.createEvents)
				r.Delete("/{id}", a.deleteEvent)
			}
		})

		r.Get("/medications", a.extractMedications)
		if !a.sc.ReadOnly() {
			r.Post("/medications/sync", a.syncMedications)
		}
	})
	return r
}

func (a *API) authStatus(w http.ResponseWriter, r *http.Request) {
	sess := a.sc.Session()
	rec, err := sess.Tokens.GetStoredToken(r.Context())
	if err != nil {
		a.writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	resp := AuthStatusResponse{FlowState: string(sess.Flow.State())}
	if rec != nil {
		expiry := rec.Expiry()
		resp.ExpiresAt = &expiry
		resp.HasRefreshToken = rec.RefreshToken != ""
		resp.Authenticated = !sess.Tokens.IsTokenExpired(rec)
	}
	writeJSON(w, http.StatusOK, resp)
}

// login starts the authorization flow in the background. The browser is
// opened on the host running the server; the redirect lands on the
// callback route of this router. Poll /api/auth/status for the outcome and
// POST /api/auth/cancel to abandon it. A flow still waiting after
// loginTimeout is cancelled.
func (a *API) login(w http.ResponseWriter, r *http.Request) {
	sess := a.sc.Session()
	if err := sess.Config.RequireClient(); err != nil {
		a.writeError(w, r, http.StatusPreconditionFailed, err)
		return
	}

	a.flowMu.Lock()
	defer a.flowMu.Unlock()
	if a.cancelFlow != nil || sess.Flow.State() == oauthflow.StateAwaitingUser {
		writeJSON(w, http.StatusConflict, AuthStatusResponse{FlowState: string(oauthflow.StateAwaitingUser)})
		return
	}

	ctx, cancel := context.WithTimeout(a.sc.Context(), a.loginTimeout)
	done := make(chan struct{})
	a.cancelFlow, a.flowDone = cancel, done

	go func() {
		defer close(done)
		res := sess.Flow.Authenticate(ctx)
		cancel()

		a.flowMu.Lock()
		if a.flowDone == done {
			a.cancelFlow, a.flowDone = nil, nil
		}
		a.flowMu.Unlock()

		if !res.Success {
			a.logger.Warn("authorization flow did not succeed", "flow_state", string(res.State), "reason", res.Error)
		}
	}()
	writeJSON(w, http.StatusAccepted, AuthStatusResponse{FlowState: string(oauthflow.StateAwaitingUser)})
}

// cancelLogin cancels the flow started by login and waits for it to reach
// its terminal state.
func (a *API) cancelLogin(w http.ResponseWriter, r *http.Request) {
	a.flowMu.Lock()
	cancel, done := a.cancelFlow, a.flowDone
	a.flowMu.Unlock()

	if cancel == nil {
		writeJSON(w, http.StatusConflict, successResponse{Success: false, Message: "no authorization flow in progress"})
		return
	}
	cancel()
	select {
	case <-done:
	case <-r.Context().Done():
		return
	}
	writeJSON(w, http.StatusOK, AuthStatusResponse{FlowState: string(a.sc.Session().Flow.State())})
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	if err := a.sc.Session().Google.Logout(r.Context()); err != nil {
		a.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (a *API) refresh(w http.ResponseWriter, r *http.Request) {
	if !a.sc.Session().Google.RefreshToken(r.Context()) {
		writeJSON(w, http.StatusUnauthorized, successResponse{Success: false, Message: "token refresh failed"})
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (a *API) listEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	now := time.Now()
	timeMin, err := parseTimeParam(q.Get("timeMin"), now)
	if err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	timeMax, err := parseTimeParam(q.Get("timeMax"), timeMin.AddDate(0, 0, 7))
	if err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if !timeMax.After(timeMin) {
		a.writeError(w, r, http.StatusBadRequest, errors.New("timeMax must be after timeMin"))
		return
	}
	maxResults := 0
	if v := q.Get("maxResults"); v != "" {
		maxResults, err = strconv.Atoi(v)
		if err != nil || maxResults < 0 {
			a.writeError(w, r, http.StatusBadRequest, errors.New("maxResults must be a non-negative integer"))
			return
		}
	}

	events, err := a.sc.Calendar().GetEvents(r.Context(), timeMin, timeMax, maxResults)
	if err != nil {
		a.writeCalendarError(w, r, err)
		return
	}
	a.writeEvents(w, r, events)
}

func (a *API) monthEvents(w http.ResponseWriter, r *http.Request) {
	month := time.Now()
	if v := r.URL.Query().Get("month"); v != "" {
		parsed, err := time.ParseInLocation("2006-01", v, time.Local)
		if err != nil {
			a.writeError(w, r, http.StatusBadRequest, errors.New("month must be YYYY-MM"))
			return
		}
		month = parsed
	}

	events, err := a.sc.Calendar().GetMonthEvents(r.Context(), month)
	if err != nil {
		a.writeCalendarError(w, r, err)
		return
	}
	a.writeEvents(w, r, events)
}

// writeEvents applies the optional medical=true filter and writes the list.
func (a *API) writeEvents(w http.ResponseWriter, r *http.Request, events []*gcal.Event) {
	if medical, _ := strconv.ParseBool(r.URL.Query().Get("medical")); medical {
		events = calendar.FilterEvents(events, calendar.IsMedicalEvent)
	}
	summaries := calendar.ToEventSummaries(events)
	writeJSON(w, http.StatusOK, EventsResponse{Events: summaries, Count: len(summaries)})
}

func (a *API) createEvents(w http.ResponseWriter, r *http.Request) {
	var req CreateEventsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBatchBody)).Decode(&req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	a.writeBatch(w, r, req.Events)
}

func (a *API) writeBatch(w http.ResponseWriter, r *http.Request, events []*gcal.Event) {
	result := a.sc.Calendar().CreateEvents(r.Context(), events)
	status := http.StatusOK
	if result.TotalEvents > 0 && result.SuccessfulEvents == 0 {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, result)
}

func (a *API) deleteEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.sc.Calendar().DeleteEvent(r.Context(), id); err != nil {
		a.writeCalendarError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) extractMedications(w http.ResponseWriter, r *http.Request) {
	res, err := a.sc.Backend().ExtractMedications(r.Context())
	if err != nil {
		a.writeBackendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// syncMedications asks the backend for medication reminder events and
// writes them to the calendar.
func (a *API) syncMedications(w http.ResponseWriter, r *http.Request) {
	var req MedicationSyncRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBatchBody)).Decode(&req); err != nil {
			a.writeError(w, r, http.StatusBadRequest, errors.New("invalid request body"))
			return
		}
	}
	var start time.Time
	if req.StartDate != "" {
		parsed, err := time.Parse("2006-01-02", req.StartDate)
		if err != nil {
			a.writeError(w, r, http.StatusBadRequest, errors.New("startDate must be YYYY-MM-DD"))
			return
		}
		start = parsed
	}

	res, err := a.sc.Backend().MedicationCalendarEvents(r.Context(), start, req.DurationDays)
	if err != nil {
		a.writeBackendError(w, r, err)
		return
	}
	a.writeBatch(w, r, res.Events)
}

func (a *API) writeCalendarError(w http.ResponseWriter, r *http.Request, err error) {
	var httpErr *calendar.HTTPError
	switch {
	case errors.Is(err, calendar.ErrNoToken), errors.Is(err, calendar.ErrUnauthorized):
		a.writeError(w, r, http.StatusUnauthorized, err)
	case errors.As(err, &httpErr) && httpErr.Status == http.StatusNotFound:
		a.writeError(w, r, http.StatusNotFound, err)
	case errors.As(err, &httpErr), errors.Is(err, calendar.ErrNetwork):
		a.writeError(w, r, http.StatusBadGateway, err)
	default:
		a.writeError(w, r, http.StatusInternalServerError, err)
	}
}

func (a *API) writeBackendError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		a.writeError(w, r, http.StatusNotFound, err)
		return
	}
	a.writeError(w, r, http.StatusBadGateway, err)
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed", "path", r.URL.Path, "http_status", status, logging.Err(err))
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// parseTimeParam accepts RFC 3339 or YYYY-MM-DD. Empty yields def.
func parseTimeParam(v string, def time.Time) (time.Time, error) {
	if v == "" {
		return def, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", v, time.Local)
	if err != nil {
		return time.Time{}, errors.New("time must be RFC 3339 or YYYY-MM-DD: " + v)
	}
	return t, nil
}
