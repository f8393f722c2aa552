package calendar

import (
	"time"

	calendar "google.golang.org/api/calendar/v3"
)

const dateLayout = "2006-01-02"

// EventInput represents the input for creating or updating a calendar event
type EventInput struct {
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	// TimeZone is an IANA name. Timed events default to UTC.
	TimeZone   string   `json:"timeZone,omitempty"`
	AllDay     bool     `json:"allDay,omitempty"`
	Attendees  []string `json:"attendees,omitempty"`
	Recurrence []string `json:"recurrence,omitempty"` // RRULE, EXRULE, RDATE, EXDATE
	// ReminderMinutes adds popup reminders; empty keeps the calendar default.
	ReminderMinutes []int64 `json:"reminderMinutes,omitempty"`
	ColorID         string  `json:"colorId,omitempty"`
}

// EventSummary represents a simplified calendar event for listing
type EventSummary struct {
	ID          string         `json:"id"`
	Summary     string         `json:"summary"`
	Description string         `json:"description,omitempty"`
	Location    string         `json:"location,omitempty"`
	Start       time.Time      `json:"start"`
	End         time.Time      `json:"end"`
	AllDay      bool           `json:"allDay,omitempty"`
	Creator     string         `json:"creator,omitempty"`
	Organizer   string         `json:"organizer,omitempty"`
	Status      string         `json:"status,omitempty"`
	HTMLLink    string         `json:"htmlLink,omitempty"`
	Attendees   []AttendeeInfo `json:"attendees,omitempty"`
	Medical     bool           `json:"medical"`
	Kind        MedicalKind    `json:"kind,omitempty"`
}

// AttendeeInfo represents information about an event attendee
type AttendeeInfo struct {
	Email          string `json:"email"`
	DisplayName    string `json:"displayName,omitempty"`
	ResponseStatus string `json:"responseStatus,omitempty"` // "needsAction", "declined", "tentative", "accepted"
}

// Event write statuses.
const (
	EventStatusSuccess = "success"
	EventStatusFailed  = "failed"
)

// EventResult is the outcome of writing one event in a batch.
type EventResult struct {
	Index   int    `json:"index"`
	ID      string `json:"id,omitempty"`
	Summary string `json:"summary"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
}

// BatchResult aggregates the outcome of CreateEvents. Results holds one
// entry per input event, in input order.
type BatchResult struct {
	SuccessfulEvents int           `json:"successfulEvents"`
	FailedEvents     int           `json:"failedEvents"`
	TotalEvents      int           `json:"totalEvents"`
	Results          []EventResult `json:"results"`
}

// ToEventSummary converts a Google Calendar event to an EventSummary.
// Timed events are parsed from dateTime, all-day events from date.
func ToEventSummary(event *calendar.Event) EventSummary {
	summary := EventSummary{
		ID:          event.Id,
		Summary:     event.Summary,
		Description: event.Description,
		Location:    event.Location,
		Status:      event.Status,
		HTMLLink:    event.HtmlLink,
		Medical:     IsMedicalEvent(event),
		Kind:        ClassifyMedicalEvent(event),
	}

	var allDay bool
	summary.Start, allDay = parseEventTime(event.Start)
	summary.End, _ = parseEventTime(event.End)
	summary.AllDay = allDay

	if event.Creator != nil {
		summary.Creator = event.Creator.Email
	}
	if event.Organizer != nil {
		summary.Organizer = event.Organizer.Email
	}

	for _, att := range event.Attendees {
		summary.Attendees = append(summary.Attendees, AttendeeInfo{
			Email:          att.Email,
			DisplayName:    att.DisplayName,
			ResponseStatus: att.ResponseStatus,
		})
	}

	return summary
}

// ToEventSummaries maps a slice of events. The result is never nil.
func ToEventSummaries(events []*calendar.Event) []EventSummary {
	out := make([]EventSummary, 0, len(events))
	for _, e := range events {
		out = append(out, ToEventSummary(e))
	}
	return out
}

func parseEventTime(dt *calendar.EventDateTime) (time.Time, bool) {
	if dt == nil {
		return time.Time{}, false
	}
	if dt.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, dt.DateTime); err == nil {
			return t, false
		}
		return time.Time{}, false
	}
	if dt.Date != "" {
		loc := time.UTC
		if dt.TimeZone != "" {
			if l, err := time.LoadLocation(dt.TimeZone); err == nil {
				loc = l
			}
		}
		if t, err := time.ParseInLocation(dateLayout, dt.Date, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// BuildEvent converts input into a Google Calendar event.
func BuildEvent(input EventInput) *calendar.Event {
	event := &calendar.Event{
		Summary:     input.Summary,
		Description: input.Description,
		Location:    input.Location,
		ColorId:     input.ColorID,
		Recurrence:  input.Recurrence,
	}
	event.Start = eventDateTime(input.Start, input.AllDay, input.TimeZone)
	event.End = eventDateTime(input.End, input.AllDay, input.TimeZone)

	for _, email := range input.Attendees {
		event.Attendees = append(event.Attendees, &calendar.EventAttendee{Email: email})
	}

	if len(input.ReminderMinutes) > 0 {
		reminders := &calendar.EventReminders{ForceSendFields: []string{"UseDefault"}}
		for _, m := range input.ReminderMinutes {
			reminders.Overrides = append(reminders.Overrides, &calendar.EventReminder{Method: "popup", Minutes: m})
		}
		event.Reminders = reminders
	}

	return event
}

func eventDateTime(t time.Time, allDay bool, tz string) *calendar.EventDateTime {
	if allDay {
		return &calendar.EventDateTime{Date: t.Format(dateLayout)}
	}
	if tz == "" {
		tz = "UTC"
	}
	return &calendar.EventDateTime{
		DateTime: t.Format(time.RFC3339),
		TimeZone: tz,
	}
}

// applyInput overwrites the fields of existing that input sets.
func applyInput(existing *calendar.Event, input EventInput) {
	if input.Summary != "" {
		existing.Summary = input.Summary
	}
	if input.Description != "" {
		existing.Description = input.Description
	}
	if input.Location != "" {
		existing.Location = input.Location
	}
	if input.ColorID != "" {
		existing.ColorId = input.ColorID
	}
	if !input.Start.IsZero() {
		existing.Start = eventDateTime(input.Start, input.AllDay, input.TimeZone)
	}
	if !input.End.IsZero() {
		existing.End = eventDateTime(input.End, input.AllDay, input.TimeZone)
	}
	if len(input.Attendees) > 0 {
		existing.Attendees = nil
		for _, email := range input.Attendees {
			existing.Attendees = append(existing.Attendees, &calendar.EventAttendee{Email: email})
		}
	}
	if len(input.Recurrence) > 0 {
		existing.Recurrence = input.Recurrence
	}
}

// CalendarInfo is one entry of the user's calendar list.
type CalendarInfo struct {
	ID         string `json:"id"`
	Summary    string `json:"summary"`
	TimeZone   string `json:"timeZone,omitempty"`
	AccessRole string `json:"accessRole"`
	Primary    bool   `json:"primary,omitempty"`
}
