package google

// CalendarScopes are the OAuth scopes requested for calendar access.
var CalendarScopes = []string{
	"https://www.googleapis.com/auth/calendar.readonly",
	"https://www.googleapis.com/auth/calendar.events",
}
