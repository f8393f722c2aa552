// Package calendar reads and writes events on the user's Google Calendar.
//
// Every request is authorized with the stored access token. When the API
// answers 401 the client asks its TokenProvider for one refresh and repeats
// the request once; a second 401 is returned as an *HTTPError matching
// ErrUnauthorized.
//
// Batch creation is sequential and rate limited. It reports a BatchResult
// with one EventResult per input event instead of failing as a whole.
//
// Example usage:
//
//	client := calendar.NewClient(tokenClient)
//	events, err := client.GetMonthEvents(ctx, time.Now())
//	if err != nil {
//	    return err
//	}
//	medical := calendar.FilterEvents(events, calendar.IsMedicalEvent)
package calendar
