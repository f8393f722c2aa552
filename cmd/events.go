package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	gcal "google.golang.org/api/calendar/v3"

	"github.com/teemow/healthcal/internal/calendar"
	"github.com/teemow/healthcal/internal/tools/batch"
)

func newEventsCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Read and write events in the primary calendar",
	}
	cmd.AddCommand(newEventsListCmd(flags))
	cmd.AddCommand(newEventsMonthCmd(flags))
	cmd.AddCommand(newEventsCreateCmd(flags))
	cmd.AddCommand(newEventsDeleteCmd(flags))
	cmd.AddCommand(newEventsCalendarsCmd(flags))
	return cmd
}

type listOutput struct {
	medicalOnly bool
	asJSON      bool
}

func (o *listOutput) bind(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&o.medicalOnly, "medical", false, "Only show appointments, medication and health reminders")
	cmd.Flags().BoolVar(&o.asJSON, "json", false, "Print JSON")
}

func (o *listOutput) print(cmd *cobra.Command, events []*gcal.Event) error {
	if o.medicalOnly {
		events = calendar.FilterEvents(events, calendar.IsMedicalEvent)
	}
	summaries := calendar.ToEventSummaries(events)
	if o.asJSON {
		return writeJSON(cmd.OutOrStdout(), summaries)
	}
	renderEvents(cmd.OutOrStdout(), summaries)
	return nil
}

func newEventsListCmd(flags *globalFlags) *cobra.Command {
	var (
		from, to   string
		maxResults int
		out        listOutput
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List events in a time range",
		RunE: func(cmd *cobra.Command, args []string) error {
			timeMin, err := parseTimeFlag(from, time.Now())
			if err != nil {
				return fmt.Errorf("invalid --from: %w", err)
			}
			timeMax, err := parseTimeFlag(to, timeMin.AddDate(0, 0, 7))
			if err != nil {
				return fmt.Errorf("invalid --to: %w", err)
			}
			if !timeMax.After(timeMin) {
				return errors.New("--to must be after --from")
			}

			sess, err := openSession(cmd.Context(), cmd, flags)
			if err != nil {
				return err
			}
			defer sess.Close()

			events, err := sess.Calendar.GetEvents(cmd.Context(), timeMin, timeMax, maxResults)
			if err != nil {
				return calendarCommandError(err)
			}
			return out.print(cmd, events)
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "Start of the range, RFC3339 or YYYY-MM-DD (default: now)")
	cmd.Flags().StringVar(&to, "to", "", "End of the range, RFC3339 or YYYY-MM-DD (default: seven days after --from)")
	cmd.Flags().IntVar(&maxResults, "max", calendar.DefaultMaxResults, "Maximum number of events")
	out.bind(cmd)
	return cmd
}

func newEventsMonthCmd(flags *globalFlags) *cobra.Command {
	var out listOutput

	cmd := &cobra.Command{
		Use:   "month [YYYY-MM]",
		Short: "List all events of a month (default: the current month)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			month := time.Now()
			if len(args) == 1 {
				parsed, err := time.ParseInLocation("2006-01", args[0], time.Local)
				if err != nil {
					return errors.New("month must be YYYY-MM")
				}
				month = parsed
			}

			sess, err := openSession(cmd.Context(), cmd, flags)
			if err != nil {
				return err
			}
			defer sess.Close()

			events, err := sess.Calendar.GetMonthEvents(cmd.Context(), month)
			if err != nil {
				return calendarCommandError(err)
			}
			return out.print(cmd, events)
		},
	}

	out.bind(cmd)
	return cmd
}

func newEventsCreateCmd(flags *globalFlags) *cobra.Command {
	var (
		input     calendar.EventInput
		startStr  string
		endStr    string
		file      string
		reminders []int
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create one event, or a batch from a JSON file",
		Long: `Create a single event from flags:

  healthcal events create --summary "Dentist" --start 2025-03-10T09:00:00+01:00 --end 2025-03-10T10:00:00+01:00

or a batch of Google Calendar event resources from a JSON array file
("-" reads stdin). Batch events are created one after another; a failing
event does not stop the rest.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(cmd.Context(), cmd, flags)
			if err != nil {
				return err
			}
			defer sess.Close()

			if file != "" {
				events, err := readEventsFile(cmd, file)
				if err != nil {
					return err
				}
				result := sess.Calendar.CreateEvents(cmd.Context(), events)
				renderBatch(cmd.OutOrStdout(), result)
				if result.TotalEvents > 0 && result.SuccessfulEvents == 0 {
					return errors.New("no events were created")
				}
				return nil
			}

			if input.Summary == "" {
				return errors.New("--summary is required (or use --file)")
			}
			if input.Start, err = parseTimeFlag(startStr, time.Time{}); err != nil || input.Start.IsZero() {
				return errors.New("--start is required as RFC3339 or YYYY-MM-DD")
			}
			defaultEnd := input.Start.Add(time.Hour)
			if input.AllDay {
				defaultEnd = input.Start.AddDate(0, 0, 1)
			}
			if input.End, err = parseTimeFlag(endStr, defaultEnd); err != nil {
				return fmt.Errorf("invalid --end: %w", err)
			}
			if !input.End.After(input.Start) {
				return errors.New("--end must be after --start")
			}
			for _, m := range reminders {
				input.ReminderMinutes = append(input.ReminderMinutes, int64(m))
			}

			created, err := sess.Calendar.CreateEventFromInput(cmd.Context(), input)
			if err != nil {
				return calendarCommandError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %q (%s)\n", created.Summary, created.ID)
			if created.HTMLLink != "" {
				fmt.Fprintln(cmd.OutOrStdout(), created.HTMLLink)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&input.Summary, "summary", "", "Event title")
	cmd.Flags().StringVar(&input.Description, "description", "", "Event description")
	cmd.Flags().StringVar(&input.Location, "location", "", "Event location")
	cmd.Flags().StringVar(&startStr, "start", "", "Start, RFC3339 or YYYY-MM-DD")
	cmd.Flags().StringVar(&endStr, "end", "", "End, RFC3339 or YYYY-MM-DD (default: one hour or one day after --start)")
	cmd.Flags().StringVar(&input.TimeZone, "timezone", "", "IANA time zone, e.g. Europe/Berlin")
	cmd.Flags().BoolVar(&input.AllDay, "all-day", false, "Create an all-day event")
	cmd.Flags().StringSliceVar(&input.Recurrence, "recurrence", nil, "Recurrence rule, e.g. RRULE:FREQ=DAILY;COUNT=7")
	cmd.Flags().IntSliceVar(&reminders, "remind", nil, "Popup reminder minutes before the start (repeatable)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON array of event resources to create as a batch")
	return cmd
}

func readEventsFile(cmd *cobra.Command, path string) ([]*gcal.Event, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}

	var events []*gcal.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("events file must be a JSON array of event objects: %w", err)
	}
	if len(events) == 0 {
		return nil, errors.New("events file is empty")
	}
	return events, nil
}

func newEventsDeleteCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete EVENT_ID...",
		Short: "Delete events by ID",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(cmd.Context(), cmd, flags)
			if err != nil {
				return err
			}
			defer sess.Close()

			results := batch.ProcessBatch(cmd.Context(), args, func(ctx context.Context, id string) (string, error) {
				return "deleted", sess.Calendar.DeleteEvent(ctx, id)
			})
			summary := batch.Summarize(results)
			for _, r := range results {
				if r.Status == batch.StatusSuccess {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", okStyle.Render("deleted"), r.ID)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", errorStyle.Render(r.Status), r.ID, r.Error)
				}
			}
			if summary.Failed > 0 || summary.Skipped > 0 {
				return fmt.Errorf("%d of %d deletions failed", summary.Failed+summary.Skipped, summary.Total)
			}
			return nil
		},
	}
}

func newEventsCalendarsCmd(flags *globalFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "calendars",
		Short: "List the calendars the account can see",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(cmd.Context(), cmd, flags)
			if err != nil {
				return err
			}
			defer sess.Close()

			cals, err := sess.Calendar.ListCalendars(cmd.Context())
			if err != nil {
				return calendarCommandError(err)
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), cals)
			}
			renderCalendars(cmd.OutOrStdout(), cals)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

// calendarCommandError adds a login hint to authorization failures.
func calendarCommandError(err error) error {
	if errors.Is(err, calendar.ErrNoToken) || errors.Is(err, calendar.ErrUnauthorized) {
		return fmt.Errorf("%w; run 'healthcal auth login'", err)
	}
	return err
}

// parseTimeFlag accepts RFC 3339 or a local YYYY-MM-DD. Empty yields def.
func parseTimeFlag(v string, def time.Time) (time.Time, error) {
	if v == "" {
		return def, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", v, time.Local)
}
