package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/healthcal/internal/backend"
	"github.com/teemow/healthcal/internal/calendar"
	"github.com/teemow/healthcal/internal/session"
)

func newMedsCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "meds",
		Short: "Medication reminders from the health backend",
	}
	cmd.AddCommand(newMedsExtractCmd(flags))
	cmd.AddCommand(newMedsSyncCmd(flags))
	cmd.AddCommand(newMedsClearCmd(flags))
	return cmd
}

func newMedsExtractCmd(flags *globalFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Show the medications the backend found in uploaded documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(cmd.Context(), cmd, flags)
			if err != nil {
				return err
			}
			defer sess.Close()

			res, err := sess.Backend.ExtractMedications(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			renderMedications(cmd.OutOrStdout(), res.Medications)
			if res.Summary.Summary != "" {
				fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render(res.Summary.Summary))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newMedsSyncCmd(flags *globalFlags) *cobra.Command {
	var (
		start  string
		days   int
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Create medication reminder events from the backend's schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			var startDate time.Time
			if start != "" {
				parsed, err := time.Parse("2006-01-02", start)
				if err != nil {
					return errors.New("--start must be YYYY-MM-DD")
				}
				startDate = parsed
			}

			sess, err := openSession(cmd.Context(), cmd, flags)
			if err != nil {
				return err
			}
			defer sess.Close()

			res, err := sess.Backend.MedicationCalendarEvents(cmd.Context(), startDate, days)
			if err != nil {
				return err
			}
			if len(res.Events) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("The backend returned no medication events."))
				return nil
			}
			if dryRun {
				renderEvents(cmd.OutOrStdout(), calendar.ToEventSummaries(res.Events))
				return nil
			}

			result := sess.Calendar.CreateEvents(cmd.Context(), res.Events)
			renderBatch(cmd.OutOrStdout(), result)
			if result.SuccessfulEvents == 0 {
				return errors.New("no medication events were created")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&start, "start", "", "First day of reminders, YYYY-MM-DD (default: today)")
	cmd.Flags().IntVar(&days, "days", backend.DefaultDurationDays, "Number of days to schedule")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show the events without creating them")
	return cmd
}

func newMedsClearCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-next-week",
		Short: "Ask the backend to remove medical events in the next seven days",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(cmd.Context(), cmd, flags)
			if err != nil {
				return err
			}
			defer sess.Close()

			accessToken, err := freshAccessToken(cmd.Context(), sess)
			if err != nil {
				return err
			}
			res, err := sess.Backend.ClearNextWeekMedicalDates(cmd.Context(), accessToken)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%d events cleared)\n", res.Message, res.EventsCleared)
			return nil
		},
	}
}

// freshAccessToken returns a non-expired access token, refreshing once if
// the stored one has expired.
func freshAccessToken(ctx context.Context, sess *session.Session) (string, error) {
	rec, err := sess.Tokens.GetStoredToken(ctx)
	if err != nil {
		return "", err
	}
	if rec == nil {
		return "", calendarCommandError(calendar.ErrNoToken)
	}
	if !sess.Tokens.IsTokenExpired(rec) {
		return rec.AccessToken, nil
	}
	if !sess.Google.RefreshToken(ctx) {
		return "", calendarCommandError(calendar.ErrUnauthorized)
	}
	rec, err = sess.Tokens.GetStoredToken(ctx)
	if err != nil {
		return "", err
	}
	return rec.AccessToken, nil
}
