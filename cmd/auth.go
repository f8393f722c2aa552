package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/healthcal/internal/oauthflow"
	"github.com/teemow/healthcal/internal/session"
)

func newAuthCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the Google Calendar authorization",
	}
	cmd.AddCommand(newAuthLoginCmd(flags))
	cmd.AddCommand(newAuthLogoutCmd(flags))
	cmd.AddCommand(newAuthStatusCmd(flags))
	cmd.AddCommand(newAuthRefreshCmd(flags))
	return cmd
}

func newAuthLoginCmd(flags *globalFlags) *cobra.Command {
	var noBrowser bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authorize calendar access in the browser",
		Long: `Open the Google consent page and wait for the redirect to the local
callback server. The resulting token is stored and refreshed automatically.

If a valid token is already stored, login succeeds without opening a browser.
Closing the browser tab or pressing Ctrl+C cancels the login.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			var opts []session.Option
			if noBrowser {
				opts = append(opts, session.WithOpener(oauthflow.PrintOpener{W: cmd.ErrOrStderr()}))
			}
			sess, err := openSession(ctx, cmd, flags, opts...)
			if err != nil {
				return err
			}
			defer sess.Close()

			fmt.Fprintln(cmd.ErrOrStderr(), mutedStyle.Render("Waiting for Google authorization..."))
			result, err := sess.Login(ctx)
			if err != nil {
				return err
			}
			if !result.Success {
				return fmt.Errorf("login failed (%s): %s", result.State, result.Error)
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("Authorized."))
			if result.Token != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Token valid until %s\n", result.Token.Expiry().Format(time.RFC1123))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Print the consent URL instead of opening a browser")
	return cmd
}

func newAuthLogoutCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored token",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(cmd.Context(), cmd, flags)
			if err != nil {
				return err
			}
			defer sess.Close()

			if err := sess.Google.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}

func newAuthStatusCmd(flags *globalFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether a valid token is stored",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(cmd.Context(), cmd, flags)
			if err != nil {
				return err
			}
			defer sess.Close()

			status, err := authStatus(cmd.Context(), sess)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), status)
			}

			pairs := [][2]string{
				{"Storage", sess.Config.Storage.Type},
				{"Authenticated", fmt.Sprint(status.Authenticated)},
			}
			if status.ExpiresAt != nil {
				pairs = append(pairs,
					[2]string{"Expires", status.ExpiresAt.Format(time.RFC1123)},
					[2]string{"Refresh token", fmt.Sprint(status.HasRefreshToken)},
					[2]string{"Scope", status.Scope},
				)
			} else {
				pairs = append(pairs, [2]string{"Hint", "run 'healthcal auth login'"})
			}
			renderKeyValues(cmd.OutOrStdout(), pairs)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

type tokenStatus struct {
	Authenticated   bool       `json:"authenticated"`
	HasRefreshToken bool       `json:"hasRefreshToken"`
	ExpiresAt       *time.Time `json:"expiresAt,omitempty"`
	Scope           string     `json:"scope,omitempty"`
}

func authStatus(ctx context.Context, sess *session.Session) (tokenStatus, error) {
	rec, err := sess.Tokens.GetStoredToken(ctx)
	if err != nil {
		return tokenStatus{}, err
	}
	if rec == nil {
		return tokenStatus{}, nil
	}
	expiry := rec.Expiry()
	return tokenStatus{
		Authenticated:   !sess.Tokens.IsTokenExpired(rec),
		HasRefreshToken: rec.RefreshToken != "",
		ExpiresAt:       &expiry,
		Scope:           rec.Scope,
	}, nil
}

func newAuthRefreshCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Exchange the stored refresh token for a new access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(cmd.Context(), cmd, flags)
			if err != nil {
				return err
			}
			defer sess.Close()

			if err := sess.Config.RequireClient(); err != nil {
				return err
			}
			if !sess.Google.RefreshToken(cmd.Context()) {
				return errors.New("token refresh failed; run 'healthcal auth login' again")
			}
			rec, err := sess.Tokens.GetStoredToken(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Token refreshed, valid until %s\n", rec.Expiry().Format(time.RFC1123))
			return nil
		},
	}
}
