package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teemow/healthcal/internal/backend"
)

// newAccountCmd manages the health backend account. It is separate from
// 'auth', which holds the Google Calendar credential.
func newAccountCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage the health backend account",
	}
	cmd.AddCommand(newAccountRegisterCmd(flags))
	cmd.AddCommand(newAccountLoginCmd(flags))
	cmd.AddCommand(newAccountSessionCmd(flags))
	cmd.AddCommand(newAccountLogoutCmd(flags))
	return cmd
}

type credentialFlags struct {
	email    string
	password string
}

func (c *credentialFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&c.email, "email", "", "Account email")
	cmd.Flags().StringVar(&c.password, "password", "", "Account password (default: read one line from stdin)")
	_ = cmd.MarkFlagRequired("email")
}

// resolvePassword reads the password from stdin when the flag is empty.
func (c *credentialFlags) resolvePassword(cmd *cobra.Command) (string, error) {
	if c.password != "" {
		return c.password, nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		if err != nil {
			return "", errors.New("no password given on stdin")
		}
		return "", errors.New("password is empty")
	}
	return line, nil
}

func printSessionToken(cmd *cobra.Command, res *backend.AuthResult) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s as %s\n", res.Message, res.User.Email)
	fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("Set this token as HEALTHCAL_BACKEND_TOKEN or backend.session_token:"))
	fmt.Fprintln(cmd.OutOrStdout(), res.AccessToken)
}

func newAccountRegisterCmd(flags *globalFlags) *cobra.Command {
	var (
		creds    credentialFlags
		username string
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a backend account",
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := creds.resolvePassword(cmd)
			if err != nil {
				return err
			}

			sess, err := openSession(cmd.Context(), cmd, flags)
			if err != nil {
				return err
			}
			defer sess.Close()

			res, err := sess.Backend.Register(cmd.Context(), backend.RegisterRequest{
				Email:    creds.email,
				Password: password,
				Username: username,
			})
			if err != nil {
				return err
			}
			printSessionToken(cmd, res)
			return nil
		},
	}

	creds.bind(cmd)
	cmd.Flags().StringVar(&username, "username", "", "Display name")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func newAccountLoginCmd(flags *globalFlags) *cobra.Command {
	var creds credentialFlags

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the backend and print a session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := creds.resolvePassword(cmd)
			if err != nil {
				return err
			}

			sess, err := openSession(cmd.Context(), cmd, flags)
			if err != nil {
				return err
			}
			defer sess.Close()

			res, err := sess.Backend.Login(cmd.Context(), creds.email, password)
			if err != nil {
				return err
			}
			printSessionToken(cmd, res)
			return nil
		},
	}

	creds.bind(cmd)
	return cmd
}

func newAccountSessionCmd(flags *globalFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "session",
		Short: "Show the account behind the configured session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(cmd.Context(), cmd, flags)
			if err != nil {
				return err
			}
			defer sess.Close()

			info, err := sess.Backend.Session(cmd.Context(), sess.Config.Backend.SessionToken)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), info.User)
			}
			renderKeyValues(cmd.OutOrStdout(), [][2]string{
				{"Email", info.User.Email},
				{"Username", info.User.Username},
				{"ID", info.User.ID},
			})
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newAccountLogoutCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the backend session",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(cmd.Context(), cmd, flags)
			if err != nil {
				return err
			}
			defer sess.Close()

			if err := sess.Backend.Logout(cmd.Context(), sess.Config.Backend.SessionToken); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out. Unset HEALTHCAL_BACKEND_TOKEN to forget the token.")
			return nil
		},
	}
}
