package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/raine/kanda-client/internal/kanda"
	"github.com/raine/kanda-client/internal/router"
	"github.com/raine/kanda-client/internal/session"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newLoginCmd(e *env) *cobra.Command {
	var creds kanda.Credentials
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session token",
		Long: formatText(`
			Sign in with your email and password. Missing values are prompted
			for; the password is read without echo.
		`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if creds.Email == "" {
				if creds.Email, err = e.readLine("Email: "); err != nil {
					return err
				}
			}
			if creds.Password == "" {
				if creds.Password, err = e.password("Password: "); err != nil {
					return err
				}
			}

			res, err := e.app.Session.Login(cmd.Context(), creds)
			if err != nil {
				var loginErr *session.LoginError
				if errors.As(err, &loginErr) {
					return errors.New(loginErr.Message)
				}
				return err
			}
			return e.emit(res.User, func(w io.Writer) {
				name := creds.Email
				if res.User != nil && res.User.Username != "" {
					name = res.User.Username
				}
				fmt.Fprintf(w, "Logged in as %s\n", name)
			})
		},
	}
	cmd.Flags().StringVar(&creds.Email, "email", "", "Account email")
	cmd.Flags().StringVar(&creds.Password, "password", "", "Account password (prompted when omitted)")
	return withRoute(cmd, "/login")
}

func newLogoutCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e.app.Session.Logout(cmd.Context())
			return e.emit(map[string]bool{"logged_out": true}, func(w io.Writer) {
				fmt.Fprintln(w, "Logged out")
			})
		},
	}
}

type statusReport struct {
	APIURL        string      `json:"api_url"`
	Reachable     bool        `json:"reachable"`
	Authenticated bool        `json:"authenticated"`
	Phase         string      `json:"phase"`
	Error         string      `json:"error,omitempty"`
	ExpiresAt     *time.Time  `json:"expires_at,omitempty"`
	User          *kanda.User `json:"user,omitempty"`
}

func newStatusCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check the backend and the stored session",
		Long: formatText(`
			Probe the backend, verify the stored token with the server and
			show when it expires. Exits with status 2 when the backend cannot
			be reached.
		`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl := e.app.Session
			ctrl.CheckAuthStatus(cmd.Context())
			state := ctrl.State()

			report := statusReport{
				APIURL:        e.app.Gateway.BaseURL(),
				Reachable:     state.ConnectionError == "",
				Authenticated: state.Authenticated,
				Phase:         state.Phase().String(),
				Error:         state.Error,
			}
			if !report.Reachable {
				report.Error = state.ConnectionError
			}
			if rec, ok := e.app.Tokens.Record(); ok {
				exp := rec.ExpiresAt()
				report.ExpiresAt = &exp
			}
			if state.Authenticated {
				report.User = ctrl.CurrentUser()
			}

			if err := e.emit(report, func(w io.Writer) { printStatus(w, report) }); err != nil {
				return err
			}
			if !report.Reachable {
				return errUnreachable
			}
			return nil
		},
	}
}

func printStatus(w io.Writer, r statusReport) {
	server := "reachable"
	if !r.Reachable {
		server = "unreachable"
	}
	fmt.Fprintf(w, "Server:   %s (%s)\n", r.APIURL, server)
	sess := "not logged in"
	if r.Authenticated {
		sess = "logged in"
		if r.User != nil {
			sess += " as " + r.User.Username
		}
	}
	fmt.Fprintf(w, "Session:  %s\n", sess)
	if r.ExpiresAt != nil {
		fmt.Fprintf(w, "Expires:  %s\n", r.ExpiresAt.Local().Format(time.RFC1123))
	}
	if r.Error != "" {
		fmt.Fprintf(w, "Error:    %s\n", r.Error)
	}
}

func newRegisterCmd(e *env) *cobra.Command {
	var reg kanda.Registration
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a new account",
		Long: formatText(`
			Create an account. An activation link is emailed to you; open it
			or pass its parts to "kanda activate".
		`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if reg.Password == "" {
				var err error
				if reg.Password, err = e.password("Password: "); err != nil {
					return err
				}
			}
			res, err := e.app.Session.Register(cmd.Context(), reg)
			if err != nil {
				return err
			}
			return e.emit(res, func(w io.Writer) {
				fmt.Fprintln(w, orText(res.Message, "Account created, check your email to activate it"))
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&reg.Email, "email", "", "Account email")
	f.StringVar(&reg.Password, "password", "", "Account password (prompted when omitted)")
	f.StringVar(&reg.Username, "username", "", "Username (derived from the email when omitted)")
	f.StringVar(&reg.FirstName, "first-name", "", "First name")
	f.StringVar(&reg.LastName, "last-name", "", "Last name")
	cmd.MarkFlagRequired("email")
	return withRoute(cmd, "/register")
}

func newActivateCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activate <uid> <token>",
		Short: "Activate an account from the emailed link",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := e.app.Session.Activate(cmd.Context(), args[0], args[1])
			if err != nil {
				if errors.Is(err, kanda.ErrValidation) || errors.Is(err, kanda.ErrNotFound) {
					e.app.Router.Navigate(e.app.Router.PathOf(router.ActivateInvalid))
					return fmt.Errorf("activation link is invalid or expired, run `kanda resend-activation`: %w", err)
				}
				return err
			}
			return e.emit(res, func(w io.Writer) {
				fmt.Fprintln(w, orText(res.Message, "Account activated, you can now log in"))
			})
		},
	}
	return withRoute(cmd, "/activate/uid/token")
}

func newResendActivationCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resend-activation <email>",
		Short: "Send the activation email again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := e.app.Session.ResendActivation(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return e.emit(res, func(w io.Writer) {
				fmt.Fprintln(w, orText(res.Message, "Activation email sent"))
			})
		},
	}
	return withRoute(cmd, "/resend-activation")
}

type dashboardReport struct {
	User        kanda.User        `json:"user"`
	Message     string            `json:"message,omitempty"`
	Characters  []kanda.Character `json:"characters"`
	JoinedRooms []kanda.Room      `json:"joined_rooms"`
}

func newDashboardCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show your profile, characters and joined rooms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				report dashboardReport
				dash   *kanda.DashboardResponse
			)
			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				var err error
				dash, err = e.app.Session.Dashboard(ctx)
				return err
			})
			g.Go(func() error {
				var err error
				report.Characters, err = e.app.Client.Characters.List(ctx)
				return err
			})
			g.Go(func() error {
				e.app.Rooms.FetchJoined(ctx)
				report.JoinedRooms = e.app.Rooms.JoinedRooms()
				return e.app.Rooms.Err()
			})
			if err := g.Wait(); err != nil {
				return err
			}
			report.User = dash.User
			report.Message = dash.Message

			return e.emit(report, func(w io.Writer) {
				fmt.Fprintf(w, "%s\n\n", orText(report.Message, "Welcome, "+report.User.Username))
				fmt.Fprintf(w, "Characters (%d)\n", len(report.Characters))
				printCharacters(w, report.Characters)
				fmt.Fprintf(w, "\nJoined rooms (%d)\n", len(report.JoinedRooms))
				printRooms(w, report.JoinedRooms)
			})
		},
	}
	return withRoute(cmd, "/dashboard")
}

func orText(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
