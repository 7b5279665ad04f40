// gatectl drives the visitor-management auth backend from the terminal:
// sign in (with OTP step-up), inspect the account, manage sessions, and run
// the password flows. Credentials persist between invocations in a file
// store, or in redis when GATEHOUSE_REDIS_URL is set.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"gatehouse/internal/auth"
	"gatehouse/internal/authweb"
	"gatehouse/internal/gateway"
	"gatehouse/internal/platform/config"
	"gatehouse/internal/platform/logger"
	"gatehouse/internal/session"
	"gatehouse/internal/tokenstore"
	"gatehouse/pkg/platform/circuit"
)

const usage = `usage: gatectl <command> [flags]

commands:
  login           sign in (prompts for the OTP code when required)
  logout          end the current session
  logout-all      revoke every session of the account
  whoami          show the signed-in account
  sessions        list active sessions
  revoke          terminate one session by id
  signup          register a new account
  change-password change the account password
  reset-password  run the email + OTP password reset flow
  watch           follow auth state changes until interrupted
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "gatectl:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("command required")
	}

	// Local overrides only; absence of a .env file is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel)

	store, err := buildStore(cfg)
	if err != nil {
		return err
	}

	gw, err := gateway.New(gateway.Config{
		BaseURL:    cfg.APIURL,
		AppID:      cfg.AppID,
		ServiceKey: cfg.ServiceKey,
		Timeout:    cfg.HTTPTimeout,
	}, store,
		gateway.WithLogger(log),
		gateway.WithBreaker(circuit.New("backend")),
	)
	if err != nil {
		return err
	}

	manager, err := auth.New(gw, store, auth.WithLogger(log))
	if err != nil {
		return err
	}
	sessions, err := session.New(gw, manager.ForceSignOut, session.WithLogger(log))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &app{cfg: cfg, manager: manager, sessions: sessions, in: bufio.NewReader(os.Stdin)}

	switch cmd, rest := args[0], args[1:]; cmd {
	case "login":
		return app.login(ctx, rest)
	case "logout":
		return app.logout(ctx)
	case "logout-all":
		return app.logoutAll(ctx)
	case "whoami":
		return app.whoami(ctx)
	case "sessions":
		return app.listSessions(ctx)
	case "revoke":
		return app.revoke(ctx, rest)
	case "signup":
		return app.signup(ctx, rest)
	case "change-password":
		return app.changePassword(ctx, rest)
	case "reset-password":
		return app.resetPassword(ctx, rest)
	case "watch":
		return app.watch(ctx)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// buildStore picks the token store backend: redis when configured, otherwise
// a file under the user's home so credentials survive between invocations.
func buildStore(cfg config.Config) (tokenstore.Store, error) {
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return tokenstore.NewRedis(redis.NewClient(opts)), nil
	}

	path := cfg.TokenFile
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		path = filepath.Join(home, ".gatehouse", "credentials.json")
	}
	return tokenstore.NewFile(path), nil
}

type app struct {
	cfg      config.Config
	manager  *auth.Manager
	sessions *session.Manager
	in       *bufio.Reader
}

func (a *app) prompt(label string) (string, error) {
	fmt.Print(label)
	line, err := a.in.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.fillCredentials(email, password); err != nil {
		return err
	}

	res, err := a.manager.SignIn(ctx, *email, *password)
	if err != nil {
		return err
	}

	if res.OTPRequired {
		code, err := a.prompt("verification code: ")
		if err != nil {
			return err
		}
		user, err := a.manager.VerifyOTP(ctx, *email, code)
		if err != nil {
			return err
		}
		fmt.Printf("signed in as %s (%s)\n", user.Email, user.Role)
		return nil
	}

	fmt.Printf("signed in as %s (%s)\n", res.User.Email, res.User.Role)
	return nil
}

func (a *app) fillCredentials(email, password *string) error {
	var err error
	if *email == "" {
		if *email, err = a.prompt("email: "); err != nil {
			return err
		}
	}
	if *password == "" {
		if *password, err = a.prompt("password: "); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) logout(ctx context.Context) error {
	res, err := a.sessions.LogoutCurrent(ctx)
	if err != nil {
		return err
	}
	if res.Acknowledged {
		fmt.Println("logged out")
	} else {
		fmt.Println("logged out locally; the backend could not be reached")
	}
	return nil
}

func (a *app) logoutAll(ctx context.Context) error {
	res, err := a.sessions.LogoutAllDevices(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("revoked %d session(s)\n", res.RevokedCount)
	return nil
}

func (a *app) whoami(ctx context.Context) error {
	if err := a.manager.Initialize(ctx); err != nil {
		return err
	}
	state := a.manager.State()
	if !state.IsAuthenticated || state.User == nil {
		fmt.Println("not signed in")
		return nil
	}
	u := state.User
	fmt.Printf("%s %s <%s> role=%s verified=%t\n",
		u.FirstName, u.LastName, u.Email, u.Role, u.EmailVerified)
	return nil
}

func (a *app) listSessions(ctx context.Context) error {
	res, err := a.sessions.ListSessions(ctx)
	if err != nil {
		return err
	}
	if !res.Success {
		fmt.Println("session list unavailable")
		return nil
	}
	fmt.Printf("%d active session(s)\n", res.Total)
	for _, s := range res.Sessions {
		fmt.Printf("  %s  ip=%s  created=%s  expires=%s\n",
			s.ID, s.IPAddress,
			s.CreatedAt.Format(time.RFC3339), s.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

func (a *app) revoke(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: gatectl revoke <session-id>")
	}
	msg, err := a.sessions.TerminateSession(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Println(msg)
	return nil
}

func (a *app) signup(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("signup", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	first := fs.String("first-name", "", "first name")
	last := fs.String("last-name", "", "last name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.fillCredentials(email, password); err != nil {
		return err
	}

	msg, err := a.manager.SignUp(ctx, auth.SignUpParams{
		Email:     *email,
		Password:  *password,
		FirstName: *first,
		LastName:  *last,
	})
	if err != nil {
		return err
	}
	fmt.Println(msg)
	return nil
}

func (a *app) changePassword(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("change-password", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	current, err := a.prompt("current password: ")
	if err != nil {
		return err
	}
	next, err := a.prompt("new password: ")
	if err != nil {
		return err
	}
	msg, err := a.manager.ChangePassword(ctx, current, next)
	if err != nil {
		return err
	}
	fmt.Println(msg)
	return nil
}

func (a *app) resetPassword(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reset-password", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		var err error
		if *email, err = a.prompt("email: "); err != nil {
			return err
		}
	}

	msg, err := a.manager.RequestPasswordReset(ctx, *email)
	if err != nil {
		return err
	}
	fmt.Println(msg)

	code, err := a.prompt("reset code: ")
	if err != nil {
		return err
	}
	if _, err := a.manager.VerifyPasswordResetOTP(ctx, *email, code); err != nil {
		return err
	}

	next, err := a.prompt("new password: ")
	if err != nil {
		return err
	}
	msg, err = a.manager.ConfirmPasswordReset(ctx, *email, code, next)
	if err != nil {
		return err
	}
	fmt.Println(msg)
	return nil
}

// watch streams this process's auth state transitions until interrupted.
func (a *app) watch(ctx context.Context) error {
	guard, err := authweb.NewGuard(a.manager)
	if err != nil {
		return err
	}
	states := guard.Watch(ctx)

	if err := a.manager.Initialize(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case st, ok := <-states:
			if !ok {
				return nil
			}
			switch {
			case st.Err != "":
				fmt.Printf("error: %s\n", st.Err)
			case st.IsAuthenticated && st.User != nil:
				fmt.Printf("signed in: %s (%s)\n", st.User.Email, st.User.Role)
			default:
				fmt.Println("signed out")
			}
		}
	}
}
