// Package cli is the kanda command-line client.
package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/lithammer/dedent"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/raine/kanda-client/config"
	"github.com/raine/kanda-client/internal/app"
	"github.com/raine/kanda-client/internal/kanda"
	"github.com/raine/kanda-client/internal/router"
	"github.com/raine/kanda-client/internal/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// Exit codes.
const (
	ExitOK          = 0
	ExitError       = 1
	ExitUnreachable = 2
)

// routeAnnotation names the view a command belongs to. The router guards
// decide whether the command may run.
const routeAnnotation = "route"

var (
	errUnreachable  = errors.New("backend is unreachable")
	errNotLoggedIn  = errors.New("not logged in, run `kanda login` first")
	errAlreadyInUse = errors.New("already logged in, run `kanda logout` first")
)

type globalOptions struct {
	apiURL      string
	json        bool
	logFile     string
	metricsFile string
	noPersist   bool
}

// env is the state shared by one invocation's commands.
type env struct {
	opts globalOptions

	out    io.Writer
	errOut io.Writer
	in     *bufio.Reader

	// store replaces the session database when set.
	store storage.KeyValueStore
	// readPassword reads a secret without echo. Nil reads a line from in.
	readPassword func() (string, error)

	app      *app.App
	registry *prometheus.Registry
	logFile  *os.File
}

// formatText dedents a multi-line literal and applies fmt.Sprintf.
func formatText(text string, a ...any) string {
	return fmt.Sprintf(strings.TrimSpace(dedent.Dedent(text)), a...)
}

var rootLong = formatText(`
	kanda is a command-line client for the Kanda collaborative storytelling
	platform. It manages your session, characters, universes and rooms.

	Configuration is read from the environment and from %s in the
	user config directory. Flags override the environment.

	Environment Variables:
	  %s   Backend API URL (default: %s)
	  %s   Request timeout (default: %s)
	  %s   Session database path
	  %s  Passphrase used to encrypt the stored session
	  %s  Log level (default: %s)
`,
	config.EnvFileName,
	config.EnvAPIURL, config.DefaultAPIURL,
	config.EnvTimeout, config.DefaultTimeout,
	config.EnvDBPath,
	config.EnvTokenKey,
	config.EnvLogLevel, config.DefaultLogLevel,
)

func newRootCmd(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:           "kanda",
		Short:         "Command-line client for the Kanda storytelling platform",
		Long:          rootLong,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&e.opts.apiURL, "api-url", "", "Backend API URL (overrides "+config.EnvAPIURL+")")
	flags.BoolVar(&e.opts.json, "json", false, "Output JSON instead of human-readable text")
	flags.StringVar(&e.opts.logFile, "log-file", "", "Also write logs to this file")
	flags.StringVar(&e.opts.metricsFile, "metrics-file", "", "Write request metrics in Prometheus text format to this file")
	flags.BoolVar(&e.opts.noPersist, "no-persist", false, "Keep the session in memory only")

	root.AddCommand(
		newLoginCmd(e),
		newLogoutCmd(e),
		newStatusCmd(e),
		newRegisterCmd(e),
		newActivateCmd(e),
		newResendActivationCmd(e),
		newDashboardCmd(e),
		newCharactersCmd(e),
		newUniversesCmd(e),
		newRoomsCmd(e),
		newStoryCmd(e),
		newChaptersCmd(e),
		newActionsCmd(e),
	)
	return root
}

// Execute runs the CLI with the process arguments and returns the exit code.
func Execute() int {
	e := &env{
		out:          os.Stdout,
		errOut:       os.Stderr,
		in:           bufio.NewReader(os.Stdin),
		readPassword: readTerminalPassword,
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return run(ctx, e, os.Args[1:])
}

func run(ctx context.Context, e *env, args []string) int {
	root := newRootCmd(e)
	root.SetArgs(args)
	root.SetOut(e.out)
	root.SetErr(e.errOut)

	err := root.ExecuteContext(ctx)
	e.close()
	if err != nil {
		fmt.Fprintf(e.errOut, "Error: %v\n", err)
		return exitCode(err)
	}
	return ExitOK
}

func exitCode(err error) int {
	if errors.Is(err, errUnreachable) || errors.Is(err, kanda.ErrNetwork) {
		return ExitUnreachable
	}
	return ExitError
}

func (e *env) setup(cmd *cobra.Command) error {
	config.LoadEnvFile()
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if e.opts.apiURL != "" {
		cfg.APIURL = e.opts.apiURL
	}
	if err := e.setupLogging(cfg.LogLevel); err != nil {
		return err
	}

	opts := app.Options{Store: e.store}
	if opts.Store == nil && e.opts.noPersist {
		opts.Store = storage.NewMemoryStore()
	}
	if e.opts.metricsFile != "" {
		e.registry = prometheus.NewRegistry()
		opts.Registry = e.registry
	}

	a, err := app.New(cfg, opts)
	if err != nil {
		return err
	}
	e.app = a
	log.Debug().Str("apiURL", cfg.APIURL).Str("command", cmd.CommandPath()).Msg("client initialized")

	a.Router.OnChange(func(from, to router.Match) {
		if to.Name == router.Login && from.Name != "" && from.Name != router.Login {
			fmt.Fprintln(e.errOut, "Your session is no longer valid. Run `kanda login` to sign in again.")
		}
	})

	route, ok := cmd.Annotations[routeAnnotation]
	if !ok {
		return nil
	}
	want := a.Router.Resolve(route)
	got := a.Router.Navigate(route)
	if got.Name == want.Name {
		return nil
	}
	if got.Name == router.Login {
		return errNotLoggedIn
	}
	return errAlreadyInUse
}

func (e *env) setupLogging(level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(lvl)

	consoleWriter := zerolog.ConsoleWriter{Out: e.errOut}
	if e.opts.logFile == "" {
		log.Logger = log.Output(consoleWriter)
		return nil
	}

	f, err := os.OpenFile(e.opts.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	e.logFile = f
	fileWriter := zerolog.ConsoleWriter{Out: f, NoColor: true}
	log.Logger = log.Output(io.MultiWriter(consoleWriter, fileWriter))
	return nil
}

func (e *env) close() {
	if e.registry != nil {
		if err := prometheus.WriteToTextfile(e.opts.metricsFile, e.registry); err != nil {
			log.Warn().Err(err).Str("path", e.opts.metricsFile).Msg("failed to write metrics")
		}
	}
	if e.app != nil {
		if err := e.app.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close session store")
		}
	}
	if e.logFile != nil {
		e.logFile.Close()
	}
}

// emit writes v as JSON when --json is set, otherwise calls human.
func (e *env) emit(v any, human func(w io.Writer)) error {
	if e.opts.json {
		enc := json.NewEncoder(e.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	human(e.out)
	return nil
}

func (e *env) readLine(prompt string) (string, error) {
	fmt.Fprint(e.errOut, prompt)
	line, err := e.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func (e *env) password(prompt string) (string, error) {
	if e.readPassword == nil {
		return e.readLine(prompt)
	}
	fmt.Fprint(e.errOut, prompt)
	pw, err := e.readPassword()
	fmt.Fprintln(e.errOut)
	return pw, err
}

// readTerminalPassword reads from the terminal without echo. When stdin is
// not a terminal it returns an error so scripts pass --password instead.
func readTerminalPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("stdin is not a terminal, pass --password")
	}
	b, err := term.ReadPassword(fd)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(b), nil
}

func withRoute(cmd *cobra.Command, route string) *cobra.Command {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations[routeAnnotation] = route
	return cmd
}
