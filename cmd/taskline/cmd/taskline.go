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

	"taskline/backend/remote"
	"taskline/backend/sqlite"
	"taskline/internal/cli/prompt"
	"taskline/internal/config"
	"taskline/internal/credentials"
	"taskline/internal/ratelimit"
	"taskline/internal/shutdown"
	"taskline/internal/store"
	"taskline/internal/utils"
	"taskline/internal/views"
)

// Version is set at build time
var Version = "dev"

// Result codes for CLI output (used in no-prompt mode)
const (
	ResultActionCompleted = "ACTION_COMPLETED"
	ResultInfoOnly        = "INFO_ONLY"
	ResultError           = "ERROR"
)

// cleanupTimeout bounds how long in-flight requests may delay exit
const cleanupTimeout = 10 * time.Second

// Config holds application configuration. Empty fields fall back to the
// config file and XDG defaults; tests set them for isolation.
type Config struct {
	NoPrompt     bool
	Verbose      bool
	OutputFormat string
	ConfigPath   string              // Path to config.yaml
	DBPath       string              // Guest database path
	SessionPath  string              // Session marker file
	APIURL       string              // Task server base URL
	Keyring      credentials.Keyring // Keyring implementation (system keyring when nil)
	Stdin        io.Reader           // Prompt input (os.Stdin when nil)
	Now          func() time.Time    // Clock (time.Now when nil)
}

func (c *Config) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Config) stdin() io.Reader {
	if c.Stdin != nil {
		return c.Stdin
	}
	return os.Stdin
}

// Execute runs the CLI with the given arguments and IO writers
func Execute(args []string, stdout, stderr io.Writer, cfg *Config) int {
	rootCmd := NewTaskline(stdout, stderr, cfg)

	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.Execute(); err != nil {
		if containsJSONFlag(args) {
			outputErrorJSON(err, stdout)
		} else {
			_, _ = fmt.Fprintln(stderr, "Error:", err)
			if cfg != nil && cfg.NoPrompt {
				_, _ = fmt.Fprintln(stdout, ResultError)
			}
		}
		return 1
	}
	return 0
}

// containsJSONFlag checks if args contain --json flag
func containsJSONFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--json" {
			return true
		}
	}
	return false
}

// NewTaskline creates the root command with injectable IO
func NewTaskline(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	if cfg == nil {
		cfg = &Config{}
	}

	cmd := &cobra.Command{
		Use:     "taskline",
		Short:   "A time-boxed task manager",
		Long:    "taskline keeps time-boxed tasks on a timeline, locally as a guest or synced with a task server.",
		Version: Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("no-prompt", "y", false, "Disable interactive prompts")
	cmd.PersistentFlags().BoolP("verbose", "V", false, "Enable verbose/debug output")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	cmd.PersistentFlags().String("config", "", "Path to config file")

	cmd.AddCommand(newListCmd(stdout, cfg))
	cmd.AddCommand(newAddCmd(stdout, cfg))
	cmd.AddCommand(newUpdateCmd(stdout, cfg))
	cmd.AddCommand(newToggleCmd(stdout, cfg, true))
	cmd.AddCommand(newToggleCmd(stdout, cfg, false))
	cmd.AddCommand(newSubTaskCmd(stdout, cfg))
	cmd.AddCommand(newDeleteCmd(stdout, cfg))
	cmd.AddCommand(newStatsCmd(stdout, cfg))
	cmd.AddCommand(newTrendCmd(stdout, cfg))
	cmd.AddCommand(newLoginCmd(stdout, stderr, cfg))
	cmd.AddCommand(newLogoutCmd(stdout, cfg))
	cmd.AddCommand(newWhoamiCmd(stdout, cfg))
	cmd.AddCommand(newTUICmd(stderr, cfg))
	cmd.AddCommand(newConfigCmd(stdout, cfg))

	return cmd
}

// =============================================================================
// Application wiring
// =============================================================================

// app is everything one command invocation needs
type app struct {
	cfg      *Config
	conf     *config.Config
	stdout   io.Writer
	in       io.Reader // prompt input shared by every prompt of the command
	json     bool
	session  *credentials.Session
	client   *remote.Client
	store    *store.Store
	shutdown *shutdown.Manager
	failures int
}

// loadConfig reads the config file and applies the persistent flags
func loadConfig(cmd *cobra.Command, cfg *Config) (*config.Config, error) {
	noPrompt, _ := cmd.Flags().GetBool("no-prompt")
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		cfg.ConfigPath = path
	}

	conf, err := config.Load(cfg.ConfigPath)
	if err != nil {
		return nil, err
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	format := cfg.OutputFormat
	if jsonOutput {
		format = "json"
	}
	conf.ApplyFlags(noPrompt || cfg.NoPrompt, format, verbose || cfg.Verbose)
	cfg.NoPrompt = conf.NoPrompt
	utils.SetVerboseMode(conf.Logging.Verbose)
	return conf, nil
}

// newSession resolves the persisted identity
func newSession(ctx context.Context, conf *config.Config, cfg *Config) (*credentials.Session, error) {
	opts := []credentials.ManagerOption{credentials.WithService(conf.GetKeyringService())}
	if cfg.Keyring != nil {
		opts = append(opts, credentials.WithKeyring(cfg.Keyring))
	}

	path := cfg.SessionPath
	if path == "" {
		path = conf.GetSessionPath()
	}

	session := credentials.NewSession(credentials.NewManager(opts...), path)
	if _, err := session.Refresh(ctx); err != nil {
		return nil, err
	}
	return session, nil
}

func newClient(conf *config.Config, cfg *Config) *remote.Client {
	baseURL := cfg.APIURL
	if baseURL == "" {
		baseURL = conf.GetBaseURL()
	}
	return remote.New(remote.Config{
		BaseURL:    baseURL,
		Timeout:    conf.GetRemoteTimeout(),
		MaxRetries: conf.GetRateLimitRetries(),
		Stats:      ratelimit.NewStats(),
	})
}

// openApp loads the store for the current identity
func openApp(cmd *cobra.Command, stdout io.Writer, cfg *Config) (*app, error) {
	conf, err := loadConfig(cmd, cfg)
	if err != nil {
		return nil, err
	}

	sm := shutdown.NewManager(context.Background())
	ctx := sm.Context()

	session, err := newSession(ctx, conf, cfg)
	if err != nil {
		return nil, err
	}

	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = conf.GetGuestDBPath()
	}
	local, err := sqlite.New(dbPath)
	if err != nil {
		return nil, err
	}

	client := newClient(conf, cfg)

	state := views.DefaultState()
	if view, ok := views.ParseSmartList(conf.GetDefaultView()); ok {
		state.ActiveView = view
	}

	st := store.New(
		store.WithRemote(client),
		store.WithLocal(local),
		store.WithClock(cfg.now),
		store.WithSweepInterval(conf.GetSweepInterval()),
		store.WithSeedDemo(conf.IsSeedDemoEnabled()),
		store.WithViewState(state),
	)

	// cleanups run last-registered-first: the store drains before the
	// client's idle connections are dropped
	sm.RegisterCleanup("remote client", func(context.Context) error { return client.Close() })
	sm.RegisterCleanup("task store", func(context.Context) error { return st.Close() })

	a := &app{
		cfg:      cfg,
		conf:     conf,
		stdout:   stdout,
		in:       utils.NewLineReader(cfg.stdin()),
		json:     conf.OutputFormat == "json",
		session:  session,
		client:   client,
		store:    st,
		shutdown: sm,
	}

	if err := st.SetIdentity(ctx, session.Current()); err != nil {
		a.close()
		return nil, err
	}
	if st.IsRemote() && !st.Loaded() {
		err := a.failureSince(0)
		a.close()
		if err == nil {
			err = errors.New("failed to load tasks")
		}
		return nil, utils.ErrBackendOffline(client.BaseURL(), err.Error())
	}
	a.failures = st.SyncState().ErrorCount
	return a, nil
}

// settle waits for background requests and reports the first failure they
// recorded
func (a *app) settle() error {
	a.store.Wait()
	return a.failureSince(a.failures)
}

func (a *app) failureSince(mark int) error {
	failures := a.store.FailuresSince(mark)
	if len(failures) == 0 {
		return nil
	}
	f := failures[0]
	if f.TaskID != "" {
		return fmt.Errorf("failed to %s task %s: %s", f.Op, f.TaskID, f.Err)
	}
	return fmt.Errorf("failed to %s tasks: %s", f.Op, f.Err)
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if err := a.shutdown.Cleanup(ctx); err != nil {
		utils.Warnf("shutdown incomplete: %v", err)
	}
}

// withApp runs fn against a freshly loaded store and always releases it
func withApp(cmd *cobra.Command, stdout io.Writer, cfg *Config, fn func(a *app) error) error {
	a, err := openApp(cmd, stdout, cfg)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a)
}

// resolveTask expands an id prefix to a task id
func (a *app) resolveTask(prefix string) (string, error) {
	return a.store.ResolveID(prefix)
}

// pickTask resolves the optional id argument. Without one the user picks
// among the tasks action applies to.
func (a *app) pickTask(args []string, action string) (string, error) {
	if len(args) > 0 {
		return a.resolveTask(args[0])
	}

	selector := &prompt.TaskSelector{
		Tasks:    prompt.FilterTasksByAction(a.store.Tasks(), action, false),
		Prompt:   fmt.Sprintf("Select task to %s:", action),
		Reader:   a.in,
		Writer:   a.stdout,
		NoPrompt: a.cfg.NoPrompt || a.json,
	}
	task, err := selector.Run()
	if errors.Is(err, prompt.ErrNoPromptMode) {
		return "", utils.WrapWithSuggestion(errors.New("task id is required"), "Pass the task id or an unambiguous prefix of it")
	}
	if err != nil {
		return "", err
	}
	return task.ID, nil
}

func (a *app) result(code string) {
	if a.cfg.NoPrompt && !a.json {
		_, _ = fmt.Fprintln(a.stdout, code)
	}
}

// =============================================================================
// JSON Output
// =============================================================================

type errorResponse struct {
	Error  string `json:"error"`
	Code   int    `json:"code"`
	Result string `json:"result"`
}

func writeJSON(stdout io.Writer, v interface{}) error {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(stdout, string(jsonBytes))
	return nil
}

// outputErrorJSON outputs error in JSON format
func outputErrorJSON(err error, stdout io.Writer) {
	response := errorResponse{
		Error:  err.Error(),
		Code:   1,
		Result: ResultError,
	}
	_ = writeJSON(stdout, response)
}
