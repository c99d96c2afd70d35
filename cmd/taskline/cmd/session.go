package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"taskline/internal/config"
	"taskline/internal/credentials"
	"taskline/internal/tui"
	"taskline/internal/utils"
	"taskline/internal/watcher"
)

// =============================================================================
// login / logout / whoami
// =============================================================================

type identityResponse struct {
	LoggedIn bool   `json:"loggedIn"`
	Username string `json:"username,omitempty"`
	Source   string `json:"source,omitempty"`
	Server   string `json:"server"`
	Result   string `json:"result"`
}

func newLoginCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the task server",
		Long: `Log in to the task server. The password is exchanged for a token which is
stored in the system keyring; --token stores an existing token instead.
Other running taskline processes switch to the new account.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig(cmd, cfg)
			if err != nil {
				return err
			}
			username, _ := cmd.Flags().GetString("user")
			token, _ := cmd.Flags().GetString("token")
			register, _ := cmd.Flags().GetBool("register")
			if strings.TrimSpace(username) == "" {
				return utils.WrapWithSuggestion(errors.New("username is required"), "Pass --user NAME")
			}

			ctx := context.Background()
			session, err := newSession(ctx, conf, cfg)
			if err != nil {
				return err
			}

			if token == "" {
				client := newClient(conf, cfg)
				defer func() { _ = client.Close() }()

				password, err := readPassword(cfg, stderr)
				if err != nil {
					return err
				}
				if register {
					if err := client.Register(ctx, username, password); err != nil {
						return fmt.Errorf("registration failed: %w", err)
					}
				}
				token, err = client.Login(ctx, username, password)
				if err != nil {
					return fmt.Errorf("login failed: %w", err)
				}
			}

			if err := session.Login(ctx, username, token); err != nil {
				return err
			}
			return outputIdentity(stdout, conf, cfg, session.Current(), ResultActionCompleted)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().StringP("user", "u", "", "Account name")
	cmd.Flags().String("token", "", "Store this token instead of logging in with a password")
	cmd.Flags().Bool("register", false, "Create the account before logging in")
	return cmd
}

// readPassword reads without echo from a terminal, or a line otherwise
func readPassword(cfg *Config, prompt io.Writer) (string, error) {
	if f, ok := cfg.stdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		_, _ = fmt.Fprint(prompt, "Password: ")
		secret, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(secret), nil
	}
	return credentials.PromptPassword(cfg.stdin(), prompt, "Password")
}

func newLogoutCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out and return to guest mode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig(cmd, cfg)
			if err != nil {
				return err
			}
			ctx := context.Background()
			session, err := newSession(ctx, conf, cfg)
			if err != nil {
				return err
			}
			if err := session.Logout(ctx); err != nil {
				return err
			}

			current := session.Current()
			if !current.IsGuest() && !conf.NoPrompt && conf.OutputFormat != "json" {
				_, _ = fmt.Fprintf(stdout, "A token from %s is still in effect\n", current.Source)
			}
			return outputIdentity(stdout, conf, cfg, current, ResultActionCompleted)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

func newWhoamiCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig(cmd, cfg)
			if err != nil {
				return err
			}
			session, err := newSession(context.Background(), conf, cfg)
			if err != nil {
				return err
			}
			return outputIdentity(stdout, conf, cfg, session.Current(), ResultInfoOnly)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

func outputIdentity(stdout io.Writer, conf *config.Config, cfg *Config, id credentials.Identity, result string) error {
	server := cfg.APIURL
	if server == "" {
		server = conf.GetBaseURL()
	}

	if conf.OutputFormat == "json" {
		response := identityResponse{
			LoggedIn: !id.IsGuest(),
			Username: id.Username,
			Server:   server,
			Result:   result,
		}
		if !id.IsGuest() {
			response.Source = string(id.Source)
		}
		return writeJSON(stdout, response)
	}

	if id.IsGuest() {
		_, _ = fmt.Fprintln(stdout, "Guest (not logged in), tasks are stored locally")
	} else {
		_, _ = fmt.Fprintf(stdout, "Logged in as %s on %s\n", id, server)
	}
	if conf.NoPrompt {
		_, _ = fmt.Fprintln(stdout, result)
	}
	return nil
}

// =============================================================================
// tui
// =============================================================================

func newTUICmd(stderr io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Launch the interactive timeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, stderr, cfg)
			if err != nil {
				return err
			}
			defer a.close()
			return runTUI(a)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// runTUI drives the store from the terminal UI. Log lines go to the
// background log file while the alternate screen is active, and an identity
// change made by another process reloads the collection.
func runTUI(a *app) error {
	bl, err := utils.NewBackgroundLoggerWithEnabled(a.conf.IsBackgroundLoggingEnabled())
	if err != nil {
		utils.Warnf("background logging disabled: %v", err)
	}
	prev := utils.SetOutput(bl)
	a.shutdown.RegisterCleanup("background log", func(context.Context) error {
		utils.SetOutput(prev)
		bl.Close()
		return nil
	})

	ctx := a.shutdown.Context()
	stopSignals := a.shutdown.HandleSignals()
	defer stopSignals()

	unsubscribe := a.session.Subscribe(func(id credentials.Identity) {
		utils.Infof("identity changed to %s, reloading", id)
		if err := a.store.SetIdentity(ctx, id); err != nil {
			utils.Warnf("failed to switch identity: %v", err)
		}
	})
	defer unsubscribe()

	if a.conf.IsSessionWatchEnabled() {
		w, err := watcher.New(watcher.DefaultConfig(a.session.Path(), func() {
			if _, err := a.session.Refresh(ctx); err != nil {
				utils.Warnf("failed to refresh session: %v", err)
			}
		}))
		if err != nil {
			return err
		}
		if err := w.Start(); err != nil {
			utils.Warnf("session watch disabled: %v", err)
		}
		a.shutdown.RegisterCleanup("session watcher", func(context.Context) error {
			w.Stop()
			return nil
		})
	}

	a.store.Start(ctx)

	model := tui.New(ctx, a.store)
	defer model.Close()

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}

// =============================================================================
// config
// =============================================================================

func newConfigCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(cmd, cfg); err != nil {
				return err
			}
			path := cfg.ConfigPath
			if path == "" {
				path = config.DefaultPath()
			}
			_, _ = fmt.Fprintln(stdout, path)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig(cmd, cfg)
			if err != nil {
				return err
			}
			if conf.OutputFormat == "json" {
				return writeJSON(stdout, conf)
			}
			data, err := yaml.Marshal(conf)
			if err != nil {
				return err
			}
			_, _ = stdout.Write(data)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	})

	return cmd
}
