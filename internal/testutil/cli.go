// Package testutil provides shared test utilities for CLI testing across packages.
// This enables co-located CLI tests while maintaining consistent test infrastructure.
package testutil

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"taskline/cmd/taskline/cmd"
	"taskline/internal/config"
	"taskline/internal/credentials"
	"taskline/internal/datetime"
)

// DefaultNow is the clock every CLITest starts with: a Monday afternoon
const DefaultNow = "2024-06-10T12:30"

// defaultTestConfig keeps tests away from demo data, the session watcher and
// background log files
const defaultTestConfig = `# test config
guest:
  seed_demo: false
auth:
  watch_session: false
logging:
  background_enabled: false
`

// CLITest provides a test helper for running CLI commands in isolation.
type CLITest struct {
	t          *testing.T
	cfg        *cmd.Config
	tmpDir     string
	configPath string
	keyring    *credentials.MockKeyring
	now        time.Time
}

// NewCLITest creates a CLI test helper with an empty guest database, an
// in-memory keyring and a fixed clock at DefaultNow.
func NewCLITest(t *testing.T) *CLITest {
	t.Helper()

	// the environment must not leak a token or server into the test
	t.Setenv(config.EnvToken, "")
	t.Setenv(config.EnvAPIURL, "")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(defaultTestConfig), 0644); err != nil {
		t.Fatalf("failed to create config file: %v", err)
	}

	now, ok := datetime.Parse(DefaultNow)
	if !ok {
		t.Fatalf("invalid default clock %q", DefaultNow)
	}

	c := &CLITest{
		t:          t,
		tmpDir:     tmpDir,
		configPath: configPath,
		keyring:    credentials.NewMockKeyring(),
		now:        now,
	}
	c.cfg = &cmd.Config{
		NoPrompt:    true,
		ConfigPath:  configPath,
		DBPath:      filepath.Join(tmpDir, "guest.db"),
		SessionPath: filepath.Join(tmpDir, "session.json"),
		Keyring:     c.keyring,
		Stdin:       strings.NewReader(""),
		Now:         func() time.Time { return c.now },
	}
	return c
}

// NewCLITestWithDemo creates a CLI test helper whose guest store is seeded
// with the demonstration tasks on first use.
func NewCLITestWithDemo(t *testing.T) *CLITest {
	t.Helper()
	c := NewCLITest(t)
	c.SetConfigValue("guest", "\n  seed_demo: true")
	return c
}

// NewCLITestWithServer creates a CLI test helper pointed at a fake task server.
func NewCLITestWithServer(t *testing.T) (*CLITest, *TaskServer) {
	t.Helper()
	c := NewCLITest(t)
	srv := NewTaskServer(t)
	c.cfg.APIURL = srv.URL
	return c, srv
}

// Config returns the test configuration.
func (c *CLITest) Config() *cmd.Config {
	return c.cfg
}

// TmpDir returns the temporary directory for the test.
func (c *CLITest) TmpDir() string {
	return c.tmpDir
}

// ConfigPath returns the path to the config file.
func (c *CLITest) ConfigPath() string {
	return c.configPath
}

// Keyring returns the in-memory keyring tokens are stored in.
func (c *CLITest) Keyring() *credentials.MockKeyring {
	return c.keyring
}

// SetNow moves the clock seen by the next commands.
func (c *CLITest) SetNow(value string) {
	c.t.Helper()
	now, ok := datetime.Parse(value)
	if !ok {
		c.t.Fatalf("invalid clock %q", value)
	}
	c.now = now
}

// SetStdin sets the input read by prompts of the next commands.
func (c *CLITest) SetStdin(input string) {
	c.cfg.Stdin = strings.NewReader(input)
}

// SetPrompt enables or disables interactive prompts.
func (c *CLITest) SetPrompt(enabled bool) {
	c.cfg.NoPrompt = !enabled
}

// SetConfigValue replaces a top-level key of the test config file. value is
// written verbatim after "key:", so nested YAML starts with a newline.
func (c *CLITest) SetConfigValue(key, value string) {
	c.t.Helper()

	data, err := os.ReadFile(c.configPath)
	if err != nil {
		c.t.Fatalf("failed to read config file: %v", err)
	}

	// drop the existing block for key, then append the new one
	var kept []string
	skipping := false
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, key+":") {
			skipping = true
			continue
		}
		if skipping && (strings.HasPrefix(line, " ") || line == "") {
			continue
		}
		skipping = false
		kept = append(kept, line)
	}
	newConfig := strings.Join(kept, "\n") + "\n" + key + ": " + strings.TrimLeft(value, " ") + "\n"

	if err := os.WriteFile(c.configPath, []byte(newConfig), 0644); err != nil {
		c.t.Fatalf("failed to write config file: %v", err)
	}
}

// SetFullConfig replaces the entire config file with the given YAML content.
func (c *CLITest) SetFullConfig(yamlContent string) {
	c.t.Helper()
	if err := os.WriteFile(c.configPath, []byte(yamlContent), 0644); err != nil {
		c.t.Fatalf("failed to write config file: %v", err)
	}
}

// Execute runs a CLI command with the given arguments and returns stdout, stderr, and exit code.
func (c *CLITest) Execute(args ...string) (stdout, stderr string, exitCode int) {
	c.t.Helper()

	var stdoutBuf, stderrBuf bytes.Buffer
	exitCode = cmd.Execute(args, &stdoutBuf, &stderrBuf, c.cfg)
	return stdoutBuf.String(), stderrBuf.String(), exitCode
}

// MustExecute runs a CLI command and fails the test if exit code is non-zero.
func (c *CLITest) MustExecute(args ...string) string {
	c.t.Helper()

	stdout, stderr, exitCode := c.Execute(args...)
	if exitCode != 0 {
		c.t.Fatalf("expected exit code 0, got %d: stdout=%s stderr=%s", exitCode, stdout, stderr)
	}
	return stdout
}

// ExecuteAndFail runs a CLI command and fails the test if exit code is zero.
func (c *CLITest) ExecuteAndFail(args ...string) (stdout, stderr string) {
	c.t.Helper()

	stdout, stderr, exitCode := c.Execute(args...)
	if exitCode == 0 {
		c.t.Fatalf("expected non-zero exit code, got 0: stdout=%s", stdout)
	}
	return stdout, stderr
}

// ExecuteJSON runs a command with --json and decodes its output into v.
func (c *CLITest) ExecuteJSON(v interface{}, args ...string) {
	c.t.Helper()

	stdout := c.MustExecute(append(args, "--json")...)
	if err := json.Unmarshal([]byte(stdout), v); err != nil {
		c.t.Fatalf("invalid JSON output: %v\n%s", err, stdout)
	}
}

// Login stores token for username without contacting a server.
func (c *CLITest) Login(username, token string) {
	c.t.Helper()
	c.MustExecute("login", "--user", username, "--token", token)
}

// AddTask adds a task in JSON mode and returns its id.
func (c *CLITest) AddTask(args ...string) string {
	c.t.Helper()

	var resp struct {
		Task struct {
			ID string `json:"id"`
		} `json:"task"`
	}
	c.ExecuteJSON(&resp, append([]string{"add"}, args...)...)
	if resp.Task.ID == "" {
		c.t.Fatalf("add returned no task id")
	}
	return resp.Task.ID
}

// AssertContains fails the test if output doesn't contain expected string.
func AssertContains(t *testing.T, output, expected string) {
	t.Helper()
	if !strings.Contains(output, expected) {
		t.Errorf("expected output to contain %q, got:\n%s", expected, output)
	}
}

// AssertNotContains fails the test if output contains unexpected string.
func AssertNotContains(t *testing.T, output, unexpected string) {
	t.Helper()
	if strings.Contains(output, unexpected) {
		t.Errorf("expected output NOT to contain %q, got:\n%s", unexpected, output)
	}
}

// AssertExitCode fails the test if exit code doesn't match expected.
func AssertExitCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("expected exit code %d, got %d", want, got)
	}
}

// AssertResultCode verifies that the output ends with the expected result code.
func AssertResultCode(t *testing.T, output, expectedCode string) {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(output), "\n")
	lastLine := strings.TrimSpace(lines[len(lines)-1])
	if lastLine != expectedCode {
		t.Errorf("expected result code %q, got %q\nFull output:\n%s", expectedCode, lastLine, output)
	}
}

// Result code constants for convenience.
const (
	ResultActionCompleted = cmd.ResultActionCompleted
	ResultInfoOnly        = cmd.ResultInfoOnly
	ResultError           = cmd.ResultError
)
