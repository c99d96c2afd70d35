// Package credentials stores the bearer token used for the task server in the
// OS-native keyring, with fallback to the TASKLINE_TOKEN environment variable.
package credentials

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// EnvToken overrides the keyring when set
const EnvToken = "TASKLINE_TOKEN"

// DefaultService is the keyring service name used when none is configured
const DefaultService = "taskline"

// Source indicates where credentials were retrieved from
type Source string

const (
	SourceKeyring     Source = "keyring"
	SourceEnvironment Source = "environment"
	SourceNone        Source = "none"
)

// CredentialInfo contains credential information returned by Get()
type CredentialInfo struct {
	Source   Source // Where credentials came from
	Username string // Account identifier
	Token    string // Bearer token (never serialized)
	Found    bool   // Whether credentials were found
}

// JSON serializes the credential info to JSON (token excluded for security)
func (c *CredentialInfo) JSON() ([]byte, error) {
	output := struct {
		Username string `json:"username"`
		Source   string `json:"source"`
		Found    bool   `json:"found"`
	}{
		Username: c.Username,
		Source:   string(c.Source),
		Found:    c.Found,
	}
	return json.Marshal(output)
}

// Keyring is the interface for keyring operations
type Keyring interface {
	Set(service, account, password string) error
	Get(service, account string) (string, error)
	Delete(service, account string) error
}

// Manager handles credential operations
type Manager struct {
	keyring Keyring
	service string
	getenv  func(string) string
}

// ManagerOption is a functional option for Manager
type ManagerOption func(*Manager)

// WithKeyring sets a custom keyring implementation
func WithKeyring(k Keyring) ManagerOption {
	return func(m *Manager) {
		m.keyring = k
	}
}

// WithService sets the keyring service name
func WithService(service string) ManagerOption {
	return func(m *Manager) {
		if service = strings.TrimSpace(service); service != "" {
			m.service = service
		}
	}
}

// NewManager creates a new credential manager
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		keyring: &systemKeyring{},
		service: DefaultService,
		getenv:  os.Getenv,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Service returns the keyring service name in use
func (m *Manager) Service() string {
	return m.service
}

// normalizeUsername trims and lowercases account names
func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// Set stores a token in the keyring
func (m *Manager) Set(ctx context.Context, username, token string) error {
	username = normalizeUsername(username)
	if username == "" {
		return fmt.Errorf("username is required")
	}
	if token == "" {
		return fmt.Errorf("token is required")
	}
	return m.keyring.Set(m.service, username, token)
}

// Get retrieves the token for username (keyring first, then TASKLINE_TOKEN)
func (m *Manager) Get(ctx context.Context, username string) (*CredentialInfo, error) {
	username = normalizeUsername(username)

	// Priority 1: Try keyring
	if username != "" {
		token, err := m.keyring.Get(m.service, username)
		if err == nil && token != "" {
			return &CredentialInfo{
				Source:   SourceKeyring,
				Username: username,
				Token:    token,
				Found:    true,
			}, nil
		}
		if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrKeyringNotAvailable) {
			return nil, err
		}
	}

	// Priority 2: Try environment variable
	if token := m.getenv(EnvToken); token != "" {
		return &CredentialInfo{
			Source:   SourceEnvironment,
			Username: username,
			Token:    token,
			Found:    true,
		}, nil
	}

	// Not found
	return &CredentialInfo{
		Source:   SourceNone,
		Username: username,
		Found:    false,
	}, nil
}

// Delete removes a token from the keyring
func (m *Manager) Delete(ctx context.Context, username string) error {
	err := m.keyring.Delete(m.service, normalizeUsername(username))
	// Idempotent: return nil if not found
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// PromptPassword prompts for a secret. The terminal path in the CLI reads
// without echo; this variant reads a line from reader for non-TTY input.
func PromptPassword(reader io.Reader, writer io.Writer, label string) (string, error) {
	_, _ = fmt.Fprintf(writer, "%s: ", label)

	scanner := bufio.NewScanner(reader)
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text()), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("no input received")
}
