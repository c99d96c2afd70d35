// Package remote provides the client for the taskline REST API.
//
// The server speaks its own wire dialect: time windows travel as
// startTime/endTime in "YYYY-MM-DD HH:mm" form, completed tasks are reported
// as DONE, and ids may be JSON numbers or strings. Everything is converted to
// the backend model at this boundary.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"taskline/backend"
	"taskline/internal/datetime"
	"taskline/internal/ratelimit"
)

const (
	// DefaultBaseURL is used when no base URL is configured
	DefaultBaseURL = "http://localhost:8080"

	tasksPath    = "/api/tasks"
	loginPath    = "/api/auth/login"
	registerPath = "/api/auth/register"
)

// Config holds remote API connection settings
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int // retries on HTTP 429, 0 makes a 429 final
	Stats      *ratelimit.Stats
}

// Client implements backend.TaskAPI over HTTP
type Client struct {
	baseURL string
	http    *ratelimit.Client
}

// New creates a remote API client
func New(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Client{
		baseURL: baseURL,
		http: ratelimit.NewClient(ratelimit.Config{
			MaxRetries: cfg.MaxRetries,
			Timeout:    cfg.Timeout,
			Stats:      cfg.Stats,
			Backend:    "remote",
			Header:     http.Header{"Accept": {"application/json"}},
		}),
	}
}

// BaseURL returns the server address requests are sent to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Close releases idle connections
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// APIError is returned for any non-2xx response
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// doRequest performs an API request, JSON-encoding body when non-nil and
// attaching the bearer token when one is given.
func (c *Client) doRequest(ctx context.Context, method, path, token string, body interface{}) (*http.Response, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(jsonBody)
		header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(ctx, method, c.baseURL+path, header, bodyReader)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer func() { _ = resp.Body.Close() }()
		return nil, readAPIError(resp)
	}
	return resp, nil
}

// readAPIError builds an APIError from a failed response. The message is the
// JSON "message" field, else the JSON document itself, else the body text.
func readAPIError(resp *http.Response) error {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Message:    fmt.Sprintf("Request failed with status %d", resp.StatusCode),
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return apiErr
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return apiErr
	}

	var doc interface{}
	if json.Unmarshal(data, &doc) != nil {
		apiErr.Message = text
		return apiErr
	}
	if obj, ok := doc.(map[string]interface{}); ok {
		if msg, ok := obj["message"].(string); ok && msg != "" {
			apiErr.Message = msg
			return apiErr
		}
	}
	if compact, err := json.Marshal(doc); err == nil {
		apiErr.Message = string(compact)
	}
	return apiErr
}

// decodeBody decodes a JSON response body into v.
// It reports false for empty bodies (204 or zero length).
func decodeBody(resp *http.Response, v interface{}) (bool, error) {
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNoContent {
		return false, nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("invalid response from task server: %w", err)
	}
	return true, nil
}

// =============================================================================
// Task Operations
// =============================================================================

// ListTasks returns every task visible to the token's owner
func (c *Client) ListTasks(ctx context.Context, token string) ([]backend.Task, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, tasksPath, token, nil)
	if err != nil {
		return nil, err
	}

	var apiTasks []apiTask
	if _, err := decodeBody(resp, &apiTasks); err != nil {
		return nil, err
	}

	tasks := make([]backend.Task, 0, len(apiTasks))
	for _, t := range apiTasks {
		tasks = append(tasks, t.toTask())
	}
	return tasks, nil
}

// CreateTask creates a task and returns the server's version of it
func (c *Client) CreateTask(ctx context.Context, token string, task *backend.Task) (*backend.Task, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, tasksPath, token, fromTask(task))
	if err != nil {
		return nil, err
	}

	var created apiTask
	ok, err := decodeBody(resp, &created)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("task server returned no task for create")
	}
	if created.ID == "" {
		return nil, fmt.Errorf("task server returned a task without id")
	}

	result := created.toTask()
	return &result, nil
}

// UpdateTask sends the full task. It returns nil without error when the
// server acknowledges the update without echoing the task.
func (c *Client) UpdateTask(ctx context.Context, token string, task *backend.Task) (*backend.Task, error) {
	resp, err := c.doRequest(ctx, http.MethodPut, tasksPath+"/"+url.PathEscape(task.ID), token, fromTask(task))
	if err != nil {
		return nil, err
	}

	var updated apiTask
	ok, err := decodeBody(resp, &updated)
	if err != nil || !ok {
		return nil, err
	}

	result := updated.toTask()
	if result.ID == "" {
		result.ID = task.ID
	}
	return &result, nil
}

// DeleteTask removes a task
func (c *Client) DeleteTask(ctx context.Context, token, taskID string) error {
	resp, err := c.doRequest(ctx, http.MethodDelete, tasksPath+"/"+url.PathEscape(taskID), token, nil)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	return nil
}

// =============================================================================
// Account Operations
// =============================================================================

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login exchanges a username and password for a bearer token
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, loginPath, "", credentials{username, password})
	if err != nil {
		return "", err
	}

	var result struct {
		Token string `json:"token"`
	}
	if _, err := decodeBody(resp, &result); err != nil {
		return "", err
	}
	if result.Token == "" {
		return "", fmt.Errorf("task server returned no token")
	}
	return result.Token, nil
}

// Register creates a server account
func (c *Client) Register(ctx context.Context, username, password string) error {
	resp, err := c.doRequest(ctx, http.MethodPost, registerPath, "", credentials{username, password})
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	return nil
}

// Verify interface compliance at compile time
var _ backend.TaskAPI = (*Client)(nil)

// =============================================================================
// Wire Types
// =============================================================================

// wireID accepts both JSON numbers and strings
type wireID string

func (id *wireID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = wireID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("task id must be a number or string: %s", data)
	}
	*id = wireID(n.String())
	return nil
}

type apiTask struct {
	ID           wireID       `json:"id,omitempty"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	Status       string       `json:"status"`
	Priority     string       `json:"priority,omitempty"`
	StartDate    string       `json:"startDate,omitempty"`
	DueDate      string       `json:"dueDate,omitempty"`
	StartTime    string       `json:"startTime,omitempty"`
	EndTime      string       `json:"endTime,omitempty"`
	DurationType string       `json:"durationType,omitempty"`
	SubTasks     []apiSubTask `json:"subTasks,omitempty"`
	Tags         []string     `json:"tags,omitempty"`
	CreatedAt    string       `json:"createdAt,omitempty"`
	UpdatedAt    string       `json:"updatedAt,omitempty"`
}

type apiSubTask struct {
	ID        wireID `json:"id,omitempty"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
	StartTime string `json:"startTime,omitempty"`
	EndTime   string `json:"endTime,omitempty"`
}

// fromTask builds the request payload. The id travels in the URL.
func fromTask(t *backend.Task) apiTask {
	payload := apiTask{
		Title:        t.Title,
		Description:  t.Description,
		Status:       StatusToAPI(t.Status),
		Priority:     string(t.Priority),
		StartTime:    toWireTime(t.StartDate),
		EndTime:      toWireTime(t.DueDate),
		DurationType: string(t.DurationType),
		Tags:         t.Tags,
	}
	for _, st := range t.SubTasks {
		payload.SubTasks = append(payload.SubTasks, apiSubTask{
			ID:        wireID(st.ID),
			Title:     st.Title,
			Completed: st.Completed,
			StartTime: toWireTime(st.StartTime),
			EndTime:   toWireTime(st.EndTime),
		})
	}
	return payload
}

// toTask converts a server task. startTime/endTime win over the legacy
// startDate/dueDate fields.
func (a apiTask) toTask() backend.Task {
	priority, ok := backend.ParsePriority(a.Priority)
	if !ok {
		priority = backend.PriorityMedium
	}

	task := backend.Task{
		ID:           string(a.ID),
		Title:        a.Title,
		Description:  a.Description,
		Priority:     priority,
		Status:       StatusFromAPI(a.Status),
		StartDate:    fromWireTime(firstNonEmpty(a.StartTime, a.StartDate)),
		DueDate:      fromWireTime(firstNonEmpty(a.EndTime, a.DueDate)),
		DurationType: backend.DurationType(a.DurationType),
		Tags:         a.Tags,
		CreatedAt:    parseTimestamp(a.CreatedAt),
		UpdatedAt:    parseTimestamp(a.UpdatedAt),
	}
	for _, st := range a.SubTasks {
		task.SubTasks = append(task.SubTasks, backend.SubTask{
			ID:        string(st.ID),
			Title:     st.Title,
			Completed: st.Completed,
			StartTime: fromWireTime(st.StartTime),
			EndTime:   fromWireTime(st.EndTime),
		})
	}
	return task
}

// =============================================================================
// Conversion Functions
// =============================================================================

// StatusToAPI converts a task status to its wire name (COMPLETED is DONE)
func StatusToAPI(s backend.TaskStatus) string {
	switch s {
	case backend.StatusCompleted:
		return "DONE"
	case backend.StatusInProgress:
		return "IN_PROGRESS"
	case backend.StatusArchived:
		return "ARCHIVED"
	default:
		return "TODO"
	}
}

// StatusFromAPI converts a wire status, case-insensitively. Unknown values are TODO.
func StatusFromAPI(s string) backend.TaskStatus {
	switch strings.ToUpper(s) {
	case "DONE", "COMPLETED":
		return backend.StatusCompleted
	case "IN_PROGRESS":
		return backend.StatusInProgress
	case "ARCHIVED":
		return backend.StatusArchived
	default:
		return backend.StatusTodo
	}
}

// toWireTime converts a canonical value to "YYYY-MM-DD HH:mm".
// Values that do not parse are sent as they are.
func toWireTime(value string) string {
	if wire := datetime.ToBackend(value); wire != "" {
		return wire
	}
	return strings.TrimSpace(value)
}

// fromWireTime converts a wire value to canonical form, keeping unparseable
// input so status derivation can treat it as invalid.
func fromWireTime(value string) string {
	if canonical := datetime.Normalize(value); canonical != "" {
		return canonical
	}
	return strings.TrimSpace(value)
}

func parseTimestamp(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	if t, ok := datetime.Parse(value); ok {
		return t
	}
	return time.Time{}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
