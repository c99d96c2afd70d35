package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// ServerTask is a task as the task server stores and returns it
type ServerTask struct {
	ID           int             `json:"id"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Status       string          `json:"status"`
	Priority     string          `json:"priority,omitempty"`
	StartTime    string          `json:"startTime,omitempty"`
	EndTime      string          `json:"endTime,omitempty"`
	DurationType string          `json:"durationType,omitempty"`
	SubTasks     []ServerSubTask `json:"subTasks,omitempty"`
	Tags         []string        `json:"tags,omitempty"`
	CreatedAt    string          `json:"createdAt,omitempty"`
	UpdatedAt    string          `json:"updatedAt,omitempty"`
}

// ServerSubTask is a sub-task on the wire
type ServerSubTask struct {
	ID        string `json:"id,omitempty"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
	StartTime string `json:"startTime,omitempty"`
	EndTime   string `json:"endTime,omitempty"`
}

// TaskServer is an in-memory task server for CLI and client tests. Each
// account sees only its own tasks; ids are sequential numbers.
type TaskServer struct {
	*httptest.Server

	mu        sync.Mutex
	passwords map[string]string       // username -> password
	tokens    map[string]string       // token -> username
	tasks     map[string][]ServerTask // username -> tasks
	nextID    int
	failNext  map[string]int // method -> status for the next task request
	requests  []string
}

// NewTaskServer starts a fake task server that is closed with the test.
func NewTaskServer(t *testing.T) *TaskServer {
	t.Helper()

	s := &TaskServer{
		passwords: make(map[string]string),
		tokens:    make(map[string]string),
		tasks:     make(map[string][]ServerTask),
		nextID:    1,
		failNext:  make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("GET /api/tasks", s.withAuth(s.handleList))
	mux.HandleFunc("POST /api/tasks", s.withAuth(s.handleCreate))
	mux.HandleFunc("PUT /api/tasks/{id}", s.withAuth(s.handleUpdate))
	mux.HandleFunc("DELETE /api/tasks/{id}", s.withAuth(s.handleDelete))

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// AddUser registers an account and returns the token its login yields.
func (s *TaskServer) AddUser(username, password string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passwords[username] = password
	token := "token-" + username
	s.tokens[token] = username
	return token
}

// Seed stores tasks for username, assigning ids, and returns them.
func (s *TaskServer) Seed(username string, tasks ...ServerTask) []ServerTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range tasks {
		tasks[i].ID = s.nextID
		s.nextID++
		if tasks[i].Status == "" {
			tasks[i].Status = "TODO"
		}
		s.tasks[username] = append(s.tasks[username], tasks[i])
	}
	return tasks
}

// Tasks returns a copy of the tasks stored for username.
func (s *TaskServer) Tasks(username string) []ServerTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ServerTask(nil), s.tasks[username]...)
}

// FailNext makes the next task request with method answer status.
func (s *TaskServer) FailNext(method string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext[method] = status
}

// Requests returns "METHOD path" for every task request received.
func (s *TaskServer) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func writeJSONResponse(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSONResponse(w, status, map[string]string{"message": msg})
}

type accountRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *TaskServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		writeMessage(w, http.StatusBadRequest, "username and password are required")
		return
	}
	s.mu.Lock()
	_, exists := s.passwords[req.Username]
	s.mu.Unlock()
	if exists {
		writeMessage(w, http.StatusConflict, "Username already taken")
		return
	}
	s.AddUser(req.Username, req.Password)
	w.WriteHeader(http.StatusCreated)
}

func (s *TaskServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request")
		return
	}

	s.mu.Lock()
	password, ok := s.passwords[req.Username]
	s.mu.Unlock()
	if !ok || password != req.Password {
		writeMessage(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"token": "token-" + req.Username})
}

// withAuth resolves the bearer token and applies a pending FailNext
func (s *TaskServer) withAuth(next func(w http.ResponseWriter, r *http.Request, username string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

		s.mu.Lock()
		s.requests = append(s.requests, r.Method+" "+r.URL.Path)
		username, ok := s.tokens[token]
		status, fail := s.failNext[r.Method]
		delete(s.failNext, r.Method)
		s.mu.Unlock()

		if !ok {
			writeMessage(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		if fail {
			writeMessage(w, status, "injected failure")
			return
		}
		next(w, r, username)
	}
}

func (s *TaskServer) handleList(w http.ResponseWriter, r *http.Request, username string) {
	tasks := s.Tasks(username)
	if tasks == nil {
		tasks = []ServerTask{}
	}
	writeJSONResponse(w, http.StatusOK, tasks)
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func (s *TaskServer) handleCreate(w http.ResponseWriter, r *http.Request, username string) {
	var task ServerTask
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid task")
		return
	}

	s.mu.Lock()
	task.ID = s.nextID
	s.nextID++
	task.CreatedAt = timestamp()
	task.UpdatedAt = task.CreatedAt
	s.tasks[username] = append(s.tasks[username], task)
	s.mu.Unlock()

	writeJSONResponse(w, http.StatusCreated, task)
}

// find returns the index of task id in the account's list, or -1
func (s *TaskServer) find(username, rawID string) int {
	id, err := strconv.Atoi(rawID)
	if err != nil {
		return -1
	}
	for i, t := range s.tasks[username] {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (s *TaskServer) handleUpdate(w http.ResponseWriter, r *http.Request, username string) {
	var task ServerTask
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid task")
		return
	}

	s.mu.Lock()
	i := s.find(username, r.PathValue("id"))
	if i < 0 {
		s.mu.Unlock()
		writeMessage(w, http.StatusNotFound, "Task not found")
		return
	}
	existing := s.tasks[username][i]
	task.ID = existing.ID
	task.CreatedAt = existing.CreatedAt
	task.UpdatedAt = timestamp()
	s.tasks[username][i] = task
	s.mu.Unlock()

	writeJSONResponse(w, http.StatusOK, task)
}

func (s *TaskServer) handleDelete(w http.ResponseWriter, r *http.Request, username string) {
	s.mu.Lock()
	i := s.find(username, r.PathValue("id"))
	if i < 0 {
		s.mu.Unlock()
		writeMessage(w, http.StatusNotFound, "Task not found")
		return
	}
	list := s.tasks[username]
	s.tasks[username] = append(list[:i:i], list[i+1:]...)
	s.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}
