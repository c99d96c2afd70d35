package utils

import (
	"errors"
	"fmt"
	"strings"
)

// ErrValidation is matched by every error rejected at the mutation boundary.
var ErrValidation = errors.New("validation failed")

// ErrorWithSuggestion wraps an error with a user-friendly suggestion.
type ErrorWithSuggestion struct {
	Err        error
	Suggestion string
}

// Error implements the error interface.
func (e *ErrorWithSuggestion) Error() string {
	return fmt.Sprintf("%s\n\nSuggestion: %s", e.Err.Error(), e.Suggestion)
}

// GetSuggestion returns the suggestion text.
func (e *ErrorWithSuggestion) GetSuggestion() string {
	return e.Suggestion
}

// Unwrap returns the underlying error for error chain support.
func (e *ErrorWithSuggestion) Unwrap() error {
	return e.Err
}

// WrapWithSuggestion wraps an existing error with a suggestion.
func WrapWithSuggestion(err error, suggestion string) error {
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: suggestion,
	}
}

// validationError builds an error that satisfies errors.Is(err, ErrValidation).
func validationError(suggestion, format string, args ...interface{}) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...)),
		Suggestion: suggestion,
	}
}

// ErrEmptyTitle returns an error for a task submitted without a title.
func ErrEmptyTitle() error {
	return validationError("Give the task a short title", "title must not be empty")
}

// ErrInvalidDateRange returns an error when the due date is not after the start date.
func ErrInvalidDateRange(start, due string) error {
	return validationError(
		"Pick a due date later than the start date",
		"due date %s must be after start date %s", due, start)
}

// ErrInvalidDate returns an error for an unparseable date-time string.
func ErrInvalidDate(dateStr string) error {
	return validationError(
		"Use YYYY-MM-DD HH:mm or YYYY-MM-DDTHH:mm (e.g., 2026-01-15 09:30)",
		"invalid date: %s", dateStr)
}

// ErrInvalidPriority returns an error for an invalid priority value.
func ErrInvalidPriority(priority string) error {
	return validationError(
		"Priority must be one of LOW, MEDIUM, HIGH, URGENT",
		"invalid priority: %s", priority)
}

// ErrInvalidStatus returns an error for an invalid status with valid options.
func ErrInvalidStatus(status string, valid []string) error {
	return validationError(
		fmt.Sprintf("Valid options: %s", strings.Join(valid, ", ")),
		"invalid status: %s", status)
}

// ErrTaskNotFound returns an error for when a task is not found.
func ErrTaskNotFound(searchTerm string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("task not found: %s", searchTerm),
		Suggestion: "Check the task ID or use 'taskline list' to see all tasks",
	}
}

// ErrSubTaskNotFound returns an error for an unknown sub-task ID.
func ErrSubTaskNotFound(taskID, subTaskID string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("sub-task %s not found in task %s", subTaskID, taskID),
		Suggestion: "Use 'taskline list' to see sub-task IDs",
	}
}

// ErrAmbiguousID returns an error when an ID prefix matches several tasks.
func ErrAmbiguousID(prefix string, matches int) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("id %q matches %d tasks", prefix, matches),
		Suggestion: "Type more characters of the task ID",
	}
}

// ErrNotLoggedIn returns an error for commands that need a remote identity.
func ErrNotLoggedIn() error {
	return &ErrorWithSuggestion{
		Err:        errors.New("not logged in"),
		Suggestion: "Run 'taskline login' or set TASKLINE_TOKEN",
	}
}

// ErrBackendOffline returns an error when the task server is unreachable with smart suggestions.
func ErrBackendOffline(name, reason string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("backend %s is offline: %s", name, reason),
		Suggestion: getSmartSuggestion(reason),
	}
}

// getSmartSuggestion returns a context-aware suggestion based on the error reason.
func getSmartSuggestion(reason string) string {
	lowerReason := strings.ToLower(reason)

	if strings.Contains(lowerReason, "no such host") || strings.Contains(lowerReason, "dns") {
		return "Check your DNS settings and internet connection"
	}

	if strings.Contains(lowerReason, "connection refused") {
		return "Check if the task server is running and remote.base_url is correct"
	}

	if strings.Contains(lowerReason, "timeout") {
		return "The server may be slow or unreachable. Try again later"
	}

	if strings.Contains(lowerReason, "401") || strings.Contains(lowerReason, "unauthorized") {
		return "Your session may have expired. Run 'taskline login' again"
	}

	return "Check your internet connection and try again"
}
