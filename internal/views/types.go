package views

import (
	"strings"
	"time"

	"taskline/backend"
)

// DefaultDateFormat is the standard date format used throughout the views package
const DefaultDateFormat = "2006-01-02"

// SmartList selects a predefined subset of tasks
type SmartList string

const (
	SmartListAll      SmartList = "ALL"
	SmartListToday    SmartList = "TODAY"
	SmartListUpcoming SmartList = "UPCOMING"
)

// SmartLists lists every smart list in display order
var SmartLists = []SmartList{SmartListAll, SmartListToday, SmartListUpcoming}

// ParseSmartList converts a user supplied list name
func ParseSmartList(s string) (SmartList, bool) {
	l := SmartList(strings.ToUpper(strings.TrimSpace(s)))
	for _, candidate := range SmartLists {
		if candidate == l {
			return l, true
		}
	}
	return "", false
}

// All is the wildcard value for status and priority filters
const All = "ALL"

// Filter narrows the visible tasks. Empty fields behave like All.
type Filter struct {
	Status   string `yaml:"status" json:"status"`     // TaskStatus or ALL
	Priority string `yaml:"priority" json:"priority"` // Priority or ALL
	Search   string `yaml:"search" json:"search"`     // case-insensitive title substring
}

// DefaultFilter returns a filter matching every task
func DefaultFilter() Filter {
	return Filter{Status: All, Priority: All}
}

// FilterPatch is a partial filter update; nil fields are left unchanged
type FilterPatch struct {
	Status   *string
	Priority *string
	Search   *string
}

// Merge applies a patch on top of the filter
func (f Filter) Merge(p FilterPatch) Filter {
	if p.Status != nil {
		f.Status = *p.Status
	}
	if p.Priority != nil {
		f.Priority = *p.Priority
	}
	if p.Search != nil {
		f.Search = *p.Search
	}
	return f
}

// SortField names the attribute tasks are ordered by
type SortField string

const (
	SortByDueDate   SortField = "dueDate"
	SortByPriority  SortField = "priority"
	SortByCreatedAt SortField = "createdAt"
)

// SortOrder is ascending or descending
type SortOrder string

const (
	OrderAsc  SortOrder = "asc"
	OrderDesc SortOrder = "desc"
)

// Sort represents a sorting rule
type Sort struct {
	By    SortField `yaml:"by" json:"by"`
	Order SortOrder `yaml:"order" json:"order"`
}

// DefaultSort orders newest tasks first
func DefaultSort() Sort {
	return Sort{By: SortByCreatedAt, Order: OrderDesc}
}

// SortPatch is a partial sort update
type SortPatch struct {
	By    *SortField
	Order *SortOrder
}

// Merge applies a patch on top of the sort rule
func (s Sort) Merge(p SortPatch) Sort {
	if p.By != nil {
		s.By = *p.By
	}
	if p.Order != nil {
		s.Order = *p.Order
	}
	return s
}

// State is the view state owned by the store alongside the task collection
type State struct {
	ActiveView SmartList
	Filter     Filter
	Sort       Sort
}

// DefaultState returns the initial view state
func DefaultState() State {
	return State{ActiveView: SmartListAll, Filter: DefaultFilter(), Sort: DefaultSort()}
}

// BucketName identifies a timeline bucket
type BucketName string

const (
	BucketOverdue   BucketName = "overdue"
	BucketActive    BucketName = "active"
	BucketToday     BucketName = "today"
	BucketTomorrow  BucketName = "tomorrow"
	BucketThisWeek  BucketName = "thisWeek"
	BucketFuture    BucketName = "future"
	BucketCompleted BucketName = "completed"
)

// TimelineOrder is the display order of timeline buckets
var TimelineOrder = []BucketName{
	BucketOverdue,
	BucketActive,
	BucketToday,
	BucketTomorrow,
	BucketThisWeek,
	BucketFuture,
	BucketCompleted,
}

// Timeline holds the seven timeline buckets. Every bucket is always present,
// possibly empty.
type Timeline struct {
	Overdue   []backend.Task
	Active    []backend.Task
	Today     []backend.Task
	Tomorrow  []backend.Task
	ThisWeek  []backend.Task
	Future    []backend.Task
	Completed []backend.Task
}

// Bucket returns the tasks of the named bucket
func (tl *Timeline) Bucket(name BucketName) []backend.Task {
	switch name {
	case BucketOverdue:
		return tl.Overdue
	case BucketActive:
		return tl.Active
	case BucketToday:
		return tl.Today
	case BucketTomorrow:
		return tl.Tomorrow
	case BucketThisWeek:
		return tl.ThisWeek
	case BucketFuture:
		return tl.Future
	case BucketCompleted:
		return tl.Completed
	}
	return nil
}

// Len returns the total number of tasks across all buckets
func (tl *Timeline) Len() int {
	n := 0
	for _, name := range TimelineOrder {
		n += len(tl.Bucket(name))
	}
	return n
}

// Unit is the granularity of calendar buckets
type Unit string

const (
	UnitDay   Unit = "day"
	UnitWeek  Unit = "week"
	UnitMonth Unit = "month"
)

// ParseUnit converts a user supplied unit name
func ParseUnit(s string) (Unit, bool) {
	switch u := Unit(strings.ToLower(strings.TrimSpace(s))); u {
	case UnitDay, UnitWeek, UnitMonth:
		return u, true
	}
	return "", false
}

// CalendarBucket is one day, week or month of due tasks
type CalendarBucket struct {
	Label string         `json:"label"`
	Start time.Time      `json:"start"`
	Tasks []backend.Task `json:"-"`
}

// TrendWindow counts tasks completed in one week
type TrendWindow struct {
	Label string    `json:"label"`
	Start time.Time `json:"start"`
	Count int       `json:"count"`
}

// Summary counts completed tasks over fixed periods
type Summary struct {
	ThisWeek  int `json:"this_week"`
	ThisMonth int `json:"this_month"`
	Total     int `json:"total"`
}

// Counts are the per-list totals shown next to each smart list
type Counts struct {
	All      int `json:"all"`
	Today    int `json:"today"`
	Upcoming int `json:"upcoming"`
	Pending  int `json:"pending"`
}
