package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// TaskStatus describes the lifecycle state of a task as reported by the task service.
type TaskStatus string

const (
	TaskStatusActive  TaskStatus = "ACTIVE"
	TaskStatusPaused  TaskStatus = "PAUSED"
	TaskStatusError   TaskStatus = "ERROR"
	TaskStatusUnknown TaskStatus = "UNKNOWN"
)

// Priority is the scheduling priority of a task.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityNormal Priority = "NORMAL"
	PriorityLow    Priority = "LOW"
)

// TaskType distinguishes cron-scheduled tasks from chain-triggered ones.
type TaskType string

const (
	TaskTypeRoot    TaskType = "ROOT"
	TaskTypeChained TaskType = "CHAINED"
)

// HTTPMethods lists the request methods a task may use.
var HTTPMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH"}

// Task is the dashboard's projection of a task owned by the task service.
type Task struct {
	ID                 string            `json:"id"`
	Name               string            `json:"name"`
	Description        string            `json:"description"`
	Endpoint           string            `json:"endpoint"`
	Method             string            `json:"method"`
	Headers            map[string]string `json:"headers"`
	Body               json.RawMessage   `json:"body"`
	CronExpression     string            `json:"cronExpression"`
	Priority           Priority          `json:"priority"`
	TaskType           TaskType          `json:"taskType"`
	Status             TaskStatus        `json:"status"`
	MaxRetries         *int              `json:"maxRetries"`
	RetryDelay         *int              `json:"retryDelay"`
	ExponentialBackoff *bool             `json:"exponentialBackoff"`
	WebhookURL         *string           `json:"webhookUrl"`
	CreatedAt          Timestamp         `json:"createdAt"`
	UpdatedAt          Timestamp         `json:"updatedAt"`
	LastExecutedAt     Timestamp         `json:"lastExecutedAt"`
	NextExecutionTime  Timestamp         `json:"nextExecutionTime"`
	ExecutionCount     int               `json:"executionCount"`
	FailureCount       int               `json:"failureCount"`
	Chains             ChainRules        `json:"chains"`
}

// HasBody reports whether the task carries a non-null request body.
func (t *Task) HasBody() bool {
	trimmed := bytes.TrimSpace(t.Body)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// SuccessRate returns the percentage of successful executions, rounded to the
// nearest integer. ok is false when the task never ran.
func (t *Task) SuccessRate() (rate int, ok bool) {
	if t.ExecutionCount <= 0 {
		return 0, false
	}
	succeeded := t.ExecutionCount - t.FailureCount
	return int((float64(succeeded)/float64(t.ExecutionCount))*100 + 0.5), true
}

// ChainRule routes to the next task when the owning task's HTTP call returns StatusCode.
type ChainRule struct {
	ID           string `json:"id,omitempty"`
	TaskID       string `json:"taskId,omitempty"`
	StatusCode   int    `json:"statusCode"`
	NextTaskID   string `json:"nextTaskId"`
	NextTaskName string `json:"nextTaskName,omitempty"`
}

// Execution is one historical run record of a task.
type Execution struct {
	ID            string    `json:"id"`
	ExecutionTime Timestamp `json:"executionTime"`
	Status        string    `json:"status"`
	StatusCode    *int      `json:"statusCode"`
	Response      string    `json:"response"`
	Error         *string   `json:"error"`
	RetryCount    int       `json:"retryCount"`
	NextRetry     Timestamp `json:"nextRetry"`
}

// TaskPayload is the body of a create or update call.
type TaskPayload struct {
	Name               string            `json:"name"`
	Description        string            `json:"description"`
	Endpoint           string            `json:"endpoint"`
	Method             string            `json:"method"`
	Headers            map[string]string `json:"headers"`
	Body               json.RawMessage   `json:"body"`
	CronExpression     string            `json:"cronExpression"`
	Priority           Priority          `json:"priority"`
	TaskType           TaskType          `json:"taskType"`
	MaxRetries         *int              `json:"maxRetries,omitempty"`
	RetryDelay         *int              `json:"retryDelay,omitempty"`
	ExponentialBackoff *bool             `json:"exponentialBackoff,omitempty"`
	WebhookURL         *string           `json:"webhookUrl,omitempty"`
	Chains             ChainRules        `json:"chains"`
}

// HeaderRow is one editable header line of the task form.
type HeaderRow struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// FormValues holds the task form exactly as typed by the user.
type FormValues struct {
	Name               string      `json:"name"`
	Description        string      `json:"description"`
	Endpoint           string      `json:"endpoint"`
	Method             string      `json:"method"`
	CronExpression     string      `json:"cronExpression"`
	Priority           string      `json:"priority"`
	TaskType           string      `json:"taskType"`
	RequestBody        string      `json:"requestBody"`
	Headers            []HeaderRow `json:"headers"`
	MaxRetries         string      `json:"maxRetries"`
	RetryDelay         string      `json:"retryDelay"`
	ExponentialBackoff bool        `json:"exponentialBackoff"`
	WebhookURL         string      `json:"webhookUrl"`
}

// CatalogEntry is a candidate next task offered by the chain editor.
type CatalogEntry struct {
	ID     string     `json:"id"`
	Name   string     `json:"name"`
	Status TaskStatus `json:"status"`
	Chains ChainRules `json:"chains,omitempty"`
}

// Draft is one task editing session kept between form posts.
type Draft struct {
	ID            string         `json:"-"`
	TaskID        string         `json:"taskId,omitempty"`
	Values        FormValues     `json:"values"`
	Chains        ChainRules     `json:"chains"`
	Catalog       []CatalogEntry `json:"catalog"`
	CatalogLoaded bool           `json:"catalogLoaded"`
	CatalogError  string         `json:"catalogError,omitempty"`
	CreatedAt     time.Time      `json:"-"`
	UpdatedAt     time.Time      `json:"-"`
}

// Editing reports whether the draft updates an existing task.
func (d *Draft) Editing() bool {
	return d.TaskID != ""
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

var timestampLocation atomic.Pointer[time.Location]

// SetTimestampLocation sets the zone zone-less service date-times are read
// in. A nil loc restores time.Local.
func SetTimestampLocation(loc *time.Location) {
	timestampLocation.Store(loc)
}

func timestampLoc() *time.Location {
	if loc := timestampLocation.Load(); loc != nil {
		return loc
	}
	return time.Local
}

// Timestamp decodes the service's date-times, which arrive either with a zone
// (RFC 3339) or as zone-less local date-times. The zero value means null.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" || raw == `""` {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	loc := timestampLoc()
	for _, layout := range timestampLayouts {
		if parsed, err := time.ParseInLocation(layout, s, loc); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognised format %q", s)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

// Valid reports whether the timestamp was present.
func (t Timestamp) Valid() bool {
	return !t.IsZero()
}
