// Package form validates and serializes the task form.
package form

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"taskdash/internal/core"
)

// Errors maps a form field to its message. An empty Errors means the form is valid.
type Errors map[string]string

// Has reports whether field failed validation.
func (e Errors) Has(field string) bool {
	_, ok := e[field]
	return ok
}

// input is the trimmed, validatable view of core.FormValues.
type input struct {
	Name           string `form:"name" validate:"min=2"`
	Endpoint       string `form:"endpoint" validate:"httpurl"`
	Method         string `form:"method" validate:"oneof=GET POST PUT DELETE PATCH"`
	Priority       string `form:"priority" validate:"oneof=HIGH NORMAL LOW"`
	TaskType       string `form:"taskType" validate:"oneof=ROOT CHAINED"`
	CronExpression string `form:"cronExpression" validate:"required_if=TaskType ROOT"`
	RequestBody    string `form:"requestBody" validate:"omitempty,json"`
	WebhookURL     string `form:"webhookUrl" validate:"omitempty,httpurl"`
	MaxRetries     string `form:"maxRetries" validate:"omitempty,number"`
	RetryDelay     string `form:"retryDelay" validate:"omitempty,number"`
}

var messages = map[string]string{
	"name":                       "Name must be at least 2 characters.",
	"endpoint":                   "Please enter a valid URL.",
	"method":                     "Please select a valid HTTP method.",
	"priority":                   "Please select a valid priority.",
	"taskType":                   "Please select a valid task type.",
	"cronExpression/required_if": "Cron expression is required for root tasks",
	"requestBody":                "Request body must be valid JSON.",
	"webhookUrl":                 "Please enter a valid webhook URL.",
	"maxRetries":                 "Max retries must be a whole number of 0 or more.",
	"retryDelay":                 "Retry delay must be a whole number of 0 or more.",
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("form")
	})
	_ = v.RegisterValidation("httpurl", validateHTTPURL)
	return v
}

func validateHTTPURL(fl validator.FieldLevel) bool {
	return IsHTTPURL(fl.Field().String())
}

// IsHTTPURL reports whether raw is an absolute http or https URL.
func IsHTTPURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

func toInput(v core.FormValues) input {
	in := input{
		Name:           strings.TrimSpace(v.Name),
		Endpoint:       strings.TrimSpace(v.Endpoint),
		Method:         strings.ToUpper(strings.TrimSpace(v.Method)),
		Priority:       strings.ToUpper(strings.TrimSpace(v.Priority)),
		TaskType:       strings.ToUpper(strings.TrimSpace(v.TaskType)),
		CronExpression: strings.TrimSpace(v.CronExpression),
		RequestBody:    strings.TrimSpace(v.RequestBody),
		WebhookURL:     strings.TrimSpace(v.WebhookURL),
		MaxRetries:     strings.TrimSpace(v.MaxRetries),
		RetryDelay:     strings.TrimSpace(v.RetryDelay),
	}
	if in.TaskType == string(core.TaskTypeChained) {
		in.CronExpression = ""
	}
	return in
}

// Validate checks the form. It performs no I/O.
func Validate(v core.FormValues) Errors {
	errs := Errors{}
	err := validate.Struct(toInput(v))
	if err == nil {
		return errs
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		errs["form"] = err.Error()
		return errs
	}
	for _, fe := range verrs {
		field := fe.Field()
		if errs.Has(field) {
			continue
		}
		if msg, ok := messages[field+"/"+fe.Tag()]; ok {
			errs[field] = msg
			continue
		}
		errs[field] = messages[field]
	}
	return errs
}

// Serialize converts valid form values and chain rules into the create/update payload.
func Serialize(v core.FormValues, chains core.ChainRules) (core.TaskPayload, error) {
	in := toInput(v)
	payload := core.TaskPayload{
		Name:           in.Name,
		Description:    strings.TrimSpace(v.Description),
		Endpoint:       in.Endpoint,
		Method:         in.Method,
		Headers:        Headers(v.Headers),
		CronExpression: in.CronExpression,
		Priority:       core.Priority(in.Priority),
		TaskType:       core.TaskType(in.TaskType),
	}
	if in.RequestBody != "" {
		if !json.Valid([]byte(in.RequestBody)) {
			return core.TaskPayload{}, errors.New(messages["requestBody"])
		}
		payload.Body = json.RawMessage(in.RequestBody)
	}
	if len(chains) > 0 {
		payload.Chains = chains
	}
	if in.MaxRetries != "" {
		n, err := strconv.Atoi(in.MaxRetries)
		if err != nil || n < 0 {
			return core.TaskPayload{}, errors.New(messages["maxRetries"])
		}
		payload.MaxRetries = &n
	}
	if in.RetryDelay != "" {
		n, err := strconv.Atoi(in.RetryDelay)
		if err != nil || n < 0 {
			return core.TaskPayload{}, errors.New(messages["retryDelay"])
		}
		payload.RetryDelay = &n
	}
	if in.MaxRetries != "" || in.RetryDelay != "" || v.ExponentialBackoff {
		backoff := v.ExponentialBackoff
		payload.ExponentialBackoff = &backoff
	}
	if in.WebhookURL != "" {
		hook := in.WebhookURL
		payload.WebhookURL = &hook
	}
	return payload, nil
}

// Headers drops rows with a blank key or value and folds the rest into a map.
// A repeated key keeps its last value.
func Headers(rows []core.HeaderRow) map[string]string {
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		key := strings.TrimSpace(row.Key)
		if key == "" || strings.TrimSpace(row.Value) == "" {
			continue
		}
		out[key] = row.Value
	}
	return out
}

// NewValues returns the defaults of an empty form.
func NewValues() core.FormValues {
	return core.FormValues{
		Method:   "GET",
		Priority: string(core.PriorityNormal),
		TaskType: string(core.TaskTypeRoot),
		Headers:  []core.HeaderRow{{}},
	}
}

// FromTask seeds the form for editing an existing task.
func FromTask(t *core.Task) core.FormValues {
	values := NewValues()
	values.Name = t.Name
	values.Description = t.Description
	values.Endpoint = t.Endpoint
	values.CronExpression = t.CronExpression
	if t.Method != "" {
		values.Method = t.Method
	}
	if t.Priority != "" {
		values.Priority = string(t.Priority)
	}
	if t.TaskType != "" {
		values.TaskType = string(t.TaskType)
	}
	if t.HasBody() {
		values.RequestBody = formatBody(t.Body)
	}
	if len(t.Headers) > 0 {
		keys := make([]string, 0, len(t.Headers))
		for k := range t.Headers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		values.Headers = make([]core.HeaderRow, 0, len(keys))
		for _, k := range keys {
			values.Headers = append(values.Headers, core.HeaderRow{Key: k, Value: t.Headers[k]})
		}
	}
	if t.MaxRetries != nil {
		values.MaxRetries = strconv.Itoa(*t.MaxRetries)
	}
	if t.RetryDelay != nil {
		values.RetryDelay = strconv.Itoa(*t.RetryDelay)
	}
	if t.ExponentialBackoff != nil {
		values.ExponentialBackoff = *t.ExponentialBackoff
	}
	if t.WebhookURL != nil {
		values.WebhookURL = *t.WebhookURL
	}
	return values
}

// formatBody renders a stored body for the textarea. A body stored as a JSON
// string holding JSON text is unwrapped first.
func formatBody(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && json.Valid([]byte(s)) {
		raw = json.RawMessage(s)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
