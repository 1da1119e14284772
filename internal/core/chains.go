package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Valid HTTP status code range for chain rules.
const (
	MinStatusCode = 100
	MaxStatusCode = 599
)

// UnknownTaskName labels a chain target whose task could not be resolved.
const UnknownTaskName = "Unknown Task"

var (
	ErrStatusCodeRequired = errors.New("Please select a status code")
	ErrStatusCodeRange    = fmt.Errorf("Status code must be a number between %d and %d", MinStatusCode, MaxStatusCode)
	ErrNextTaskRequired   = errors.New("Please select a next task")
)

// DuplicateStatusCodeError is returned when a rule for the status code already exists.
type DuplicateStatusCodeError struct {
	StatusCode int
}

func (e *DuplicateStatusCodeError) Error() string {
	return fmt.Sprintf("Status code %d is already configured in the chain", e.StatusCode)
}

// StatusCodeOption is a selectable entry of the status code picker.
type StatusCodeOption struct {
	Code  int
	Label string
}

// CommonStatusCodes are offered by the chain editor before falling back to a custom code.
var CommonStatusCodes = []StatusCodeOption{
	{200, "200 - OK"},
	{201, "201 - Created"},
	{202, "202 - Accepted"},
	{204, "204 - No Content"},
	{400, "400 - Bad Request"},
	{401, "401 - Unauthorized"},
	{403, "403 - Forbidden"},
	{404, "404 - Not Found"},
	{409, "409 - Conflict"},
	{422, "422 - Unprocessable Entity"},
	{429, "429 - Too Many Requests"},
	{500, "500 - Internal Server Error"},
	{502, "502 - Bad Gateway"},
	{503, "503 - Service Unavailable"},
	{504, "504 - Gateway Timeout"},
}

// ParseStatusCode parses user input into a chain status code.
func ParseStatusCode(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, ErrStatusCodeRequired
	}
	code, err := strconv.Atoi(raw)
	if err != nil || code < MinStatusCode || code > MaxStatusCode {
		return 0, ErrStatusCodeRange
	}
	return code, nil
}

// ChainRules is the ordered chain configuration of one task.
type ChainRules []ChainRule

// Has reports whether a rule for the status code exists.
func (r ChainRules) Has(statusCode int) bool {
	for _, rule := range r {
		if rule.StatusCode == statusCode {
			return true
		}
	}
	return false
}

// Add returns a copy of r with rule appended. r itself is never modified.
func (r ChainRules) Add(rule ChainRule) (ChainRules, error) {
	if rule.StatusCode < MinStatusCode || rule.StatusCode > MaxStatusCode {
		return r, ErrStatusCodeRange
	}
	if strings.TrimSpace(rule.NextTaskID) == "" {
		return r, ErrNextTaskRequired
	}
	if r.Has(rule.StatusCode) {
		return r, &DuplicateStatusCodeError{StatusCode: rule.StatusCode}
	}
	out := make(ChainRules, 0, len(r)+1)
	out = append(out, r...)
	return append(out, rule), nil
}

// Remove returns a copy of r without the rule at index i. Out-of-range indexes are ignored.
func (r ChainRules) Remove(i int) ChainRules {
	if i < 0 || i >= len(r) {
		return r
	}
	out := make(ChainRules, 0, len(r)-1)
	out = append(out, r[:i]...)
	return append(out, r[i+1:]...)
}

// NextTaskIDs returns the distinct target ids in rule order.
func (r ChainRules) NextTaskIDs() []string {
	seen := make(map[string]struct{}, len(r))
	ids := make([]string, 0, len(r))
	for _, rule := range r {
		if _, ok := seen[rule.NextTaskID]; ok {
			continue
		}
		seen[rule.NextTaskID] = struct{}{}
		ids = append(ids, rule.NextTaskID)
	}
	return ids
}
