package easee

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Error is a failed upstream call. StatusCode is 0 when no response was received.
type Error struct {
	Operation  string
	StatusCode int
	Code       string
	Message    string
	Body       []byte
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("easee %s: %s", e.Operation, e.Message)
	}
	if e.Code != "" {
		return fmt.Sprintf("easee %s: status %d: %s: %s", e.Operation, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("easee %s: status %d: %s", e.Operation, e.StatusCode, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HasResponse reports whether the upstream answered at all.
func (e *Error) HasResponse() bool {
	return e.StatusCode != 0
}

// StatusCode returns the upstream status carried by err, or 0 when there is none.
func StatusCode(err error) int {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.StatusCode
	}
	return 0
}

// HasResponse reports whether err carries an upstream response.
func HasResponse(err error) bool {
	return StatusCode(err) != 0
}

func transportError(operation string, err error) *Error {
	return &Error{Operation: operation, Message: err.Error(), Err: err}
}

// responseError decodes code and message from an upstream error body. The code is the
// body's "error" or "code" field; the message is its "message" field, else the body itself.
func responseError(operation string, status int, body []byte) *Error {
	e := &Error{Operation: operation, StatusCode: status, Body: body}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		e.Message = fmt.Sprintf("Request failed with status code %d", status)
		return e
	}

	var decoded any
	if err := json.Unmarshal(trimmed, &decoded); err != nil {
		e.Message = string(trimmed)
		return e
	}

	switch v := decoded.(type) {
	case string:
		e.Message = v
	case map[string]any:
		e.Code = firstText(v, "error", "code")
		e.Message = firstText(v, "message")
		if e.Message == "" {
			e.Message = compact(trimmed)
		}
	default:
		e.Message = compact(trimmed)
	}
	return e
}

// firstText returns the first truthy field of m rendered as text.
func firstText(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case nil:
			continue
		case string:
			if v != "" {
				return v
			}
		case bool:
			if v {
				return "true"
			}
		case float64:
			if v != 0 {
				return strconv.FormatFloat(v, 'f', -1, 64)
			}
		default:
			data, err := json.Marshal(v)
			if err == nil {
				return string(data)
			}
		}
	}
	return ""
}

func compact(data []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return string(data)
	}
	return buf.String()
}
