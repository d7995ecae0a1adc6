package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"pollctl/pkg/protocol"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("not signed in or session expired")
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("not allowed")
)

// ValidationError is returned for input rejected locally or by the
// service's field validation. Fields carries per-field messages when the
// service sent them.
type ValidationError struct {
	Field   string
	Message string
	Fields  map[string][]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) > 0 {
		return e.Message + ": " + formatFields(e.Fields)
	}
	if e.Field != "" {
		return e.Field + ": " + e.Message
	}
	return e.Message
}

// AuthError wraps ErrInvalidCredentials or ErrUnauthorized.
type AuthError struct {
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AuthError) Unwrap() error { return e.Err }

// VotingError reports a vote that was refused, locally or by the service.
// The selection may be retried.
type VotingError struct {
	Code    protocol.ErrorCode
	Message string
	Status  int // 0 when detected locally
}

func (e *VotingError) Error() string { return e.Message }

// NetworkError is a transport failure: the service could not be reached or
// the response could not be read.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// DecodeError is a 2xx response whose body does not match the expected
// schema.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: unexpected response: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// APIError is any other non-2xx response.
type APIError struct {
	Op      string
	Status  int
	Code    protocol.ErrorCode
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s (HTTP %d)", e.Op, e.Message, e.Status)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case 404:
		return ErrNotFound
	case 403:
		return ErrForbidden
	}
	return nil
}

// errorBody is what could be salvaged from a non-2xx body.
type errorBody struct {
	code    protocol.ErrorCode
	message string
	fields  map[string][]string
}

// parseErrorBody understands {"error": ..}, {"detail": ..} and field maps
// {"field": ["msg", ..]}. Anything else yields fallback.
func parseErrorBody(body []byte, fallback string) errorBody {
	var resp protocol.ErrorResponse
	if err := json.Unmarshal(body, &resp); err == nil {
		if resp.Error != "" {
			return errorBody{code: resp.ErrorCode, message: resp.Error}
		}
		if resp.Detail != "" {
			return errorBody{code: resp.ErrorCode, message: resp.Detail}
		}
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err == nil && len(raw) > 0 {
		fields := make(map[string][]string)
		for name, v := range raw {
			switch msgs := v.(type) {
			case []interface{}:
				for _, m := range msgs {
					if s, ok := m.(string); ok {
						fields[name] = append(fields[name], s)
					}
				}
			case string:
				fields[name] = append(fields[name], msgs)
			}
		}
		if len(fields) > 0 {
			if msgs, ok := fields["non_field_errors"]; ok && len(fields) == 1 {
				return errorBody{message: strings.Join(msgs, " ")}
			}
			return errorBody{message: fallback, fields: fields}
		}
	}

	return errorBody{message: fallback}
}

func formatFields(fields map[string][]string) string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+strings.Join(fields[name], " "))
	}
	return strings.Join(parts, "; ")
}
