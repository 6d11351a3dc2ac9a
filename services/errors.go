package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

type ErrorKind string

const (
	KindUnauthenticated  ErrorKind = "unauthenticated"
	KindSessionExpired   ErrorKind = "session_expired"
	KindAlreadyFollowing ErrorKind = "already_following"
	KindNotFollowing     ErrorKind = "not_following"
	KindValidation       ErrorKind = "validation"
	KindNotFound         ErrorKind = "not_found"
	KindConflict         ErrorKind = "conflict"
	KindServer           ErrorKind = "server"
	KindTransport        ErrorKind = "transport"
	KindUnknown          ErrorKind = "unknown"
)

var (
	ErrSessionExpired   = errors.New("session expired")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNoUserID         = errors.New("current user id is not resolved")
	ErrThreadClosed     = errors.New("comment thread is closed")
	ErrFollowInFlight   = errors.New("follow request already in flight")
	ErrEmptyPost        = errors.New("post needs text or media")
	ErrEmptyComment     = errors.New("comment text is empty")
	ErrCommentNotFound  = errors.New("comment not found")
	ErrUnknownFeed      = errors.New("unknown feed")
	ErrRefreshQueueFull = errors.New("too many requests waiting for token refresh")
)

// APIError is the normalized form of every failed backend call.
type APIError struct {
	Status  int
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status > 0 {
		return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Kind, msg)
	}
	return fmt.Sprintf("api error (%s): %s", e.Kind, msg)
}

func (e *APIError) Unwrap() error { return e.Err }

// IsKind reports whether err carries an APIError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}

// ErrorMessage picks the text shown to users for err, or fallback.
func ErrorMessage(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" && apiErr.Kind != KindTransport && apiErr.Kind != KindServer {
		return apiErr.Message
	}
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return vErr.Error()
	}
	return fallback
}

type errorPayload struct {
	Message json.RawMessage `json:"message"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
	Errors  json.RawMessage `json:"errors"`
}

// decodeAPIError builds an APIError from a non-2xx response body. The backend
// sends message as a string, a list or a field map depending on the endpoint.
func decodeAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}
	var payload errorPayload
	if len(body) > 0 && json.Unmarshal(body, &payload) == nil {
		apiErr.Message = normalizeMessage(payload.Message)
		if apiErr.Message == "" {
			apiErr.Message = normalizeMessage(payload.Errors)
		}
		if apiErr.Message == "" {
			apiErr.Message = payload.Error
		}
	} else if len(body) > 0 {
		text := strings.TrimSpace(string(body))
		if !strings.HasPrefix(text, "<") {
			apiErr.Message = text
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	apiErr.Kind = classify(status, apiErr.Message, payload.Code)
	return apiErr
}

func normalizeMessage(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var text string
	if json.Unmarshal(raw, &text) == nil {
		return text
	}
	var list []json.RawMessage
	if json.Unmarshal(raw, &list) == nil {
		parts := make([]string, 0, len(list))
		for _, item := range list {
			if s := normalizeItem(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "; ")
	}
	var fields map[string]json.RawMessage
	if json.Unmarshal(raw, &fields) == nil {
		if msg, ok := fields["message"]; ok {
			return normalizeMessage(msg)
		}
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			if s := normalizeMessage(fields[k]); s != "" {
				parts = append(parts, k+": "+s)
			}
		}
		return strings.Join(parts, "; ")
	}
	return string(raw)
}

func normalizeItem(raw json.RawMessage) string {
	var obj struct {
		Message        string `json:"message"`
		DefaultMessage string `json:"defaultMessage"`
		Field          string `json:"field"`
	}
	if json.Unmarshal(raw, &obj) == nil && (obj.Message != "" || obj.DefaultMessage != "") {
		msg := obj.Message
		if msg == "" {
			msg = obj.DefaultMessage
		}
		if obj.Field != "" {
			return obj.Field + ": " + msg
		}
		return msg
	}
	return normalizeMessage(raw)
}

func classify(status int, message, code string) ErrorKind {
	hint := strings.ToLower(message + " " + code)
	switch {
	case strings.Contains(hint, "already following"), strings.Contains(hint, "already_following"):
		return KindAlreadyFollowing
	case strings.Contains(hint, "not following"), strings.Contains(hint, "not_following"):
		return KindNotFollowing
	}
	switch {
	case status == http.StatusUnauthorized:
		return KindUnauthenticated
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusConflict:
		return KindConflict
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return KindValidation
	case status >= 500:
		return KindServer
	}
	return KindUnknown
}

// transportError wraps a failure that produced no HTTP response.
func transportError(err error) *APIError {
	switch {
	case errors.Is(err, ErrSessionExpired):
		msg := "session expired"
		var rejected *APIError
		if errors.As(err, &rejected) && rejected.Message != "" {
			msg = rejected.Message
		}
		return &APIError{Status: http.StatusUnauthorized, Kind: KindSessionExpired, Message: msg, Err: err}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &APIError{Kind: KindTransport, Message: "request cancelled", Err: err}
	}
	return &APIError{Kind: KindTransport, Message: "network error", Err: err}
}

// ValidationError lists field problems found before any request was sent.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, e.Fields[k])
	}
	return strings.Join(parts, "; ")
}
