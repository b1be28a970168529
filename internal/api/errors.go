package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/claude/rutinas/internal/models"
)

// Kind classifies a failed call.
type Kind int

const (
	// KindTransport means the request never reached the service or the
	// response could not be read.
	KindTransport Kind = iota + 1
	// KindService is any other non-2xx answer.
	KindService
	KindConflict
	KindNotFound
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindService:
		return "service"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not found"
	case KindUnauthorized:
		return "unauthorized"
	}
	return "unknown"
}

// Error is returned by every gateway call that did not get a 2xx response.
type Error struct {
	Kind   Kind
	Status int
	// Detail is the service-provided message, empty when none was sent.
	Detail string
	Method string
	Path   string
	Err    error
}

// Sentinels for errors.Is; they match any *Error of the same kind.
var (
	ErrTransport    = &Error{Kind: KindTransport}
	ErrService      = &Error{Kind: KindService}
	ErrConflict     = &Error{Kind: KindConflict}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrUnauthorized = &Error{Kind: KindUnauthorized}
)

func (e *Error) Error() string {
	var b strings.Builder
	if e.Method != "" {
		fmt.Fprintf(&b, "%s %s: ", e.Method, e.Path)
	}
	switch {
	case e.Kind == KindTransport && e.Err != nil:
		fmt.Fprintf(&b, "transport: %v", e.Err)
	case e.Detail != "":
		fmt.Fprintf(&b, "%s (status %d): %s", e.Kind, e.Status, e.Detail)
	default:
		fmt.Fprintf(&b, "%s (status %d)", e.Kind, e.Status)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Status == 0 && t.Detail == ""
}

// Message returns the text to show a user for err: the validation summary,
// the service detail when one was sent, or fallback.
func Message(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var ve *models.ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}
	var ae *Error
	if errors.As(err, &ae) && ae.Detail != "" {
		return ae.Detail
	}
	return fallback
}

func kindForStatus(status int) Kind {
	switch status {
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusConflict:
		return KindConflict
	case http.StatusUnauthorized:
		return KindUnauthorized
	}
	return KindService
}

// serviceDetail extracts the error text from a response body. The service
// sends {"detail": "..."} for domain errors and {"detail": [{"loc": [...],
// "msg": "..."}]} for request validation failures.
func serviceDetail(body []byte) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	if len(envelope.Detail) == 0 {
		return envelope.Error
	}

	var s string
	if err := json.Unmarshal(envelope.Detail, &s); err == nil {
		return s
	}

	var items []struct {
		Loc []any  `json:"loc"`
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(envelope.Detail, &items); err != nil {
		return ""
	}
	lines := make([]string, 0, len(items))
	for _, it := range items {
		if len(it.Loc) > 0 {
			lines = append(lines, fmt.Sprintf("%v: %s", it.Loc[len(it.Loc)-1], it.Msg))
			continue
		}
		lines = append(lines, it.Msg)
	}
	return strings.Join(lines, "\n")
}
