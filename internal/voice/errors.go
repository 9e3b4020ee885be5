package voice

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/hagop-ai/hagopai/internal/resilience"
)

// ErrorKind is a user-facing failure category. Provider errors are mapped
// onto one of these so the client can show a distinct message per class
// instead of a raw error string.
type ErrorKind string

const (
	// KindQuota covers rate limits and exhausted API quotas.
	KindQuota ErrorKind = "quota"

	// KindAuth covers invalid or missing provider credentials.
	KindAuth ErrorKind = "auth"

	// KindServer covers provider-side failures (5xx, malformed responses).
	KindServer ErrorKind = "server"

	// KindNetwork covers connectivity failures and timeouts.
	KindNetwork ErrorKind = "network"

	// KindPermission covers microphone access denial. Terminal until the
	// user re-grants access.
	KindPermission ErrorKind = "permission"

	// KindRecognizer covers speech recognition failures that exhausted the
	// in-place restart budget.
	KindRecognizer ErrorKind = "recognizer"
)

// UserMessage returns the message shown to the learner for this error class.
func (k ErrorKind) UserMessage() string {
	switch k {
	case KindQuota:
		return "The AI service is temporarily over its usage limit. Please try again in a moment."
	case KindAuth:
		return "The AI service rejected the configured credentials. Check the API key."
	case KindNetwork:
		return "Could not reach the AI service. Check your connection and try again."
	case KindPermission:
		return "Microphone access is blocked. Allow microphone access and start again."
	case KindRecognizer:
		return "Speech recognition keeps failing. Please restart voice chat."
	default:
		return "The AI service returned an error. Please try again."
	}
}

// Error is a classified engine failure. It is stored as lastError and
// delivered to the OnError callback.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("voice: %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("voice: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrPermissionDenied marks microphone permission denial reported by the
// capture side. Wrap or return it so Classify maps the failure to
// [KindPermission].
var ErrPermissionDenied = errors.New("microphone permission denied")

// Classify maps a provider or transport error onto an [Error] with a
// user-facing kind. Classification is heuristic for errors that do not
// expose structured status: provider SDKs in the stack return flattened
// message strings for HTTP failures.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var ve *Error
	if errors.As(err, &ve) {
		return ve
	}

	kind := KindServer
	switch {
	case errors.Is(err, ErrPermissionDenied):
		kind = KindPermission
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindNetwork
	case errors.Is(err, resilience.ErrAllFailed), errors.Is(err, resilience.ErrCircuitOpen):
		kind = KindServer
	default:
		var netErr net.Error
		if errors.As(err, &netErr) {
			kind = KindNetwork
			break
		}
		msg := strings.ToLower(err.Error())
		switch {
		case strings.Contains(msg, "permission denied"), strings.Contains(msg, "not-allowed"):
			kind = KindPermission
		case strings.Contains(msg, "429"), strings.Contains(msg, "quota"),
			strings.Contains(msg, "rate limit"), strings.Contains(msg, "rate_limit"):
			kind = KindQuota
		case strings.Contains(msg, "401"), strings.Contains(msg, "403"),
			strings.Contains(msg, "unauthorized"), strings.Contains(msg, "api key"),
			strings.Contains(msg, "authentication"):
			kind = KindAuth
		case strings.Contains(msg, "connection refused"), strings.Contains(msg, "no such host"),
			strings.Contains(msg, "timeout"), strings.Contains(msg, "network"),
			strings.Contains(msg, "broken pipe"), strings.Contains(msg, "connection reset"):
			kind = KindNetwork
		}
	}

	return &Error{Kind: kind, Message: kind.UserMessage(), Err: err}
}
