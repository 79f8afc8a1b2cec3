package collab

import (
	"errors"
	"fmt"
)

// Sentinel errors, one per taxonomy class in spec §7. Call sites wrap these
// with %w and slot/session context; callers classify with errors.Is.
var (
	ErrConfig      = errors.New("config error")
	ErrTransport   = errors.New("transport error")
	ErrProvider4xx = errors.New("provider 4xx error")
	ErrProvider5xx = errors.New("provider 5xx error")
	ErrTimeout     = errors.New("timeout error")
	ErrCanceled    = errors.New("canceled")
	ErrDecode      = errors.New("decode error")
	ErrInternal    = errors.New("internal error")
	ErrBusy        = errors.New("busy")

	// Structural / invariant errors, mirroring the teacher's sentinel style.
	ErrSessionNotFound    = errors.New("session not found")
	ErrInvalidSessionID   = errors.New("invalid session id")
	ErrRunNotContinuable  = errors.New("session is not continuable")
	ErrDexterRequired     = errors.New("a slot named dexter must exist and be enabled")
	ErrNoSlotsEnabled     = errors.New("no collaboration-enabled slots")
	ErrUnknownProvider    = errors.New("unknown provider")
	ErrMissingIDGenerator = errors.New("missing id generator")
	ErrMissingStore       = errors.New("missing collaboration store")
	ErrMissingEventBus    = errors.New("missing event bus")
	ErrMissingLLMClient   = errors.New("missing llm client")
	ErrMissingRegistry    = errors.New("missing session registry")
	ErrEventInvalid       = errors.New("event is invalid")
	ErrContextNil         = errors.New("context is nil")
)

// CallError wraps a sentinel class with the slot/session context the spec
// requires on every LLM Client and Slot Runtime error.
func CallError(class error, slot string, reason string, cause error) error {
	if cause != nil {
		return fmt.Errorf("%w: slot=%s reason=%s: %v", class, slot, reason, cause)
	}
	return fmt.Errorf("%w: slot=%s reason=%s", class, slot, reason)
}

// ErrorClass returns the taxonomy sentinel that best classifies err, or
// ErrInternal if none match. Used to pick a SlotEvent's meta["error_class"].
func ErrorClass(err error) error {
	for _, class := range []error{
		ErrConfig, ErrTransport, ErrProvider4xx, ErrProvider5xx,
		ErrTimeout, ErrCanceled, ErrDecode, ErrBusy,
	} {
		if errors.Is(err, class) {
			return class
		}
	}
	return ErrInternal
}
