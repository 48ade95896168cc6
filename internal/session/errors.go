package session

import "fmt"

// FailureKind tags the stage of bootstrap that failed.
type FailureKind string

const (
	// KindVisitorInit means no visitor UUID was obtainable.
	KindVisitorInit FailureKind = "visitor_init"
	// KindConversationInit means no conversation could be fetched or created.
	KindConversationInit FailureKind = "conversation_init"
	// KindSessionVerification means verifying the cached identity failed
	// in a way the single self-heal pass could not repair.
	KindSessionVerification FailureKind = "session_verification"
)

// InitError is a tagged bootstrap failure. It is carried inside Result,
// never thrown past the state machine boundary.
type InitError struct {
	Kind   FailureKind
	Reason string
	Err    error
}

func (e *InitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

func visitorInitError(reason string, err error) *InitError {
	return &InitError{Kind: KindVisitorInit, Reason: reason, Err: err}
}

func conversationInitError(reason string, err error) *InitError {
	return &InitError{Kind: KindConversationInit, Reason: reason, Err: err}
}
