package domain

import "fmt"

// RetrievalError means messages could not be fetched from a source conversation.
type RetrievalError struct {
	SourceID string
	Err      error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieve messages from %s: %v", e.SourceID, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// ResolutionError means the destination conversation could not be resolved.
type ResolutionError struct {
	ChatID string
	Err    error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve chat %s: %v", e.ChatID, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// ForwardError means the forward operation itself failed.
type ForwardError struct {
	SourceID   string
	MessageIDs []string
	Err        error
}

func (e *ForwardError) Error() string {
	return fmt.Sprintf("forward %d message(s) from %s: %v", len(e.MessageIDs), e.SourceID, e.Err)
}

func (e *ForwardError) Unwrap() error { return e.Err }

// StoreError means the fingerprint store is unreachable or corrupt.
// Forwarding must not continue without it.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("fingerprint store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
