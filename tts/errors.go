package tts

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failure. Callers build user-facing messages from the kind,
// never by parsing the message text.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotInitialized
	KindEngineError
	KindVoiceNotFound
	KindModelNotFound
	KindModelDownloadFailed
	KindModelLoadError
	KindInvalidText
	KindSynthesisError
	KindQueueFull
	KindCancelled
	KindInsufficientStorage
	KindNetworkError
	KindNotSupported
)

// String returns the stable code for the kind.
func (k Kind) String() string {
	switch k {
	case KindNotInitialized:
		return "NOT_INITIALIZED"
	case KindEngineError:
		return "ENGINE_ERROR"
	case KindVoiceNotFound:
		return "VOICE_NOT_FOUND"
	case KindModelNotFound:
		return "MODEL_NOT_FOUND"
	case KindModelDownloadFailed:
		return "MODEL_DOWNLOAD_FAILED"
	case KindModelLoadError:
		return "MODEL_LOAD_ERROR"
	case KindInvalidText:
		return "INVALID_TEXT"
	case KindSynthesisError:
		return "SYNTHESIS_ERROR"
	case KindQueueFull:
		return "QUEUE_FULL"
	case KindCancelled:
		return "CANCELLED"
	case KindInsufficientStorage:
		return "INSUFFICIENT_STORAGE"
	case KindNetworkError:
		return "NETWORK_ERROR"
	case KindNotSupported:
		return "NOT_SUPPORTED"
	default:
		return "UNKNOWN"
	}
}

// Common errors, one per kind. They match any *Error of the same kind with
// errors.Is.
var (
	ErrNotInitialized      = &Error{Kind: KindNotInitialized, Message: "engine is not initialized"}
	ErrEngine              = &Error{Kind: KindEngineError, Message: "synthesis backend failure"}
	ErrVoiceNotFound       = &Error{Kind: KindVoiceNotFound, Message: "requested voice not found"}
	ErrModelNotFound       = &Error{Kind: KindModelNotFound, Message: "model not found"}
	ErrModelDownloadFailed = &Error{Kind: KindModelDownloadFailed, Message: "model download failed"}
	ErrModelLoad           = &Error{Kind: KindModelLoadError, Message: "model could not be loaded"}
	ErrInvalidText         = &Error{Kind: KindInvalidText, Message: "invalid text"}
	ErrSynthesis           = &Error{Kind: KindSynthesisError, Message: "synthesis failed"}
	ErrQueueFull           = &Error{Kind: KindQueueFull, Message: "utterance queue is full"}
	ErrCancelled           = &Error{Kind: KindCancelled, Message: "operation cancelled"}
	ErrInsufficientStorage = &Error{Kind: KindInsufficientStorage, Message: "insufficient storage"}
	ErrNetwork             = &Error{Kind: KindNetworkError, Message: "network error"}
	ErrNotSupported        = &Error{Kind: KindNotSupported, Message: "not supported on this platform"}
)

// Error is a TTS failure with a kind, a human readable message and optional
// context for logging.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	Context map[string]interface{}
}

// NewError creates a new error of the given kind.
func NewError(kind Kind, message string, cause error) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// Errorf creates a new error of the given kind with a formatted message.
func Errorf(kind Kind, format string, args ...interface{}) *Error {
	return NewError(kind, fmt.Sprintf(format, args...), nil)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// WithContext adds context to the error.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// IsFatal returns true if the error leaves the failing component unusable
// until it is re-initialized.
func (e *Error) IsFatal() bool {
	switch e.Kind {
	case KindNotSupported,
		KindEngineError,
		KindModelLoadError:
		return true
	default:
		return false
	}
}

// IsRetryable returns true if re-submitting the same work may succeed.
// Nothing in the SDK retries on its own.
func (e *Error) IsRetryable() bool {
	switch e.Kind {
	case KindQueueFull,
		KindNetworkError,
		KindModelDownloadFailed:
		return true
	default:
		return false
	}
}

// KindOf returns the kind carried by err. Context cancellation maps to
// KindCancelled and any other foreign error to KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	return KindUnknown
}

// Wrap converts err into an *Error of the given kind unless it already
// carries one.
func Wrap(kind Kind, message string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return NewError(kind, message, err)
}
