package tts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestKindString(t *testing.T) {
	tests := []struct {
		kind     Kind
		expected string
	}{
		{KindNotInitialized, "NOT_INITIALIZED"},
		{KindEngineError, "ENGINE_ERROR"},
		{KindVoiceNotFound, "VOICE_NOT_FOUND"},
		{KindModelNotFound, "MODEL_NOT_FOUND"},
		{KindModelDownloadFailed, "MODEL_DOWNLOAD_FAILED"},
		{KindModelLoadError, "MODEL_LOAD_ERROR"},
		{KindInvalidText, "INVALID_TEXT"},
		{KindSynthesisError, "SYNTHESIS_ERROR"},
		{KindQueueFull, "QUEUE_FULL"},
		{KindCancelled, "CANCELLED"},
		{KindInsufficientStorage, "INSUFFICIENT_STORAGE"},
		{KindNetworkError, "NETWORK_ERROR"},
		{KindNotSupported, "NOT_SUPPORTED"},
		{KindUnknown, "UNKNOWN"},
		{Kind(999), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.kind.String(); got != tt.expected {
				t.Errorf("Kind.String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestErrorMatchesByKind(t *testing.T) {
	err := Errorf(KindQueueFull, "queue at capacity %d", 2)

	if !errors.Is(err, ErrQueueFull) {
		t.Error("errors.Is should match on kind")
	}
	if errors.Is(err, ErrCancelled) {
		t.Error("errors.Is should not match a different kind")
	}

	wrapped := fmt.Errorf("speak: %w", err)
	if !errors.Is(wrapped, ErrQueueFull) {
		t.Error("errors.Is should see through wrapping")
	}
	if KindOf(wrapped) != KindQueueFull {
		t.Errorf("KindOf = %v, want QUEUE_FULL", KindOf(wrapped))
	}
}

func TestErrorMessage(t *testing.T) {
	cause := errors.New("disk on fire")
	err := NewError(KindModelLoadError, "load failed", cause)

	msg := err.Error()
	if !strings.Contains(msg, "MODEL_LOAD_ERROR") || !strings.Contains(msg, "disk on fire") {
		t.Errorf("unexpected message %q", msg)
	}
	if !errors.Is(err, cause) {
		t.Error("Unwrap should expose the cause")
	}

	err.WithContext("model", "supertonic-en")
	if err.Context["model"] != "supertonic-en" {
		t.Error("WithContext should record the value")
	}
}

func TestKindOfForeignErrors(t *testing.T) {
	if KindOf(nil) != KindUnknown {
		t.Error("nil should map to UNKNOWN")
	}
	if KindOf(errors.New("boom")) != KindUnknown {
		t.Error("foreign error should map to UNKNOWN")
	}
	if KindOf(context.Canceled) != KindCancelled {
		t.Error("context.Canceled should map to CANCELLED")
	}
}

func TestWrapKeepsExistingKind(t *testing.T) {
	inner := Errorf(KindVoiceNotFound, "no voice x")
	if got := Wrap(KindEngineError, "set voice", inner); KindOf(got) != KindVoiceNotFound {
		t.Errorf("Wrap changed kind to %v", KindOf(got))
	}
	if got := Wrap(KindEngineError, "speak", errors.New("exit 1")); KindOf(got) != KindEngineError {
		t.Errorf("Wrap kind = %v, want ENGINE_ERROR", KindOf(got))
	}
	if Wrap(KindEngineError, "noop", nil) != nil {
		t.Error("Wrap(nil) should be nil")
	}
}

func TestErrorClassification(t *testing.T) {
	if !NewError(KindNotSupported, "", nil).IsFatal() {
		t.Error("NOT_SUPPORTED should be fatal")
	}
	if NewError(KindQueueFull, "", nil).IsFatal() {
		t.Error("QUEUE_FULL should not be fatal")
	}
	if !NewError(KindNetworkError, "", nil).IsRetryable() {
		t.Error("NETWORK_ERROR should be retryable")
	}
	if NewError(KindInvalidText, "", nil).IsRetryable() {
		t.Error("INVALID_TEXT should not be retryable")
	}
}
