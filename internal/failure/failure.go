// Package failure defines the error kinds shared by every pipeline stage.
//
// Stages wrap one of the sentinel errors below with github.com/pkg/errors so
// that callers can classify a failure with errors.Is while still seeing the
// stage-specific message.
package failure

import (
	"context"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidInput reports zero or negative dimensions, mismatched raw
	// arrays, or an otherwise malformed argument.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidState reports a malformed transform or configuration that
	// should never reach the stage, e.g. a non-positive letterbox scale.
	ErrInvalidState = errors.New("invalid state")

	// ErrDecodeFailure reports a buffer conversion or resize failure.
	ErrDecodeFailure = errors.New("decode failure")

	// ErrEmptyRegion reports a degenerate crop rectangle.
	ErrEmptyRegion = errors.New("empty region")

	// ErrInferenceFailure reports an error returned by an external engine.
	ErrInferenceFailure = errors.New("inference failure")
)

// Kind names used in diagnostics and counters.
const (
	KindInvalidInput     = "invalid_input"
	KindInvalidState     = "invalid_state"
	KindDecodeFailure    = "decode_failure"
	KindEmptyRegion      = "empty_region"
	KindInferenceFailure = "inference_failure"
	KindCanceled         = "canceled"
	KindUnknown          = "unknown"
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrInvalidInput, KindInvalidInput},
	{ErrInvalidState, KindInvalidState},
	{ErrDecodeFailure, KindDecodeFailure},
	{ErrEmptyRegion, KindEmptyRegion},
	{ErrInferenceFailure, KindInferenceFailure},
}

// KindOf returns the stable kind name for err. A nil error returns "".
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	if isCanceled(err) {
		return KindCanceled
	}
	return KindUnknown
}

// Wrapf annotates kind with a formatted message and a stack trace.
func Wrapf(kind error, format string, args ...interface{}) error {
	return errors.Wrapf(kind, format, args...)
}

// Inference wraps an engine error so that it classifies as ErrInferenceFailure
// while keeping the engine's message.
func Inference(err error, engine string) error {
	if err == nil {
		return nil
	}
	return &inferenceError{engine: engine, cause: err}
}

type inferenceError struct {
	engine string
	cause  error
}

func (e *inferenceError) Error() string {
	return e.engine + ": " + ErrInferenceFailure.Error() + ": " + e.cause.Error()
}

func (e *inferenceError) Unwrap() []error {
	return []error{ErrInferenceFailure, e.cause}
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
