package failure

import (
	"context"
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"invalid input", Wrapf(ErrInvalidInput, "width %d", 0), KindInvalidInput},
		{"invalid state", Wrapf(ErrInvalidState, "scale %f", 0.0), KindInvalidState},
		{"decode", fmt.Errorf("resize: %w", ErrDecodeFailure), KindDecodeFailure},
		{"empty region", Wrapf(ErrEmptyRegion, "crop"), KindEmptyRegion},
		{"inference", Inference(errors.New("boom"), "classifier"), KindInferenceFailure},
		{"canceled", context.Canceled, KindCanceled},
		{"other", errors.New("other"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestInference_KeepsCause(t *testing.T) {
	cause := context.DeadlineExceeded
	err := Inference(cause, "detector")

	assert.ErrorIs(t, err, ErrInferenceFailure)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "detector")
	assert.Equal(t, KindInferenceFailure, KindOf(err))
	assert.Nil(t, Inference(nil, "detector"))
}
