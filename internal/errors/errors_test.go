package errors_test

import (
	"context"
	"testing"

	"codeberg.org/mutker/bwcheck/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	f := errors.New()

	assert.Equal(t, "Licensed bandwidth is zero", f.New(errors.ErrZeroLicensed).Error())
	assert.Equal(t, "Remote command failed: context deadline exceeded",
		f.Wrap(errors.ErrTransport, context.DeadlineExceeded).Error())
	assert.Equal(t, "custom", f.WithMessage(errors.ErrInternal, "custom").Error())
	assert.Equal(t, "Invalid thresholds: warning 80 >= critical 75",
		f.WithData(errors.ErrInvalidThresholds, "warning 80 >= critical 75").Error())
}

func TestErrorChain(t *testing.T) {
	f := errors.New()
	err := f.Wrap(errors.ErrTransport, context.DeadlineExceeded)

	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.True(t, errors.Is(err, f.New(errors.ErrTransport)))
	assert.False(t, errors.Is(err, f.New(errors.ErrLogFormat)))

	withData := err.WithData("host unreachable")
	assert.Equal(t, errors.ErrTransport, withData.Code())
	assert.Equal(t, "host unreachable", withData.GetData())
}

func TestKindOf(t *testing.T) {
	f := errors.New()
	tests := []struct {
		code errors.ErrorCode
		want errors.Kind
	}{
		{errors.ErrTransport, errors.KindTransport},
		{errors.ErrLogFormat, errors.KindFormat},
		{errors.ErrUnknownMonth, errors.KindFormat},
		{errors.ErrZeroLicensed, errors.KindData},
		{errors.ErrLogTooOld, errors.KindData},
		{errors.ErrInvalidThresholds, errors.KindConfig},
		{errors.ErrAlreadyRunning, errors.KindInternal},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, errors.KindOf(f.New(tt.code)))
		})
	}

	assert.Equal(t, errors.KindInternal, errors.KindOf(context.Canceled))
	assert.Equal(t, errors.ErrInternal, errors.CodeOf(context.Canceled))
}
