package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategories(t *testing.T) {
	notFound := NewDatasetNotFound("events/eventsStart")
	assert.True(t, IsNotFound(notFound))
	assert.False(t, IsIncompatible(notFound))

	incompatible := NewNotCompatible("events/eventsNote", "stored float32, requested int32")
	assert.True(t, IsIncompatible(incompatible))
	assert.False(t, IsNotFound(incompatible))

	assert.True(t, IsShape(NewWidthMismatch("features/spectrum", 256, 128)))
	assert.True(t, IsShape(NewShapeMismatch("features/spectrum", 512, 511)))
	assert.True(t, IsValidation(NewValidation("chunk_size", "must be positive")))
}

func TestErrorToCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, CodeOK},
		{NewDatasetNotFound("x"), CodeNotFound},
		{NewIndexOutOfRange("x", 4, 2), CodeNotFound},
		{NewNotCompatible("x", "rank"), CodeNotCompatible},
		{NewWidthMismatch("x", 1, 2), CodeShapeMismatch},
		{Wrap(ErrCorruptStore, "open"), CodeCorrupt},
		{ErrDatasetAlreadyExists, CodeAlreadyExists},
		{ErrStoreClosed, CodeClosed},
		{NewMissingField("path"), CodeInvalidRequest},
		{fmt.Errorf("boom"), CodeInternal},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorToCode(tt.err), "error %v", tt.err)
	}
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "context"))
	assert.NoError(t, Wrapf(nil, "context %d", 1))
}

func TestValidationErrors(t *testing.T) {
	v := NewValidationErrors()
	require.NoError(t, v.Err())

	v.AddField("chunk_size", "must be positive")
	v.AddMissing("path")
	v.Add(nil)

	err := v.Err()
	require.Error(t, err)
	assert.Len(t, v.Errors, 2)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorIs(t, err, ErrMissingField)
	assert.Contains(t, err.Error(), "validation failed with 2 errors")
}
