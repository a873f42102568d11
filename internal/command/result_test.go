package command

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSucceeded(t *testing.T) {
	r := Succeeded(true, "moved")
	assert.Equal(t, StatusSucceeded, r.Status())
	assert.True(t, r.Changed())
	assert.True(t, r.IsSuccess())
	assert.False(t, r.IsFailure())
	assert.False(t, r.IsCanceled())
	assert.Equal(t, "moved", r.Message())
	assert.Nil(t, r.Cause())
}

func TestSucceeded_Unchanged(t *testing.T) {
	r := Succeeded(false, "")
	assert.True(t, r.IsSuccess())
	assert.False(t, r.Changed())
}

func TestNoOp(t *testing.T) {
	r := NoOp("already active")
	assert.Equal(t, StatusNoOp, r.Status())
	assert.False(t, r.Changed())
	assert.True(t, r.IsSuccess())
	assert.Equal(t, "already active", r.Message())
}

func TestCanceled(t *testing.T) {
	r := Canceled("no drag")
	assert.Equal(t, StatusCanceled, r.Status())
	assert.False(t, r.Changed())
	assert.False(t, r.IsSuccess())
	assert.True(t, r.IsCanceled())
	assert.True(t, r.Halts())
	assert.Nil(t, r.Cause())
}

func TestFailed(t *testing.T) {
	cause := errors.New("boom")
	r, err := Failed(cause, "dock failed")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, r.Status())
	assert.True(t, r.IsFailure())
	assert.False(t, r.IsSuccess())
	assert.False(t, r.Changed())
	assert.True(t, r.Halts())
	assert.Same(t, cause, r.Cause())
}

func TestFailed_RequiresCause(t *testing.T) {
	_, err := Failed(nil, "no cause")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestResult_ZeroValueIsNoOp(t *testing.T) {
	var r Result
	assert.Equal(t, StatusNoOp, r.Status())
	assert.True(t, r.IsSuccess())
	assert.False(t, r.Halts())
}

func TestResult_String(t *testing.T) {
	r, _ := Failed(errors.New("boom"), "dock")
	assert.Equal(t, "failed: dock [boom]", r.String())
	assert.Equal(t, "succeeded (changed)", Succeeded(true, "").String())
	assert.Equal(t, "noop", NoOp("").String())
}
