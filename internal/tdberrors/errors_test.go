package tdberrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexError_Unwrap_PreservesOriginalError(t *testing.T) {
	originalErr := errors.New("disk offline")

	wrapped := New(ErrCodeStorageIO, "storage read failed", originalErr)

	require.NotNil(t, wrapped)
	assert.Equal(t, originalErr, errors.Unwrap(wrapped))
	assert.True(t, errors.Is(wrapped, originalErr))
}

func TestIndexError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		expected string
	}{
		{
			name:     "shape mismatch",
			code:     ErrCodeShapeMismatch,
			message:  "query has 4 columns, index has dimension 3",
			expected: "[ERR_102_SHAPE_MISMATCH] query has 4 columns, index has dimension 3",
		},
		{
			name:     "partition too large",
			code:     ErrCodePartitionTooLarge,
			message:  "partition 7 needs 40000000 bytes, budget is 10000000",
			expected: "[ERR_301_PARTITION_TOO_LARGE] partition 7 needs 40000000 bytes, budget is 10000000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, nil)
			assert.Equal(t, tt.expected, err.Error())
		})
	}
}

func TestIndexError_Is_MatchesByCode(t *testing.T) {
	a := New(ErrCodeShapeMismatch, "a", nil)
	b := New(ErrCodeShapeMismatch, "different message", nil)
	c := New(ErrCodeTypeMismatch, "a", nil)

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, c))
}

func TestCategoryFromCode(t *testing.T) {
	tests := []struct {
		code string
		want Category
	}{
		{ErrCodeInvalidArgument, CategoryValidation},
		{ErrCodeTimestampBeforeLatestIngestion, CategoryTimestamp},
		{ErrCodePartitionTooLarge, CategoryResource},
		{ErrCodeStorageIO, CategoryStorage},
		{ErrCodeInternal, CategoryInternal},
	}

	for _, tt := range tests {
		got := New(tt.code, "msg", nil).Category
		assert.Equal(t, tt.want, got, "code %s", tt.code)
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(ErrCodeStorageIO, "transient", nil)))
	assert.False(t, IsRetryable(New(ErrCodeShapeMismatch, "bad shape", nil)))
	assert.False(t, IsRetryable(errors.New("plain error")))
}

func TestEmptyIndex_NonFatal(t *testing.T) {
	err := EmptyIndex()
	assert.True(t, IsEmptyIndex(err))
	assert.Equal(t, SeverityInfo, err.Severity)
}

func TestWithDetail_Chains(t *testing.T) {
	err := New(ErrCodePartitionTooLarge, "too big", nil).
		WithDetail("partition", "7").
		WithDetail("budget_bytes", "1000000")

	assert.Equal(t, "7", err.Details["partition"])
	assert.Equal(t, "1000000", err.Details["budget_bytes"])
}
