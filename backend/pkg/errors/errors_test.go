package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsErrorType_TypedWrapper(t *testing.T) {
	err := NewDanglingEdge("e-7", "n-999")

	assert.True(t, IsErrorType(err, ErrorTypeLoad))
	assert.True(t, IsLoadError(err))
	assert.False(t, IsErrorType(err, ErrorTypeStore))
	assert.Contains(t, err.Error(), "e-7")
	assert.Contains(t, err.Error(), "n-999")
}

func TestIsErrorType_ThroughFmtWrap(t *testing.T) {
	wrapped := fmt.Errorf("loading graph: %w", NewDuplicateNode("n-001"))

	assert.True(t, IsLoadError(wrapped))
}

func TestIsErrorType_BaseErrorChain(t *testing.T) {
	inner := NewStoreWriteFailed("kg.json", fmt.Errorf("disk full"))
	outer := NewLoadFailed("kg.json", "reload after write", inner)

	assert.True(t, IsErrorType(outer, ErrorTypeLoad))
	assert.True(t, IsErrorType(outer, ErrorTypeStore))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"store write", NewStoreWriteFailed("kg.json", nil), true},
		{"dangling edge", NewDanglingEdge("e-1", "n-2"), false},
		{"cancelled", NewContextCancelled("score", nil), false},
		{"invalid input", NewInvalidInput("from", "unknown node"), false},
		{"plain", fmt.Errorf("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestBaseErrorFormatting(t *testing.T) {
	err := NewBaseError(ErrorTypeProfile, "bad weights", nil)
	assert.Equal(t, "[profile] bad weights", err.Error())

	withCause := NewBaseError(ErrorTypeStore, "rename", fmt.Errorf("exists"))
	assert.Equal(t, "[store] rename: exists", withCause.Error())
	assert.EqualError(t, withCause.Unwrap(), "exists")
}
