package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKindMatching(t *testing.T) {
	err := NotFound.Explain("order %s not found", "abc")
	assert.True(t, Is(err, NotFound))
	assert.False(t, Is(err, InvalidState))
	assert.Equal(t, "[NotFound] order abc not found", err.Error())

	wrapped := fmt.Errorf("cancel: %w", err)
	assert.True(t, Is(wrapped, NotFound))
	assert.Equal(t, http.StatusNotFound, StatusOf(wrapped))
	assert.Equal(t, KindNotFound, KindOf(wrapped))
}

func TestSentinelsAreNotMutated(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	_ = StoreUnavailable.Wrap(cause).Explain("db down")
	assert.Nil(t, StoreUnavailable.Unwrap())
	assert.Empty(t, StoreUnavailable.Message)

	withField := InvalidArgument.WithField("gt", "price", "must be positive")
	assert.Empty(t, InvalidArgument.Fields)
	assert.Len(t, withField.Fields, 1)
}

func TestWrapKeepsCause(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := StoreUnavailable.Wrap(cause)
	assert.ErrorIs(t, err, cause)
	assert.True(t, Is(err, StoreUnavailable))
}

func TestStatusOfUnknownError(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, StatusOf(fmt.Errorf("boom")))
	assert.Equal(t, KindInternal, KindOf(fmt.Errorf("boom")))
}

func TestToProblem(t *testing.T) {
	p := ToProblem(InvalidArgument.Explain("quantity must be positive").WithField("gt", "quantity", "must be > 0"), "/api/v1/orders")
	assert.Equal(t, http.StatusBadRequest, p.Status)
	assert.Equal(t, TypeInvalidArgument, p.Type)
	assert.Equal(t, "quantity must be positive", p.Detail)
	require.Len(t, p.Errors, 1)
	assert.Equal(t, "quantity", p.Errors[0].Field)

	conflict := ToProblem(ConcurrencyConflict.Explain("lock timeout"), "")
	assert.Equal(t, http.StatusServiceUnavailable, conflict.Status)
	data, err := json.Marshal(conflict)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"retryable":true`)

	internal := ToProblem(fmt.Errorf("secret driver text"), "")
	assert.Equal(t, http.StatusInternalServerError, internal.Status)
	assert.NotContains(t, internal.Detail, "secret")
}
