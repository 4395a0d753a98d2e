package store_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tagyard/tagyard-server/internal/store"
)

func TestError_WithCause(t *testing.T) {
	cause := errors.New("no rows")
	err := store.ErrNotFound.WithCause(cause)

	assert.Contains(t, err.Error(), "resource not found")
	assert.Contains(t, err.Error(), "no rows")
	assert.ErrorIs(t, err, cause)
}

func TestError_IsMatchesCopies(t *testing.T) {
	err := fmt.Errorf("get relationship: %w", store.ErrNotFound.WithCause(errors.New("x")))

	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NotErrorIs(t, err, store.ErrAlreadyExists)
}
