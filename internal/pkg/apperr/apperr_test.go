package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("load document failed: %w", NotFound("document %d not found", 7))

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrInvalidArgument))
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, "document 7 not found", Message(err))
}

func TestExternalAfterKeepsCause(t *testing.T) {
	cause := errors.New("status 503")
	err := ExternalAfter("embedding request failed", 3, cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrExternalService)
	assert.Equal(t, "embedding request failed (after 3 attempts): status 503", err.Error())
}

func TestKindOfUnknownIsInternal(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
}
