package apperr

import (
	"fmt"
	"net/http"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	t.Run("wrapped app error keeps its code", func(t *testing.T) {
		err := fmt.Errorf("send: %w", ErrEmptyText)
		assert.Equal(t, CodeBadRequest, CodeOf(err))
		assert.True(t, Is(err, CodeBadRequest))
	})

	t.Run("plain error is unknown", func(t *testing.T) {
		assert.Equal(t, CodeUnknown, CodeOf(pkgerrors.New("boom")))
	})

	t.Run("nil has no code", func(t *testing.T) {
		assert.Equal(t, Code(""), CodeOf(nil))
	})
}

func TestSentinelMatching(t *testing.T) {
	err := Transient("storage unavailable", pkgerrors.New("disk full"))
	assert.ErrorIs(t, err, ErrStorage(nil))
	assert.NotErrorIs(t, err, ErrNotPersisted(nil))
	assert.Contains(t, err.Error(), "disk full")
}

func TestPublicHidesCause(t *testing.T) {
	pub := Public(ErrNotPersisted(pkgerrors.New("sqlite: locked")))
	assert.Equal(t, CodeTransient, pub.Code)
	assert.Nil(t, pub.Cause)
	assert.NotContains(t, pub.Error(), "sqlite")

	assert.Equal(t, CodeInternal, Public(ErrStalePresence).Code)
	hidden := Public(pkgerrors.New("mongo: connection reset"))
	assert.Equal(t, CodeInternal, hidden.Code)
	assert.Equal(t, "internal error", hidden.Message)
	assert.True(t, Is(Internal("boom"), CodeInternal))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(CodeBadRequest))
	assert.Equal(t, http.StatusForbidden, HTTPStatus(CodePermissionDenied))
	assert.Equal(t, http.StatusUnauthorized, HTTPStatus(CodeNotAuthenticated))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(CodeTransient))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(CodeUnknown))
}
