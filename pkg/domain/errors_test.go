package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := fmt.Errorf("issuing: %w", NotFound("abc"))

	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrForbidden)
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestError_Messages(t *testing.T) {
	assert.Equal(t, "login locked, retry in 42 seconds", LockedOut(42).Error())
	assert.Equal(t, "invalid credential, 2 attempts remaining", InvalidCredential(2).Error())
	assert.Equal(t, `missing required field "name"`, MissingField("name").Error())
	assert.Equal(t, "forbidden, requires role level 5", Forbidden(5).Error())
}
