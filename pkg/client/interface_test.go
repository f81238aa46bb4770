package client

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusErrorHidesBody(t *testing.T) {
	err := errors.Wrap(&StatusError{Code: 429, Body: `{"error":"quota exceeded for key abc"}`}, "gemini")

	assert.Equal(t, "gemini: upstream returned status 429", err.Error())

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 429, se.Code)
}
