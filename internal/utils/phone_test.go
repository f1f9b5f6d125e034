package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	got, err := NormalizePhone("9876543210", "IN")
	require.NoError(t, err)
	assert.Equal(t, "+919876543210", got)

	// already E.164: region hint is ignored
	got, err = NormalizePhone("+14155552671", "IN")
	require.NoError(t, err)
	assert.Equal(t, "+14155552671", got)

	_, err = NormalizePhone("12", "IN")
	assert.Error(t, err)
}
