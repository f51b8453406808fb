package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorEncodeDecode(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	token := Cursor{CreatedAt: at, ID: 99}.Encode()

	decoded, err := DecodeCursor(token)
	require.NoError(t, err)
	require.NotNil(t, decoded)
	assert.True(t, at.Equal(decoded.CreatedAt))
	assert.EqualValues(t, 99, decoded.ID)
}

func TestDecodeCursorEmptyAndInvalid(t *testing.T) {
	decoded, err := DecodeCursor("  ")
	assert.NoError(t, err)
	assert.Nil(t, decoded)

	for _, token := range []string{"!!", "bm9jb2xvbg", "YWJjOjE"} {
		_, err := DecodeCursor(token)
		assert.ErrorIs(t, err, ErrInvalidCursor, token)
	}
}
