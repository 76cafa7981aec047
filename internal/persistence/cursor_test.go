package persistence

import (
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/fitstreak/internal/domain"
)

func TestCursorRoundTrip(t *testing.T) {
	cursor := &domain.EntryCursor{Date: domain.MustParseDate("2024-02-29")}

	token := EncodeCursor(cursor)
	require.NotEmpty(t, token)

	decoded, err := DecodeCursor(token)
	require.NoError(t, err)
	require.True(t, decoded.Date.Equal(cursor.Date))
}

func TestDecodeCursorEmptyToken(t *testing.T) {
	decoded, err := DecodeCursor("  ")
	require.NoError(t, err)
	require.Nil(t, decoded)
	require.Empty(t, EncodeCursor(nil))
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	_, err := DecodeCursor("!!not-base64!!")
	require.Error(t, err)

	_, err = DecodeCursor("Zm9vYmFy") // "foobar"
	require.Error(t, err)
}
