package lnurl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	t.Run("produces uppercase LNURL1 prefix", func(t *testing.T) {
		encoded, err := Encode("https://pay.example.com/api/v2/lnurl/abc?switch_id=def")
		require.NoError(t, err)
		assert.True(t, IsValid(encoded))
		assert.Equal(t, encoded, string([]byte(encoded)))
		assert.Regexp(t, `^LNURL1[AC-HJ-NP-Z02-9]+$`, encoded)
	})

	t.Run("round-trips through Decode", func(t *testing.T) {
		url := "https://pay.example.com/api/v2/lnurl/devid123?switch_id=sw1"
		encoded, err := Encode(url)
		require.NoError(t, err)

		decoded, err := Decode(encoded)
		require.NoError(t, err)
		assert.Equal(t, url, decoded)
	})
}

func TestIsValid(t *testing.T) {
	assert.False(t, IsValid(""))
	assert.False(t, IsValid("https://pay.example.com"))
	assert.True(t, IsValid("LNURL1DP68GURN8GHJ7"))
	assert.True(t, IsValid("lnurl1dp68gurn8ghj7"))
}
