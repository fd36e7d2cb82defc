package secrets

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	k := make([]byte, 32)
	for i := range k {
		k[i] = byte(i)
	}
	return k
}

func TestNewBoxRejectsWrongKeyLength(t *testing.T) {
	_, err := NewBox([]byte("too-short"))
	assert.Error(t, err)
}

func TestSealOpenRoundTrip(t *testing.T) {
	box, err := NewBox(testKey())
	require.NoError(t, err)

	plaintext := []byte("correct horse battery staple private key material")
	blob, err := box.Seal(plaintext)
	require.NoError(t, err)

	got, err := box.Open(blob)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestSealProducesDistinctNoncesPerCall(t *testing.T) {
	box, err := NewBox(testKey())
	require.NoError(t, err)

	a, err := box.Seal([]byte("same plaintext"))
	require.NoError(t, err)
	b, err := box.Seal([]byte("same plaintext"))
	require.NoError(t, err)

	assert.False(t, bytes.Equal(a, b), "two seals of the same plaintext must not collide")
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	box, err := NewBox(testKey())
	require.NoError(t, err)

	blob, err := box.Seal([]byte("sensitive"))
	require.NoError(t, err)

	tampered := append([]byte{}, blob...)
	tampered[0] ^= 0xff

	_, err = box.Open(tampered)
	assert.Error(t, err)
}

func TestOpenRejectsTooShortBlob(t *testing.T) {
	box, err := NewBox(testKey())
	require.NoError(t, err)

	_, err = box.Open([]byte("short"))
	assert.Error(t, err)
}

func TestSealOpenEmptyPlaintext(t *testing.T) {
	box, err := NewBox(testKey())
	require.NoError(t, err)

	blob, err := box.Seal(nil)
	require.NoError(t, err)

	got, err := box.Open(blob)
	require.NoError(t, err)
	assert.Empty(t, got)
}
