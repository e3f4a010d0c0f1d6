package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestECDHRoundTrip(t *testing.T) {
	aliceSK, alicePK, err := GenerateECDH()
	require.NoError(t, err)
	bobSK, bobPK, err := GenerateECDH()
	require.NoError(t, err)

	aliceDER, err := ExportSPKI(alicePK)
	require.NoError(t, err)
	bobDER, err := ExportSPKI(bobPK)
	require.NoError(t, err)

	// L2: SPKI export/import round-trip preserves the derived shared secret.
	importedBobPK, err := ImportSPKI(bobDER)
	require.NoError(t, err)
	importedAlicePK, err := ImportSPKI(aliceDER)
	require.NoError(t, err)

	secretA, err := DeriveShared(aliceSK, importedBobPK)
	require.NoError(t, err)
	secretB, err := DeriveShared(bobSK, importedAlicePK)
	require.NoError(t, err)
	require.Equal(t, secretA, secretB)
}

func TestImportSPKIRejectsGarbage(t *testing.T) {
	_, err := ImportSPKI([]byte("not a key"))
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestSealOpenRoundTrip(t *testing.T) {
	key, err := RandomBytes(KeySize)
	require.NoError(t, err)
	iv, err := RandomBytes(NonceSize)
	require.NoError(t, err)

	plaintext := []byte(`{"isAction":false,"text":"hello"}`)
	ciphertext, err := Seal(key, iv, plaintext)
	require.NoError(t, err)

	// L1: aead_open(k, iv, aead_seal(k, iv, p)) == p
	opened, err := Open(key, iv, ciphertext)
	require.NoError(t, err)
	require.Equal(t, plaintext, opened)
}

func TestOpenTamperDetected(t *testing.T) {
	key, err := RandomBytes(KeySize)
	require.NoError(t, err)
	iv, err := RandomBytes(NonceSize)
	require.NoError(t, err)

	ciphertext, err := Seal(key, iv, []byte("secret"))
	require.NoError(t, err)
	ciphertext[0] ^= 0xFF

	_, err = Open(key, iv, ciphertext)
	require.ErrorIs(t, err, ErrAuthFailed)
}

func TestDeriveSessionKeyLength(t *testing.T) {
	key, err := DeriveSessionKey([]byte("some shared secret"))
	require.NoError(t, err)
	require.Len(t, key, KeySize)
}
