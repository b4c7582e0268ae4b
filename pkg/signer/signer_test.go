package signer

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suffix-labs/zcash-sapling-sighash/pkg/status"
)

func testKey(t *testing.T, fill byte) *PrivateKey {
	t.Helper()
	key, err := PrivateKeyFromBytes(bytes.Repeat([]byte{fill}, 32))
	require.NoError(t, err)
	return key
}

func TestSignAndVerify(t *testing.T) {
	key := testKey(t, 0x01)
	hash := sha256.Sum256([]byte("sighash"))

	sig := key.Sign(hash)
	assert.True(t, VerifySignature(key.PublicKey(), hash, sig))

	// Deterministic RFC 6979 nonces.
	assert.Equal(t, sig, key.Sign(hash))

	hash[0] ^= 1
	assert.False(t, VerifySignature(key.PublicKey(), hash, sig))
	assert.False(t, VerifySignature(key.PublicKey(), hash, []byte{0x30, 0x00}))
}

func TestPublicKeyRoundTrip(t *testing.T) {
	pub := testKey(t, 0x02).PublicKey()
	b := pub.SerializeCompressed()
	assert.Contains(t, []byte{0x02, 0x03}, b[0])

	parsed, err := ParsePublicKey(b[:])
	require.NoError(t, err)
	assert.Equal(t, pub.Bytes(), parsed.Bytes())

	_, err = ParsePublicKey(b[:32])
	assert.Error(t, err)
}

func TestWIF(t *testing.T) {
	key := testKey(t, 0x03)
	for _, c := range []struct {
		compressed, testnet bool
	}{{true, false}, {false, false}, {true, true}} {
		wif, err := EncodeWIF(key.Bytes(), c.compressed, c.testnet)
		require.NoError(t, err)

		parsed, err := ParsePrivateKeyWIF(wif)
		require.NoError(t, err)
		assert.Equal(t, key.Bytes(), parsed.Bytes())
	}

	wif, err := EncodeWIF(key.Bytes(), true, false)
	require.NoError(t, err)
	corrupt := []byte(wif)
	corrupt[len(corrupt)-1]++
	_, err = ParsePrivateKeyWIF(string(corrupt))
	assert.Error(t, err)

	_, err = EncodeWIF(key.Bytes()[:31], true, false)
	assert.Error(t, err)
}

func TestKeyring(t *testing.T) {
	k := NewKeyring()
	key := testKey(t, 0x04)
	require.NoError(t, k.Add(1, key))
	assert.Error(t, k.Add(1, key))

	hash := sha256.Sum256([]byte("tx"))
	sig, err := k.Sign(1, hash)
	require.NoError(t, err)
	pub, err := k.PublicKey(1)
	require.NoError(t, err)
	assert.True(t, VerifySignature(pub, hash, sig))

	_, err = k.Sign(2, hash)
	assert.ErrorIs(t, err, status.ErrBadKeyHandle)
	_, err = k.PublicKey(2)
	assert.ErrorIs(t, err, status.ErrBadKeyHandle)

	k.Wipe()
	_, err = k.Sign(1, hash)
	assert.ErrorIs(t, err, status.ErrBadKeyHandle)
}

func TestP2PKHScript(t *testing.T) {
	pub := testKey(t, 0x05).PublicKey()
	script := P2PKHScript(pub)
	h := pub.Hash160()

	assert.True(t, IsP2PKH(script[:]))
	assert.True(t, PaysTo(script[:], pub))
	assert.Equal(t, h[:], script[4:24])
	assert.False(t, PaysTo(script[:], testKey(t, 0x06).PublicKey()))

	script[1] = 0x00
	assert.False(t, IsP2PKH(script[:]))
	assert.False(t, IsP2PKH(script[:25]))
}

func TestHash160KnownKey(t *testing.T) {
	// Generator point: the compressed public key of private key 1.
	one := make([]byte, 32)
	one[31] = 1
	key, err := PrivateKeyFromBytes(one)
	require.NoError(t, err)
	h := key.PublicKey().Hash160()
	assert.Equal(t, "751e76e8199196d454941c45d1b3a323f1433bd6", hex.EncodeToString(h[:]))
}
