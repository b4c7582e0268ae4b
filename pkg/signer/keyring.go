package signer

import (
	"bytes"
	"fmt"

	"github.com/suffix-labs/zcash-sapling-sighash/pkg/status"
)

// Signer signs finalized signature hashes with a key selected by handle.
// Key handles are opaque to the caller; the key never leaves the Signer.
type Signer interface {
	PublicKey(handle uint8) (*PublicKey, error)
	Sign(handle uint8, hash [32]byte) ([]byte, error)
}

// Keyring is an in-memory Signer.
type Keyring struct {
	keys map[uint8]*PrivateKey
}

// NewKeyring returns an empty keyring.
func NewKeyring() *Keyring {
	return &Keyring{keys: make(map[uint8]*PrivateKey)}
}

// Add stores key under handle.
func (k *Keyring) Add(handle uint8, key *PrivateKey) error {
	if _, ok := k.keys[handle]; ok {
		return fmt.Errorf("key handle %d already in use", handle)
	}
	k.keys[handle] = key
	return nil
}

// AddWIF parses wif and stores it under handle.
func (k *Keyring) AddWIF(handle uint8, wif string) error {
	key, err := ParsePrivateKeyWIF(wif)
	if err != nil {
		return err
	}
	return k.Add(handle, key)
}

func (k *Keyring) key(handle uint8) (*PrivateKey, error) {
	key, ok := k.keys[handle]
	if !ok {
		return nil, status.New(status.CodeBadKeyHandle, "no key with handle %d", handle)
	}
	return key, nil
}

// PublicKey returns the public key for handle.
func (k *Keyring) PublicKey(handle uint8) (*PublicKey, error) {
	key, err := k.key(handle)
	if err != nil {
		return nil, err
	}
	return key.PublicKey(), nil
}

// Sign signs hash with the key for handle and checks the signature before
// returning it.
func (k *Keyring) Sign(handle uint8, hash [32]byte) ([]byte, error) {
	key, err := k.key(handle)
	if err != nil {
		return nil, err
	}
	sig := key.Sign(hash)
	if !VerifySignature(key.PublicKey(), hash, sig) {
		return nil, status.New(status.CodeSignVerifyError, "signature with handle %d does not verify", handle)
	}
	return sig, nil
}

// Wipe zeroes and forgets every key.
func (k *Keyring) Wipe() {
	for h, key := range k.keys {
		key.Zero()
		delete(k.keys, h)
	}
}

// P2PKH script opcodes.
const (
	opDup         = 0x76
	opHash160     = 0xa9
	opData20      = 0x14
	opEqualVerify = 0x88
	opCheckSig    = 0xac
)

// P2PKHScriptLen is the length of a P2PKH script with its one-byte length
// prefix, the form carried in transparent records.
const P2PKHScriptLen = 26

// P2PKHScript returns the length-prefixed P2PKH script paying to pub.
func P2PKHScript(pub *PublicKey) [P2PKHScriptLen]byte {
	var s [P2PKHScriptLen]byte
	h := pub.Hash160()
	s[0] = P2PKHScriptLen - 1
	s[1], s[2], s[3] = opDup, opHash160, opData20
	copy(s[4:24], h[:])
	s[24], s[25] = opEqualVerify, opCheckSig
	return s
}

// IsP2PKH reports whether script is a length-prefixed P2PKH script.
func IsP2PKH(script []byte) bool {
	return len(script) == P2PKHScriptLen &&
		script[0] == P2PKHScriptLen-1 &&
		script[1] == opDup && script[2] == opHash160 && script[3] == opData20 &&
		script[24] == opEqualVerify && script[25] == opCheckSig
}

// PaysTo reports whether script is the P2PKH script of pub.
func PaysTo(script []byte, pub *PublicKey) bool {
	want := P2PKHScript(pub)
	return bytes.Equal(script, want[:])
}
