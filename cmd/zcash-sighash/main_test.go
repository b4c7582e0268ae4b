package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suffix-labs/zcash-sapling-sighash/pkg/layout"
	"github.com/suffix-labs/zcash-sapling-sighash/pkg/signer"
	"github.com/suffix-labs/zcash-sapling-sighash/pkg/txparse"
	"github.com/suffix-labs/zcash-sapling-sighash/pkg/zip243"
)

func TestParseCoin(t *testing.T) {
	c, err := parseCoin("50000:76a9")
	require.NoError(t, err)
	assert.Equal(t, uint64(50000), c.Value)
	assert.Equal(t, []byte{0x76, 0xa9}, c.ScriptPubKey)

	for _, bad := range []string{"50000", "x:76a9", "1:zz"} {
		_, err := parseCoin(bad)
		assert.Error(t, err, bad)
	}
}

func TestBranchID(t *testing.T) {
	defer func(old string) { opts.BranchID = old }(opts.BranchID)

	opts.BranchID = "Canopy"
	id, err := branchID()
	require.NoError(t, err)
	assert.Equal(t, uint32(zip243.CanopyBranchID), id)

	opts.BranchID = "0x76b809bb"
	id, err = branchID()
	require.NoError(t, err)
	assert.Equal(t, uint32(zip243.SaplingBranchID), id)

	opts.BranchID = "nu9"
	_, err = branchID()
	assert.Error(t, err)
}

func TestFindLayout(t *testing.T) {
	l, err := findLayout("Spend", "legacy")
	require.NoError(t, err)
	assert.Equal(t, layout.KindSpend, l.Kind)
	assert.Equal(t, layout.SpendLegacyLen, l.Length)

	_, err = findLayout("spend", "compact")
	assert.Error(t, err)
}

func TestMatchHandles(t *testing.T) {
	keys := signer.NewKeyring()
	var scripts [][]byte
	for h := uint8(0); h < 2; h++ {
		k, err := signer.PrivateKeyFromBytes(bytes.Repeat([]byte{0x21 + h}, 32))
		require.NoError(t, err)
		require.NoError(t, keys.Add(h, k))
		s := signer.P2PKHScript(k.PublicKey())
		scripts = append(scripts, s[1:])
	}

	coins := []txparse.Coin{{ScriptPubKey: scripts[1]}, {ScriptPubKey: scripts[0]}, {ScriptPubKey: scripts[1]}}
	handles, err := matchHandles(keys, 2, coins)
	require.NoError(t, err)
	assert.Equal(t, []uint8{1, 0, 1}, handles)

	_, err = matchHandles(keys, 1, coins)
	assert.Error(t, err)
}
