package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suffix-labs/zcash-sapling-sighash/pkg/status"
)

func TestWireLengths(t *testing.T) {
	cases := []struct {
		kind    Kind
		version Version
		length  int
	}{
		{KindTransparentInput, VersionCompact, 54},
		{KindTransparentInput, VersionTx, 74},
		{KindTransparentOutput, VersionCompact, 34},
		{KindSpend, VersionLegacy, 40},
		{KindSpend, VersionCurrent, 320},
		{KindSpend, VersionExtract, 128},
		{KindSpend, VersionInit, 55},
		{KindOutput, VersionCurrent, 948},
		{KindOutput, VersionExtract, 64},
		{KindOutput, VersionInit, 85},
		{KindSighash, VersionSapling, 220},
		{KindHeader, VersionCompact, 4},
		{KindHeader, VersionTx, 24},
	}
	for _, c := range cases {
		n, err := WireLength(c.kind, c.version)
		require.NoError(t, err, "%s/%s", c.kind, c.version)
		assert.Equal(t, c.length, n, "%s/%s", c.kind, c.version)
	}
	assert.Len(t, All(), len(cases))
}

func TestKeyOffsets(t *testing.T) {
	cases := []struct {
		kind    Kind
		version Version
		field   string
		offset  int
	}{
		{KindTransparentInput, VersionCompact, FieldPath, 0},
		{KindTransparentInput, VersionCompact, FieldScript, 20},
		{KindTransparentInput, VersionCompact, FieldValue, 46},
		{KindTransparentInput, VersionTx, FieldScript, 36},
		{KindTransparentInput, VersionTx, FieldValue, 62},
		{KindTransparentInput, VersionTx, FieldSequence, 70},
		{KindTransparentOutput, VersionCompact, FieldAddress, 0},
		{KindTransparentOutput, VersionCompact, FieldValue, 26},
		{KindSpend, VersionLegacy, FieldRcm, 0},
		{KindSpend, VersionLegacy, FieldNotePosition, 32},
		{KindSpend, VersionCurrent, FieldRandomizedPubKey, 96},
		{KindSpend, VersionExtract, FieldValueCommit, 0},
		{KindSpend, VersionExtract, FieldNullifier, 64},
		{KindOutput, VersionCurrent, FieldValueCommit, 0},
		{KindOutput, VersionCurrent, FieldNoteCommit, 32},
		{KindOutput, VersionCurrent, FieldEphemeralKey, 64},
		{KindOutput, VersionCurrent, FieldCiphertext, 96},
		{KindOutput, VersionCurrent, FieldOutCiphertext, 676},
		{KindSighash, VersionSapling, FieldPrevoutsHash, 8},
		{KindSighash, VersionSapling, FieldSequenceHash, 40},
		{KindSighash, VersionSapling, FieldOutputsHash, 72},
		{KindSighash, VersionSapling, FieldJoinSplitsHash, 104},
		{KindSighash, VersionSapling, FieldSpendsHash, 136},
		{KindSighash, VersionSapling, FieldShieldedOutHash, 168},
		{KindSighash, VersionSapling, FieldValueBalance, 208},
	}
	for _, c := range cases {
		l, err := Lookup(c.kind, c.version)
		require.NoError(t, err)
		f, err := l.Field(c.field)
		require.NoError(t, err, "%s/%s %s", c.kind, c.version, c.field)
		assert.Equal(t, c.offset, f.Offset, "%s/%s %s", c.kind, c.version, c.field)
	}
}

func TestOutputTrailerCoversRecordEnd(t *testing.T) {
	l, err := Lookup(KindOutput, VersionCurrent)
	require.NoError(t, err)
	out, err := l.Field(FieldOutCiphertext)
	require.NoError(t, err)
	proof, err := l.Field(FieldZkProof)
	require.NoError(t, err)

	assert.Equal(t, out.End(), proof.Offset)
	assert.Equal(t, OutputLen, proof.End())
	assert.Equal(t, 272, proof.End()-out.Offset)
}

func TestUnknownLayout(t *testing.T) {
	_, err := Lookup(KindSpend, VersionTx)
	assert.ErrorIs(t, err, status.ErrUnknownLayout)

	_, err = Lookup(Kind(0), VersionCompact)
	assert.ErrorIs(t, err, status.ErrUnknownLayout)

	l, err := Lookup(KindSpend, VersionLegacy)
	require.NoError(t, err)
	_, err = l.Field(FieldNullifier)
	assert.ErrorIs(t, err, status.ErrUnknownLayout)

	_, err = RegionField(Region(NumRegions))
	assert.ErrorIs(t, err, status.ErrUnknownLayout)
}

func TestLayoutsAreWellFormed(t *testing.T) {
	for _, l := range All() {
		assert.NoError(t, check(l))
	}

	bad := Layout{Kind: KindSpend, Version: VersionLegacy, Length: 40, Fields: []Field{
		{"a", 0, 32},
		{"b", 16, 8},
	}}
	assert.Error(t, check(bad))

	bad.Fields = []Field{{"a", 0, 41}}
	assert.Error(t, check(bad))
}

func TestRegionsCoverPreimage(t *testing.T) {
	covered := make([]bool, SighashLen)
	mark := func(f Field) {
		for i := f.Offset; i < f.End(); i++ {
			require.False(t, covered[i], "byte %d covered twice", i)
			covered[i] = true
		}
	}
	for _, r := range Regions() {
		f, err := RegionField(r)
		require.NoError(t, err)
		mark(f)
	}
	mark(LockTimeField)
	mark(ExpiryHeightField)
	mark(HashTypeField)

	for i, c := range covered {
		assert.True(t, c, "byte %d not covered", i)
	}
}
