package record

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/suffix-labs/zcash-sapling-sighash/pkg/layout"
	"github.com/suffix-labs/zcash-sapling-sighash/pkg/status"
)

// pattern fills a buffer with its own byte offsets so field slices can be
// checked by their first byte.
func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

func TestExtractExactLengthProperty(t *testing.T) {
	all := layout.All()
	rapid.Check(t, func(t *rapid.T) {
		l := all[rapid.IntRange(0, len(all)-1).Draw(t, "layout")]
		b := rapid.SliceOfN(rapid.Byte(), l.Length, l.Length).Draw(t, "record")

		r, err := Extract(l.Kind, l.Version, b)
		if err != nil {
			t.Fatalf("%s/%s: exact length rejected: %v", l.Kind, l.Version, err)
		}
		for _, f := range l.Fields {
			fb, err := r.Bytes(f.Name)
			if err != nil {
				t.Fatalf("field %s: %v", f.Name, err)
			}
			if len(fb) != f.Length {
				t.Fatalf("field %s: %d bytes, want %d", f.Name, len(fb), f.Length)
			}
		}
	})
}

func TestExtractWrongLengthProperty(t *testing.T) {
	all := layout.All()
	rapid.Check(t, func(t *rapid.T) {
		l := all[rapid.IntRange(0, len(all)-1).Draw(t, "layout")]
		n := rapid.IntRange(0, 2*l.Length).Filter(func(n int) bool { return n != l.Length }).Draw(t, "length")

		_, err := Extract(l.Kind, l.Version, make([]byte, n))
		if status.CodeOf(err) != status.CodeWrongLength {
			t.Fatalf("%s/%s with %d bytes: got %v, want wrong length", l.Kind, l.Version, n, err)
		}
	})
}

func TestLegacySpendShortBuffer(t *testing.T) {
	_, err := ExtractSpend(layout.VersionLegacy, make([]byte, 39))
	require.Error(t, err)
	assert.ErrorIs(t, err, status.ErrWrongLength)
	assert.Equal(t, uint16(0x6700), status.Word(err))
}

func TestSpendVersionIsExplicit(t *testing.T) {
	// A 40-byte buffer is only a spend when the caller says it is legacy.
	b := make([]byte, layout.SpendLegacyLen)
	_, err := ExtractSpend(layout.VersionCurrent, b)
	assert.ErrorIs(t, err, status.ErrWrongLength)

	s, err := ExtractSpend(layout.VersionLegacy, b)
	require.NoError(t, err)
	_, ok := s.Nullifier()
	assert.False(t, ok)
}

func TestExtractUnknownLayout(t *testing.T) {
	_, err := Extract(layout.KindTransparentOutput, layout.VersionTx, make([]byte, 34))
	assert.ErrorIs(t, err, status.ErrUnknownLayout)
}

func TestExtractDoesNotCopy(t *testing.T) {
	b := pattern(layout.TransparentOutputLen)
	out, err := ExtractTransparentOutput(layout.VersionCompact, b)
	require.NoError(t, err)

	addr := out.Address()
	b[0] = 0xEE
	assert.Equal(t, byte(0xEE), addr[0])

	// Field slices are capped so appends cannot reach the next field.
	_ = append(addr, 0x01)
	assert.Equal(t, byte(26), b[26])
}

func TestTransparentInputCompact(t *testing.T) {
	b := pattern(layout.TransparentInputCompactLen)
	binary.LittleEndian.PutUint64(b[46:], 150000)

	in, err := ExtractTransparentInput(layout.VersionCompact, b)
	require.NoError(t, err)

	path, ok := in.Path()
	require.True(t, ok)
	assert.Equal(t, b[0:20], path)
	assert.Equal(t, b[20:46], in.Script())
	assert.Equal(t, uint64(150000), in.Value())

	_, ok = in.Prevout()
	assert.False(t, ok)
	_, ok = in.Sequence()
	assert.False(t, ok)
}

func TestTransparentInputExpand(t *testing.T) {
	b := pattern(layout.TransparentInputCompactLen)
	binary.LittleEndian.PutUint64(b[46:], 42)
	in, err := ExtractTransparentInput(layout.VersionCompact, b)
	require.NoError(t, err)

	var prevout [36]byte
	prevout[0], prevout[35] = 0xAB, 0xCD
	var tx [layout.TransparentInputTxLen]byte
	require.NoError(t, in.Expand(prevout, 0xFFFFFFFE, &tx))

	full, err := ExtractTransparentInput(layout.VersionTx, tx[:])
	require.NoError(t, err)
	got, ok := full.Prevout()
	require.True(t, ok)
	assert.Equal(t, prevout[:], got)
	assert.Equal(t, in.Script(), full.Script())
	assert.Equal(t, uint64(42), full.Value())
	seq, ok := full.Sequence()
	require.True(t, ok)
	assert.Equal(t, uint32(0xFFFFFFFE), seq)

	err = full.Expand(prevout, 0, &tx)
	assert.ErrorIs(t, err, status.ErrDataInvalid)
}

func TestSpendForms(t *testing.T) {
	cur := pattern(layout.SpendCurrentLen)
	s, err := ExtractSpend(layout.VersionCurrent, cur)
	require.NoError(t, err)

	rk, ok := s.RandomizedPubKey()
	require.True(t, ok)
	assert.Equal(t, byte(96), rk[0])
	nf, ok := s.Nullifier()
	require.True(t, ok)
	assert.Equal(t, byte(64), nf[0])
	proof, ok := s.ZkProof()
	require.True(t, ok)
	assert.Len(t, proof, 192)

	// The extract form is the public prefix of the current form.
	ex, err := ExtractSpend(layout.VersionExtract, cur[:layout.SpendExtractLen])
	require.NoError(t, err)
	exNf, _ := ex.Nullifier()
	assert.Equal(t, nf, exNf)
	_, ok = ex.ZkProof()
	assert.False(t, ok)

	legacy := pattern(layout.SpendLegacyLen)
	binary.LittleEndian.PutUint64(legacy[32:], 7)
	l, err := ExtractSpend(layout.VersionLegacy, legacy)
	require.NoError(t, err)
	pos, ok := l.NotePosition()
	require.True(t, ok)
	assert.Equal(t, uint64(7), pos)
	rcm, ok := l.Rcm()
	require.True(t, ok)
	assert.Len(t, rcm, 32)

	initRec := pattern(layout.SpendInitLen)
	binary.LittleEndian.PutUint64(initRec[47:], 1000)
	i, err := ExtractSpend(layout.VersionInit, initRec)
	require.NoError(t, err)
	v, ok := i.Value()
	require.True(t, ok)
	assert.Equal(t, uint64(1000), v)
}

func TestOutputForms(t *testing.T) {
	b := pattern(layout.OutputLen)
	o, err := ExtractOutput(layout.VersionCurrent, b)
	require.NoError(t, err)

	epk, ok := o.EphemeralKey()
	require.True(t, ok)
	assert.Equal(t, byte(64), epk[0])
	enc, ok := o.Ciphertext()
	require.True(t, ok)
	assert.Len(t, enc, 580)
	outCt, ok := o.OutCiphertext()
	require.True(t, ok)
	assert.Equal(t, byte(676%256), outCt[0])

	initRec := make([]byte, layout.OutputInitLen)
	binary.LittleEndian.PutUint64(initRec[43:], 55)
	i, err := ExtractOutput(layout.VersionInit, initRec)
	require.NoError(t, err)
	v, ok := i.Value()
	require.True(t, ok)
	assert.Equal(t, uint64(55), v)
	assert.False(t, i.HasOvk())
	initRec[52] = 1
	assert.True(t, i.HasOvk())
}

func TestIntegerAccessors(t *testing.T) {
	b := make([]byte, layout.TransparentInputTxLen)
	binary.LittleEndian.PutUint64(b[62:], ^uint64(0))
	binary.LittleEndian.PutUint32(b[70:], 9)
	r, err := Extract(layout.KindTransparentInput, layout.VersionTx, b)
	require.NoError(t, err)

	v, err := r.Int64(layout.FieldValue)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), v)
	seq, err := r.Uint32(layout.FieldSequence)
	require.NoError(t, err)
	assert.Equal(t, uint32(9), seq)

	_, err = r.Uint32(layout.FieldValue)
	assert.ErrorIs(t, err, status.ErrWrongLength)
	_, err = r.Uint64(layout.FieldPath)
	assert.ErrorIs(t, err, status.ErrUnknownLayout)
}
