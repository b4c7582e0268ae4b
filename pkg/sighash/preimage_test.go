package sighash

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/suffix-labs/zcash-sapling-sighash/pkg/layout"
	"github.com/suffix-labs/zcash-sapling-sighash/pkg/status"
)

func regionBytes(r layout.Region, fill byte) []byte {
	f, _ := layout.RegionField(r)
	return bytes.Repeat([]byte{fill}, f.Length)
}

func writeAll(t require.TestingT, p *Preimage) {
	for _, r := range layout.Regions() {
		require.NoError(t, p.Write(r, regionBytes(r, byte(r)+1)))
	}
}

func TestFinalizeLayout(t *testing.T) {
	p := Begin(Fixed{LockTime: 0x01020304, ExpiryHeight: 500, HashType: SighashAll})
	h := Header(SaplingVersion, SaplingVersionGroupID)
	require.NoError(t, p.Write(layout.RegionHeader, h[:]))
	for _, r := range layout.Regions()[1:] {
		require.NoError(t, p.Write(r, regionBytes(r, byte(r)+1)))
	}

	out, err := p.Finalize()
	require.NoError(t, err)
	require.Len(t, out, 220)

	assert.Equal(t, []byte{0x04, 0x00, 0x00, 0x80, 0x85, 0x20, 0x2F, 0x89}, out[0:8])
	assert.Equal(t, bytes.Repeat([]byte{2}, 32), out[8:40])
	assert.Equal(t, bytes.Repeat([]byte{4}, 32), out[72:104])
	assert.Equal(t, bytes.Repeat([]byte{7}, 32), out[168:200])
	assert.Equal(t, uint32(0x01020304), binary.LittleEndian.Uint32(out[200:204]))
	assert.Equal(t, uint32(500), binary.LittleEndian.Uint32(out[204:208]))
	assert.Equal(t, bytes.Repeat([]byte{8}, 8), out[208:216])
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(out[216:220]))
}

func TestWriteOnceProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := Begin(Fixed{})
		// Arbitrary prior writes to other regions.
		for _, r := range layout.Regions() {
			if rapid.Bool().Draw(t, "prewrite") {
				_ = p.Write(r, regionBytes(r, 0x11))
			}
		}
		r := layout.Region(rapid.IntRange(0, layout.NumRegions-1).Draw(t, "region"))
		f, _ := layout.RegionField(r)
		if !p.Written(r) {
			if err := p.Write(r, make([]byte, f.Length)); err != nil {
				t.Fatalf("first write to %s: %v", r, err)
			}
		}
		n := rapid.IntRange(0, 64).Draw(t, "len")
		err := p.Write(r, rapid.SliceOfN(rapid.Byte(), n, n).Draw(t, "bytes"))
		if status.CodeOf(err) != status.CodeRegionAlreadyWritten {
			t.Fatalf("second write to %s: got %v", r, err)
		}
	})
}

func TestCompletenessProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := Begin(Fixed{})
		mask := rapid.IntRange(0, allWritten).Draw(t, "mask")
		for _, r := range layout.Regions() {
			if mask&(1<<r) != 0 {
				if err := p.Write(r, regionBytes(r, 0x22)); err != nil {
					t.Fatalf("write %s: %v", r, err)
				}
			}
		}
		_, err := p.Finalize()
		if mask == allWritten {
			if err != nil {
				t.Fatalf("complete preimage rejected: %v", err)
			}
			return
		}
		if status.CodeOf(err) != status.CodeIncompletePreimage {
			t.Fatalf("mask %08b: got %v", mask, err)
		}
	})
}

func TestWrongRegionLength(t *testing.T) {
	p := Begin(Fixed{})
	err := p.Write(layout.RegionPrevouts, make([]byte, 31))
	assert.ErrorIs(t, err, status.ErrWrongRegionLength)
	assert.False(t, p.Written(layout.RegionPrevouts))

	err = p.Write(layout.RegionValueBalance, make([]byte, 32))
	assert.ErrorIs(t, err, status.ErrWrongRegionLength)

	err = p.Write(layout.Region(8), make([]byte, 32))
	assert.ErrorIs(t, err, status.ErrUnknownLayout)
}

func TestMissingRegions(t *testing.T) {
	p := Begin(Fixed{})
	require.NoError(t, p.Write(layout.RegionHeader, make([]byte, 8)))
	require.NoError(t, p.Write(layout.RegionValueBalance, make([]byte, 8)))

	assert.Equal(t, []layout.Region{
		layout.RegionPrevouts,
		layout.RegionSequence,
		layout.RegionOutputs,
		layout.RegionJoinSplits,
		layout.RegionShieldedSpends,
		layout.RegionShieldedOutputs,
	}, p.Missing())

	_, err := p.Finalize()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prevouts-hash")
}

func TestDeterminism(t *testing.T) {
	build := func() [Size]byte {
		p := Begin(Fixed{LockTime: 9, ExpiryHeight: 10, HashType: SighashAll})
		writeAll(t, p)
		out, err := p.Finalize()
		require.NoError(t, err)
		return out
	}
	assert.Equal(t, build(), build())
}

func TestZero(t *testing.T) {
	p := Begin(Fixed{LockTime: 1})
	writeAll(t, p)
	p.Zero()

	assert.Equal(t, [Size]byte{}, p.buf)
	assert.Len(t, p.Missing(), layout.NumRegions)
	assert.NoError(t, p.Write(layout.RegionHeader, make([]byte, 8)))
}

func TestEncodeValueBalance(t *testing.T) {
	assert.Equal(t, [8]byte{0x10, 0x27}, EncodeValueBalance(10000))
	assert.Equal(t, [8]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, EncodeValueBalance(-1))
}
