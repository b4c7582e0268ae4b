// Package sighash assembles the ZIP 243 signature-hash preimage.
//
// The preimage is a fixed 220-byte staging buffer with eight write-once
// regions (header, six sub-digests, value balance) and three trailer fields
// stamped from the transaction envelope. The buffer never grows and is never
// handed out until every region has been written exactly once.
//
//	header(8) | prevouts(32) | sequence(32) | outputs(32) | joinsplits(32) |
//	spends(32) | shielded outputs(32) | lock_time(4) | expiry(4) |
//	value_balance(8) | hash_type(4)
//
// Reference: ZIP 243 https://zips.z.cash/zip-0243
package sighash

import (
	"encoding/binary"
	"strings"

	"github.com/suffix-labs/zcash-sapling-sighash/pkg/layout"
	"github.com/suffix-labs/zcash-sapling-sighash/pkg/status"
)

// Size is the preimage length.
const Size = layout.SighashLen

const allWritten = 1<<layout.NumRegions - 1

// Sapling v4 header constants.
const (
	SaplingVersion        = 0x80000004 // version 4 with fOverwintered set
	SaplingVersionGroupID = 0x892F2085
	SighashAll            = 0x01
)

// Fixed holds the trailer fields that are not write-once regions.
type Fixed struct {
	LockTime     uint32
	ExpiryHeight uint32
	HashType     uint32
}

// Preimage is the staging buffer. The zero value is an empty preimage with a
// zero trailer.
type Preimage struct {
	buf     [Size]byte
	written uint8
}

// Begin clears p and stamps the trailer fields.
func (p *Preimage) Begin(f Fixed) {
	p.Zero()
	binary.LittleEndian.PutUint32(p.slot(layout.LockTimeField), f.LockTime)
	binary.LittleEndian.PutUint32(p.slot(layout.ExpiryHeightField), f.ExpiryHeight)
	binary.LittleEndian.PutUint32(p.slot(layout.HashTypeField), f.HashType)
}

// Begin returns a new preimage with the given trailer.
func Begin(f Fixed) *Preimage {
	p := new(Preimage)
	p.Begin(f)
	return p
}

func (p *Preimage) slot(f layout.Field) []byte {
	return p.buf[f.Offset:f.End()]
}

// Write copies b into region r. Each region accepts exactly one write.
func (p *Preimage) Write(r layout.Region, b []byte) error {
	f, err := layout.RegionField(r)
	if err != nil {
		return err
	}
	if p.Written(r) {
		return status.New(status.CodeRegionAlreadyWritten, "region %s", r)
	}
	if len(b) != f.Length {
		return status.New(status.CodeWrongRegionLength, "region %s takes %d bytes, got %d", r, f.Length, len(b))
	}
	copy(p.slot(f), b)
	p.written |= 1 << r
	return nil
}

// Written reports whether region r has been written.
func (p *Preimage) Written(r layout.Region) bool {
	return r < layout.NumRegions && p.written&(1<<r) != 0
}

// Missing returns the regions not yet written, in preimage order.
func (p *Preimage) Missing() []layout.Region {
	var missing []layout.Region
	for _, r := range layout.Regions() {
		if !p.Written(r) {
			missing = append(missing, r)
		}
	}
	return missing
}

// Complete reports whether every region has been written.
func (p *Preimage) Complete() bool {
	return p.written == allWritten
}

// Finalize returns a copy of the assembled preimage.
func (p *Preimage) Finalize() ([Size]byte, error) {
	if !p.Complete() {
		names := make([]string, 0, layout.NumRegions)
		for _, r := range p.Missing() {
			names = append(names, r.String())
		}
		return [Size]byte{}, status.New(status.CodeIncompletePreimage, "missing %s", strings.Join(names, ", "))
	}
	return p.buf, nil
}

// Zero wipes the buffer and forgets every write.
func (p *Preimage) Zero() {
	for i := range p.buf {
		p.buf[i] = 0
	}
	p.written = 0
}

// Header encodes the 8-byte header region.
func Header(version, versionGroupID uint32) [8]byte {
	var h [8]byte
	binary.LittleEndian.PutUint32(h[0:4], version)
	binary.LittleEndian.PutUint32(h[4:8], versionGroupID)
	return h
}

// EncodeValueBalance encodes the value balance region as little-endian
// two's complement. Range checks belong to the caller.
func EncodeValueBalance(v int64) [8]byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	return b
}
