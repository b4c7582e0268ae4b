// Package record extracts typed, read-only views over fixed-layout wire
// records.
//
// Extract never copies: a Record keeps the caller's slice and resolves each
// named field to a subslice using the layout table. The slice length must be
// exactly the wire length registered for (kind, version); there is no
// truncation and no padding.
package record

import (
	"encoding/binary"

	"github.com/suffix-labs/zcash-sapling-sighash/pkg/layout"
	"github.com/suffix-labs/zcash-sapling-sighash/pkg/status"
)

// Record is a view over one wire record.
type Record struct {
	layout layout.Layout
	data   []byte
}

// Extract validates b against the layout of (kind, version) and returns a
// view over it.
func Extract(kind layout.Kind, version layout.Version, b []byte) (Record, error) {
	l, err := layout.Lookup(kind, version)
	if err != nil {
		return Record{}, err
	}
	if len(b) != l.Length {
		return Record{}, status.New(status.CodeWrongLength, "%s/%s record is %d bytes, want %d",
			kind, version, len(b), l.Length)
	}
	return Record{layout: l, data: b}, nil
}

// Kind returns the record kind.
func (r Record) Kind() layout.Kind { return r.layout.Kind }

// Version returns the wire version the record was extracted with.
func (r Record) Version() layout.Version { return r.layout.Version }

// Raw returns the whole record.
func (r Record) Raw() []byte { return r.data }

// Bytes returns the named field as a subslice of the record.
func (r Record) Bytes(name string) ([]byte, error) {
	f, err := r.layout.Field(name)
	if err != nil {
		return nil, err
	}
	return r.data[f.Offset:f.End():f.End()], nil
}

// Uint64 reads an 8-byte little-endian field.
func (r Record) Uint64(name string) (uint64, error) {
	b, err := r.fixed(name, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// Int64 reads an 8-byte little-endian two's complement field.
func (r Record) Int64(name string) (int64, error) {
	v, err := r.Uint64(name)
	return int64(v), err
}

// Uint32 reads a 4-byte little-endian field.
func (r Record) Uint32(name string) (uint32, error) {
	b, err := r.fixed(name, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r Record) fixed(name string, width int) ([]byte, error) {
	b, err := r.Bytes(name)
	if err != nil {
		return nil, err
	}
	if len(b) != width {
		return nil, status.New(status.CodeWrongLength, "field %s is %d bytes, not a %d-byte integer",
			name, len(b), width)
	}
	return b, nil
}

// must resolves a field that the typed views know is registered.
func (r Record) must(name string) []byte {
	b, err := r.Bytes(name)
	if err != nil {
		panic(err)
	}
	return b
}
