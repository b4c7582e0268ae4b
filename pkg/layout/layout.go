// Package layout is the field layout table of the Sapling signing core.
//
// Every record the device accepts has a fixed wire length determined by its
// kind and version. The table maps (kind, version) to that length and to the
// offset and length of each named subfield, so offsets are defined once and
// shared by the extractor, the decoder and the tests.
//
// References:
//   - ZIP 243: https://zips.z.cash/zip-0243
//   - Zcash protocol specification §7.3 (spend descriptions), §7.4 (output descriptions)
package layout

import (
	"fmt"

	"github.com/suffix-labs/zcash-sapling-sighash/pkg/status"
)

// Kind identifies a record kind.
type Kind uint8

const (
	KindTransparentInput Kind = iota + 1
	KindTransparentOutput
	KindSpend
	KindOutput
	KindSighash
	KindHeader
)

func (k Kind) String() string {
	switch k {
	case KindTransparentInput:
		return "transparent-input"
	case KindTransparentOutput:
		return "transparent-output"
	case KindSpend:
		return "spend"
	case KindOutput:
		return "output"
	case KindSighash:
		return "sighash"
	case KindHeader:
		return "header"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Version selects one of the wire forms of a kind. It is always supplied
// out-of-band; it is never inferred from the record length.
type Version uint8

const (
	// VersionCompact is the host-supplied form of transparent records.
	VersionCompact Version = iota + 1
	// VersionTx is the serialized transaction form of a transparent input.
	VersionTx
	// VersionLegacy is the 40-byte spend form (rcm, note position).
	VersionLegacy
	// VersionCurrent is the serialized Sapling spend/output description.
	VersionCurrent
	// VersionExtract is the compact public prefix of a spend/output.
	VersionExtract
	// VersionInit is the init-data form sent before the transaction is built.
	VersionInit
	// VersionSapling is the v4 signature-hash preimage.
	VersionSapling
)

func (v Version) String() string {
	switch v {
	case VersionCompact:
		return "compact"
	case VersionTx:
		return "tx"
	case VersionLegacy:
		return "legacy"
	case VersionCurrent:
		return "current"
	case VersionExtract:
		return "extract"
	case VersionInit:
		return "init"
	case VersionSapling:
		return "sapling"
	default:
		return fmt.Sprintf("version(%d)", uint8(v))
	}
}

// Field names.
const (
	FieldPath             = "path"
	FieldScript           = "script"
	FieldValue            = "value"
	FieldPrevout          = "prevout"
	FieldSequence         = "sequence"
	FieldAddress          = "address"
	FieldRcm              = "rcm"
	FieldNotePosition     = "note-position"
	FieldValueCommit      = "value-commit"
	FieldAnchor           = "anchor"
	FieldNullifier        = "nullifier"
	FieldRandomizedPubKey = "randomized-pubkey"
	FieldZkProof          = "zkproof"
	FieldDiversifier      = "diversifier"
	FieldPkd              = "pkd"
	FieldNoteCommit       = "note-commit"
	FieldEphemeralKey     = "ephemeral-key"
	FieldCiphertext       = "ciphertext"
	FieldOutCiphertext    = "out-ciphertext"
	FieldMemoType         = "memo-type"
	FieldOvk              = "ovk"

	FieldInputCount    = "t-in-count"
	FieldOutputCount   = "t-out-count"
	FieldSpendCount    = "spend-count"
	FieldShieldedCount = "output-count"
	FieldTxVersion     = "tx-version"
	FieldVersionGroup  = "version-group-id"
)

// Wire lengths.
const (
	TransparentInputCompactLen = 54
	TransparentInputTxLen      = 74
	TransparentOutputLen       = 34
	SpendLegacyLen             = 40
	SpendCurrentLen            = 320
	SpendExtractLen            = 128
	SpendInitLen               = 55
	OutputLen                  = 948
	OutputExtractLen           = 64
	OutputInitLen              = 85
	SighashLen                 = 220
	HeaderCompactLen           = 4
	HeaderTxLen                = 24
)

// Field is a subfield position inside a record.
type Field struct {
	Name   string
	Offset int
	Length int
}

// End returns the offset one past the last byte of the field.
func (f Field) End() int { return f.Offset + f.Length }

// Layout is the registered layout of one (kind, version) pair.
type Layout struct {
	Kind    Kind
	Version Version
	Length  int
	Fields  []Field
}

// Field returns the named subfield.
func (l Layout) Field(name string) (Field, error) {
	for _, f := range l.Fields {
		if f.Name == name {
			return f, nil
		}
	}
	return Field{}, status.New(status.CodeUnknownLayout, "%s/%s has no field %q", l.Kind, l.Version, name)
}

type key struct {
	kind    Kind
	version Version
}

// layouts is ordered; All returns it in this order.
var layouts = []Layout{
	{KindTransparentInput, VersionCompact, TransparentInputCompactLen, []Field{
		{FieldPath, 0, 20},
		{FieldScript, 20, 26},
		{FieldValue, 46, 8},
	}},
	{KindTransparentInput, VersionTx, TransparentInputTxLen, []Field{
		{FieldPrevout, 0, 36},
		{FieldScript, 36, 26},
		{FieldValue, 62, 8},
		{FieldSequence, 70, 4},
	}},
	{KindTransparentOutput, VersionCompact, TransparentOutputLen, []Field{
		{FieldAddress, 0, 26},
		{FieldValue, 26, 8},
	}},
	{KindSpend, VersionLegacy, SpendLegacyLen, []Field{
		{FieldRcm, 0, 32},
		{FieldNotePosition, 32, 8},
	}},
	{KindSpend, VersionCurrent, SpendCurrentLen, []Field{
		{FieldValueCommit, 0, 32},
		{FieldAnchor, 32, 32},
		{FieldNullifier, 64, 32},
		{FieldRandomizedPubKey, 96, 32},
		{FieldZkProof, 128, 192},
	}},
	{KindSpend, VersionExtract, SpendExtractLen, []Field{
		{FieldValueCommit, 0, 32},
		{FieldAnchor, 32, 32},
		{FieldNullifier, 64, 32},
		{FieldRandomizedPubKey, 96, 32},
	}},
	{KindSpend, VersionInit, SpendInitLen, []Field{
		{FieldPath, 0, 4},
		{FieldDiversifier, 4, 11},
		{FieldPkd, 15, 32},
		{FieldValue, 47, 8},
	}},
	{KindOutput, VersionCurrent, OutputLen, []Field{
		{FieldValueCommit, 0, 32},
		{FieldNoteCommit, 32, 32},
		{FieldEphemeralKey, 64, 32},
		{FieldCiphertext, 96, 580},
		{FieldOutCiphertext, 676, 80},
		{FieldZkProof, 756, 192},
	}},
	{KindOutput, VersionExtract, OutputExtractLen, []Field{
		{FieldValueCommit, 0, 32},
		{FieldNoteCommit, 32, 32},
	}},
	{KindOutput, VersionInit, OutputInitLen, []Field{
		{FieldDiversifier, 0, 11},
		{FieldPkd, 11, 32},
		{FieldValue, 43, 8},
		{FieldMemoType, 51, 1},
		{FieldOvk, 52, 33},
	}},
	{KindSighash, VersionSapling, SighashLen, sighashFields()},
	{KindHeader, VersionCompact, HeaderCompactLen, headerCounts()},
	{KindHeader, VersionTx, HeaderTxLen, append(headerCounts(),
		Field{FieldTxVersion, 4, 4},
		Field{FieldVersionGroup, 8, 4},
		Field{FieldLockTime, 12, 4},
		Field{FieldExpiryHeight, 16, 4},
		Field{FieldHashType, 20, 4},
	)},
}

// headerCounts are the one-byte record counts that open every envelope.
func headerCounts() []Field {
	return []Field{
		{FieldInputCount, 0, 1},
		{FieldOutputCount, 1, 1},
		{FieldSpendCount, 2, 1},
		{FieldShieldedCount, 3, 1},
	}
}

var index = make(map[key]int, len(layouts))

func init() {
	for i, l := range layouts {
		k := key{l.Kind, l.Version}
		if _, dup := index[k]; dup {
			panic(fmt.Sprintf("layout %s/%s registered twice", l.Kind, l.Version))
		}
		if err := check(l); err != nil {
			panic(err)
		}
		index[k] = i
	}
}

// check rejects fields that overlap, repeat a name or run past the record.
func check(l Layout) error {
	end := 0
	names := make(map[string]bool, len(l.Fields))
	for _, f := range l.Fields {
		if f.Length <= 0 || f.Offset < end || f.End() > l.Length {
			return fmt.Errorf("layout %s/%s: field %s@%d:%d out of place", l.Kind, l.Version, f.Name, f.Offset, f.Length)
		}
		if names[f.Name] {
			return fmt.Errorf("layout %s/%s: field %s repeated", l.Kind, l.Version, f.Name)
		}
		names[f.Name] = true
		end = f.End()
	}
	return nil
}

// Lookup returns the layout registered for (kind, version).
func Lookup(kind Kind, version Version) (Layout, error) {
	i, ok := index[key{kind, version}]
	if !ok {
		return Layout{}, status.New(status.CodeUnknownLayout, "no layout for %s/%s", kind, version)
	}
	return layouts[i], nil
}

// WireLength returns the mandated wire length of (kind, version).
func WireLength(kind Kind, version Version) (int, error) {
	l, err := Lookup(kind, version)
	if err != nil {
		return 0, err
	}
	return l.Length, nil
}

// All returns every registered layout in a stable order.
func All() []Layout {
	out := make([]Layout, len(layouts))
	copy(out, layouts)
	return out
}
