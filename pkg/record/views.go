package record

import (
	"encoding/binary"

	"github.com/suffix-labs/zcash-sapling-sighash/pkg/layout"
	"github.com/suffix-labs/zcash-sapling-sighash/pkg/status"
)

// TransparentInput is a view over a transparent input in either its compact
// (54-byte) or transaction (74-byte) form.
type TransparentInput struct{ Record }

// TransparentOutput is a view over a 34-byte transparent output.
type TransparentOutput struct{ Record }

// Spend is a view over a Sapling spend in any registered form.
type Spend struct{ Record }

// Output is a view over a Sapling output in any registered form.
type Output struct{ Record }

// ExtractTransparentInput extracts a transparent input view.
func ExtractTransparentInput(version layout.Version, b []byte) (TransparentInput, error) {
	r, err := Extract(layout.KindTransparentInput, version, b)
	return TransparentInput{r}, err
}

// ExtractTransparentOutput extracts a transparent output view.
func ExtractTransparentOutput(version layout.Version, b []byte) (TransparentOutput, error) {
	r, err := Extract(layout.KindTransparentOutput, version, b)
	return TransparentOutput{r}, err
}

// ExtractSpend extracts a spend view. The version must come from the caller:
// the legacy and current forms are never told apart by length.
func ExtractSpend(version layout.Version, b []byte) (Spend, error) {
	r, err := Extract(layout.KindSpend, version, b)
	return Spend{r}, err
}

// ExtractOutput extracts an output view.
func ExtractOutput(version layout.Version, b []byte) (Output, error) {
	r, err := Extract(layout.KindOutput, version, b)
	return Output{r}, err
}

// optional returns the named field when the record's version carries it.
func (r Record) optional(name string) ([]byte, bool) {
	b, err := r.Bytes(name)
	return b, err == nil
}

// Script returns the 26-byte script region (length-prefixed script).
func (in TransparentInput) Script() []byte { return in.must(layout.FieldScript) }

// Value returns the input amount in zatoshi.
func (in TransparentInput) Value() uint64 {
	return binary.LittleEndian.Uint64(in.must(layout.FieldValue))
}

// Path returns the derivation path region of the compact form.
func (in TransparentInput) Path() ([]byte, bool) { return in.optional(layout.FieldPath) }

// Prevout returns the 36-byte outpoint (txid || index) of the transaction form.
func (in TransparentInput) Prevout() ([]byte, bool) { return in.optional(layout.FieldPrevout) }

// Sequence returns the sequence number of the transaction form.
func (in TransparentInput) Sequence() (uint32, bool) {
	b, ok := in.optional(layout.FieldSequence)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b), true
}

// Expand writes the transaction form of a compact input into dst, taking the
// outpoint and sequence that the compact form does not carry.
func (in TransparentInput) Expand(prevout [36]byte, sequence uint32, dst *[layout.TransparentInputTxLen]byte) error {
	if in.Version() != layout.VersionCompact {
		return status.New(status.CodeDataInvalid, "expand needs a compact input, have %s", in.Version())
	}
	tx, err := layout.Lookup(layout.KindTransparentInput, layout.VersionTx)
	if err != nil {
		return err
	}
	put := func(name string, src []byte) error {
		f, err := tx.Field(name)
		if err != nil {
			return err
		}
		copy(dst[f.Offset:f.End()], src)
		return nil
	}
	var seq [4]byte
	binary.LittleEndian.PutUint32(seq[:], sequence)
	for _, p := range []struct {
		name string
		src  []byte
	}{
		{layout.FieldPrevout, prevout[:]},
		{layout.FieldScript, in.Script()},
		{layout.FieldValue, in.must(layout.FieldValue)},
		{layout.FieldSequence, seq[:]},
	} {
		if err := put(p.name, p.src); err != nil {
			return err
		}
	}
	return nil
}

// Address returns the 26-byte destination script region.
func (out TransparentOutput) Address() []byte { return out.must(layout.FieldAddress) }

// Value returns the output amount in zatoshi.
func (out TransparentOutput) Value() uint64 {
	return binary.LittleEndian.Uint64(out.must(layout.FieldValue))
}

// Rcm returns the commitment randomness of the legacy form.
func (s Spend) Rcm() ([]byte, bool) { return s.optional(layout.FieldRcm) }

// NotePosition returns the note position of the legacy form.
func (s Spend) NotePosition() (uint64, bool) {
	b, ok := s.optional(layout.FieldNotePosition)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint64(b), true
}

// ValueCommit returns cv for the current and extract forms.
func (s Spend) ValueCommit() ([]byte, bool) { return s.optional(layout.FieldValueCommit) }

// Anchor returns the note commitment tree root for the current and extract forms.
func (s Spend) Anchor() ([]byte, bool) { return s.optional(layout.FieldAnchor) }

// Nullifier returns nf for the current and extract forms.
func (s Spend) Nullifier() ([]byte, bool) { return s.optional(layout.FieldNullifier) }

// RandomizedPubKey returns rk for the current and extract forms.
func (s Spend) RandomizedPubKey() ([]byte, bool) { return s.optional(layout.FieldRandomizedPubKey) }

// ZkProof returns the Groth16 proof of the current form.
func (s Spend) ZkProof() ([]byte, bool) { return s.optional(layout.FieldZkProof) }

// Value returns the note value of the init form.
func (s Spend) Value() (uint64, bool) {
	b, ok := s.optional(layout.FieldValue)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint64(b), true
}

// ValueCommit returns cv.
func (o Output) ValueCommit() ([]byte, bool) { return o.optional(layout.FieldValueCommit) }

// NoteCommit returns cmu.
func (o Output) NoteCommit() ([]byte, bool) { return o.optional(layout.FieldNoteCommit) }

// EphemeralKey returns epk of the current form.
func (o Output) EphemeralKey() ([]byte, bool) { return o.optional(layout.FieldEphemeralKey) }

// Ciphertext returns the 580-byte note ciphertext of the current form.
func (o Output) Ciphertext() ([]byte, bool) { return o.optional(layout.FieldCiphertext) }

// OutCiphertext returns the 80-byte outgoing ciphertext of the current form.
func (o Output) OutCiphertext() ([]byte, bool) { return o.optional(layout.FieldOutCiphertext) }

// ZkProof returns the Groth16 proof of the current form.
func (o Output) ZkProof() ([]byte, bool) { return o.optional(layout.FieldZkProof) }

// Value returns the note value of the init form.
func (o Output) Value() (uint64, bool) {
	b, ok := o.optional(layout.FieldValue)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint64(b), true
}

// HasOvk reports whether the init form carries an outgoing viewing key; the
// first ovk byte is the presence flag.
func (o Output) HasOvk() bool {
	b, ok := o.optional(layout.FieldOvk)
	return ok && b[0] != 0
}
