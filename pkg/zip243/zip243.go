// Package zip243 computes the ZIP 243 sub-digests that fill the Sapling
// signature-hash preimage, and the final signature hash.
//
// Digests are accumulated one record at a time: the Accumulator keeps one
// running BLAKE2b-256 state per sub-digest, so a transaction is hashed without
// ever being buffered.
//
// References:
//   - ZIP 243: https://zips.z.cash/zip-0243
//   - librustzcash/zcash_primitives/src/transaction/sighash_v4.rs
package zip243

import (
	"encoding/binary"
	"hash"

	blake2b "github.com/minio/blake2b-simd"

	"github.com/suffix-labs/zcash-sapling-sighash/pkg/layout"
	"github.com/suffix-labs/zcash-sapling-sighash/pkg/record"
	"github.com/suffix-labs/zcash-sapling-sighash/pkg/sighash"
	"github.com/suffix-labs/zcash-sapling-sighash/pkg/status"
)

// ZIP 243 personalization strings (all 16 bytes, except the signature hash
// prefix which is completed with the consensus branch id).
const (
	PrevoutsPersonalization        = "ZcashPrevoutHash"
	SequencePersonalization        = "ZcashSequencHash"
	OutputsPersonalization         = "ZcashOutputsHash"
	ShieldedSpendsPersonalization  = "ZcashSSpendsHash"
	ShieldedOutputsPersonalization = "ZcashSOutputHash"
	SighashPersonalization         = "ZcashSigHash"
)

// inputPersonalization keys the per-input digests kept for signing. They
// never enter a preimage.
const inputPersonalization = "SaplingInputSeen"

// MaxInputs is the number of transparent inputs an Accumulator remembers,
// the largest count a one-byte header can declare.
const MaxInputs = 255

// Consensus branch ids that use the v4 digest.
const (
	SaplingBranchID   = 0x76B809BB
	BlossomBranchID   = 0x2BB40E60
	HeartwoodBranchID = 0xF5B9230B
	CanopyBranchID    = 0xE9FF75A6
)

// blake2bNew256 creates a BLAKE2b-256 state with the given personalization.
// The personalization is a distinct parameter, not a key.
func blake2bNew256(personalization []byte) hash.Hash {
	h, err := blake2b.New(&blake2b.Config{Size: 32, Person: personalization})
	if err != nil {
		// Only reachable with a personalization longer than 16 bytes.
		panic(err)
	}
	return h
}

func sum(h hash.Hash) [32]byte {
	var d [32]byte
	copy(d[:], h.Sum(nil))
	return d
}

// Sum returns the personalized BLAKE2b-256 digest of data.
func Sum(personalization string, data []byte) [32]byte {
	h := blake2bNew256([]byte(personalization))
	h.Write(data)
	return sum(h)
}

// Writer receives derived regions. Both *sighash.Preimage and the decoder
// satisfy it.
type Writer interface {
	Write(r layout.Region, b []byte) error
}

// Accumulator streams accepted records into the ZIP 243 sub-digests.
type Accumulator struct {
	prevouts, sequence, outputs, spends, shieldedOutputs hash.Hash

	inputs, tOutputs, nSpends, nOutputs int

	// One digest per accepted transparent input, so a signing request can
	// be matched against what was streamed.
	seen [MaxInputs]inputDigest

	// Set when a record arrived in a form that lacks the hashed fields.
	prevoutsUnknown, spendsUnknown, outputsUnknown bool
}

// inputDigest identifies one accepted input. Compact inputs carry no outpoint
// or sequence and are identified by script and value alone.
type inputDigest struct {
	sum     [32]byte
	compact bool
}

func inputSum(in record.TransparentInput, compact bool) [32]byte {
	h := blake2bNew256([]byte(inputPersonalization))
	if !compact {
		prevout, _ := in.Prevout()
		h.Write(prevout)
	}
	h.Write(in.Script())
	binary.Write(h, binary.LittleEndian, in.Value())
	if !compact {
		seq, _ := in.Sequence()
		binary.Write(h, binary.LittleEndian, seq)
	}
	return sum(h)
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	a := &Accumulator{}
	a.Reset()
	return a
}

// Reset discards all accumulated state.
func (a *Accumulator) Reset() {
	*a = Accumulator{
		prevouts:        blake2bNew256([]byte(PrevoutsPersonalization)),
		sequence:        blake2bNew256([]byte(SequencePersonalization)),
		outputs:         blake2bNew256([]byte(OutputsPersonalization)),
		spends:          blake2bNew256([]byte(ShieldedSpendsPersonalization)),
		shieldedOutputs: blake2bNew256([]byte(ShieldedOutputsPersonalization)),
	}
}

// Observe folds one record into the running digests.
func (a *Accumulator) Observe(rec record.Record) error {
	switch rec.Kind() {
	case layout.KindTransparentInput:
		if a.inputs == MaxInputs {
			return status.New(status.CodeDataTooLong, "more than %d transparent inputs", MaxInputs)
		}
		in := record.TransparentInput{Record: rec}
		prevout, ok := in.Prevout()
		a.seen[a.inputs] = inputDigest{sum: inputSum(in, !ok), compact: !ok}
		a.inputs++
		if !ok {
			// Compact inputs carry no outpoint; the host supplies the digests.
			a.prevoutsUnknown = true
			return nil
		}
		seq, _ := in.Sequence()
		a.prevouts.Write(prevout)
		binary.Write(a.sequence, binary.LittleEndian, seq)

	case layout.KindTransparentOutput:
		a.tOutputs++
		out := record.TransparentOutput{Record: rec}
		binary.Write(a.outputs, binary.LittleEndian, out.Value())
		a.outputs.Write(out.Address())

	case layout.KindSpend:
		a.nSpends++
		if rec.Version() != layout.VersionCurrent {
			a.spendsUnknown = true
			return nil
		}
		// cv || anchor || nullifier || rk || zkproof is the whole record.
		a.spends.Write(rec.Raw())

	case layout.KindOutput:
		a.nOutputs++
		if rec.Version() != layout.VersionCurrent {
			a.outputsUnknown = true
			return nil
		}
		// cv || cmu || epk || enc || out || zkproof is the whole record.
		a.shieldedOutputs.Write(rec.Raw())

	default:
		return status.New(status.CodeDataInvalid, "no digest for %s records", rec.Kind())
	}
	return nil
}

// HasInput reports whether in matches an accepted transparent input. A
// compact input matches any transaction-form input with its script and value.
func (a *Accumulator) HasInput(in record.TransparentInput) bool {
	if _, ok := in.Prevout(); !ok {
		return false
	}
	full, compact := inputSum(in, false), inputSum(in, true)
	for _, s := range a.seen[:a.inputs] {
		if (s.compact && s.sum == compact) || (!s.compact && s.sum == full) {
			return true
		}
	}
	return false
}

// Digests holds the derived sub-digests; a nil entry was not derivable.
type Digests struct {
	Prevouts        *[32]byte
	Sequence        *[32]byte
	Outputs         *[32]byte
	JoinSplits      *[32]byte
	ShieldedSpends  *[32]byte
	ShieldedOutputs *[32]byte
}

// digest returns the sum of h, or the all-zero digest ZIP 243 mandates for
// an empty set.
func digest(h hash.Hash, n int) *[32]byte {
	var d [32]byte
	if n > 0 {
		d = sum(h)
	}
	return &d
}

// Digests returns every sub-digest the accepted records determine. The
// SIGHASH_ALL rules apply.
func (a *Accumulator) Digests() Digests {
	var d Digests
	if !a.prevoutsUnknown {
		d.Prevouts = digest(a.prevouts, a.inputs)
		d.Sequence = digest(a.sequence, a.inputs)
	}
	d.Outputs = digest(a.outputs, a.tOutputs)
	d.JoinSplits = new([32]byte)
	if !a.spendsUnknown {
		d.ShieldedSpends = digest(a.spends, a.nSpends)
	}
	if !a.outputsUnknown {
		d.ShieldedOutputs = digest(a.shieldedOutputs, a.nOutputs)
	}
	return d
}

// WriteRegions writes every derivable digest into w and returns the regions
// it wrote.
func (a *Accumulator) WriteRegions(w Writer) ([]layout.Region, error) {
	d := a.Digests()
	var wrote []layout.Region
	for _, e := range []struct {
		region layout.Region
		value  *[32]byte
	}{
		{layout.RegionPrevouts, d.Prevouts},
		{layout.RegionSequence, d.Sequence},
		{layout.RegionOutputs, d.Outputs},
		{layout.RegionJoinSplits, d.JoinSplits},
		{layout.RegionShieldedSpends, d.ShieldedSpends},
		{layout.RegionShieldedOutputs, d.ShieldedOutputs},
	} {
		if e.value == nil {
			continue
		}
		if err := w.Write(e.region, e.value[:]); err != nil {
			return wrote, err
		}
		wrote = append(wrote, e.region)
	}
	return wrote, nil
}

func sighashPersonalization(branchID uint32) []byte {
	p := make([]byte, 16)
	copy(p, SighashPersonalization)
	binary.LittleEndian.PutUint32(p[12:], branchID)
	return p
}

// Sighash hashes a finalized preimage for a shielded signature.
func Sighash(preimage [sighash.Size]byte, branchID uint32) [32]byte {
	h := blake2bNew256(sighashPersonalization(branchID))
	h.Write(preimage[:])
	return sum(h)
}

// TransparentSighash hashes a finalized preimage followed by the signed
// input: prevout || scriptCode || amount || nSequence. The input must be in
// transaction form.
func TransparentSighash(preimage [sighash.Size]byte, branchID uint32, in record.TransparentInput) ([32]byte, error) {
	prevout, ok := in.Prevout()
	if !ok {
		return [32]byte{}, status.New(status.CodePrevoutInvalid, "input in %s form has no outpoint", in.Version())
	}
	seq, _ := in.Sequence()

	h := blake2bNew256(sighashPersonalization(branchID))
	h.Write(preimage[:])
	h.Write(prevout)
	h.Write(in.Script())
	binary.Write(h, binary.LittleEndian, in.Value())
	binary.Write(h, binary.LittleEndian, seq)
	return sum(h), nil
}
