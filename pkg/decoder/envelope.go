package decoder

import (
	"encoding/binary"

	"github.com/suffix-labs/zcash-sapling-sighash/pkg/layout"
	"github.com/suffix-labs/zcash-sapling-sighash/pkg/record"
	"github.com/suffix-labs/zcash-sapling-sighash/pkg/sighash"
	"github.com/suffix-labs/zcash-sapling-sighash/pkg/status"
)

// Envelope is the header of a transaction: the declared record counts and
// the fixed fields that end up in the preimage.
type Envelope struct {
	TransparentInputs  int
	TransparentOutputs int
	Spends             int
	Outputs            int

	Version        uint32
	VersionGroupID uint32
	Fixed          sighash.Fixed
}

// count returns the declared count for a record phase.
func (e Envelope) count(p phase) int {
	switch p {
	case phaseInputs:
		return e.TransparentInputs
	case phaseOutputs:
		return e.TransparentOutputs
	case phaseSpends:
		return e.Spends
	case phaseShieldedOutputs:
		return e.Outputs
	}
	return 0
}

// Total returns the number of records the envelope declares.
func (e Envelope) Total() int {
	return e.TransparentInputs + e.TransparentOutputs + e.Spends + e.Outputs
}

// Encode serializes the envelope in the given header version. It is the
// host-side counterpart of parseEnvelope.
func (e Envelope) Encode(version layout.Version) ([]byte, error) {
	l, err := layout.Lookup(layout.KindHeader, version)
	if err != nil {
		return nil, err
	}
	b := make([]byte, l.Length)
	b[0] = byte(e.TransparentInputs)
	b[1] = byte(e.TransparentOutputs)
	b[2] = byte(e.Spends)
	b[3] = byte(e.Outputs)
	if version == layout.VersionTx {
		binary.LittleEndian.PutUint32(b[4:], e.Version)
		binary.LittleEndian.PutUint32(b[8:], e.VersionGroupID)
		binary.LittleEndian.PutUint32(b[12:], e.Fixed.LockTime)
		binary.LittleEndian.PutUint32(b[16:], e.Fixed.ExpiryHeight)
		binary.LittleEndian.PutUint32(b[20:], e.Fixed.HashType)
	}
	return b, nil
}

// parseEnvelope reads a header chunk. A compact header takes the Sapling v4
// defaults for every fixed field.
func parseEnvelope(version layout.Version, b []byte, maxRecords int) (Envelope, error) {
	rec, err := record.Extract(layout.KindHeader, version, b)
	if err != nil {
		return Envelope{}, err
	}

	var env Envelope
	for _, c := range []struct {
		field string
		dst   *int
	}{
		{layout.FieldInputCount, &env.TransparentInputs},
		{layout.FieldOutputCount, &env.TransparentOutputs},
		{layout.FieldSpendCount, &env.Spends},
		{layout.FieldShieldedCount, &env.Outputs},
	} {
		v, err := rec.Bytes(c.field)
		if err != nil {
			return Envelope{}, err
		}
		*c.dst = int(v[0])
		if *c.dst > maxRecords {
			return Envelope{}, status.New(status.CodeDataTooLong, "%s %d exceeds capacity %d", c.field, *c.dst, maxRecords)
		}
	}
	if env.Total() == 0 {
		return Envelope{}, status.New(status.CodeDataInvalid, "envelope declares no records")
	}

	env.Version = sighash.SaplingVersion
	env.VersionGroupID = sighash.SaplingVersionGroupID
	env.Fixed.HashType = sighash.SighashAll
	if version != layout.VersionTx {
		return env, nil
	}

	for _, f := range []struct {
		field string
		dst   *uint32
	}{
		{layout.FieldTxVersion, &env.Version},
		{layout.FieldVersionGroup, &env.VersionGroupID},
		{layout.FieldLockTime, &env.Fixed.LockTime},
		{layout.FieldExpiryHeight, &env.Fixed.ExpiryHeight},
		{layout.FieldHashType, &env.Fixed.HashType},
	} {
		if *f.dst, err = rec.Uint32(f.field); err != nil {
			return Envelope{}, err
		}
	}
	if env.Version != sighash.SaplingVersion || env.VersionGroupID != sighash.SaplingVersionGroupID {
		return Envelope{}, status.New(status.CodeDataInvalid, "version %08x group %08x is not Sapling v4",
			env.Version, env.VersionGroupID)
	}
	if env.Fixed.HashType != sighash.SighashAll {
		return Envelope{}, status.New(status.CodeDataInvalid, "hash type %d not supported", env.Fixed.HashType)
	}
	return env, nil
}
