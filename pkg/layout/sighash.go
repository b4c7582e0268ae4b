package layout

import (
	"fmt"

	"github.com/suffix-labs/zcash-sapling-sighash/pkg/status"
)

// Region identifies one write-once region of the signature-hash preimage.
type Region uint8

const (
	RegionHeader Region = iota
	RegionPrevouts
	RegionSequence
	RegionOutputs
	RegionJoinSplits
	RegionShieldedSpends
	RegionShieldedOutputs
	RegionValueBalance

	NumRegions = 8
)

// Preimage field names. The trailer fields are stamped from the transaction
// envelope when the preimage is begun; they are not write-once regions.
const (
	FieldHeader          = "header"
	FieldPrevoutsHash    = "prevouts-hash"
	FieldSequenceHash    = "sequence-hash"
	FieldOutputsHash     = "outputs-hash"
	FieldJoinSplitsHash  = "joinsplits-hash"
	FieldSpendsHash      = "shielded-spends-hash"
	FieldShieldedOutHash = "shielded-outputs-hash"
	FieldLockTime        = "lock-time"
	FieldExpiryHeight    = "expiry-height"
	FieldValueBalance    = "value-balance"
	FieldHashType        = "hash-type"
)

// regionFields is indexed by Region.
var regionFields = [NumRegions]Field{
	RegionHeader:          {FieldHeader, 0, 8},
	RegionPrevouts:        {FieldPrevoutsHash, 8, 32},
	RegionSequence:        {FieldSequenceHash, 40, 32},
	RegionOutputs:         {FieldOutputsHash, 72, 32},
	RegionJoinSplits:      {FieldJoinSplitsHash, 104, 32},
	RegionShieldedSpends:  {FieldSpendsHash, 136, 32},
	RegionShieldedOutputs: {FieldShieldedOutHash, 168, 32},
	RegionValueBalance:    {FieldValueBalance, 208, 8},
}

// Trailer fields of the preimage.
var (
	LockTimeField     = Field{FieldLockTime, 200, 4}
	ExpiryHeightField = Field{FieldExpiryHeight, 204, 4}
	HashTypeField     = Field{FieldHashType, 216, 4}
)

func (r Region) String() string {
	if r >= NumRegions {
		return fmt.Sprintf("region(%d)", uint8(r))
	}
	return regionFields[r].Name
}

// RegionField returns the position of r inside the preimage.
func RegionField(r Region) (Field, error) {
	if r >= NumRegions {
		return Field{}, status.New(status.CodeUnknownLayout, "no sighash region %d", uint8(r))
	}
	return regionFields[r], nil
}

// Regions returns the write-once regions in preimage order.
func Regions() []Region {
	out := make([]Region, NumRegions)
	for i := range out {
		out[i] = Region(i)
	}
	return out
}

// sighashFields merges regions and trailer fields by offset.
func sighashFields() []Field {
	return []Field{
		regionFields[RegionHeader],
		regionFields[RegionPrevouts],
		regionFields[RegionSequence],
		regionFields[RegionOutputs],
		regionFields[RegionJoinSplits],
		regionFields[RegionShieldedSpends],
		regionFields[RegionShieldedOutputs],
		LockTimeField,
		ExpiryHeightField,
		regionFields[RegionValueBalance],
		HashTypeField,
	}
}
