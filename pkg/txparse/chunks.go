package txparse

import (
	"encoding/binary"
	"fmt"

	"github.com/suffix-labs/zcash-sapling-sighash/pkg/decoder"
	"github.com/suffix-labs/zcash-sapling-sighash/pkg/layout"
	"github.com/suffix-labs/zcash-sapling-sighash/pkg/sighash"
)

// scriptFieldLen is the fixed script slot of transparent records: a one-byte
// length followed by a 25-byte script.
const scriptFieldLen = 26

// scriptField packs script into the fixed record slot.
func scriptField(dst []byte, script []byte) error {
	if len(script) != scriptFieldLen-1 {
		return fmt.Errorf("script of %d bytes does not fit the %d-byte record slot", len(script), scriptFieldLen-1)
	}
	dst[0] = byte(len(script))
	copy(dst[1:scriptFieldLen], script)
	return nil
}

// Envelope returns the header of tx in its transaction form.
func (tx *Tx) Envelope() decoder.Envelope {
	return decoder.Envelope{
		TransparentInputs:  len(tx.TransparentInputs),
		TransparentOutputs: len(tx.TransparentOutputs),
		Spends:             len(tx.Spends),
		Outputs:            len(tx.Outputs),
		Version:            tx.Version,
		VersionGroupID:     tx.VersionGroupID,
		Fixed: sighash.Fixed{
			LockTime:     tx.LockTime,
			ExpiryHeight: tx.ExpiryHeight,
			HashType:     sighash.SighashAll,
		},
	}
}

// InputRecord returns the transaction-form record of input i spending coin:
// prevout | scriptCode | value | sequence.
func (tx *Tx) InputRecord(i int, coin Coin) ([layout.TransparentInputTxLen]byte, error) {
	var b [layout.TransparentInputTxLen]byte
	if i < 0 || i >= len(tx.TransparentInputs) {
		return b, fmt.Errorf("input %d out of range", i)
	}
	in := tx.TransparentInputs[i]
	copy(b[0:32], in.PrevoutTxID[:])
	binary.LittleEndian.PutUint32(b[32:36], in.PrevoutIndex)
	if err := scriptField(b[36:62], coin.ScriptPubKey); err != nil {
		return b, fmt.Errorf("input %d: %w", i, err)
	}
	binary.LittleEndian.PutUint64(b[62:70], coin.Value)
	binary.LittleEndian.PutUint32(b[70:74], in.Sequence)
	return b, nil
}

// Chunks splits tx into the chunk sequence of a signing session, header
// first. coins must hold the spent coin of every transparent input, in order.
func (tx *Tx) Chunks(coins []Coin) ([]decoder.Chunk, error) {
	if len(coins) != len(tx.TransparentInputs) {
		return nil, fmt.Errorf("%d coins for %d transparent inputs", len(coins), len(tx.TransparentInputs))
	}

	env := tx.Envelope()
	header, err := env.Encode(layout.VersionTx)
	if err != nil {
		return nil, err
	}
	chunks := make([]decoder.Chunk, 0, 1+env.Total())
	chunks = append(chunks, decoder.Chunk{Kind: layout.KindHeader, Version: layout.VersionTx, Data: header})

	for i, coin := range coins {
		b, err := tx.InputRecord(i, coin)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, decoder.Chunk{
			Kind: layout.KindTransparentInput, Version: layout.VersionTx, Data: b[:],
		})
	}

	for i, out := range tx.TransparentOutputs {
		b := make([]byte, layout.TransparentOutputLen)
		if err := scriptField(b[:scriptFieldLen], out.ScriptPubKey); err != nil {
			return nil, fmt.Errorf("output %d: %w", i, err)
		}
		binary.LittleEndian.PutUint64(b[scriptFieldLen:], out.Value)
		chunks = append(chunks, decoder.Chunk{
			Kind: layout.KindTransparentOutput, Version: layout.VersionCompact, Data: b,
		})
	}

	for i := range tx.Spends {
		chunks = append(chunks, decoder.Chunk{
			Kind: layout.KindSpend, Version: layout.VersionCurrent, Data: tx.Spends[i].Body[:],
		})
	}
	for i := range tx.Outputs {
		chunks = append(chunks, decoder.Chunk{
			Kind: layout.KindOutput, Version: layout.VersionCurrent, Data: tx.Outputs[i].Body[:],
		})
	}
	return chunks, nil
}
