// Package txparse parses serialized Sapling (v4) transactions and splits them
// into the tagged chunks a signing session consumes.
//
// The device never sees a raw transaction. The host parses it here, pairs
// every transparent input with the coin it spends (value and scriptPubKey are
// not part of the transaction) and sends the resulting records one at a time.
//
// Reference: Zcash protocol specification §7.1 (transaction encoding),
// ZIP 243 (https://zips.z.cash/zip-0243)
package txparse

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/suffix-labs/zcash-sapling-sighash/pkg/decoder"
	"github.com/suffix-labs/zcash-sapling-sighash/pkg/layout"
	"github.com/suffix-labs/zcash-sapling-sighash/pkg/sighash"
)

// ErrJoinSplits is returned for transactions carrying Sprout JoinSplits,
// which the signing core does not digest.
var ErrJoinSplits = errors.New("transactions with JoinSplits are not supported")

// Tx is a parsed v4 transaction.
type Tx struct {
	// Header fields
	Version        uint32 // includes the fOverwintered bit
	VersionGroupID uint32
	LockTime       uint32
	ExpiryHeight   uint32
	ValueBalance   int64

	TransparentInputs  []TxIn
	TransparentOutputs []TxOut

	Spends  []SpendDescription
	Outputs []OutputDescription

	BindingSig [64]byte
}

// TxIn is a transparent input as serialized in the transaction.
type TxIn struct {
	PrevoutTxID  [32]byte
	PrevoutIndex uint32
	ScriptSig    []byte
	Sequence     uint32
}

// TxOut is a transparent output.
type TxOut struct {
	Value        uint64
	ScriptPubKey []byte
}

// SpendDescription is a v4 Sapling spend: the 320 bytes hashed by ZIP 243
// followed by the spend authorization signature.
type SpendDescription struct {
	Body         [layout.SpendCurrentLen]byte // cv | anchor | nullifier | rk | zkproof
	SpendAuthSig [64]byte
}

// OutputDescription is a v4 Sapling output, hashed whole by ZIP 243.
type OutputDescription struct {
	Body [layout.OutputLen]byte // cv | cmu | epk | enc | out | zkproof
}

// Coin is the previous output a transparent input spends.
type Coin struct {
	Value        uint64
	ScriptPubKey []byte
}

// ParseV4 parses raw v4 transaction bytes. Trailing bytes are an error.
func ParseV4(data []byte) (*Tx, error) {
	r := bytes.NewReader(data)
	tx := &Tx{}

	if err := binary.Read(r, binary.LittleEndian, &tx.Version); err != nil {
		return nil, fmt.Errorf("reading version: %w", err)
	}
	if tx.Version != sighash.SaplingVersion {
		return nil, fmt.Errorf("not an overwintered v4 transaction (version=%08x)", tx.Version)
	}
	if err := binary.Read(r, binary.LittleEndian, &tx.VersionGroupID); err != nil {
		return nil, fmt.Errorf("reading version_group_id: %w", err)
	}
	if tx.VersionGroupID != sighash.SaplingVersionGroupID {
		return nil, fmt.Errorf("unexpected version group id %08x", tx.VersionGroupID)
	}

	if err := parseTransparentBundle(r, tx); err != nil {
		return nil, fmt.Errorf("parsing transparent bundle: %w", err)
	}

	if err := binary.Read(r, binary.LittleEndian, &tx.LockTime); err != nil {
		return nil, fmt.Errorf("reading lock_time: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &tx.ExpiryHeight); err != nil {
		return nil, fmt.Errorf("reading expiry_height: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &tx.ValueBalance); err != nil {
		return nil, fmt.Errorf("reading value_balance: %w", err)
	}

	if err := parseSaplingBundle(r, tx); err != nil {
		return nil, fmt.Errorf("parsing sapling bundle: %w", err)
	}

	numJoinSplits, err := readCompactSize(r)
	if err != nil {
		return nil, fmt.Errorf("reading joinsplit count: %w", err)
	}
	if numJoinSplits != 0 {
		return nil, ErrJoinSplits
	}

	if len(tx.Spends)+len(tx.Outputs) > 0 {
		if _, err := io.ReadFull(r, tx.BindingSig[:]); err != nil {
			return nil, fmt.Errorf("reading binding sig: %w", err)
		}
	}

	if r.Len() != 0 {
		return nil, fmt.Errorf("%d trailing bytes", r.Len())
	}
	return tx, nil
}

// parseTransparentBundle reads the transparent inputs and outputs.
func parseTransparentBundle(r io.Reader, tx *Tx) error {
	numInputs, err := readCount(r)
	if err != nil {
		return fmt.Errorf("reading input count: %w", err)
	}
	tx.TransparentInputs = make([]TxIn, numInputs)
	for i := range tx.TransparentInputs {
		if err := parseTxIn(r, &tx.TransparentInputs[i]); err != nil {
			return fmt.Errorf("parsing input %d: %w", i, err)
		}
	}

	numOutputs, err := readCount(r)
	if err != nil {
		return fmt.Errorf("reading output count: %w", err)
	}
	tx.TransparentOutputs = make([]TxOut, numOutputs)
	for i := range tx.TransparentOutputs {
		if err := parseTxOut(r, &tx.TransparentOutputs[i]); err != nil {
			return fmt.Errorf("parsing output %d: %w", i, err)
		}
	}

	return nil
}

// parseTxIn reads a single transparent input.
func parseTxIn(r io.Reader, txin *TxIn) error {
	if _, err := io.ReadFull(r, txin.PrevoutTxID[:]); err != nil {
		return fmt.Errorf("reading prevout txid: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &txin.PrevoutIndex); err != nil {
		return fmt.Errorf("reading prevout index: %w", err)
	}

	script, err := readBytes(r)
	if err != nil {
		return fmt.Errorf("reading scriptSig: %w", err)
	}
	txin.ScriptSig = script

	if err := binary.Read(r, binary.LittleEndian, &txin.Sequence); err != nil {
		return fmt.Errorf("reading sequence: %w", err)
	}
	return nil
}

// parseTxOut reads a single transparent output.
func parseTxOut(r io.Reader, txout *TxOut) error {
	if err := binary.Read(r, binary.LittleEndian, &txout.Value); err != nil {
		return fmt.Errorf("reading value: %w", err)
	}

	script, err := readBytes(r)
	if err != nil {
		return fmt.Errorf("reading scriptPubKey: %w", err)
	}
	txout.ScriptPubKey = script
	return nil
}

// parseSaplingBundle reads the v4 spend and output descriptions. Unlike v5,
// every v4 spend carries its own anchor, proof and signature inline.
func parseSaplingBundle(r io.Reader, tx *Tx) error {
	numSpends, err := readCount(r)
	if err != nil {
		return fmt.Errorf("reading spend count: %w", err)
	}
	tx.Spends = make([]SpendDescription, numSpends)
	for i := range tx.Spends {
		s := &tx.Spends[i]
		if _, err := io.ReadFull(r, s.Body[:]); err != nil {
			return fmt.Errorf("reading spend %d: %w", i, err)
		}
		if _, err := io.ReadFull(r, s.SpendAuthSig[:]); err != nil {
			return fmt.Errorf("reading spend %d auth sig: %w", i, err)
		}
	}

	numOutputs, err := readCount(r)
	if err != nil {
		return fmt.Errorf("reading output count: %w", err)
	}
	tx.Outputs = make([]OutputDescription, numOutputs)
	for i := range tx.Outputs {
		if _, err := io.ReadFull(r, tx.Outputs[i].Body[:]); err != nil {
			return fmt.Errorf("reading output %d: %w", i, err)
		}
	}
	return nil
}

// maxCount bounds every element count to what an envelope can declare.
const maxCount = decoder.DefaultMaxRecords

func readCount(r io.Reader) (int, error) {
	n, err := readCompactSize(r)
	if err != nil {
		return 0, err
	}
	if n > maxCount {
		return 0, fmt.Errorf("count %d exceeds %d", n, maxCount)
	}
	return int(n), nil
}

// maxScriptLen is the consensus script size limit.
const maxScriptLen = 10000

func readBytes(r io.Reader) ([]byte, error) {
	n, err := readCompactSize(r)
	if err != nil {
		return nil, err
	}
	if n > maxScriptLen {
		return nil, fmt.Errorf("script length %d exceeds %d", n, maxScriptLen)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// readCompactSize reads a Bitcoin-style variable-length integer. Only the
// shortest encoding of a value is accepted.
func readCompactSize(r io.Reader) (uint64, error) {
	var first [1]byte
	if _, err := io.ReadFull(r, first[:]); err != nil {
		return 0, err
	}

	switch first[0] {
	case 253:
		var v uint16
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return 0, err
		}
		if v < 253 {
			return 0, fmt.Errorf("non-canonical compact size: tag 253 for %d", v)
		}
		return uint64(v), nil
	case 254:
		var v uint32
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return 0, err
		}
		if v <= 0xFFFF {
			return 0, fmt.Errorf("non-canonical compact size: tag 254 for %d", v)
		}
		return uint64(v), nil
	case 255:
		var v uint64
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return 0, err
		}
		if v <= 0xFFFFFFFF {
			return 0, fmt.Errorf("non-canonical compact size: tag 255 for %d", v)
		}
		return v, nil
	default:
		return uint64(first[0]), nil
	}
}

// writeCompactSize writes a Bitcoin-style variable-length integer.
func writeCompactSize(w *bytes.Buffer, n uint64) {
	switch {
	case n < 253:
		w.WriteByte(byte(n))
	case n <= 0xFFFF:
		w.WriteByte(253)
		binary.Write(w, binary.LittleEndian, uint16(n))
	case n <= 0xFFFFFFFF:
		w.WriteByte(254)
		binary.Write(w, binary.LittleEndian, uint32(n))
	default:
		w.WriteByte(255)
		binary.Write(w, binary.LittleEndian, n)
	}
}

// Serialize encodes tx in the v4 wire format.
func (tx *Tx) Serialize() []byte {
	var w bytes.Buffer
	binary.Write(&w, binary.LittleEndian, tx.Version)
	binary.Write(&w, binary.LittleEndian, tx.VersionGroupID)

	writeCompactSize(&w, uint64(len(tx.TransparentInputs)))
	for _, in := range tx.TransparentInputs {
		w.Write(in.PrevoutTxID[:])
		binary.Write(&w, binary.LittleEndian, in.PrevoutIndex)
		writeCompactSize(&w, uint64(len(in.ScriptSig)))
		w.Write(in.ScriptSig)
		binary.Write(&w, binary.LittleEndian, in.Sequence)
	}
	writeCompactSize(&w, uint64(len(tx.TransparentOutputs)))
	for _, out := range tx.TransparentOutputs {
		binary.Write(&w, binary.LittleEndian, out.Value)
		writeCompactSize(&w, uint64(len(out.ScriptPubKey)))
		w.Write(out.ScriptPubKey)
	}

	binary.Write(&w, binary.LittleEndian, tx.LockTime)
	binary.Write(&w, binary.LittleEndian, tx.ExpiryHeight)
	binary.Write(&w, binary.LittleEndian, tx.ValueBalance)

	writeCompactSize(&w, uint64(len(tx.Spends)))
	for _, s := range tx.Spends {
		w.Write(s.Body[:])
		w.Write(s.SpendAuthSig[:])
	}
	writeCompactSize(&w, uint64(len(tx.Outputs)))
	for _, o := range tx.Outputs {
		w.Write(o.Body[:])
	}
	writeCompactSize(&w, 0) // no JoinSplits
	if len(tx.Spends)+len(tx.Outputs) > 0 {
		w.Write(tx.BindingSig[:])
	}
	return w.Bytes()
}
