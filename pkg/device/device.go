// Package device is the protocol edge of the signing core.
//
// A Device takes one command APDU at a time and answers with the response
// payload followed by a two-byte ISO 7816 status word. It owns one decoder
// session, the streaming ZIP 243 digests and a handle on the key store.
// Every failure is reported through the status word; nothing panics across
// the boundary.
//
// Framing errors (class, instruction, P1/P2, Lc) are rejected before the
// command reaches the session and leave it untouched. Any other error aborts
// the session until InsReset.
package device

import (
	"encoding/binary"

	"github.com/decred/slog"

	"github.com/suffix-labs/zcash-sapling-sighash/pkg/decoder"
	"github.com/suffix-labs/zcash-sapling-sighash/pkg/layout"
	"github.com/suffix-labs/zcash-sapling-sighash/pkg/record"
	"github.com/suffix-labs/zcash-sapling-sighash/pkg/sighash"
	"github.com/suffix-labs/zcash-sapling-sighash/pkg/signer"
	"github.com/suffix-labs/zcash-sapling-sighash/pkg/status"
	"github.com/suffix-labs/zcash-sapling-sighash/pkg/zip243"
)

var log = slog.Disabled

// UseLogger uses a specified Logger to output package logging info.
func UseLogger(logger slog.Logger) {
	log = logger
}

// DefaultResponseCapacity is the payload capacity of a short response APDU.
const DefaultResponseCapacity = 256

// Version is reported by InsGetVersion.
var Version = [3]byte{1, 0, 0}

// Config configures a Device.
type Config struct {
	// BranchID is the consensus branch id bound into every signature hash.
	// Zero means Sapling.
	BranchID uint32

	// MaxRecords caps each declared record count.
	MaxRecords int

	// ResponseCapacity bounds the response payload. Zero means
	// DefaultResponseCapacity.
	ResponseCapacity int

	// Signer holds the transparent keys. Signing instructions fail with
	// BadKeyHandle when it is nil.
	Signer signer.Signer

	// Validator checks each record. Nil means CheckScripts.
	Validator decoder.Validator
}

// Device is a single-session command processor. Like the decoder it wraps,
// it is not safe for concurrent use.
type Device struct {
	cfg Config
	dec *decoder.Decoder
	acc *zip243.Accumulator

	finalized bool
	preimage  [sighash.Size]byte
	sighash   [32]byte
}

// New returns a device with an idle session.
func New(cfg Config) *Device {
	if cfg.BranchID == 0 {
		cfg.BranchID = zip243.SaplingBranchID
	}
	if cfg.ResponseCapacity <= 0 {
		cfg.ResponseCapacity = DefaultResponseCapacity
	}
	if cfg.Validator == nil {
		cfg.Validator = decoder.ValidatorFunc(CheckScripts)
	}
	acc := zip243.NewAccumulator()
	return &Device{
		cfg: cfg,
		acc: acc,
		dec: decoder.New(decoder.Config{
			MaxRecords: cfg.MaxRecords,
			Validator:  cfg.Validator,
			Observer:   acc,
		}),
	}
}

// Exchange processes one request and returns payload || status word.
func (d *Device) Exchange(req []byte) []byte {
	resp, err := d.handle(req)
	if err == nil && len(resp) > d.cfg.ResponseCapacity {
		err = status.New(status.CodeOutputBufferTooSmall, "%d byte response exceeds %d", len(resp), d.cfg.ResponseCapacity)
	}
	if err != nil {
		resp = nil
		log.Debugf("Request failed with %04x: %v", status.Word(err), err)
	}
	return status.Append(resp, err)
}

func (d *Device) handle(req []byte) ([]byte, error) {
	cmd, err := ParseCommand(req)
	if err != nil {
		return nil, err
	}
	log.Tracef("INS %02x P1 %02x P2 %02x Lc %d", cmd.Ins, cmd.P1, cmd.P2, len(cmd.Data))

	if cmd.Ins != InsGetLayout && cmd.P2 != 0 {
		return nil, status.New(status.CodeInvalidP1P2, "P2 %02x", cmd.P2)
	}

	switch cmd.Ins {
	case InsGetVersion:
		return d.getVersion(cmd)
	case InsInitTx:
		return nil, d.feed(layout.KindHeader, cmd)
	case InsTransparentInput:
		return nil, d.feed(layout.KindTransparentInput, cmd)
	case InsTransparentOutput:
		return nil, d.feed(layout.KindTransparentOutput, cmd)
	case InsSpend:
		return nil, d.feed(layout.KindSpend, cmd)
	case InsOutput:
		return nil, d.feed(layout.KindOutput, cmd)
	case InsWriteRegion:
		return nil, d.writeRegion(cmd)
	case InsDeriveRegions:
		return d.deriveRegions(cmd)
	case InsFinalize:
		return d.finalize(cmd)
	case InsSignTransparent:
		return d.signTransparent(cmd)
	case InsGetPublicKey:
		return d.getPublicKey(cmd)
	case InsGetLayout:
		return getLayout(cmd)
	case InsReset:
		if cmd.P1 != 0 {
			return nil, status.New(status.CodeInvalidP1P2, "P1 %02x", cmd.P1)
		}
		d.Reset()
		return nil, nil
	default:
		return nil, status.New(status.CodeInsNotSupported, "instruction %02x", cmd.Ins)
	}
}

// Reset ends the current session, wiping the staging buffer and the
// finalized hashes.
func (d *Device) Reset() {
	d.dec.Reset()
	d.finalized = false
	d.preimage = [sighash.Size]byte{}
	d.sighash = [32]byte{}
	log.Debugf("Session reset")
}

// State returns the state of the current session.
func (d *Device) State() decoder.State { return d.dec.State() }

func (d *Device) getVersion(cmd Command) ([]byte, error) {
	if cmd.P1 != 0 {
		return nil, status.New(status.CodeInvalidP1P2, "P1 %02x", cmd.P1)
	}
	return Version[:], nil
}

// feed passes a record chunk to the decoder. P1 carries the wire version.
func (d *Device) feed(kind layout.Kind, cmd Command) error {
	version := layout.Version(cmd.P1)
	if _, err := layout.Lookup(kind, version); err != nil {
		return status.New(status.CodeInvalidP1P2, "P1 %02x is not a %s version", cmd.P1, kind)
	}
	return d.dec.Feed(decoder.Chunk{Kind: kind, Version: version, Data: cmd.Data})
}

// writeRegion writes P1's region. The value balance region goes through the
// decoder's range check.
func (d *Device) writeRegion(cmd Command) error {
	r := layout.Region(cmd.P1)
	f, err := layout.RegionField(r)
	if err != nil {
		return status.New(status.CodeInvalidP1P2, "P1 %02x is not a region", cmd.P1)
	}
	if r == layout.RegionValueBalance && len(cmd.Data) == f.Length {
		return d.dec.WriteValueBalance(int64(binary.LittleEndian.Uint64(cmd.Data)))
	}
	return d.dec.Write(r, cmd.Data)
}

// deriveRegions writes every digest the accepted records determine and
// answers with a bitmask of the regions written.
func (d *Device) deriveRegions(cmd Command) ([]byte, error) {
	if cmd.P1 != 0 || len(cmd.Data) != 0 {
		return nil, status.New(status.CodeInvalidP1P2, "derive takes no arguments")
	}
	if err := d.dec.Finish(); err != nil {
		return nil, err
	}
	wrote, err := d.acc.WriteRegions(d.dec)
	if err != nil {
		return nil, err
	}
	var mask byte
	for _, r := range wrote {
		mask |= 1 << r
	}
	log.Debugf("Derived %d regions", len(wrote))
	return []byte{mask}, nil
}

// finalize answers with the preimage followed by its signature hash.
func (d *Device) finalize(cmd Command) ([]byte, error) {
	if cmd.P1 != 0 || len(cmd.Data) != 0 {
		return nil, status.New(status.CodeInvalidP1P2, "finalize takes no arguments")
	}
	pre, err := d.dec.Finalize()
	if err != nil {
		return nil, err
	}
	d.preimage = pre
	d.sighash = zip243.Sighash(pre, d.cfg.BranchID)
	d.finalized = true

	resp := make([]byte, 0, sighash.Size+32)
	resp = append(resp, d.preimage[:]...)
	return append(resp, d.sighash[:]...), nil
}

// signTransparent signs the transaction-form input in the body with the key
// selected by P1, after checking that the input pays to that key and is one
// of the inputs the session accepted.
func (d *Device) signTransparent(cmd Command) ([]byte, error) {
	if d.dec.State() == decoder.StateAborted {
		return nil, status.New(status.CodeSessionAborted, "session aborted: %v", d.dec.Err())
	}
	if !d.finalized {
		return nil, status.New(status.CodeIncompletePreimage, "preimage not finalized")
	}
	in, err := record.ExtractTransparentInput(layout.VersionTx, cmd.Data)
	if err != nil {
		return nil, err
	}
	pub, err := d.publicKey(cmd.P1)
	if err != nil {
		return nil, err
	}
	if !signer.PaysTo(in.Script(), pub) {
		return nil, status.New(status.CodeCheckSignTransparentFail, "input script does not pay to key %d", cmd.P1)
	}
	if !d.acc.HasInput(in) {
		return nil, status.New(status.CodeCheckSignTransparentFail, "input is not one of the %d streamed inputs",
			d.dec.Received(layout.KindTransparentInput))
	}
	hash, err := zip243.TransparentSighash(d.preimage, d.cfg.BranchID, in)
	if err != nil {
		return nil, err
	}
	sig, err := d.cfg.Signer.Sign(cmd.P1, hash)
	if err != nil {
		return nil, err
	}
	log.Debugf("Signed transparent input with key %d", cmd.P1)
	return sig, nil
}

func (d *Device) getPublicKey(cmd Command) ([]byte, error) {
	if len(cmd.Data) != 0 {
		return nil, status.New(status.CodeWrongLength, "get public key takes no data")
	}
	pub, err := d.publicKey(cmd.P1)
	if err != nil {
		return nil, err
	}
	return pub.Bytes(), nil
}

func (d *Device) publicKey(handle uint8) (*signer.PublicKey, error) {
	if d.cfg.Signer == nil {
		return nil, status.New(status.CodeBadKeyHandle, "no key store")
	}
	return d.cfg.Signer.PublicKey(handle)
}

// getLayout answers with the big-endian wire length of (P1 kind, P2 version).
func getLayout(cmd Command) ([]byte, error) {
	n, err := layout.WireLength(layout.Kind(cmd.P1), layout.Version(cmd.P2))
	if err != nil {
		return nil, err
	}
	out := make([]byte, 2)
	binary.BigEndian.PutUint16(out, uint16(n))
	return out, nil
}

// CheckScripts is the default record validator: transparent inputs and
// outputs must carry P2PKH scripts.
func CheckScripts(rec record.Record) error {
	switch rec.Kind() {
	case layout.KindTransparentInput:
		if !signer.IsP2PKH(record.TransparentInput{Record: rec}.Script()) {
			return status.New(status.CodePrevoutInvalid, "input script is not P2PKH")
		}
	case layout.KindTransparentOutput:
		if !signer.IsP2PKH(record.TransparentOutput{Record: rec}.Address()) {
			return status.New(status.CodeOutputsInvalid, "output script is not P2PKH")
		}
	}
	return nil
}
