// Package api provides the host-side API for driving a signing device.
//
// This is the main entry point for applications using the library. The host
// parses the transaction, streams it to the device one record at a time and
// collects the preimage, the signature hash and the transparent signatures:
//
//  1. GetVersion - Reads the device application version
//  2. InitTransaction - Opens a session with the transaction envelope
//  3. SendChunk - Sends one tagged record
//  4. DeriveRegions / WriteRegion - Fills the preimage regions
//  5. Finalize - Closes the preimage and reads back the signature hash
//  6. SignTransparentInput - Signs one transparent input
//  7. GetPublicKey / GetLayout / Reset - Device queries and session control
//  8. BuildPreimage / SignTransaction - All of the above for a parsed v4
//     transaction
//
// Every device failure comes back as a *status.Error carrying the code the
// device answered with, so callers can use errors.Is against the status
// sentinels.
package api

import (
	"encoding/binary"
	"fmt"

	"github.com/suffix-labs/zcash-sapling-sighash/pkg/decoder"
	"github.com/suffix-labs/zcash-sapling-sighash/pkg/device"
	"github.com/suffix-labs/zcash-sapling-sighash/pkg/layout"
	"github.com/suffix-labs/zcash-sapling-sighash/pkg/sighash"
	"github.com/suffix-labs/zcash-sapling-sighash/pkg/signer"
	"github.com/suffix-labs/zcash-sapling-sighash/pkg/status"
	"github.com/suffix-labs/zcash-sapling-sighash/pkg/txparse"
)

// Transport carries one command APDU to the device and returns the raw
// response, status word included.
type Transport interface {
	Exchange(req []byte) ([]byte, error)
}

// Local is a Transport to an in-process device.
type Local struct {
	Device *device.Device
}

// Exchange implements Transport.
func (l Local) Exchange(req []byte) ([]byte, error) {
	return l.Device.Exchange(req), nil
}

// Client issues commands over a Transport.
type Client struct {
	t Transport
}

// NewClient returns a client using t.
func NewClient(t Transport) *Client {
	return &Client{t: t}
}

// call sends one command and returns the response payload. A status word
// other than OK becomes a *status.Error with the matching code.
func (c *Client) call(ins, p1, p2 byte, data []byte) ([]byte, error) {
	req, err := device.Command{Ins: ins, P1: p1, P2: p2, Data: data}.Encode()
	if err != nil {
		return nil, err
	}
	resp, err := c.t.Exchange(req)
	if err != nil {
		return nil, fmt.Errorf("exchange INS %02x: %w", ins, err)
	}
	payload, word, err := status.Split(resp)
	if err != nil {
		return nil, err
	}
	code, known := status.FromWord(word)
	if !known {
		return nil, status.New(status.CodeUnknown, "INS %02x: unrecognized status word %04x", ins, word)
	}
	if code != status.CodeOK {
		return nil, status.New(code, "INS %02x", ins)
	}
	return payload, nil
}

// ============================================================================
// API Function 1: GetVersion
// ============================================================================

// GetVersion returns the device application version as major, minor, patch.
func (c *Client) GetVersion() ([3]byte, error) {
	var v [3]byte
	resp, err := c.call(device.InsGetVersion, 0, 0, nil)
	if err != nil {
		return v, err
	}
	if len(resp) != len(v) {
		return v, status.New(status.CodeWrongLength, "version of %d bytes", len(resp))
	}
	copy(v[:], resp)
	return v, nil
}

// ============================================================================
// API Function 2: InitTransaction
// ============================================================================

// InitTransaction opens a session with env encoded in the given header
// version. A compact header leaves the fixed fields at their Sapling
// defaults.
func (c *Client) InitTransaction(env decoder.Envelope, version layout.Version) error {
	b, err := env.Encode(version)
	if err != nil {
		return err
	}
	_, err = c.call(device.InsInitTx, byte(version), 0, b)
	return err
}

// ============================================================================
// API Function 3: SendChunk
// ============================================================================

var chunkIns = map[layout.Kind]byte{
	layout.KindHeader:            device.InsInitTx,
	layout.KindTransparentInput:  device.InsTransparentInput,
	layout.KindTransparentOutput: device.InsTransparentOutput,
	layout.KindSpend:             device.InsSpend,
	layout.KindOutput:            device.InsOutput,
}

// SendChunk sends one tagged chunk. The chunk version travels in P1.
func (c *Client) SendChunk(ch decoder.Chunk) error {
	ins, ok := chunkIns[ch.Kind]
	if !ok {
		return status.New(status.CodeDataInvalid, "%s records are not sent to the device", ch.Kind)
	}
	_, err := c.call(ins, byte(ch.Version), 0, ch.Data)
	return err
}

// ============================================================================
// API Function 4: DeriveRegions / WriteRegion
// ============================================================================

// DeriveRegions asks the device to write every digest its records determine
// and returns the regions it wrote.
func (c *Client) DeriveRegions() ([]layout.Region, error) {
	resp, err := c.call(device.InsDeriveRegions, 0, 0, nil)
	if err != nil {
		return nil, err
	}
	if len(resp) != 1 {
		return nil, status.New(status.CodeWrongLength, "region mask of %d bytes", len(resp))
	}
	var wrote []layout.Region
	for _, r := range layout.Regions() {
		if resp[0]&(1<<r) != 0 {
			wrote = append(wrote, r)
		}
	}
	return wrote, nil
}

// WriteRegion writes b into region r of the device preimage.
func (c *Client) WriteRegion(r layout.Region, b []byte) error {
	_, err := c.call(device.InsWriteRegion, byte(r), 0, b)
	return err
}

// WriteValueBalance writes the value balance region.
func (c *Client) WriteValueBalance(v int64) error {
	b := sighash.EncodeValueBalance(v)
	return c.WriteRegion(layout.RegionValueBalance, b[:])
}

// ============================================================================
// API Function 5: Finalize
// ============================================================================

// Finalize closes the preimage and returns it with its signature hash.
func (c *Client) Finalize() ([sighash.Size]byte, [32]byte, error) {
	var pre [sighash.Size]byte
	var hash [32]byte
	resp, err := c.call(device.InsFinalize, 0, 0, nil)
	if err != nil {
		return pre, hash, err
	}
	if len(resp) != sighash.Size+32 {
		return pre, hash, status.New(status.CodeWrongLength, "finalize answered %d bytes", len(resp))
	}
	copy(pre[:], resp)
	copy(hash[:], resp[sighash.Size:])
	return pre, hash, nil
}

// ============================================================================
// API Function 6: SignTransparentInput
// ============================================================================

// SignTransparentInput signs a transaction-form input with the key behind
// handle and returns the DER signature.
func (c *Client) SignTransparentInput(handle uint8, input [layout.TransparentInputTxLen]byte) ([]byte, error) {
	return c.call(device.InsSignTransparent, handle, 0, input[:])
}

// ============================================================================
// API Function 7: GetPublicKey / GetLayout / Reset
// ============================================================================

// GetPublicKey returns the public key behind handle.
func (c *Client) GetPublicKey(handle uint8) (*signer.PublicKey, error) {
	resp, err := c.call(device.InsGetPublicKey, handle, 0, nil)
	if err != nil {
		return nil, err
	}
	return signer.ParsePublicKey(resp)
}

// GetLayout returns the wire length the device expects for (kind, version).
func (c *Client) GetLayout(kind layout.Kind, version layout.Version) (int, error) {
	resp, err := c.call(device.InsGetLayout, byte(kind), byte(version), nil)
	if err != nil {
		return 0, err
	}
	if len(resp) != 2 {
		return 0, status.New(status.CodeWrongLength, "layout answered %d bytes", len(resp))
	}
	return int(binary.BigEndian.Uint16(resp)), nil
}

// Reset ends the device session.
func (c *Client) Reset() error {
	_, err := c.call(device.InsReset, 0, 0, nil)
	return err
}

// ============================================================================
// API Function 8: BuildPreimage / SignTransaction
// ============================================================================

// Result holds everything a signing session produced.
type Result struct {
	Preimage [sighash.Size]byte
	Sighash  [32]byte

	// Signatures[i] is the DER signature of transparent input i.
	Signatures [][]byte
}

// BuildPreimage streams tx to the device and finalizes its preimage.
//
// This function:
//  1. Resets the device and sends every record of tx
//  2. Has the device derive the digests and writes the value balance
//  3. Finalizes the preimage
//
// Parameters:
//   - tx: Parsed v4 transaction
//   - coins: The coin spent by each transparent input, in order
//
// Returns:
//   - The preimage and signature hash, with no signatures
//   - Error if any step fails; the device session is left aborted
func (c *Client) BuildPreimage(tx *txparse.Tx, coins []txparse.Coin) (*Result, error) {
	chunks, err := tx.Chunks(coins)
	if err != nil {
		return nil, err
	}

	if err := c.Reset(); err != nil {
		return nil, fmt.Errorf("reset: %w", err)
	}
	for i, ch := range chunks {
		if err := c.SendChunk(ch); err != nil {
			return nil, fmt.Errorf("chunk %d (%s): %w", i, ch.Kind, err)
		}
	}
	if _, err := c.DeriveRegions(); err != nil {
		return nil, fmt.Errorf("deriving regions: %w", err)
	}
	if err := c.WriteValueBalance(tx.ValueBalance); err != nil {
		return nil, fmt.Errorf("writing value balance: %w", err)
	}

	res := &Result{}
	if res.Preimage, res.Sighash, err = c.Finalize(); err != nil {
		return nil, fmt.Errorf("finalizing: %w", err)
	}
	return res, nil
}

// SignTransaction runs BuildPreimage and then signs every transparent input
// with the key handle given for it.
//
// Parameters:
//   - tx: Parsed v4 transaction
//   - coins: The coin spent by each transparent input, in order
//   - handles: The key handle for each transparent input, in order
//
// Returns:
//   - The preimage, signature hash and signatures
//   - Error if any step fails
func (c *Client) SignTransaction(tx *txparse.Tx, coins []txparse.Coin, handles []uint8) (*Result, error) {
	if len(handles) != len(tx.TransparentInputs) {
		return nil, fmt.Errorf("%d key handles for %d transparent inputs", len(handles), len(tx.TransparentInputs))
	}
	res, err := c.BuildPreimage(tx, coins)
	if err != nil {
		return nil, err
	}

	for i := range tx.TransparentInputs {
		in, err := tx.InputRecord(i, coins[i])
		if err != nil {
			return nil, err
		}
		sig, err := c.SignTransparentInput(handles[i], in)
		if err != nil {
			return nil, fmt.Errorf("signing input %d: %w", i, err)
		}
		res.Signatures = append(res.Signatures, sig)
	}
	return res, nil
}
