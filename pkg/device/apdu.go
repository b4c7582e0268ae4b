package device

import (
	"encoding/binary"

	"github.com/suffix-labs/zcash-sapling-sighash/pkg/status"
)

// CLA is the instruction class of every command.
const CLA = 0x85

// Instruction codes.
const (
	InsGetVersion        = 0x00
	InsInitTx            = 0x10
	InsTransparentInput  = 0x11
	InsTransparentOutput = 0x12
	InsSpend             = 0x13
	InsOutput            = 0x14
	InsWriteRegion       = 0x15
	InsFinalize          = 0x16
	InsSignTransparent   = 0x17
	InsReset             = 0x18
	InsGetLayout         = 0x19
	InsDeriveRegions     = 0x1A
	InsGetPublicKey      = 0x1B
)

// headerLen is CLA | INS | P1 | P2 | Lc.
const headerLen = 5

// maxData is the largest extended-length command body.
const maxData = 0xFFFF

// Command is a parsed command APDU.
type Command struct {
	Ins  byte
	P1   byte
	P2   byte
	Data []byte
}

// ParseCommand splits a request into its header and body. Lc is one byte, or
// a zero byte followed by a big-endian two-byte length for bodies longer than
// 255 bytes. Data aliases req.
func ParseCommand(req []byte) (Command, error) {
	if len(req) < headerLen {
		return Command{}, status.New(status.CodeEmptyBuffer, "request of %d bytes", len(req))
	}
	if req[0] != CLA {
		return Command{}, status.New(status.CodeClaNotSupported, "class %02x", req[0])
	}
	cmd := Command{Ins: req[1], P1: req[2], P2: req[3]}

	lc, body := int(req[4]), req[headerLen:]
	if lc == 0 && len(body) > 0 {
		if len(body) < 2 {
			return Command{}, status.New(status.CodeWrongLength, "truncated extended length")
		}
		lc, body = int(binary.BigEndian.Uint16(body)), body[2:]
	}
	if len(body) != lc {
		return Command{}, status.New(status.CodeWrongLength, "Lc %d with %d data bytes", lc, len(body))
	}
	cmd.Data = body
	return cmd, nil
}

// Encode serializes the command, choosing the extended length form only when
// the body needs it.
func (c Command) Encode() ([]byte, error) {
	n := len(c.Data)
	if n > maxData {
		return nil, status.New(status.CodeDataTooLong, "command body of %d bytes", n)
	}
	out := make([]byte, 0, headerLen+2+n)
	out = append(out, CLA, c.Ins, c.P1, c.P2)
	if n <= 0xFF {
		out = append(out, byte(n))
	} else {
		out = append(out, 0, byte(n>>8), byte(n))
	}
	return append(out, c.Data...), nil
}
