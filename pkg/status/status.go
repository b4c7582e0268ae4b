// Package status defines the closed outcome taxonomy of the signing core and
// its mapping to ISO 7816 style status words.
//
// Every boundary operation (decode step, extraction, finalize, device
// instruction) reports exactly one outcome. Internally outcomes are carried as
// *Error values holding a Code; the 2-byte wire word is only computed at the
// protocol edge by Word, so the internal taxonomy does not depend on its wire
// encoding.
//
// References:
//   - ISO/IEC 7816-4 status words (SW1 SW2)
//   - ledger-zxlib apdu_codes.h
package status

import (
	"errors"
	"fmt"
)

// Code identifies one outcome. The set is closed: values outside the
// declared constants never leave this package.
type Code uint8

const (
	CodeOK Code = iota
	CodeBusy

	// Generic execution and framing failures.
	CodeExecutionError
	CodeWrongLength
	CodeEmptyBuffer
	CodeOutputBufferTooSmall
	CodeDataInvalid
	CodeDataTooLong

	// Session and ordering failures.
	CodeOutOfOrderRecord
	CodeSessionAborted
	CodeTxNotInitialized
	CodeExtractTransactionFail
	CodeIncompletePreimage
	CodeIncompleteTransaction

	// Content failures delegated to the caller's validators.
	CodePrevoutInvalid
	CodeSequenceInvalid
	CodeOutputsInvalid
	CodeJoinsplitInvalid
	CodeSpendInvalid
	CodeOutputContentInvalid
	CodeEncryptionInvalid
	CodeCheckSignTransparentFail
	CodeSignSpendFail
	CodeBadValueBalance

	// Layout and preimage failures.
	CodeBadKeyHandle
	CodeWrongRegionLength
	CodeUnknownLayout
	CodeRegionAlreadyWritten

	// Instruction framing.
	CodeInvalidP1P2
	CodeInsNotSupported
	CodeClaNotSupported

	CodeUnknown
	CodeSignVerifyError

	numCodes
)

type codeInfo struct {
	word uint16
	name string
}

// codeTable is indexed by Code. Words must stay stable across releases: hosts
// match on them.
var codeTable = [numCodes]codeInfo{
	CodeOK:                       {0x9000, "ok"},
	CodeBusy:                     {0x9001, "busy"},
	CodeExecutionError:           {0x6400, "execution error"},
	CodeWrongLength:              {0x6700, "wrong length"},
	CodeEmptyBuffer:              {0x6982, "empty buffer"},
	CodeOutputBufferTooSmall:     {0x6983, "output buffer too small"},
	CodeDataInvalid:              {0x6984, "data invalid"},
	CodeOutOfOrderRecord:         {0x6985, "out of order record"},
	CodeSessionAborted:           {0x6986, "session aborted"},
	CodeTxNotInitialized:         {0x6987, "transaction not initialized"},
	CodeDataTooLong:              {0x6988, "data too long"},
	CodeExtractTransactionFail:   {0x6989, "extract transaction failed"},
	CodeIncompletePreimage:       {0x6990, "incomplete preimage"},
	CodeIncompleteTransaction:    {0x6991, "incomplete transaction"},
	CodePrevoutInvalid:           {0x6992, "prevout invalid"},
	CodeSequenceInvalid:          {0x6993, "sequence invalid"},
	CodeOutputsInvalid:           {0x6994, "outputs invalid"},
	CodeJoinsplitInvalid:         {0x6995, "joinsplit invalid"},
	CodeSpendInvalid:             {0x6996, "spend invalid"},
	CodeOutputContentInvalid:     {0x6997, "output content invalid"},
	CodeEncryptionInvalid:        {0x6998, "encryption invalid"},
	CodeCheckSignTransparentFail: {0x6999, "transparent signature check failed"},
	CodeSignSpendFail:            {0x69A0, "spend signing failed"},
	CodeBadValueBalance:          {0x69A1, "bad value balance"},
	CodeBadKeyHandle:             {0x6A80, "bad key handle"},
	CodeWrongRegionLength:        {0x6A87, "wrong region length"},
	CodeUnknownLayout:            {0x6A88, "unknown layout"},
	CodeRegionAlreadyWritten:     {0x6A89, "region already written"},
	CodeInvalidP1P2:              {0x6B00, "invalid p1/p2"},
	CodeInsNotSupported:          {0x6D00, "instruction not supported"},
	CodeClaNotSupported:          {0x6E00, "class not supported"},
	CodeUnknown:                  {0x6F00, "unknown error"},
	CodeSignVerifyError:          {0x6F01, "signature verification failed"},
}

// Word returns the status word of c. Out-of-range codes report Unknown.
func (c Code) Word() uint16 {
	if c >= numCodes {
		return codeTable[CodeUnknown].word
	}
	return codeTable[c].word
}

func (c Code) String() string {
	if c >= numCodes {
		return fmt.Sprintf("code(%d)", uint8(c))
	}
	return codeTable[c].name
}

// Codes returns every declared code in declaration order.
func Codes() []Code {
	codes := make([]Code, numCodes)
	for i := range codes {
		codes[i] = Code(i)
	}
	return codes
}

// Error is a failure carrying exactly one Code.
type Error struct {
	Code Code   // Outcome code
	Msg  string // Optional detail for logs, never sent on the wire
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s [%04X]", e.Code, e.Code.Word())
	}
	return fmt.Sprintf("%s [%04X]: %s", e.Code, e.Code.Word(), e.Msg)
}

// Is reports whether target is an *Error with the same code, so that
// errors.Is(err, status.ErrWrongLength) matches any detailed variant.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// New returns an *Error with a formatted detail message.
func New(c Code, format string, args ...interface{}) *Error {
	return &Error{Code: c, Msg: fmt.Sprintf(format, args...)}
}

// Sentinels for errors.Is comparisons.
var (
	ErrBusy                     = &Error{Code: CodeBusy}
	ErrExecution                = &Error{Code: CodeExecutionError}
	ErrWrongLength              = &Error{Code: CodeWrongLength}
	ErrEmptyBuffer              = &Error{Code: CodeEmptyBuffer}
	ErrOutputBufferTooSmall     = &Error{Code: CodeOutputBufferTooSmall}
	ErrDataInvalid              = &Error{Code: CodeDataInvalid}
	ErrDataTooLong              = &Error{Code: CodeDataTooLong}
	ErrOutOfOrderRecord         = &Error{Code: CodeOutOfOrderRecord}
	ErrSessionAborted           = &Error{Code: CodeSessionAborted}
	ErrTxNotInitialized         = &Error{Code: CodeTxNotInitialized}
	ErrExtractTransactionFail   = &Error{Code: CodeExtractTransactionFail}
	ErrIncompletePreimage       = &Error{Code: CodeIncompletePreimage}
	ErrIncompleteTransaction    = &Error{Code: CodeIncompleteTransaction}
	ErrPrevoutInvalid           = &Error{Code: CodePrevoutInvalid}
	ErrSequenceInvalid          = &Error{Code: CodeSequenceInvalid}
	ErrOutputsInvalid           = &Error{Code: CodeOutputsInvalid}
	ErrJoinsplitInvalid         = &Error{Code: CodeJoinsplitInvalid}
	ErrSpendInvalid             = &Error{Code: CodeSpendInvalid}
	ErrOutputContentInvalid     = &Error{Code: CodeOutputContentInvalid}
	ErrEncryptionInvalid        = &Error{Code: CodeEncryptionInvalid}
	ErrCheckSignTransparentFail = &Error{Code: CodeCheckSignTransparentFail}
	ErrSignSpendFail            = &Error{Code: CodeSignSpendFail}
	ErrBadValueBalance          = &Error{Code: CodeBadValueBalance}
	ErrBadKeyHandle             = &Error{Code: CodeBadKeyHandle}
	ErrWrongRegionLength        = &Error{Code: CodeWrongRegionLength}
	ErrUnknownLayout            = &Error{Code: CodeUnknownLayout}
	ErrRegionAlreadyWritten     = &Error{Code: CodeRegionAlreadyWritten}
	ErrInvalidP1P2              = &Error{Code: CodeInvalidP1P2}
	ErrInsNotSupported          = &Error{Code: CodeInsNotSupported}
	ErrClaNotSupported          = &Error{Code: CodeClaNotSupported}
	ErrUnknown                  = &Error{Code: CodeUnknown}
	ErrSignVerify               = &Error{Code: CodeSignVerifyError}
)

// CodeOf returns the code carried by err. A nil error is OK; an error chain
// without an *Error is Unknown.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	var se *Error
	if errors.As(err, &se) && se.Code < numCodes {
		return se.Code
	}
	return CodeUnknown
}

// Word maps err to its status word. The mapping is total: every error,
// including ones foreign to this package, yields exactly one word.
func Word(err error) uint16 {
	return CodeOf(err).Word()
}

// Append writes the status word for err to resp in big-endian order.
func Append(resp []byte, err error) []byte {
	w := Word(err)
	return append(resp, byte(w>>8), byte(w))
}

// Split separates a response into payload and status word. It is the host
// side counterpart of Append.
func Split(resp []byte) ([]byte, uint16, error) {
	if len(resp) < 2 {
		return nil, 0, New(CodeWrongLength, "response of %d bytes has no status word", len(resp))
	}
	n := len(resp) - 2
	return resp[:n], uint16(resp[n])<<8 | uint16(resp[n+1]), nil
}

// FromWord is the inverse of Code.Word for hosts decoding a response.
// Unrecognized words report CodeUnknown and false.
func FromWord(w uint16) (Code, bool) {
	for i := range codeTable {
		if codeTable[i].word == w {
			return Code(i), true
		}
	}
	return CodeUnknown, false
}
